package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g. LAUNCHER_SERVER_PORT.
const EnvPrefix = "LAUNCHER"

// Load loads and validates configuration from:
// 1. Default values
// 2. the YAML file at path (optional; empty path skips it)
// 3. LAUNCHER_* environment variables
func Load(path string) (*Config, error) {
	startTime := time.Now()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The bot and the notifier share the token the bot already reads.
	if err := v.BindEnv("notify.telegram_token", EnvPrefix+"_NOTIFY_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("%w: failed to bind env: %v", ErrConfiguration, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
		}
		slog.Debug("configuration file loaded", "path", path)
	}
	normalizeAuxiliaries(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("configuration loaded",
		"server_port", cfg.Server.Port,
		"auxiliaries", len(cfg.EnabledAuxiliaries()),
		"db_path", cfg.Database.Path,
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// normalizeAuxiliaries fills per-entry defaults for auxiliaries read from a
// file, so an entry without "enabled" or "restart" keys is still usable.
func normalizeAuxiliaries(v *viper.Viper) {
	raw, ok := v.Get("auxiliaries").([]any)
	if !ok {
		return
	}
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, set := entry["enabled"]; !set {
			entry["enabled"] = true
		}
		if _, set := entry["restart"]; !set {
			entry["restart"] = RestartOnFailure
		}
	}
	v.Set("auxiliaries", raw)
}

// setDefaults sets default values for every key so that environment
// overrides apply to all of them.
func setDefaults(v *viper.Viper) {
	d := Default()

	// Log defaults
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	// Server defaults
	v.SetDefault("server.command", "")
	v.SetDefault("server.binary", d.Server.Binary)
	v.SetDefault("server.app", d.Server.App)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("server.worker_class", d.Server.WorkerClass)
	v.SetDefault("server.access_log", d.Server.AccessLog)
	v.SetDefault("server.error_log", d.Server.ErrorLog)
	v.SetDefault("server.extra_args", []string{})
	v.SetDefault("server.dir", "")
	v.SetDefault("server.env", []string{})

	// Process set
	auxes := make([]map[string]any, 0, len(d.Auxiliaries))
	for _, aux := range d.Auxiliaries {
		auxes = append(auxes, map[string]any{
			"name":        aux.Name,
			"command":     aux.Command,
			"enabled":     aux.Enabled,
			"restart":     aux.Restart,
			"start_delay": aux.StartDelay,
		})
	}
	v.SetDefault("auxiliaries", auxes)
	v.SetDefault("disable", []string{})
	v.SetDefault("env", d.Env)

	// Supervisor defaults
	v.SetDefault("supervisor.startup_timeout", d.Supervisor.StartupTimeout)
	v.SetDefault("supervisor.fail_on_startup_timeout", d.Supervisor.FailOnStartupTimeout)
	v.SetDefault("supervisor.shutdown_timeout", d.Supervisor.ShutdownTimeout)
	v.SetDefault("supervisor.probe_interval", d.Supervisor.ProbeInterval)
	v.SetDefault("supervisor.prefix_output", d.Supervisor.PrefixOutput)
	v.SetDefault("supervisor.max_restarts", d.Supervisor.MaxRestarts)
	v.SetDefault("supervisor.backoff.initial", d.Supervisor.Backoff.Initial)
	v.SetDefault("supervisor.backoff.max", d.Supervisor.Backoff.Max)
	v.SetDefault("supervisor.backoff.multiplier", d.Supervisor.Backoff.Multiplier)
	v.SetDefault("supervisor.backoff.jitter", d.Supervisor.Backoff.Jitter)
	v.SetDefault("supervisor.breaker.max_failures", d.Supervisor.Breaker.MaxFailures)
	v.SetDefault("supervisor.breaker.cooldown", d.Supervisor.Breaker.Cooldown)
	v.SetDefault("supervisor.breaker.min_uptime", d.Supervisor.Breaker.MinUptime)

	// Health, database, notify, schedule
	v.SetDefault("health.enabled", d.Health.Enabled)
	v.SetDefault("health.addr", d.Health.Addr)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.retention", d.Database.Retention)
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)
	v.SetDefault("schedule.probe", d.Schedule.Probe)
	v.SetDefault("schedule.prune", d.Schedule.Prune)
}
