// Package config provides configuration loading, validation, and management
// for the launcher. It reads an optional YAML file, overlays LAUNCHER_*
// environment variables, fills defaults, and validates the result.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration wraps every error returned while loading or validating.
var ErrConfiguration = errors.New("configuration error")

// Restart policies for auxiliary processes.
const (
	RestartNever     = "never"
	RestartOnFailure = "on-failure"
	RestartAlways    = "always"
)

// Config defines the launcher configuration for the primary server process,
// auxiliary processes, supervision, and the supporting components.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Server      ServerConfig      `mapstructure:"server"`
	Auxiliaries []AuxiliaryConfig `mapstructure:"auxiliaries" validate:"dive"`
	// Disable lists auxiliary names to skip regardless of their enabled flag.
	Disable []string `mapstructure:"disable"`
	// Env holds KEY=VALUE pairs exported to every child process.
	Env        []string         `mapstructure:"env"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Health     HealthConfig     `mapstructure:"health"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// ServerConfig describes the primary (foreground) web server process.
// Unless Command is set, the argv is rendered from the individual options.
type ServerConfig struct {
	Command     string   `mapstructure:"command"`
	Binary      string   `mapstructure:"binary"       validate:"required_without=Command"`
	App         string   `mapstructure:"app"          validate:"required_without=Command"`
	Host        string   `mapstructure:"host"         validate:"required"`
	Port        int      `mapstructure:"port"         validate:"min=1,max=65535"`
	Workers     int      `mapstructure:"workers"      validate:"min=1,max=64"`
	WorkerClass string   `mapstructure:"worker_class"`
	AccessLog   string   `mapstructure:"access_log"`
	ErrorLog    string   `mapstructure:"error_log"`
	ExtraArgs   []string `mapstructure:"extra_args"`
	Dir         string   `mapstructure:"dir"`
	Env         []string `mapstructure:"env"`
}

// AuxiliaryConfig describes a background process started before the server.
type AuxiliaryConfig struct {
	Name       string        `mapstructure:"name"        validate:"required,max=32,excludesall= /"`
	Command    string        `mapstructure:"command"     validate:"required"`
	Args       []string      `mapstructure:"args"`
	Dir        string        `mapstructure:"dir"`
	Env        []string      `mapstructure:"env"`
	Enabled    bool          `mapstructure:"enabled"`
	Restart    string        `mapstructure:"restart"     validate:"oneof=never on-failure always"`
	StartDelay time.Duration `mapstructure:"start_delay" validate:"min=0"`
}

// SupervisorConfig controls startup probing, shutdown, and restart behavior.
type SupervisorConfig struct {
	StartupTimeout       time.Duration `mapstructure:"startup_timeout"         validate:"min=1ms"`
	FailOnStartupTimeout bool          `mapstructure:"fail_on_startup_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"        validate:"min=1ms"`
	ProbeInterval        time.Duration `mapstructure:"probe_interval"          validate:"min=1ms"`
	PrefixOutput         bool          `mapstructure:"prefix_output"`
	MaxRestarts          int           `mapstructure:"max_restarts"            validate:"min=0"`
	Backoff              BackoffConfig `mapstructure:"backoff"`
	Breaker              BreakerConfig `mapstructure:"breaker"`
}

// BackoffConfig holds exponential restart backoff parameters.
type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial"    validate:"min=1ms"`
	Max        time.Duration `mapstructure:"max"        validate:"min=1ms"`
	Multiplier float64       `mapstructure:"multiplier" validate:"min=1"`
	Jitter     float64       `mapstructure:"jitter"     validate:"min=0,max=1"`
}

// BreakerConfig holds crash-loop breaker parameters.
type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures" validate:"min=1"`
	Cooldown    time.Duration `mapstructure:"cooldown"     validate:"min=1ms"`
	MinUptime   time.Duration `mapstructure:"min_uptime"   validate:"min=0"`
}

// HealthConfig holds settings for the health/status HTTP endpoint.
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DatabaseConfig holds settings for the lifecycle event history.
// An empty Path disables history.
type DatabaseConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention" validate:"min=0"`
}

// NotifyConfig holds crash notification settings. The token falls back to
// TELEGRAM_BOT_TOKEN, so notifications stay off until a chat id is set.
type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// ScheduleConfig holds cron expressions (with seconds) for periodic tasks.
// An empty expression disables the task.
type ScheduleConfig struct {
	Probe string `mapstructure:"probe"`
	Prune string `mapstructure:"prune"`
}

// TelegramEnabled reports whether crash notifications should be sent.
func (c *Config) TelegramEnabled() bool {
	return c.Notify.TelegramToken != "" && c.Notify.TelegramChatID != 0
}

// EnabledAuxiliaries returns the auxiliaries that should be started, in order.
func (c *Config) EnabledAuxiliaries() []AuxiliaryConfig {
	disabled := make(map[string]bool, len(c.Disable))
	for _, name := range c.Disable {
		disabled[name] = true
	}

	var out []AuxiliaryConfig
	for _, aux := range c.Auxiliaries {
		if aux.Enabled && !disabled[aux.Name] {
			out = append(out, aux)
		}
	}
	return out
}
