package config

import "time"

// Default values for configuration
const (
	// Log defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	// Server defaults: one eventlet worker under gunicorn, logs on stdio
	DefaultServerBinary      = "gunicorn"
	DefaultServerApp         = "server:app"
	DefaultServerHost        = "0.0.0.0"
	DefaultServerPort        = 8000
	DefaultServerWorkers     = 1
	DefaultServerWorkerClass = "eventlet"
	DefaultServerAccessLog   = "-"
	DefaultServerErrorLog    = "-"

	// Supervisor defaults
	DefaultStartupTimeout       = 60 * time.Second
	DefaultFailOnStartupTimeout = true
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultProbeInterval        = 250 * time.Millisecond
	DefaultPrefixOutput         = true
	DefaultMaxRestarts          = 0 // unlimited

	DefaultBackoffInitial    = time.Second
	DefaultBackoffMax        = time.Minute
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffJitter     = 0.1

	DefaultBreakerMaxFailures = 5
	DefaultBreakerCooldown    = 5 * time.Minute
	DefaultBreakerMinUptime   = 30 * time.Second

	// Health endpoint defaults
	DefaultHealthEnabled = true
	DefaultHealthAddr    = "0.0.0.0:9090"

	// Database defaults
	DefaultDBPath      = "launcher.db"
	DefaultDBRetention = 7 * 24 * time.Hour

	// Schedule defaults (cron with seconds)
	DefaultScheduleProbe = "*/15 * * * * *"
	DefaultSchedulePrune = "0 0 * * * *"
)

// DefaultEnv is exported to every child unless overridden.
var DefaultEnv = []string{"PYTHONUNBUFFERED=1"}

// DefaultAuxiliaries starts the Telegram bot next to the web server.
var DefaultAuxiliaries = []AuxiliaryConfig{
	{
		Name:    "bot",
		Command: "python bot.py",
		Enabled: true,
		Restart: RestartOnFailure,
	},
}

// Default returns a configuration populated with default values only.
func Default() *Config {
	auxes := make([]AuxiliaryConfig, len(DefaultAuxiliaries))
	copy(auxes, DefaultAuxiliaries)

	return &Config{
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Server: ServerConfig{
			Binary:      DefaultServerBinary,
			App:         DefaultServerApp,
			Host:        DefaultServerHost,
			Port:        DefaultServerPort,
			Workers:     DefaultServerWorkers,
			WorkerClass: DefaultServerWorkerClass,
			AccessLog:   DefaultServerAccessLog,
			ErrorLog:    DefaultServerErrorLog,
		},
		Auxiliaries: auxes,
		Env:         append([]string(nil), DefaultEnv...),
		Supervisor: SupervisorConfig{
			StartupTimeout:       DefaultStartupTimeout,
			FailOnStartupTimeout: DefaultFailOnStartupTimeout,
			ShutdownTimeout:      DefaultShutdownTimeout,
			ProbeInterval:        DefaultProbeInterval,
			PrefixOutput:         DefaultPrefixOutput,
			MaxRestarts:          DefaultMaxRestarts,
			Backoff: BackoffConfig{
				Initial:    DefaultBackoffInitial,
				Max:        DefaultBackoffMax,
				Multiplier: DefaultBackoffMultiplier,
				Jitter:     DefaultBackoffJitter,
			},
			Breaker: BreakerConfig{
				MaxFailures: DefaultBreakerMaxFailures,
				Cooldown:    DefaultBreakerCooldown,
				MinUptime:   DefaultBreakerMinUptime,
			},
		},
		Health: HealthConfig{
			Enabled: DefaultHealthEnabled,
			Addr:    DefaultHealthAddr,
		},
		Database: DatabaseConfig{
			Path:      DefaultDBPath,
			Retention: DefaultDBRetention,
		},
		Schedule: ScheduleConfig{
			Probe: DefaultScheduleProbe,
			Prune: DefaultSchedulePrune,
		},
	}
}
