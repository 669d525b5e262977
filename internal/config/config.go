// Package config loads TextOps configuration from flags, environment
// variables, and an optional config file, in that precedence order.
package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every option enumerated in the Configuration section.
type Config struct {
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
}

type PersistenceConfig struct {
	Provider         string `mapstructure:"provider"`
	ConnectionString string `mapstructure:"connection_string"`
}

type WorkerConfig struct {
	WorkerID               string        `mapstructure:"worker_id"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	ErrorRetryDelay        time.Duration `mapstructure:"error_retry_delay"`
	MaxAttempts            int           `mapstructure:"max_attempts"`
	LockTimeout            time.Duration `mapstructure:"lock_timeout"`
	StaleLockCheckInterval time.Duration `mapstructure:"stale_lock_check_interval"`
}

type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the baseline configuration used when no flag, env
// var, or config file supplies a value.
func Defaults() Config {
	return Config{
		Persistence: PersistenceConfig{
			Provider:         "sqlite",
			ConnectionString: "file:textops.db?_pragma=busy_timeout(5000)",
		},
		Worker: WorkerConfig{
			PollInterval:           1 * time.Second,
			ErrorRetryDelay:        5 * time.Second,
			MaxAttempts:            3,
			LockTimeout:            5 * time.Minute,
			StaleLockCheckInterval: 1 * time.Minute,
		},
		HTTP: HTTPConfig{
			ListenAddr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a viper instance bound to flags (if non-nil), TEXTOPS_*
// environment variables, an optional config file, and package defaults,
// in flag > env > file > default precedence, and unmarshals it into a
// Config.
func Load(flags *pflag.FlagSet, configFile string) (Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))

	defaults := Defaults()
	v.SetDefault("persistence::provider", defaults.Persistence.Provider)
	v.SetDefault("persistence::connection_string", defaults.Persistence.ConnectionString)
	v.SetDefault("worker::worker_id", defaults.Worker.WorkerID)
	v.SetDefault("worker::poll_interval", defaults.Worker.PollInterval)
	v.SetDefault("worker::error_retry_delay", defaults.Worker.ErrorRetryDelay)
	v.SetDefault("worker::max_attempts", defaults.Worker.MaxAttempts)
	v.SetDefault("worker::lock_timeout", defaults.Worker.LockTimeout)
	v.SetDefault("worker::stale_lock_check_interval", defaults.Worker.StaleLockCheckInterval)
	v.SetDefault("http::listen_addr", defaults.HTTP.ListenAddr)
	v.SetDefault("log::level", defaults.Log.Level)
	v.SetDefault("log::format", defaults.Log.Format)

	// Env var names are fixed TEXTOPS_* names, not derived from the
	// nested key shape, so each is bound explicitly.
	_ = v.BindEnv("persistence::provider", "TEXTOPS_DB_PROVIDER")
	_ = v.BindEnv("persistence::connection_string", "TEXTOPS_DB_DSN")
	_ = v.BindEnv("worker::worker_id", "TEXTOPS_WORKER_ID")
	_ = v.BindEnv("worker::poll_interval", "TEXTOPS_POLL_INTERVAL")
	_ = v.BindEnv("worker::error_retry_delay", "TEXTOPS_ERROR_RETRY_DELAY")
	_ = v.BindEnv("worker::max_attempts", "TEXTOPS_MAX_ATTEMPTS")
	_ = v.BindEnv("worker::lock_timeout", "TEXTOPS_LOCK_TIMEOUT")
	_ = v.BindEnv("worker::stale_lock_check_interval", "TEXTOPS_STALE_CHECK_INTERVAL")
	_ = v.BindEnv("http::listen_addr", "TEXTOPS_LISTEN_ADDR")
	_ = v.BindEnv("log::level", "TEXTOPS_LOG_LEVEL")
	_ = v.BindEnv("log::format", "TEXTOPS_LOG_FORMAT")

	if flags != nil {
		bindFlag(v, "persistence::provider", flags, "db-provider")
		bindFlag(v, "persistence::connection_string", flags, "db-dsn")
		bindFlag(v, "worker::worker_id", flags, "worker-id")
		bindFlag(v, "worker::poll_interval", flags, "poll-interval")
		bindFlag(v, "worker::error_retry_delay", flags, "error-retry-delay")
		bindFlag(v, "worker::max_attempts", flags, "max-attempts")
		bindFlag(v, "worker::lock_timeout", flags, "lock-timeout")
		bindFlag(v, "worker::stale_lock_check_interval", flags, "stale-check-interval")
		bindFlag(v, "http::listen_addr", flags, "listen")
		bindFlag(v, "log::level", flags, "log-level")
		bindFlag(v, "log::format", flags, "log-format")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindFlag(v *viper.Viper, key string, flags *pflag.FlagSet, name string) {
	if f := flags.Lookup(name); f != nil {
		_ = v.BindPFlag(key, f)
	}
}
