package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// config is read from SUBVAULT_* environment variables. A .env file in the
// working directory is loaded first when present.
type config struct {
	HTTP     httpConfig     `envPrefix:"HTTP_"`
	Log      logConfig      `envPrefix:"LOG_"`
	Store    storeConfig    `envPrefix:"STORE_"`
	Treasury treasuryConfig `envPrefix:"TREASURY_"`

	CalendarEpoch     time.Time     `env:"CALENDAR_EPOCH" envDefault:"1970-01-01T00:00:00Z"`
	CalendarDayLength time.Duration `env:"CALENDAR_DAY_LENGTH" envDefault:"24h"`
	RegisterFee       uint64        `env:"PROVIDER_REGISTER_FEE" envDefault:"100"`
	AuditLog          bool          `env:"AUDIT_LOG" envDefault:"true"`
}

type httpConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type logConfig struct {
	Format string `env:"FORMAT" envDefault:"json"`
	Level  string `env:"LEVEL" envDefault:"info"`
}

type storeConfig struct {
	Driver        string `env:"DRIVER" envDefault:"memory"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"subvault.db"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"subvault"`
}

type treasuryConfig struct {
	Driver        string        `env:"DRIVER" envDefault:"memory"`
	Reserve       uint64        `env:"RESERVE" envDefault:"0"`
	RedisURL      string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix   string        `env:"REDIS_PREFIX" envDefault:"subvault"`
	RedisAttempts int           `env:"REDIS_CONNECT_ATTEMPTS" envDefault:"5"`
	RedisInterval time.Duration `env:"REDIS_CONNECT_INTERVAL" envDefault:"2s"`
}

func loadConfig() (config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load() //nolint:errcheck // optional file

	cfg, err := env.ParseAsWithOptions[config](env.Options{Prefix: "SUBVAULT_"})
	if err != nil {
		return config{}, fmt.Errorf("subvaultd: parse config: %w", err)
	}
	if cfg.CalendarDayLength <= 0 {
		return config{}, fmt.Errorf("subvaultd: calendar day length must be positive, got %s", cfg.CalendarDayLength)
	}
	return cfg, nil
}

func newLogger(cfg logConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("subvaultd: log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("subvaultd: unknown log format %q", cfg.Format)
	}
}
