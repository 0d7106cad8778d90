package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Episode store backends.
const (
	StoreNone     = "none"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Listener
	SimHost      string        `env:"SIM_HOST" default:"0.0.0.0"`
	SimPort      int           `env:"SIM_PORT" default:"9090"`
	AdminPort    int           `env:"ADMIN_PORT" default:"8080"` // 0 disables the admin API
	RelayPort    int           `env:"RELAY_PORT" default:"0"`    // UDP telemetry relay, 0 disables it
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" default:"5s"`

	// Inbound flood protection, frames per second per session
	InboundRateLimit float64 `env:"INBOUND_RATE_LIMIT" default:"200"`
	InboundBurst     int     `env:"INBOUND_BURST" default:"400"`

	// Control session
	LimitFPS     float64       `env:"LIMIT_FPS" default:"21"`
	SteerToAngle float64       `env:"STEER_TO_ANGLE" default:"25"`
	CTEThreshold float64       `env:"CTE_THRESHOLD" default:"2.0"`
	TickRate     time.Duration `env:"TICK_RATE" default:"10ms"`

	// Sandbox behaviour
	AutoStart              bool `env:"AUTO_START" default:"true"`
	SpawnCarsWithClients   bool `env:"SPAWN_CARS_WITH_CLIENTS" default:"true"`
	CreateCarWithoutClient bool `env:"CREATE_CAR_WITHOUT_CLIENT" default:"false"`

	// Authentication; empty leaves sessions open
	AuthSecret string `env:"JWT_SECRET"`
	// Operator login on the admin API; an empty hash disables /auth/login
	OperatorUsername     string        `env:"OPERATOR_USERNAME" default:"operator"`
	OperatorPasswordHash string        `env:"OPERATOR_PASSWORD_HASH"`
	TokenTTL             time.Duration `env:"TOKEN_TTL" default:"24h"`

	// Redis cache of the latest snapshot per session; empty disables it
	RedisURL  string        `env:"REDIS_URL"`
	LatestTTL time.Duration `env:"LATEST_TTL" default:"24h"`

	// Episode log
	EpisodeStore string `env:"EPISODE_STORE" default:"none"`
	DatabaseURL  string `env:"DATABASE_URL"`
	SQLitePath   string `env:"SQLITE_PATH" default:"data/episodes.db"`

	// Files
	DataDir     string `env:"DATA_DIR" default:"data"`
	ProfilePath string `env:"PROFILE_PATH"`

	// Development
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// LoadConfig loads configuration from the environment, after merging a
// .env file from the working directory when there is one.
func LoadConfig() (*Config, error) {
	// a missing .env is fine, the process environment still applies
	_ = godotenv.Load(".env")

	config := &Config{}

	loaders := []func() error{
		func() error { return loadEnvString(&config.GoEnv, "GO_ENV", "development") },

		func() error { return loadEnvString(&config.SimHost, "SIM_HOST", "0.0.0.0") },
		func() error { return loadEnvInt(&config.SimPort, "SIM_PORT", 9090) },
		func() error { return loadEnvInt(&config.AdminPort, "ADMIN_PORT", 8080) },
		func() error { return loadEnvInt(&config.RelayPort, "RELAY_PORT", 0) },
		func() error { return loadEnvDuration(&config.WriteTimeout, "WRITE_TIMEOUT", 5*time.Second) },

		func() error { return loadEnvFloat(&config.InboundRateLimit, "INBOUND_RATE_LIMIT", 200) },
		func() error { return loadEnvInt(&config.InboundBurst, "INBOUND_BURST", 400) },

		func() error { return loadEnvFloat(&config.LimitFPS, "LIMIT_FPS", 21) },
		func() error { return loadEnvFloat(&config.SteerToAngle, "STEER_TO_ANGLE", 25) },
		func() error { return loadEnvFloat(&config.CTEThreshold, "CTE_THRESHOLD", 2.0) },
		func() error { return loadEnvDuration(&config.TickRate, "TICK_RATE", 10*time.Millisecond) },

		func() error { return loadEnvBool(&config.AutoStart, "AUTO_START", true) },
		func() error { return loadEnvBool(&config.SpawnCarsWithClients, "SPAWN_CARS_WITH_CLIENTS", true) },
		func() error { return loadEnvBool(&config.CreateCarWithoutClient, "CREATE_CAR_WITHOUT_CLIENT", false) },

		func() error { return loadEnvString(&config.AuthSecret, "JWT_SECRET", "") },
		func() error { return loadEnvString(&config.OperatorUsername, "OPERATOR_USERNAME", "operator") },
		func() error { return loadEnvString(&config.OperatorPasswordHash, "OPERATOR_PASSWORD_HASH", "") },
		func() error { return loadEnvDuration(&config.TokenTTL, "TOKEN_TTL", 24*time.Hour) },

		func() error { return loadEnvString(&config.RedisURL, "REDIS_URL", "") },
		func() error { return loadEnvDuration(&config.LatestTTL, "LATEST_TTL", 24*time.Hour) },

		func() error { return loadEnvString(&config.EpisodeStore, "EPISODE_STORE", StoreNone) },
		func() error { return loadEnvString(&config.DatabaseURL, "DATABASE_URL", "") },
		func() error { return loadEnvString(&config.SQLitePath, "SQLITE_PATH", "data/episodes.db") },

		func() error { return loadEnvString(&config.DataDir, "DATA_DIR", "data") },
		func() error { return loadEnvString(&config.ProfilePath, "PROFILE_PATH", "") },

		func() error { return loadEnvString(&config.LogLevel, "LOG_LEVEL", "info") },
		func() error { return loadEnvString(&config.LogFormat, "LOG_FORMAT", "text") },
	}
	for _, load := range loaders {
		if err := load(); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.SimPort < 0 || c.SimPort > 65535 {
		errors = append(errors, "SIM_PORT must be between 0 and 65535")
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		errors = append(errors, "ADMIN_PORT must be between 0 and 65535")
	}
	if c.AdminPort != 0 && c.AdminPort == c.SimPort {
		errors = append(errors, "ADMIN_PORT must differ from SIM_PORT")
	}
	if c.RelayPort < 0 || c.RelayPort > 65535 {
		errors = append(errors, "RELAY_PORT must be between 0 and 65535")
	}

	if c.LimitFPS <= 0 {
		errors = append(errors, "LIMIT_FPS must be positive")
	}
	if c.SteerToAngle == 0 {
		errors = append(errors, "STEER_TO_ANGLE must not be zero")
	}
	if c.CTEThreshold <= 0 {
		errors = append(errors, "CTE_THRESHOLD must be positive")
	}
	if c.TickRate <= 0 {
		errors = append(errors, "TICK_RATE must be positive")
	}
	if c.InboundRateLimit < 0 || c.InboundBurst < 0 {
		errors = append(errors, "INBOUND_RATE_LIMIT and INBOUND_BURST must not be negative")
	}

	// Validate JWT secret length when auth is on
	if c.AuthSecret != "" && len(c.AuthSecret) < 32 {
		errors = append(errors, "JWT_SECRET should be at least 32 characters long")
	}
	if c.OperatorPasswordHash != "" && c.AuthSecret == "" {
		errors = append(errors, "OPERATOR_PASSWORD_HASH requires JWT_SECRET")
	}
	if c.TokenTTL < 0 {
		errors = append(errors, "TOKEN_TTL must not be negative")
	}

	validStores := []string{StoreNone, StoreSQLite, StorePostgres}
	if !slices.Contains(validStores, c.EpisodeStore) {
		errors = append(errors, fmt.Sprintf("EPISODE_STORE must be one of: %s", strings.Join(validStores, ", ")))
	}
	if c.EpisodeStore == StorePostgres && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required when EPISODE_STORE is postgres")
	}
	if c.EpisodeStore == StoreSQLite && c.SQLitePath == "" {
		errors = append(errors, "SQLITE_PATH is required when EPISODE_STORE is sqlite")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"text", "json"}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// ListenAddr is the control protocol address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.SimHost, strconv.Itoa(c.SimPort))
}

// AdminAddr is the admin API address, or "" when it is disabled.
func (c *Config) AdminAddr() string {
	if c.AdminPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.SimHost, strconv.Itoa(c.AdminPort))
}

// RelayAddr is the UDP telemetry relay address, or "" when it is disabled.
func (c *Config) RelayAddr() string {
	if c.RelayPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.SimHost, strconv.Itoa(c.RelayPort))
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}
