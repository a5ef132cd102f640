package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file - ignore error if file doesn't exist
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Note: .env file not found or could not be loaded: %v\n", err)
	}
}

type Config struct {
	Primary       PrimaryConfig
	Store         StoreConfig
	Engine        EngineConfig
	Provider      ProviderConfig
	Server        ServerConfig
	Redis         RedisConfig
	Observability *ObservabilityConfig
}

type PrimaryConfig struct {
	Env string
}

type StoreConfig struct {
	Path           string
	BackupDir      string
	BackupInterval time.Duration
	MaxBackups     int
	LockTimeout    time.Duration
	LoadRetries    int
}

type EngineConfig struct {
	TotalTimeout        time.Duration
	CallTimeout         time.Duration
	MaxConsecTimeouts   int
	MaxConsecErrors     int
	ShutdownGracePeriod time.Duration
}

type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	MarkupPct   int // flat percentage added on top of the provider quote
	HTTPTimeout time.Duration
}

type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	IdleTimeout        int
	CORSAllowedOrigins []string
	AdminAPIKey        string
}

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
	RateLimit    int64
	RateWindow   time.Duration
}

type ObservabilityConfig struct {
	ServiceName string
	Environment string
	Logging     LoggingConfig
	NewRelic    NewRelicConfig
}

type LoggingConfig struct {
	Level  string
	Format string
}

type NewRelicConfig struct {
	LicenseKey                string
	AppLogForwardingEnabled   bool
	DistributedTracingEnabled bool
	DebugLogging              bool
}

// Helper functions for parsing env vars
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return fallback
}

func (c *ObservabilityConfig) GetLogLevel() string {
	if c.Logging.Level == "" {
		switch c.Environment {
		case "production":
			return "info"
		case "development":
			return "debug"
		default:
			return "info"
		}
	}
	return c.Logging.Level
}

func (c *ObservabilityConfig) IsProduction() bool {
	return c.Environment == "production"
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Primary: PrimaryConfig{
			Env: getEnv("HERMES_ENV", "development"),
		},
		Store: StoreConfig{
			Path:           getEnv("HERMES_STORE_PATH", "data/hermes.json"),
			BackupDir:      getEnv("HERMES_STORE_BACKUP_DIR", ""),
			BackupInterval: getEnvDuration("HERMES_STORE_BACKUP_INTERVAL", 72*time.Hour),
			MaxBackups:     getEnvInt("HERMES_STORE_MAX_BACKUPS", 10),
			LockTimeout:    getEnvDuration("HERMES_STORE_LOCK_TIMEOUT", 30*time.Second),
			LoadRetries:    getEnvInt("HERMES_STORE_LOAD_RETRIES", 3),
		},
		Engine: EngineConfig{
			TotalTimeout:        getEnvDuration("HERMES_ENGINE_TOTAL_TIMEOUT", 600*time.Second),
			CallTimeout:         getEnvDuration("HERMES_ENGINE_CALL_TIMEOUT", 10*time.Second),
			MaxConsecTimeouts:   getEnvInt("HERMES_ENGINE_MAX_CONSEC_TIMEOUTS", 3),
			MaxConsecErrors:     getEnvInt("HERMES_ENGINE_MAX_CONSEC_ERRORS", 5),
			ShutdownGracePeriod: getEnvDuration("HERMES_ENGINE_SHUTDOWN_GRACE", 10*time.Second),
		},
		Provider: ProviderConfig{
			APIKey:      getEnv("HERMES_PROVIDER_API_KEY", ""),
			BaseURL:     getEnv("HERMES_PROVIDER_BASE_URL", "https://api.smspool.net"),
			MarkupPct:   getEnvInt("HERMES_PROVIDER_MARKUP_PCT", 20),
			HTTPTimeout: getEnvDuration("HERMES_PROVIDER_HTTP_TIMEOUT", 15*time.Second),
		},
		Server: ServerConfig{
			Port:               getEnv("HERMES_SERVER_PORT", "8080"),
			ReadTimeout:        getEnvInt("HERMES_SERVER_READ_TIMEOUT", 30),
			WriteTimeout:       getEnvInt("HERMES_SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:        getEnvInt("HERMES_SERVER_IDLE_TIMEOUT", 60),
			CORSAllowedOrigins: getEnvSlice("HERMES_SERVER_CORS_ORIGINS", []string{"*"}),
			AdminAPIKey:        getEnv("HERMES_ADMIN_API_KEY", ""),
		},
		Redis: RedisConfig{
			Address:      getEnv("HERMES_REDIS_ADDRESS", ""),
			Password:     getEnv("HERMES_REDIS_PASSWORD", ""),
			DB:           getEnvInt("HERMES_REDIS_DB", 0),
			PoolSize:     getEnvInt("HERMES_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("HERMES_REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvDuration("HERMES_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("HERMES_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("HERMES_REDIS_WRITE_TIMEOUT", 3*time.Second),
			KeyPrefix:    getEnv("HERMES_REDIS_KEY_PREFIX", "hermes:"),
			RateLimit:    getEnvInt64("HERMES_REDIS_RATE_LIMIT", 10),
			RateWindow:   getEnvDuration("HERMES_REDIS_RATE_WINDOW", time.Minute),
		},
		Observability: &ObservabilityConfig{
			ServiceName: "Hermes",
			Environment: getEnv("HERMES_ENV", "development"),
			Logging: LoggingConfig{
				Level:  getEnv("HERMES_LOG_LEVEL", "debug"),
				Format: getEnv("HERMES_LOG_FORMAT", "console"),
			},
			NewRelic: NewRelicConfig{
				LicenseKey:                getEnv("HERMES_NEWRELIC_LICENSE_KEY", ""),
				AppLogForwardingEnabled:   getEnvBool("HERMES_NEWRELIC_LOG_FORWARDING", true),
				DistributedTracingEnabled: getEnvBool("HERMES_NEWRELIC_DISTRIBUTED_TRACING", true),
				DebugLogging:              getEnvBool("HERMES_NEWRELIC_DEBUG", false),
			},
		},
	}

	// Validate required fields
	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("HERMES_STORE_PATH is required")
	}
	if cfg.Store.MaxBackups < 1 {
		return nil, fmt.Errorf("HERMES_STORE_MAX_BACKUPS must be at least 1")
	}
	if cfg.Engine.TotalTimeout <= 0 {
		return nil, fmt.Errorf("HERMES_ENGINE_TOTAL_TIMEOUT must be positive")
	}
	if cfg.Provider.MarkupPct < 0 {
		return nil, fmt.Errorf("HERMES_PROVIDER_MARKUP_PCT cannot be negative")
	}

	return cfg, nil
}
