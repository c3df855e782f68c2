// Package config provides configuration loading for the billing engine.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	BackendRedis   = "redis"
	BackendDB      = "database"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // dev, staging, prod
	PublicURL    string        `mapstructure:"public_url"`
	// AllowedOrigins lists browser origins allowed by CORS.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// IsProduction reports whether the server runs in the prod environment.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the PostgreSQL URL used by the migration runner.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// SQLiteConfig holds the embedded database configuration.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig selects the backends of the stores.
type StorageConfig struct {
	// Driver is the database for plans and subscriptions: postgres or sqlite.
	Driver string `mapstructure:"driver"`
	// UsageBackend is database or redis.
	UsageBackend string `mapstructure:"usage_backend"`
	// LedgerBackend stores webhook dedup markers: database or redis.
	LedgerBackend string `mapstructure:"ledger_backend"`
	// UsageRetention is the TTL of redis usage counters.
	UsageRetention time.Duration `mapstructure:"usage_retention"`
	// LedgerRetention is the TTL of redis webhook dedup markers.
	LedgerRetention time.Duration `mapstructure:"ledger_retention"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StripeConfig holds billing provider credentials.
type StripeConfig struct {
	SecretKey      string `mapstructure:"secret_key"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	PublishableKey string `mapstructure:"publishable_key"`
}

// CatalogConfig controls the plan catalog cache.
type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	SeedFile string        `mapstructure:"seed_file"`
}

// AuthConfig holds service-to-service authentication settings. End-user
// authentication happens upstream.
type AuthConfig struct {
	// ServiceTokenHash is the bcrypt hash of the token internal services
	// present as a bearer token.
	ServiceTokenHash string `mapstructure:"service_token_hash"`
	// AdminTokenHash is the bcrypt hash of the admin bearer token.
	AdminTokenHash string `mapstructure:"admin_token_hash"`
	// CustomerHeader carries the authenticated customer id.
	CustomerHeader string `mapstructure:"customer_header"`
}

// NotifyConfig selects where customer notifications are published.
type NotifyConfig struct {
	Driver  string `mapstructure:"driver"` // log, redis
	Channel string `mapstructure:"channel"`
}

// RateLimitConfig holds API rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	BurstSize         int  `mapstructure:"burst_size"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	// A local .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/flowai")

	return load(v)
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("FLOWAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Secrets are bound explicitly so they resolve without a config file.
	_ = v.BindEnv("stripe.secret_key", "FLOWAI_STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY")
	_ = v.BindEnv("stripe.webhook_secret", "FLOWAI_STRIPE_WEBHOOK_SECRET", "STRIPE_WEBHOOK_SECRET")
	_ = v.BindEnv("stripe.publishable_key", "FLOWAI_STRIPE_PUBLISHABLE_KEY")
	_ = v.BindEnv("database.password", "FLOWAI_DATABASE_PASSWORD")
	_ = v.BindEnv("redis.password", "FLOWAI_REDIS_PASSWORD")
	_ = v.BindEnv("auth.service_token_hash", "FLOWAI_AUTH_SERVICE_TOKEN_HASH")
	_ = v.BindEnv("auth.admin_token_hash", "FLOWAI_AUTH_ADMIN_TOKEN_HASH")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option values that have a fixed set of choices.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("config: storage.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Storage.Driver)
	}
	for name, backend := range map[string]string{
		"storage.usage_backend":  c.Storage.UsageBackend,
		"storage.ledger_backend": c.Storage.LedgerBackend,
	} {
		if backend != BackendDB && backend != BackendRedis {
			return fmt.Errorf("config: %s must be %q or %q, got %q", name, BackendDB, BackendRedis, backend)
		}
	}
	if c.Notify.Driver != "log" && c.Notify.Driver != BackendRedis {
		return fmt.Errorf("config: notify.driver must be \"log\" or %q, got %q", BackendRedis, c.Notify.Driver)
	}
	if c.Server.IsProduction() && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("config: stripe.webhook_secret is required in production")
	}
	return nil
}

// NeedsRedis reports whether any configured component uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.Storage.UsageBackend == BackendRedis ||
		c.Storage.LedgerBackend == BackendRedis ||
		c.Notify.Driver == BackendRedis ||
		c.RateLimit.Enabled
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.public_url", "http://localhost:3000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "flowai")
	v.SetDefault("database.password", "flowai")
	v.SetDefault("database.database", "flowai")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("sqlite.path", "./data/billing.db")

	// Storage defaults
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("storage.usage_backend", BackendDB)
	v.SetDefault("storage.ledger_backend", BackendDB)
	v.SetDefault("storage.usage_retention", "9600h") // ~13 months
	v.SetDefault("storage.ledger_retention", "720h")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("catalog.cache_ttl", "30s")
	v.SetDefault("catalog.seed_file", "")

	v.SetDefault("auth.customer_header", "X-Customer-ID")

	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.channel", "billing.notifications")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 600)
	v.SetDefault("ratelimit.burst_size", 100)

	v.SetDefault("log.level", "info")
}
