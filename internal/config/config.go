package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingJWTSecret is returned outside development when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("JWT_SECRET environment variable is required in non-development environments")

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
}

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Pricing     PricingConfig   `mapstructure:"pricing"`
	Session     SessionConfig   `mapstructure:"session"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Security    SecurityConfig  `mapstructure:"security"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// PricingConfig configures the client of the remote pricing service.
type PricingConfig struct {
	ServiceURL      string        `mapstructure:"service_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	Burst           int           `mapstructure:"burst"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// SessionConfig controls presentation sessions served over HTTP.
type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	RecentTickers int           `mapstructure:"recent_tickers"`
	SummaryTTL    time.Duration `mapstructure:"summary_ttl"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	DatabaseURL     string        `mapstructure:"database_url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SecurityConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	SessionTokenTTL time.Duration `mapstructure:"session_token_ttl"`
	AdminAPIKey     string        `mapstructure:"admin_api_key" json:"-" yaml:"-"`
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Exporter       string `mapstructure:"exporter"`
}

// IsDevelopment reports whether the normalized environment is development.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind specific environment variables
	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := viper.BindEnv("security.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}
	if err := viper.BindEnv("database.database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(strings.TrimSpace(config.Environment))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if !c.IsDevelopment() && c.Security.JWTSecret == "" {
		return ErrMissingJWTSecret
	}

	u, err := url.Parse(c.Pricing.ServiceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Key: "pricing.service_url", Reason: fmt.Sprintf("%q is not an absolute URL", c.Pricing.ServiceURL)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Key: "pricing.service_url", Reason: "scheme must be http or https"}
	}

	positive := []struct {
		key string
		val time.Duration
	}{
		{"pricing.timeout", c.Pricing.Timeout},
		{"pricing.breaker_timeout", c.Pricing.BreakerTimeout},
		{"session.idle_timeout", c.Session.IdleTimeout},
		{"session.sweep_interval", c.Session.SweepInterval},
		{"security.session_token_ttl", c.Security.SessionTokenTTL},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return &ValidationError{Key: p.key, Reason: "must be a positive duration"}
		}
	}

	switch {
	case c.Pricing.RateLimit < 0:
		return &ValidationError{Key: "pricing.rate_limit", Reason: "must not be negative"}
	case c.Pricing.MaxRetries < 0:
		return &ValidationError{Key: "pricing.max_retries", Reason: "must not be negative"}
	case c.Pricing.BreakerFailures <= 0:
		return &ValidationError{Key: "pricing.breaker_failures", Reason: "must be positive"}
	case c.Session.RecentTickers <= 0:
		return &ValidationError{Key: "session.recent_tickers", Reason: "must be positive"}
	}

	switch c.Telemetry.Exporter {
	case "otlp", "stdout":
	default:
		return &ValidationError{Key: "telemetry.exporter", Reason: fmt.Sprintf("unknown exporter %q", c.Telemetry.Exporter)}
	}
	return nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "0s")

	// Pricing service
	viper.SetDefault("pricing.service_url", "http://localhost:8000")
	viper.SetDefault("pricing.timeout", "30s")
	viper.SetDefault("pricing.rate_limit", 5.0)
	viper.SetDefault("pricing.burst", 5)
	viper.SetDefault("pricing.max_retries", 2)
	viper.SetDefault("pricing.retry_backoff", "250ms")
	viper.SetDefault("pricing.breaker_failures", 5)
	viper.SetDefault("pricing.breaker_timeout", "30s")

	// Sessions
	viper.SetDefault("session.idle_timeout", "30m")
	viper.SetDefault("session.sweep_interval", "1m")
	viper.SetDefault("session.recent_tickers", 10)
	viper.SetDefault("session.summary_ttl", "24h")

	// Set database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "optionscope")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.session_token_ttl", "12h")
	viper.SetDefault("security.admin_api_key", "")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "optionscope")
	viper.SetDefault("telemetry.service_version", "1.0.0")
	viper.SetDefault("telemetry.exporter", "otlp")
}
