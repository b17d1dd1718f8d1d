package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/fuelops/pkg/httputil"
	"github.com/platinummonkey/fuelops/pkg/observability"
)

// DefaultPassword is the password given to accounts provisioned by an
// administrator when DEFAULT_PASSWORD is unset
const DefaultPassword = "angel123"

// Identity drivers
const (
	IdentityDriverGoTrue = "gotrue"
	IdentityDriverMemory = "memory"
)

var (
	// ErrMissingServiceRoleKey is returned when the gotrue driver has no privileged key
	ErrMissingServiceRoleKey = errors.New("SUPABASE_SERVICE_ROLE_KEY is required")
	// ErrMissingIdentityURL is returned when the gotrue driver has no project URL
	ErrMissingIdentityURL = errors.New("SUPABASE_URL is required")
	// ErrMissingAnonKey is returned when the gotrue driver has no anonymous key
	ErrMissingAnonKey = errors.New("SUPABASE_ANON_KEY is required")
)

// Config holds all application configuration
type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Identity      IdentityConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Audit         AuditConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// SiteURL is the public base URL of the web app, used for reset links
	SiteURL     string
	CORSOrigins []string
	// TrustedProxies are the CIDRs whose X-Forwarded-For is believed
	TrustedProxies []string
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Timeout  time.Duration
}

// RedisConfig holds Redis settings; an empty URL disables Redis
type RedisConfig struct {
	URL string
}

// IdentityConfig holds identity provider settings
type IdentityConfig struct {
	Driver         string
	URL            string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
	Timeout        time.Duration
	// DefaultPassword is used for administratively provisioned accounts
	DefaultPassword string
}

// UsingDefaultPassword reports whether the built-in default password is in effect
func (c IdentityConfig) UsingDefaultPassword() bool {
	return c.DefaultPassword == DefaultPassword
}

// RateLimitConfig holds throttling settings
type RateLimitConfig struct {
	LoginLimit  int
	LoginWindow time.Duration
	// APIRate is the sustained per-client request rate for /api routes
	APIRate  float64
	APIBurst int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64

	SentryDSN string
}

// AuditConfig holds audit log settings; an empty Path logs to stdout
type AuditConfig struct {
	Path string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("APP_ENV", "development"),
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         RedisConfig{URL: getEnv("REDIS_URL", "")},
		Identity:      loadIdentityConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
		Audit:         AuditConfig{Path: getEnv("AUDIT_LOG_PATH", "")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		SiteURL:         strings.TrimRight(getEnvFirst([]string{"SITE_URL", "NEXT_PUBLIC_SITE_URL"}, "http://localhost:3000"), "/"),
		CORSOrigins:     getEnvList("CORS_ORIGINS"),
		TrustedProxies:  getEnvList("TRUSTED_PROXIES"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:      getEnv("DATABASE_URL", ""),
		MaxConns: getEnvInt("DB_MAX_CONNS", 20),
		MinConns: getEnvInt("DB_MIN_CONNS", 2),
		Timeout:  getEnvDuration("DB_TIMEOUT", 10*time.Second),
	}
}

func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Driver:          strings.ToLower(getEnv("IDENTITY_DRIVER", IdentityDriverGoTrue)),
		URL:             getEnvFirst([]string{"SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"}, ""),
		AnonKey:         getEnvFirst([]string{"SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY"}, ""),
		ServiceRoleKey:  getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		JWTSecret:       getEnv("SUPABASE_JWT_SECRET", ""),
		Timeout:         getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		DefaultPassword: getEnv("DEFAULT_PASSWORD", DefaultPassword),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		LoginLimit:  getEnvInt("LOGIN_RATE_LIMIT", 10),
		LoginWindow: getEnvDuration("LOGIN_RATE_WINDOW", time.Minute),
		APIRate:     getEnvFloat("API_RATE_LIMIT", 20),
		APIBurst:    getEnvInt("API_RATE_BURST", 40),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "fuelops"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	switch c.Identity.Driver {
	case IdentityDriverGoTrue:
		if c.Identity.URL == "" {
			return ErrMissingIdentityURL
		}
		if c.Identity.AnonKey == "" {
			return ErrMissingAnonKey
		}
		if c.Identity.ServiceRoleKey == "" {
			return ErrMissingServiceRoleKey
		}
	case IdentityDriverMemory:
	default:
		return fmt.Errorf("invalid identity driver: %s (must be gotrue or memory)", c.Identity.Driver)
	}
	if c.Identity.DefaultPassword == "" {
		return fmt.Errorf("DEFAULT_PASSWORD must not be empty")
	}

	if c.RateLimit.LoginLimit <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must be positive")
	}
	if c.RateLimit.LoginWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_WINDOW must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFirst returns the first set variable among keys, or a default
func getEnvFirst(keys []string, defaultValue string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
