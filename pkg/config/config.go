package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/projectvision/vision/pkg/observability"
)

// Store types
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Audit sinks
const (
	AuditSinkDatabase = "database"
	AuditSinkFile     = "file"
	AuditSinkMemory   = "memory"
	AuditSinkNone     = "none"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Audit         AuditConfig         `yaml:"audit"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig selects and configures the membership store
type DatabaseConfig struct {
	Store           string        `yaml:"store"`
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RedisConfig configures the shared rate limiter. An empty URL disables Redis.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AuthConfig configures bearer token validation
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// AuditConfig configures where audit entries go and how long they are kept
type AuditConfig struct {
	Sinks           []string `yaml:"sinks"`
	FileDir         string   `yaml:"file_dir"`
	RetentionDays   int      `yaml:"retention_days"`
	CleanupSchedule string   `yaml:"cleanup_schedule"`
}

// RateLimitConfig configures the invite creation limit per inviter
type RateLimitConfig struct {
	InviteRequests int           `yaml:"invite_requests"`
	InviteWindow   time.Duration `yaml:"invite_window"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Store:           StoreMemory,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			PoolSize: 10,
		},
		Auth: AuthConfig{
			Issuer: "vision",
		},
		Audit: AuditConfig{
			Sinks:           []string{AuditSinkMemory},
			RetentionDays:   90,
			CleanupSchedule: "0 3 * * *",
		},
		RateLimit: RateLimitConfig{
			InviteRequests: 30,
			InviteWindow:   time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          observability.FormatJSON,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "vision",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig loads defaults, then the YAML file named by VISION_CONFIG_FILE
// if set, then environment overrides
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("VISION_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("VISION_HOST", s.Host)
	s.Port = getEnv("VISION_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("VISION_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("VISION_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("VISION_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("VISION_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.CORSOrigins = getEnvList("VISION_CORS_ORIGINS", s.CORSOrigins)

	d := &c.Database
	d.Store = getEnv("VISION_STORE", d.Store)
	d.URL = getEnv("VISION_POSTGRES_URL", d.URL)
	d.MaxOpenConns = getEnvInt("VISION_POSTGRES_MAX_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("VISION_POSTGRES_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getEnvDuration("VISION_POSTGRES_CONN_LIFETIME", d.ConnMaxLifetime)
	d.AutoMigrate = getEnvBool("VISION_AUTO_MIGRATE", d.AutoMigrate)

	r := &c.Redis
	r.URL = getEnv("VISION_REDIS_URL", r.URL)
	r.Password = getEnv("VISION_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("VISION_REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("VISION_REDIS_POOL_SIZE", r.PoolSize)

	c.Auth.JWTSecret = getEnv("VISION_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getEnv("VISION_JWT_ISSUER", c.Auth.Issuer)

	a := &c.Audit
	a.Sinks = getEnvList("VISION_AUDIT_SINKS", a.Sinks)
	a.FileDir = getEnv("VISION_AUDIT_DIR", a.FileDir)
	a.RetentionDays = getEnvInt("VISION_AUDIT_RETENTION_DAYS", a.RetentionDays)
	a.CleanupSchedule = getEnv("VISION_AUDIT_CLEANUP_SCHEDULE", a.CleanupSchedule)

	c.RateLimit.InviteRequests = getEnvInt("VISION_INVITE_RATE_LIMIT", c.RateLimit.InviteRequests)
	c.RateLimit.InviteWindow = getEnvDuration("VISION_INVITE_RATE_WINDOW", c.RateLimit.InviteWindow)

	o := &c.Observability
	o.LogLevel = getEnv("VISION_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("VISION_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("VISION_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("VISION_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("VISION_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("VISION_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("VISION_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("VISION_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("VISION_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	default:
		return fmt.Errorf("invalid store: %s (must be memory or postgres)", c.Database.Store)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}

	for _, sink := range c.Audit.Sinks {
		switch sink {
		case AuditSinkMemory, AuditSinkNone:
		case AuditSinkDatabase:
			if c.Database.Store != StorePostgres {
				return fmt.Errorf("audit sink %q requires the postgres store", sink)
			}
		case AuditSinkFile:
			if c.Audit.FileDir == "" {
				return fmt.Errorf("audit directory is required for the file sink")
			}
		default:
			return fmt.Errorf("invalid audit sink: %s", sink)
		}
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}
	if _, err := cron.ParseStandard(c.Audit.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid audit cleanup schedule %q: %w", c.Audit.CleanupSchedule, err)
	}

	if c.RateLimit.InviteRequests <= 0 || c.RateLimit.InviteWindow <= 0 {
		return fmt.Errorf("invite rate limit and window must be positive")
	}

	switch c.Observability.LogFormat {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format %q", c.Observability.LogFormat)
	}

	if c.Observability.OTelEnabled {
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// HasAuditSink reports whether sink is configured
func (a AuditConfig) HasAuditSink(sink string) bool {
	for _, s := range a.Sinks {
		if s == sink {
			return true
		}
	}
	return false
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

// getEnvList splits a comma separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
