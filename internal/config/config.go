// Package config loads and validates the NexusERP configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the ERP_ prefix (e.g., ERP_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs with a
// config.yaml in local development and with pure environment variables in
// containers.
//
// CONFIG_PATH has no prefix; when set it names the YAML file to read.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`

	// v is the Viper instance the config was loaded from. Watch needs it to
	// re-read the file; configs built in code have none.
	v *viper.Viper
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	Environment  string        `mapstructure:"environment"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// TrustedProxies lists the IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means the peer address is always the client IP.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// IsDevelopment reports whether the server runs in the development environment.
func (s *ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(s.Environment, "development")
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	// Driver selects the SQL backend: "postgres" or "sqlite".
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	// Path is the SQLite database file; ignored for postgres.
	Path               string `mapstructure:"path"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the connection used by the shared rate-limiter backends
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Session  SessionConfig  `mapstructure:"session"`
	Password PasswordConfig `mapstructure:"password"`
}

// SessionConfig controls session lifetime and the session cookie
type SessionConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	CookieName string        `mapstructure:"cookie_name"`
	// CookieSecure defaults to true outside the development environment.
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

// PasswordConfig holds credential hashing parameters
type PasswordConfig struct {
	Iterations int `mapstructure:"iterations"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is "memory" (per process) or "redis" (shared across replicas).
	Backend         string          `mapstructure:"backend"`
	CleanupInterval time.Duration   `mapstructure:"cleanup_interval"`
	Login           LoginRateConfig `mapstructure:"login"`
	API             APIRateConfig   `mapstructure:"api"`
}

// LoginRateConfig is the fixed-window gate in front of the login endpoint
type LoginRateConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

// APIRateConfig is the general authenticated API throttle
type APIRateConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	// Enabled determines if audit logging is active
	Enabled bool `mapstructure:"enabled"`
	// LogReadOperations determines if GET requests should be logged
	LogReadOperations bool `mapstructure:"log_read_operations"`
	// LogFailedRequests determines if failed requests (4xx/5xx) should be logged
	LogFailedRequests bool `mapstructure:"log_failed_requests"`
	// File mirrors every persisted entry to a JSON lines file when Path is set
	File AuditFileConfig `mapstructure:"file"`
}

// AuditFileConfig holds the audit file mirror configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	SessionReaper SessionReaperConfig `mapstructure:"session_reaper"`
}

// SessionReaperConfig schedules deletion of expired sessions
type SessionReaperConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Schedule is a robfig/cron spec, e.g. "@every 15m" or "0 * * * *".
	Schedule string `mapstructure:"schedule"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"server.host",
		"server.port",
		"server.base_url",
		"server.environment",
		"server.read_timeout",
		"server.write_timeout",
		"server.trusted_proxies",
		"database.driver",
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.path",
		"database.max_connections",
		"database.min_idle_connections",
		"redis.addr",
		"redis.username",
		"redis.password",
		"redis.db",
		"auth.session.ttl",
		"auth.session.cookie_name",
		"auth.session.cookie_secure",
		"auth.session.lookup_timeout",
		"auth.password.iterations",
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.backend",
		"security.rate_limiting.cleanup_interval",
		"security.rate_limiting.login.max_attempts",
		"security.rate_limiting.login.window",
		"security.rate_limiting.api.requests_per_minute",
		"security.rate_limiting.api.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",
		"logging.level",
		"logging.format",
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"audit.enabled",
		"audit.log_read_operations",
		"audit.log_failed_requests",
		"audit.file.path",
		"audit.file.max_size_mb",
		"audit.file.max_backups",
		"jobs.session_reaper.enabled",
		"jobs.session_reaper.schedule",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/nexus-erp")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.v = v

	// The secure flag follows the environment unless set explicitly.
	if !v.IsSet("auth.session.cookie_secure") {
		cfg.Auth.Session.CookieSecure = !cfg.Server.IsDevelopment()
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.trusted_proxies", []string{})

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "nexus_erp")
	v.SetDefault("database.user", "erp")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.path", "./nexus-erp.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.session.ttl", "24h")
	v.SetDefault("auth.session.cookie_name", "session_token")
	v.SetDefault("auth.session.lookup_timeout", "5s")
	v.SetDefault("auth.password.iterations", 10000)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.rate_limiting.cleanup_interval", "1m")
	v.SetDefault("security.rate_limiting.login.max_attempts", 10)
	v.SetDefault("security.rate_limiting.login.window", "1m")
	v.SetDefault("security.rate_limiting.api.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.api.burst", 10)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "nexus-erp")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_read_operations", false)
	v.SetDefault("audit.log_failed_requests", true)
	v.SetDefault("audit.file.path", "")
	v.SetDefault("audit.file.max_size_mb", 100)
	v.SetDefault("audit.file.max_backups", 5)

	// Job defaults
	v.SetDefault("jobs.session_reaper.enabled", true)
	v.SetDefault("jobs.session_reaper.schedule", "@every 15m")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("invalid server.trusted_proxies entry: %q", p)
		}
	}

	// Validate database
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required when using the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite)", c.Database.Driver)
	}

	// Validate auth
	if c.Auth.Session.TTL <= 0 {
		return fmt.Errorf("auth.session.ttl must be positive")
	}
	if c.Auth.Session.CookieName == "" {
		return fmt.Errorf("auth.session.cookie_name is required")
	}
	if c.Auth.Password.Iterations < 10000 {
		return fmt.Errorf("auth.password.iterations must be at least 10000, got %d", c.Auth.Password.Iterations)
	}

	// Validate rate limiting
	if c.Security.RateLimiting.Enabled {
		rl := c.Security.RateLimiting
		switch rl.Backend {
		case "memory":
		case "redis":
			if c.Redis.Addr == "" {
				return fmt.Errorf("redis.addr is required when the rate limiting backend is redis")
			}
		default:
			return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)", rl.Backend)
		}
		if rl.Login.MaxAttempts < 1 {
			return fmt.Errorf("security.rate_limiting.login.max_attempts must be at least 1")
		}
		if rl.Login.Window <= 0 {
			return fmt.Errorf("security.rate_limiting.login.window must be positive")
		}
		if rl.API.RequestsPerMinute < 1 {
			return fmt.Errorf("security.rate_limiting.api.requests_per_minute must be at least 1")
		}
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	if c.Jobs.SessionReaper.Enabled {
		if c.Jobs.SessionReaper.Schedule == "" {
			return fmt.Errorf("jobs.session_reaper.schedule is required when the session reaper is enabled")
		}
		if _, err := cron.ParseStandard(c.Jobs.SessionReaper.Schedule); err != nil {
			return fmt.Errorf("invalid jobs.session_reaper.schedule: %w", err)
		}
	}

	// Validate logging level
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the driver-specific connection string: a libpq keyword
// string for postgres, the file path for sqlite.
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var watchMu sync.Mutex

// Watch re-reads the config file whenever it changes on disk and passes the
// new logging.level to apply. Invalid levels are logged and ignored. Only
// the log level is hot-reloadable; everything else needs a restart.
func (c *Config) Watch(apply func(level string)) error {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return fmt.Errorf("config was not loaded from a file")
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		c.handleConfigChange(e, apply)
	})
	c.v.WatchConfig()
	return nil
}

func (c *Config) handleConfigChange(e fsnotify.Event, apply func(level string)) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	watchMu.Lock()
	defer watchMu.Unlock()

	if err := c.v.ReadInConfig(); err != nil {
		slog.Warn("failed to re-read config file", "file", e.Name, "error", err)
		return
	}
	level := strings.ToLower(c.v.GetString("logging.level"))
	if level == c.Logging.Level {
		return
	}
	if !validLogLevels[level] {
		slog.Warn("ignoring invalid logging level from config change", "file", e.Name, "level", level)
		return
	}
	slog.Info("config file changed, applying log level", "file", e.Name, "from", c.Logging.Level, "to", level)
	c.Logging.Level = level
	apply(level)
}
