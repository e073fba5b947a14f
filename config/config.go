package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreBackendPostgREST = "postgrest"
	StoreBackendPostgres  = "postgres"
	StoreBackendMemory    = "memory"
)

// Audit sinks
const (
	AuditSinkLog      = "log"
	AuditSinkMemory   = "memory"
	AuditSinkPostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Privy         PrivyConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	CORS          CORSConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// StoreConfig selects and configures the secret store backend
type StoreConfig struct {
	Backend       string
	URL           string // PostgREST base URL (SUPABASE_URL)
	ServiceKey    string // sent as apikey and bearer token
	Table         string
	Timeout       time.Duration
	EncryptionKey string // base64, 32 bytes once decoded
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds authenticator and token issuer settings
type AuthConfig struct {
	JWTSecret          string
	JWTAlgorithm       string
	APITokenHeader     string
	JWTHeader          string
	CacheTTL           time.Duration
	CacheSize          int
	CacheSweepInterval time.Duration // 0 disables the background sweep
	RequiredScopes     []string
	Skip               bool
	AllowUnguarded     bool
	SessionTokenTTL    time.Duration
	RefreshTokenTTL    time.Duration
}

// PrivyConfig holds the external auth provider settings
type PrivyConfig struct {
	AppID     string
	APIKey    string // fallback when the secret store has no PRIVY_API_KEY
	BaseURL   string
	CreatorID string // tenant whose PRIVY_API_KEY secret is used
	Timeout   time.Duration
}

// AuditConfig controls the auth audit trail
type AuditConfig struct {
	Enabled    bool
	Sink       string
	Workers    int
	BufferSize int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// CORSConfig holds allowed browser origins for the session endpoints
type CORSConfig struct {
	AllowedOrigins []string
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgREST)),
			URL:           strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
			ServiceKey:    getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			Table:         getEnv("SECRETS_TABLE", "secrets"),
			Timeout:       getEnvAsDuration("STORE_TIMEOUT", 10*time.Second),
			EncryptionKey: getEnv("SECRETS_ENCRYPTION_KEY", ""),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", ""),
			JWTAlgorithm:       strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256")),
			APITokenHeader:     getEnv("AUTH_API_TOKEN_HEADER", "X-API-Token"),
			JWTHeader:          getEnv("AUTH_JWT_HEADER", "Authorization"),
			CacheTTL:           getEnvAsDuration("AUTH_CACHE_TTL", 5*time.Minute),
			CacheSize:          getEnvAsInt("AUTH_CACHE_SIZE", 10000),
			CacheSweepInterval: getEnvAsDuration("AUTH_CACHE_SWEEP_INTERVAL", time.Minute),
			RequiredScopes:     getEnvAsList("AUTH_REQUIRED_SCOPES", nil),
			Skip:               getEnvAsBool("AUTH_SKIP", false),
			AllowUnguarded:     getEnvAsBool("AUTH_ALLOW_UNGUARDED", false),
			SessionTokenTTL:    getEnvAsDuration("SESSION_TOKEN_TTL", time.Hour),
			RefreshTokenTTL:    getEnvAsDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		},
		Privy: PrivyConfig{
			AppID:     getEnv("PRIVY_APP_ID", ""),
			APIKey:    getEnv("PRIVY_API_KEY", ""),
			BaseURL:   strings.TrimRight(getEnv("PRIVY_BASE_URL", "https://auth.privy.io/api/v1"), "/"),
			CreatorID: getEnv("PRIVY_CREATOR_ID", ""),
			Timeout:   getEnvAsDuration("PRIVY_TIMEOUT", 10*time.Second),
		},
		Audit: AuditConfig{
			Enabled:    getEnvAsBool("AUDIT_ENABLED", true),
			Sink:       strings.ToLower(getEnv("AUDIT_SINK", AuditSinkLog)),
			Workers:    getEnvAsInt("AUDIT_WORKERS", 2),
			BufferSize: getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendPostgREST:
		if c.Store.URL == "" || c.Store.ServiceKey == "" {
			return fmt.Errorf("postgrest store requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	case StoreBackendPostgres:
		if err := c.Database.validate(); err != nil {
			return err
		}
	case StoreBackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}

	switch c.Auth.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported JWT algorithm %q", c.Auth.JWTAlgorithm)
	}

	if c.Auth.CacheSize <= 0 {
		return fmt.Errorf("auth cache size must be positive")
	}

	if c.IsProduction() {
		if c.Auth.Skip {
			return fmt.Errorf("AUTH_SKIP cannot be enabled in production")
		}
		if c.Auth.AllowUnguarded {
			return fmt.Errorf("AUTH_ALLOW_UNGUARDED cannot be enabled in production")
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT secret is required in production")
		}
		if c.Store.EncryptionKey == "" {
			return fmt.Errorf("secrets encryption key is required in production")
		}
	}

	switch c.Audit.Sink {
	case AuditSinkLog, AuditSinkMemory:
	case AuditSinkPostgres:
		if err := c.Database.validate(); err != nil {
			return fmt.Errorf("postgres audit sink: %w", err)
		}
	default:
		return fmt.Errorf("unknown audit sink %q", c.Audit.Sink)
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

func (c *DatabaseConfig) validate() error {
	if c.ConnectionString == "" && c.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.ConnectionString == "" {
		if c.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// NeedsDatabase reports whether any component talks to PostgreSQL directly
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend == StoreBackendPostgres || (c.Audit.Enabled && c.Audit.Sink == AuditSinkPostgres)
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "mcp"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
