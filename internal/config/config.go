package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	WhatsApp  WhatsAppConfig
	SMTP      SMTPConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Dispatch  DispatchConfig
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig contains JWT authentication configuration
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// WhatsAppConfig contains WhatsApp channel configuration.
// CountryCode and TrunkPrefix drive phone normalization and are
// deployment-region specific.
type WhatsAppConfig struct {
	SessionDir       string
	CountryCode      string
	TrunkPrefix      string
	HandshakeTimeout time.Duration
	SendPacing       time.Duration
	QRSize           int
	DebugQRTerminal  bool
}

// SMTPConfig contains process-level SMTP defaults. Per-tenant settings
// live in the email_settings table and override these.
type SMTPConfig struct {
	DialTimeout time.Duration
	SendPacing  time.Duration
}

// CORSConfig contains CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig contains API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// DispatchConfig contains bulk dispatch configuration
type DispatchConfig struct {
	MaxRecipients int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("APP_PORT", "8080"),
			Env:          getEnv("APP_ENV", "production"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30) * time.Second,
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30) * time.Second,
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120) * time.Second,
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "schoolcomms"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 3600) * time.Second,
		},
		JWT: JWTConfig{
			Secret:   getEnv("JWT_SECRET", ""),
			Issuer:   getEnv("JWT_ISSUER", "school-admin"),
			Audience: getEnv("JWT_AUDIENCE", "schoolcomms"),
		},
		WhatsApp: WhatsAppConfig{
			SessionDir:       getEnv("WA_SESSION_DIR", "./wa-sessions"),
			CountryCode:      getEnv("WA_COUNTRY_CODE", "92"),
			TrunkPrefix:      getEnv("WA_TRUNK_PREFIX", "0"),
			HandshakeTimeout: getEnvDuration("WA_HANDSHAKE_TIMEOUT", 60) * time.Second,
			SendPacing:       getEnvDuration("WA_SEND_PACING", 3) * time.Second,
			QRSize:           getEnvInt("WA_QR_SIZE", 256),
			DebugQRTerminal:  getEnvBool("WA_DEBUG_QR_TERMINAL", false),
		},
		SMTP: SMTPConfig{
			DialTimeout: getEnvDuration("SMTP_DIAL_TIMEOUT", 15) * time.Second,
			SendPacing:  getEnvDuration("SMTP_SEND_PACING", 0) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Dispatch: DispatchConfig{
			MaxRecipients: getEnvInt("DISPATCH_MAX_RECIPIENTS", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.WhatsApp.CountryCode == "" {
		return fmt.Errorf("WA_COUNTRY_CODE is required")
	}

	if c.WhatsApp.HandshakeTimeout < time.Second {
		return fmt.Errorf("WA_HANDSHAKE_TIMEOUT must be at least 1 second")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Server.Port
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return time.Duration(parsed)
		}
	}
	return time.Duration(defaultValue)
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
