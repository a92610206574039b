// Package config provides configuration management for MyBudget+.
// It supports loading configuration from a .env file, environment variables,
// config files, and defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DevJWTSecret is used when no secret is configured outside production.
const DevJWTSecret = "dev-secret-change-in-production"

// Config holds all configuration sections for MyBudget+.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Uploads     UploadsConfig     `mapstructure:"uploads"`
	Backup      BackupConfig      `mapstructure:"backup"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	ReadTimeout    int      `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout   int      `mapstructure:"writeTimeout"` // in seconds
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig holds database connection configuration.
// Driver selects between the embedded SQLite file and PostgreSQL.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// RedisConfig holds the preferences cache connection. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwtSecret"`
	Issuer        string `mapstructure:"issuer"`
	TokenDuration int    `mapstructure:"tokenDuration"` // in seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// UploadsConfig controls where profile pictures are written and served from.
type UploadsConfig struct {
	Dir        string `mapstructure:"dir"`
	PublicPath string `mapstructure:"publicPath"`
	MaxBytes   int64  `mapstructure:"maxBytes"`
}

// BackupConfig controls the automatic per-user data backups.
type BackupConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Dir      string `mapstructure:"dir"`
	Schedule string `mapstructure:"schedule"`
}

// PreferencesConfig tunes the preferences service.
type PreferencesConfig struct {
	RejectUnknownCategories bool `mapstructure:"rejectUnknownCategories"`
	CacheTTL                int  `mapstructure:"cacheTTL"` // in seconds
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TokenDurationTime returns the token duration as a time.Duration.
func (a *AuthConfig) TokenDurationTime() time.Duration {
	return time.Duration(a.TokenDuration) * time.Second
}

// CacheTTLDuration returns the preferences cache TTL.
func (p *PreferencesConfig) CacheTTLDuration() time.Duration {
	return time.Duration(p.CacheTTL) * time.Second
}

func isProduction() bool {
	env := os.Getenv("MYBUDGET_ENV")
	return env == "production" || env == "prod"
}

// detectDefaultLogFormat returns "json" in containers and production, "text" otherwise.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" || isProduction() {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.allowedOrigins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./mybudget.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mybudget")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "mybudget")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Empty URL means use the in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "mybudget")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.issuer", "mybudget")
	v.SetDefault("auth.tokenDuration", 3600)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.publicPath", "/uploads")
	v.SetDefault("uploads.maxBytes", 5*1024*1024)

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.dir", "./backups")
	v.SetDefault("backup.schedule", "@hourly")

	v.SetDefault("preferences.rejectUnknownCategories", false)
	v.SetDefault("preferences.cacheTTL", 600)
}

// Load reads configuration from .env, environment variables, config file, and defaults.
// Environment variables use the prefix MYBUDGET_ with the key path joined by underscores.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MYBUDGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// camelCase keys do not map onto SNAKE_CASE env vars automatically.
	_ = v.BindEnv("database.dbName", "MYBUDGET_DATABASE_DB_NAME")
	_ = v.BindEnv("auth.jwtSecret", "MYBUDGET_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("uploads.maxBytes", "MYBUDGET_UPLOADS_MAX_BYTES")
	_ = v.BindEnv("preferences.rejectUnknownCategories", "MYBUDGET_PREFERENCES_REJECT_UNKNOWN_CATEGORIES")
	_ = v.BindEnv("redis.addr", "MYBUDGET_REDIS_ADDR", "REDIS_ADDR")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mybudget/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks the configuration and reports every problem at once.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the postgres driver")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the postgres driver")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres")
	}

	if cfg.Auth.JWTSecret == "" {
		if isProduction() {
			errs = append(errs, "auth.jwtSecret is required in production")
		} else {
			cfg.Auth.JWTSecret = DevJWTSecret
		}
	}
	if cfg.Auth.TokenDuration <= 0 {
		errs = append(errs, "auth.tokenDuration must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Uploads.MaxBytes <= 0 {
		errs = append(errs, "uploads.maxBytes must be positive")
	}
	if cfg.Backup.Enabled && cfg.Backup.Dir == "" {
		errs = append(errs, "backup.dir is required when backups are enabled")
	}
	if cfg.Preferences.CacheTTL < 0 {
		errs = append(errs, "preferences.cacheTTL must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
