package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Driver          string // mysql, postgres or sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnectRetries  int
	LogLevel        logger.LogLevel
	SeedDemoData    bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        string
	Env         string
	BaseURL     string
	CORSOrigins []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// CatalogConfig bounds the unit search
type CatalogConfig struct {
	SearchDefaultLimit int
	SearchMaxLimit     int
}

// VisionConfig describes the optional image-recognition sidecar
type VisionConfig struct {
	URL                  string // empty disables camera lookup
	Timeout              time.Duration
	AutoAcceptConfidence float64 // percent
	SuggestionLimit      int
}

// AIConfig holds the store assistant settings
type AIConfig struct {
	APIKey string
	Model  string
}

// Config holds all configuration
type Config struct {
	ServiceName string
	DB          DBConfig
	Server      ServerConfig
	Log         LogConfig
	Catalog     CatalogConfig
	Vision      VisionConfig
	AI          AIConfig
}

// Load reads .env (optional) and the process environment.
func Load(serviceName string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found")
	}

	cfg := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", "mysql")),
			DSN:             getEnv("DB_DSN", ""),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnectRetries:  getEnvAsInt("DB_CONNECT_RETRIES", 5),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
			SeedDemoData:    getEnvAsBool("SEED_DEMO_DATA", false),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Env:         getEnv("APP_ENV", "development"),
			BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
			CORSOrigins: getEnvAsList("CORS_ALLOW_ORIGINS", []string{"http://localhost:5173"}),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Catalog: CatalogConfig{
			SearchDefaultLimit: getEnvAsInt("SEARCH_DEFAULT_LIMIT", 10),
			SearchMaxLimit:     getEnvAsInt("SEARCH_MAX_LIMIT", 50),
		},
		Vision: VisionConfig{
			URL:                  strings.TrimRight(getEnv("VISION_SERVICE_URL", ""), "/"),
			Timeout:              getEnvAsDuration("VISION_TIMEOUT", 10*time.Second),
			AutoAcceptConfidence: getEnvAsFloat("VISION_AUTO_ACCEPT_CONFIDENCE", 75),
			SuggestionLimit:      getEnvAsInt("VISION_SUGGESTION_LIMIT", 5),
		},
		AI: AIConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want mysql, postgres or sqlite)", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required (environment variable or .env)")
	}
	if c.Catalog.SearchDefaultLimit <= 0 || c.Catalog.SearchMaxLimit <= 0 {
		return fmt.Errorf("search limits must be positive")
	}
	if c.Catalog.SearchDefaultLimit > c.Catalog.SearchMaxLimit {
		return fmt.Errorf("SEARCH_DEFAULT_LIMIT %d exceeds SEARCH_MAX_LIMIT %d",
			c.Catalog.SearchDefaultLimit, c.Catalog.SearchMaxLimit)
	}
	if c.Vision.AutoAcceptConfidence < 0 || c.Vision.AutoAcceptConfidence > 100 {
		return fmt.Errorf("VISION_AUTO_ACCEPT_CONFIDENCE must be between 0 and 100")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	switch getEnv(key, "") {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
