package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Dispatch DispatchConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string // full DSN; overrides the individual fields when set
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string // redis:// URL; overrides the individual fields when set
	Host     string
	Port     string
	Password string
	DB       int
}

// DispatchConfig holds the matching and assignment pipeline tuning knobs.
type DispatchConfig struct {
	MatchRadiusKm     float64
	AssignmentTTL     time.Duration
	MaxPositionAge    time.Duration
	SettlementDelay   time.Duration
	GeoSweepInterval  time.Duration
	RadiusSearchLimit int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "goride"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Dispatch: DispatchConfig{
			MatchRadiusKm:     getEnvAsFloat("MATCH_RADIUS_KM", 5.0),
			AssignmentTTL:     time.Duration(getEnvAsInt("ASSIGNMENT_TTL_SEC", 10)) * time.Second,
			MaxPositionAge:    time.Duration(getEnvAsInt("MAX_POSITION_AGE_SEC", 300)) * time.Second,
			SettlementDelay:   time.Duration(getEnvAsInt("SETTLEMENT_DELAY_MS", 1000)) * time.Millisecond,
			GeoSweepInterval:  time.Duration(getEnvAsInt("GEO_SWEEP_INTERVAL_SEC", 60)) * time.Second,
			RadiusSearchLimit: getEnvAsInt("RADIUS_SEARCH_LIMIT", 50),
		},
	}

	if cfg.Dispatch.MatchRadiusKm <= 0 {
		return nil, fmt.Errorf("MATCH_RADIUS_KM must be positive")
	}
	if cfg.Dispatch.AssignmentTTL <= 0 {
		return nil, fmt.Errorf("ASSIGNMENT_TTL_SEC must be positive")
	}
	if cfg.Dispatch.MaxPositionAge <= 0 {
		return nil, fmt.Errorf("MAX_POSITION_AGE_SEC must be positive")
	}
	if cfg.Dispatch.RadiusSearchLimit <= 0 {
		cfg.Dispatch.RadiusSearchLimit = 50
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
