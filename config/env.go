package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Redis   RedisConfig
	DB      DBConfig
	Auth    AuthConfig
	Server  ServerConfig
	Program ProgramConfig
}

type DBConfig struct {
	Driver   string
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret string
}

type ServerConfig struct {
	HTTPPort             string
	GRPCPort             string
	Environment          string
	AppURL               string
	WebhookSecret        string
	AllowedRedirectHosts []string
}

// ProgramConfig holds the affiliate program rules.
type ProgramConfig struct {
	DefaultCommissionRate decimal.Decimal
	MinimumPayout         decimal.Decimal
	AttributionWindow     time.Duration
	SessionTTL            time.Duration
	DedupWindow           time.Duration
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		DB: DBConfig{
			Driver:   getEnv("STORE_DRIVER", DriverPostgres),
			DSN:      getEnv("AFFILIATE_DSN", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "affiliates"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "change-me"),
		},
		Server: ServerConfig{
			HTTPPort:             getEnv("HTTP_PORT", "8080"),
			GRPCPort:             getEnv("GRPC_PORT", "50054"),
			Environment:          getEnv("APP_ENV", "development"),
			AppURL:               strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
			WebhookSecret:        getEnv("CONVERSION_WEBHOOK_SECRET", ""),
			AllowedRedirectHosts: getEnvList("ALLOWED_REDIRECT_HOSTS"),
		},
		Program: ProgramConfig{
			DefaultCommissionRate: getEnvDecimal("DEFAULT_COMMISSION_RATE", "0.30"),
			MinimumPayout:         getEnvDecimal("MINIMUM_PAYOUT", "50"),
			AttributionWindow:     getEnvDuration("ATTRIBUTION_WINDOW", 30*24*time.Hour),
			SessionTTL:            getEnvDuration("SESSION_TTL", 24*time.Hour),
			DedupWindow:           getEnvDuration("CLICK_DEDUP_WINDOW", time.Hour),
		},
	}
}

// DefaultProgram returns the program rules used when nothing is configured.
func DefaultProgram() ProgramConfig {
	return ProgramConfig{
		DefaultCommissionRate: decimal.RequireFromString("0.30"),
		MinimumPayout:         decimal.NewFromInt(50),
		AttributionWindow:     30 * 24 * time.Hour,
		SessionTTL:            24 * time.Hour,
		DedupWindow:           time.Hour,
	}
}

// ConnectionString returns AFFILIATE_DSN when set, otherwise a DSN built from the parts.
func (c DBConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (c ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Invalid duration for %s (%q), using %s", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	raw := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("Invalid decimal for %s (%q), using %s", key, raw, defaultValue)
		return decimal.RequireFromString(defaultValue)
	}
	return d
}
