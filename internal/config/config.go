package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Illustrative bracket table used when TAX_BRACKETS is not set.
const defaultTaxBrackets = `[
	{"low": "0", "high": "5000", "rate": "0"},
	{"low": "5000", "high": "10000", "rate": "0.10"},
	{"low": "10000", "rate": "0.20"}
]`

type Config struct {
	Database DatabaseConfig
	JWT      JWTConfig
	App      AppConfig
	Payroll  PayrollConfig
	SMTP     SMTPConfig
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port               int
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
}

// PayrollConfig holds statutory rates and run settings
type PayrollConfig struct {
	Tax        payroll.TaxConfig
	RunWorkers int
	// AutoRunDay is the day of month from which the scheduler generates the
	// current period for all active employees. 0 disables scheduled runs.
	AutoRunDay int
}

// SMTPConfig holds the outgoing mail server. An empty Host disables sending.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
		slog.Info("No .env file found, using process environment")
	}

	config := &Config{}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:        getEnv("DB_HOST", "localhost"),
		Port:        dbPort,
		User:        getEnv("DB_USER", "postgres"),
		Password:    getEnv("DB_PASSWORD", ""),
		Name:        getEnv("DB_NAME", "payroll"),
		SSLMode:     getEnv("DB_SSL_MODE", "disable"),
		AutoMigrate: getEnv("DB_AUTO_MIGRATE", "false") == "true",
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:               appPort,
		Env:                getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS"),
	}

	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_TOKEN_EXPIRATION", "15m"),
	}

	// Payroll configuration
	flatRate, err := decimal.NewFromString(getEnv("TAX_FLAT_RATE", "0.055"))
	if err != nil {
		return nil, fmt.Errorf("invalid TAX_FLAT_RATE: %w", err)
	}

	var brackets []payroll.TaxBracket
	if err := json.Unmarshal([]byte(getEnv("TAX_BRACKETS", defaultTaxBrackets)), &brackets); err != nil {
		return nil, fmt.Errorf("invalid TAX_BRACKETS: %w", err)
	}

	workers, err := strconv.Atoi(getEnv("PAYROLL_RUN_WORKERS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_RUN_WORKERS: %w", err)
	}

	autoRunDay, err := strconv.Atoi(getEnv("PAYROLL_AUTO_RUN_DAY", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_AUTO_RUN_DAY: %w", err)
	}

	config.Payroll = PayrollConfig{
		Tax:        payroll.TaxConfig{FlatRate: flatRate, Brackets: brackets},
		RunWorkers: workers,
		AutoRunDay: autoRunDay,
	}

	// SMTP configuration
	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	config.SMTP = SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     smtpPort,
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", "payroll@localhost"),
		FromName: getEnv("SMTP_FROM_NAME", "Payroll"),
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.Payroll.RunWorkers < 1 {
		return fmt.Errorf("PAYROLL_RUN_WORKERS must be at least 1")
	}
	if c.Payroll.AutoRunDay < 0 || c.Payroll.AutoRunDay > 28 {
		return fmt.Errorf("PAYROLL_AUTO_RUN_DAY must be between 0 and 28")
	}
	if err := c.Payroll.Tax.Validate(); err != nil {
		return fmt.Errorf("TAX_FLAT_RATE/TAX_BRACKETS: %w", err)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}
