package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string
	Version     string
	LogLevel    string

	OpenAIKey     string
	OpenAIModel   string
	OpenAITimeout int // OpenAI API timeout in seconds

	EncryptionKey string // secret for encrypting ESP credentials at rest

	BackfillCutoffDays int    // import only campaigns created within the last N days (0 = all)
	ClassifyIntervalMS int    // delay between classification calls in milliseconds
	FetchIntervalMS    int    // delay between ESP history fetches in milliseconds
	ClassifyCategories string // comma-separated category allow-list, empty = default

	ESPTimeout int // ESP API timeout in seconds

	LeadCacheTTL int // lead query cache TTL in seconds (0 disables caching)

	SendGridAPIKey string // SendGrid API key for operator failure alerts
	OperatorEmail  string // address that receives run-failure alerts
	SenderEmail    string // from address for outgoing alerts
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"), // empty selects the default model
		OpenAITimeout: getEnvInt("OPENAI_TIMEOUT", 60),

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),

		BackfillCutoffDays: getEnvInt("BACKFILL_CUTOFF_DAYS", 30),
		ClassifyIntervalMS: getEnvInt("CLASSIFY_INTERVAL_MS", 1000),
		FetchIntervalMS:    getEnvInt("FETCH_INTERVAL_MS", 250),
		ClassifyCategories: os.Getenv("CLASSIFY_CATEGORIES"),

		ESPTimeout: getEnvInt("ESP_TIMEOUT", 30),

		LeadCacheTTL: getEnvInt("LEAD_CACHE_TTL", 60),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		OperatorEmail:  os.Getenv("OPERATOR_EMAIL"),
		SenderEmail:    getEnv("SENDER_EMAIL", "alerts@leadflow.local"),
	}

	return config
}

// Categories parses the classification allow-list. An empty value returns nil
// so callers fall back to their defaults.
func (c *Config) Categories() []string {
	if strings.TrimSpace(c.ClassifyCategories) == "" {
		return nil
	}

	var categories []string
	for _, part := range strings.Split(c.ClassifyCategories, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			categories = append(categories, trimmed)
		}
	}
	return categories
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	// Configure zerolog to output JSON without newlines
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Create logger with JSON output to stdout
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "leadflow").
		Str("version", c.Version).
		Logger()

	// Set log level based on configuration
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
