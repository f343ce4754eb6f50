package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kapu/phantom-panel/internal/constants"
)

type Config struct {
	Postgres  PostgresConfig
	Redis     RedisConfig
	Gemini    GeminiConfig
	OpenAI    OpenAIConfig
	Logging   LoggingConfig
	Panel     PanelConfig
	Pricing   PricingConfig
	RateLimit RateLimitConfig
	Progress  ProgressConfig
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EnableFallback bool
}

type LoggingConfig struct {
	Level string
	File  string
}

type PanelConfig struct {
	BatchSize          int
	MinViableResponses int
	MaxFollowUps       int
	MemoryLimit        int
	ArchetypeCacheTTL  time.Duration
}

type PricingConfig struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type ProgressConfig struct {
	WebSocketURL string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "panel"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "phantom_panel"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
			EnableFallback: getEnvBool("OPENAI_ENABLE_FALLBACK", true),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", "logs/panel.log"),
		},
		Panel: PanelConfig{
			BatchSize:          getEnvInt("PANEL_BATCH_SIZE", constants.PanelDefaults.BatchSize),
			MinViableResponses: getEnvInt("PANEL_MIN_RESPONSES", constants.PanelDefaults.MinViableResponses),
			MaxFollowUps:       getEnvInt("PANEL_MAX_FOLLOW_UPS", constants.PanelDefaults.MaxFollowUps),
			MemoryLimit:        getEnvInt("PANEL_MEMORY_LIMIT", constants.PanelDefaults.MemoryLimit),
			ArchetypeCacheTTL:  time.Duration(getEnvInt("ARCHETYPE_CACHE_TTL_SECONDS", int(constants.CacheTTL.Archetype/time.Second))) * time.Second,
		},
		Pricing: PricingConfig{
			InputPerMillion:  getEnvFloat("PRICING_INPUT_PER_MILLION", constants.Pricing.InputPerMillion),
			OutputPerMillion: getEnvFloat("PRICING_OUTPUT_PER_MILLION", constants.Pricing.OutputPerMillion),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("AI_REQUESTS_PER_SECOND", constants.RateLimitConfig.RequestsPerSecond),
			Burst:             getEnvInt("AI_REQUEST_BURST", constants.RateLimitConfig.Burst),
		},
		Progress: ProgressConfig{
			WebSocketURL: getEnv("PROGRESS_WS_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY or OPENAI_API_KEY is required")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.Panel.BatchSize < 1 {
		return fmt.Errorf("PANEL_BATCH_SIZE must be at least 1")
	}
	if c.Panel.MinViableResponses < 1 {
		return fmt.Errorf("PANEL_MIN_RESPONSES must be at least 1")
	}
	if c.Panel.MaxFollowUps < 0 {
		return fmt.Errorf("PANEL_MAX_FOLLOW_UPS must not be negative")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("AI_REQUESTS_PER_SECOND must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
