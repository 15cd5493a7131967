package config

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/text/language"
)

// Config holds all daemon configuration, read from environment variables
// with sensible defaults.
//
// Environment Variables:
// Provider Configuration:
// - PROVIDER_ID: translation provider ("webfree" or "llm", default: webfree)
// - PROVIDER_API_KEY: API key for key-based providers (required for "llm")
// - PROVIDER_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - PROVIDER_MODEL: model name (default: openai/gpt-3.5-turbo)
// - PROVIDER_MAX_TOKENS: max tokens per batch response (default: 2000)
// - PROVIDER_TEMPERATURE: sampling temperature (default: 0.3)
// - PROVIDER_TIMEOUT: request timeout in seconds (default: 30)
//
// Translation Configuration:
// - TARGET_LANGUAGE: BCP-47 target language (default: en)
// - DUAL_SUBTITLE_ENABLED: render a translated line (default: true)
// - AUTO_PAUSE_ENABLED: pause at cue boundaries (default: false)
//
// Cache Configuration:
// - DB_PATH: sqlite database path (default: /app/data/dualsub.db)
// - SUBTITLE_RETENTION_DAYS: work-identity retention (default: 30)
// - WORD_RETENTION_DAYS: word-entry retention (default: 60)
// - EVICTION_CRON_EXPR: eviction sweep schedule (default: 0 4 * * *)
//
// HTTP Configuration:
// - HTTP_ADDR: daemon listen address (default: :8090)
//
// System Configuration:
// - LOG_LEVEL: DEBUG/INFO/WARN/ERROR (default: INFO)
// - SETTINGS_FILE: runtime settings path (default: /app/config/settings.json)

type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Translate TranslateConfig `json:"translate"`
	Cache     CacheConfig     `json:"cache"`
	HTTP      HTTPConfig      `json:"http"`
	System    SystemConfig    `json:"system"`
}

// ProviderConfig holds the configuration for the translation provider.
// Key-based providers speak the OpenAI-compatible chat API.
type ProviderConfig struct {
	ID          string  `json:"id"`
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
}

type TranslateConfig struct {
	TargetLanguage      language.Tag `json:"target_language"`
	DualSubtitleEnabled bool         `json:"dual_subtitle_enabled"`
	AutoPauseEnabled    bool         `json:"auto_pause_enabled"`
}

type CacheConfig struct {
	DBPath                string `json:"db_path"`
	SubtitleRetentionDays int    `json:"subtitle_retention_days"`
	WordRetentionDays     int    `json:"word_retention_days"`
	EvictionCronExpr      string `json:"eviction_cron_expr"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type SystemConfig struct {
	LogLevel string `json:"log_level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	targetLang, err := language.Parse(getEnvString("TARGET_LANGUAGE", "en"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_LANGUAGE: %w", err)
	}

	config := &Config{
		Provider: ProviderConfig{
			ID:          getEnvString("PROVIDER_ID", "webfree"),
			APIKey:      getEnvString("PROVIDER_API_KEY", ""),
			APIURL:      getEnvString("PROVIDER_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("PROVIDER_MODEL", "openai/gpt-3.5-turbo"),
			MaxTokens:   getEnvInt("PROVIDER_MAX_TOKENS", 2000),
			Temperature: getEnvFloat("PROVIDER_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("PROVIDER_TIMEOUT", 30),
		},
		Translate: TranslateConfig{
			TargetLanguage:      targetLang,
			DualSubtitleEnabled: getEnvBool("DUAL_SUBTITLE_ENABLED", true),
			AutoPauseEnabled:    getEnvBool("AUTO_PAUSE_ENABLED", false),
		},
		Cache: CacheConfig{
			DBPath:                getEnvString("DB_PATH", "/app/data/dualsub.db"),
			SubtitleRetentionDays: getEnvInt("SUBTITLE_RETENTION_DAYS", 30),
			WordRetentionDays:     getEnvInt("WORD_RETENTION_DAYS", 60),
			EvictionCronExpr:      getEnvString("EVICTION_CRON_EXPR", "0 4 * * *"),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8090"),
		},
		System: SystemConfig{
			LogLevel: getEnvString("LOG_LEVEL", "INFO"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Provider.ID == "" {
		return fmt.Errorf("PROVIDER_ID is required")
	}
	if c.Provider.ID != "webfree" && c.Provider.APIKey == "" {
		return fmt.Errorf("PROVIDER_API_KEY is required for provider %q", c.Provider.ID)
	}
	if c.Cache.SubtitleRetentionDays <= 0 || c.Cache.WordRetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
