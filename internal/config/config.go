package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"smartnotes/internal/logger"
	"smartnotes/internal/ocr"
	"smartnotes/internal/paginate"
)

// Supported OCR providers.
const (
	ProviderYandex       = ocr.ProviderYandex
	ProviderGoogleVision = ocr.ProviderGoogleVision
	ProviderDocumentAI   = ocr.ProviderDocumentAI
)

type Config struct {
	// OCR Configuration
	OCRProvider      string
	OCRLanguages     []string
	OCRRetryAttempts int

	// Yandex Vision OCR
	YandexAPIKey   string
	YandexFolderID string
	YandexOCRURL   string
	YandexOCRModel string

	// Google Cloud Configuration
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// Storage and session
	DatabasePath string
	SessionFile  string

	// Pagination
	MaxCharsPerPage int
	MinFillRatio    float64

	// Assistant
	OpenAIAPIKey string
	OpenAIModel  string

	// Google Sheets export
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

func Load() (*Config, error) {
	config := &Config{
		OCRProvider:           strings.ToLower(getEnv("OCR_PROVIDER", ProviderYandex)),
		OCRLanguages:          splitList(getEnv("OCR_LANGUAGES", "ru,en")),
		YandexAPIKey:          getEnv("YANDEX_API_KEY", ""),
		YandexFolderID:        getEnv("YANDEX_FOLDER_ID", ""),
		YandexOCRURL:          getEnv("YANDEX_OCR_URL", "https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText"),
		YandexOCRModel:        getEnv("YANDEX_OCR_MODEL", "handwritten"),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DatabasePath:          getEnv("DATABASE_PATH", "smartnotes.db"),
		SessionFile:           getEnv("SESSION_FILE", defaultSessionFile()),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GoogleSheetURL:        getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:  getEnv("GOOGLE_SHEET_WORKSHEET", "Notes"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stderr"),
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"OCR_RETRY_ATTEMPTS", 3, &config.OCRRetryAttempts},
		{"MAX_CHARS_PER_PAGE", paginate.DefaultMaxCharsPerPage, &config.MaxCharsPerPage},
		{"LOG_MAX_SIZE_MB", logger.DefaultMaxSizeMB, &config.LogMaxSizeMB},
		{"LOG_MAX_BACKUPS", logger.DefaultMaxBackups, &config.LogMaxBackups},
		{"LOG_MAX_AGE_DAYS", logger.DefaultMaxAgeDays, &config.LogMaxAgeDays},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.fallback)
		if err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		*v.dst = n
	}

	ratio, err := getEnvFloat("MIN_FILL_RATIO", paginate.DefaultMinFillRatio)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.MinFillRatio = ratio

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.OCRProvider {
	case ProviderYandex, ProviderGoogleVision, ProviderDocumentAI:
	default:
		return fmt.Errorf("OCR_PROVIDER must be one of %s, %s, %s (got %q)",
			ProviderYandex, ProviderGoogleVision, ProviderDocumentAI, c.OCRProvider)
	}
	if c.OCRRetryAttempts < 1 {
		return fmt.Errorf("OCR_RETRY_ATTEMPTS must be at least 1")
	}
	if err := c.Paginator().Validate(); err != nil {
		return fmt.Errorf("MAX_CHARS_PER_PAGE/MIN_FILL_RATIO: %w", err)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	return nil
}

// RequireOCR checks the settings needed by the configured OCR provider.
func (c *Config) RequireOCR() error {
	switch c.OCRProvider {
	case ProviderYandex:
		if c.YandexAPIKey == "" {
			return fmt.Errorf("YANDEX_API_KEY is required for the %s OCR provider", ProviderYandex)
		}
	case ProviderDocumentAI:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the %s OCR provider", ProviderDocumentAI)
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the %s OCR provider", ProviderDocumentAI)
		}
	}
	return nil
}

// RequireAssistant checks the settings needed by the summary assistant.
func (c *Config) RequireAssistant() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

// RequireSheets checks the settings needed by the Google Sheets export.
func (c *Config) RequireSheets() error {
	if c.GoogleSheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL is required")
	}
	return nil
}

// Paginator returns the pagination parameters from the config.
func (c *Config) Paginator() paginate.Paginator {
	return paginate.Paginator{
		MaxCharsPerPage: c.MaxCharsPerPage,
		MinFillRatio:    c.MinFillRatio,
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
		Compress:   true,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartnotes-session.yaml"
	}
	return filepath.Join(home, ".smartnotes", "session.yaml")
}
