package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/contractops/msa-extractor/constants"
)

// Config holds all application configuration. It is built once at process
// start and handed to constructors; components receive only the sub-struct
// they need.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Extraction ExtractionConfig
	Preprocess PreprocessConfig
	Retry      RetryConfig
	LLM        LLMConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr                     string
	MaxUploadBytes           int64
	MaxConcurrentExtractions int
	APIKey                   string // empty disables auth
	UploadsDir               string
	CleanupUploadDays        int
	CleanupUploadMaxCount    int
	CleanupJobDays           int
}

// DatabaseConfig holds the SQLite job store settings.
type DatabaseConfig struct {
	Path string
}

// ExtractionConfig holds pipeline routing settings.
type ExtractionConfig struct {
	Method         constants.ExtractionMethod
	Mode           constants.LLMMode
	OCREngine      constants.OCREngine
	RenderDPI      int
	MaxTextLength  int
	MaxFieldLength int
}

// PreprocessConfig toggles individual OCR preprocessing stages.
type PreprocessConfig struct {
	Enabled  bool
	Deskew   bool
	Denoise  bool
	Enhance  bool
	Binarize bool
}

// RetryConfig bounds LLM call retries.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// LLMConfig holds the LLM transport settings.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	VisionModel string
	Temperature float32
	Timeout     time.Duration
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is honored when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	method, err := constants.ParseExtractionMethod(getEnv("EXTRACTION_METHOD", string(constants.MethodHybrid)))
	if err != nil {
		return nil, ConfigError(err.Error(), map[string]any{"setting": "EXTRACTION_METHOD"})
	}
	mode, err := constants.ParseLLMMode(getEnv("LLM_PROCESSING_MODE", string(constants.ModeMultimodal)))
	if err != nil {
		return nil, ConfigError(err.Error(), map[string]any{"setting": "LLM_PROCESSING_MODE"})
	}
	engine, err := constants.ParseOCREngine(getEnv("OCR_ENGINE", string(constants.EngineTesseract)))
	if err != nil {
		return nil, ConfigError(err.Error(), map[string]any{"setting": "OCR_ENGINE"})
	}

	return &Config{
		Server: ServerConfig{
			Addr:                     getEnv("HTTP_ADDR", ":8000"),
			MaxUploadBytes:           int64(getEnvAsInt("MAX_UPLOAD_SIZE_MB", 25)) * 1024 * 1024,
			MaxConcurrentExtractions: getEnvAsInt("MAX_CONCURRENT_EXTRACTIONS", 5),
			APIKey:                   getEnv("API_KEY", ""),
			UploadsDir:               getEnv("UPLOADS_DIR", "./uploads"),
			CleanupUploadDays:        getEnvAsInt("CLEANUP_UPLOAD_DAYS", 7),
			CleanupUploadMaxCount:    getEnvAsInt("CLEANUP_UPLOAD_MAX_COUNT", 1000),
			CleanupJobDays:           getEnvAsInt("CLEANUP_JOB_DAYS", 30),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./storage/msa_extractor.db"),
		},
		Extraction: ExtractionConfig{
			Method:         method,
			Mode:           mode,
			OCREngine:      engine,
			RenderDPI:      getEnvAsInt("RENDER_DPI", 300),
			MaxTextLength:  getEnvAsInt("MAX_TEXT_LENGTH", 50000),
			MaxFieldLength: getEnvAsInt("MAX_FIELD_LENGTH", 1000),
		},
		Preprocess: PreprocessConfig{
			Enabled:  getEnvAsBool("ENABLE_IMAGE_PREPROCESSING", true),
			Deskew:   getEnvAsBool("ENABLE_DESKEW", true),
			Denoise:  getEnvAsBool("ENABLE_DENOISE", true),
			Enhance:  getEnvAsBool("ENABLE_ENHANCE", true),
			Binarize: getEnvAsBool("ENABLE_BINARIZE", true),
		},
		Retry: RetryConfig{
			MaxRetries:   getEnvAsInt("LLM_MAX_RETRIES", 3),
			InitialDelay: getEnvAsDuration("LLM_RETRY_INITIAL_DELAY", time.Second),
			MaxDelay:     getEnvAsDuration("LLM_RETRY_MAX_DELAY", 30*time.Second),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			TextModel:   getEnv("LLM_TEXT_MODEL", "gpt-4o-mini"),
			VisionModel: getEnv("LLM_VISION_MODEL", "gpt-4o"),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
		},
	}, nil
}

// Validate checks settings that must be present before serving.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return ConfigError("LLM_API_KEY is required", nil)
	}
	if c.Database.Path == "" {
		return ConfigError("DB_PATH is required", nil)
	}
	if c.Extraction.RenderDPI <= 0 {
		return ConfigError("RENDER_DPI must be positive", map[string]any{"dpi": c.Extraction.RenderDPI})
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
