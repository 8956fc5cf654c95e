package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Extract  ExtractConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Queue    QueueConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// ExtractConfig controls the per-page text/OCR decision and assembly.
type ExtractConfig struct {
	MinDirectChars     int
	OCRDPI             int
	PreviewDPI         int
	SignatureHeuristic bool
	PageWorkers        int
	MaxPages           int
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine        string // textract | tesseract | openai
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	TessdataDir   string
	AWSRegion     string
	VisionModel   string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider       string // openai | vertex
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
	VertexProject  string
	VertexLocation string
	VertexModel    string
}

// StorageConfig selects where originals and previews are kept.
type StorageConfig struct {
	Backend    string // s3 | gcs | none
	S3Bucket   string
	AWSRegion  string
	GCSBucket  string
	PresignTTL time.Duration
}

// QueueConfig holds the daemon worker pool settings and its job sources.
type QueueConfig struct {
	Workers          int
	Size             int
	Timeout          time.Duration
	SQSQueueURL      string
	WatchDirs        []string
	WatchInitialScan bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	region := getEnv("AWS_REGION", "us-east-1")
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:data/extractbrowser.db?_pragma=busy_timeout(5000)"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Extract: ExtractConfig{
			MinDirectChars:     getEnvAsInt("MIN_DIRECT_CHARS", 50),
			OCRDPI:             getEnvAsInt("OCR_DPI", 300),
			PreviewDPI:         getEnvAsInt("PREVIEW_DPI", 150),
			SignatureHeuristic: getEnvAsBool("OCR_SIGNATURE_HEURISTIC", false),
			PageWorkers:        getEnvAsInt("EXTRACT_PAGE_WORKERS", 4),
			MaxPages:           getEnvAsInt("MAX_PAGES", 0),
		},
		OCR: OCRConfig{
			Engine:        getEnv("OCR_ENGINE", "textract"),
			Pdftoppm:      getEnv("PDFTOPPM", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "por"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			AWSRegion:     region,
			VisionModel:   getEnv("OCR_VISION_MODEL", "gpt-4o-mini"),
		},
		LLM: LLMConfig{
			Provider:       getEnv("LLM_PROVIDER", "openai"),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature:    getEnvAsFloat32("AI_TEMPERATURE", 0.1),
			MaxTokens:      getEnvAsInt("AI_MAX_TOKENS", 1500),
			Timeout:        getEnvAsDuration("AI_TIMEOUT", 30*time.Second),
			VertexProject:  getEnv("VERTEX_PROJECT", ""),
			VertexLocation: getEnv("VERTEX_LOCATION", "us-central1"),
			VertexModel:    getEnv("VERTEX_MODEL", "gemini-1.5-flash"),
		},
		Storage: StorageConfig{
			Backend:    getEnv("STORAGE_BACKEND", "none"),
			S3Bucket:   getEnv("S3_BUCKET", ""),
			AWSRegion:  region,
			GCSBucket:  getEnv("GCS_BUCKET", ""),
			PresignTTL: getEnvAsDuration("PRESIGN_TTL", time.Hour),
		},
		Queue: QueueConfig{
			Workers:          getEnvAsInt("QUEUE_WORKERS", 4),
			Size:             getEnvAsInt("QUEUE_SIZE", 256),
			Timeout:          getEnvAsDuration("QUEUE_TIMEOUT", 3*time.Minute),
			SQSQueueURL:      getEnv("SQS_QUEUE_URL", ""),
			WatchDirs:        getEnvAsList("WATCH_DIRS"),
			WatchInitialScan: getEnvAsBool("WATCH_INITIAL_SCAN", false),
		},
	}
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError(CodeConfig, "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.APIKey == "" {
			return NewAppError(CodeConfig, "OPENAI_API_KEY is required", ErrInvalidInput)
		}
	case "vertex":
		if c.LLM.VertexProject == "" {
			return NewAppError(CodeConfig, "VERTEX_PROJECT is required", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, "LLM_PROVIDER must be openai or vertex", ErrInvalidInput)
	}
	switch c.OCR.Engine {
	case "textract", "tesseract":
	case "openai":
		if c.LLM.APIKey == "" {
			return NewAppError(CodeConfig, "OPENAI_API_KEY is required for OCR_ENGINE=openai", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, "OCR_ENGINE must be textract, tesseract or openai", ErrInvalidInput)
	}
	switch c.Storage.Backend {
	case "none":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return NewAppError(CodeConfig, "S3_BUCKET is required", ErrInvalidInput)
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return NewAppError(CodeConfig, "GCS_BUCKET is required", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, "STORAGE_BACKEND must be s3, gcs or none", ErrInvalidInput)
	}
	if c.Extract.MinDirectChars <= 0 || c.Extract.OCRDPI <= 0 {
		return NewAppError(CodeConfig, "MIN_DIRECT_CHARS and OCR_DPI must be positive", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError(CodeConfig, "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}
