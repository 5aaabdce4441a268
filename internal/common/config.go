package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	OCR    OCRConfig
	PDF    PDFConfig
	Log    LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string // empty disables the gRPC health endpoint
	MaxUploadBytes  int64
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine         string // "cli" | "gosseract"
	Tesseract      string
	TessdataDir    string
	Language       string
	OEM            int
	PSM            int
	ParametersFile string
}

// PDFConfig holds PDF decode/raster configuration
type PDFConfig struct {
	Enabled  bool
	Pdftoppm string
	Scale    float64
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:        os.Getenv("GRPC_ADDR"),
			MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_MB", 10)) << 20,
			AllowedOrigins:  getEnvAsList("CORS_ORIGINS", []string{"*"}),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		OCR: OCRConfig{
			Engine:         getEnv("OCR_ENGINE", "cli"),
			Tesseract:      getEnv("TESSERACT_BIN", "tesseract"),
			TessdataDir:    getEnv("TESSDATA_PREFIX", ""),
			Language:       getEnv("OCR_LANG", "eng"),
			OEM:            getEnvAsInt("OCR_OEM", 1),
			PSM:            getEnvAsInt("OCR_PSM", 3),
			ParametersFile: getEnv("OCR_PARAMS_FILE", ""),
		},
		PDF: PDFConfig{
			Enabled:  getEnvAsBool("OCR_ACCEPT_PDF", false),
			Pdftoppm: getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Scale:    getEnvAsFloat64("PDF_SCALE", 2.0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return NewAppError(CodeConfig, "MAX_UPLOAD_MB must be positive", ErrInvalidInput)
	}
	switch c.OCR.Engine {
	case "cli", "gosseract":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("OCR_ENGINE %q is not one of: cli | gosseract", c.OCR.Engine), ErrInvalidInput)
	}
	if c.OCR.Language == "" {
		return NewAppError(CodeConfig, "OCR_LANG is required", ErrInvalidInput)
	}
	if c.OCR.OEM < 0 || c.OCR.OEM > 3 {
		return NewAppError(CodeConfig, "OCR_OEM must be within 0..3", ErrInvalidInput)
	}
	if c.OCR.PSM < 0 || c.OCR.PSM > 13 {
		return NewAppError(CodeConfig, "OCR_PSM must be within 0..13", ErrInvalidInput)
	}
	if c.PDF.Scale <= 0 {
		return NewAppError(CodeConfig, "PDF_SCALE must be positive", ErrInvalidInput)
	}
	return nil
}
