// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"time"

	"github.com/JonMunkholm/visitaudit/internal/core"
	"github.com/JonMunkholm/visitaudit/internal/imaging"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Validation ValidationConfig
	Image      ImageConfig
	Templates  TemplatesConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// ValidationConfig holds validation pass settings.
type ValidationConfig struct {
	// MaxFileSize is the maximum accepted workbook size in bytes (default: 50MB)
	MaxFileSize int64 `env:"VALIDATION_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel passes (default: 4)
	MaxConcurrent int `env:"VALIDATION_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a pass slot (default: 30s)
	MaxWaitTime time.Duration `env:"VALIDATION_MAX_WAIT_TIME" default:"30s"`

	// BatchSize is the number of rows per engine step (default: 500)
	BatchSize int `env:"VALIDATION_BATCH_SIZE" default:"500"`

	// Timeout bounds a single asynchronous run (default: 10m)
	Timeout time.Duration `env:"VALIDATION_TIMEOUT" default:"10m"`

	// ResultTTL is how long finished runs stay retrievable (default: 5m)
	ResultTTL time.Duration `env:"VALIDATION_RESULT_TTL" default:"5m"`
}

// ImageConfig holds image integrity settings.
type ImageConfig struct {
	// Enabled runs the image pass alongside the tabular pass (default: true)
	Enabled bool `env:"IMAGE_ENABLED" default:"true"`

	// BlurThreshold is the sharpness score below which an image is blurry (default: 60)
	BlurThreshold float64 `env:"IMAGE_BLUR_THRESHOLD" default:"60"`

	// DuplicateDistance is the largest fingerprint distance counted as a duplicate (default: 5)
	DuplicateDistance int `env:"IMAGE_DUPLICATE_DISTANCE" default:"5"`

	// MaxDimension bounds the bitmap scored for sharpness (default: 512)
	MaxDimension int `env:"IMAGE_MAX_DIMENSION" default:"512"`
}

// TemplatesConfig holds task template settings.
type TemplatesConfig struct {
	// Dir holds template files that add to or override the built-in tasks
	Dir string `env:"TEMPLATES_DIR"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// Service returns the validation service settings.
func (c *Config) Service() core.ServiceConfig {
	return core.ServiceConfig{
		BatchSize:     c.Validation.BatchSize,
		MaxConcurrent: c.Validation.MaxConcurrent,
		MaxWaitTime:   c.Validation.MaxWaitTime,
		RunTimeout:    c.Validation.Timeout,
		ResultTTL:     c.Validation.ResultTTL,
		Images:        c.Image.Enabled,
		ImageOptions: imaging.Options{
			BlurThreshold: c.Image.BlurThreshold,
			MaxDistance:   c.Image.DuplicateDistance,
			MaxDimension:  c.Image.MaxDimension,
		},
	}
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
