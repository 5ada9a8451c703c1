package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Validation: ValidationConfig{
			MaxFileSize:   1,
			MaxConcurrent: 1,
			BatchSize:     1,
			MaxWaitTime:   time.Second,
			Timeout:       time.Minute,
			ResultTTL:     time.Minute,
		},
		Image:   ImageConfig{Enabled: true, BlurThreshold: 60, DuplicateDistance: 5, MaxDimension: 512},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("Server = %+v, want 0.0.0.0:8080", cfg.Server)
	}
	if cfg.Validation.MaxConcurrent != 4 {
		t.Errorf("Validation.MaxConcurrent = %d, want 4", cfg.Validation.MaxConcurrent)
	}
	if cfg.Validation.MaxFileSize != 52428800 {
		t.Errorf("Validation.MaxFileSize = %d, want 52428800", cfg.Validation.MaxFileSize)
	}
	if !cfg.Image.Enabled || cfg.Image.BlurThreshold != 60 || cfg.Image.DuplicateDistance != 5 {
		t.Errorf("Image = %+v, want enabled with threshold 60 and distance 5", cfg.Image)
	}
	if cfg.Templates.Dir != "" {
		t.Errorf("Templates.Dir = %q, want empty", cfg.Templates.Dir)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("VALIDATION_MAX_CONCURRENT", "10")
	t.Setenv("VALIDATION_MAX_WAIT_TIME", "1m30s")
	t.Setenv("IMAGE_ENABLED", "false")
	t.Setenv("IMAGE_BLUR_THRESHOLD", "42.5")
	t.Setenv("TEMPLATES_DIR", dir)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.0/12 ,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Validation.MaxConcurrent != 10 {
		t.Errorf("Validation.MaxConcurrent = %d, want 10", cfg.Validation.MaxConcurrent)
	}
	if cfg.Validation.MaxWaitTime != 90*time.Second {
		t.Errorf("Validation.MaxWaitTime = %v, want 1m30s", cfg.Validation.MaxWaitTime)
	}
	if cfg.Image.Enabled || cfg.Image.BlurThreshold != 42.5 {
		t.Errorf("Image = %+v, want disabled with threshold 42.5", cfg.Image)
	}
	if cfg.Templates.Dir != dir {
		t.Errorf("Templates.Dir = %q, want %q", cfg.Templates.Dir, dir)
	}
	if got := strings.Join(cfg.Server.TrustedProxies, "|"); got != "10.0.0.0/8|172.16.0.0/12" {
		t.Errorf("TrustedProxies = %q", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		env, value, want string
	}{
		{"SERVER_PORT", "eighty", "SERVER_PORT"},
		{"VALIDATION_TIMEOUT", "soon", "VALIDATION_TIMEOUT"},
		{"IMAGE_BLUR_THRESHOLD", "sharp", "IMAGE_BLUR_THRESHOLD"},
		{"IMAGE_ENABLED", "maybe", "IMAGE_ENABLED"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"zero batch size", func(c *Config) { c.Validation.BatchSize = 0 }, "VALIDATION_BATCH_SIZE"},
		{"zero result ttl", func(c *Config) { c.Validation.ResultTTL = 0 }, "VALIDATION_RESULT_TTL"},
		{"distance too large", func(c *Config) { c.Image.DuplicateDistance = 65 }, "IMAGE_DUPLICATE_DISTANCE"},
		{"tiny dimension", func(c *Config) { c.Image.MaxDimension = 4 }, "IMAGE_MAX_DIMENSION"},
		{"missing templates dir", func(c *Config) { c.Templates.Dir = "/nonexistent/templates" }, "TEMPLATES_DIR"},
		{"bad proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.1"} }, "TRUSTED_PROXIES"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		if got := cfg.Addr(); got != tt.want {
			t.Errorf("Addr() with host=%q, port=%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestServiceSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Validation.BatchSize = 250
	cfg.Image.DuplicateDistance = 3

	svc := cfg.Service()
	if svc.BatchSize != 250 || !svc.Images || svc.ImageOptions.MaxDistance != 3 {
		t.Errorf("Service() = %+v", svc)
	}
	if svc.RunTimeout != time.Minute || svc.ResultTTL != time.Minute {
		t.Errorf("Service() timeouts = %v, %v, want 1m, 1m", svc.RunTimeout, svc.ResultTTL)
	}
}

func TestConfigString(t *testing.T) {
	str := validConfig().String()
	for _, want := range []string{"Port: 8080", "BlurThreshold: 60", `Level: "info"`} {
		if !strings.Contains(str, want) {
			t.Errorf("String() = %s, missing %s", str, want)
		}
	}
}
