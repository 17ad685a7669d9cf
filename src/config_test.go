package ebookbot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "from-env")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.APIKey)
	}
	if cfg.OutputDir != "output" {
		t.Errorf("OutputDir = %q, want output", cfg.OutputDir)
	}
	if cfg.Pipeline.MaxVerifyAttempts != 3 {
		t.Errorf("MaxVerifyAttempts = %d, want 3", cfg.Pipeline.MaxVerifyAttempts)
	}
	if cfg.Pipeline.TOCDepth != 2 {
		t.Errorf("TOCDepth = %d, want 2", cfg.Pipeline.TOCDepth)
	}
	if cfg.Images.RetryDelay != 2*time.Second {
		t.Errorf("Images.RetryDelay = %v, want 2s", cfg.Images.RetryDelay)
	}
	if got, want := cfg.ImageCacheDir(), filepath.Join("output", "images"); got != want {
		t.Errorf("ImageCacheDir() = %q, want %q", got, want)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("output_dir: book\nimages:\n  max: 2\n  backend: sdwebui\npipeline:\n  max_attempts: 5\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EBOOKBOT_PIPELINE_MAX_ATTEMPTS", "7")
	t.Setenv("SD_WEBUI_URL", "http://localhost:7860")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.OutputDir != "book" {
		t.Errorf("OutputDir = %q, want book", cfg.OutputDir)
	}
	if cfg.Images.Max != 2 {
		t.Errorf("Images.Max = %d, want 2", cfg.Images.Max)
	}
	if cfg.Pipeline.MaxAttempts != 7 {
		t.Errorf("Pipeline.MaxAttempts = %d, want env override 7", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Images.SDWebUIURL != "http://localhost:7860" {
		t.Errorf("SDWebUIURL = %q", cfg.Images.SDWebUIURL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadConfig() with missing file should fail")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		APIKey:    "key",
		OutputDir: "out",
		Images:    ImageConfig{Backend: "horde", MaxAttempts: 1},
		Pipeline:  PipelineConfig{MaxAttempts: 1, MaxVerifyAttempts: 1},
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		ok      bool
	}{
		{"valid", func(c *Config) {}, nil, true},
		{"missing key", func(c *Config) { c.APIKey = "" }, ErrMissingCredential, false},
		{"sdwebui without url", func(c *Config) { c.Images.Backend = "sdwebui" }, ErrMissingCredential, false},
		{"unknown backend", func(c *Config) { c.Images.Backend = "dalle" }, nil, false},
		{"zero attempts", func(c *Config) { c.Pipeline.MaxAttempts = 0 }, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
