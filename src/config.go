package ebookbot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries every setting a run needs. It is passed explicitly into each
// component; nothing reads the environment after LoadConfig returns.
type Config struct {
	APIKey    string       `mapstructure:"-"`
	Logger    *slog.Logger `mapstructure:"-"`
	OutputDir string       `mapstructure:"output_dir"`
	CacheDir  string       `mapstructure:"cache_dir"`
	// Reuse loads existing LLM stage artifacts instead of calling the model.
	Reuse bool `mapstructure:"reuse"`

	LLM      LLMConfig      `mapstructure:"llm"`
	Images   ImageConfig    `mapstructure:"images"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Input    InputConfig    `mapstructure:"input"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type LLMConfig struct {
	Model             string        `mapstructure:"model"`
	MaxTokens         int64         `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

type ImageConfig struct {
	// Backend is "horde" or "sdwebui".
	Backend     string        `mapstructure:"backend"`
	HordeAPIKey string        `mapstructure:"horde_api_key"`
	SDWebUIURL  string        `mapstructure:"sdwebui_url"`
	Max         int           `mapstructure:"max"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Steps       int           `mapstructure:"steps"`
	Width       int           `mapstructure:"width"`
	Height      int           `mapstructure:"height"`
	Model       string        `mapstructure:"model"`
	// Style is appended to every image prompt.
	Style string `mapstructure:"style"`
}

type PipelineConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxVerifyAttempts int           `mapstructure:"max_verify_attempts"`
	TOCDepth          int           `mapstructure:"toc_depth"`
}

type InputConfig struct {
	MaxPages       int `mapstructure:"max_pages"`
	MaxSourceChars int `mapstructure:"max_source_chars"`
	ReferencePages int `mapstructure:"reference_pages"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	RunsDir   string `mapstructure:"runs_dir"`
	RateLimit int    `mapstructure:"rate_limit"`
	// TLSCert and TLSKey enable HTTPS. Missing files are replaced by a
	// self-signed localhost certificate.
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// LoadConfig reads defaults, then the optional YAML file at path, then
// EBOOKBOT_* environment overrides (llm.model -> EBOOKBOT_LLM_MODEL).
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("EBOOKBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	cfg.APIKey = os.Getenv("CLAUDE_API_KEY")
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Images.HordeAPIKey == "" {
		cfg.Images.HordeAPIKey = os.Getenv("HORDE_API_KEY")
	}
	if cfg.Images.SDWebUIURL == "" {
		cfg.Images.SDWebUIURL = os.Getenv("SD_WEBUI_URL")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "output")
	v.SetDefault("cache_dir", "")
	v.SetDefault("reuse", false)

	v.SetDefault("llm.model", "claude-3-5-sonnet-latest")
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.timeout", "5m")
	v.SetDefault("llm.requests_per_minute", 50)

	v.SetDefault("images.backend", "horde")
	v.SetDefault("images.horde_api_key", "")
	v.SetDefault("images.sdwebui_url", "")
	v.SetDefault("images.max", 6)
	v.SetDefault("images.max_attempts", 3)
	v.SetDefault("images.retry_delay", "2s")
	v.SetDefault("images.timeout", "5m")
	v.SetDefault("images.steps", 0)
	v.SetDefault("images.width", 0)
	v.SetDefault("images.height", 0)
	v.SetDefault("images.model", "")
	v.SetDefault("images.style", "clean modern editorial illustration, no text")

	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.retry_delay", "1s")
	v.SetDefault("pipeline.max_verify_attempts", 3)
	v.SetDefault("pipeline.toc_depth", 2)

	v.SetDefault("input.max_pages", 500)
	v.SetDefault("input.max_source_chars", 400000)
	v.SetDefault("input.reference_pages", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.addr", ":8081")
	v.SetDefault("server.runs_dir", "runs")
	v.SetDefault("server.rate_limit", 10)
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "ebookbot")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Validate checks the conditions that must hold before any stage runs.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: set CLAUDE_API_KEY", ErrMissingCredential)
	}
	switch c.Images.Backend {
	case "horde":
	case "sdwebui":
		if c.Images.SDWebUIURL == "" {
			return fmt.Errorf("%w: set SD_WEBUI_URL for the sdwebui backend", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("unknown image backend %q", c.Images.Backend)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if c.Pipeline.MaxAttempts < 1 || c.Pipeline.MaxVerifyAttempts < 1 || c.Images.MaxAttempts < 1 {
		return fmt.Errorf("attempt limits must be at least 1")
	}
	return nil
}

// ImageCacheDir is where generated images are stored, defaulting to
// <output_dir>/images.
func (c Config) ImageCacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return filepath.Join(c.OutputDir, "images")
}
