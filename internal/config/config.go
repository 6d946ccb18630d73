package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama    OllamaConfig    `yaml:"ollama" mapstructure:"ollama"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Intake    IntakeConfig    `yaml:"intake" mapstructure:"intake"`
	Backend   BackendConfig   `yaml:"backend" mapstructure:"backend"`
	DocText   DocTextConfig   `yaml:"doctext" mapstructure:"doctext"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ProviderConfig selects and throttles the active completion provider.
type ProviderConfig struct {
	Kind       string  `yaml:"kind" mapstructure:"kind"` // "remote" or "local"
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
}

// AnthropicConfig holds settings for the remote hosted-model provider.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OllamaConfig holds settings for the locally hosted model provider.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PipelineConfig configures extraction and validation behavior. Thresholds
// are injected, never hardcoded, so tests can pin deterministic values.
type PipelineConfig struct {
	MaxAttempts              int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS         int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS             int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RequestTimeoutSecs       int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	FieldConfidenceThreshold float64 `yaml:"field_confidence_threshold" mapstructure:"field_confidence_threshold"`
	ReviewThreshold          float64 `yaml:"review_confidence_threshold" mapstructure:"review_confidence_threshold"`
	MaxBodyChars             int     `yaml:"max_body_chars" mapstructure:"max_body_chars"`
	MaxAttachmentChars       int     `yaml:"max_attachment_chars" mapstructure:"max_attachment_chars"`
}

// InitialBackoff returns the configured initial backoff as a duration.
func (c PipelineConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff returns the configured backoff cap as a duration.
func (c PipelineConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

// RequestTimeout returns the per-request budget as a duration.
func (c PipelineConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// IntakeConfig configures upload handling.
type IntakeConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
}

// BackendConfig holds case-management backend API settings. An empty URL
// disables the handoff.
type BackendConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Token string `yaml:"token" mapstructure:"token"`
}

// DocTextConfig configures attachment text extraction.
type DocTextConfig struct {
	PDFProvider   string `yaml:"pdf_provider" mapstructure:"pdf_provider"` // "inproc" or "pdftotext"
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ServerConfig configures the intake HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("provider.kind", "remote")
	v.SetDefault("provider.rate_per_sec", 2.0)
	v.SetDefault("provider.burst", 4)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "qwen-work")
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.initial_backoff_ms", 500)
	v.SetDefault("pipeline.max_backoff_ms", 15000)
	v.SetDefault("pipeline.request_timeout_secs", 120)
	v.SetDefault("pipeline.field_confidence_threshold", 0.5)
	v.SetDefault("pipeline.review_confidence_threshold", 0.7)
	v.SetDefault("pipeline.max_body_chars", 15000)
	v.SetDefault("pipeline.max_attachment_chars", 8000)
	v.SetDefault("intake.max_file_size_mb", 50)
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.token", "")
	v.SetDefault("doctext.pdf_provider", "inproc")
	v.SetDefault("doctext.pdftotext_path", "pdftotext")
	v.SetDefault("server.port", 5000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
