// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	LLM      LLMModelConfig `mapstructure:"llm" yaml:"llm"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Batch    BatchConfig    `mapstructure:"batch" yaml:"batch"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
}

// SettlePolicy names how the observer waits for dynamic content before reading the page.
type SettlePolicy string

const (
	SettleFixed SettlePolicy = "fixed" // Sleep for a flat delay.
	SettlePoll  SettlePolicy = "poll"  // Poll the body text until two reads agree.
)

// SettleConfig configures the post-navigation settle wait.
type SettleConfig struct {
	Policy       SettlePolicy  `mapstructure:"policy" yaml:"policy"`
	Delay        time.Duration `mapstructure:"delay" yaml:"delay"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AgentConfig holds settings related to the agent loop and its components.
type AgentConfig struct {
	MaxSteps            int           `mapstructure:"max_steps" yaml:"max_steps"`
	ObservationMaxChars int           `mapstructure:"observation_max_chars" yaml:"observation_max_chars"`
	ObservationTimeout  time.Duration `mapstructure:"observation_timeout" yaml:"observation_timeout"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	Settle              SettleConfig  `mapstructure:"settle" yaml:"settle"`
	ScreenshotPath      string        `mapstructure:"screenshot_path" yaml:"screenshot_path"`
	Extraction          ExtractConfig `mapstructure:"extraction" yaml:"extraction"`
}

// ExtractConfig configures the one-shot page extraction mode.
type ExtractConfig struct {
	MaxChars    int           `mapstructure:"max_chars" yaml:"max_chars"`
	Settle      SettleConfig  `mapstructure:"settle" yaml:"settle"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig defines the configuration for the reasoning oracle.
type LLMModelConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP              float32       `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	ThinkingBudget    int           `mapstructure:"thinking_budget" yaml:"thinking_budget"`
	MaxResponseBytes  int           `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// DatabaseConfig holds the database connection details for run history.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// MetricsConfig controls where run metrics are written.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// BatchConfig configures concurrent batch runs.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "novact")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "15s")

	// -- Agent --
	v.SetDefault("agent.max_steps", 3)
	v.SetDefault("agent.observation_max_chars", 1500)
	v.SetDefault("agent.observation_timeout", "30s")
	v.SetDefault("agent.retry_backoff", "500ms")
	v.SetDefault("agent.settle.policy", string(SettleFixed))
	v.SetDefault("agent.settle.delay", "2s")
	v.SetDefault("agent.settle.poll_interval", "250ms")
	v.SetDefault("agent.settle.timeout", "10s")
	v.SetDefault("agent.screenshot_path", "")

	// -- Extraction --
	v.SetDefault("agent.extraction.max_chars", 12000)
	v.SetDefault("agent.extraction.settle.policy", string(SettleFixed))
	v.SetDefault("agent.extraction.settle.delay", "5s")
	v.SetDefault("agent.extraction.settle.poll_interval", "500ms")
	v.SetDefault("agent.extraction.settle.timeout", "20s")
	v.SetDefault("agent.extraction.read_timeout", "45s")
	v.SetDefault("agent.extraction.max_tokens", 1000)
	v.SetDefault("agent.extraction.temperature", 0.2)
	v.SetDefault("agent.extraction.top_p", 0.9)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "30s")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.top_p", 0.0)
	v.SetDefault("llm.max_tokens", 500)
	// 0 disables thinking on models that support it; -1 keeps the model default.
	v.SetDefault("llm.thinking_budget", 0)
	v.SetDefault("llm.max_response_bytes", 8192)
	v.SetDefault("llm.requests_per_minute", 0.0)

	// -- Batch --
	v.SetDefault("batch.concurrency", 2)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", "NOVACT_LLM_API_KEY")
	_ = v.BindEnv("database.url", "NOVACT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Fall back to the key name the Gemini tooling uses.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be a positive integer")
	}
	return nil
}

// Validate checks the agent loop settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if a.ObservationMaxChars <= 0 {
		return fmt.Errorf("observation_max_chars must be a positive integer")
	}
	if a.ObservationTimeout <= 0 {
		return fmt.Errorf("observation_timeout must be a positive duration")
	}
	if a.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must not be negative")
	}
	if err := a.Settle.Validate(); err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	if a.Extraction.MaxChars <= 0 {
		return fmt.Errorf("extraction.max_chars must be a positive integer")
	}
	if err := a.Extraction.Settle.Validate(); err != nil {
		return fmt.Errorf("extraction.settle: %w", err)
	}
	if a.Extraction.ReadTimeout <= 0 {
		return fmt.Errorf("extraction.read_timeout must be a positive duration")
	}
	return nil
}

// Validate checks a settle policy definition.
func (s *SettleConfig) Validate() error {
	switch s.Policy {
	case SettleFixed:
		if s.Delay < 0 {
			return fmt.Errorf("delay must not be negative")
		}
	case SettlePoll:
		if s.PollInterval <= 0 {
			return fmt.Errorf("poll_interval must be a positive duration")
		}
		if s.Timeout <= 0 {
			return fmt.Errorf("timeout must be a positive duration")
		}
	default:
		return fmt.Errorf("unknown policy %q (supported: %s, %s)", s.Policy, SettleFixed, SettlePoll)
	}
	return nil
}

// Validate checks the oracle model settings.
func (l *LLMModelConfig) Validate() error {
	if l.Provider != ProviderGemini {
		return fmt.Errorf("unsupported provider %q (supported: %s)", l.Provider, ProviderGemini)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be a positive duration")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if l.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be a positive integer")
	}
	if l.ThinkingBudget < -1 {
		return fmt.Errorf("thinking_budget must be -1 (model default) or a non-negative token count")
	}
	if l.MaxResponseBytes <= 0 {
		return fmt.Errorf("max_response_bytes must be a positive integer")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}
