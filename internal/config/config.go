// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Healer() HealerConfig
	LLM() LLMConfig
	ADO() ADOConfig
	GitHub() GitHubConfig
	Database() DatabaseConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	HealerCfg   HealerConfig   `mapstructure:"healer" yaml:"healer"`
	LLMCfg      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	ADOCfg      ADOConfig      `mapstructure:"ado" yaml:"ado"`
	GitHubCfg   GitHubConfig   `mapstructure:"github" yaml:"github"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Healer() HealerConfig     { return c.HealerCfg }
func (c *Config) LLM() LLMConfig           { return c.LLMCfg }
func (c *Config) ADO() ADOConfig           { return c.ADOCfg }
func (c *Config) GitHub() GitHubConfig     { return c.GitHubCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }

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

// ServerConfig configures the webhook listener.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// AuthToken, when set, is required as a bearer token on webhook calls.
	AuthToken string `mapstructure:"auth_token" yaml:"-"`
}

// HealerConfig holds the triage and remediation tuning.
type HealerConfig struct {
	AutofixConfidenceThreshold float64 `mapstructure:"autofix_confidence_threshold" yaml:"autofix_confidence_threshold"`
	WorkItemFloor              float64 `mapstructure:"work_item_floor" yaml:"work_item_floor"`
	PreferPRComment            bool    `mapstructure:"prefer_pr_comment" yaml:"prefer_pr_comment"`
	MaxLogChars                int     `mapstructure:"max_log_chars" yaml:"max_log_chars"`
	TailLogChars               int     `mapstructure:"tail_log_chars" yaml:"tail_log_chars"`
	Temperature                float64 `mapstructure:"temperature" yaml:"temperature"`
	// RulesFile optionally replaces the built-in detector rules.
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file"`
	// DefaultTargetDir is where fixes go when the log names no directory.
	DefaultTargetDir string `mapstructure:"default_target_dir" yaml:"default_target_dir"`
	// PipelineTargets maps pipeline definition IDs to fix directories.
	PipelineTargets map[string]string `mapstructure:"pipeline_targets" yaml:"pipeline_targets"`
}

// PipelineTargetMap returns PipelineTargets keyed by integer pipeline ID.
// Keys that are not integers are ignored.
func (h HealerConfig) PipelineTargetMap() map[int]string {
	out := make(map[int]string, len(h.PipelineTargets))
	for k, v := range h.PipelineTargets {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini      LLMProvider = "gemini"
	ProviderAzureOpenAI LLMProvider = "azure_openai"
)

// LLMConfig configures the text-completion service.
type LLMConfig struct {
	Provider      LLMProvider   `mapstructure:"provider" yaml:"provider"`
	FastModel     string        `mapstructure:"fast_model" yaml:"fast_model"`
	PowerfulModel string        `mapstructure:"powerful_model" yaml:"powerful_model"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIVersion    string        `mapstructure:"api_version" yaml:"api_version"`
	APITimeout    time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxElapsed    time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed"`
	TopP          float32       `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ADOConfig configures the Azure DevOps REST client.
type ADOConfig struct {
	OrganizationURL   string        `mapstructure:"organization_url" yaml:"organization_url"`
	PAT               string        `mapstructure:"pat" yaml:"-"`
	APIVersion        string        `mapstructure:"api_version" yaml:"api_version"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	MaxElapsed        time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed"`
	WorkItemType      string        `mapstructure:"work_item_type" yaml:"work_item_type"`
}

// GitHubConfig defines the configuration for GitHub integration.
type GitHubConfig struct {
	Token string `mapstructure:"token" yaml:"-"`
	// RepoOwner and RepoName are used when the failure's repository URL is
	// not a GitHub URL.
	RepoOwner   string   `mapstructure:"repo_owner" yaml:"repo_owner"`
	RepoName    string   `mapstructure:"repo_name" yaml:"repo_name"`
	BaseBranch  string   `mapstructure:"base_branch" yaml:"base_branch"`
	APIURL      string   `mapstructure:"api_url" yaml:"api_url"`
	Labels      []string `mapstructure:"labels" yaml:"labels"`
	AuthorName  string   `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string   `mapstructure:"author_email" yaml:"author_email"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshal of defaults only cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults registers every default with viper.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "infra-healer")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "3m")
	v.SetDefault("server.request_timeout", "2m")
	v.SetDefault("server.max_body_bytes", 1<<20)

	// -- Healer --
	v.SetDefault("healer.autofix_confidence_threshold", 0.65)
	v.SetDefault("healer.work_item_floor", 0.5)
	v.SetDefault("healer.prefer_pr_comment", true)
	v.SetDefault("healer.max_log_chars", 10000)
	v.SetDefault("healer.tail_log_chars", 5000)
	v.SetDefault("healer.temperature", 0.1)
	v.SetDefault("healer.default_target_dir", "infrastructure/test-apps/infra-only/terraform/scenarios/missing-variable")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.powerful_model", "gemini-2.5-pro")
	v.SetDefault("llm.api_version", "2024-06-01")
	v.SetDefault("llm.api_timeout", "90s")
	v.SetDefault("llm.max_elapsed", "2m")
	v.SetDefault("llm.max_tokens", 2048)

	// -- Azure DevOps --
	v.SetDefault("ado.api_version", "7.1")
	v.SetDefault("ado.timeout", "30s")
	v.SetDefault("ado.requests_per_second", 5.0)
	v.SetDefault("ado.burst", 10)
	v.SetDefault("ado.max_elapsed", "1m")
	v.SetDefault("ado.work_item_type", "Bug")

	// -- GitHub --
	v.SetDefault("github.base_branch", "main")
	v.SetDefault("github.labels", []string{"automated", "ai-generated"})
	v.SetDefault("github.author_name", "infra-healer-bot")
	v.SetDefault("github.author_email", "infra-healer@users.noreply.github.com")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", "HEALER_LLM_API_KEY", "GEMINI_API_KEY", "AZURE_OPENAI_KEY")
	_ = v.BindEnv("llm.endpoint", "HEALER_LLM_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
	_ = v.BindEnv("ado.pat", "HEALER_ADO_PAT", "ADO_PAT")
	_ = v.BindEnv("ado.organization_url", "HEALER_ADO_ORGANIZATION_URL", "ADO_ORGANIZATION_URL")
	_ = v.BindEnv("github.token", "HEALER_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("server.auth_token", "HEALER_WEBHOOK_TOKEN")
	_ = v.BindEnv("database.url", "HEALER_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.HealerCfg.RulesFile != "" {
		expanded, err := homedir.Expand(cfg.HealerCfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("invalid healer.rules_file: %w", err)
		}
		cfg.HealerCfg.RulesFile = expanded
	}
	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("invalid logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.HealerCfg.Validate(); err != nil {
		return fmt.Errorf("healer configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.ADOCfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("ado.requests_per_second must be positive")
	}
	if c.ServerCfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	return nil
}

// Validate checks the Healer configuration.
func (h *HealerConfig) Validate() error {
	if h.AutofixConfidenceThreshold < 0.0 || h.AutofixConfidenceThreshold > 1.0 {
		return fmt.Errorf("autofix_confidence_threshold must be between 0.0 and 1.0")
	}
	if h.WorkItemFloor < 0.0 || h.WorkItemFloor > h.AutofixConfidenceThreshold {
		return fmt.Errorf("work_item_floor must be between 0.0 and autofix_confidence_threshold")
	}
	if h.TailLogChars > h.MaxLogChars {
		return fmt.Errorf("tail_log_chars must not exceed max_log_chars")
	}
	if h.RulesFile != "" {
		if _, err := os.Stat(h.RulesFile); err != nil {
			return fmt.Errorf("rules_file: %w", err)
		}
	}
	return nil
}

// Validate checks the LLM configuration.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderGemini, ProviderAzureOpenAI:
	default:
		return fmt.Errorf("unknown provider '%s'. Supported: [%s, %s]", l.Provider, ProviderGemini, ProviderAzureOpenAI)
	}
	if l.PowerfulModel == "" {
		return fmt.Errorf("powerful_model is required")
	}
	return nil
}
