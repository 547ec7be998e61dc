package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"GeoTool/internal/domain"
	"GeoTool/internal/retry"
)

const (
	configPathEnv      = "GEOTOOL_CONFIG"
	platformEnv        = "GEOTOOL_PLATFORM"
	logLevelEnv        = "GEOTOOL_LOG_LEVEL"
	feishuAppIDEnv     = "FEISHU_APP_ID"
	feishuAppSecretEnv = "FEISHU_APP_SECRET"
	feishuWebhookEnv   = "FEISHU_WEBHOOK_URL"
	notionAPIKeyEnv    = "NOTION_API_KEY"
	deepseekAPIKeyEnv  = "DEEPSEEK_API_KEY"
)

// Config holds high-level settings required across the application.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	LLM      LLMConfig      `yaml:"llm"`
	Engines  []EngineConfig `yaml:"engines"`
	Retry    RetryConfig    `yaml:"retry"`
	Output   OutputConfig   `yaml:"output"`
	History  HistoryConfig  `yaml:"history"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Hooks    HooksConfig    `yaml:"hooks"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PlatformConfig selects the active collaboration backend and carries the
// settings of every backend so the platform can be switched at runtime.
type PlatformConfig struct {
	Default string       `yaml:"default"`
	Feishu  FeishuConfig `yaml:"feishu"`
	Notion  NotionConfig `yaml:"notion"`
}

// FeishuConfig describes the Feishu app, its bitable and drive locations.
type FeishuConfig struct {
	AppID      string        `yaml:"appId"`
	AppSecret  string        `yaml:"appSecret"`
	BaseURL    string        `yaml:"baseUrl"`
	WebURL     string        `yaml:"webUrl"`
	WebhookURL string        `yaml:"webhookUrl"`
	Timeout    time.Duration `yaml:"timeout"`
	Bitable    BitableConfig `yaml:"bitable"`
	Drive      DriveConfig   `yaml:"drive"`
	ShareUsers []string      `yaml:"shareUsers"`
}

// BitableConfig identifies the multi-dimensional table app and its tables.
type BitableConfig struct {
	AppToken string      `yaml:"appToken"`
	Tables   TableConfig `yaml:"tables"`
}

// TableConfig names the record stores shared by both backends.
type TableConfig struct {
	Projects      string `yaml:"projects"`
	StageRecords  string `yaml:"stageRecords"`
	PressureTests string `yaml:"pressureTests"`
}

// DriveConfig points at the Feishu drive folder that receives client folders.
type DriveConfig struct {
	RootFolderToken string `yaml:"rootFolderToken"`
}

// NotionConfig holds the integration key, databases and parent page.
type NotionConfig struct {
	APIKey       string        `yaml:"apiKey"`
	BaseURL      string        `yaml:"baseUrl"`
	Version      string        `yaml:"version"`
	Timeout      time.Duration `yaml:"timeout"`
	Databases    TableConfig   `yaml:"databases"`
	ParentPageID string        `yaml:"parentPageId"`
	WebhookURL   string        `yaml:"webhookUrl"`
}

// LLMConfig defines how the stage prompts reach the model.
type LLMConfig struct {
	BaseURL      string        `yaml:"baseUrl"`
	APIKey       string        `yaml:"apiKey"`
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"maxTokens"`
	Timeout      time.Duration `yaml:"timeout"`
}

// EngineConfig is one OpenAI-compatible engine queried by the pressure test.
type EngineConfig struct {
	Name        string  `yaml:"name"`
	DisplayName string  `yaml:"displayName"`
	BaseURL     string  `yaml:"baseUrl"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	APIKeyEnv   string  `yaml:"apiKeyEnv"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// Label returns the display name, falling back to the engine key.
func (e EngineConfig) Label() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Name
}

// RetryConfig tunes the call-level, backend and subprocess retry policies.
type RetryConfig struct {
	LLM     BackoffConfig `yaml:"llm"`
	Backend BackoffConfig `yaml:"backend"`
	Command BackoffConfig `yaml:"command"`
}

// BackoffConfig is either fixed (Wait) or exponential (Multiplier, MinWait, MaxWait).
type BackoffConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Multiplier  float64       `yaml:"multiplier"`
	MinWait     time.Duration `yaml:"minWait"`
	MaxWait     time.Duration `yaml:"maxWait"`
	Wait        time.Duration `yaml:"wait"`
}

// Policy converts the settings into a retry policy. A fixed Wait takes
// precedence over the exponential settings.
func (b BackoffConfig) Policy() retry.Policy {
	policy := retry.Policy{MaxAttempts: b.MaxAttempts, Retryable: retry.DefaultRetryable}
	if b.Wait > 0 {
		policy.Backoff = retry.Fixed{Wait: b.Wait}
	} else {
		policy.Backoff = retry.Exponential{Multiplier: b.Multiplier, Min: b.MinWait, Max: b.MaxWait}
	}
	return policy
}

// OutputConfig controls where artifacts go.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	TemplatesDir string `yaml:"templatesDir"`
	ExtractLimit int    `yaml:"extractLimit"`
}

// HistoryConfig points at the local SQLite run history. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// MonitorConfig sets the default interval of the recurring pressure test.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HooksConfig lists external commands run inside the output directory after a
// pipeline run or a pressure test, e.g. ["git", "add", "."]. Each command is
// retried under the command policy.
type HooksConfig struct {
	AfterRun      [][]string `yaml:"afterRun"`
	AfterPressure [][]string `yaml:"afterPressure"`
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML configuration (if present) over the defaults and applies
// environment overrides. An empty path falls back to GEOTOOL_CONFIG; when both
// are empty only defaults and environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings every command depends on. Backend credentials are
// checked by the adapter factory when a platform is selected.
func (c Config) Validate() error {
	var errs []error

	if _, err := ParsePlatform(c.Platform.Default); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		errs = append(errs, &domain.ConfigurationError{Field: "llm.model", Reason: "must not be empty"})
	}
	if c.Retry.LLM.MaxAttempts < 1 {
		errs = append(errs, &domain.ConfigurationError{Field: "retry.llm.maxAttempts", Reason: "must be at least 1"})
	}
	if c.Retry.Backend.MaxAttempts < 1 {
		errs = append(errs, &domain.ConfigurationError{Field: "retry.backend.maxAttempts", Reason: "must be at least 1"})
	}
	if c.Retry.Command.MaxAttempts < 1 {
		errs = append(errs, &domain.ConfigurationError{Field: "retry.command.maxAttempts", Reason: "must be at least 1"})
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, &domain.ConfigurationError{Field: "output.dir", Reason: "must not be empty"})
	}
	seen := map[string]bool{}
	for i, engine := range c.Engines {
		if engine.Name == "" {
			errs = append(errs, &domain.ConfigurationError{Field: fmt.Sprintf("engines[%d].name", i), Reason: "must not be empty"})
			continue
		}
		if seen[engine.Name] {
			errs = append(errs, &domain.ConfigurationError{Field: "engines", Reason: "duplicate engine " + engine.Name})
		}
		seen[engine.Name] = true
	}
	for name, hooks := range map[string][][]string{"hooks.afterRun": c.Hooks.AfterRun, "hooks.afterPressure": c.Hooks.AfterPressure} {
		for i, hook := range hooks {
			if len(hook) == 0 || strings.TrimSpace(hook[0]) == "" {
				errs = append(errs, &domain.ConfigurationError{Field: fmt.Sprintf("%s[%d]", name, i), Reason: "command must not be empty"})
			}
		}
	}

	return errors.Join(errs...)
}

// Engine looks up a pressure-test engine by name.
func (c Config) Engine(name string) (EngineConfig, bool) {
	for _, engine := range c.Engines {
		if engine.Name == name {
			return engine, true
		}
	}
	return EngineConfig{}, false
}

// ParsePlatform converts a configuration value into a known platform.
func ParsePlatform(value string) (domain.Platform, error) {
	switch p := domain.Platform(strings.ToLower(strings.TrimSpace(value))); p {
	case domain.PlatformFeishu, domain.PlatformNotion:
		return p, nil
	default:
		return "", &domain.ConfigurationError{Field: "platform.default", Reason: fmt.Sprintf("unknown platform %q", value)}
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(platformEnv); v != "" {
		c.Platform.Default = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(feishuAppIDEnv); v != "" {
		c.Platform.Feishu.AppID = v
	}

	if v := os.Getenv(feishuAppSecretEnv); v != "" {
		c.Platform.Feishu.AppSecret = v
	}

	if v := os.Getenv(feishuWebhookEnv); v != "" {
		c.Platform.Feishu.WebhookURL = v
	}

	if v := os.Getenv(notionAPIKeyEnv); v != "" {
		c.Platform.Notion.APIKey = v
	}

	if v := os.Getenv(deepseekAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}

	for i := range c.Engines {
		engine := &c.Engines[i]
		if engine.APIKeyEnv != "" {
			if v := os.Getenv(engine.APIKeyEnv); v != "" {
				engine.APIKey = v
			}
		}
		if engine.APIKey == "" && engine.BaseURL == c.LLM.BaseURL {
			engine.APIKey = c.LLM.APIKey
		}
	}
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Platform: PlatformConfig{
			Default: string(domain.PlatformFeishu),
			Feishu: FeishuConfig{
				BaseURL: "https://open.feishu.cn/open-apis",
				WebURL:  "https://open.feishu.cn",
				Timeout: 30 * time.Second,
			},
			Notion: NotionConfig{
				BaseURL: "https://api.notion.com/v1",
				Version: "2022-06-28",
				Timeout: 30 * time.Second,
			},
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-chat",
			Temperature: 0.7,
			MaxTokens:   4000,
			Timeout:     5 * time.Minute,
		},
		Engines: []EngineConfig{
			{
				Name:        "deepseek",
				DisplayName: "DeepSeek",
				BaseURL:     "https://api.deepseek.com",
				Model:       "deepseek-chat",
				APIKeyEnv:   deepseekAPIKeyEnv,
				Temperature: 0.7,
				MaxTokens:   2000,
			},
			{
				Name:        "chatgpt",
				DisplayName: "ChatGPT",
				BaseURL:     "https://api.openai.com/v1",
				Model:       "gpt-4o-mini",
				APIKeyEnv:   "OPENAI_API_KEY",
				Temperature: 0.7,
				MaxTokens:   2000,
			},
		},
		Retry: RetryConfig{
			LLM:     BackoffConfig{MaxAttempts: 3, Multiplier: 1, MinWait: 2 * time.Second, MaxWait: 10 * time.Second},
			Backend: BackoffConfig{MaxAttempts: 3, Multiplier: 0.5, MinWait: time.Second, MaxWait: 5 * time.Second},
			Command: BackoffConfig{MaxAttempts: 3, Wait: 2 * time.Second},
		},
		Output:  OutputConfig{Dir: "output", ExtractLimit: 10},
		History: HistoryConfig{Path: "output/history.db"},
		Monitor: MonitorConfig{Interval: 24 * time.Hour},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
