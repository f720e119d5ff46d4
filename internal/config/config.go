package config

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Config is the bounter configuration.
type Config struct {
	// Model is the preferred model. It is moved to the front of ModelsOrder.
	Model string `json:"model" mapstructure:"model"`

	// ModelsOrder is the fallback order, most preferred first.
	ModelsOrder []string `json:"models_order" mapstructure:"models_order"`

	// ThinkingModels lists models that accept a thinking config.
	ThinkingModels []string `json:"thinking_models" mapstructure:"thinking_models"`

	Temperature       float64 `json:"temperature" mapstructure:"temperature"`
	ThinkingBudget    int     `json:"thinking_budget" mapstructure:"thinking_budget"` // -1 lets the backend decide
	IncludeThoughts   bool    `json:"include_thoughts" mapstructure:"include_thoughts"`
	CommandTimeout    int     `json:"command_timeout" mapstructure:"command_timeout"` // seconds
	SystemInstruction string  `json:"system_instruction" mapstructure:"system_instruction"`

	// MaxToolTurns caps model/tool round trips within one attempt.
	MaxToolTurns int `json:"max_tool_turns" mapstructure:"max_tool_turns"`

	// IncompleteRetries is how many attempts a model gets when it keeps
	// returning no final answer.
	IncompleteRetries int `json:"incomplete_retries" mapstructure:"incomplete_retries"`

	RateLimits RateLimitConfig `json:"rate_limits" mapstructure:"rate_limits"`
	Providers  ProvidersConfig `json:"providers" mapstructure:"providers"`
	Tools      ToolsConfig     `json:"tools" mapstructure:"tools"`
	Sandbox    SandboxConfig   `json:"sandbox" mapstructure:"sandbox"`
	Logging    LoggingConfig   `json:"logging" mapstructure:"logging"`
	Report     ReportConfig    `json:"report" mapstructure:"report"`
	Metrics    MetricsConfig   `json:"metrics" mapstructure:"metrics"`

	// DataDir holds logs, downloads and script sessions.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// RateLimitConfig configures proactive per-model request budgeting.
type RateLimitConfig struct {
	Enabled       bool           `json:"enabled" mapstructure:"enabled"`
	Buffer        int            `json:"buffer" mapstructure:"buffer"`
	WindowSeconds int            `json:"window_seconds" mapstructure:"window_seconds"`
	RPM           map[string]int `json:"rpm" mapstructure:"rpm"`
}

// ProvidersConfig holds backend credentials.
type ProvidersConfig struct {
	GeminiAPIKey    string `json:"gemini_api_key" mapstructure:"gemini_api_key"`
	GeminiBaseURL   string `json:"gemini_base_url" mapstructure:"gemini_base_url"`
	AnthropicAPIKey string `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `json:"openai_api_key" mapstructure:"openai_api_key"`
}

// ToolsConfig holds tool settings
type ToolsConfig struct {
	Allow            []string `json:"allow" mapstructure:"allow"`
	Deny             []string `json:"deny" mapstructure:"deny"`
	DownloadDir      string   `json:"download_dir" mapstructure:"download_dir"`
	SearchsploitPath string   `json:"searchsploit_path" mapstructure:"searchsploit_path"`
	ListenerBind     string   `json:"listener_bind" mapstructure:"listener_bind"`
	NetcatPath       string   `json:"netcat_path" mapstructure:"netcat_path"`
	PythonPath       string   `json:"python_path" mapstructure:"python_path"`
	ScriptTimeout    int      `json:"script_timeout" mapstructure:"script_timeout"` // seconds
}

// SandboxConfig selects where shell commands run.
type SandboxConfig struct {
	Runtime string `json:"runtime" mapstructure:"runtime"` // host, docker
	Image   string `json:"image" mapstructure:"image"`
	Network string `json:"network" mapstructure:"network"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// ReportConfig controls where scan snapshots are written.
type ReportConfig struct {
	Dir    string `json:"dir" mapstructure:"dir"`
	Prefix string `json:"prefix" mapstructure:"prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultSystemInstruction is used when no instruction is configured.
const DefaultSystemInstruction = "You are an authorized web application security tester. " +
	"Use the available tools to enumerate, verify and report findings for the given target. " +
	"Only test the target you were given. Finish with a concise report of confirmed issues."

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Model: "gemini-2.5-flash-lite",
		ModelsOrder: []string{
			"gemini-2.5-flash",
			"gemini-2.5-flash-lite",
			"gemini-2.0-flash",
			"gemini-2.0-flash-lite",
		},
		ThinkingModels:    []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"},
		Temperature:       0.0,
		ThinkingBudget:    -1,
		IncludeThoughts:   true,
		CommandTimeout:    30,
		SystemInstruction: DefaultSystemInstruction,
		MaxToolTurns:      10,
		IncompleteRetries: 2,
		RateLimits: RateLimitConfig{
			Enabled:       false,
			Buffer:        3,
			WindowSeconds: 60,
			RPM: map[string]int{
				"gemini-2.5-flash":      10,
				"gemini-2.5-flash-lite": 15,
				"gemini-2.0-flash":      15,
				"gemini-2.0-flash-lite": 30,
			},
		},
		Tools: ToolsConfig{
			Allow:            []string{"*"},
			Deny:             []string{},
			SearchsploitPath: "searchsploit",
			ListenerBind:     "0.0.0.0",
			NetcatPath:       "nc",
			PythonPath:       "python3",
			ScriptTimeout:    60,
		},
		Sandbox: SandboxConfig{
			Runtime: "host",
			Image:   "kalilinux/kali-rolling",
			Network: "host",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Report: ReportConfig{
			Dir:    "reports",
			Prefix: "scan",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// String returns a JSON representation of the config with credentials masked.
func (c *Config) String() string {
	masked := *c
	masked.Providers = ProvidersConfig{
		GeminiAPIKey:    mask(c.Providers.GeminiAPIKey),
		GeminiBaseURL:   c.Providers.GeminiBaseURL,
		AnthropicAPIKey: mask(c.Providers.AnthropicAPIKey),
		OpenAIAPIKey:    mask(c.Providers.OpenAIAPIKey),
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// Models returns the fallback order with Model moved to the front and
// duplicates or blanks removed.
func (c *Config) Models() []string {
	seen := make(map[string]struct{}, len(c.ModelsOrder)+1)
	models := make([]string, 0, len(c.ModelsOrder)+1)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		models = append(models, name)
	}

	add(c.Model)
	for _, m := range c.ModelsOrder {
		add(m)
	}
	return models
}

// SupportsThinking reports whether model accepts a thinking config.
func (c *Config) SupportsThinking(model string) bool {
	for _, m := range c.ThinkingModels {
		if strings.EqualFold(strings.TrimSpace(m), model) {
			return true
		}
	}
	return false
}

// CommandTimeoutDuration returns the per tool call timeout.
func (c *Config) CommandTimeoutDuration() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}

// ScriptTimeoutDuration returns the timeout for code executor calls.
func (c *Config) ScriptTimeoutDuration() time.Duration {
	return time.Duration(c.Tools.ScriptTimeout) * time.Second
}

// RateWindow returns the proactive budgeting window.
func (c *Config) RateWindow() time.Duration {
	if c.RateLimits.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimits.WindowSeconds) * time.Second
}

var envUnsafe = regexp.MustCompile(`[^A-Z0-9]+`)

// RateEnvKey returns the environment variable that overrides a model's RPM,
// e.g. BOUNTER_RATE_GEMINI_2_5_FLASH.
func RateEnvKey(model string) string {
	return "BOUNTER_RATE_" + strings.Trim(envUnsafe.ReplaceAllString(strings.ToUpper(model), "_"), "_")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
