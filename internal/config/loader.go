package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix = "BOUNTER"
	// Model names contain dots, so viper paths use a different delimiter.
	keyDelimiter = "::"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath, envFile: ".env"}
}

// WithEnvFile overrides the dotenv file read before the environment.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load merges defaults, the JSON config file (when present), the dotenv
// file and BOUNTER_* environment variables, in increasing precedence.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if _, err := os.Stat(l.envFile); err == nil {
			if err := godotenv.Load(l.envFile); err != nil {
				return nil, fmt.Errorf("failed to load env file: %w", err)
			}
		}
	}

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	_ = v.BindEnv("providers::gemini_api_key", "BOUNTER_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("providers::anthropic_api_key", "BOUNTER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("providers::openai_api_key", "BOUNTER_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("rate_limits::buffer", "BOUNTER_RATE_LIMITS_BUFFER", "BOUNTER_RATE_LIMIT_BUFFER")
	_ = v.BindEnv("thinking_models", "BOUNTER_THINKING_MODELS")

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyRateOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".bounter")
	}
	if cfg.Tools.DownloadDir == "" {
		cfg.Tools.DownloadDir = filepath.Join(cfg.DataDir, "exploits")
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}

	return cfg, nil
}

// setDefaults registers every leaf of the default config so AutomaticEnv
// can see it. The RPM table stays a single map-valued key.
func setDefaults(v *viper.Viper, cfg *Config) {
	data, _ := json.Marshal(cfg)
	var tree map[string]any
	_ = json.Unmarshal(data, &tree)
	walkDefaults(v, "", tree)
}

func walkDefaults(v *viper.Viper, prefix string, node map[string]any) {
	for key, value := range node {
		path := key
		if prefix != "" {
			path = prefix + keyDelimiter + key
		}
		if child, ok := value.(map[string]any); ok && path != "rate_limits"+keyDelimiter+"rpm" {
			walkDefaults(v, path, child)
			continue
		}
		v.SetDefault(path, value)
	}
}

func applyRateOverrides(cfg *Config) error {
	if cfg.RateLimits.RPM == nil {
		cfg.RateLimits.RPM = make(map[string]int)
	}
	for _, model := range cfg.Models() {
		raw, ok := os.LookupEnv(RateEnvKey(model))
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		rpm, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return invalid(RateEnvKey(model), "not an integer: %q", raw)
		}
		cfg.RateLimits.RPM[model] = rpm
	}
	return nil
}

// Save writes cfg as indented JSON. The file may hold API keys, so it is
// created with owner-only permissions.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bounter", "config.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
