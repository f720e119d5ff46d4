package config

import (
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey checks the key format for providers with a known prefix.
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	field := "providers." + provider + "_api_key"
	if key == "" {
		return invalid(field, "%s API key cannot be empty", provider)
	}

	switch provider {
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return invalid(field, "invalid Gemini API key format (should start with AIza)")
		}
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return invalid(field, "invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return invalid(field, "invalid OpenAI API key format (should start with sk-)")
		}
	}
	return nil
}

// ValidateModels requires at least one model to try.
func (v *Validator) ValidateModels(models []string) error {
	if len(models) == 0 {
		return invalid("models_order", "no models configured")
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return invalid("temperature", "must be between 0 and 2, got %g", temp)
	}
	return nil
}

// ValidateThinkingBudget accepts -1 (dynamic), 0 (off) or a positive budget.
func (v *Validator) ValidateThinkingBudget(budget int) error {
	if budget < -1 {
		return invalid("thinking_budget", "must be -1 or greater, got %d", budget)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return invalid("logging.level", "invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSandboxRuntime validates sandbox.runtime
func (v *Validator) ValidateSandboxRuntime(cfg SandboxConfig) error {
	switch cfg.Runtime {
	case "host":
		return nil
	case "docker":
		if strings.TrimSpace(cfg.Image) == "" {
			return invalid("sandbox.image", "required for docker runtime")
		}
		return nil
	default:
		return invalid("sandbox.runtime", "unknown runtime %q (must be host or docker)", cfg.Runtime)
	}
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(v.ValidateModels(cfg.Models()))
	add(v.ValidateTemperature(cfg.Temperature))
	add(v.ValidateThinkingBudget(cfg.ThinkingBudget))
	add(v.ValidateSandboxRuntime(cfg.Sandbox))
	add(v.ValidateLogLevel(cfg.Logging.Level))

	if cfg.CommandTimeout <= 0 {
		add(invalid("command_timeout", "must be positive, got %d", cfg.CommandTimeout))
	}
	if cfg.Tools.ScriptTimeout <= 0 {
		add(invalid("tools.script_timeout", "must be positive, got %d", cfg.Tools.ScriptTimeout))
	}
	if cfg.MaxToolTurns <= 0 {
		add(invalid("max_tool_turns", "must be positive, got %d", cfg.MaxToolTurns))
	}
	if cfg.IncompleteRetries <= 0 {
		add(invalid("incomplete_retries", "must be positive, got %d", cfg.IncompleteRetries))
	}
	if cfg.RateLimits.Buffer < 0 {
		add(invalid("rate_limits.buffer", "must be >= 0"))
	}
	for model, rpm := range cfg.RateLimits.RPM {
		if rpm < 0 {
			add(invalid("rate_limits.rpm", "%s: must be >= 0, got %d", model, rpm))
		}
	}

	keys := []struct{ provider, key string }{
		{"gemini", cfg.Providers.GeminiAPIKey},
		{"anthropic", cfg.Providers.AnthropicAPIKey},
		{"openai", cfg.Providers.OpenAIAPIKey},
	}
	for _, k := range keys {
		if k.key != "" {
			add(v.ValidateAPIKey(k.key, k.provider))
		}
	}

	return errs
}
