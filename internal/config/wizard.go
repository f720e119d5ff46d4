package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Wizard walks the user through creating a config file.
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading from stdin.
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard over arbitrary streams.
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{reader: bufio.NewReader(in), out: out}
}

// Run asks for credentials and model preferences, starting from defaults.
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== bounter setup ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	keys := []struct {
		provider string
		label    string
		dst      *string
	}{
		{"gemini", "Gemini", &cfg.Providers.GeminiAPIKey},
		{"anthropic", "Anthropic", &cfg.Providers.AnthropicAPIKey},
		{"openai", "OpenAI", &cfg.Providers.OpenAIAPIKey},
	}
	for _, k := range keys {
		for {
			key, err := w.ask(fmt.Sprintf("%s API key (Enter to skip)", k.label), "")
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			if err := validator.ValidateAPIKey(key, k.provider); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			*k.dst = key
			break
		}
	}
	if cfg.Providers.GeminiAPIKey == "" && cfg.Providers.AnthropicAPIKey == "" && cfg.Providers.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("at least one API key is required")
	}

	order, err := w.ask("Model fallback order (comma separated)", strings.Join(cfg.ModelsOrder, ","))
	if err != nil {
		return nil, err
	}
	cfg.ModelsOrder = splitList(order)
	cfg.Model = ""
	if len(cfg.ModelsOrder) > 0 {
		cfg.Model = cfg.ModelsOrder[0]
	}
	if err := validator.ValidateModels(cfg.Models()); err != nil {
		return nil, err
	}

	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using info\n", err)
	} else {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out, "Configuration complete!")
	return cfg, nil
}

func (w *Wizard) ask(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
