package agent

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/harun/bounter/internal/config"
	"github.com/harun/bounter/pkg/stream"
)

// Provider names.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderReplay    = "replay"
)

// LLMProvider is a backend that answers with a chunk sequence. Backends
// without streaming return a one-chunk sequence. Failures are yielded as
// *TransportError.
type LLMProvider interface {
	Stream(ctx context.Context, request LLMRequest) iter.Seq2[*stream.Chunk, error]

	// Provider returns the provider name
	Provider() string
}

// ProviderCreator resolves the backend for a model.
type ProviderCreator interface {
	ProviderFor(ctx context.Context, model string) (LLMProvider, error)
}

// ProviderName routes a model name to its backend by prefix.
func ProviderName(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, ReplayPrefix):
		return ProviderReplay
	case strings.HasPrefix(m, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return ProviderOpenAI
	default:
		return ProviderGemini
	}
}

// ProviderFactory creates providers from configured credentials and reuses
// them across attempts.
type ProviderFactory struct {
	keys config.ProvidersConfig

	mu        sync.Mutex
	providers map[string]LLMProvider
}

// NewProviderFactory creates a factory for the given credentials.
func NewProviderFactory(keys config.ProvidersConfig) *ProviderFactory {
	return &ProviderFactory{keys: keys, providers: make(map[string]LLMProvider)}
}

// ProviderFor returns the provider serving model.
func (f *ProviderFactory) ProviderFor(ctx context.Context, model string) (LLMProvider, error) {
	name := ProviderName(model)

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.providers[name]; ok {
		return p, nil
	}

	var (
		p   LLMProvider
		err error
	)
	switch name {
	case ProviderReplay:
		p = NewReplayProvider()
	case ProviderAnthropic:
		if f.keys.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: %s (set ANTHROPIC_API_KEY)", ErrProviderNotConfigured, name)
		}
		p = NewAnthropicProvider(f.keys.AnthropicAPIKey)
	case ProviderOpenAI:
		if f.keys.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: %s (set OPENAI_API_KEY)", ErrProviderNotConfigured, name)
		}
		p = NewOpenAIProvider(f.keys.OpenAIAPIKey)
	default:
		if f.keys.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: %s (set GEMINI_API_KEY)", ErrProviderNotConfigured, name)
		}
		p, err = NewGeminiProvider(ctx, f.keys.GeminiAPIKey, f.keys.GeminiBaseURL)
		if err != nil {
			return nil, err
		}
	}
	f.providers[name] = p
	return p, nil
}

// single wraps a one-shot call as a chunk sequence.
func single(call func() (*stream.Chunk, error)) iter.Seq2[*stream.Chunk, error] {
	return func(yield func(*stream.Chunk, error) bool) {
		chunk, err := call()
		yield(chunk, err)
	}
}
