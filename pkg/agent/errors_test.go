package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    bool
	}{
		{"429 status", 429, "whatever", true},
		{"503 status", 503, "", true},
		{"quota message", 400, "Quota exceeded for metric", true},
		{"overloaded", 0, "model is overloaded, try later", true},
		{"resource exhausted", 0, "RESOURCE_EXHAUSTED", true},
		{"unavailable", 0, "UNAVAILABLE: backend", true},
		{"too many requests", 0, "Too Many Requests", true},
		{"auth failure", 401, "invalid api key", false},
		{"bad request", 400, "invalid argument", false},
		{"limit reached is a response keyword only", 0, "limit reached", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimitError(tt.status, tt.message))
		})
	}
}

func TestResponseIndicatesRateLimit(t *testing.T) {
	for _, text := range []string{"Rate limit hit", "rate-limit", "QUOTA exceeded", "429", "too many requests", "daily limit reached"} {
		assert.True(t, ResponseIndicatesRateLimit(text), text)
	}
	for _, text := range []string{"", "service overloaded", "all good", "exhausted wordlist"} {
		assert.False(t, ResponseIndicatesRateLimit(text), text)
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection reset")
	err := newTransportError(ProviderGemini, "gemini-2.5-flash", 0, cause)
	assert.Equal(t, KindOther, err.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "gemini request for model gemini-2.5-flash failed: connection reset", err.Error())

	limited := newTransportError(ProviderOpenAI, "gpt-4o", 429, errors.New("slow down"))
	assert.Equal(t, KindRateLimited, limited.Kind)
	assert.Equal(t, "rate_limited", limited.Kind.String())
	assert.Contains(t, limited.Error(), "status 429")
}
