package agent

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoModelsAvailable is returned when every model was skipped or the
	// list was empty and no other error was captured.
	ErrNoModelsAvailable = errors.New("no models available to process the request")

	// ErrIncompleteAnswer means the stream completed without final text.
	ErrIncompleteAnswer = errors.New("model returned no final answer")

	// ErrProviderNotConfigured means a model was routed to a backend
	// without credentials.
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// BudgetError is returned instead of a backend call when the model's
// request budget for the current window is spent.
type BudgetError struct {
	Model  string
	Reason string
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("model %s: %s", e.Model, e.Reason)
}

// ErrorKind subdivides transport errors.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindRateLimited
)

func (k ErrorKind) String() string {
	if k == KindRateLimited {
		return "rate_limited"
	}
	return "other"
}

// TransportError is a network or backend failure.
type TransportError struct {
	Provider   string
	Model      string
	StatusCode int
	Kind       ErrorKind
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request for model %s failed (status %d): %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request for model %s failed: %v", e.Provider, e.Model, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// newTransportError wraps err and classifies it.
func newTransportError(provider, model string, status int, err error) *TransportError {
	te := &TransportError{Provider: provider, Model: model, StatusCode: status, Err: err}
	if IsRateLimitError(status, err.Error()) {
		te.Kind = KindRateLimited
	}
	return te
}

// Keywords that mark a successful response as a disguised rate limit.
var responseRateLimitKeywords = []string{
	"rate limit",
	"rate-limit",
	"quota",
	"too many requests",
	"429",
	"limit reached",
}

// Keywords that mark a transport error as a rate or availability limit.
var transportRateLimitKeywords = []string{
	"rate limit",
	"quota",
	"too many requests",
	"overloaded",
	"unavailable",
	"exhausted",
}

// IsRateLimitError reports whether a transport failure is a rate or
// availability limit.
func IsRateLimitError(status int, message string) bool {
	if status == 429 || status == 503 {
		return true
	}
	return containsAny(message, transportRateLimitKeywords)
}

// ResponseIndicatesRateLimit reports whether response text carries a rate
// limit signal.
func ResponseIndicatesRateLimit(text string) bool {
	return containsAny(text, responseRateLimitKeywords)
}

func containsAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
