package agent

import (
	"fmt"
	"sync"
	"time"
)

// ModelBudget is a per-model sliding-window request counter. A model is
// allowed while its requests inside the window stay below rpm-buffer.
// A nil budget allows everything.
type ModelBudget struct {
	mu       sync.Mutex
	limits   map[string]int
	buffer   int
	window   time.Duration
	requests map[string][]time.Time
	now      func() time.Time
}

// NewModelBudget returns nil when no limits are configured.
func NewModelBudget(limits map[string]int, buffer int, window time.Duration) *ModelBudget {
	if len(limits) == 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if buffer < 0 {
		buffer = 0
	}
	copied := make(map[string]int, len(limits))
	for model, rpm := range limits {
		copied[model] = rpm
	}
	return &ModelBudget{
		limits:   copied,
		buffer:   buffer,
		window:   window,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// threshold is the request count at which model is skipped, or 0 when the
// model has no limit.
func (b *ModelBudget) threshold(model string) int {
	rpm, ok := b.limits[model]
	if !ok || rpm <= 0 {
		return 0
	}
	return max(1, rpm-b.buffer)
}

// prune drops timestamps outside the window. Caller holds mu.
func (b *ModelBudget) prune(model string, now time.Time) []time.Time {
	cutoff := now.Add(-b.window)
	kept := b.requests[model][:0]
	for _, at := range b.requests[model] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.requests[model] = kept
	return kept
}

// Allow checks whether model may be dispatched now. The reason is set when
// it may not.
func (b *ModelBudget) Allow(model string) (bool, string) {
	if b == nil {
		return true, ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := b.threshold(model)
	if limit == 0 {
		return true, ""
	}
	used := len(b.prune(model, b.now()))
	if used >= limit {
		return false, fmt.Sprintf("proactive budget reached (%d requests in the last %s, limit %d)", used, b.window, limit)
	}
	return true, ""
}

// Record counts one backend request for model.
func (b *ModelBudget) Record(model string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests[model] = append(b.requests[model], b.now())
}

// Count returns the requests for model inside the current window.
func (b *ModelBudget) Count(model string) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prune(model, b.now()))
}
