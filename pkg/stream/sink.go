package stream

import "sync"

// Sink receives classified text as it streams in. Calls come from the
// aggregating goroutine, in arrival order.
type Sink interface {
	OnThought(text string)
	OnOutput(text string)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	Thought func(text string)
	Output  func(text string)
}

func (s SinkFuncs) OnThought(text string) {
	if s.Thought != nil {
		s.Thought(text)
	}
}

func (s SinkFuncs) OnOutput(text string) {
	if s.Output != nil {
		s.Output(text)
	}
}

// DiscardSink drops everything.
var DiscardSink Sink = SinkFuncs{}

// Recorder is a Sink that keeps every fragment. Useful for tests and
// transcripts.
type Recorder struct {
	mu       sync.Mutex
	Thoughts []string
	Outputs  []string
}

func (r *Recorder) OnThought(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Thoughts = append(r.Thoughts, text)
}

func (r *Recorder) OnOutput(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outputs = append(r.Outputs, text)
}
