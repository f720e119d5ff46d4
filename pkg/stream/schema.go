package stream

import (
	"iter"
	"strings"
)

// SchemaVersion is bumped whenever Chunk changes shape.
const SchemaVersion = 1

// Chunk is one partial response as delivered by a backend adapter.
type Chunk struct {
	Version        int
	Candidates     []ChunkCandidate
	Usage          *Usage
	PromptFeedback *PromptFeedback
	ResponseID     string
	ModelVersion   string
}

// ChunkCandidate is the slice of one candidate carried by a chunk. Index is
// nil when the backend omitted it. Parts are the fragments streamed in this
// chunk; Content is a complete content blob some backends attach only to
// the final chunk.
type ChunkCandidate struct {
	Index        *int
	Role         string
	Parts        []RawPart
	Content      *Content
	FinishReason string
}

// Content is a role plus parts.
type Content struct {
	Role  string
	Parts []RawPart
}

// RawPart is a fragment before classification. Any of Thought,
// ThoughtMarker, Role or Kind may mark it as reasoning; see ThoughtRules.
type RawPart struct {
	Text          string
	Thought       *bool
	ThoughtMarker any
	Role          string
	Kind          string
	FunctionCall  *FunctionCall
}

// FunctionCall is a tool invocation requested by the model. Signature is an
// opaque backend token that must be sent back with the call.
type FunctionCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args,omitempty"`
	Signature []byte         `json:"-"`
}

// Usage is token accounting for one response.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ThinkingTokens int `json:"thinking_tokens"`
	OutputTokens   int `json:"output_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

// PromptFeedback reports a blocked prompt.
type PromptFeedback struct {
	BlockReason        string `json:"block_reason,omitempty"`
	BlockReasonMessage string `json:"block_reason_message,omitempty"`
}

// Part is a classified fragment. IsThought is fixed when the part is first
// observed.
type Part struct {
	Text         string
	IsThought    bool
	FunctionCall *FunctionCall
}

// Candidate is one reassembled answer.
type Candidate struct {
	Index        int
	Role         string
	Parts        []Part
	FinishReason string
}

// Text concatenates every text part in order.
func (c Candidate) Text() string {
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// segments returns the runs of consecutive text parts of one kind. A part
// of the other kind or a function call ends a run.
func (c Candidate) segments(thought bool) []string {
	var out []string
	var run strings.Builder
	flush := func() {
		if s := strings.TrimSpace(run.String()); s != "" {
			out = append(out, run.String())
		}
		run.Reset()
	}
	for _, p := range c.Parts {
		if p.FunctionCall != nil || p.IsThought != thought {
			flush()
			continue
		}
		run.WriteString(p.Text)
	}
	flush()
	return out
}

// AggregatedResponse is the logical response built from a whole stream.
type AggregatedResponse struct {
	Candidates     []Candidate
	Usage          *Usage
	PromptFeedback *PromptFeedback
	ResponseID     string
	ModelVersion   string
	Chunks         int
}

// Primary returns the lowest-index candidate, or nil.
func (r *AggregatedResponse) Primary() *Candidate {
	if r == nil || len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// FinalText is the answer text of the primary candidate: output segments
// joined with newlines. Empty means the model produced no final answer.
func (r *AggregatedResponse) FinalText() string {
	c := r.Primary()
	if c == nil {
		return ""
	}
	return strings.Join(c.segments(false), "\n")
}

// ThoughtSegments returns the reasoning runs of the primary candidate.
func (r *AggregatedResponse) ThoughtSegments() []string {
	c := r.Primary()
	if c == nil {
		return nil
	}
	return c.segments(true)
}

// ThoughtText joins ThoughtSegments with newlines.
func (r *AggregatedResponse) ThoughtText() string {
	return strings.Join(r.ThoughtSegments(), "\n")
}

// AllText returns the text of every part of every candidate, thoughts
// included, one candidate per line.
func (r *AggregatedResponse) AllText() string {
	if r == nil {
		return ""
	}
	texts := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		texts = append(texts, c.Text())
	}
	return strings.Join(texts, "\n")
}

// FunctionCalls returns the primary candidate's function calls in order.
func (r *AggregatedResponse) FunctionCalls() []FunctionCall {
	c := r.Primary()
	if c == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range c.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, *p.FunctionCall)
		}
	}
	return calls
}

// Chunks turns a fixed list into a sequence.
func Chunks(chunks ...*Chunk) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Failed is a sequence that yields err and stops.
func Failed(err error) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		yield(nil, err)
	}
}

// IntPtr is a convenience for ChunkCandidate.Index.
func IntPtr(v int) *int { return &v }

// BoolPtr is a convenience for RawPart.Thought.
func BoolPtr(v bool) *bool { return &v }
