package agent

import (
	"context"
	"iter"
	"sync"

	"github.com/harun/bounter/pkg/stream"
)

// answer is a one-chunk response with optional thought text.
func answer(text string, thoughts ...string) *stream.AggregatedResponse {
	cand := stream.Candidate{Role: RoleModel}
	for _, t := range thoughts {
		cand.Parts = append(cand.Parts, stream.Part{Text: t, IsThought: true})
	}
	if text != "" {
		cand.Parts = append(cand.Parts, stream.Part{Text: text})
	}
	return &stream.AggregatedResponse{Candidates: []stream.Candidate{cand}, Chunks: 1}
}

func textChunk(text string, thought bool) *stream.Chunk {
	part := stream.RawPart{Text: text}
	if thought {
		part.Thought = stream.BoolPtr(true)
	}
	return &stream.Chunk{Candidates: []stream.ChunkCandidate{{Index: stream.IntPtr(0), Parts: []stream.RawPart{part}}}}
}

func callChunk(id, name string, args map[string]any) *stream.Chunk {
	return &stream.Chunk{Candidates: []stream.ChunkCandidate{{
		Index: stream.IntPtr(0),
		Parts: []stream.RawPart{{FunctionCall: &stream.FunctionCall{ID: id, Name: name, Args: args}}},
	}}}
}

// turn is one scripted backend reply.
type turn struct {
	chunks []*stream.Chunk
	err    error
}

// fakeProvider replays scripted turns per model. The last turn of a model
// repeats once the script runs out.
type fakeProvider struct {
	mu       sync.Mutex
	script   map[string][]turn
	served   map[string]int
	requests []LLMRequest
}

func newFakeProvider(script map[string][]turn) *fakeProvider {
	return &fakeProvider{script: script, served: make(map[string]int)}
}

func (f *fakeProvider) ProviderFor(_ context.Context, _ string) (LLMProvider, error) {
	return f, nil
}

func (f *fakeProvider) Provider() string { return "fake" }

func (f *fakeProvider) Stream(_ context.Context, request LLMRequest) iter.Seq2[*stream.Chunk, error] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)

	turns := f.script[request.Model]
	if len(turns) == 0 {
		return stream.Chunks()
	}
	i := min(f.served[request.Model], len(turns)-1)
	f.served[request.Model]++
	if turns[i].err != nil {
		return stream.Failed(turns[i].err)
	}
	return stream.Chunks(turns[i].chunks...)
}

func (f *fakeProvider) calls(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.served[model]
}

func (f *fakeProvider) allRequests() []LLMRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LLMRequest(nil), f.requests...)
}
