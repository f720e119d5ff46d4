package stream

import (
	"context"
	"iter"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/harun/bounter/internal/observability"
	"github.com/harun/bounter/internal/tracing"
)

// readAhead bounds how many chunks the reader may buffer ahead of the
// consumer.
const readAhead = 16

type item struct {
	chunk *Chunk
	err   error
}

type candidateBuffer struct {
	index        int
	role         string
	roleSet      bool
	parts        []Part
	terminal     *Content
	finishReason string
}

// Aggregate consumes seq to the end and returns the reassembled response.
// Every part is classified and forwarded to sink as soon as its chunk
// arrives. A sequence error is returned unchanged; a sequence without any
// chunk fails with ErrEmptyStream.
func Aggregate(ctx context.Context, seq iter.Seq2[*Chunk, error], sink Sink) (*AggregatedResponse, error) {
	if sink == nil {
		sink = DiscardSink
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan item, readAhead)
	go func() {
		defer close(items)
		for chunk, err := range seq {
			select {
			case items <- item{chunk: chunk, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	model := tracing.GetModel(ctx)
	resp := &AggregatedResponse{}
	buffers := make(map[int]*candidateBuffer)

	for {
		var it item
		var ok bool
		select {
		case it, ok = <-items:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if !ok {
			break
		}
		if it.err != nil {
			return nil, it.err
		}
		if it.chunk == nil {
			continue
		}
		resp.Chunks++
		observability.RecordStreamChunk(model)
		absorb(resp, buffers, it.chunk, sink)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp.Chunks == 0 {
		log.Warn().Str("model", model).Msg("Stream closed without chunks")
		return nil, ErrEmptyStream
	}

	resp.Candidates = build(buffers)
	log.Debug().
		Str("model", model).
		Int("chunks", resp.Chunks).
		Int("candidates", len(resp.Candidates)).
		Msg("Stream aggregated")
	return resp, nil
}

// absorb merges one chunk into the buffers and forwards its parts.
func absorb(resp *AggregatedResponse, buffers map[int]*candidateBuffer, chunk *Chunk, sink Sink) {
	if chunk.Usage != nil {
		u := *chunk.Usage
		resp.Usage = &u
	}
	if chunk.PromptFeedback != nil {
		pf := *chunk.PromptFeedback
		resp.PromptFeedback = &pf
	}
	if chunk.ResponseID != "" {
		resp.ResponseID = chunk.ResponseID
	}
	if chunk.ModelVersion != "" {
		resp.ModelVersion = chunk.ModelVersion
	}

	for pos, cand := range chunk.Candidates {
		index := pos
		if cand.Index != nil {
			index = *cand.Index
		}
		buf, ok := buffers[index]
		if !ok {
			buf = &candidateBuffer{index: index}
			buffers[index] = buf
		}

		role := cand.Role
		if role == "" && cand.Content != nil {
			role = cand.Content.Role
		}
		if !buf.roleSet && role != "" {
			buf.role = role
			buf.roleSet = true
		}
		if cand.FinishReason != "" {
			buf.finishReason = cand.FinishReason
		}
		if cand.Content != nil {
			buf.terminal = cand.Content
		}

		for _, raw := range cand.Parts {
			part := classify(raw)
			buf.parts = append(buf.parts, part)
			forward(sink, part)
		}
	}
}

// build turns the buffers into candidates sorted by index. A candidate that
// never received streamed parts falls back to its terminal content.
func build(buffers map[int]*candidateBuffer) []Candidate {
	out := make([]Candidate, 0, len(buffers))
	for _, buf := range buffers {
		parts := buf.parts
		if len(parts) == 0 && buf.terminal != nil {
			for _, raw := range buf.terminal.Parts {
				parts = append(parts, classify(raw))
			}
		}
		out = append(out, Candidate{
			Index:        buf.index,
			Role:         buf.role,
			Parts:        parts,
			FinishReason: buf.finishReason,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func classify(raw RawPart) Part {
	p := Part{Text: raw.Text, IsThought: Classify(raw)}
	if raw.FunctionCall != nil {
		fc := *raw.FunctionCall
		p.FunctionCall = &fc
	}
	return p
}

func forward(sink Sink, p Part) {
	if p.Text == "" {
		return
	}
	observability.RecordStreamPart(p.IsThought)
	if p.IsThought {
		sink.OnThought(p.Text)
		return
	}
	sink.OnOutput(p.Text)
}
