package stream

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseChunkJSON maps a raw JSON chunk onto the schema. It accepts the
// Gemini REST shape, optionally wrapped in {"response": ...}, in camelCase
// or snake_case spelling. A candidate with "delta" or top-level "parts"
// streams those parts and its "content" is treated as the terminal blob;
// otherwise "content.parts" are the streamed parts.
func ParseChunkJSON(data []byte) (*Chunk, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidChunk)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidChunk)
	}
	if wrapped := root.Get("response"); wrapped.IsObject() {
		root = wrapped
	}

	chunk := &Chunk{
		Version:      SchemaVersion,
		ResponseID:   field(root, "responseId", "response_id").String(),
		ModelVersion: field(root, "modelVersion", "model_version").String(),
	}

	if um := field(root, "usageMetadata", "usage_metadata"); um.IsObject() {
		chunk.Usage = &Usage{
			PromptTokens:   int(field(um, "promptTokenCount", "prompt_token_count").Int()),
			ThinkingTokens: int(field(um, "thoughtsTokenCount", "thoughts_token_count").Int()),
			OutputTokens:   int(field(um, "candidatesTokenCount", "candidates_token_count").Int()),
			TotalTokens:    int(field(um, "totalTokenCount", "total_token_count").Int()),
		}
	}
	if pf := field(root, "promptFeedback", "prompt_feedback"); pf.IsObject() {
		chunk.PromptFeedback = &PromptFeedback{
			BlockReason:        field(pf, "blockReason", "block_reason").String(),
			BlockReasonMessage: field(pf, "blockReasonMessage", "block_reason_message").String(),
		}
	}

	for _, c := range root.Get("candidates").Array() {
		chunk.Candidates = append(chunk.Candidates, parseCandidate(c))
	}
	return chunk, nil
}

func parseCandidate(c gjson.Result) ChunkCandidate {
	cand := ChunkCandidate{
		FinishReason: field(c, "finishReason", "finish_reason").String(),
		Role:         c.Get("role").String(),
	}
	if idx := c.Get("index"); idx.Exists() && idx.Type == gjson.Number {
		cand.Index = IntPtr(int(idx.Int()))
	}

	content := c.Get("content")
	streamed := c.Get("delta.parts")
	if !streamed.Exists() {
		streamed = c.Get("parts")
	}

	switch {
	case streamed.Exists():
		cand.Parts = parseParts(streamed)
		if content.IsObject() {
			cand.Content = &Content{
				Role:  content.Get("role").String(),
				Parts: parseParts(content.Get("parts")),
			}
		}
	case content.IsObject():
		cand.Parts = parseParts(content.Get("parts"))
		if cand.Role == "" {
			cand.Role = content.Get("role").String()
		}
	}
	return cand
}

func parseParts(parts gjson.Result) []RawPart {
	var out []RawPart
	for _, p := range parts.Array() {
		raw := RawPart{
			Text: p.Get("text").String(),
			Role: p.Get("role").String(),
			Kind: p.Get("kind").String(),
		}
		switch t := p.Get("thought"); t.Type {
		case gjson.True, gjson.False:
			raw.Thought = BoolPtr(t.Bool())
		case gjson.Null:
		default:
			if t.Exists() {
				raw.ThoughtMarker = t.Value()
			}
		}
		if fc := field(p, "functionCall", "function_call"); fc.IsObject() {
			call := &FunctionCall{
				ID:   fc.Get("id").String(),
				Name: fc.Get("name").String(),
			}
			if args, ok := fc.Get("args").Value().(map[string]any); ok {
				call.Args = args
			}
			raw.FunctionCall = call
		}
		out = append(out, raw)
	}
	return out
}

// field returns the first of the given keys that exists.
func field(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
