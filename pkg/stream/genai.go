package stream

import "google.golang.org/genai"

// FromGenAI maps a Gemini SDK response onto the chunk schema.
func FromGenAI(resp *genai.GenerateContentResponse) *Chunk {
	if resp == nil {
		return nil
	}
	chunk := &Chunk{
		Version:      SchemaVersion,
		ResponseID:   resp.ResponseID,
		ModelVersion: resp.ModelVersion,
	}

	if um := resp.UsageMetadata; um != nil {
		chunk.Usage = &Usage{
			PromptTokens:   int(um.PromptTokenCount),
			ThinkingTokens: int(um.ThoughtsTokenCount),
			OutputTokens:   int(um.CandidatesTokenCount),
			TotalTokens:    int(um.TotalTokenCount),
		}
	}
	if pf := resp.PromptFeedback; pf != nil && (pf.BlockReason != "" || pf.BlockReasonMessage != "") {
		chunk.PromptFeedback = &PromptFeedback{
			BlockReason:        string(pf.BlockReason),
			BlockReasonMessage: pf.BlockReasonMessage,
		}
	}

	for pos, c := range resp.Candidates {
		if c == nil {
			continue
		}
		cand := ChunkCandidate{FinishReason: string(c.FinishReason)}
		// The SDK reports a missing index as zero; only trust a zero
		// index in first position.
		if c.Index != 0 || pos == 0 {
			cand.Index = IntPtr(int(c.Index))
		}
		if c.Content != nil {
			cand.Role = c.Content.Role
			for _, p := range c.Content.Parts {
				if p == nil {
					continue
				}
				cand.Parts = append(cand.Parts, fromGenAIPart(p))
			}
		}
		chunk.Candidates = append(chunk.Candidates, cand)
	}
	return chunk
}

func fromGenAIPart(p *genai.Part) RawPart {
	raw := RawPart{Text: p.Text}
	// The SDK cannot tell false from absent, so only a set flag is kept.
	if p.Thought {
		raw.Thought = BoolPtr(true)
	}
	if fc := p.FunctionCall; fc != nil {
		raw.FunctionCall = &FunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args, Signature: p.ThoughtSignature}
	}
	return raw
}
