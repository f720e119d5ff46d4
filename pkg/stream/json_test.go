package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestParseChunkJSON(t *testing.T) {
	t.Run("should parse camelCase gemini chunk", func(t *testing.T) {
		raw := `{"candidates":[{"index":0,"content":{"role":"model","parts":[
			{"text":"hmm","thought":true},
			{"text":"done"},
			{"functionCall":{"id":"c1","name":"execute_command","args":{"command":"id"}}}
		]},"finishReason":"STOP"}],
		"usageMetadata":{"thoughtsTokenCount":4,"candidatesTokenCount":6,"totalTokenCount":15,"promptTokenCount":5},
		"responseId":"abc","modelVersion":"gemini-2.5-flash"}`

		chunk, err := ParseChunkJSON([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, SchemaVersion, chunk.Version)
		assert.Equal(t, "abc", chunk.ResponseID)
		assert.Equal(t, &Usage{PromptTokens: 5, ThinkingTokens: 4, OutputTokens: 6, TotalTokens: 15}, chunk.Usage)

		require.Len(t, chunk.Candidates, 1)
		c := chunk.Candidates[0]
		assert.Equal(t, 0, *c.Index)
		assert.Equal(t, "model", c.Role)
		assert.Equal(t, "STOP", c.FinishReason)
		require.Len(t, c.Parts, 3)
		assert.True(t, *c.Parts[0].Thought)
		assert.Nil(t, c.Parts[1].Thought)
		assert.Equal(t, "execute_command", c.Parts[2].FunctionCall.Name)
		assert.Equal(t, "id", c.Parts[2].FunctionCall.Args["command"])
	})

	t.Run("should parse wrapped snake_case chunk", func(t *testing.T) {
		raw := `{"response":{"candidates":[{"content":{"parts":[{"text":"x","thought":"summary"}]},"finish_reason":"MAX_TOKENS"}],
			"usage_metadata":{"thoughts_token_count":1,"candidates_token_count":2,"total_token_count":3},
			"prompt_feedback":{"block_reason":"OTHER"},"response_id":"r","model_version":"m"}}`

		chunk, err := ParseChunkJSON([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, "r", chunk.ResponseID)
		assert.Equal(t, "m", chunk.ModelVersion)
		assert.Equal(t, 3, chunk.Usage.TotalTokens)
		assert.Equal(t, "OTHER", chunk.PromptFeedback.BlockReason)
		c := chunk.Candidates[0]
		assert.Nil(t, c.Index)
		assert.Equal(t, "MAX_TOKENS", c.FinishReason)
		assert.Equal(t, "summary", c.Parts[0].ThoughtMarker)
		assert.True(t, Classify(c.Parts[0]))
	})

	t.Run("should split delta parts from terminal content", func(t *testing.T) {
		raw := `{"candidates":[{"index":2,"delta":{"parts":[{"text":"a","kind":"thought"}]},"content":{"role":"model","parts":[{"text":"full"}]}}]}`
		chunk, err := ParseChunkJSON([]byte(raw))
		require.NoError(t, err)
		c := chunk.Candidates[0]
		assert.Equal(t, 2, *c.Index)
		require.Len(t, c.Parts, 1)
		assert.Equal(t, "thought", c.Parts[0].Kind)
		require.NotNil(t, c.Content)
		assert.Equal(t, "full", c.Content.Parts[0].Text)
	})

	t.Run("should reject invalid payloads", func(t *testing.T) {
		_, err := ParseChunkJSON([]byte(`{"candidates":`))
		assert.ErrorIs(t, err, ErrInvalidChunk)
		_, err = ParseChunkJSON([]byte(`[1,2]`))
		assert.ErrorIs(t, err, ErrInvalidChunk)
	})

	t.Run("should aggregate parsed chunks", func(t *testing.T) {
		var chunks []*Chunk
		for _, raw := range []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"lo"}]}}],"usageMetadata":{"totalTokenCount":9}}`,
		} {
			c, err := ParseChunkJSON([]byte(raw))
			require.NoError(t, err)
			chunks = append(chunks, c)
		}
		resp, err := Aggregate(context.Background(), Chunks(chunks...), nil)
		require.NoError(t, err)
		assert.Equal(t, "Hello", resp.FinalText())
		assert.Equal(t, 9, resp.Usage.TotalTokens)
	})
}

func TestFromGenAI(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		ResponseID:   "rid",
		ModelVersion: "gemini-2.5-flash",
		Candidates: []*genai.Candidate{
			{
				Index:        0,
				FinishReason: genai.FinishReasonStop,
				Content: &genai.Content{Role: "model", Parts: []*genai.Part{
					{Text: "reasoning", Thought: true},
					{Text: "answer"},
					{FunctionCall: &genai.FunctionCall{ID: "f1", Name: "searchsploit_lookup", Args: map[string]any{"query": "apache"}}},
				}},
			},
			{Index: 0, Content: &genai.Content{Parts: []*genai.Part{{Text: "second"}}}},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			ThoughtsTokenCount:   11,
			CandidatesTokenCount: 22,
			TotalTokenCount:      40,
		},
	}

	chunk := FromGenAI(resp)
	require.NotNil(t, chunk)
	assert.Equal(t, "rid", chunk.ResponseID)
	assert.Equal(t, &Usage{ThinkingTokens: 11, OutputTokens: 22, TotalTokens: 40}, chunk.Usage)
	assert.Nil(t, chunk.PromptFeedback)
	require.Len(t, chunk.Candidates, 2)

	first := chunk.Candidates[0]
	assert.Equal(t, 0, *first.Index)
	assert.Equal(t, "model", first.Role)
	assert.Equal(t, "STOP", first.FinishReason)
	assert.True(t, Classify(first.Parts[0]))
	assert.False(t, Classify(first.Parts[1]))
	assert.Equal(t, "f1", first.Parts[2].FunctionCall.ID)

	assert.Nil(t, chunk.Candidates[1].Index, "zero index past the first position is treated as missing")
	assert.Nil(t, FromGenAI(nil))

	agg, err := Aggregate(context.Background(), Chunks(chunk), nil)
	require.NoError(t, err)
	require.Len(t, agg.Candidates, 2)
	assert.Equal(t, "second", agg.Candidates[1].Text())
}
