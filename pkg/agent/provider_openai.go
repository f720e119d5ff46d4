package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harun/bounter/pkg/stream"
)

// OpenAIProvider implements LLMProvider for OpenAI
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name
func (p *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

// Stream makes one chat completion call and yields it as a single chunk.
func (p *OpenAIProvider) Stream(ctx context.Context, request LLMRequest) iter.Seq2[*stream.Chunk, error] {
	return single(func() (*stream.Chunk, error) {
		return p.call(ctx, request)
	})
}

func (p *OpenAIProvider) call(ctx context.Context, request LLMRequest) (*stream.Chunk, error) {
	messages, err := openAIMessages(request)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(request.Tools))
		for _, decl := range request.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        decl.Name,
					Description: openai.String(decl.Description),
					Parameters:  openai.FunctionParameters(decl.Schema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, newTransportError(ProviderOpenAI, request.Model, status, err)
	}

	chunk := &stream.Chunk{
		Version:      stream.SchemaVersion,
		ResponseID:   response.ID,
		ModelVersion: response.Model,
		Usage: &stream.Usage{
			PromptTokens:   int(response.Usage.PromptTokens),
			ThinkingTokens: int(response.Usage.CompletionTokensDetails.ReasoningTokens),
			OutputTokens:   int(response.Usage.CompletionTokens),
			TotalTokens:    int(response.Usage.TotalTokens),
		},
	}

	for i, choice := range response.Choices {
		cand := stream.ChunkCandidate{
			Index:        stream.IntPtr(i),
			Role:         RoleModel,
			FinishReason: choice.FinishReason,
		}
		if choice.Message.Content != "" {
			cand.Parts = append(cand.Parts, stream.RawPart{Text: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
			}
			cand.Parts = append(cand.Parts, stream.RawPart{
				FunctionCall: &stream.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Args: args},
			})
		}
		chunk.Candidates = append(chunk.Candidates, cand)
	}
	return chunk, nil
}

func openAIMessages(request LLMRequest) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if request.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(request.SystemInstruction))
	}

	for _, msg := range request.Messages {
		switch msg.Role {
		case RoleModel:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Text))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool parameters: %w", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Text,
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistant.ToParam())

		case RoleTool:
			for _, res := range msg.ToolResults {
				payload, err := json.Marshal(res.Response)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool result: %w", err)
				}
				messages = append(messages, openai.ToolMessage(string(payload), res.CallID))
			}

		default:
			messages = append(messages, openai.UserMessage(msg.Text))
		}
	}
	return messages, nil
}
