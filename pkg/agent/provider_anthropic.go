package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harun/bounter/pkg/stream"
)

const (
	anthropicMaxTokens = 8192
	// anthropicMinThinking is the smallest budget the API accepts.
	anthropicMinThinking = 1024
)

// AnthropicProvider implements LLMProvider for Anthropic Claude
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name
func (p *AnthropicProvider) Provider() string {
	return ProviderAnthropic
}

// Stream makes one Messages call and yields it as a single chunk.
func (p *AnthropicProvider) Stream(ctx context.Context, request LLMRequest) iter.Seq2[*stream.Chunk, error] {
	return single(func() (*stream.Chunk, error) {
		return p.call(ctx, request)
	})
}

func (p *AnthropicProvider) call(ctx context.Context, request LLMRequest) (*stream.Chunk, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  anthropicMessages(request.Messages),
		MaxTokens: anthropicMaxTokens,
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = int64(request.MaxTokens)
	}
	if request.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: request.SystemInstruction}}
	}

	// Extended thinking requires the default temperature and an explicit budget.
	if t := request.Thinking; t != nil && t.Budget >= anthropicMinThinking {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(t.Budget))
		if params.MaxTokens <= int64(t.Budget) {
			params.MaxTokens = int64(t.Budget) + anthropicMaxTokens
		}
	} else if request.Temperature > 0 {
		params.Temperature = anthropic.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(request.Tools))
		for _, decl := range request.Tools {
			tool := anthropic.ToolParam{
				Name:        decl.Name,
				Description: anthropic.String(decl.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: decl.Schema["properties"],
					Required:   stringList(decl.Schema["required"]),
				},
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
		}
		params.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, newTransportError(ProviderAnthropic, request.Model, status, err)
	}

	cand := stream.ChunkCandidate{
		Index:        stream.IntPtr(0),
		Role:         RoleModel,
		FinishReason: string(response.StopReason),
	}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			cand.Parts = append(cand.Parts, stream.RawPart{Text: b.Text})
		case anthropic.ThinkingBlock:
			cand.Parts = append(cand.Parts, stream.RawPart{Text: b.Thinking, Thought: stream.BoolPtr(true)})
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			cand.Parts = append(cand.Parts, stream.RawPart{
				FunctionCall: &stream.FunctionCall{ID: b.ID, Name: b.Name, Args: args},
			})
		}
	}

	in, out := int(response.Usage.InputTokens), int(response.Usage.OutputTokens)
	return &stream.Chunk{
		Version:      stream.SchemaVersion,
		Candidates:   []stream.ChunkCandidate{cand},
		ResponseID:   response.ID,
		ModelVersion: string(response.Model),
		Usage: &stream.Usage{
			PromptTokens: in,
			OutputTokens: out,
			TotalTokens:  in + out,
		},
	}, nil
}

func anthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolResults))
			for _, res := range msg.ToolResults {
				payload, _ := json.Marshal(res.Response)
				isError := false
				if ok, present := res.Response["success"].(bool); present {
					isError = !ok
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(res.CallID, string(payload), isError))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))

		case RoleModel:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.Name))
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})

		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
		}
	}
	return out
}
