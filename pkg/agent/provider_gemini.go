package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/harun/bounter/pkg/stream"
)

// GeminiProvider streams from the Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini client. baseURL is optional.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL string) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Provider returns the provider name
func (p *GeminiProvider) Provider() string {
	return ProviderGemini
}

// Stream issues a streaming generate call.
func (p *GeminiProvider) Stream(ctx context.Context, request LLMRequest) iter.Seq2[*stream.Chunk, error] {
	contents := geminiContents(request.Messages)
	cfg := geminiConfig(request)

	return func(yield func(*stream.Chunk, error) bool) {
		for resp, err := range p.client.Models.GenerateContentStream(ctx, request.Model, contents, cfg) {
			if err != nil {
				yield(nil, geminiError(request.Model, err))
				return
			}
			if !yield(stream.FromGenAI(resp), nil) {
				return
			}
		}
	}
}

func geminiConfig(request LLMRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(request.Temperature)),
	}
	if request.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(request.SystemInstruction, genai.RoleUser)
	}
	if t := request.Thinking; t != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: t.IncludeThoughts,
			ThinkingBudget:  genai.Ptr(int32(t.Budget)),
		}
	}

	if len(request.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(request.Tools))
		for _, d := range request.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  geminiSchema(d.Schema),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}

		mode := genai.FunctionCallingConfigModeAuto
		if strings.EqualFold(request.ToolMode, "none") {
			mode = genai.FunctionCallingConfigModeNone
		}
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}
	return cfg
}

func geminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleModel:
			content := &genai.Content{Role: string(genai.RoleModel)}
			if msg.Text != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(msg.Text))
			}
			for _, call := range msg.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall:     &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args},
					ThoughtSignature: call.Signature,
				})
			}
			contents = append(contents, content)

		case RoleTool:
			content := &genai.Content{Role: string(genai.RoleUser)}
			for _, res := range msg.ToolResults {
				part := genai.NewPartFromFunctionResponse(res.Name, res.Response)
				part.FunctionResponse.ID = res.CallID
				content.Parts = append(content.Parts, part)
			}
			contents = append(contents, content)

		default:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))
		}
	}
	return contents
}

// geminiSchema converts a JSON schema map into the SDK's schema type.
func geminiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if prop, ok := raw.(map[string]any); ok {
				s.Properties[name] = geminiSchema(prop)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = geminiSchema(items)
	}
	s.Required = stringList(m["required"])
	s.Enum = stringList(m["enum"])
	return s
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func geminiError(model string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newTransportError(ProviderGemini, model, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return newTransportError(ProviderGemini, model, apiErrPtr.Code, err)
	}
	return newTransportError(ProviderGemini, model, 0, err)
}
