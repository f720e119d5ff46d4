package agent

import (
	"github.com/harun/bounter/pkg/stream"
	"github.com/harun/bounter/pkg/toolexecutor"
)

// Message roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
	RoleTool  = "tool"
)

// ToolModeAuto lets the model decide when to call tools.
const ToolModeAuto = "AUTO"

// Message is one conversation turn in provider-neutral form.
type Message struct {
	Role        string
	Text        string
	ToolCalls   []stream.FunctionCall
	ToolResults []ToolResponse
}

// ToolResponse carries a tool result back to the model.
type ToolResponse struct {
	CallID   string
	Name     string
	Response map[string]any
}

// ThinkingConfig asks a backend to reason before answering.
type ThinkingConfig struct {
	Budget          int // -1 lets the backend decide
	IncludeThoughts bool
}

// LLMRequest is one backend call.
type LLMRequest struct {
	Model             string
	Messages          []Message
	SystemInstruction string
	Temperature       float64
	MaxTokens         int
	Thinking          *ThinkingConfig
	Tools             []toolexecutor.Declaration
	ToolMode          string
}

// ModelAttempt identifies one dispatch. Attempt is 1-based within the
// model, GlobalAttempt across the whole run. PreviousModels lists the
// distinct models dispatched before this attempt.
type ModelAttempt struct {
	Model          string
	Attempt        int
	GlobalAttempt  int
	PreviousModels []string
}

// Result is a successful run.
type Result struct {
	Response    *stream.AggregatedResponse
	Model       string
	FinalAnswer string
	Attempts    []ModelAttempt
}
