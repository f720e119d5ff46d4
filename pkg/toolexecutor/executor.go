package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/bounter/internal/observability"
	"github.com/harun/bounter/internal/tracing"
	"github.com/harun/bounter/pkg/session"
)

const (
	// DefaultTimeout applies when neither the tool nor the executor sets one.
	DefaultTimeout = 30 * time.Second

	// MaxResponseOutput bounds stdout and stderr in the payload returned to
	// the model. The command log keeps the full text.
	MaxResponseOutput = 10 * 1024
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Items       string   `json:"items,omitempty"` // element type for arrays
}

// ToolHandler runs one invocation. A returned error becomes a failed
// result; it never aborts the model turn.
type ToolHandler func(ctx context.Context, args map[string]any) (*ToolResult, error)

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
	// Timeout overrides the executor default for this tool.
	Timeout time.Duration `json:"-"`
}

// ToolResult is what a tool invocation produced.
type ToolResult struct {
	ToolName   string         `json:"tool_name"`
	Command    string         `json:"command_executed"`
	Success    bool           `json:"success"`
	Stdout     string         `json:"stdout"`
	Stderr     string         `json:"stderr"`
	ReturnCode *int           `json:"return_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
}

// Declaration is the provider-neutral description of a tool.
type Declaration struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolExecutor is the tool registry and dispatcher for one model attempt.
type ToolExecutor struct {
	tools    map[string]*ToolDefinition
	schemas  map[string]*gojsonschema.Schema
	raw      map[string]map[string]any
	policy   *ToolPolicy
	recorder CommandRecorder
	observer Observer
	timeout  time.Duration
	mu       sync.RWMutex
}

// New creates an empty registry.
func New() *ToolExecutor {
	return &ToolExecutor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
		raw:     make(map[string]map[string]any),
		timeout: DefaultTimeout,
	}
}

// SetRecorder sets where completed invocations are logged.
func (te *ToolExecutor) SetRecorder(r CommandRecorder) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.recorder = r
}

// SetObserver sets the start/end event callback.
func (te *ToolExecutor) SetObserver(o Observer) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.observer = o
}

// SetPolicy restricts which registered tools may run.
func (te *ToolExecutor) SetPolicy(p *ToolPolicy) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.policy = p
}

// SetDefaultTimeout sets the per-invocation ceiling for tools without their own.
func (te *ToolExecutor) SetDefaultTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	te.mu.Lock()
	defer te.mu.Unlock()
	te.timeout = d
}

// RegisterTool registers a new tool
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	raw := buildSchemaMap(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()
	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema
	te.raw[def.Name] = raw

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// GetTool returns a tool definition by name
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()
	return te.tools[name]
}

// ListTools returns the registered tool names, sorted.
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()
	names := make([]string, 0, len(te.tools))
	for name := range te.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the tools the policy allows, sorted by name.
func (te *ToolExecutor) Declarations() []Declaration {
	te.mu.RLock()
	defer te.mu.RUnlock()
	out := make([]Declaration, 0, len(te.tools))
	for name, def := range te.tools {
		if !te.policy.IsToolAllowed(name) {
			continue
		}
		out = append(out, Declaration{Name: name, Description: def.Description, Schema: te.raw[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs one invocation. The observer sees a start event, the
// recorder gets exactly one command record, then the observer sees the end
// event carrying the same event id. Failures, timeouts and rejected
// arguments follow the same path and come back as Success=false.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, args map[string]any) ToolResult {
	if args == nil {
		args = map[string]any{}
	}
	eventID := uuid.NewString()
	started := time.Now()

	te.mu.RLock()
	recorder, observer := te.recorder, te.observer
	te.mu.RUnlock()

	ctx, span := tracing.StartSpan(ctx, "tool."+toolName,
		attribute.String("tool.name", toolName),
		attribute.String("tool.event_id", eventID),
	)
	defer span.End()

	command := describeCall(toolName, args)
	if observer != nil {
		observer(ToolEvent{
			EventID:   eventID,
			Phase:     PhaseStart,
			ToolName:  toolName,
			Command:   command,
			Args:      args,
			Timestamp: started,
		})
	}

	result := te.run(ctx, toolName, args, eventID)
	result.ToolName = toolName
	if result.Command == "" {
		result.Command = command
	}
	duration := time.Since(started)

	if recorder != nil {
		recorder.LogCommand(session.CommandRecord{
			ToolName:   toolName,
			Command:    result.Command,
			Success:    result.Success,
			ReturnCode: result.ReturnCode,
			Stdout:     result.Stdout,
			Stderr:     result.Stderr,
		})
	}

	if observer != nil {
		observer(ToolEvent{
			EventID:    eventID,
			Phase:      PhaseEnd,
			ToolName:   toolName,
			Command:    result.Command,
			Args:       args,
			Success:    result.Success,
			ReturnCode: result.ReturnCode,
			Stdout:     result.Stdout,
			Stderr:     result.Stderr,
			Error:      result.Error,
			Duration:   duration,
			Timestamp:  time.Now(),
		})
	}

	status := "success"
	if !result.Success {
		status = "failure"
		span.SetStatus(codes.Error, result.Error)
	}
	observability.RecordToolExecution(toolName, duration, result.Success)
	observability.RecordToolAudit(ctx, toolName, tracing.GetScanID(ctx), status, map[string]any{
		"event_id": eventID,
		"command":  result.Command,
	})

	return result
}

func (te *ToolExecutor) run(ctx context.Context, toolName string, args map[string]any, eventID string) ToolResult {
	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	policy := te.policy
	timeout := te.timeout
	te.mu.RUnlock()

	if tool == nil {
		log.Error().Str("tool", toolName).Msg("Tool not found")
		return ToolResult{Error: fmt.Sprintf("%v: %s", ErrToolNotFound, toolName)}
	}
	if !policy.IsToolAllowed(toolName) {
		log.Warn().Str("tool", toolName).Msg("Tool execution blocked by policy")
		return ToolResult{Error: fmt.Sprintf("%v: %s", ErrToolDenied, toolName)}
	}
	if err := validateParameters(schema, args); err != nil {
		log.Error().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		return ToolResult{Error: fmt.Sprintf("%v: %v", ErrInvalidArguments, err)}
	}

	if tool.Timeout > 0 {
		timeout = tool.Timeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	timeoutCtx = ContextWithExecContext(timeoutCtx, &ExecutionContext{
		ScanID:   tracing.GetScanID(ctx),
		EventID:  eventID,
		Timeout:  timeout,
		ToolName: toolName,
	})

	type outcome struct {
		res *ToolResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := tool.Handler(timeoutCtx, args)
		done <- outcome{res, err}
	}()

	log.Debug().Str("tool", toolName).Str("event_id", eventID).Msg("Executing tool")

	select {
	case out := <-done:
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return timeoutResult(toolName, timeout, out.res)
		}
		var result ToolResult
		if out.res != nil {
			result = *out.res
		}
		if out.err != nil {
			result.Success = false
			result.Error = fmt.Sprintf("%v: %v", ErrToolFailure, out.err)
			log.Warn().Str("tool", toolName).Err(out.err).Msg("Tool execution failed")
		}
		return result

	case <-timeoutCtx.Done():
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return timeoutResult(toolName, timeout, nil)
		}
		return ToolResult{Error: fmt.Sprintf("%v: %v", ErrToolFailure, timeoutCtx.Err())}
	}
}

// timeoutResult keeps whatever output the handler managed to collect.
func timeoutResult(toolName string, timeout time.Duration, partial *ToolResult) ToolResult {
	log.Warn().Str("tool", toolName).Dur("timeout", timeout).Msg("Tool execution timeout")
	var result ToolResult
	if partial != nil {
		result.Command = partial.Command
		result.Stdout = partial.Stdout
	}
	result.Success = false
	result.ReturnCode = nil
	result.Stderr = fmt.Sprintf("Command timed out after %d seconds", int(timeout.Seconds()))
	result.Error = fmt.Sprintf("%v after %v", ErrToolTimeout, timeout)
	return result
}

// ResponseMap is the payload returned to the model as the function response.
func (r ToolResult) ResponseMap() map[string]any {
	m := map[string]any{
		"tool_name":        r.ToolName,
		"command_executed": r.Command,
		"success":          r.Success,
		"stdout":           truncateOutput(r.Stdout),
		"stderr":           truncateOutput(r.Stderr),
	}
	if r.ReturnCode != nil {
		m["return_code"] = *r.ReturnCode
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	for k, v := range r.Output {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return m
}

func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, param.Name)
		}
		if param.Type == "array" && param.Items != "" && !validTypes[param.Items] {
			return fmt.Errorf("invalid item type %q for %s", param.Items, param.Name)
		}
	}
	return nil
}

func buildSchemaMap(def ToolDefinition) map[string]any {
	properties := make(map[string]any, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		p := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			p["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			enum := make([]any, len(param.Enum))
			for i, v := range param.Enum {
				enum[i] = v
			}
			p["enum"] = enum
		}
		if param.Type == "array" {
			items := param.Items
			if items == "" {
				items = "string"
			}
			p["items"] = map[string]any{"type": items}
		}
		properties[param.Name] = p
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func validateParameters(schema *gojsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// describeCall renders a call for logs when the handler reports no command.
func describeCall(toolName string, args map[string]any) string {
	if cmd, ok := args["command"].(string); ok && cmd != "" {
		return cmd
	}
	if len(args) == 0 {
		return toolName
	}
	data, err := json.Marshal(args)
	if err != nil {
		return toolName
	}
	return toolName + " " + string(data)
}

func truncateOutput(s string) string {
	if len(s) <= MaxResponseOutput {
		return s
	}
	log.Warn().Int("original", len(s)).Int("truncated", MaxResponseOutput).Msg("Output truncated")
	return s[:MaxResponseOutput] + "\n... [output truncated]"
}
