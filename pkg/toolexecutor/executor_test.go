package toolexecutor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/bounter/pkg/session"
)

// trail captures recorder and observer calls in one ordered log.
type trail struct {
	mu      sync.Mutex
	entries []string
	events  []ToolEvent
	records []session.CommandRecord
}

func (tr *trail) LogCommand(rec session.CommandRecord) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.entries = append(tr.entries, "record")
	tr.records = append(tr.records, rec)
}

func (tr *trail) observe(ev ToolEvent) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.entries = append(tr.entries, string(ev.Phase))
	tr.events = append(tr.events, ev)
}

func newTracked(t *testing.T, defs ...ToolDefinition) (*ToolExecutor, *trail) {
	t.Helper()
	te := New()
	tr := &trail{}
	te.SetRecorder(tr)
	te.SetObserver(tr.observe)
	for _, def := range defs {
		require.NoError(t, te.RegisterTool(def))
	}
	return te, tr
}

func rc(v int) *int { return &v }

func echoTool() ToolDefinition {
	return ToolDefinition{
		Name:        "echo",
		Description: "Echo tool",
		Parameters: []ToolParameter{
			{Name: "message", Type: "string", Description: "Message to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (*ToolResult, error) {
			msg := args["message"].(string)
			return &ToolResult{Command: "echo " + msg, Success: true, Stdout: msg, ReturnCode: rc(0)}, nil
		},
	}
}

func TestToolExecutor_RegisterTool(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))

	tool := te.GetTool("echo")
	require.NotNil(t, tool)
	assert.Equal(t, "echo", tool.Name)
	assert.Equal(t, []string{"echo"}, te.ListTools())
}

func TestToolExecutor_RegisterTool_InvalidDefinition(t *testing.T) {
	noop := func(ctx context.Context, args map[string]any) (*ToolResult, error) { return nil, nil }

	tests := []struct {
		name string
		def  ToolDefinition
	}{
		{name: "empty name", def: ToolDefinition{Description: "Test", Handler: noop}},
		{name: "empty description", def: ToolDefinition{Name: "test", Handler: noop}},
		{name: "nil handler", def: ToolDefinition{Name: "test", Description: "Test"}},
		{name: "bad param type", def: ToolDefinition{Name: "test", Description: "Test", Handler: noop,
			Parameters: []ToolParameter{{Name: "p", Type: "tuple", Description: "p"}}}},
		{name: "missing param description", def: ToolDefinition{Name: "test", Description: "Test", Handler: noop,
			Parameters: []ToolParameter{{Name: "p", Type: "string"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, New().RegisterTool(tt.def))
		})
	}
}

func TestToolExecutor_Execute_Success(t *testing.T) {
	te, tr := newTracked(t, echoTool())

	result := te.Execute(context.Background(), "echo", map[string]any{"message": "Hello"})

	assert.True(t, result.Success)
	assert.Equal(t, "Hello", result.Stdout)
	assert.Equal(t, "echo", result.ToolName)
	assert.Equal(t, "echo Hello", result.Command)
	assert.Empty(t, result.Error)

	require.Len(t, tr.records, 1)
	assert.Equal(t, "echo Hello", tr.records[0].Command)
	assert.Equal(t, 0, *tr.records[0].ReturnCode)
}

func TestToolExecutor_Execute_EventOrder(t *testing.T) {
	te, tr := newTracked(t, echoTool())

	te.Execute(context.Background(), "echo", map[string]any{"message": "a"})
	te.Execute(context.Background(), "echo", map[string]any{"message": "b"})

	assert.Equal(t, []string{"start", "record", "end", "start", "record", "end"}, tr.entries)
	require.Len(t, tr.events, 4)
	assert.Equal(t, tr.events[0].EventID, tr.events[1].EventID)
	assert.Equal(t, tr.events[2].EventID, tr.events[3].EventID)
	assert.NotEqual(t, tr.events[0].EventID, tr.events[2].EventID)
	assert.True(t, tr.events[1].Success)
}

func TestToolExecutor_Execute_FailuresReportedOnce(t *testing.T) {
	failing := ToolDefinition{
		Name:        "failing_tool",
		Description: "A tool that fails",
		Handler: func(ctx context.Context, args map[string]any) (*ToolResult, error) {
			return nil, errors.New("handler error")
		},
	}
	nonZero := ToolDefinition{
		Name:        "exit_tool",
		Description: "Exits non-zero",
		Handler: func(ctx context.Context, args map[string]any) (*ToolResult, error) {
			return &ToolResult{Command: "false", ReturnCode: rc(1), Stderr: "boom"}, nil
		},
	}
	slow := ToolDefinition{
		Name:        "slow_tool",
		Description: "A slow tool",
		Timeout:     50 * time.Millisecond,
		Handler: func(ctx context.Context, args map[string]any) (*ToolResult, error) {
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			return &ToolResult{Success: true}, nil
		},
	}

	tests := []struct {
		name      string
		tool      string
		args      map[string]any
		errSubstr string
	}{
		{name: "handler error", tool: "failing_tool", errSubstr: "handler error"},
		{name: "non-zero exit", tool: "exit_tool"},
		{name: "timeout", tool: "slow_tool", errSubstr: ErrToolTimeout.Error()},
		{name: "validation", tool: "echo", args: map[string]any{}, errSubstr: "validation"},
		{name: "unknown argument", tool: "echo", args: map[string]any{"message": "x", "extra": 1}, errSubstr: "validation"},
		{name: "not found", tool: "nonexistent", errSubstr: "tool not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te, tr := newTracked(t, echoTool(), failing, nonZero, slow)

			result := te.Execute(context.Background(), tt.tool, tt.args)

			assert.False(t, result.Success)
			if tt.errSubstr != "" {
				assert.Contains(t, result.Error, tt.errSubstr)
			}
			assert.Equal(t, []string{"start", "record", "end"}, tr.entries)
			assert.Equal(t, tr.events[0].EventID, tr.events[1].EventID)
			assert.False(t, tr.records[0].Success)
		})
	}
}

func TestToolExecutor_Execute_TimeoutStderr(t *testing.T) {
	te := New()
	te.SetDefaultTimeout(20 * time.Millisecond)
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "sleepy",
		Description: "Sleeps",
		Handler: func(ctx context.Context, args map[string]any) (*ToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	result := te.Execute(context.Background(), "sleepy", nil)
	assert.False(t, result.Success)
	assert.Nil(t, result.ReturnCode)
	assert.Contains(t, result.Stderr, "timed out")
}

func TestToolExecutor_Execute_Policy(t *testing.T) {
	te, tr := newTracked(t, echoTool())
	te.SetPolicy(NewToolPolicy([]string{"*"}, []string{"echo"}))

	result := te.Execute(context.Background(), "echo", map[string]any{"message": "x"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, ErrToolDenied.Error())
	assert.Len(t, tr.records, 1)
	assert.Empty(t, te.Declarations())
}

func TestToolExecutor_Execute_ExecContext(t *testing.T) {
	te := New()
	var got *ExecutionContext
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "peek",
		Description: "Reads its execution context",
		Handler: func(ctx context.Context, args map[string]any) (*ToolResult, error) {
			got = ExecContextFromContext(ctx)
			return &ToolResult{Success: true}, nil
		},
	}))

	te.Execute(context.Background(), "peek", nil)

	require.NotNil(t, got)
	assert.Equal(t, "peek", got.ToolName)
	assert.Equal(t, DefaultTimeout, got.Timeout)
	assert.NotEmpty(t, got.EventID)
}

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) observe(ev ToolEvent) {
	m.Called(ev.Phase, ev.ToolName)
}

func TestObservers_FanOut(t *testing.T) {
	first, second := &mockObserver{}, &mockObserver{}
	first.On("observe", PhaseStart, "echo").Once()
	first.On("observe", PhaseEnd, "echo").Once()
	second.On("observe", PhaseStart, "echo").Once()
	second.On("observe", PhaseEnd, "echo").Once()

	te := New()
	te.SetObserver(Observers(first.observe, nil, second.observe))
	require.NoError(t, te.RegisterTool(echoTool()))

	te.Execute(context.Background(), "echo", map[string]any{"message": "x"})

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestToolExecutor_Declarations(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "alpha",
		Description: "First alphabetically",
		Parameters: []ToolParameter{
			{Name: "mode", Type: "string", Description: "mode", Enum: []string{"a", "b"}},
			{Name: "pkgs", Type: "array", Description: "packages"},
		},
		Handler: func(ctx context.Context, args map[string]any) (*ToolResult, error) { return nil, nil },
	}))

	decls := te.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, "alpha", decls[0].Name)
	props := decls[0].Schema["properties"].(map[string]any)
	assert.Equal(t, []any{"a", "b"}, props["mode"].(map[string]any)["enum"])
	assert.Equal(t, map[string]any{"type": "string"}, props["pkgs"].(map[string]any)["items"])
	assert.Equal(t, []string{"message"}, decls[1].Schema["required"])
}

func TestToolResult_ResponseMap(t *testing.T) {
	big := make([]byte, MaxResponseOutput+10)
	for i := range big {
		big[i] = 'x'
	}
	res := ToolResult{
		ToolName:   "execute_command",
		Command:    "id",
		Success:    true,
		Stdout:     string(big),
		ReturnCode: rc(0),
		Output:     map[string]any{"success": false, "port": "4444"},
	}

	m := res.ResponseMap()
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "4444", m["port"])
	assert.Equal(t, 0, m["return_code"])
	assert.Contains(t, m["stdout"], "[output truncated]")
	assert.NotContains(t, m, "error")
}
