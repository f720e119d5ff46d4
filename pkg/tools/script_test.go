package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pythonRegistry(t *testing.T) *ScriptRegistry {
	t.Helper()
	requireBinary(t, "python3")
	r := NewScriptRegistry("python3")
	t.Cleanup(func() { r.Close() })
	return r
}

func TestScriptRegistry_PersistentSession(t *testing.T) {
	r := pythonRegistry(t)
	ctx := context.Background()

	out, err := r.Run(ctx, "", "x = 21\nprint('set')", false, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "set", out.Stdout)
	assert.Empty(t, out.Error)
	assert.Contains(t, out.Variables, "x")

	out, err = r.Run(ctx, DefaultScriptSession, "x * 2", false, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "42", out.ResultRepr)
	assert.Equal(t, 2, out.HistoryLength)

	out, err = r.Run(ctx, "other", "'x' in globals()", false, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "False", out.ResultRepr)

	out, err = r.Run(ctx, DefaultScriptSession, "'x' in globals()", true, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "False", out.ResultRepr)
	assert.Equal(t, 2, r.Count())
}

func TestScriptRegistry_Errors(t *testing.T) {
	r := pythonRegistry(t)
	ctx := context.Background()

	t.Run("should return traceback", func(t *testing.T) {
		out, err := r.Run(ctx, "err", "1/0", false, 10*time.Second)
		require.NoError(t, err)
		assert.Contains(t, out.Error, "ZeroDivisionError")
	})

	t.Run("should survive SystemExit", func(t *testing.T) {
		out, err := r.Run(ctx, "err", "import sys\nsys.exit(3)", false, 10*time.Second)
		require.NoError(t, err)
		assert.Contains(t, out.Error, "SystemExit")

		out, err = r.Run(ctx, "err", "1 + 1", false, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "2", out.ResultRepr)
	})

	t.Run("should time out and restart", func(t *testing.T) {
		_, err := r.Run(ctx, "slow", "import time\ntime.sleep(5)", false, 200*time.Millisecond)
		assert.ErrorIs(t, err, ErrScriptTimeout)

		out, err := r.Run(ctx, "slow", "'time' in globals()", false, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "False", out.ResultRepr)
	})
}

func TestPythonTool(t *testing.T) {
	requireBinary(t, "python3")
	_, te, sc := newTestSuite(t, Options{})
	ctx := context.Background()

	res := te.Execute(ctx, ToolPython, map[string]any{"code": "    a = 5\n    print(a)"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "5", res.Stdout)
	assert.Equal(t, "a = 5\nprint(a)", res.Command)
	assert.Equal(t, "default", res.Output["session_id"])

	res = te.Execute(ctx, ToolPython, map[string]any{"code": "raise ValueError('nope')"})
	assert.False(t, res.Success)
	assert.Equal(t, 1, *res.ReturnCode)
	assert.Contains(t, res.Error, "ValueError")

	res = te.Execute(ctx, ToolPython, map[string]any{"code": "   "})
	assert.False(t, res.Success)

	res = te.Execute(ctx, ToolPython, map[string]any{"code": "import time; time.sleep(3)", "session_id": "t", "timeout": 1})
	assert.False(t, res.Success)
	assert.Equal(t, "Timeout", res.Error)

	assert.Len(t, sc.Commands(), 4)
}
