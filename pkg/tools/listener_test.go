package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catRegistry(t *testing.T) *ListenerRegistry {
	t.Helper()
	requireBinary(t, "cat")
	r := NewListenerRegistry("nc")
	r.SetCommandBuilder(func(port, bind string) []string { return []string{"cat"} })
	t.Cleanup(func() { r.StopAll() })
	return r
}

func TestNetcatCommand(t *testing.T) {
	build := NetcatCommand("nc")
	assert.Equal(t, []string{"nc", "-lnvp", "4444"}, build("4444", "0.0.0.0"))
	assert.Equal(t, []string{"nc", "-lnvp", "4444"}, build("4444", ""))
	assert.Equal(t, []string{"nc", "-lnvp", "4444", "-s", "10.0.0.2"}, build("4444", "10.0.0.2"))
}

func TestListenerRegistry_Lifecycle(t *testing.T) {
	r := catRegistry(t)

	l, err := r.Start(4444, "0.0.0.0")
	require.NoError(t, err)
	assert.True(t, l.Running())
	assert.Positive(t, l.PID())

	_, err = r.Start(4444, "0.0.0.0")
	assert.ErrorIs(t, err, ErrListenerRunning)

	require.NoError(t, l.Send("whoami"))
	require.Eventually(t, func() bool {
		out, _ := l.Read(false)
		return out == "whoami\n"
	}, 2*time.Second, 10*time.Millisecond)

	out, _ := l.Read(false)
	assert.Equal(t, "whoami\n", out, "non-draining read keeps the buffer")
	out, _ = l.Read(true)
	assert.Equal(t, "whoami\n", out)
	out, _ = l.Read(false)
	assert.Empty(t, out)

	stopped, err := r.Stop(4444)
	require.NoError(t, err)
	assert.False(t, stopped.Running())
	assert.NotNil(t, stopped.ExitCode())
	assert.Equal(t, 0, r.Count())

	_, err = r.Get(4444)
	assert.ErrorIs(t, err, ErrListenerNotTracked)
}

func TestListener_SendAfterExit(t *testing.T) {
	requireBinary(t, "sh")
	r := NewListenerRegistry("nc")
	r.SetCommandBuilder(func(port, bind string) []string { return []string{"sh", "-c", "exit 0"} })
	t.Cleanup(func() { r.StopAll() })

	l, err := r.Start(5555, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !l.Running() }, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, l.Send("id"), ErrProcessNotRunning)

	// a dead listener can be replaced
	_, err = r.Start(5555, "")
	assert.NoError(t, err)
}

func TestListenerRegistry_StopAll(t *testing.T) {
	r := catRegistry(t)
	for _, port := range []int{7001, 7002, 7003} {
		_, err := r.Start(port, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, r.StopAll())
	assert.Equal(t, 0, r.Count())
}

func TestNormalizePort(t *testing.T) {
	key, err := NormalizePort(8080)
	require.NoError(t, err)
	assert.Equal(t, "8080", key)

	for _, p := range []int{0, -1, 70000} {
		_, err := NormalizePort(p)
		assert.ErrorIs(t, err, ErrInvalidPort)
	}
}

func TestListenerTool(t *testing.T) {
	suite, te, sc := newTestSuite(t, Options{})
	requireBinary(t, "cat")
	suite.Listeners().SetCommandBuilder(func(port, bind string) []string { return []string{"cat"} })
	ctx := context.Background()

	res := te.Execute(ctx, ToolListener, map[string]any{"action": "start", "port": 9001})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "9001", res.Output["port"])

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "status", "port": 9001})
	require.True(t, res.Success)
	assert.Equal(t, true, res.Output["running"])
	assert.Nil(t, res.ReturnCode)

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "send", "port": 9001, "input_data": "id"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Output["bytes_sent"])

	require.Eventually(t, func() bool {
		l, _ := suite.Listeners().Get(9001)
		out, _ := l.Read(false)
		return out != ""
	}, 2*time.Second, 10*time.Millisecond)

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "read", "port": 9001})
	require.True(t, res.Success)
	assert.Equal(t, "id\n", res.Stdout)
	assert.Equal(t, false, res.Output["drained"])

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "read", "port": 9001})
	require.True(t, res.Success)
	assert.Equal(t, "id\n", res.Stdout, "a plain read leaves the buffer intact")

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "drain", "port": 9001, "drain_output": false})
	require.True(t, res.Success)
	assert.Equal(t, "id\n", res.Stdout)
	assert.Equal(t, true, res.Output["drained"])

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "read", "port": 9001})
	require.True(t, res.Success)
	assert.Empty(t, res.Stdout)

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "send", "port": 9001})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "input_data")

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "stop", "port": 9001})
	require.True(t, res.Success)

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "status", "port": 9001})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, ErrListenerNotTracked.Error())

	res = te.Execute(ctx, ToolListener, map[string]any{"action": "start", "port": 0})
	assert.False(t, res.Success)

	assert.Len(t, sc.Commands(), 8)
}
