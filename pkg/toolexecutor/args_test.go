package toolexecutor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	args := map[string]any{
		"s":     "  value ",
		"blank": "  ",
		"f":     float64(4444),
		"num":   "8080",
		"bad":   "eighty",
		"b":     true,
		"bs":    "false",
		"list":  []any{"requests", " ", "pwntools"},
		"csv":   "a, b,,c",
	}

	assert.Equal(t, "value", StringArg(args, "s", "def"))
	assert.Equal(t, "def", StringArg(args, "blank", "def"))
	assert.Equal(t, "def", StringArg(args, "missing", "def"))

	n, err := IntArg(args, "f", 0)
	require.NoError(t, err)
	assert.Equal(t, 4444, n)
	n, err = IntArg(args, "num", 0)
	require.NoError(t, err)
	assert.Equal(t, 8080, n)
	n, err = IntArg(args, "missing", 20)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	_, err = IntArg(args, "bad", 0)
	assert.Error(t, err)

	assert.True(t, BoolArg(args, "b", false))
	assert.False(t, BoolArg(args, "bs", true))
	assert.True(t, BoolArg(args, "missing", true))

	assert.Equal(t, []string{"requests", "pwntools"}, StringSliceArg(args, "list"))
	assert.Equal(t, []string{"a", "b", "c"}, StringSliceArg(args, "csv"))
	assert.Empty(t, StringSliceArg(args, "missing"))
}
