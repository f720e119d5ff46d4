package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populated() *Context {
	sc := New("http://10.0.0.5", "staging shop")
	sc.LogCommand(CommandRecord{ToolName: "execute_command", Command: "nmap -sV 10.0.0.5", Success: true, ReturnCode: intPtr(0), Stdout: "80/tcp open"})
	sc.LogCommand(CommandRecord{ToolName: "searchsploit_lookup", Command: "searchsploit --json nginx", Success: false, Stderr: "not found"})
	sc.LogCommand(CommandRecord{ToolName: "start_listener", Command: "status 4444", Success: true})
	sc.AppendThinking("look at the web server")
	sc.SetFinalAnswer("SQL injection in /login")
	sc.AddUsage(Usage{ThinkingTokens: 120, OutputTokens: 80, TotalTokens: 400})
	sc.AddRateLimitNote("Model 'gemini-2.5-flash' hit a rate/availability limit: quota")
	sc.AddIncompleteNote("Model 'gemini-2.0-flash' returned no final answer (attempt 1)")
	sc.MarkComplete(sc.StartTime().Add(3 * time.Minute))
	return sc
}

func TestSnapshot_RoundTrip(t *testing.T) {
	orig := populated()

	data, err := MarshalSnapshot(orig.Snapshot())
	require.NoError(t, err)

	decoded, err := UnmarshalSnapshot(data)
	require.NoError(t, err)

	restored, err := FromSnapshot(decoded)
	require.NoError(t, err)

	assert.Len(t, restored.Commands(), len(orig.Commands()))
	assert.Equal(t, orig.FinalAnswer(), restored.FinalAnswer())
	assert.Equal(t, orig.Usage(), restored.Usage())
	assert.Equal(t, orig.Thinking(), restored.Thinking())
	assert.Equal(t, orig.RateLimitNotes(), restored.RateLimitNotes())
	assert.Equal(t, orig.IncompleteNotes(), restored.IncompleteNotes())
	assert.True(t, orig.EndTime().Equal(restored.EndTime()))
	assert.Equal(t, *orig.Commands()[0].ReturnCode, *restored.Commands()[0].ReturnCode)
	assert.Nil(t, restored.Commands()[1].ReturnCode)
}

func TestSnapshot_Fields(t *testing.T) {
	t.Run("should expose report fields", func(t *testing.T) {
		snap := populated().Snapshot()
		assert.Equal(t, SnapshotVersion, snap.Version)
		assert.Equal(t, "http://10.0.0.5", snap.Target)
		assert.Equal(t, "staging shop", snap.Description)
		assert.Equal(t, "look at the web server", snap.ThinkingSummary)
		require.NotNil(t, snap.EndTime)
	})

	t.Run("should encode empty logs as arrays", func(t *testing.T) {
		data, err := MarshalSnapshot(New("t", "").Snapshot())
		require.NoError(t, err)
		assert.Contains(t, string(data), `"commands": []`)
		assert.NotContains(t, string(data), `"end_time"`)
	})
}

func TestFromSnapshot_NewerVersion(t *testing.T) {
	_, err := FromSnapshot(Snapshot{Version: SnapshotVersion + 1})
	assert.ErrorIs(t, err, ErrUnsupportedSnapshot)
}

func TestUnmarshalSnapshot_Invalid(t *testing.T) {
	_, err := UnmarshalSnapshot([]byte("{"))
	assert.Error(t, err)
}
