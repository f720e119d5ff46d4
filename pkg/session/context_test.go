package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestContext_CommandLog(t *testing.T) {
	t.Run("should append records in order and return copies", func(t *testing.T) {
		sc := New("http://target", "")
		sc.LogCommand(CommandRecord{ToolName: "execute_command", Command: "id", Success: true, ReturnCode: intPtr(0)})
		sc.LogCommand(CommandRecord{ToolName: "execute_command", Command: "false", ReturnCode: intPtr(1)})

		cmds := sc.Commands()
		require.Len(t, cmds, 2)
		assert.Equal(t, "id", cmds[0].Command)
		assert.False(t, cmds[1].Success)
		assert.False(t, cmds[0].Timestamp.IsZero())

		cmds[0].Command = "mutated"
		*cmds[1].ReturnCode = 99
		assert.Equal(t, "id", sc.Commands()[0].Command)
		assert.Equal(t, 1, *sc.Commands()[1].ReturnCode)
	})

	t.Run("should be safe for concurrent callbacks", func(t *testing.T) {
		sc := New("t", "")
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sc.LogCommand(CommandRecord{Command: fmt.Sprint(i)})
			}(i)
		}
		wg.Wait()
		assert.Len(t, sc.Commands(), 50)
	})
}

func TestContext_FinalAnswer(t *testing.T) {
	sc := New("t", "")
	assert.Empty(t, sc.FinalAnswer())

	sc.SetFinalAnswer("partial findings")
	sc.SetFinalAnswer("   ")
	assert.Equal(t, "partial findings", sc.FinalAnswer())

	sc.SetFinalAnswer("complete report")
	assert.Equal(t, "complete report", sc.FinalAnswer())
}

func TestContext_Thinking(t *testing.T) {
	sc := New("t", "")
	sc.AppendThinking("enumerate ports")
	sc.AppendThinking("")
	sc.AppendThinking("check login")

	assert.Equal(t, []string{"enumerate ports", "check login"}, sc.Thinking())
	assert.Equal(t, "enumerate ports\ncheck login", sc.ThinkingSummary())
}

func TestContext_Usage(t *testing.T) {
	sc := New("t", "")
	assert.Nil(t, sc.Usage())

	sc.AddUsage(Usage{ThinkingTokens: 10, OutputTokens: 5, TotalTokens: 20})
	sc.AddUsage(Usage{ThinkingTokens: 1, OutputTokens: 2, TotalTokens: 4})

	assert.Equal(t, &Usage{ThinkingTokens: 11, OutputTokens: 7, TotalTokens: 24}, sc.Usage())
}

func TestContext_RateLimitNotes(t *testing.T) {
	sc := New("t", "")
	assert.False(t, sc.HasNotes())

	assert.True(t, sc.AddRateLimitNote("Model 'a' hit a rate/availability limit: quota"))
	assert.True(t, sc.AddRateLimitNote("Model 'b' hit a rate/availability limit: 429"))
	assert.False(t, sc.AddRateLimitNote("Model 'a' hit a rate/availability limit: quota"))

	assert.Equal(t, []string{
		"Model 'a' hit a rate/availability limit: quota",
		"Model 'b' hit a rate/availability limit: 429",
	}, sc.RateLimitNotes())
	assert.True(t, sc.HasNotes())
}

func TestContext_IncompleteNotes(t *testing.T) {
	t.Run("should keep only the newest five", func(t *testing.T) {
		sc := New("t", "")
		for i := 1; i <= 12; i++ {
			sc.AddIncompleteNote(fmt.Sprintf("note %d", i))
			assert.LessOrEqual(t, len(sc.IncompleteNotes()), MaxIncompleteNotes)
		}
		assert.Equal(t, []string{"note 8", "note 9", "note 10", "note 11", "note 12"}, sc.IncompleteNotes())
	})

	t.Run("should clear", func(t *testing.T) {
		sc := New("t", "")
		sc.AddIncompleteNote("x")
		sc.ClearIncompleteNotes()
		assert.Empty(t, sc.IncompleteNotes())
		assert.False(t, sc.HasNotes())
	})
}

func TestContext_EndTime(t *testing.T) {
	sc := New("t", "")
	assert.True(t, sc.EndTime().IsZero())

	at := time.Now()
	sc.MarkComplete(at)
	assert.Equal(t, at, sc.EndTime())

	sc.ClearEndTime()
	assert.True(t, sc.EndTime().IsZero())
}
