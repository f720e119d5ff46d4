package toolexecutor

import (
	"time"

	"github.com/harun/bounter/pkg/session"
)

// Phase is the lifecycle point a ToolEvent reports.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// ToolEvent is delivered to an Observer at the start and end of every
// invocation. Both events of one invocation share EventID.
type ToolEvent struct {
	EventID    string         `json:"event_id"`
	Phase      Phase          `json:"phase"`
	ToolName   string         `json:"tool_name"`
	Command    string         `json:"command"`
	Args       map[string]any `json:"args,omitempty"`
	Success    bool           `json:"success"`
	ReturnCode *int           `json:"return_code,omitempty"`
	Stdout     string         `json:"stdout,omitempty"`
	Stderr     string         `json:"stderr,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Observer receives tool events. It is called synchronously.
type Observer func(ToolEvent)

// Observers fans an event out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	return func(ev ToolEvent) {
		for _, o := range obs {
			if o != nil {
				o(ev)
			}
		}
	}
}

// CommandRecorder receives one record per completed invocation.
// *session.Context satisfies it.
type CommandRecorder interface {
	LogCommand(rec session.CommandRecord)
}
