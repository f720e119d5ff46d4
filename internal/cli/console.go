package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/harun/bounter/pkg/agent"
	"github.com/harun/bounter/pkg/session"
	"github.com/harun/bounter/pkg/toolexecutor"
)

// maxEcho bounds how much tool output is echoed to the terminal.
const maxEcho = 2000

// console renders a scan as it happens: streamed thoughts and output, tool
// start/end pairs and a closing summary. It is a stream.Sink and a tool
// observer.
type console struct {
	mu  sync.Mutex
	out io.Writer

	thought *color.Color
	output  *color.Color
	tool    *color.Color
	ok      *color.Color
	failed  *color.Color
	dim     *color.Color

	last string // kind of the previous fragment, to break lines between kinds
}

func newConsole(out io.Writer) *console {
	return &console{
		out:     out,
		thought: color.New(color.FgHiBlack, color.Italic),
		output:  color.New(color.FgWhite),
		tool:    color.New(color.FgCyan, color.Bold),
		ok:      color.New(color.FgGreen),
		failed:  color.New(color.FgRed),
		dim:     color.New(color.Faint),
	}
}

func (c *console) fragment(kind string, col *color.Color, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != "" && c.last != kind {
		fmt.Fprintln(c.out)
	}
	c.last = kind
	col.Fprint(c.out, text)
}

// OnThought prints reasoning text.
func (c *console) OnThought(text string) { c.fragment("thought", c.thought, text) }

// OnOutput prints answer text.
func (c *console) OnOutput(text string) { c.fragment("output", c.output, text) }

// OnToolEvent prints the command when a tool starts and its outcome when it
// ends.
func (c *console) OnToolEvent(ev toolexecutor.ToolEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != "" {
		fmt.Fprintln(c.out)
		c.last = ""
	}

	switch ev.Phase {
	case toolexecutor.PhaseStart:
		c.tool.Fprintf(c.out, "▶ %s", ev.ToolName)
		c.dim.Fprintf(c.out, " [%s]\n", shortID(ev.EventID))
		fmt.Fprintf(c.out, "  $ %s\n", ev.Command)

	case toolexecutor.PhaseEnd:
		status := c.ok.Sprint("ok")
		if !ev.Success {
			status = c.failed.Sprint("failed")
		}
		rc := "-"
		if ev.ReturnCode != nil {
			rc = fmt.Sprint(*ev.ReturnCode)
		}
		fmt.Fprintf(c.out, "◀ %s %s rc=%s", ev.ToolName, status, rc)
		c.dim.Fprintf(c.out, " [%s] %s\n", shortID(ev.EventID), ev.Duration.Round(time.Millisecond))
		if s := strings.TrimSpace(ev.Stdout); s != "" {
			fmt.Fprintln(c.out, indent(clip(s)))
		}
		if s := strings.TrimSpace(ev.Stderr); s != "" {
			c.failed.Fprintln(c.out, indent(clip(s)))
		}
		if ev.Error != "" && ev.Error != strings.TrimSpace(ev.Stderr) {
			c.failed.Fprintf(c.out, "  error: %s\n", clip(ev.Error))
		}
	}
}

// Summary prints the outcome of a scan.
func (c *console) Summary(sc *session.Context, result *agent.Result, runErr error, reportPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != "" {
		fmt.Fprintln(c.out)
		c.last = ""
	}

	fmt.Fprintln(c.out)
	if runErr != nil {
		c.failed.Fprintf(c.out, "Scan failed: %v\n", runErr)
	} else {
		c.ok.Fprintf(c.out, "Scan completed with %s after %d attempt(s)\n", result.Model, len(result.Attempts))
	}

	end := sc.EndTime()
	if end.IsZero() {
		end = time.Now()
	}
	fmt.Fprintf(c.out, "Target:   %s\n", sc.Target())
	fmt.Fprintf(c.out, "Duration: %s\n", formatDuration(end.Sub(sc.StartTime())))
	fmt.Fprintf(c.out, "Commands: %d\n", len(sc.Commands()))
	if u := sc.Usage(); u != nil {
		fmt.Fprintf(c.out, "Tokens:   thinking=%d output=%d total=%d\n", u.ThinkingTokens, u.OutputTokens, u.TotalTokens)
	}
	for _, note := range sc.RateLimitNotes() {
		c.dim.Fprintf(c.out, "Note:     %s\n", note)
	}
	if reportPath != "" {
		fmt.Fprintf(c.out, "Report:   %s\n", reportPath)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string) string {
	if len(s) <= maxEcho {
		return s
	}
	return s[:maxEcho] + fmt.Sprintf("... (%d more bytes)", len(s)-maxEcho)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
