package session

import (
	"strings"
	"sync"
	"time"
)

// MaxIncompleteNotes bounds the incomplete-response notes kept for prompts.
const MaxIncompleteNotes = 5

// CommandRecord is one completed tool invocation.
type CommandRecord struct {
	ToolName   string    `json:"tool_name"`
	Command    string    `json:"command"`
	Success    bool      `json:"success"`
	ReturnCode *int      `json:"return_code,omitempty"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	Timestamp  time.Time `json:"timestamp"`
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	ThinkingTokens int `json:"thinking_tokens"`
	OutputTokens   int `json:"output_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

// Context accumulates what a scan has learned across model attempts. It is
// owned by a single scan and safe for use from tool callbacks.
type Context struct {
	mu sync.RWMutex

	target      string
	description string
	startTime   time.Time
	endTime     time.Time

	commands    []CommandRecord
	thinking    []string
	finalAnswer string
	usage       *Usage

	rateLimitNotes []string
	rateLimitSeen  map[string]struct{}
	incomplete     []string
}

// New starts a session context for one scan.
func New(target, description string) *Context {
	return &Context{
		target:        target,
		description:   description,
		startTime:     time.Now(),
		rateLimitSeen: make(map[string]struct{}),
	}
}

func (c *Context) Target() string      { return c.target }
func (c *Context) Description() string { return c.description }

func (c *Context) StartTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startTime
}

// EndTime is zero until the scan completes.
func (c *Context) EndTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endTime
}

// MarkComplete fixes the completion time.
func (c *Context) MarkComplete(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = at
}

// ClearEndTime reopens a scan whose last response turned out incomplete.
func (c *Context) ClearEndTime() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Time{}
}

// LogCommand appends rec to the command log.
func (c *Context) LogCommand(rec CommandRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.ReturnCode != nil {
		rc := *rec.ReturnCode
		rec.ReturnCode = &rc
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, rec)
}

// Commands returns a copy of the command log.
func (c *Context) Commands() []CommandRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CommandRecord, len(c.commands))
	copy(out, c.commands)
	for i := range out {
		if out[i].ReturnCode != nil {
			rc := *out[i].ReturnCode
			out[i].ReturnCode = &rc
		}
	}
	return out
}

// AppendThinking records model reasoning text. Blank text is ignored.
func (c *Context) AppendThinking(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thinking = append(c.thinking, text)
}

// Thinking returns a copy of the thinking log.
func (c *Context) Thinking() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.thinking...)
}

// ThinkingSummary joins the thinking log with newlines.
func (c *Context) ThinkingSummary() string {
	return strings.Join(c.Thinking(), "\n")
}

// SetFinalAnswer replaces the final answer. Blank text is ignored so an
// incomplete attempt never erases an earlier partial answer.
func (c *Context) SetFinalAnswer(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalAnswer = text
}

// FinalAnswer returns the final answer so far, or "".
func (c *Context) FinalAnswer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.finalAnswer
}

// AddUsage accumulates token counts across turns and attempts.
func (c *Context) AddUsage(u Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usage == nil {
		c.usage = &Usage{}
	}
	c.usage.ThinkingTokens += u.ThinkingTokens
	c.usage.OutputTokens += u.OutputTokens
	c.usage.TotalTokens += u.TotalTokens
}

// Usage returns a copy of the accumulated usage, or nil if none was reported.
func (c *Context) Usage() *Usage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.usage == nil {
		return nil
	}
	u := *c.usage
	return &u
}

// AddRateLimitNote records note once. It reports whether the note was new.
func (c *Context) AddRateLimitNote(note string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rateLimitSeen[note]; ok {
		return false
	}
	c.rateLimitSeen[note] = struct{}{}
	c.rateLimitNotes = append(c.rateLimitNotes, note)
	return true
}

// RateLimitNotes returns the notes in insertion order.
func (c *Context) RateLimitNotes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.rateLimitNotes...)
}

// AddIncompleteNote appends note, evicting the oldest beyond MaxIncompleteNotes.
func (c *Context) AddIncompleteNote(note string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incomplete = append(c.incomplete, note)
	if over := len(c.incomplete) - MaxIncompleteNotes; over > 0 {
		c.incomplete = append([]string(nil), c.incomplete[over:]...)
	}
}

// IncompleteNotes returns the retained notes, oldest first.
func (c *Context) IncompleteNotes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.incomplete...)
}

// ClearIncompleteNotes drops all incomplete notes.
func (c *Context) ClearIncompleteNotes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incomplete = nil
}

// HasNotes reports whether any rate-limit or incomplete note exists.
func (c *Context) HasNotes() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rateLimitNotes) > 0 || len(c.incomplete) > 0
}
