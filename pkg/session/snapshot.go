package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is bumped whenever Snapshot changes incompatibly.
const SnapshotVersion = 1

// Snapshot is the serializable form of a Context.
type Snapshot struct {
	Version         int             `json:"version"`
	Target          string          `json:"target"`
	Description     string          `json:"description,omitempty"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	Commands        []CommandRecord `json:"commands"`
	ThinkingLog     []string        `json:"thinking_log"`
	ThinkingSummary string          `json:"thinking_summary"`
	FinalAnswer     string          `json:"final_analysis"`
	Usage           *Usage          `json:"usage,omitempty"`
	RateLimitNotes  []string        `json:"rate_limit_notes,omitempty"`
	IncompleteNotes []string        `json:"incomplete_notes,omitempty"`
}

// Snapshot captures the current state.
func (c *Context) Snapshot() Snapshot {
	s := Snapshot{
		Version:         SnapshotVersion,
		Target:          c.Target(),
		Description:     c.Description(),
		StartTime:       c.StartTime(),
		Commands:        c.Commands(),
		ThinkingLog:     c.Thinking(),
		ThinkingSummary: c.ThinkingSummary(),
		FinalAnswer:     c.FinalAnswer(),
		Usage:           c.Usage(),
		RateLimitNotes:  c.RateLimitNotes(),
		IncompleteNotes: c.IncompleteNotes(),
	}
	if end := c.EndTime(); !end.IsZero() {
		s.EndTime = &end
	}
	if s.Commands == nil {
		s.Commands = []CommandRecord{}
	}
	if s.ThinkingLog == nil {
		s.ThinkingLog = []string{}
	}
	return s
}

// FromSnapshot rebuilds a Context from s.
func FromSnapshot(s Snapshot) (*Context, error) {
	if s.Version > SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedSnapshot, s.Version)
	}

	c := New(s.Target, s.Description)
	c.startTime = s.StartTime
	if s.EndTime != nil {
		c.endTime = *s.EndTime
	}
	for _, rec := range s.Commands {
		c.LogCommand(rec)
	}
	c.thinking = append([]string(nil), s.ThinkingLog...)
	c.finalAnswer = s.FinalAnswer
	if s.Usage != nil {
		u := *s.Usage
		c.usage = &u
	}
	for _, note := range s.RateLimitNotes {
		c.AddRateLimitNote(note)
	}
	for _, note := range s.IncompleteNotes {
		c.AddIncompleteNote(note)
	}
	return c, nil
}

// MarshalSnapshot encodes s as indented JSON.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// UnmarshalSnapshot decodes a snapshot produced by MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}
