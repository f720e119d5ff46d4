package agent

import (
	"fmt"
	"strings"

	"github.com/harun/bounter/pkg/session"
)

// BasePrompt is the task handed to every model.
func BasePrompt(target, description string) string {
	prompt := fmt.Sprintf("Test the web app at %s.", target)
	if d := strings.TrimSpace(description); d != "" {
		prompt += " DESCRIPTION: " + d
	}
	return prompt
}

// ContextState is what earlier attempts left behind.
type ContextState struct {
	PreviousModels  []string
	Commands        []session.CommandRecord
	Thinking        []string
	FinalAnswer     string
	RateLimitNotes  []string
	IncompleteNotes []string
}

// StateFromSession snapshots sc for the next prompt.
func StateFromSession(sc *session.Context, previous []string) ContextState {
	return ContextState{
		PreviousModels:  previous,
		Commands:        sc.Commands(),
		Thinking:        sc.Thinking(),
		FinalAnswer:     sc.FinalAnswer(),
		RateLimitNotes:  sc.RateLimitNotes(),
		IncompleteNotes: sc.IncompleteNotes(),
	}
}

// BuildPrompt appends a CONTEXT block describing st to base. Empty sections
// are left out, and base is returned as is when nothing is left.
func BuildPrompt(base string, st ContextState) string {
	var lines []string
	if len(st.PreviousModels) > 0 {
		lines = append(lines, "Previously attempted models: "+strings.Join(st.PreviousModels, ", "))
	}
	if len(st.Commands) > 0 {
		lines = append(lines, "Commands executed so far:")
		for _, cmd := range st.Commands {
			lines = append(lines, fmt.Sprintf("- %s (success=%t)", cmd.Command, cmd.Success))
		}
	}
	if len(st.Thinking) > 0 {
		lines = append(lines, "Thinking summary so far:")
		for _, t := range st.Thinking {
			lines = append(lines, "- "+t)
		}
	}
	if st.FinalAnswer != "" {
		lines = append(lines, "Final analysis so far:", st.FinalAnswer)
	}
	if len(st.RateLimitNotes) > 0 {
		lines = append(lines, "Rate limit observations:")
		for _, n := range st.RateLimitNotes {
			lines = append(lines, "- "+n)
		}
	}
	if len(st.IncompleteNotes) > 0 {
		lines = append(lines, "Incomplete response observations:")
		for _, n := range st.IncompleteNotes {
			lines = append(lines, "- "+n)
		}
	}
	if len(lines) == 0 {
		return base
	}
	return base + "\n\nCONTEXT:\n" + strings.Join(lines, "\n")
}

// promptFor composes the user prompt for one attempt. The CONTEXT block is
// added after the first attempt overall or whenever notes exist.
func promptFor(base string, sc *session.Context, attempt ModelAttempt) string {
	if attempt.GlobalAttempt <= 1 && !sc.HasNotes() {
		return base
	}
	return BuildPrompt(base, StateFromSession(sc, attempt.PreviousModels))
}
