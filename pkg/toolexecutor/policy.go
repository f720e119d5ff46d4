package toolexecutor

import (
	"github.com/rs/zerolog/log"
)

// ToolPolicy decides which tools the model may invoke.
type ToolPolicy struct {
	Allow []string `json:"allow"` // "*" allows everything
	Deny  []string `json:"deny"`  // overrides Allow
}

// NewToolPolicy builds a policy from config lists and warns about
// combinations that block every tool.
func NewToolPolicy(allow, deny []string) *ToolPolicy {
	p := &ToolPolicy{Allow: allow, Deny: deny}
	if contains(p.Deny, "*") {
		log.Warn().Msg("Tool policy denies every tool")
	} else if len(p.Allow) == 0 {
		log.Warn().Msg("Tool policy has an empty allow list, all tools will be denied")
	}
	return p
}

// IsToolAllowed checks toolName against the policy. A nil policy allows all.
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	if tp == nil {
		return true
	}
	if contains(tp.Deny, toolName) || contains(tp.Deny, "*") {
		return false
	}
	return contains(tp.Allow, toolName) || contains(tp.Allow, "*")
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
