// Package agent runs a scan against a list of backend models.
//
// Invariants:
// - Attempts are strictly sequential; each one reads the session context
//   before it builds its prompt.
// - The fallback controller is an explicit state machine (see State).
// - Tool calls route through toolexecutor only, one fresh registry per attempt.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{...})
//	result, err := runner.Run(ctx, "http://target", "login form only")
//	_ = result
package agent
