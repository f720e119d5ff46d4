// Package session holds the per-scan session context and its persistence.
//
// A Context accumulates commands, thinking text, the final answer, token
// usage and operational notes across model attempts. Snapshots of it are
// written by Store as JSON reports, with a JSONL command journal kept while
// the scan runs.
//
// Usage:
//
//	sc := session.New("http://10.0.0.5", "login form")
//	store, _ := session.NewStore("reports", "scan")
//	_, _ = store.SaveSnapshot(ctx, store.NewKey(sc.StartTime()), sc.Snapshot())
package session
