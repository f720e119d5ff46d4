// Package toolexecutor is the registry the model's tools are dispatched
// through.
//
// A fresh ToolExecutor is built for every model attempt. Each invocation is
// schema-validated, bounded by a timeout and reported exactly once to the
// CommandRecorder, bracketed by start and end observer events that share an
// event id. Failures never surface as Go errors; they are results with
// Success=false so the model can read them.
//
// Usage:
//
//	exec := toolexecutor.New()
//	exec.SetRecorder(sc)
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name:        "echo",
//		Description: "Echo input",
//		Parameters:  []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, args map[string]any) (*toolexecutor.ToolResult, error) {
//			return &toolexecutor.ToolResult{Success: true, Stdout: args["text"].(string)}, nil
//		},
//	})
//	res := exec.Execute(ctx, "echo", map[string]any{"text": "hi"})
package toolexecutor
