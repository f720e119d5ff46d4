package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/bounter/pkg/sandbox"
	"github.com/harun/bounter/pkg/toolexecutor"
)

// toolSlack lets the sandbox deadline fire before the executor's ceiling so
// partial output survives a timeout.
const toolSlack = 5 * time.Second

func (s *Suite) commandTool() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        ToolExecuteCommand,
		Description: "Execute a shell command on the testing host and return stdout, stderr and the return code.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "command", Type: "string", Description: "Shell command line to run with /bin/sh -c", Required: true},
		},
		Timeout: s.opts.CommandTimeout + toolSlack,
		Handler: func(ctx context.Context, args map[string]any) (*toolexecutor.ToolResult, error) {
			command := toolexecutor.StringArg(args, "command", "")
			if command == "" {
				return nil, errors.New("'command' must be a non-empty string")
			}
			return s.runShell(ctx, s.shell, command, s.opts.CommandTimeout), nil
		},
	}
}

// runShell runs command and maps the outcome onto a tool result: non-zero
// exits and timeouts are failed results, not errors.
func (s *Suite) runShell(ctx context.Context, sb sandbox.Sandbox, command string, timeout time.Duration) *toolexecutor.ToolResult {
	if ec := toolexecutor.ExecContextFromContext(ctx); ec != nil {
		log.Debug().Str("event_id", ec.EventID).Str("tool", ec.ToolName).Str("command", command).Msg("Running shell command")
	}
	res, err := sb.Execute(ctx, sandbox.ShellRequest(command, timeout))
	result := &toolexecutor.ToolResult{
		Command: command,
		Stdout:  strings.TrimSpace(string(res.Stdout)),
		Stderr:  strings.TrimSpace(string(res.Stderr)),
	}

	switch {
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		result.Stderr = fmt.Sprintf("Command timed out after %d seconds", int(timeout.Seconds()))
		result.Error = "Timeout"
	case err != nil:
		result.Error = err.Error()
		result.ReturnCode = intPtr(1)
	case res.Error != nil:
		result.Error = res.Error.Error()
		result.ReturnCode = intPtr(res.ExitCode)
	case res.ExitCode != 0:
		result.Error = fmt.Sprintf("Command '%s' returned non-zero exit status %d.", command, res.ExitCode)
		result.ReturnCode = intPtr(res.ExitCode)
	default:
		result.Success = true
		result.ReturnCode = intPtr(0)
	}
	return result
}
