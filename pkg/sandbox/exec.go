package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// run executes the command built by build under timeout and collects its
// output. A deadline returns ErrExecutionTimeout alongside what was read.
func run(ctx context.Context, timeout time.Duration, stdin []byte, build func(context.Context) *exec.Cmd) (ExecuteResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := build(execCtx)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	// Shell pipelines keep grandchildren holding the pipes; don't wait on them.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return ExecuteResult{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: -1,
			Duration: duration,
			Error:    ErrExecutionTimeout,
		}, ErrExecutionTimeout
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	result := ExecuteResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}
	if err != nil && exitCode == 0 {
		// the process never ran, e.g. binary not found
		result.Error = err
		result.ExitCode = 127
	}
	return result, nil
}

func effectiveTimeout(req ExecuteRequest, cfg Config) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	if cfg.ResourceLimits.Timeout > 0 {
		return cfg.ResourceLimits.Timeout
	}
	return DefaultConfig().ResourceLimits.Timeout
}
