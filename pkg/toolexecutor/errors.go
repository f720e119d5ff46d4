package toolexecutor

import "errors"

var (
	// ErrToolTimeout marks a result whose handler exceeded its wall-clock ceiling.
	ErrToolTimeout = errors.New("tool execution timeout")
	// ErrToolFailure marks a result whose handler returned an error.
	ErrToolFailure = errors.New("tool execution failed")

	ErrToolNotFound     = errors.New("tool not found")
	ErrToolDenied       = errors.New("tool not allowed by policy")
	ErrInvalidArguments = errors.New("parameter validation failed")
)
