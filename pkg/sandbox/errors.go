package sandbox

import "errors"

var (
	ErrInvalidRuntime      = errors.New("invalid sandbox runtime")
	ErrInvalidCPULimit     = errors.New("invalid CPU limit (must be >= 0)")
	ErrInvalidMemoryLimit  = errors.New("invalid memory limit (must be >= 0)")
	ErrInvalidProcessLimit = errors.New("invalid process limit (must be >= 0)")
	ErrInvalidTimeout      = errors.New("invalid timeout (must be >= 0)")
	ErrDockerImageRequired = errors.New("docker image is required for docker runtime")

	ErrSandboxNotRunning     = errors.New("sandbox is not running")
	ErrSandboxAlreadyRunning = errors.New("sandbox is already running")

	// ErrExecutionTimeout is returned together with the partial output.
	ErrExecutionTimeout = errors.New("execution timed out")
	ErrEmptyCommand     = errors.New("command is required")
)
