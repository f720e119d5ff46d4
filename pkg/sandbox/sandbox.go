package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Runtime selects where commands run.
type Runtime string

const (
	RuntimeHost   Runtime = "host"
	RuntimeDocker Runtime = "docker"
)

// DefaultShell runs shell command strings.
const DefaultShell = "/bin/sh"

// Config defines sandbox configuration
type Config struct {
	Runtime        Runtime        `json:"runtime"`
	Docker         DockerConfig   `json:"docker"`
	ResourceLimits ResourceLimits `json:"resource_limits"`
	// InheritEnv passes the caller's environment to host commands. Scanning
	// tools rely on the operator's PATH and proxies.
	InheritEnv bool `json:"inherit_env"`
}

// DockerConfig is used when Runtime is docker.
type DockerConfig struct {
	Image     string   `json:"image"`
	Network   string   `json:"network"` // host, bridge, none
	User      string   `json:"user"`
	CapAdd    []string `json:"cap_add"`
	ExtraArgs []string `json:"extra_args"`
}

// ResourceLimits defines resource constraints for sandboxed execution
type ResourceLimits struct {
	MaxCPU       int           `json:"max_cpu"` // percent of one core, 0 = unlimited
	MaxMemoryMB  int           `json:"max_memory_mb"`
	MaxProcesses int           `json:"max_processes"`
	Timeout      time.Duration `json:"timeout"`
}

// ExecuteRequest represents a sandbox execution request
type ExecuteRequest struct {
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
	WorkingDir string            `json:"working_dir"`
	Stdin      []byte            `json:"stdin"`
	Timeout    time.Duration     `json:"timeout"`
}

// ShellRequest wraps a shell command line.
func ShellRequest(command string, timeout time.Duration) ExecuteRequest {
	return ExecuteRequest{Command: DefaultShell, Args: []string{"-c", command}, Timeout: timeout}
}

// ExecuteResult represents a sandbox execution result
type ExecuteResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Error    error         `json:"error,omitempty"`
}

// Sandbox runs commands for the shell tool.
type Sandbox interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	GetConfig() Config
}

// DefaultConfig returns a host sandbox that inherits the environment.
func DefaultConfig() Config {
	return Config{
		Runtime: RuntimeHost,
		Docker: DockerConfig{
			Image:   "kalilinux/kali-rolling",
			Network: "host",
		},
		ResourceLimits: ResourceLimits{
			Timeout: 30 * time.Second,
		},
		InheritEnv: true,
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	switch cfg.Runtime {
	case RuntimeHost, RuntimeDocker:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRuntime, cfg.Runtime)
	}
	if cfg.Runtime == RuntimeDocker && strings.TrimSpace(cfg.Docker.Image) == "" {
		return ErrDockerImageRequired
	}
	if cfg.ResourceLimits.MaxCPU < 0 {
		return ErrInvalidCPULimit
	}
	if cfg.ResourceLimits.MaxMemoryMB < 0 {
		return ErrInvalidMemoryLimit
	}
	if cfg.ResourceLimits.MaxProcesses < 0 {
		return ErrInvalidProcessLimit
	}
	if cfg.ResourceLimits.Timeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// New builds the sandbox for cfg.Runtime. It is not started.
func New(cfg Config) (Sandbox, error) {
	if cfg.Runtime == "" {
		cfg.Runtime = RuntimeHost
	}
	switch cfg.Runtime {
	case RuntimeDocker:
		return NewDockerSandbox(cfg)
	default:
		return NewHostSandbox(cfg)
	}
}
