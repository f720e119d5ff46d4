package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// HostSandbox runs commands directly on the operator's machine.
type HostSandbox struct {
	config  Config
	running bool
	mu      sync.RWMutex
}

// NewHostSandbox creates a new host-based sandbox
func NewHostSandbox(config Config) (*HostSandbox, error) {
	if config.Runtime == "" {
		config.Runtime = RuntimeHost
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &HostSandbox{config: config}, nil
}

// Start initializes the sandbox
func (h *HostSandbox) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrSandboxAlreadyRunning
	}
	log.Debug().Str("runtime", string(RuntimeHost)).Msg("Starting sandbox")
	h.running = true
	return nil
}

// Stop cleans up the sandbox
func (h *HostSandbox) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrSandboxNotRunning
	}
	h.running = false
	return nil
}

// IsRunning returns whether the sandbox is running
func (h *HostSandbox) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// GetConfig returns the sandbox configuration
func (h *HostSandbox) GetConfig() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Execute runs a command in the sandbox
func (h *HostSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	h.mu.RLock()
	running, cfg := h.running, h.config
	h.mu.RUnlock()
	if !running {
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	if strings.TrimSpace(req.Command) == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}

	result, err := run(ctx, effectiveTimeout(req, cfg), req.Stdin, func(execCtx context.Context) *exec.Cmd {
		cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
		cmd.Dir = req.WorkingDir
		cmd.Env = buildEnvironment(cfg.InheritEnv, req.Env)
		return cmd
	})

	log.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Command executed in sandbox")

	return result, err
}

// buildEnvironment returns the child environment, extras last so they win.
func buildEnvironment(inherit bool, extra map[string]string) []string {
	var env []string
	if inherit {
		env = os.Environ()
	} else {
		env = []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin", "HOME=/tmp"}
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
