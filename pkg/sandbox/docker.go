package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CheckDocker verifies that the Docker daemon is available and responsive.
func CheckDocker(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, "docker", "ps", "-q").Run(); err != nil {
		return fmt.Errorf("docker is not available or not running: %w", err)
	}
	return nil
}

// DockerSandbox runs each command in an ephemeral container.
type DockerSandbox struct {
	config  Config
	running bool
	mu      sync.RWMutex
}

// NewDockerSandbox creates a new Docker-based sandbox.
func NewDockerSandbox(config Config) (*DockerSandbox, error) {
	if config.Runtime == "" {
		config.Runtime = RuntimeDocker
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &DockerSandbox{config: config}, nil
}

// Start checks the daemon and marks the sandbox usable.
func (d *DockerSandbox) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrSandboxAlreadyRunning
	}
	if err := CheckDocker(ctx); err != nil {
		return err
	}
	log.Info().
		Str("runtime", string(RuntimeDocker)).
		Str("image", d.config.Docker.Image).
		Msg("Starting docker sandbox")
	d.running = true
	return nil
}

// Stop marks the Docker sandbox as stopped.
func (d *DockerSandbox) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return ErrSandboxNotRunning
	}
	d.running = false
	return nil
}

// IsRunning returns whether the sandbox is currently running.
func (d *DockerSandbox) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// GetConfig returns sandbox configuration.
func (d *DockerSandbox) GetConfig() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Execute runs a command inside an ephemeral Docker container.
func (d *DockerSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	d.mu.RLock()
	running, cfg := d.running, d.config
	d.mu.RUnlock()
	if !running {
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	if strings.TrimSpace(req.Command) == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}

	args := buildDockerRunArgs(cfg, req)
	result, err := run(ctx, effectiveTimeout(req, cfg), req.Stdin, func(execCtx context.Context) *exec.Cmd {
		return exec.CommandContext(execCtx, "docker", args...)
	})

	log.Debug().
		Str("runtime", string(RuntimeDocker)).
		Str("image", cfg.Docker.Image).
		Str("command", req.Command).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Command executed in docker sandbox")

	return result, err
}

func buildDockerRunArgs(cfg Config, req ExecuteRequest) []string {
	args := []string{"run", "--rm", "--init"}

	network := strings.TrimSpace(cfg.Docker.Network)
	if network == "" {
		network = "host"
	}
	args = append(args, "--network", network)

	if cfg.ResourceLimits.MaxCPU > 0 {
		cpus := float64(cfg.ResourceLimits.MaxCPU) / 100.0
		args = append(args, "--cpus", strconv.FormatFloat(cpus, 'f', 2, 64))
	}
	if cfg.ResourceLimits.MaxMemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", cfg.ResourceLimits.MaxMemoryMB))
	}
	if cfg.ResourceLimits.MaxProcesses > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(cfg.ResourceLimits.MaxProcesses))
	}
	if user := strings.TrimSpace(cfg.Docker.User); user != "" {
		args = append(args, "--user", user)
	}
	for _, c := range cfg.Docker.CapAdd {
		if c = strings.TrimSpace(c); c != "" {
			args = append(args, "--cap-add", c)
		}
	}
	args = append(args, cfg.Docker.ExtraArgs...)

	if wd := strings.TrimSpace(req.WorkingDir); wd != "" {
		wd = filepath.Clean(wd)
		args = append(args, "-v", wd+":"+wd+":rw", "-w", wd)
	}

	keys := make([]string, 0, len(req.Env))
	for k := range req.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+req.Env[k])
	}

	if len(req.Stdin) > 0 {
		args = append(args, "-i")
	}

	args = append(args, cfg.Docker.Image, req.Command)
	return append(args, req.Args...)
}
