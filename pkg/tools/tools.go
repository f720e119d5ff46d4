package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/bounter/pkg/sandbox"
	"github.com/harun/bounter/pkg/toolexecutor"
)

// Tool names as the model sees them.
const (
	ToolExecuteCommand = "execute_command"
	ToolSearchsploit   = "searchsploit_lookup"
	ToolListener       = "start_listener"
	ToolPython         = "python_code_executor"
)

// Options configures the tool suite.
type Options struct {
	CommandTimeout   time.Duration
	ScriptTimeout    time.Duration
	DownloadDir      string
	SearchsploitPath string
	NetcatPath       string
	PythonPath       string
	ListenerBind     string
}

func (o Options) withDefaults() Options {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 30 * time.Second
	}
	if o.ScriptTimeout <= 0 {
		o.ScriptTimeout = 60 * time.Second
	}
	if o.DownloadDir == "" {
		o.DownloadDir = "searchsploit-downloads"
	}
	if o.SearchsploitPath == "" {
		o.SearchsploitPath = "searchsploit"
	}
	if o.NetcatPath == "" {
		o.NetcatPath = "nc"
	}
	if o.PythonPath == "" {
		o.PythonPath = "python3"
	}
	if o.ListenerBind == "" {
		o.ListenerBind = "0.0.0.0"
	}
	return o
}

// Suite owns the state that outlives a single model attempt: the shell
// sandbox, background listeners and interpreter sessions. A fresh registry
// is built from it for every attempt.
type Suite struct {
	opts      Options
	shell     sandbox.Sandbox
	local     sandbox.Sandbox
	listeners *ListenerRegistry
	scripts   *ScriptRegistry
}

// NewSuite wires the tools around shell, which runs model-issued commands.
// Helper binaries such as searchsploit always run on the host.
func NewSuite(opts Options, shell sandbox.Sandbox) (*Suite, error) {
	opts = opts.withDefaults()

	local, err := sandbox.NewHostSandbox(sandbox.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if shell == nil {
		shell = local
	}

	return &Suite{
		opts:      opts,
		shell:     shell,
		local:     local,
		listeners: NewListenerRegistry(opts.NetcatPath),
		scripts:   NewScriptRegistry(opts.PythonPath),
	}, nil
}

// Start starts the sandboxes.
func (s *Suite) Start(ctx context.Context) error {
	if err := s.local.Start(ctx); err != nil && !errors.Is(err, sandbox.ErrSandboxAlreadyRunning) {
		return err
	}
	if s.shell == s.local {
		return nil
	}
	if err := s.shell.Start(ctx); err != nil && !errors.Is(err, sandbox.ErrSandboxAlreadyRunning) {
		return fmt.Errorf("failed to start %s sandbox: %w", s.shell.GetConfig().Runtime, err)
	}
	return nil
}

// Listeners exposes the listener registry.
func (s *Suite) Listeners() *ListenerRegistry { return s.listeners }

// Scripts exposes the interpreter sessions.
func (s *Suite) Scripts() *ScriptRegistry { return s.scripts }

// Register adds every tool to te.
func (s *Suite) Register(te *toolexecutor.ToolExecutor) error {
	defs := []toolexecutor.ToolDefinition{
		s.commandTool(),
		s.searchsploitTool(),
		s.listenerTool(),
		s.pythonTool(),
	}
	for _, def := range defs {
		if err := te.RegisterTool(def); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return nil
}

// Close stops listeners, interpreters and sandboxes.
func (s *Suite) Close(ctx context.Context) error {
	stopped := s.listeners.StopAll()
	closed := s.scripts.Close()
	if stopped > 0 || closed > 0 {
		log.Info().Int("listeners", stopped).Int("script_sessions", closed).Msg("Tool state released")
	}

	var errs []error
	for _, sb := range []sandbox.Sandbox{s.shell, s.local} {
		if sb.IsRunning() {
			if err := sb.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if s.shell == s.local {
			break
		}
	}
	return errors.Join(errs...)
}

func intPtr(v int) *int { return &v }
