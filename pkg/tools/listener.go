package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/bounter/internal/observability"
	"github.com/harun/bounter/pkg/toolexecutor"
)

// StopGrace is how long Stop waits after SIGTERM before killing.
const StopGrace = 5 * time.Second

var (
	ErrProcessNotRunning  = errors.New("listener process is not running")
	ErrListenerRunning    = errors.New("listener already running")
	ErrListenerNotTracked = errors.New("no listener tracked")
	ErrInvalidPort        = errors.New("invalid port")
)

// CommandBuilder returns the argv that starts a listener.
type CommandBuilder func(port, bind string) []string

// NetcatCommand builds `nc -lnvp <port> [-s <bind>]`.
func NetcatCommand(netcat string) CommandBuilder {
	return func(port, bind string) []string {
		argv := []string{netcat, "-lnvp", port}
		if bind != "" && bind != "0.0.0.0" {
			argv = append(argv, "-s", bind)
		}
		return argv
	}
}

// lockedBuffer lets exec's copy goroutines append while readers snapshot.
type lockedBuffer struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (b lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Listener is one background listener process.
type Listener struct {
	Port      string
	Argv      []string
	StartedAt time.Time

	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	mu       sync.Mutex
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	exitCode *int
}

// PID returns the process id.
func (l *Listener) PID() int {
	if l.cmd.Process == nil {
		return 0
	}
	return l.cmd.Process.Pid
}

// Running reports whether the process is still alive.
func (l *Listener) Running() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// ExitCode is nil while the process runs.
func (l *Listener) ExitCode() *int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.exitCode == nil {
		return nil
	}
	code := *l.exitCode
	return &code
}

// Read returns buffered output. The buffers are cleared only when drain is set.
func (l *Listener) Read(drain bool) (stdout, stderr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stdout, stderr = l.stdout.String(), l.stderr.String()
	if drain {
		l.stdout.Reset()
		l.stderr.Reset()
	}
	return stdout, stderr
}

// Send writes data to the process, adding a trailing newline if missing.
func (l *Listener) Send(data string) error {
	if !l.Running() {
		return ErrProcessNotRunning
	}
	if !strings.HasSuffix(data, "\n") {
		data += "\n"
	}
	if _, err := io.WriteString(l.stdin, data); err != nil {
		if !l.Running() {
			return ErrProcessNotRunning
		}
		return fmt.Errorf("failed to write to listener: %w", err)
	}
	return nil
}

// stop terminates the process, killing it if it outlives grace.
func (l *Listener) stop(grace time.Duration) {
	if !l.Running() {
		return
	}
	_ = l.stdin.Close()
	if err := l.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = l.cmd.Process.Kill()
	}
	select {
	case <-l.done:
	case <-time.After(grace):
		log.Warn().Str("port", l.Port).Msg("Listener ignored SIGTERM, killing")
		_ = l.cmd.Process.Kill()
		<-l.done
	}
}

// ListenerRegistry owns the listeners of one scan, keyed by port.
type ListenerRegistry struct {
	mu        sync.Mutex
	listeners map[string]*Listener
	build     CommandBuilder
	grace     time.Duration
}

// NewListenerRegistry starts listeners with netcat.
func NewListenerRegistry(netcat string) *ListenerRegistry {
	return &ListenerRegistry{
		listeners: make(map[string]*Listener),
		build:     NetcatCommand(netcat),
		grace:     StopGrace,
	}
}

// SetCommandBuilder replaces how listener processes are launched.
func (r *ListenerRegistry) SetCommandBuilder(b CommandBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.build = b
}

// NormalizePort validates a port and returns its map key.
func NormalizePort(port int) (string, error) {
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return strconv.Itoa(port), nil
}

// Start launches a listener on port. The process is not tied to any
// request context; it lives until Stop or StopAll.
func (r *ListenerRegistry) Start(port int, bind string) (*Listener, error) {
	key, err := NormalizePort(port)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.listeners[key]; ok && existing.Running() {
		return nil, fmt.Errorf("%w on port %s", ErrListenerRunning, key)
	}

	argv := r.build(key, bind)
	l := &Listener{Port: key, Argv: argv, done: make(chan struct{})}
	l.cmd = exec.Command(argv[0], argv[1:]...)
	l.cmd.Stdout = lockedBuffer{mu: &l.mu, buf: &l.stdout}
	l.cmd.Stderr = lockedBuffer{mu: &l.mu, buf: &l.stderr}
	l.stdin, err = l.cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := l.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start listener: %w", err)
	}
	l.StartedAt = time.Now().UTC()

	go func() {
		err := l.cmd.Wait()
		code := 0
		if err != nil {
			code = -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			}
		}
		l.mu.Lock()
		l.exitCode = &code
		l.mu.Unlock()
		close(l.done)
	}()

	r.listeners[key] = l
	observability.SetActiveListeners(len(r.listeners))
	log.Info().Str("port", key).Int("pid", l.PID()).Msg("Listener started")
	return l, nil
}

// Get returns the listener on port without changing it.
func (r *ListenerRegistry) Get(port int) (*Listener, error) {
	key, err := NormalizePort(port)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listeners[key]
	if !ok {
		return nil, fmt.Errorf("%w for port %s", ErrListenerNotTracked, key)
	}
	return l, nil
}

// Stop terminates and forgets the listener on port.
func (r *ListenerRegistry) Stop(port int) (*Listener, error) {
	l, err := r.Get(port)
	if err != nil {
		return nil, err
	}
	l.stop(r.grace)

	r.mu.Lock()
	if r.listeners[l.Port] == l {
		delete(r.listeners, l.Port)
	}
	observability.SetActiveListeners(len(r.listeners))
	r.mu.Unlock()

	log.Info().Str("port", l.Port).Msg("Listener stopped")
	return l, nil
}

// StopAll stops every listener and returns how many were tracked.
func (r *ListenerRegistry) StopAll() int {
	r.mu.Lock()
	all := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		all = append(all, l)
	}
	r.listeners = make(map[string]*Listener)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, l := range all {
		wg.Add(1)
		go func(l *Listener) {
			defer wg.Done()
			l.stop(r.grace)
		}(l)
	}
	wg.Wait()
	observability.SetActiveListeners(0)
	return len(all)
}

// Count returns the number of tracked listeners.
func (r *ListenerRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

func (s *Suite) listenerTool() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        ToolListener,
		Description: "Manage background netcat listeners for reverse shells and callbacks: start, status, send, read (drain) or stop a listener on a port.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "action", Type: "string", Description: "start, status, send, read or stop", Default: "start",
				Enum: []string{"start", "status", "send", "read", "drain", "drain_output", "stop"}},
			{Name: "port", Type: "integer", Description: "TCP port the listener is bound to", Required: true},
			{Name: "input_data", Type: "string", Description: "Data to send to the connected peer (action=send)"},
			{Name: "drain_output", Type: "boolean", Description: "Clear buffered output after reading", Default: false},
			{Name: "bind_address", Type: "string", Description: "Address to bind (action=start)", Default: s.opts.ListenerBind},
		},
		Handler: s.listener,
	}
}

func (s *Suite) listener(ctx context.Context, args map[string]any) (*toolexecutor.ToolResult, error) {
	action := strings.ToLower(toolexecutor.StringArg(args, "action", "start"))
	forceDrain := action == "drain" || action == "drain_output"
	if forceDrain {
		action = "read"
	}
	port, err := toolexecutor.IntArg(args, "port", 0)
	if err != nil {
		return nil, err
	}
	key, err := NormalizePort(port)
	if err != nil {
		return nil, err
	}
	label := fmt.Sprintf("%s action=%s port=%s", ToolListener, action, key)
	result := &toolexecutor.ToolResult{Command: label}

	switch action {
	case "start":
		bind := toolexecutor.StringArg(args, "bind_address", s.opts.ListenerBind)
		l, err := s.listeners.Start(port, bind)
		if err != nil {
			result.ReturnCode = intPtr(1)
			result.Stderr = err.Error()
			result.Error = err.Error()
			if errors.Is(err, exec.ErrNotFound) {
				result.Error = "nc binary not found"
			}
			return result, nil
		}
		result.Command = strings.Join(l.Argv, " ")
		result.Success = true
		result.ReturnCode = intPtr(0)
		result.Stdout = fmt.Sprintf("listener started on port %s", key)
		result.Output = map[string]any{
			"action":     "start",
			"port":       key,
			"pid":        l.PID(),
			"started_at": l.StartedAt.Format(time.RFC3339),
		}

	case "status":
		l, err := s.listeners.Get(port)
		if err != nil {
			return nil, err
		}
		running := l.Running()
		result.Success = true
		result.ReturnCode = l.ExitCode()
		result.Stdout = fmt.Sprintf("running=%t", running)
		result.Output = map[string]any{
			"action":     "status",
			"port":       key,
			"running":    running,
			"started_at": l.StartedAt.Format(time.RFC3339),
		}

	case "send":
		data, _ := args["input_data"].(string)
		if data == "" {
			return nil, errors.New("'input_data' is required when action='send'")
		}
		l, err := s.listeners.Get(port)
		if err != nil {
			return nil, err
		}
		if err := l.Send(data); err != nil {
			return nil, err
		}
		result.Success = true
		result.ReturnCode = intPtr(0)
		result.Output = map[string]any{"action": "send", "port": key, "bytes_sent": len(data)}

	case "read":
		l, err := s.listeners.Get(port)
		if err != nil {
			return nil, err
		}
		drain := forceDrain || toolexecutor.BoolArg(args, "drain_output", false)
		result.Stdout, result.Stderr = l.Read(drain)
		result.Success = true
		result.ReturnCode = intPtr(0)
		result.Output = map[string]any{"action": "read", "port": key, "drained": drain}

	case "stop":
		l, err := s.listeners.Stop(port)
		if err != nil {
			return nil, err
		}
		result.Stdout, result.Stderr = l.Read(true)
		result.Success = true
		result.ReturnCode = l.ExitCode()
		result.Output = map[string]any{"action": "stop", "port": key}

	default:
		return nil, fmt.Errorf("unsupported action %q, use start, status, send, read, or stop", action)
	}
	return result, nil
}
