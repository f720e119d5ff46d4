package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/harun/bounter/internal/observability"
	"github.com/harun/bounter/pkg/toolexecutor"
)

const (
	DefaultScriptSession = "default"
	maxScriptTimeout     = 10 * time.Minute

	resultMarker = "__BOUNTER_RESULT__ "
)

var (
	ErrScriptTimeout   = errors.New("code execution timed out")
	ErrInterpreterGone = errors.New("python interpreter exited")
)

// driver keeps one namespace per process. Each stdin line is a JSON request;
// each reply is a single marker-prefixed JSON line on the real stdout.
const driver = `
import sys, json, io, traceback, textwrap, contextlib
_ns = {"__name__": "__agent__", "__builtins__": __builtins__}
_real = sys.stdout
for _line in sys.stdin:
    _req = json.loads(_line)
    _code = textwrap.dedent(_req.get("code", "")).rstrip()
    _out, _err = io.StringIO(), io.StringIO()
    _res, _tb = None, None
    try:
        with contextlib.redirect_stdout(_out), contextlib.redirect_stderr(_err):
            try:
                _compiled = compile(_code, "<agent-python>", "eval")
                _is_expr = True
            except SyntaxError:
                _compiled = compile(_code, "<agent-python>", "exec")
                _is_expr = False
            if _is_expr:
                _res = eval(_compiled, _ns, _ns)
                _ns["_"] = _res
            else:
                exec(_compiled, _ns, _ns)
                _res = _ns.get("_")
    except BaseException:
        _tb = traceback.format_exc()
    _vars = sorted(k for k in _ns if not k.startswith("__") and not k.startswith("_pip_"))
    _real.write("__BOUNTER_RESULT__ " + json.dumps({
        "code": _code,
        "stdout": _out.getvalue(),
        "stderr": _err.getvalue(),
        "error": _tb,
        "result_repr": None if _res is None else repr(_res),
        "variables": _vars,
    }) + "\n")
    _real.flush()
`

// ScriptOutcome is the reply for one snippet.
type ScriptOutcome struct {
	Code          string
	Stdout        string
	Stderr        string
	Error         string
	ResultRepr    string
	Variables     []string
	HistoryLength int
}

type scriptSession struct {
	id      string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	replies chan string
	done    chan struct{}
	history int
	mu      sync.Mutex
}

func (s *scriptSession) kill() {
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	<-s.done
}

// ScriptRegistry keeps a persistent interpreter per session id.
type ScriptRegistry struct {
	python   string
	mu       sync.Mutex
	sessions map[string]*scriptSession
}

// NewScriptRegistry runs snippets with the given interpreter.
func NewScriptRegistry(python string) *ScriptRegistry {
	return &ScriptRegistry{python: python, sessions: make(map[string]*scriptSession)}
}

func (r *ScriptRegistry) session(id string, reset bool) (*scriptSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		select {
		case <-s.done:
			delete(r.sessions, id)
		default:
			if !reset {
				return s, nil
			}
			s.kill()
			delete(r.sessions, id)
		}
	}

	s, err := r.spawn(id)
	if err != nil {
		return nil, err
	}
	r.sessions[id] = s
	observability.SetScriptSessions(len(r.sessions))
	return s, nil
}

func (r *ScriptRegistry) spawn(id string) (*scriptSession, error) {
	cmd := exec.Command(r.python, "-u", "-c", driver)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start python interpreter: %w", err)
	}

	s := &scriptSession{
		id:      id,
		cmd:     cmd,
		stdin:   stdin,
		replies: make(chan string, 1),
		done:    make(chan struct{}),
	}
	go func() {
		reader := bufio.NewReader(stdout)
		for {
			line, err := reader.ReadString('\n')
			if strings.HasPrefix(line, resultMarker) {
				s.replies <- strings.TrimSuffix(line[len(resultMarker):], "\n")
			}
			if err != nil {
				break
			}
		}
		_ = cmd.Wait()
		close(s.done)
	}()

	log.Debug().Str("session_id", id).Int("pid", cmd.Process.Pid).Msg("Python session started")
	return s, nil
}

// Run executes code in the session's namespace. A timeout kills the
// interpreter; the session starts fresh on the next call.
func (r *ScriptRegistry) Run(ctx context.Context, id, code string, reset bool, timeout time.Duration) (*ScriptOutcome, error) {
	if id == "" {
		id = DefaultScriptSession
	}
	s, err := r.session(id, reset)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return nil, err
	}
	if _, err := s.stdin.Write(append(req, '\n')); err != nil {
		r.forget(s)
		return nil, fmt.Errorf("%w: %v", ErrInterpreterGone, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-s.replies:
		s.history++
		return decodeOutcome(line, s.history), nil
	case <-s.done:
		r.forget(s)
		return nil, ErrInterpreterGone
	case <-timer.C:
		r.forget(s)
		s.kill()
		return nil, fmt.Errorf("%w after %v", ErrScriptTimeout, timeout)
	case <-ctx.Done():
		r.forget(s)
		s.kill()
		return nil, ctx.Err()
	}
}

func decodeOutcome(line string, history int) *ScriptOutcome {
	doc := gjson.Parse(line)
	out := &ScriptOutcome{
		Code:          doc.Get("code").String(),
		Stdout:        strings.TrimSpace(doc.Get("stdout").String()),
		Stderr:        strings.TrimSpace(doc.Get("stderr").String()),
		Error:         doc.Get("error").String(),
		ResultRepr:    doc.Get("result_repr").String(),
		HistoryLength: history,
	}
	for _, v := range doc.Get("variables").Array() {
		out.Variables = append(out.Variables, v.String())
	}
	return out
}

func (r *ScriptRegistry) forget(s *scriptSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	observability.SetScriptSessions(len(r.sessions))
}

// Count returns the number of live sessions.
func (r *ScriptRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close kills every interpreter and returns how many were running.
func (r *ScriptRegistry) Close() int {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*scriptSession)
	r.mu.Unlock()

	for _, s := range all {
		s.kill()
	}
	observability.SetScriptSessions(0)
	return len(all)
}

// InstallRequirements pip-installs packages one by one, stopping at the
// first failure.
func (r *ScriptRegistry) InstallRequirements(ctx context.Context, packages []string) ([]map[string]any, error) {
	installs := make([]map[string]any, 0, len(packages))
	for _, pkg := range packages {
		cmd := exec.CommandContext(ctx, r.python, "-m", "pip", "install", pkg)
		var stdout, stderr strings.Builder
		cmd.Stdout, cmd.Stderr = &stdout, &stderr
		err := cmd.Run()
		code := 0
		if err != nil {
			code = 1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			}
		}
		installs = append(installs, map[string]any{
			"package":     pkg,
			"return_code": code,
			"stdout":      strings.TrimSpace(stdout.String()),
			"stderr":      strings.TrimSpace(stderr.String()),
		})
		if err != nil {
			return installs, fmt.Errorf("pip install failed for '%s': %s", pkg, strings.TrimSpace(stderr.String()))
		}
	}
	return installs, nil
}

func (s *Suite) pythonTool() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        ToolPython,
		Description: "Execute Python code in a persistent interpreter session. Variables survive between calls with the same session_id.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "code", Type: "string", Description: "Python source to run; a bare expression returns its repr", Required: true},
			{Name: "session_id", Type: "string", Description: "Interpreter session to use", Default: DefaultScriptSession},
			{Name: "reset_session", Type: "boolean", Description: "Start the session from a clean namespace", Default: false},
			{Name: "requirements", Type: "array", Items: "string", Description: "pip packages to install first"},
			{Name: "timeout", Type: "integer", Description: "Seconds before the run is aborted", Default: int(s.opts.ScriptTimeout.Seconds())},
		},
		Timeout: maxScriptTimeout + 2*toolSlack,
		Handler: s.python,
	}
}

func (s *Suite) python(ctx context.Context, args map[string]any) (*toolexecutor.ToolResult, error) {
	code, _ := args["code"].(string)
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("'code' must be a non-empty string")
	}
	sid := toolexecutor.StringArg(args, "session_id", DefaultScriptSession)
	seconds, err := toolexecutor.IntArg(args, "timeout", int(s.opts.ScriptTimeout.Seconds()))
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(max(1, seconds)) * time.Second
	if timeout > maxScriptTimeout {
		timeout = maxScriptTimeout
	}

	result := &toolexecutor.ToolResult{Command: strings.TrimRight(code, " \t\r\n")}
	output := map[string]any{"session_id": sid}
	result.Output = output

	if reqs := toolexecutor.StringSliceArg(args, "requirements"); len(reqs) > 0 {
		installs, err := s.scripts.InstallRequirements(ctx, reqs)
		output["installed"] = installs
		if err != nil {
			result.Command = "pip install " + strings.Join(reqs, " ")
			result.ReturnCode = intPtr(1)
			result.Stderr = err.Error()
			result.Error = err.Error()
			return result, nil
		}
	}

	outcome, err := s.scripts.Run(ctx, sid, code, toolexecutor.BoolArg(args, "reset_session", false), timeout)
	if err != nil {
		if errors.Is(err, ErrScriptTimeout) {
			result.Stderr = fmt.Sprintf("Code execution timed out after %d seconds", int(timeout.Seconds()))
			result.Error = "Timeout"
			return result, nil
		}
		return result, err
	}

	result.Command = outcome.Code
	result.Stdout = outcome.Stdout
	result.Stderr = outcome.Stderr
	result.Success = outcome.Error == ""
	result.ReturnCode = intPtr(0)
	if !result.Success {
		result.ReturnCode = intPtr(1)
		result.Error = outcome.Error
	}
	output["variables"] = outcome.Variables
	output["history_length"] = outcome.HistoryLength
	if outcome.ResultRepr != "" {
		output["result_repr"] = outcome.ResultRepr
	}
	return result, nil
}
