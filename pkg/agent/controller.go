package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/bounter/internal/observability"
	"github.com/harun/bounter/internal/tracing"
	"github.com/harun/bounter/pkg/session"
	"github.com/harun/bounter/pkg/stream"
)

// DefaultIncompleteRetries is how many attempts a model gets while it keeps
// returning no final answer.
const DefaultIncompleteRetries = 2

// State is a step of the fallback controller.
type State int

const (
	StateSelectModel State = iota
	StateDispatch
	StateSuccess
	StateRateLimited
	StateIncomplete
	StateHardError
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateSelectModel:
		return "select_model"
	case StateDispatch:
		return "dispatch"
	case StateSuccess:
		return "success"
	case StateRateLimited:
		return "rate_limited"
	case StateIncomplete:
		return "incomplete"
	case StateHardError:
		return "hard_error"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the run ends in s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateHardError || s == StateExhausted
}

// transitions lists the legal successors of each state. A budget skip goes
// straight from SelectModel to RateLimited without dispatching.
var transitions = map[State][]State{
	StateSelectModel: {StateDispatch, StateRateLimited, StateExhausted},
	StateDispatch:    {StateSuccess, StateRateLimited, StateIncomplete, StateHardError},
	StateRateLimited: {StateSelectModel},
	StateIncomplete:  {StateSelectModel},
}

// CanTransition reports whether to may follow s.
func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}

// Rate-limit sources for metrics.
const (
	sourceResponse  = "response"
	sourceTransport = "transport"
	sourceBudget    = "budget"
)

// responseRateLimitDetail is the note detail for a rate limit found in the
// model's own text.
const responseRateLimitDetail = "Model reported rate limit signal in response"

// Dispatcher performs one attempt and returns the aggregated response.
type Dispatcher func(ctx context.Context, attempt ModelAttempt) (*stream.AggregatedResponse, error)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Models            []string
	IncompleteRetries int
	Session           *session.Context
	Budget            *ModelBudget
	Logger            zerolog.Logger
}

// Controller walks the model list, one attempt at a time, until an attempt
// succeeds, fails hard or the list runs out.
type Controller struct {
	models  []string
	retries int
	session *session.Context
	budget  *ModelBudget
	logger  zerolog.Logger
	now     func() time.Time
}

// NewController creates a controller. A nil session gets a throwaway one.
func NewController(cfg ControllerConfig) *Controller {
	retries := cfg.IncompleteRetries
	if retries <= 0 {
		retries = DefaultIncompleteRetries
	}
	sc := cfg.Session
	if sc == nil {
		sc = session.New("", "")
	}
	return &Controller{
		models:  append([]string(nil), cfg.Models...),
		retries: retries,
		session: sc,
		budget:  cfg.Budget,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// run holds the mutable state of one Run call.
type run struct {
	state    State
	index    int
	attempt  int
	global   int
	previous []string
	attempts []ModelAttempt

	current  ModelAttempt
	response *stream.AggregatedResponse
	err      error
	detail   string
	source   string
	lastErr  error
}

func (r *run) model(models []string) string {
	if r.index < len(models) {
		return models[r.index]
	}
	return ""
}

func (r *run) advanceModel() {
	r.index++
	r.attempt = 0
}

// Run drives dispatch until a terminal state. Rate limits and incomplete
// answers are recovered by retrying or moving on; any other error returns
// immediately. When every model is used up the last captured error is
// returned, or ErrNoModelsAvailable.
func (c *Controller) Run(ctx context.Context, dispatch Dispatcher) (*Result, error) {
	r := &run{state: StateSelectModel}

	for {
		var next State
		switch r.state {
		case StateSelectModel:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			next = c.selectModel(r)

		case StateDispatch:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			next = c.dispatch(ctx, r, dispatch)

		case StateRateLimited:
			c.onRateLimited(r)
			next = StateSelectModel

		case StateIncomplete:
			c.onIncomplete(r)
			next = StateSelectModel

		case StateSuccess:
			c.session.ClearIncompleteNotes()
			c.session.MarkComplete(c.now())
			return &Result{
				Response:    r.response,
				Model:       r.current.Model,
				FinalAnswer: r.response.FinalText(),
				Attempts:    r.attempts,
			}, nil

		case StateHardError:
			return nil, r.err

		case StateExhausted:
			if r.lastErr != nil {
				return nil, r.lastErr
			}
			return nil, ErrNoModelsAvailable
		}

		if !r.state.CanTransition(next) {
			return nil, fmt.Errorf("invalid controller transition %s -> %s", r.state, next)
		}
		c.logger.Debug().
			Str("from", r.state.String()).
			Str("to", next.String()).
			Str("model", r.model(c.models)).
			Msg("Controller transition")
		r.state = next
	}
}

func (c *Controller) selectModel(r *run) State {
	if r.index >= len(c.models) {
		return StateExhausted
	}
	model := c.models[r.index]

	if ok, reason := c.budget.Allow(model); !ok {
		r.current = ModelAttempt{Model: model}
		r.response, r.err = nil, nil
		r.detail, r.source = reason, sourceBudget
		return StateRateLimited
	}

	r.attempt++
	r.global++
	r.current = ModelAttempt{
		Model:          model,
		Attempt:        r.attempt,
		GlobalAttempt:  r.global,
		PreviousModels: append([]string(nil), r.previous...),
	}
	r.attempts = append(r.attempts, r.current)
	return StateDispatch
}

func (c *Controller) dispatch(ctx context.Context, r *run, dispatch Dispatcher) State {
	model := r.current.Model
	attemptCtx := tracing.WithAttempt(ctx, model)
	logger := tracing.LoggerFromContext(attemptCtx, c.logger)
	logger.Info().
		Int("attempt", r.current.Attempt).
		Int("global_attempt", r.current.GlobalAttempt).
		Msg("Dispatching model attempt")

	start := c.now()
	r.response, r.err = dispatch(attemptCtx, r.current)
	if !slices.Contains(r.previous, model) {
		r.previous = append(r.previous, model)
	}

	next := c.classify(r)
	observability.RecordModelAttempt(model, next.String(), time.Since(start))
	observability.RecordModelAudit(attemptCtx, model, "controller", next.String(), map[string]any{
		"attempt":        r.current.Attempt,
		"global_attempt": r.current.GlobalAttempt,
	})

	event := logger.Info()
	if next != StateSuccess {
		event = logger.Warn()
	}
	if r.err != nil {
		event = event.Err(r.err)
	}
	event.Str("outcome", next.String()).Msg("Model attempt finished")
	return next
}

// classify maps an attempt result to the next state. Rate-limit signals in
// the response are checked before emptiness.
func (c *Controller) classify(r *run) State {
	r.detail, r.source = "", ""

	if err := r.err; err != nil {
		var be *BudgetError
		if errors.As(err, &be) {
			r.detail, r.source = be.Reason, sourceBudget
			return StateRateLimited
		}
		if errors.Is(err, stream.ErrEmptyStream) || strings.Contains(strings.ToLower(err.Error()), "no streaming chunks") {
			return StateIncomplete
		}
		if isRateLimited(err) {
			r.detail, r.source = rateLimitDetail(err), sourceTransport
			return StateRateLimited
		}
		return StateHardError
	}

	if ResponseIndicatesRateLimit(r.response.AllText()) {
		r.detail, r.source = responseRateLimitDetail, sourceResponse
		return StateRateLimited
	}
	if strings.TrimSpace(r.response.FinalText()) == "" {
		return StateIncomplete
	}
	return StateSuccess
}

func isRateLimited(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind == KindRateLimited || IsRateLimitError(te.StatusCode, err.Error())
	}
	return IsRateLimitError(0, err.Error())
}

// rateLimitDetail prefers the backend's own message over our wrapping.
func rateLimitDetail(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err.Error()
	}
	return err.Error()
}

func (c *Controller) onRateLimited(r *run) {
	model := r.current.Model
	note := fmt.Sprintf("Model '%s' hit a rate/availability limit", model)
	if r.detail != "" {
		note += ": " + r.detail
	}
	if c.session.AddRateLimitNote(note) {
		c.logger.Warn().Str("model", model).Str("source", r.source).Msg(note)
	}
	c.session.ClearEndTime()
	observability.RecordRateLimit(model, r.source)
	if r.err != nil {
		r.lastErr = r.err
	}
	r.advanceModel()
}

func (c *Controller) onIncomplete(r *run) {
	model := r.current.Model
	c.session.AddIncompleteNote(fmt.Sprintf(
		"Model '%s' attempt %d returned no final answer", model, r.current.Attempt))
	c.session.ClearEndTime()

	r.lastErr = ErrIncompleteAnswer
	if r.err != nil {
		r.lastErr = r.err
	}

	if r.attempt >= c.retries {
		c.logger.Warn().Str("model", model).Int("attempts", r.attempt).Err(r.lastErr).Msg("Model kept returning incomplete answers, moving on")
		r.advanceModel()
	}
}
