package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/bounter/internal/observability"
	"github.com/harun/bounter/internal/tracing"
	"github.com/harun/bounter/pkg/session"
	"github.com/harun/bounter/pkg/stream"
	"github.com/harun/bounter/pkg/toolexecutor"
)

// DefaultMaxToolTurns caps the model/tool round trips inside one attempt.
const DefaultMaxToolTurns = 10

// ToolFactory builds a fresh tool registry for an attempt. Returning a nil
// executor runs the attempt without tools.
type ToolFactory func(ctx context.Context, attempt ModelAttempt) (*toolexecutor.ToolExecutor, error)

// Config holds runner configuration
type Config struct {
	Models            []string
	Providers         ProviderCreator
	Tools             ToolFactory
	Session           *session.Context
	SystemInstruction string
	Temperature       float64
	ThinkingModels    []string
	ThinkingBudget    int
	IncludeThoughts   bool
	MaxToolTurns      int
	IncompleteRetries int
	Budget            *ModelBudget
	Sink              stream.Sink
	Logger            zerolog.Logger
}

// Runner runs one scan: it walks the model list through a Controller and
// drives each attempt's model/tool loop.
type Runner struct {
	cfg    Config
	logger zerolog.Logger
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Providers == nil {
		return nil, errors.New("provider creator is required")
	}
	if cfg.Session == nil {
		return nil, errors.New("session context is required")
	}
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = DefaultMaxToolTurns
	}
	if cfg.Sink == nil {
		cfg.Sink = stream.DiscardSink
	}
	return &Runner{cfg: cfg, logger: cfg.Logger}, nil
}

// Session returns the context the runner accumulates into.
func (r *Runner) Session() *session.Context {
	return r.cfg.Session
}

// Run tests target until a model produces a final answer. Whatever was
// learned stays in the session context, also on error.
func (r *Runner) Run(ctx context.Context, target, description string) (*Result, error) {
	if tracing.GetScanID(ctx) == "" {
		ctx = tracing.NewScanContext(ctx)
	}
	ctx, span := tracing.StartSpan(ctx, "bounter.scan",
		attribute.String("scan.target", target),
		attribute.Int("scan.models", len(r.cfg.Models)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)
	logger.Info().Str("target", target).Strs("models", r.cfg.Models).Msg("Scan started")
	observability.RecordScanAudit(ctx, target, tracing.GetScanID(ctx), "started", map[string]any{"models": r.cfg.Models})

	base := BasePrompt(target, description)
	controller := NewController(ControllerConfig{
		Models:            r.cfg.Models,
		IncompleteRetries: r.cfg.IncompleteRetries,
		Session:           r.cfg.Session,
		Budget:            r.cfg.Budget,
		Logger:            logger,
	})

	start := time.Now()
	result, err := controller.Run(ctx, func(ctx context.Context, attempt ModelAttempt) (*stream.AggregatedResponse, error) {
		return r.attempt(ctx, base, attempt)
	})
	observability.RecordScan(time.Since(start), err == nil)
	if err != nil {
		tracing.Fail(span, err)
		observability.RecordScanAudit(ctx, target, tracing.GetScanID(ctx), "failure", map[string]any{"error": err.Error()})
		logger.Error().Err(err).Msg("Scan failed")
		return nil, err
	}

	observability.RecordScanAudit(ctx, target, tracing.GetScanID(ctx), "success", map[string]any{
		"model":    result.Model,
		"attempts": len(result.Attempts),
	})
	logger.Info().
		Str("model", result.Model).
		Int("attempts", len(result.Attempts)).
		Dur("duration", time.Since(start)).
		Msg("Scan completed")
	return result, nil
}

// attempt is one dispatch: the prompt, then model turns until the model
// stops calling tools or the turn cap is hit.
func (r *Runner) attempt(ctx context.Context, base string, attempt ModelAttempt) (*stream.AggregatedResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "bounter.attempt",
		attribute.String("model", attempt.Model),
		attribute.Int("attempt", attempt.Attempt),
		attribute.Int("global_attempt", attempt.GlobalAttempt),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	provider, err := r.cfg.Providers.ProviderFor(ctx, attempt.Model)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	var tools *toolexecutor.ToolExecutor
	if r.cfg.Tools != nil {
		tools, err = r.cfg.Tools(ctx, attempt)
		if err != nil {
			tracing.Fail(span, err)
			return nil, fmt.Errorf("failed to build tools: %w", err)
		}
	}

	request := LLMRequest{
		Model:             attempt.Model,
		Messages:          []Message{{Role: RoleUser, Text: promptFor(base, r.cfg.Session, attempt)}},
		SystemInstruction: r.cfg.SystemInstruction,
		Temperature:       r.cfg.Temperature,
	}
	if slices.Contains(r.cfg.ThinkingModels, attempt.Model) {
		request.Thinking = &ThinkingConfig{Budget: r.cfg.ThinkingBudget, IncludeThoughts: r.cfg.IncludeThoughts}
	}
	if tools != nil {
		tools.SetRecorder(r.cfg.Session)
		request.Tools = tools.Declarations()
		request.ToolMode = ToolModeAuto
	}

	var last *stream.AggregatedResponse
	for turn := 1; turn <= r.cfg.MaxToolTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if ok, reason := r.cfg.Budget.Allow(attempt.Model); !ok {
			err := &BudgetError{Model: attempt.Model, Reason: reason}
			tracing.Fail(span, err)
			return nil, err
		}
		r.cfg.Budget.Record(attempt.Model)

		response, err := stream.Aggregate(ctx, provider.Stream(ctx, request), r.cfg.Sink)
		if err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
		r.merge(attempt.Model, response)
		last = response

		calls := response.FunctionCalls()
		if len(calls) == 0 || tools == nil {
			return response, nil
		}

		logger.Debug().Int("turn", turn).Int("tool_calls", len(calls)).Msg("Executing tool calls")
		request.Messages = append(request.Messages, Message{
			Role:      RoleModel,
			Text:      response.FinalText(),
			ToolCalls: calls,
		})
		results := make([]ToolResponse, 0, len(calls))
		for _, call := range calls {
			res := tools.Execute(ctx, call.Name, call.Args)
			results = append(results, ToolResponse{CallID: call.ID, Name: call.Name, Response: res.ResponseMap()})
		}
		request.Messages = append(request.Messages, Message{Role: RoleTool, ToolResults: results})
	}

	logger.Warn().Int("max_turns", r.cfg.MaxToolTurns).Msg("Tool turn limit reached, returning last response")
	return last, nil
}

// merge folds one model turn into the session context.
func (r *Runner) merge(model string, response *stream.AggregatedResponse) {
	sc := r.cfg.Session
	for _, thought := range response.ThoughtSegments() {
		sc.AppendThinking(thought)
	}
	sc.SetFinalAnswer(response.FinalText())
	if u := response.Usage; u != nil {
		sc.AddUsage(session.Usage{
			ThinkingTokens: u.ThinkingTokens,
			OutputTokens:   u.OutputTokens,
			TotalTokens:    u.TotalTokens,
		})
		observability.RecordTokens(model, u.ThinkingTokens, u.OutputTokens, u.TotalTokens)
	}
	sc.MarkComplete(time.Now())
}
