package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-jarvis/pkg/agent"
	"github.com/teslashibe/go-jarvis/pkg/clock"
	"github.com/teslashibe/go-jarvis/pkg/live"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

// Tool results returned to the live model when delegation does not
// produce an answer.
const (
	ToolFallback = "The agent connection timed out or failed. Please tell the user you couldn't reach the specific data right now."
	ToolNotFound = "function not found"
)

// Agent answers delegated tool queries. *agent.Router satisfies it.
type Agent interface {
	Process(ctx context.Context, req agent.Request) agent.Result
}

// ToolOutcome is the resolution of one function call.
type ToolOutcome struct {
	Result   string
	TimedOut bool
	Failed   bool
}

// ToolRunner resolves live function calls by delegating to an Agent with a
// bounded wait. Every call resolves, successful or not.
type ToolRunner struct {
	agent   Agent
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewToolRunner creates a ToolRunner.
func NewToolRunner(a Agent, timeout time.Duration, clk clock.Clock, logger *slog.Logger, tracer trace.Tracer) *ToolRunner {
	return &ToolRunner{
		agent:   a,
		timeout: timeout,
		clock:   clk,
		logger:  logger.With("component", "session.tools"),
		tracer:  tracer,
	}
}

// Run resolves call on behalf of profile. Memory, agentic mode and web
// search are always enabled for delegated lookups.
func (r *ToolRunner) Run(ctx context.Context, call live.FunctionCall, profile *store.Profile) ToolOutcome {
	ctx, span := r.tracer.Start(ctx, "session.tool_call", trace.WithAttributes(
		attribute.String("call_id", call.ID),
		attribute.String("tool", call.Name),
	))
	defer span.End()

	if call.Name != live.ConsultToolName {
		r.logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.ID)
		span.SetStatus(codes.Error, "unknown tool")
		return ToolOutcome{Result: ToolNotFound, Failed: true}
	}

	query := call.StringArg("query")
	r.logger.Info("delegating tool call", "call_id", call.ID, "query", query)

	expired := make(chan struct{})
	timer := r.clock.AfterFunc(r.timeout, func() { close(expired) })
	defer timer.Stop()

	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan agent.Result, 1)
	go func() {
		done <- r.agent.Process(actx, agent.Request{
			Text:         query,
			Profile:      profile,
			UseMemory:    true,
			IsAgentic:    true,
			UseWebSearch: true,
		})
	}()

	select {
	case res := <-done:
		if strings.TrimSpace(res.Text) == "" {
			span.SetStatus(codes.Error, "empty result")
			return ToolOutcome{Result: ToolFallback, Failed: true}
		}
		span.SetAttributes(attribute.String("persona", res.Persona.String()))
		return ToolOutcome{Result: res.Text}
	case <-expired:
		r.logger.Warn("tool call timed out", "call_id", call.ID, "timeout", r.timeout)
		span.SetStatus(codes.Error, "timeout")
		return ToolOutcome{Result: ToolFallback, TimedOut: true}
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "canceled")
		return ToolOutcome{Result: ToolFallback, Failed: true}
	}
}
