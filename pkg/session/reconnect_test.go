package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/teslashibe/go-jarvis/pkg/clock"
	"github.com/teslashibe/go-jarvis/pkg/live"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

func TestReconnector(t *testing.T) {
	clk := clock.NewFake(epoch)
	r := NewReconnector(2, time.Second, clk)

	fired := 0
	fn := func() { fired++ }

	for want := 1; want <= 2; want++ {
		n, ok := r.Schedule(fn)
		if !ok || n != want {
			t.Fatalf("Schedule() = %d, %v; want %d, true", n, ok, want)
		}
		clk.Advance(time.Second)
	}
	if fired != 2 {
		t.Errorf("fired = %d, want 2", fired)
	}
	if _, ok := r.Schedule(fn); ok {
		t.Error("Schedule allowed a third attempt")
	}

	r.Reset()
	if n, ok := r.Schedule(fn); !ok || n != 1 {
		t.Errorf("after Reset: Schedule() = %d, %v", n, ok)
	}

	r.Stop()
	clk.Advance(time.Second)
	if fired != 2 {
		t.Errorf("stopped reconnect fired (fired = %d)", fired)
	}
	if _, ok := r.Schedule(fn); ok {
		t.Error("Schedule allowed an attempt after Stop")
	}
}

func TestToolRunner(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := noop.NewTracerProvider().Tracer("test")
	profile := &store.Profile{UID: "u1"}
	call := live.FunctionCall{ID: "1", Name: live.ConsultToolName, Args: map[string]any{"query": "q"}}

	t.Run("success", func(t *testing.T) {
		r := NewToolRunner(&stubAgent{reply: "answer"}, time.Second, clock.NewFake(epoch), logger, tracer)
		out := r.Run(context.Background(), call, profile)
		if out.Result != "answer" || out.Failed || out.TimedOut {
			t.Errorf("Run() = %+v", out)
		}
	})

	t.Run("empty answer falls back", func(t *testing.T) {
		r := NewToolRunner(&stubAgent{}, time.Second, clock.NewFake(epoch), logger, tracer)
		out := r.Run(context.Background(), call, profile)
		if out.Result != ToolFallback || !out.Failed {
			t.Errorf("Run() = %+v", out)
		}
	})

	t.Run("canceled context falls back", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := NewToolRunner(&stubAgent{block: true}, time.Hour, clock.NewFake(epoch), logger, tracer)
		out := r.Run(ctx, call, profile)
		if out.Result != ToolFallback {
			t.Errorf("Run() = %+v", out)
		}
	})
}
