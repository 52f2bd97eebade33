package session

import (
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-jarvis/pkg/clock"
	"github.com/teslashibe/go-jarvis/pkg/live"
	"github.com/teslashibe/go-jarvis/pkg/silence"
)

// Defaults for session timing.
const (
	DefaultReconnectAttempts = 3
	DefaultReconnectDelay    = 1500 * time.Millisecond
	DefaultToolTimeout       = 15 * time.Second
	DefaultToolSettle        = 1500 * time.Millisecond
	DefaultEchoSettle        = 500 * time.Millisecond
	DefaultDemoLimit         = 5 * time.Minute

	// DemoUser is the uid that gets the demo time limit.
	DemoUser = "demo"
)

// Options holds session configuration.
type Options struct {
	// Clock drives every timer in the session. Tests inject clock.Fake.
	Clock clock.Clock

	// Logger is the structured logger to use.
	Logger *slog.Logger

	// Tracer records tool delegation spans.
	Tracer trace.Tracer

	// ReconnectAttempts caps automatic reconnects after abnormal closures.
	ReconnectAttempts int

	// ReconnectDelay is the fixed backoff before each reconnect.
	ReconnectDelay time.Duration

	// ToolTimeout bounds a single tool delegation.
	ToolTimeout time.Duration

	// ToolSettle is the delay after a tool resolves before the session
	// accepts mic input again.
	ToolSettle time.Duration

	// EchoSettle is the delay after playback drains before the AI stops
	// counting as speaking.
	EchoSettle time.Duration

	// TickInterval is the silence monitor period.
	TickInterval time.Duration

	// Silence configures the auto-close policy.
	Silence silence.Config

	// DemoLimit is the maximum session length for DemoUser.
	DemoLimit time.Duration

	// Live holds options for every live.Client the session creates.
	Live []live.Option
}

// DefaultOptions returns Options with the production timings.
func DefaultOptions() *Options {
	return &Options{
		Clock:             clock.New(),
		Logger:            slog.Default(),
		Tracer:            otel.Tracer("github.com/teslashibe/go-jarvis/pkg/session"),
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelay:    DefaultReconnectDelay,
		ToolTimeout:       DefaultToolTimeout,
		ToolSettle:        DefaultToolSettle,
		EchoSettle:        DefaultEchoSettle,
		TickInterval:      silence.DefaultInterval,
		DemoLimit:         DefaultDemoLimit,
	}
}

// Apply applies functional options.
func (o *Options) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// Validate checks the options for usable values.
func (o *Options) Validate() error {
	switch {
	case o.Clock == nil:
		return errors.New("session: clock is required")
	case o.ReconnectAttempts < 0:
		return errors.New("session: reconnect attempts must not be negative")
	case o.ToolTimeout <= 0:
		return errors.New("session: tool timeout must be positive")
	case o.TickInterval <= 0:
		return errors.New("session: tick interval must be positive")
	}
	return nil
}

// Option is a functional option for configuring a Session.
type Option func(*Options)

// WithClock sets the clock.
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// WithReconnect sets the reconnect ceiling and backoff.
func WithReconnect(attempts int, delay time.Duration) Option {
	return func(o *Options) {
		o.ReconnectAttempts = attempts
		o.ReconnectDelay = delay
	}
}

// WithToolTimeout sets the tool delegation timeout.
func WithToolTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ToolTimeout = d
	}
}

// WithSilence sets the auto-close policy.
func WithSilence(cfg silence.Config) Option {
	return func(o *Options) {
		o.Silence = cfg
	}
}

// WithDemoLimit sets the demo session length.
func WithDemoLimit(d time.Duration) Option {
	return func(o *Options) {
		o.DemoLimit = d
	}
}

// WithLiveOptions appends options for the live clients.
func WithLiveOptions(opts ...live.Option) Option {
	return func(o *Options) {
		o.Live = append(o.Live, opts...)
	}
}
