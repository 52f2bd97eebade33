package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultAttemptTimeout bounds a single failover attempt.
const DefaultAttemptTimeout = 60 * time.Second

// KeySource supplies the ordered list of API keys.
type KeySource interface {
	Keys(ctx context.Context) ([]string, error)
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func(ctx context.Context) ([]string, error)

// Keys implements KeySource.
func (f KeySourceFunc) Keys(ctx context.Context) ([]string, error) { return f(ctx) }

// StaticKeys returns a KeySource over a fixed list.
func StaticKeys(keys ...string) KeySource {
	keys = cleanKeys(keys)
	return KeySourceFunc(func(context.Context) ([]string, error) { return keys, nil })
}

// LookupKeys picks the first non-empty key set: the stored list, then the
// legacy single key, then the process default.
func LookupKeys(stored []string, legacy, fallback string) []string {
	if keys := cleanKeys(stored); len(keys) > 0 {
		return keys
	}
	if k := strings.TrimSpace(legacy); k != "" {
		return []string{k}
	}
	if k := strings.TrimSpace(fallback); k != "" {
		return []string{k}
	}
	return nil
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// KeySuffix returns the last four characters of a key for logging.
func KeySuffix(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[len(key)-4:]
}

// Pool runs operations against a rotating set of API keys.
type Pool struct {
	keys    KeySource
	factory Factory
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer

	mu     sync.Mutex
	active int
	models map[string]Model
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithAttemptTimeout sets the per-attempt deadline.
func WithAttemptTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// WithTracer sets the tracer for attempt spans.
func WithTracer(t trace.Tracer) PoolOption {
	return func(p *Pool) { p.tracer = t }
}

// NewPool creates a Pool that builds one Model per key with factory.
func NewPool(keys KeySource, factory Factory, opts ...PoolOption) *Pool {
	p := &Pool{
		keys:    keys,
		factory: factory,
		timeout: DefaultAttemptTimeout,
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/teslashibe/go-jarvis/pkg/inference"),
		models:  make(map[string]Model),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "inference.pool")
	return p
}

// Len returns the number of configured keys.
func (p *Pool) Len(ctx context.Context) int {
	keys, err := p.keys.Keys(ctx)
	if err != nil {
		return 0
	}
	return len(keys)
}

// Active returns the index of the key the next attempt starts with.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Rotate advances to the next key. It reports false when there is nothing
// to rotate to.
func (p *Pool) Rotate(ctx context.Context) bool {
	n := p.Len(ctx)
	if n <= 1 {
		return false
	}
	p.rotate(n)
	return true
}

// ActiveKey returns the key the next attempt would use, or "" when none
// are configured.
func (p *Pool) ActiveKey(ctx context.Context) string {
	keys, err := p.keys.Keys(ctx)
	if err != nil || len(keys) == 0 {
		return ""
	}
	return p.current(keys)
}

// Do runs fn with the active key's Model. On failure it rotates to the next
// key and retries, trying each key at most once. Every attempt is bounded
// by the attempt timeout. If all attempts fail, Do returns a *PoolError
// whose Unwrap is the last error.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, m Model) error) error {
	keys, err := p.keys.Keys(ctx)
	if err != nil {
		return fmt.Errorf("inference: load keys: %w", err)
	}
	if len(keys) == 0 {
		return ErrNoKeys
	}

	var errs []error
	for attempt := 1; attempt <= len(keys); attempt++ {
		key := p.current(keys)
		err := p.attempt(ctx, attempt, key, fn)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("fallback key succeeded", "attempt", attempt, "key_suffix", KeySuffix(key))
			}
			return nil
		}

		errs = append(errs, err)
		p.logger.Warn("attempt failed, rotating key",
			"attempt", attempt,
			"key_suffix", KeySuffix(key),
			"error", err,
		)
		p.rotate(len(keys))

		if ctx.Err() != nil {
			break
		}
	}
	return &PoolError{Attempts: len(errs), Errors: errs}
}

func (p *Pool) attempt(ctx context.Context, n int, key string, fn func(context.Context, Model) error) error {
	actx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	actx, span := p.tracer.Start(actx, "inference.attempt", trace.WithAttributes(
		attribute.Int("attempt", n),
		attribute.String("key_suffix", KeySuffix(key)),
	))
	defer span.End()

	err := p.run(ctx, actx, key, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// run races fn against the attempt deadline so a call that ignores its
// context cannot hold the pool.
func (p *Pool) run(parent, actx context.Context, key string, fn func(context.Context, Model) error) error {
	m, err := p.model(actx, key)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- fn(actx, m) }()

	select {
	case err := <-done:
		return err
	case <-actx.Done():
		if parent.Err() != nil {
			return parent.Err()
		}
		return ErrAttemptTimeout
	}
}

func (p *Pool) model(ctx context.Context, key string) (Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.models[key]; ok {
		return m, nil
	}
	m, err := p.factory(ctx, key)
	if err != nil {
		return nil, err
	}
	p.models[key] = m
	return m, nil
}

func (p *Pool) current(keys []string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active >= len(keys) {
		p.active = 0
	}
	return keys[p.active]
}

func (p *Pool) rotate(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 1 {
		p.active = 0
		return
	}
	p.active = (p.active + 1) % n
}

// Call runs fn through p.Do and returns the value produced by the attempt
// that succeeded. Values from attempts that outlived their deadline are
// discarded.
func Call[T any](ctx context.Context, p *Pool, fn func(ctx context.Context, m Model) (T, error)) (T, error) {
	var (
		mu  sync.Mutex
		out T
	)
	err := p.Do(ctx, func(ctx context.Context, m Model) error {
		v, err := fn(ctx, m)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		out = v
		return nil
	})
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
