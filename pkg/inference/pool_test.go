package inference

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func okModel(text string) *Mock { return NewMock(text) }

func failModel(msg string) *Mock { return (&Mock{}).WithError(errors.New(msg)) }

var errReleased = errors.New("released after deadline")

func generate(ctx context.Context, p *Pool) (string, error) {
	return Call(ctx, p, func(ctx context.Context, m Model) (string, error) {
		res, err := m.Generate(ctx, &GenerateRequest{Prompt: "hi"})
		if err != nil {
			return "", err
		}
		if res == nil {
			return "", ErrEmptyResponse
		}
		return res.Text, nil
	})
}

func TestPoolFallback(t *testing.T) {
	ctx := context.Background()

	first := failModel("quota exhausted")
	second := okModel("from second key")

	pool := NewPool(StaticKeys("k1", "k2"), MockFactory(map[string]Model{
		"k1": first,
		"k2": second,
	}))

	text, err := generate(ctx, pool)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if text != "from second key" {
		t.Errorf("text = %q", text)
	}
	if pool.Active() != 1 {
		t.Errorf("active = %d, want 1", pool.Active())
	}

	// The rotated key stays active for the next call.
	if _, err := generate(ctx, pool); err != nil {
		t.Fatalf("second Do failed: %v", err)
	}
	if got := len(first.Requests()); got != 1 {
		t.Errorf("first key called %d times, want 1", got)
	}
	if got := len(second.Requests()); got != 2 {
		t.Errorf("second key called %d times, want 2", got)
	}
}

func TestPoolAllFail(t *testing.T) {
	ctx := context.Background()
	last := errors.New("key 3 failed")

	pool := NewPool(StaticKeys("k1", "k2", "k3"), MockFactory(map[string]Model{
		"k1": failModel("key 1 failed"),
		"k2": failModel("key 2 failed"),
		"k3": (&Mock{}).WithError(last),
	}))

	_, err := generate(ctx, pool)
	if err == nil {
		t.Fatal("expected error when all keys fail")
	}

	var poolErr *PoolError
	if !errors.As(err, &poolErr) {
		t.Fatalf("expected *PoolError, got %T", err)
	}
	if poolErr.Attempts != 3 || len(poolErr.Errors) != 3 {
		t.Errorf("attempts = %d, errors = %d, want 3", poolErr.Attempts, len(poolErr.Errors))
	}
	if !errors.Is(err, last) {
		t.Errorf("expected last error to unwrap, got %v", err)
	}
	if pool.Active() != 0 {
		t.Errorf("active = %d, want wrap to 0", pool.Active())
	}
}

func TestPoolNoKeys(t *testing.T) {
	pool := NewPool(StaticKeys("", "  "), MockFactory(nil))

	_, err := generate(context.Background(), pool)
	if !errors.Is(err, ErrNoKeys) {
		t.Errorf("expected ErrNoKeys, got %v", err)
	}
	if pool.ActiveKey(context.Background()) != "" {
		t.Error("expected empty active key")
	}
}

func TestPoolAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	hang := &Mock{GenerateFunc: func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
		<-release
		return &GenerateResponse{Text: "late"}, nil
	}}

	pool := NewPool(StaticKeys("k1", "k2"), MockFactory(map[string]Model{
		"k1": hang,
		"k2": okModel("fast"),
	}), WithAttemptTimeout(20*time.Millisecond))

	text, err := generate(context.Background(), pool)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if text != "fast" {
		t.Errorf("text = %q, want fast", text)
	}
}

func TestPoolAttemptTimeoutSingleKey(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	hang := &Mock{GenerateFunc: func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
		<-release
		return nil, errReleased
	}}

	pool := NewPool(StaticKeys("k1"), MockFactory(map[string]Model{"k1": hang}),
		WithAttemptTimeout(10*time.Millisecond))

	_, err := generate(context.Background(), pool)
	if !errors.Is(err, ErrAttemptTimeout) {
		t.Errorf("expected ErrAttemptTimeout, got %v", err)
	}
}

func TestPoolParentCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	hang := &Mock{GenerateFunc: func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
		<-release
		return nil, errReleased
	}}
	other := okModel("unused")

	pool := NewPool(StaticKeys("k1", "k2"), MockFactory(map[string]Model{
		"k1": hang,
		"k2": other,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := generate(ctx, pool)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if got := len(other.Requests()); got != 0 {
		t.Errorf("second key called %d times after cancel", got)
	}
}

func TestPoolFactoryCachesModels(t *testing.T) {
	builds := 0
	m := okModel("ok")
	factory := func(ctx context.Context, key string) (Model, error) {
		builds++
		return m, nil
	}

	pool := NewPool(StaticKeys("k1"), factory)
	for i := 0; i < 3; i++ {
		if _, err := generate(context.Background(), pool); err != nil {
			t.Fatalf("Do failed: %v", err)
		}
	}
	if builds != 1 {
		t.Errorf("factory called %d times, want 1", builds)
	}
}

func TestPoolRotate(t *testing.T) {
	ctx := context.Background()

	single := NewPool(StaticKeys("only"), MockFactory(nil))
	if single.Rotate(ctx) {
		t.Error("single key pool should not rotate")
	}

	pool := NewPool(StaticKeys("a", "b"), MockFactory(nil))
	if got := pool.ActiveKey(ctx); got != "a" {
		t.Errorf("active key = %q, want a", got)
	}
	if !pool.Rotate(ctx) {
		t.Fatal("expected rotate")
	}
	if got := pool.ActiveKey(ctx); got != "b" {
		t.Errorf("active key = %q, want b", got)
	}
	pool.Rotate(ctx)
	if got := pool.ActiveKey(ctx); got != "a" {
		t.Errorf("active key = %q, want a after wrap", got)
	}
}

func TestLookupKeys(t *testing.T) {
	tests := []struct {
		name     string
		stored   []string
		legacy   string
		fallback string
		want     []string
	}{
		{"stored wins", []string{"s1", " ", "s2"}, "legacy", "env", []string{"s1", "s2"}},
		{"legacy when list empty", []string{" "}, "legacy", "env", []string{"legacy"}},
		{"env fallback", nil, "", "env", []string{"env"}},
		{"nothing", nil, " ", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LookupKeys(tt.stored, tt.legacy, tt.fallback)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LookupKeys() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeySuffix(t *testing.T) {
	if got := KeySuffix("AIzaSyABCD1234"); got != "1234" {
		t.Errorf("KeySuffix = %q", got)
	}
	if got := KeySuffix("abc"); got != "abc" {
		t.Errorf("KeySuffix short = %q", got)
	}
}

func TestValidateKey(t *testing.T) {
	ctx := context.Background()
	factory := MockFactory(map[string]Model{
		"good": okModel("ok"),
		"bad":  failModel("invalid key"),
	})

	if !ValidateKey(ctx, factory, "good") {
		t.Error("good key rejected")
	}
	if ValidateKey(ctx, factory, "bad") {
		t.Error("bad key accepted")
	}
	if ValidateKey(ctx, factory, "") {
		t.Error("empty key accepted")
	}
	if ValidateKey(ctx, factory, "unknown") {
		t.Error("unknown key accepted")
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		err       *APIError
		retryable bool
		unauth    bool
	}{
		{&APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED"}, true, false},
		{&APIError{StatusCode: 503}, true, false},
		{&APIError{StatusCode: 403, Status: "PERMISSION_DENIED"}, false, true},
		{&APIError{StatusCode: 400, Status: "INVALID_ARGUMENT"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable = %v", got)
			}
			if got := tt.err.IsUnauthorized(); got != tt.unauth {
				t.Errorf("IsUnauthorized = %v", got)
			}
		})
	}
}

func TestCall(t *testing.T) {
	pool := NewPool(StaticKeys("k1", "k2"), MockFactory(map[string]Model{
		"k1": failModel("boom"),
		"k2": okModel("value"),
	}))

	got, err := Call(context.Background(), pool, func(ctx context.Context, m Model) (string, error) {
		res, err := m.Generate(ctx, &GenerateRequest{Prompt: "x"})
		if err != nil {
			return "", err
		}
		return res.Text, nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "value" {
		t.Errorf("Call = %q", got)
	}

	empty := NewPool(StaticKeys(), MockFactory(nil))
	if _, err := Call(context.Background(), empty, func(ctx context.Context, m Model) (int, error) {
		return 1, nil
	}); !errors.Is(err, ErrNoKeys) {
		t.Errorf("expected ErrNoKeys, got %v", err)
	}
}

func TestPoolLateResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	returned := make(chan struct{})

	hang := &Mock{GenerateFunc: func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
		<-release
		defer close(returned)
		return &GenerateResponse{Text: "late"}, nil
	}}

	pool := NewPool(StaticKeys("k1", "k2"), MockFactory(map[string]Model{
		"k1": hang,
		"k2": okModel("fast"),
	}), WithAttemptTimeout(10*time.Millisecond))

	got, err := Call(context.Background(), pool, func(ctx context.Context, m Model) (string, error) {
		res, err := m.Generate(ctx, &GenerateRequest{Prompt: "hi"})
		if err != nil {
			return "", err
		}
		return res.Text, nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	close(release)
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("expired attempt never returned")
	}

	if got != "fast" {
		t.Errorf("result = %q, want fast", got)
	}
}

func TestPoolNilResponse(t *testing.T) {
	empty := &Mock{GenerateFunc: func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
		return nil, nil
	}}
	pool := NewPool(StaticKeys("k1", "k2"), MockFactory(map[string]Model{
		"k1": empty,
		"k2": okModel("second"),
	}))

	text, err := generate(context.Background(), pool)
	if err != nil || text != "second" {
		t.Errorf("generate() = %q, %v; want second, nil", text, err)
	}
}
