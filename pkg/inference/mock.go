package inference

import (
	"context"
	"sync"
)

// Mock implements Model for testing.
type Mock struct {
	// GenerateFunc is called when Generate is invoked.
	GenerateFunc func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// GenerateImageFunc is called when GenerateImage is invoked.
	GenerateImageFunc func(ctx context.Context, model, prompt string) ([]byte, error)

	mu           sync.Mutex
	requests     []*GenerateRequest
	imagePrompts []string
}

// NewMock creates a mock whose Generate echoes a fixed text.
func NewMock(text string) *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
			return &GenerateResponse{Text: text}, nil
		},
	}
}

// Generate implements Model.
func (m *Mock) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &GenerateResponse{}, nil
}

// GenerateImage implements Model.
func (m *Mock) GenerateImage(ctx context.Context, model, prompt string) ([]byte, error) {
	m.mu.Lock()
	m.imagePrompts = append(m.imagePrompts, prompt)
	m.mu.Unlock()

	if m.GenerateImageFunc != nil {
		return m.GenerateImageFunc(ctx, model, prompt)
	}
	return nil, ErrEmptyResponse
}

// Requests returns every Generate request received.
func (m *Mock) Requests() []*GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// ImagePrompts returns every GenerateImage prompt received.
func (m *Mock) ImagePrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.imagePrompts))
	copy(out, m.imagePrompts)
	return out
}

// WithError configures every call to fail with err.
func (m *Mock) WithError(err error) *Mock {
	m.GenerateFunc = func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
		return nil, err
	}
	m.GenerateImageFunc = func(ctx context.Context, model, prompt string) ([]byte, error) {
		return nil, err
	}
	return m
}

// MockFactory returns a Factory that hands out the mock registered for
// each key. Unknown keys get ErrNoAPIKey.
func MockFactory(models map[string]Model) Factory {
	return func(ctx context.Context, apiKey string) (Model, error) {
		m, ok := models[apiKey]
		if !ok {
			return nil, ErrNoAPIKey
		}
		return m, nil
	}
}

var _ Model = (*Mock)(nil)
