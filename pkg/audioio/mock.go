package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is an in-memory capture source for testing.
// It either generates synthetic frames on a ticker or replays frames pushed
// with Push.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	frameCh chan Frame
	stopCh  chan struct{}

	framesRead atomic.Int64

	// Synthetic generation; interval 0 means manual Push only.
	interval  time.Duration
	phase     float64
	frequency float64
	amplitude float64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave makes the mock generate a sine wave at the given frequency
// and amplitude, one frame per interval.
func WithSineWave(frequency, amplitude float64, interval time.Duration) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
		m.interval = interval
	}
}

// NewMockSource creates a new mock capture source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:     cfg,
		logger:  logger,
		frameCh: make(chan Frame, 16),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins capture.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.frameCh = make(chan Frame, 16)

	if m.interval > 0 {
		go m.generateLoop(ctx, m.stopCh, m.frameCh)
	}

	m.logger.Info("mock audio source started", "sample_rate", m.cfg.SampleRate, "frequency", m.frequency)
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, stop <-chan struct{}, out chan<- Frame) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			f := m.generateFrame()
			select {
			case out <- f:
				m.framesRead.Add(1)
			case <-stop:
				return
			default:
				m.logger.Debug("mock source: buffer full, dropping frame")
			}
		}
	}
}

func (m *MockSource) generateFrame() Frame {
	samples := make([]float32, m.cfg.FrameSize)
	if m.frequency > 0 {
		for i := range samples {
			samples[i] = float32(m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}
	return Frame{Samples: samples, SampleRate: m.cfg.SampleRate}
}

// Push delivers a frame as if it had been captured. It reports false when
// the source is not running or its buffer is full.
func (m *MockSource) Push(f Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return false
	}
	if f.SampleRate == 0 {
		f.SampleRate = m.cfg.SampleRate
	}
	select {
	case m.frameCh <- f:
		m.framesRead.Add(1)
		return true
	default:
		return false
	}
}

// Stop halts capture and closes the frame channel.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	close(m.frameCh)

	m.logger.Info("mock audio source stopped")
	return nil
}

// Frames returns the capture channel.
func (m *MockSource) Frames() <-chan Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameCh
}

// Config returns the capture configuration.
func (m *MockSource) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSource) Name() string { return "mock" }

// FramesRead returns how many frames have been delivered.
func (m *MockSource) FramesRead() int64 { return m.framesRead.Load() }

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

var _ Source = (*MockSource)(nil)

// MockSink is an in-memory playback sink for testing.
// It records every chunk written and every Clear.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	chunks  []AudioChunk
	clears  int

	samplesWritten atomic.Int64
}

// NewMockSink creates a new mock playback sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{cfg: cfg, logger: logger}
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	m.logger.Info("mock audio sink started")
	return nil
}

// Write records a chunk.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	m.chunks = append(m.chunks, chunk)
	m.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Clear discards buffered audio.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunks = m.chunks[:0]
	m.clears++
	m.logger.Debug("mock audio sink cleared")
	return nil
}

// Chunks returns a copy of the chunks buffered since the last Clear.
func (m *MockSink) Chunks() []AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AudioChunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// Clears returns how many times Clear was called.
func (m *MockSink) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// SamplesWritten returns the total samples ever written.
func (m *MockSink) SamplesWritten() int64 { return m.samplesWritten.Load() }

// Config returns the playback configuration.
func (m *MockSink) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSink) Name() string { return "mock" }

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}

var _ Sink = (*MockSink)(nil)
