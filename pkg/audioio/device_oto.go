//go:build cgo

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedOtoContext(rate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   0,
		})
		if otoErr == nil {
			<-ready
		}
	})
	return otoCtx, otoErr
}

// deviceSink plays PCM16 through oto. oto pulls from Read; writes append
// to an internal buffer.
type deviceSink struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
	player *oto.Player
	ctx    *oto.Context
}

func newDeviceSink(cfg Config, logger *slog.Logger) (Sink, error) {
	s := &deviceSink{cfg: cfg, logger: logger.With("component", "audioio.playback")}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

func (s *deviceSink) Start(ctx context.Context) error {
	octx, err := sharedOtoContext(s.cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("audioio: open speaker: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.ctx = octx
	s.logger.Info("speaker started", "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *deviceSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ctx == nil {
		return io.ErrClosedPipe
	}
	s.buf = append(s.buf, chunk.Bytes()...)
	if s.player == nil {
		s.player = s.ctx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto player.
func (s *deviceSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *deviceSink) Clear() error {
	s.mu.Lock()
	s.buf = s.buf[:0]
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		_ = player.Close()
	}
	return nil
}

func (s *deviceSink) Config() Config { return s.cfg }

func (s *deviceSink) Name() string { return "oto" }

func (s *deviceSink) Close() error {
	s.mu.Lock()
	s.closed = true
	player := s.player
	s.player = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil {
		return player.Close()
	}
	return nil
}
