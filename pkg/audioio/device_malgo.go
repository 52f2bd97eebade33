//go:build cgo

package audioio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// deviceSource captures float32 mono audio through miniaudio.
type deviceSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	frameCh chan Frame
	pending []float32

	mctx   *malgo.AllocatedContext
	device *malgo.Device
}

func newDeviceSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &deviceSource{
		cfg:     cfg,
		logger:  logger.With("component", "audioio.capture"),
		frameCh: make(chan Frame, 8),
	}, nil
}

func (d *deviceSource) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return io.ErrClosedPipe
	}
	if d.running {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return fmt.Errorf("audioio: init capture context: %w", err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = uint32(d.cfg.Channels)
	devCfg.SampleRate = uint32(d.cfg.SampleRate)

	d.frameCh = make(chan Frame, 8)
	d.pending = make([]float32, 0, d.cfg.FrameSize)

	device, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{Data: d.onData})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("audioio: open microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("audioio: start microphone: %w", err)
	}

	d.mctx = mctx
	d.device = device
	d.running = true
	d.logger.Info("microphone started", "sample_rate", d.cfg.SampleRate)

	go func() {
		<-ctx.Done()
		_ = d.Stop()
	}()
	return nil
}

// onData runs on the miniaudio thread.
func (d *deviceSource) onData(_, input []byte, _ uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}

	for i := 0; i+4 <= len(input); i += 4 {
		d.pending = append(d.pending, math.Float32frombits(binary.LittleEndian.Uint32(input[i:])))
		if len(d.pending) == d.cfg.FrameSize {
			f := Frame{Samples: d.pending, SampleRate: d.cfg.SampleRate}
			select {
			case d.frameCh <- f:
			default:
				d.logger.Debug("capture overrun, dropping frame")
			}
			d.pending = make([]float32, 0, d.cfg.FrameSize)
		}
	}
}

func (d *deviceSource) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	device, mctx := d.device, d.mctx
	d.device, d.mctx = nil, nil
	close(d.frameCh)
	d.mu.Unlock()

	// Uninit waits for the callback thread, so it must run unlocked.
	_ = device.Stop()
	device.Uninit()
	_ = mctx.Uninit()
	mctx.Free()

	d.logger.Info("microphone stopped")
	return nil
}

func (d *deviceSource) Frames() <-chan Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameCh
}

func (d *deviceSource) Config() Config { return d.cfg }

func (d *deviceSource) Name() string { return "malgo" }

func (d *deviceSource) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Stop()
}
