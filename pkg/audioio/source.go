package audioio

import (
	"context"
	"io"
	"time"
)

// Frame is one block of captured audio as normalized float samples in
// [-1, 1].
type Frame struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Source captures audio from a microphone.
type Source interface {
	// Start opens the device and begins capture. Frames are delivered on
	// the channel returned by Frames.
	Start(ctx context.Context) error

	// Stop halts capture. It is safe to call Stop multiple times.
	Stop() error

	// Frames returns the capture channel. It is closed when the source
	// stops.
	Frames() <-chan Frame

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases the device. After Close the source cannot restart.
	io.Closer
}

// FrameHandler receives captured frames in order.
type FrameHandler func(Frame)

// Capture pumps frames from src into handle until ctx is done or the
// source's channel closes. It blocks.
func Capture(ctx context.Context, src Source, handle FrameHandler) {
	frames := src.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			handle(f)
		}
	}
}
