package audioio

import (
	"context"
	"io"
	"time"
)

// AudioChunk is a block of 16-bit PCM audio.
type AudioChunk struct {
	// Samples contains mono PCM16 samples.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int
}

// Bytes returns the chunk as little-endian PCM16 bytes.
func (c AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the playback duration of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Sink plays audio to a speaker.
type Sink interface {
	// Start opens the output device.
	Start(ctx context.Context) error

	// Write appends a chunk to the output buffer. Chunks play back to back
	// in write order.
	Write(ctx context.Context, chunk AudioChunk) error

	// Clear discards all buffered audio immediately (barge-in).
	Clear() error

	// Config returns the playback configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases the device.
	io.Closer
}
