// Package audioio bridges local audio hardware and the PCM wire format used
// by the live voice session.
//
// Capture produces fixed-size float32 frames at 16 kHz mono; playback
// accepts 16-bit PCM at 24 kHz mono. Two backends are available:
//   - Device: microphone via malgo, speaker via oto (cgo builds only)
//   - Mock: CI/testing without hardware
package audioio

import (
	"fmt"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendDevice uses the local sound card.
	BackendDevice Backend = "device"
	// BackendMock uses an in-memory implementation for testing.
	BackendMock Backend = "mock"
)

// Sample rates used on the wire.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000

	// DefaultFrameSize is the number of samples per capture frame.
	DefaultFrameSize = 4096
)

// Config holds audio configuration for one direction.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels. Only mono is supported
	// by the live session.
	Channels int `yaml:"channels" json:"channels"`

	// FrameSize is the number of samples per capture frame.
	FrameSize int `yaml:"frame_size" json:"frame_size"`

	// Device is an optional backend-specific device name. Empty selects
	// the system default.
	Device string `yaml:"device" json:"device"`
}

// DefaultCaptureConfig returns the microphone configuration expected by
// the live API.
func DefaultCaptureConfig() Config {
	return Config{
		Backend:    BackendDevice,
		SampleRate: CaptureSampleRate,
		Channels:   1,
		FrameSize:  DefaultFrameSize,
	}
}

// DefaultPlaybackConfig returns the speaker configuration matching the
// live API's output audio.
func DefaultPlaybackConfig() Config {
	return Config{
		Backend:    BackendDevice,
		SampleRate: PlaybackSampleRate,
		Channels:   1,
		FrameSize:  DefaultFrameSize,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 {
		return fmt.Errorf("channels must be 1, got %d", c.Channels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame_size must be positive, got %d", c.FrameSize)
	}
	return nil
}
