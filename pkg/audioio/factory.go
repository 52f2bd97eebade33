package audioio

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrBackendUnavailable is returned when the requested backend was not
// compiled into this binary.
var ErrBackendUnavailable = errors.New("audioio: backend unavailable")

// DeviceError reports which side of the audio pair failed to open.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audioio: %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// NewSource creates a capture source for cfg.Backend. An empty backend
// selects the local device.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audioio: capture config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("creating audio source", "backend", cfg.Backend, "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)

	switch cfg.Backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendDevice, "":
		return newDeviceSource(cfg, logger)
	default:
		return nil, fmt.Errorf("audioio: unsupported backend %q", cfg.Backend)
	}
}

// NewSink creates a playback sink for cfg.Backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audioio: playback config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("creating audio sink", "backend", cfg.Backend, "sample_rate", cfg.SampleRate)

	switch cfg.Backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendDevice, "":
		return newDeviceSink(cfg, logger)
	default:
		return nil, fmt.Errorf("audioio: unsupported backend %q", cfg.Backend)
	}
}

// Open creates the microphone and speaker for one live session on the
// given backend, using the wire sample rates. If the speaker cannot be
// created the microphone is released. Failures are *DeviceError.
func Open(backend Backend, logger *slog.Logger) (Source, Sink, error) {
	capture := DefaultCaptureConfig()
	capture.Backend = backend
	playback := DefaultPlaybackConfig()
	playback.Backend = backend

	src, err := NewSource(capture, logger)
	if err != nil {
		return nil, nil, &DeviceError{Device: "microphone", Err: err}
	}
	sink, err := NewSink(playback, logger)
	if err != nil {
		_ = src.Close()
		return nil, nil, &DeviceError{Device: "speaker", Err: err}
	}
	return src, sink, nil
}
