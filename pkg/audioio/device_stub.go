//go:build !cgo

package audioio

import (
	"fmt"
	"log/slog"
)

func newDeviceSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("%w: device capture requires cgo", ErrBackendUnavailable)
}

func newDeviceSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return nil, fmt.Errorf("%w: device playback requires cgo", ErrBackendUnavailable)
}
