package session

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-jarvis/pkg/audioio"
)

// Sentinel errors for the session package.
var (
	// ErrClosed indicates the session was already closed.
	ErrClosed = errors.New("session: closed")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrMissingUser indicates Deps.UserID was empty.
	ErrMissingUser = errors.New("session: user id is required")

	// ErrMissingAgent indicates Deps.Agent was nil.
	ErrMissingAgent = errors.New("session: agent is required")

	// ErrMissingStore indicates Deps.Store was nil.
	ErrMissingStore = errors.New("session: store is required")

	// ErrMissingAudio indicates a capture source or playback sink was nil.
	ErrMissingAudio = errors.New("session: audio source and sink are required")
)

// DeviceError reports that an audio device could not be acquired. It is
// fatal to session start and never retried.
type DeviceError struct {
	// Device is "microphone" or "speaker".
	Device string
	Err    error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("session: %s unavailable: %v", e.Device, e.Err)
}

// Unwrap returns the underlying device error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsDeviceError reports whether err is a DeviceError, or an
// audioio.DeviceError raised while opening the devices.
func IsDeviceError(err error) bool {
	var de *DeviceError
	var ae *audioio.DeviceError
	return errors.As(err, &de) || errors.As(err, &ae)
}
