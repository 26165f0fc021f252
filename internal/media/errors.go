package media

import (
	"errors"
	"fmt"
)

var (
	// ErrShareDeclined is returned by a DisplayShare when the user did not
	// grant a share.
	ErrShareDeclined = errors.New("share declined")

	// ErrSystemAudioUnavailable marks a session that continues with the
	// microphone only.
	ErrSystemAudioUnavailable = errors.New("system audio unavailable")

	ErrDeviceNotFound = errors.New("device not found")
)

// DeviceReason classifies why a device could not be opened.
type DeviceReason int

const (
	ReasonUnavailable DeviceReason = iota
	ReasonPermissionDenied
	ReasonNotFound
)

func (r DeviceReason) String() string {
	switch r {
	case ReasonPermissionDenied:
		return "permission denied"
	case ReasonNotFound:
		return "not found"
	default:
		return "unavailable"
	}
}

// DeviceError reports a failed input-device acquisition.
type DeviceError struct {
	Device string
	Reason DeviceReason
	Err    error
}

func (e *DeviceError) Error() string {
	name := e.Device
	if name == "" {
		name = "default input"
	}
	if e.Err == nil {
		return fmt.Sprintf("microphone %q: %s", name, e.Reason)
	}
	return fmt.Sprintf("microphone %q: %s: %v", name, e.Reason, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
