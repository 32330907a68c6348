// ABOUTME: Error taxonomy shared by decoder, devices and capture sessions
// ABOUTME: Callers match these with errors.Is
package audio

import "errors"

var (
	// ErrFormat reports an invalid or unsupported sample format
	ErrFormat = errors.New("invalid sample format")
	// ErrDeviceUnavailable reports a device that cannot be acquired
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrCaptureFailure reports a read error during an active capture
	ErrCaptureFailure = errors.New("capture failure")
	// ErrSecurityRestriction reports access denied by the environment
	ErrSecurityRestriction = errors.New("access denied by security restrictions")
)
