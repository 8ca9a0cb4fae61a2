package session

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrAlreadyRunning is returned by Start while a session is starting
	// or running.
	ErrAlreadyRunning = errors.New("session: already running")

	// ErrNotRunning is returned by operations that need an active session.
	ErrNotRunning = errors.New("session: not running")

	// ErrLimited wraps transport failures: the detector is unreachable but
	// the manual break action still works.
	ErrLimited = errors.New("session: detector unavailable, limited mode")

	// ErrStopped is returned by Start when Stop interrupted it.
	ErrStopped = errors.New("session: stopped during start")
)

// Capability names a resource the session could not acquire.
type Capability string

const (
	CapabilityCamera Capability = "camera"
	CapabilityModel  Capability = "model"
)

// CapabilityError means a required capability failed. The session is
// halted with every resource released.
type CapabilityError struct {
	Capability Capability
	Err        error
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	return fmt.Sprintf("session: %s error: %v", e.Capability, e.Err)
}

// Unwrap returns the underlying error.
func (e *CapabilityError) Unwrap() error {
	return e.Err
}
