package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport failures.
var (
	// ErrTimeout is returned when a call gets no response in time.
	ErrTimeout = errors.New("bridge: request timeout")

	// ErrNotReady is returned when the page world never reports READY.
	ErrNotReady = errors.New("bridge: timed out waiting for face-api to initialize")

	// ErrClosed is returned when using a closed channel.
	ErrClosed = errors.New("bridge: channel closed")
)

// Replies the responder sends for requests it cannot route.
const (
	MsgNotLoaded   = "face-api not loaded"
	MsgUnsupported = "Unsupported method: "
)

// RemoteError is a failure reported by the other side of the bridge, either
// as a FACE_API_ERROR frame or as an error response to a call.
type RemoteError struct {
	Method  string
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Method == "" {
		return "bridge: " + e.Message
	}
	return fmt.Sprintf("bridge [%s]: %s", e.Method, e.Message)
}

// IsTransport reports whether err means the bridge itself is unusable, as
// opposed to a method that ran and failed.
func IsTransport(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotReady) || errors.Is(err, ErrClosed) {
		return true
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Method == "" || re.Message == MsgNotLoaded
	}
	return false
}
