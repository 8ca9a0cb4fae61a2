package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// Timeouts.
const (
	DefaultCallTimeout  = 10 * time.Second
	DefaultReadyTimeout = 15 * time.Second
)

// Caller issues requests on a channel and matches their responses.
type Caller struct {
	ch      Channel
	timeout time.Duration
	newID   func() string
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithCallTimeout sets the per-call response deadline.
func WithCallTimeout(d time.Duration) CallerOption {
	return func(c *Caller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithIDGenerator replaces the request id source.
func WithIDGenerator(fn func() string) CallerOption {
	return func(c *Caller) { c.newID = fn }
}

// NewCaller creates a caller on ch. Calls must not be issued before the
// page world has reported READY on ch; the result of doing so is undefined.
func NewCaller(ch Channel, opts ...CallerOption) *Caller {
	c := &Caller{
		ch:      ch,
		timeout: DefaultCallTimeout,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-call deadline.
func (c *Caller) Timeout() time.Duration {
	return c.timeout
}

// Call sends method(args...) and waits for the matching response. It fails
// with ErrTimeout when no response arrives in time, and with a
// *RemoteError when the remote method fails or the page world posts an
// error frame while the call is outstanding.
func (c *Caller) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	id := c.newID()

	frame, err := protocol.NewRequestFrame(id, method, args...)
	if err != nil {
		return nil, err
	}

	// Listen before posting so the response cannot race ahead of us.
	sub, err := c.ch.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	if err := c.ch.Post(ctx, frame); err != nil {
		return nil, fmt.Errorf("post %s: %w", method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case f, ok := <-sub.C:
			if !ok {
				return nil, ErrClosed
			}
			switch f.Type {
			case protocol.FrameResponse:
				resp, err := f.Response()
				if err != nil || resp.RequestID != id {
					continue
				}
				if resp.Error != "" {
					return nil, &RemoteError{Method: method, Message: resp.Error}
				}
				return resp.Result, nil

			case protocol.FrameError:
				return nil, &RemoteError{Message: f.ErrorMessage()}
			}

		case <-timer.C:
			return nil, fmt.Errorf("%w for method: %s", ErrTimeout, method)

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WaitReady blocks until sub sees FACE_API_READY, returning nil, or
// FACE_API_ERROR, returning a *RemoteError. It fails with ErrNotReady
// after timeout.
func WaitReady(ctx context.Context, sub *Subscription, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case f, ok := <-sub.C:
			if !ok {
				return ErrClosed
			}
			switch f.Type {
			case protocol.FrameReady:
				return nil
			case protocol.FrameError:
				return &RemoteError{Message: f.ErrorMessage()}
			}

		case <-timer.C:
			return ErrNotReady

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
