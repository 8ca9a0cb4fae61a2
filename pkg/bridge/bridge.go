// Package bridge carries request/response calls between the session and the
// page-world detector over a broadcast channel scoped to one namespace.
//
// A session opens a channel under a fresh namespace, announces it on the
// control namespace with an INIT frame, waits for READY, and from then on
// issues calls through a Caller. The page world answers through a Responder.
//
//	ch, _ := bus.Open(ctx, bridge.NewNamespace())
//	sub, _ := ch.Subscribe(ctx)
//	// post INIT on the control channel...
//	if err := bridge.WaitReady(ctx, sub, 15*time.Second); err != nil { ... }
//	sub.Close()
//	res, err := bridge.NewCaller(ch).Call(ctx, "loadModel", "tinyFaceDetector", "models")
package bridge

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// NamespacePrefix starts every session namespace.
const NamespacePrefix = "face-api-bridge-"

// ControlNamespace is where INIT frames are posted.
const ControlNamespace = NamespacePrefix + "control"

// NewNamespace returns a namespace with a random suffix so concurrent
// sessions never share a channel.
func NewNamespace() string {
	return NamespacePrefix + uuid.NewString()
}

// Bus opens namespaced broadcast channels.
type Bus interface {
	Open(ctx context.Context, namespace string) (Channel, error)
}

// Channel is a broadcast channel: every frame posted is delivered to every
// subscription open at the time of posting, including the poster's own.
type Channel interface {
	// Namespace returns the namespace the channel was opened with.
	Namespace() string

	// Post broadcasts a frame.
	Post(ctx context.Context, f protocol.Frame) error

	// Subscribe registers a listener. Frames posted after Subscribe
	// returns are delivered on the subscription.
	Subscribe(ctx context.Context) (*Subscription, error)

	// Close releases the channel and its subscriptions.
	Close() error
}

// Subscription is one listener on a channel. C is closed when the
// subscription or its channel is closed.
type Subscription struct {
	C <-chan protocol.Frame

	cancel func()
	once   sync.Once
}

func newSubscription(c <-chan protocol.Frame, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

// Close removes the listener. Safe to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
