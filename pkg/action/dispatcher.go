package action

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"

	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/emotion"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// ErrDropped is returned when the privileged side's queue was full.
var ErrDropped = errors.New("action: message dropped")

// ErrNoLinks is returned when brainrot has no URL to open.
var ErrNoLinks = errors.New("action: no brainrot links configured")

// Sender queues a message without waiting.
type Sender interface {
	Send(msg protocol.Message) bool
}

// Dispatcher sends the message for each trigger. It never waits for the
// effect and never retries.
type Dispatcher struct {
	typ   Type
	tabID string
	links Links
	out   Sender
	pick  func(n int) int
	log   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTabID sets the originating tab for close actions.
func WithTabID(id string) DispatcherOption {
	return func(d *Dispatcher) { d.tabID = id }
}

// WithPicker replaces the uniform link picker.
func WithPicker(pick func(n int) int) DispatcherOption {
	return func(d *Dispatcher) { d.pick = pick }
}

// NewDispatcher creates a dispatcher for t.
func NewDispatcher(t Type, links Links, out Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		typ:   t,
		links: links,
		out:   out,
		pick:  rand.IntN,
		log:   log.Component("action.dispatcher").With("type", t),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Type returns the action type.
func (d *Dispatcher) Type() Type {
	return d.typ
}

// Dispatch sends the effect for a trigger on label.
func (d *Dispatcher) Dispatch(ctx context.Context, label emotion.Label) error {
	if d.typ == Brainrot {
		return d.OpenBrainrot(ctx)
	}

	msg, err := protocol.NewTriggerMessage(string(label), d.tabID, Build(d.typ, d.links))
	if err != nil {
		return err
	}
	return d.send(msg)
}

// OpenBrainrot asks for a window on a random brainrot link.
func (d *Dispatcher) OpenBrainrot(ctx context.Context) error {
	if len(d.links.Brainrot) == 0 {
		return ErrNoLinks
	}
	url := d.links.Brainrot[d.pick(len(d.links.Brainrot))]
	d.log.Info("opening brainrot window", "url", url)
	return d.send(protocol.NewOpenWindowMessage(url))
}

func (d *Dispatcher) send(msg protocol.Message) error {
	if !d.out.Send(msg) {
		return ErrDropped
	}
	return nil
}
