// Package runtime carries runtime messages between the session, the
// dashboard and the action executor. Delivery is at most once: a full port
// drops the message and nothing is retried.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// DefaultBuffer is the queue depth of a port.
const DefaultBuffer = 32

// ErrPortFull is returned by Request when the message could not be queued.
var ErrPortFull = errors.New("runtime: port full")

// Handler processes one message and returns its acknowledgement.
type Handler func(ctx context.Context, msg protocol.Message) protocol.Ack

type envelope struct {
	msg   protocol.Message
	reply chan protocol.Ack // nil for fire-and-forget
}

// Port is a buffered one-way message queue with a single consumer.
type Port struct {
	name string
	ch   chan envelope
	log  *slog.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewPort creates a port. buffer <= 0 uses DefaultBuffer.
func NewPort(name string, buffer int) *Port {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Port{
		name: name,
		ch:   make(chan envelope, buffer),
		log:  log.Component("runtime").With("port", name),
	}
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.name
}

// Send queues msg without waiting. It reports false if the port was full
// and the message was dropped.
func (p *Port) Send(msg protocol.Message) bool {
	select {
	case p.ch <- envelope{msg: msg}:
		p.sent.Add(1)
		return true
	default:
		p.dropped.Add(1)
		p.log.Warn("port full, dropping message", "type", msg.Type)
		return false
	}
}

// Request queues msg and waits for the handler's acknowledgement.
func (p *Port) Request(ctx context.Context, msg protocol.Message) (protocol.Ack, error) {
	reply := make(chan protocol.Ack, 1)
	select {
	case p.ch <- envelope{msg: msg, reply: reply}:
		p.sent.Add(1)
	case <-ctx.Done():
		return protocol.Ack{}, ctx.Err()
	default:
		p.dropped.Add(1)
		return protocol.Ack{}, fmt.Errorf("%w: %s", ErrPortFull, p.name)
	}

	select {
	case ack := <-reply:
		return ack, nil
	case <-ctx.Done():
		return protocol.Ack{}, ctx.Err()
	}
}

// Serve hands queued messages to h one at a time until ctx is done.
func (p *Port) Serve(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-p.ch:
			ack := p.handle(ctx, h, env.msg)
			if env.reply != nil {
				env.reply <- ack
			}
		}
	}
}

func (p *Port) handle(ctx context.Context, h Handler, msg protocol.Message) (ack protocol.Ack) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("handler panicked", "type", msg.Type, "panic", r)
			ack = protocol.Ack{Error: fmt.Sprintf("%s: %v", msg.Type, r)}
		}
	}()
	return h(ctx, msg)
}

// Stats returns how many messages were queued and dropped.
func (p *Port) Stats() (sent, dropped uint64) {
	return p.sent.Load(), p.dropped.Load()
}
