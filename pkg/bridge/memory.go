package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// subscriberBuffer is how many frames a slow listener may lag behind
// before frames are dropped for it.
const subscriberBuffer = 64

// MemoryBus is an in-process Bus. Each namespace is served by one fan-out
// goroutine that owns the listener set.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]*topic
	log    *slog.Logger
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]*topic),
		log:    log.Component("bridge.memory"),
	}
}

// Open attaches to the namespace, creating it on first use.
func (b *MemoryBus) Open(ctx context.Context, namespace string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	t, ok := b.topics[namespace]
	if !ok {
		t = newTopic(namespace, b.log)
		b.topics[namespace] = t
		go t.run()
	}
	t.refs++
	b.mu.Unlock()

	return &memoryChannel{bus: b, topic: t, subs: make(map[*subscriber]bool)}, nil
}

// Namespaces returns the number of live namespaces.
func (b *MemoryBus) Namespaces() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

func (b *MemoryBus) release(t *topic) {
	b.mu.Lock()
	t.refs--
	last := t.refs == 0
	if last {
		delete(b.topics, t.name)
	}
	b.mu.Unlock()

	if last {
		close(t.quit)
		<-t.done
	}
}

type subscriber struct {
	ch chan protocol.Frame
}

// topic fans frames out to its listeners. Only run() touches subs.
type topic struct {
	name string
	refs int // guarded by MemoryBus.mu
	log  *slog.Logger

	subs       map[*subscriber]bool
	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan protocol.Frame
	quit       chan struct{}
	done       chan struct{}
}

func newTopic(name string, l *slog.Logger) *topic {
	return &topic{
		name:       name,
		log:        l,
		subs:       make(map[*subscriber]bool),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan protocol.Frame, subscriberBuffer),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (t *topic) run() {
	defer close(t.done)
	for {
		select {
		case s := <-t.register:
			t.subs[s] = true

		case s := <-t.unregister:
			if t.subs[s] {
				delete(t.subs, s)
				close(s.ch)
			}

		case f := <-t.broadcast:
			for s := range t.subs {
				select {
				case s.ch <- f:
				default:
					t.log.Warn("dropping frame for slow listener", "namespace", t.name, "type", f.Type)
				}
			}

		case <-t.quit:
			for s := range t.subs {
				close(s.ch)
			}
			t.subs = nil
			return
		}
	}
}

// memoryChannel is one handle on a topic.
type memoryChannel struct {
	bus   *MemoryBus
	topic *topic

	mu     sync.Mutex
	subs   map[*subscriber]bool
	closed bool
}

func (c *memoryChannel) Namespace() string { return c.topic.name }

func (c *memoryChannel) Post(ctx context.Context, f protocol.Frame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case c.topic.broadcast <- f:
		return nil
	case <-c.topic.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *memoryChannel) Subscribe(ctx context.Context) (*Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	s := &subscriber{ch: make(chan protocol.Frame, subscriberBuffer)}
	c.subs[s] = true
	c.mu.Unlock()

	select {
	case c.topic.register <- s:
	case <-c.topic.done:
		c.forget(s)
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(s)
		return nil, ctx.Err()
	}

	// Close may have swept the handle before the topic saw the register.
	c.mu.Lock()
	live := c.subs[s]
	c.mu.Unlock()
	if !live {
		select {
		case c.topic.unregister <- s:
		case <-c.topic.done:
		}
		return nil, ErrClosed
	}

	return newSubscription(s.ch, func() { c.unsubscribe(s) }), nil
}

func (c *memoryChannel) unsubscribe(s *subscriber) {
	if !c.forget(s) {
		return
	}
	select {
	case c.topic.unregister <- s:
	case <-c.topic.done:
	}
}

// forget drops s from the handle's set and reports whether it was there.
func (c *memoryChannel) forget(s *subscriber) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subs[s] {
		return false
	}
	delete(c.subs, s)
	return true
}

func (c *memoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*subscriber, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		select {
		case c.topic.unregister <- s:
		case <-c.topic.done:
		}
	}
	c.bus.release(c.topic)
	return nil
}
