package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// DefaultRedisPrefix is prepended to namespaces to form pub/sub channel names.
const DefaultRedisPrefix = "moodguard:"

// RedisBus is a Bus over Redis pub/sub. Frames are JSON encoded.
type RedisBus struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

// NewRedisBus wraps an existing client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{
		client: client,
		prefix: DefaultRedisPrefix,
		log:    log.Component("bridge.redis"),
	}
}

// DialRedis connects to addr and verifies the server answers.
func DialRedis(ctx context.Context, addr string) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisBus(client), nil
}

// Open returns a channel bound to the namespace. No server round trip is
// made until the first Post or Subscribe.
func (b *RedisBus) Open(ctx context.Context, namespace string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &redisChannel{
		bus:       b,
		namespace: namespace,
		topic:     b.prefix + namespace,
		subs:      make(map[*redis.PubSub]bool),
	}, nil
}

// Close closes the underlying client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisChannel struct {
	bus       *RedisBus
	namespace string
	topic     string

	mu     sync.Mutex
	subs   map[*redis.PubSub]bool
	closed bool
}

func (c *redisChannel) Namespace() string { return c.namespace }

func (c *redisChannel) Post(ctx context.Context, f protocol.Frame) error {
	if c.isClosed() {
		return ErrClosed
	}
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	if err := c.bus.client.Publish(ctx, c.topic, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", f.Type, err)
	}
	return nil
}

func (c *redisChannel) Subscribe(ctx context.Context) (*Subscription, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	ps := c.bus.client.Subscribe(ctx, c.topic)
	// Wait for the subscription confirmation so no frame posted after
	// Subscribe returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c.namespace, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ps.Close()
		return nil, ErrClosed
	}
	c.subs[ps] = true
	c.mu.Unlock()

	out := make(chan protocol.Frame, subscriberBuffer)
	go c.forward(ps.Channel(), out)

	return newSubscription(out, func() {
		c.mu.Lock()
		delete(c.subs, ps)
		c.mu.Unlock()
		ps.Close()
	}), nil
}

// forward decodes pub/sub messages until the PubSub is closed.
func (c *redisChannel) forward(msgs <-chan *redis.Message, out chan<- protocol.Frame) {
	defer close(out)
	for msg := range msgs {
		f, err := protocol.ParseFrame([]byte(msg.Payload))
		if err != nil {
			c.bus.log.Warn("dropping malformed frame", "namespace", c.namespace, "error", err)
			continue
		}
		select {
		case out <- f:
		default:
			c.bus.log.Warn("dropping frame for slow listener", "namespace", c.namespace, "type", f.Type)
		}
	}
}

func (c *redisChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *redisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for ps := range subs {
		ps.Close()
	}
	return nil
}
