package detection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/bridge"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// Factory builds the classifier for one session. apiURL is the location
// the session asked the capability to be loaded from.
type Factory func(ctx context.Context, apiURL string) (Classifier, error)

// Agent is the page-world host. It watches the control namespace and
// attaches a Service to every namespace announced by an INIT frame.
type Agent struct {
	bus     bridge.Bus
	factory Factory
	frames  FrameResolver
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*attachment
}

type attachment struct {
	ch        bridge.Channel
	responder *bridge.Responder
	cancel    context.CancelFunc
	done      chan struct{}

	mu         sync.Mutex
	classifier Classifier
}

// NewAgent creates an agent.
func NewAgent(bus bridge.Bus, factory Factory, frames FrameResolver) *Agent {
	return &Agent{
		bus:      bus,
		factory:  factory,
		frames:   frames,
		log:      log.Component("detection.agent"),
		sessions: make(map[string]*attachment),
	}
}

// Run serves INIT and TEARDOWN frames on the control namespace until ctx
// is cancelled. Every attached namespace is detached on return.
func (a *Agent) Run(ctx context.Context) error {
	ctrl, err := a.bus.Open(ctx, bridge.ControlNamespace)
	if err != nil {
		return fmt.Errorf("open control channel: %w", err)
	}
	defer ctrl.Close()

	sub, err := ctrl.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe control channel: %w", err)
	}
	defer sub.Close()
	defer a.Close()

	a.log.Info("agent listening", "namespace", bridge.ControlNamespace)

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-sub.C:
			if !ok {
				return nil
			}
			switch f.Type {
			case protocol.FrameInit:
				if err := a.Attach(ctx, f.Namespace, f.APIURL); err != nil {
					a.log.Error("attach failed", "namespace", f.Namespace, "error", err)
				}
			case protocol.FrameTeardown:
				a.Detach(f.Namespace)
			}
		}
	}
}

// Attach starts a responder on namespace. A namespace that is already
// attached is left alone.
func (a *Agent) Attach(ctx context.Context, namespace, apiURL string) error {
	if namespace == "" {
		return fmt.Errorf("empty namespace")
	}

	a.mu.Lock()
	if _, ok := a.sessions[namespace]; ok {
		a.mu.Unlock()
		a.log.Debug("duplicate init ignored", "namespace", namespace)
		return nil
	}
	ch, err := a.bus.Open(ctx, namespace)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	sctx, cancel := context.WithCancel(context.Background())
	att := &attachment{
		ch:        ch,
		responder: bridge.NewResponder(ch),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	a.sessions[namespace] = att
	a.mu.Unlock()

	load := func(ctx context.Context) error {
		c, err := a.factory(ctx, apiURL)
		if err != nil {
			return fmt.Errorf("Failed to load face-api: %w", err)
		}
		if ctx.Err() != nil {
			c.Close()
			return ctx.Err()
		}
		att.mu.Lock()
		att.classifier = c
		att.mu.Unlock()
		NewService(c, a.frames).Register(att.responder)
		return nil
	}

	go func() {
		defer close(att.done)
		if err := att.responder.Serve(sctx, load); err != nil {
			a.log.Error("responder stopped", "namespace", namespace, "error", err)
		}
	}()

	a.log.Info("attached", "namespace", namespace)
	return nil
}

// Detach stops the responder on namespace and releases its classifier.
func (a *Agent) Detach(namespace string) {
	a.mu.Lock()
	att, ok := a.sessions[namespace]
	delete(a.sessions, namespace)
	a.mu.Unlock()
	if !ok {
		return
	}

	att.cancel()
	<-att.done
	att.ch.Close()

	att.mu.Lock()
	if att.classifier != nil {
		att.classifier.Close()
	}
	att.mu.Unlock()

	a.log.Info("detached", "namespace", namespace)
}

// Attached reports whether namespace has a responder.
func (a *Agent) Attached(namespace string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sessions[namespace]
	return ok
}

// Sessions returns the number of attached namespaces.
func (a *Agent) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Close detaches every namespace.
func (a *Agent) Close() {
	a.mu.Lock()
	names := make([]string, 0, len(a.sessions))
	for ns := range a.sessions {
		names = append(names, ns)
	}
	a.mu.Unlock()

	for _, ns := range names {
		a.Detach(ns)
	}
}
