package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/teslashibe/go-moodguard/pkg/bridge"
	"github.com/teslashibe/go-moodguard/pkg/emotion"
)

// Proxy is the content-side view of the detector. It must only be used
// after the bridge reported READY.
type Proxy struct {
	caller *bridge.Caller
	opts   Options

	mu     sync.Mutex
	loaded map[string]bool
}

// NewProxy wraps a caller.
func NewProxy(caller *bridge.Caller, opts Options) *Proxy {
	return &Proxy{
		caller: caller,
		opts:   opts,
		loaded: make(map[string]bool),
	}
}

// LoadModel loads a model on the page side. Repeat loads of the same model
// are answered locally.
func (p *Proxy) LoadModel(ctx context.Context, name, uri string) error {
	p.mu.Lock()
	done := p.loaded[name]
	p.mu.Unlock()
	if done {
		return nil
	}

	if _, err := p.caller.Call(ctx, MethodLoadModel, name, uri); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}

	p.mu.Lock()
	p.loaded[name] = true
	p.mu.Unlock()
	return nil
}

// LoadModels loads every required model from uri in order.
func (p *Proxy) LoadModels(ctx context.Context, uri string) error {
	for _, name := range RequiredModels() {
		if err := p.LoadModel(ctx, name, uri); err != nil {
			return err
		}
	}
	return nil
}

// DetectOnce classifies the current frame behind ref. It returns nil, nil
// when no face was found, and a non-nil error only when the call itself
// failed.
func (p *Proxy) DetectOnce(ctx context.Context, ref string) (emotion.Scores, error) {
	raw, err := p.caller.Call(ctx, MethodDetectFace, ref, p.opts)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode detection: %w", err)
	}
	if res.Expressions == nil {
		return nil, nil
	}
	return res.Expressions, nil
}
