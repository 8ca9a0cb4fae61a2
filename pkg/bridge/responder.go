package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// HandlerFunc runs one remote method. The returned value is JSON encoded
// as the response result; a nil value is sent as null.
type HandlerFunc func(ctx context.Context, req *protocol.RequestData) (any, error)

// Responder is the receiving end of a channel: it loads the capability,
// announces readiness, and answers every request exactly once.
type Responder struct {
	ch  Channel
	log *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	loaded atomic.Bool
	served atomic.Uint64
}

// NewResponder creates a responder on ch.
func NewResponder(ch Channel) *Responder {
	return &Responder{
		ch:       ch,
		log:      log.Component("bridge.responder").With("namespace", ch.Namespace()),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers fn for method, replacing any previous handler.
func (r *Responder) Handle(method string, fn HandlerFunc) {
	r.mu.Lock()
	r.handlers[method] = fn
	r.mu.Unlock()
}

// Loaded reports whether the capability finished loading.
func (r *Responder) Loaded() bool {
	return r.loaded.Load()
}

// Served returns how many responses have been posted.
func (r *Responder) Served() uint64 {
	return r.served.Load()
}

// Serve runs load, posts READY on success or FACE_API_ERROR on failure, and
// answers requests until ctx is cancelled or the channel closes. Requests
// that arrive before load completes are answered with MsgNotLoaded.
func (r *Responder) Serve(ctx context.Context, load func(ctx context.Context) error) error {
	sub, err := r.ch.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("responder subscribe: %w", err)
	}
	defer sub.Close()

	go r.load(ctx, load)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil

		case f, ok := <-sub.C:
			if !ok {
				return nil
			}
			if f.Type != protocol.FrameRequest {
				continue
			}
			req, err := f.Request()
			if err != nil {
				r.log.Warn("malformed request", "error", err)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.answer(ctx, req)
			}()
		}
	}
}

func (r *Responder) load(ctx context.Context, load func(ctx context.Context) error) {
	if load != nil {
		if err := load(ctx); err != nil {
			r.log.Error("capability load failed", "error", err)
			f, ferr := protocol.NewErrorFrame(err.Error())
			if ferr == nil {
				r.post(ctx, f)
			}
			return
		}
	}
	r.loaded.Store(true)
	r.log.Debug("capability ready")
	r.post(ctx, protocol.NewReadyFrame())
}

func (r *Responder) answer(ctx context.Context, req *protocol.RequestData) {
	result, err := r.dispatch(ctx, req)

	var f protocol.Frame
	if err != nil {
		f, err = protocol.NewFailureFrame(req.RequestID, err.Error())
	} else {
		f, err = protocol.NewResultFrame(req.RequestID, result)
		if err != nil {
			f, err = protocol.NewFailureFrame(req.RequestID, err.Error())
		}
	}
	if err != nil {
		r.log.Error("encode response", "method", req.Method, "error", err)
		return
	}

	r.post(ctx, f)
	r.served.Add(1)
}

func (r *Responder) dispatch(ctx context.Context, req *protocol.RequestData) (result any, err error) {
	if !r.loaded.Load() {
		return nil, fmt.Errorf("%s", MsgNotLoaded)
	}

	r.mu.RLock()
	fn, ok := r.handlers[req.Method]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s%s", MsgUnsupported, req.Method)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", req.Method, p)
		}
	}()
	return fn(ctx, req)
}

func (r *Responder) post(ctx context.Context, f protocol.Frame) {
	if err := r.ch.Post(ctx, f); err != nil {
		r.log.Debug("post failed", "type", f.Type, "error", err)
	}
}
