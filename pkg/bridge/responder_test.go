package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

func TestResponderUnsupportedMethod(t *testing.T) {
	p := newPair(t)
	r := NewResponder(p.page)
	serve(t, p, r, nil)

	_, err := NewCaller(p.content).Call(context.Background(), "teleport")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if re.Message != "Unsupported method: teleport" {
		t.Errorf("unexpected message %q", re.Message)
	}
	if IsTransport(err) {
		t.Error("unsupported method is not a transport error")
	}
}

func TestResponderNotLoaded(t *testing.T) {
	p := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	r := NewResponder(p.page)
	r.Handle("detectFace", func(ctx context.Context, req *protocol.RequestData) (any, error) {
		return nil, nil
	})

	go r.Serve(ctx, func(ctx context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	// Give Serve time to subscribe before calling.
	time.Sleep(20 * time.Millisecond)

	_, err := NewCaller(p.content, WithCallTimeout(time.Second)).Call(ctx, "detectFace")
	var re *RemoteError
	if !errors.As(err, &re) || re.Message != MsgNotLoaded {
		t.Fatalf("expected %q, got %v", MsgNotLoaded, err)
	}
	if !IsTransport(err) {
		t.Error("not loaded should count as a transport error")
	}
	if r.Loaded() {
		t.Error("responder should not be loaded yet")
	}
}

func TestResponderLoadFailure(t *testing.T) {
	p := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, _ := p.content.Subscribe(ctx)
	defer sub.Close()

	r := NewResponder(p.page)
	go r.Serve(ctx, func(ctx context.Context) error {
		return errors.New("Failed to load face-api")
	})

	err := WaitReady(ctx, sub, time.Second)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if !strings.Contains(re.Message, "Failed to load") {
		t.Errorf("unexpected message %q", re.Message)
	}
}

func TestResponderRecoversPanic(t *testing.T) {
	p := newPair(t)
	r := NewResponder(p.page)
	r.Handle("explode", func(ctx context.Context, req *protocol.RequestData) (any, error) {
		panic("boom")
	})
	r.Handle("ok", func(ctx context.Context, req *protocol.RequestData) (any, error) {
		return true, nil
	})
	serve(t, p, r, nil)

	c := NewCaller(p.content)
	_, err := c.Call(context.Background(), "explode")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic error, got %v", err)
	}

	// The responder survives and keeps answering.
	if _, err := c.Call(context.Background(), "ok"); err != nil {
		t.Errorf("Call after panic failed: %v", err)
	}
}

func TestResponderHandlerError(t *testing.T) {
	p := newPair(t)
	r := NewResponder(p.page)
	r.Handle("detectFace", func(ctx context.Context, req *protocol.RequestData) (any, error) {
		return nil, errors.New("unknown frame ref")
	})
	serve(t, p, r, nil)

	_, err := NewCaller(p.content).Call(context.Background(), "detectFace", "nope")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if re.Method != "detectFace" || re.Message != "unknown frame ref" {
		t.Errorf("unexpected error %+v", re)
	}
}
