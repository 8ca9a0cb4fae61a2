package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

func TestPortSendServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPort("background", 4)
	got := make(chan protocol.Message, 4)
	go p.Serve(ctx, func(ctx context.Context, msg protocol.Message) protocol.Ack {
		got <- msg
		return protocol.Ack{Success: true}
	})

	if !p.Send(protocol.NewOpenWindowMessage("https://example.com")) {
		t.Fatal("Send dropped on an empty port")
	}

	select {
	case msg := <-got:
		if msg.Type != protocol.TypeOpenBrainrotWindow || msg.URL != "https://example.com" {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPortDropsWhenFull(t *testing.T) {
	p := NewPort("background", 2)

	for i := 0; i < 2; i++ {
		if !p.Send(protocol.NewStopMessage()) {
			t.Fatalf("send %d dropped", i)
		}
	}
	if p.Send(protocol.NewStopMessage()) {
		t.Error("expected third send to be dropped")
	}
	if _, err := p.Request(context.Background(), protocol.NewStopMessage()); !errors.Is(err, ErrPortFull) {
		t.Errorf("expected ErrPortFull, got %v", err)
	}

	sent, dropped := p.Stats()
	if sent != 2 || dropped != 2 {
		t.Errorf("expected 2 sent and 2 dropped, got %d and %d", sent, dropped)
	}
}

func TestPortRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPort("content", 0)
	go p.Serve(ctx, func(ctx context.Context, msg protocol.Message) protocol.Ack {
		if msg.Type == protocol.TypeStartDetection {
			return protocol.Ack{Success: true}
		}
		panic("unexpected message")
	})

	start, _ := protocol.NewStartMessage(protocol.StartPayload{Emotion: "sad"})
	ack, err := p.Request(ctx, start)
	if err != nil || !ack.Success {
		t.Errorf("expected success ack, got %+v, %v", ack, err)
	}

	// A panicking handler still answers, and the port keeps serving.
	ack, err = p.Request(ctx, protocol.NewStopMessage())
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if ack.Success || ack.Error == "" {
		t.Errorf("expected failure ack, got %+v", ack)
	}
	if ack, _ := p.Request(ctx, start); !ack.Success {
		t.Error("port stopped serving after a panic")
	}
}

func TestPortRequestContext(t *testing.T) {
	p := NewPort("content", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Nobody serves the port.
	if _, err := p.Request(ctx, protocol.NewStopMessage()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
