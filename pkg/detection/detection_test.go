package detection

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-moodguard/pkg/bridge"
	"github.com/teslashibe/go-moodguard/pkg/emotion"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

type fakeFrame struct {
	ready bool
	data  []byte
	err   error
}

func (f *fakeFrame) Ready() bool           { return f.ready }
func (f *fakeFrame) JPEG() ([]byte, error) { return f.data, f.err }

type fakeFrames struct {
	mu     sync.Mutex
	frames map[string]Frame
}

func (r *fakeFrames) Resolve(ref string) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[ref]
	return f, ok
}

func newFrames() *fakeFrames {
	return &fakeFrames{frames: map[string]Frame{
		"video-1": &fakeFrame{ready: true, data: []byte{0xff, 0xd8}},
		"cold":    &fakeFrame{ready: false},
	}}
}

// session wires a proxy to an agent over a memory bus.
func session(t *testing.T, c Classifier) (*Proxy, *Agent) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := bridge.NewMemoryBus()
	agent := NewAgent(bus, func(ctx context.Context, apiURL string) (Classifier, error) {
		return c, nil
	}, newFrames())

	ns := bridge.NewNamespace()
	ch, _ := bus.Open(ctx, ns)
	t.Cleanup(func() { ch.Close() })
	sub, _ := ch.Subscribe(ctx)
	defer sub.Close()

	if err := agent.Attach(ctx, ns, "models"); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	t.Cleanup(agent.Close)

	if err := bridge.WaitReady(ctx, sub, time.Second); err != nil {
		t.Fatalf("WaitReady failed: %v", err)
	}
	return NewProxy(bridge.NewCaller(ch, bridge.WithCallTimeout(time.Second)), DefaultOptions()), agent
}

func TestProxyDetectOnce(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		mock    *Mock
		want    emotion.Scores
		wantNil bool
		wantErr bool
	}{
		{
			name: "face found",
			ref:  "video-1",
			mock: WithScores(emotion.Scores{emotion.Surprised: 0.7, emotion.Neutral: 0.2}),
			want: emotion.Scores{emotion.Surprised: 0.7, emotion.Neutral: 0.2},
		},
		{
			name:    "no face is not an error",
			ref:     "video-1",
			mock:    NewMock(),
			wantNil: true,
		},
		{
			name:    "classifier failure",
			ref:     "video-1",
			mock:    WithError(errors.New("inference crashed")),
			wantErr: true,
		},
		{
			name:    "unknown frame ref",
			ref:     "missing",
			mock:    NewMock(),
			wantErr: true,
		},
		{
			name:    "frame not ready",
			ref:     "cold",
			mock:    NewMock(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxy, _ := session(t, tt.mock)

			got, err := proxy.DetectOnce(context.Background(), tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if got != nil {
					t.Error("expected nil scores with error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectOnce failed: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			for l, v := range tt.want {
				if got.Score(l) != v {
					t.Errorf("%s: got %.2f, want %.2f", l, got.Score(l), v)
				}
			}
		})
	}
}

func TestProxyLoadModelsIdempotent(t *testing.T) {
	mock := NewMock()
	proxy, _ := session(t, mock)
	ctx := context.Background()

	if err := proxy.LoadModels(ctx, "models"); err != nil {
		t.Fatalf("LoadModels failed: %v", err)
	}
	if err := proxy.LoadModels(ctx, "models"); err != nil {
		t.Fatalf("second LoadModels failed: %v", err)
	}
	if mock.CallCount("LoadModel") != 2 {
		t.Errorf("expected 2 LoadModel calls, got %d", mock.CallCount("LoadModel"))
	}
	calls := mock.Calls()
	if calls[0].Args[0] != ModelFaceDetector || calls[1].Args[0] != ModelExpressions {
		t.Errorf("unexpected load order: %+v", calls)
	}
}

func TestProxyLoadModelFailure(t *testing.T) {
	mock := NewMock()
	mock.LoadModelFunc = func(ctx context.Context, name, uri string) error {
		return errors.New("404 model not found")
	}
	proxy, _ := session(t, mock)

	err := proxy.LoadModel(context.Background(), ModelFaceDetector, "models")
	var re *bridge.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if bridge.IsTransport(err) {
		t.Error("a failed model fetch is a capability error, not a transport error")
	}
}

func TestAgentRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := bridge.NewMemoryBus()
	mock := NewMock()
	agent := NewAgent(bus, func(ctx context.Context, apiURL string) (Classifier, error) {
		if apiURL != "https://cdn.example/face-api.js" {
			t.Errorf("unexpected api url %q", apiURL)
		}
		return mock, nil
	}, newFrames())

	done := make(chan struct{})
	go func() {
		agent.Run(ctx)
		close(done)
	}()

	ctrl, _ := bus.Open(ctx, bridge.ControlNamespace)
	defer ctrl.Close()

	ns := bridge.NewNamespace()
	ch, _ := bus.Open(ctx, ns)
	defer ch.Close()
	sub, _ := ch.Subscribe(ctx)

	// Give the agent time to subscribe to the control channel.
	time.Sleep(20 * time.Millisecond)

	init := protocol.NewInitFrame(ns, "https://cdn.example/face-api.js")
	ctrl.Post(ctx, init)
	ctrl.Post(ctx, init) // duplicate is ignored

	if err := bridge.WaitReady(ctx, sub, time.Second); err != nil {
		t.Fatalf("WaitReady failed: %v", err)
	}
	sub.Close()
	if agent.Sessions() != 1 {
		t.Errorf("expected 1 session, got %d", agent.Sessions())
	}

	ctrl.Post(ctx, protocol.NewTeardownFrame(ns))
	deadline := time.Now().Add(time.Second)
	for agent.Attached(ns) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if agent.Attached(ns) {
		t.Fatal("expected namespace to be detached")
	}
	if mock.CallCount("Close") != 1 {
		t.Errorf("expected classifier Close, got %d", mock.CallCount("Close"))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAgentFactoryFailure(t *testing.T) {
	ctx := context.Background()
	bus := bridge.NewMemoryBus()
	agent := NewAgent(bus, func(ctx context.Context, apiURL string) (Classifier, error) {
		return nil, errors.New("script blocked")
	}, newFrames())
	defer agent.Close()

	ns := bridge.NewNamespace()
	ch, _ := bus.Open(ctx, ns)
	defer ch.Close()
	sub, _ := ch.Subscribe(ctx)
	defer sub.Close()

	agent.Attach(ctx, ns, "")

	err := bridge.WaitReady(ctx, sub, time.Second)
	var re *bridge.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestSelectBest(t *testing.T) {
	if SelectBest(nil) != nil {
		t.Error("expected nil for no faces")
	}

	faces := []Face{
		{W: 0.4, H: 0.4, Confidence: 0.5},  // larger, low confidence
		{W: 0.2, H: 0.2, Confidence: 0.95}, // smaller, high confidence
	}
	if best := SelectBest(faces); best != &faces[1] {
		t.Errorf("expected high confidence face, got %+v", best)
	}

	same := []Face{
		{W: 0.5, H: 0.5, Confidence: 0.8},
		{W: 0.1, H: 0.1, Confidence: 0.8},
	}
	if best := SelectBest(same); best != &same[0] {
		t.Errorf("expected larger face, got %+v", best)
	}
}

func TestScoresFromLogits(t *testing.T) {
	// neutral, happiness, surprise, sadness, anger, disgust, fear, contempt
	scores := scoresFromLogits([]float64{0, 0, 4, 0, 0, 0, 0, 0})

	label, v := scores.Strongest()
	if label != emotion.Surprised {
		t.Errorf("expected surprised, got %s", label)
	}
	if v < 0.8 {
		t.Errorf("expected dominant surprise score, got %.3f", v)
	}
	if _, ok := scores[""]; ok {
		t.Error("contempt should be dropped")
	}

	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	// contempt carries the remaining mass
	if sum >= 1 || math.Abs(sum-1) > 0.05 {
		t.Errorf("unexpected probability mass %.3f", sum)
	}

	if scoresFromLogits(nil) != nil {
		t.Error("expected nil for empty logits")
	}
}

func TestFaceRect(t *testing.T) {
	r := faceRect(Face{X: 0.9, Y: -0.1, W: 0.2, H: 0.5}, 100, 100)
	if r.Min.X != 90 || r.Max.X != 100 || r.Min.Y != 0 || r.Max.Y != 40 {
		t.Errorf("unexpected clip %v", r)
	}
}
