package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-moodguard/pkg/emotion"
)

// script feeds one result per DetectOnce call. An exhausted script finds
// no face.
type script struct {
	mu      sync.Mutex
	results []result
	calls   int
	block   chan struct{} // when set, DetectOnce waits on it
}

type result struct {
	scores emotion.Scores
	err    error
}

func surprised(v float64) result {
	return result{scores: emotion.Scores{emotion.Surprised: v, emotion.Neutral: 1 - v}}
}

func noFace() result { return result{} }

func failure() result { return result{err: errors.New("bridge: request timeout")} }

func repeat(r result, n int) []result {
	out := make([]result, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func (s *script) DetectOnce(ctx context.Context, ref string) (emotion.Scores, error) {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) == 0 {
		return nil, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.scores, r.err
}

type recorder struct {
	mu     sync.Mutex
	labels []emotion.Label
}

func (r *recorder) Dispatch(ctx context.Context, label emotion.Label) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, label)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.labels)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newArmed(t *testing.T, cfg Config, s *script, opts ...Option) (*Monitor, *recorder) {
	t.Helper()
	rec := &recorder{}
	m, err := New(cfg, s, "video-1", rec, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := m.Arm(); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	return m, rec
}

func TestTriggerFiresOnRequiredTick(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequiredTicks() != 15 {
		t.Fatalf("expected 15 required ticks, got %d", cfg.RequiredTicks())
	}

	m, rec := newArmed(t, cfg, &script{results: repeat(surprised(0.7), 15)})
	ctx := context.Background()

	for i := 1; i <= 14; i++ {
		if got := m.Tick(ctx); got != OutcomeHolding {
			t.Fatalf("tick %d: expected holding, got %s", i, got)
		}
	}
	if rec.count() != 0 {
		t.Fatal("trigger fired before tick 15")
	}

	if got := m.Tick(ctx); got != OutcomeTriggered {
		t.Fatalf("tick 15: expected triggered, got %s", got)
	}
	if rec.count() != 1 {
		t.Errorf("expected exactly 1 dispatch, got %d", rec.count())
	}
	if rec.labels[0] != emotion.Surprised {
		t.Errorf("dispatched %s", rec.labels[0])
	}
	if st := m.Status(); st.Held != 0 || !st.Fired || st.Triggers != 1 {
		t.Errorf("unexpected status after trigger %+v", st)
	}
}

func TestGapResetsHold(t *testing.T) {
	var results []result
	results = append(results, repeat(surprised(0.7), 8)...)
	results = append(results, surprised(0.3))
	results = append(results, repeat(surprised(0.7), 8)...)

	m, rec := newArmed(t, DefaultConfig(), &script{results: results})
	ctx := context.Background()

	for i := 0; i < len(results); i++ {
		m.Tick(ctx)
	}
	if rec.count() != 0 {
		t.Errorf("expected no trigger, got %d", rec.count())
	}
	if held := m.Status().Held; held != 8*200*time.Millisecond {
		t.Errorf("expected 1.6s held after the second run, got %s", held)
	}
}

func TestResetOutcomes(t *testing.T) {
	tests := []struct {
		name string
		last result
		want Outcome
	}{
		{"no face", noFace(), OutcomeNoFace},
		{"detection error", failure(), OutcomeError},
		{"below threshold", surprised(0.59), OutcomeBelow},
		{"target missing", result{scores: emotion.Scores{emotion.Happy: 0.9}}, OutcomeBelow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := append(repeat(surprised(0.7), 5), tt.last)
			m, _ := newArmed(t, DefaultConfig(), &script{results: results})
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				m.Tick(ctx)
			}
			if m.Status().Held == 0 {
				t.Fatal("expected hold to accumulate")
			}
			if got := m.Tick(ctx); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if held := m.Status().Held; held != 0 {
				t.Errorf("expected hold reset, got %s", held)
			}
			if m.State() != StateArmed {
				t.Errorf("expected armed, got %s", m.State())
			}
		})
	}
}

func TestThresholdIsInclusive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hold = cfg.Tick
	m, rec := newArmed(t, cfg, &script{results: []result{surprised(0.6)}})

	if got := m.Tick(context.Background()); got != OutcomeTriggered {
		t.Errorf("expected score equal to threshold to count, got %s", got)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 dispatch, got %d", rec.count())
	}
}

func TestCooldown(t *testing.T) {
	clk := &clock{now: time.Unix(1000, 0)}
	cfg := DefaultConfig()
	cfg.Hold = 2 * cfg.Tick
	cfg.Cooldown = 8 * time.Second

	m, rec := newArmed(t, cfg, &script{results: repeat(surprised(0.9), 10)}, WithClock(clk.Now))
	ctx := context.Background()

	m.Tick(ctx)
	if got := m.Tick(ctx); got != OutcomeTriggered {
		t.Fatalf("expected trigger, got %s", got)
	}
	if m.State() != StateTriggered {
		t.Fatalf("expected triggered state, got %s", m.State())
	}

	clk.Advance(7 * time.Second)
	if got := m.Tick(ctx); got != OutcomeCooldown {
		t.Errorf("expected cooldown, got %s", got)
	}

	clk.Advance(time.Second)
	if got := m.Tick(ctx); got != OutcomeHolding {
		t.Errorf("expected holding after cooldown, got %s", got)
	}
	if got := m.Tick(ctx); got != OutcomeTriggered {
		t.Errorf("expected second trigger, got %s", got)
	}
	if rec.count() != 2 {
		t.Errorf("expected 2 dispatches, got %d", rec.count())
	}
}

func TestFireAndContinue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hold = 2 * cfg.Tick
	cfg.Cooldown = 0

	m, rec := newArmed(t, cfg, &script{results: repeat(surprised(0.9), 6)})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		m.Tick(ctx)
	}
	// Uniform hold: every second tick fires.
	if rec.count() != 3 {
		t.Errorf("expected 3 dispatches, got %d", rec.count())
	}
	if m.State() != StateArmed {
		t.Errorf("expected armed, got %s", m.State())
	}
}

func TestSingleTickRetrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = 0
	cfg.Retrigger = RetriggerSingleTick

	m, rec := newArmed(t, cfg, &script{results: repeat(surprised(0.9), 18)})
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		m.Tick(ctx)
	}
	if rec.count() != 1 {
		t.Fatalf("expected first trigger after full hold, got %d", rec.count())
	}
	for i := 0; i < 3; i++ {
		if got := m.Tick(ctx); got != OutcomeTriggered {
			t.Errorf("tick %d after first fire: expected trigger, got %s", i+1, got)
		}
	}

	m.Rearm()
	s := &script{results: repeat(surprised(0.9), 1)}
	m.detector = s
	if got := m.Tick(ctx); got != OutcomeHolding {
		t.Errorf("after Rearm the full hold applies again, got %s", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	stops := 0
	m, _ := newArmed(t, DefaultConfig(), &script{}, WithOnStop(func() { stops++ }))

	m.Stop()
	m.Stop()
	if stops != 1 {
		t.Errorf("expected capture released once, got %d", stops)
	}
	if m.State() != StateStopped {
		t.Errorf("expected stopped, got %s", m.State())
	}
	if got := m.Tick(context.Background()); got != OutcomeSkipped {
		t.Errorf("expected skipped after stop, got %s", got)
	}

	// A stopped monitor can be started again.
	if err := m.Arm(); err != nil {
		t.Errorf("Arm after Stop failed: %v", err)
	}
	if err := m.Arm(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hold = cfg.Tick
	block := make(chan struct{})
	s := &script{results: []result{surprised(0.99)}, block: block}
	m, rec := newArmed(t, cfg, s)

	out := make(chan Outcome)
	go func() { out <- m.Tick(context.Background()) }()

	// Wait for the tick to be in flight, then stop underneath it.
	for !m.inFlight.Load() {
		time.Sleep(time.Millisecond)
	}
	if got := m.Tick(context.Background()); got != OutcomeSkipped {
		t.Errorf("overlapping tick: expected skipped, got %s", got)
	}
	m.Stop()
	close(block)

	if got := <-out; got != OutcomeStale {
		t.Errorf("expected stale, got %s", got)
	}
	if rec.count() != 0 {
		t.Errorf("stale result must not dispatch, got %d", rec.count())
	}
}

func TestStopDuringTriggerSuppressesDispatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hold = cfg.Tick

	var m *Monitor
	stopped := false
	m, rec := newArmed(t, cfg, &script{results: []result{surprised(0.9)}},
		WithReporter(func(r Reading) {
			// Stop lands after the trigger is decided but before it goes out.
			if r.Held >= r.Required && !stopped {
				stopped = true
				m.Stop()
			}
		}))

	if got := m.Tick(context.Background()); got != OutcomeStale {
		t.Errorf("expected stale, got %s", got)
	}
	if m.State() != StateStopped {
		t.Errorf("expected stopped, got %s", m.State())
	}
	if rec.count() != 0 {
		t.Errorf("dispatched %d times after Stop returned", rec.count())
	}
}

func TestStartWithDoneContext(t *testing.T) {
	m, err := New(DefaultConfig(), &script{}, "video-1", &recorder{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if m.State() != StateStopped {
		t.Errorf("expected monitor to stay stopped, got %s", m.State())
	}
	if m.Running() {
		t.Error("monitor should not report running")
	}
}

func TestNotReady(t *testing.T) {
	capture := &fakeCapture{}
	m, _ := newArmed(t, DefaultConfig(), &script{}, WithCapture(capture))

	if got := m.Tick(context.Background()); got != OutcomeNotReady {
		t.Errorf("expected not ready, got %s", got)
	}
	capture.ready = true
	if got := m.Tick(context.Background()); got != OutcomeNoFace {
		t.Errorf("expected no face, got %s", got)
	}
}

type fakeCapture struct{ ready bool }

func (c *fakeCapture) Ready() bool { return c.ready }

func TestReporter(t *testing.T) {
	var readings []Reading
	cfg := DefaultConfig()
	m, _ := newArmed(t, cfg, &script{results: []result{surprised(0.7), noFace()}},
		WithReporter(func(r Reading) { readings = append(readings, r) }))

	m.Tick(context.Background())
	m.Tick(context.Background())

	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	r := readings[0]
	if !r.Face || r.Strongest != emotion.Surprised || r.Score != 0.7 {
		t.Errorf("unexpected reading %+v", r)
	}
	if r.Held != cfg.Tick || r.Required != cfg.Hold {
		t.Errorf("unexpected hold in reading %+v", r)
	}
	if readings[1].Face {
		t.Error("expected no-face reading")
	}
}

func TestStartRunsTicks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = 5 * time.Millisecond
	cfg.Hold = 2 * cfg.Tick
	cfg.Cooldown = 0

	s := &script{results: repeat(surprised(0.9), 100)}
	rec := &recorder{}
	m, err := New(cfg, s, "video-1", rec)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	if rec.count() == 0 {
		t.Error("expected the tick loop to trigger")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errors int
	}{
		{"defaults", func(c *Config) {}, 0},
		{"unknown emotion", func(c *Config) { c.TargetEmotion = "bored" }, 1},
		{"threshold", func(c *Config) { c.Threshold = 1.5 }, 1},
		{"hold shorter than tick", func(c *Config) { c.Hold = time.Millisecond }, 1},
		{"negative cooldown", func(c *Config) { c.Cooldown = -time.Second }, 1},
		{"retrigger", func(c *Config) { c.Retrigger = "sometimes" }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if got := len(cfg.Validate()); got != tt.errors {
				t.Errorf("expected %d errors, got %d: %v", tt.errors, got, cfg.Validate())
			}
		})
	}

	if _, err := New(Config{}, &script{}, "", &recorder{}); err == nil {
		t.Error("expected New to reject an invalid config")
	}
}
