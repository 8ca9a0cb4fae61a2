// Package monitor turns a stream of per-tick expression scores into
// debounced trigger events.
//
// Every tick pulls one classification. Consecutive ticks at or above the
// threshold accumulate hold time; any miss, empty result or error resets
// it. When the hold reaches the required duration the monitor fires its
// dispatcher exactly once and re-arms, either immediately or after the
// cooldown window.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/emotion"
)

// ErrAlreadyRunning is returned by Start on a running monitor.
var ErrAlreadyRunning = errors.New("monitor: already running")

// Detector yields one classification of the frame behind ref. A nil result
// with a nil error means no face was found.
type Detector interface {
	DetectOnce(ctx context.Context, ref string) (emotion.Scores, error)
}

// Dispatcher performs the side effect of a trigger.
type Dispatcher interface {
	Dispatch(ctx context.Context, label emotion.Label) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, label emotion.Label) error

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(ctx context.Context, label emotion.Label) error {
	return f(ctx, label)
}

// Capture reports whether the frame source has a frame to classify.
type Capture interface {
	Ready() bool
}

// State is the monitor lifecycle state.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateTriggered // inside the cooldown window
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateTriggered:
		return "triggered"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome describes what one tick did.
type Outcome int

const (
	OutcomeSkipped   Outcome = iota // not running, or a tick already in flight
	OutcomeNotReady                 // capture has no frame yet
	OutcomeCooldown                 // inside the cooldown window
	OutcomeStale                    // result arrived after stop or restart
	OutcomeError                    // detection failed, hold reset
	OutcomeNoFace                   // no face found, hold reset
	OutcomeBelow                    // score under threshold, hold reset
	OutcomeHolding                  // score at or above threshold, hold grew
	OutcomeTriggered                // hold reached, dispatched
)

var outcomeNames = [...]string{
	"skipped", "not-ready", "cooldown", "stale", "error", "no-face", "below", "holding", "triggered",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Reading is the live view of one classified tick.
type Reading struct {
	Face       bool          `json:"face"`
	Strongest  emotion.Label `json:"strongest,omitempty"`
	Confidence float64       `json:"confidence"`
	Target     emotion.Label `json:"target"`
	Score      float64       `json:"score"`
	Held       time.Duration `json:"held"`
	Required   time.Duration `json:"required"`
	At         time.Time     `json:"at"`
}

// Status is a snapshot of the monitor.
type Status struct {
	State       State         `json:"state"`
	Held        time.Duration `json:"held"`
	Fired       bool          `json:"fired"`
	Triggers    int           `json:"triggers"`
	LastTrigger time.Time     `json:"last_trigger,omitempty"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithReporter receives a Reading after every classified tick.
func WithReporter(fn func(Reading)) Option {
	return func(m *Monitor) { m.report = fn }
}

// WithCapture gates ticks on the frame source being ready.
func WithCapture(c Capture) Option {
	return func(m *Monitor) { m.capture = c }
}

// WithOnStop is called once each time the monitor stops, to release the
// capture it was polling.
func WithOnStop(fn func()) Option {
	return func(m *Monitor) { m.onStop = fn }
}

// Monitor is the polling state machine.
type Monitor struct {
	cfg      Config
	detector Detector
	ref      string
	dispatch Dispatcher
	capture  Capture
	report   func(Reading)
	onStop   func()
	now      func() time.Time
	log      *slog.Logger

	inFlight atomic.Bool

	// fire is held from the last gen check through Dispatch, so once Stop
	// returns no trigger of the stopped run can go out.
	fire sync.Mutex

	mu          sync.Mutex
	state       State
	gen         uint64 // bumped on every start and stop
	held        time.Duration
	fired       bool
	triggers    int
	lastTrigger time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates an idle monitor polling ref through d.
func New(cfg Config, d Detector, ref string, dispatch Dispatcher, opts ...Option) (*Monitor, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid monitor config: %v", errs)
	}
	m := &Monitor{
		cfg:      cfg,
		detector: d,
		ref:      ref,
		dispatch: dispatch,
		now:      time.Now,
		log:      log.Component("monitor").With("target", cfg.TargetEmotion),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the monitor configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Arm moves an idle or stopped monitor to Armed with zeroed counters,
// without starting the tick loop. Ticks are then driven by the caller.
func (m *Monitor) Arm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armLocked()
}

func (m *Monitor) armLocked() error {
	if m.state == StateArmed || m.state == StateTriggered {
		return ErrAlreadyRunning
	}
	m.state = StateArmed
	m.gen++
	m.held = 0
	m.fired = false
	m.lastTrigger = time.Time{}
	return nil
}

// Start arms the monitor and ticks it every cfg.Tick until Stop or ctx
// is done. Each tick runs in its own goroutine; a tick that would overlap
// one still in flight is skipped. A ctx that is already done leaves the
// monitor as it was.
func (m *Monitor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.armLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(rctx, done)

	m.log.Info("monitor started",
		"threshold", m.cfg.Threshold,
		"hold", m.cfg.Hold,
		"cooldown", m.cfg.Cooldown,
		"tick", m.cfg.Tick,
		"retrigger", m.cfg.Retrigger,
	)
	return nil
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go m.Tick(ctx)
		}
	}
}

// Stop cancels the tick loop, clears the counters and releases the
// capture. Safe to call from any state, any number of times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	m.state = StateStopped
	m.gen++
	m.held = 0
	m.fired = false
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	// Wait out a dispatch already past its gen check.
	m.fire.Lock()
	m.fire.Unlock()

	if m.onStop != nil {
		m.onStop()
	}
	m.log.Info("monitor stopped")
}

// Rearm clears the fired-once flag, so the next trigger needs the full
// hold again, and ends any cooldown in progress.
func (m *Monitor) Rearm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fired = false
	m.held = 0
	if m.state == StateTriggered {
		m.state = StateArmed
	}
}

// Status returns a snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:       m.state,
		Held:        m.held,
		Fired:       m.fired,
		Triggers:    m.triggers,
		LastTrigger: m.lastTrigger,
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Running reports whether the monitor is armed or cooling down.
func (m *Monitor) Running() bool {
	s := m.State()
	return s == StateArmed || s == StateTriggered
}

func (m *Monitor) required() time.Duration {
	if m.fired && m.cfg.Retrigger == RetriggerSingleTick {
		return m.cfg.Tick
	}
	return m.cfg.Hold
}

// Tick runs one polling step.
func (m *Monitor) Tick(ctx context.Context) Outcome {
	if !m.inFlight.CompareAndSwap(false, true) {
		return OutcomeSkipped
	}
	defer m.inFlight.Store(false)

	m.mu.Lock()
	switch m.state {
	case StateArmed:
	case StateTriggered:
		if m.now().Sub(m.lastTrigger) < m.cfg.Cooldown {
			m.mu.Unlock()
			return OutcomeCooldown
		}
		m.state = StateArmed
	default:
		m.mu.Unlock()
		return OutcomeSkipped
	}
	if m.capture != nil && !m.capture.Ready() {
		m.mu.Unlock()
		return OutcomeNotReady
	}
	gen := m.gen
	m.mu.Unlock()

	// The lock is not held across detection so Stop never waits on it.
	scores, err := m.detector.DetectOnce(ctx, m.ref)

	m.mu.Lock()
	if m.gen != gen || m.state != StateArmed {
		m.mu.Unlock()
		return OutcomeStale
	}

	if err != nil {
		m.held = 0
		m.mu.Unlock()
		m.log.Debug("detection failed", "error", err)
		return OutcomeError
	}

	if scores == nil {
		m.held = 0
		reading := Reading{Target: m.cfg.TargetEmotion, Required: m.required(), At: m.now()}
		m.mu.Unlock()
		m.emit(reading)
		return OutcomeNoFace
	}

	score := scores.Score(m.cfg.TargetEmotion)
	strongest, confidence := scores.Strongest()
	reading := Reading{
		Face:       true,
		Strongest:  strongest,
		Confidence: confidence,
		Target:     m.cfg.TargetEmotion,
		Score:      score,
		At:         m.now(),
	}

	if score < m.cfg.Threshold {
		m.held = 0
		reading.Required = m.required()
		m.mu.Unlock()
		m.emit(reading)
		return OutcomeBelow
	}

	m.held += m.cfg.Tick
	required := m.required()
	reading.Held, reading.Required = m.held, required

	if m.held < required {
		m.mu.Unlock()
		m.emit(reading)
		return OutcomeHolding
	}

	m.held = 0
	m.fired = true
	m.triggers++
	m.lastTrigger = reading.At
	if m.cfg.Cooldown > 0 {
		m.state = StateTriggered
	}
	m.mu.Unlock()

	m.emit(reading)

	m.fire.Lock()
	defer m.fire.Unlock()
	m.mu.Lock()
	stale := m.gen != gen || m.state == StateStopped
	m.mu.Unlock()
	if stale {
		m.log.Debug("trigger abandoned, monitor stopped")
		return OutcomeStale
	}

	m.log.Info("trigger", "score", score, "held", reading.Held)
	if err := m.dispatch.Dispatch(ctx, m.cfg.TargetEmotion); err != nil {
		m.log.Warn("dispatch failed", "error", err)
	}
	return OutcomeTriggered
}

func (m *Monitor) emit(r Reading) {
	if m.report != nil {
		m.report(r)
	}
}
