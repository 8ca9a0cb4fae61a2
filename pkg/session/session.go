// Package session hosts one detection session at a time: it brings the
// bridge up, loads the models, opens the camera and runs the monitor, and
// takes all of it down again on every exit path.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/action"
	"github.com/teslashibe/go-moodguard/pkg/bridge"
	"github.com/teslashibe/go-moodguard/pkg/camera"
	"github.com/teslashibe/go-moodguard/pkg/detection"
	"github.com/teslashibe/go-moodguard/pkg/monitor"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// Status is the user-facing session status.
type Status string

const (
	StatusStopped      Status = "Stopped"
	StatusInitializing Status = "Initializing..."
	StatusLoading      Status = "Loading models..."
	StatusCamera       Status = "Connecting camera..."
	StatusActive       Status = "Active"
	StatusLimited      Status = "Limited Mode"
	StatusCameraError  Status = "Camera error"
	StatusModelError   Status = "Model error"
)

// Snapshot is the observable state of the controller.
type Snapshot struct {
	Status    Status           `json:"status"`
	Detail    string           `json:"detail,omitempty"`
	Namespace string           `json:"namespace,omitempty"`
	Config    *monitor.Config  `json:"config,omitempty"`
	Monitor   *monitor.Status  `json:"monitor,omitempty"`
	Reading   *monitor.Reading `json:"reading,omitempty"`
	Updated   time.Time        `json:"updated"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithStatusListener is called after every status change.
func WithStatusListener(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onStatus = fn }
}

// WithReadingListener is called with every monitor reading.
func WithReadingListener(fn func(monitor.Reading)) Option {
	return func(c *Controller) { c.onReading = fn }
}

// WithMonitorOptions adds options to every monitor the controller builds.
func WithMonitorOptions(opts ...monitor.Option) Option {
	return func(c *Controller) { c.monitorOpts = append(c.monitorOpts, opts...) }
}

// WithPicker replaces the brainrot link picker.
func WithPicker(pick func(n int) int) Option {
	return func(c *Controller) { c.pick = pick }
}

// Controller is the content-side host.
type Controller struct {
	cfg    Config
	bus    bridge.Bus
	open   camera.Opener
	frames *camera.Registry
	out    action.Sender
	log    *slog.Logger

	onStatus    func(Snapshot)
	onReading   func(monitor.Reading)
	monitorOpts []monitor.Option
	pick        func(n int) int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	status  Status
	detail  string
	current *run
	reading *monitor.Reading
}

// run is one session. Resources are set as they are acquired and released
// in reverse by teardown.
type run struct {
	namespace string
	ref       string
	config    monitor.Config
	tabID     string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ch      bridge.Channel
	cam     camera.Source
	mon     *monitor.Monitor
	stopped bool
}

// New creates an idle controller. Frames are registered in frames so the
// page side can resolve them; trigger effects are sent on out.
func New(cfg Config, bus bridge.Bus, open camera.Opener, frames *camera.Registry, out action.Sender, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:    cfg,
		bus:    bus,
		open:   open,
		frames: frames,
		out:    out,
		log:    log.Component("session"),
		ctx:    ctx,
		cancel: cancel,
		status: StatusStopped,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleCommand is the runtime.Handler for start and stop commands. Both
// acknowledge immediately; the start sequence continues in the background.
func (c *Controller) HandleCommand(ctx context.Context, msg protocol.Message) protocol.Ack {
	switch msg.Type {
	case protocol.TypeStartDetection:
		p, err := msg.StartPayload()
		if err != nil {
			return protocol.Ack{Error: err.Error()}
		}
		if _, _, err := Resolve(p, c.cfg.Defaults); err != nil {
			return protocol.Ack{Error: err.Error()}
		}
		go func() {
			if err := c.Start(c.ctx, p); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				c.log.Warn("start failed", "error", err)
			}
		}()
		return protocol.Ack{Success: true}

	case protocol.TypeStopDetection:
		c.Stop()
		return protocol.Ack{Success: true}
	}
	return protocol.Ack{Error: fmt.Sprintf("unknown command %q", msg.Type)}
}

// Start runs the start sequence and returns once the monitor is running.
// Transport failures leave the controller in limited mode and return an
// error wrapping ErrLimited; capability failures return a
// *CapabilityError. Either way every acquired resource is released.
func (c *Controller) Start(ctx context.Context, p protocol.StartPayload) error {
	cfg, typ, err := Resolve(p, c.cfg.Defaults)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	rctx, cancel := context.WithCancel(c.ctx)
	r := &run{
		namespace: bridge.NewNamespace(),
		config:    cfg,
		tabID:     p.TabID,
		ctx:       rctx,
		cancel:    cancel,
	}
	r.ref = "video-" + r.namespace
	c.current = r
	c.reading = nil
	c.mu.Unlock()

	// Stop cancels rctx; abandon the sequence as soon as either ends.
	sctx, scancel := context.WithCancel(ctx)
	defer scancel()
	go func() {
		select {
		case <-rctx.Done():
			scancel()
		case <-sctx.Done():
		}
	}()

	err = c.bringUp(sctx, r, typ)
	if err == nil {
		c.setStatus(r, StatusActive, "")
		return nil
	}

	c.teardown(r)
	if r.ctx.Err() != nil {
		return ErrStopped
	}

	var capErr *CapabilityError
	switch {
	case errors.As(err, &capErr) && capErr.Capability == CapabilityCamera:
		c.finish(r, StatusCameraError, err)
	case errors.As(err, &capErr):
		c.finish(r, StatusModelError, err)
	default:
		c.finish(r, StatusLimited, err)
		err = fmt.Errorf("%w: %v", ErrLimited, err)
	}
	c.log.Warn("session halted", "namespace", r.namespace, "error", err)
	return err
}

func (c *Controller) bringUp(ctx context.Context, r *run, typ action.Type) error {
	c.setStatus(r, StatusInitializing, "")

	ch, err := c.bus.Open(ctx, r.namespace)
	if err != nil {
		return err
	}
	if !r.hold(func() { r.ch = ch }) {
		ch.Close()
		return ErrStopped
	}

	if err := c.handshake(ctx, ch); err != nil {
		return err
	}

	c.setStatus(r, StatusLoading, "")
	proxy := detection.NewProxy(
		bridge.NewCaller(ch, bridge.WithCallTimeout(c.cfg.CallTimeout)),
		c.cfg.Options,
	)
	if err := proxy.LoadModels(ctx, c.cfg.ModelURI); err != nil {
		if bridge.IsTransport(err) || ctx.Err() != nil {
			return err
		}
		return &CapabilityError{Capability: CapabilityModel, Err: err}
	}

	c.setStatus(r, StatusCamera, "")
	camCfg := camera.DefaultConfig()
	if c.cfg.Camera != nil {
		camCfg = c.cfg.Camera()
	}
	cam, err := c.open(ctx, camCfg)
	if err != nil {
		return &CapabilityError{Capability: CapabilityCamera, Err: err}
	}
	if !r.hold(func() { r.cam = cam }) {
		cam.Close()
		return ErrStopped
	}
	c.frames.Register(r.ref, cam)

	dispatcher := c.dispatcher(typ, r.tabID)
	opts := []monitor.Option{
		monitor.WithCapture(cam),
		monitor.WithReporter(c.report),
	}
	opts = append(opts, c.monitorOpts...)
	mon, err := monitor.New(r.config, proxy, r.ref, dispatcher, opts...)
	if err != nil {
		return err
	}

	if !r.hold(func() { r.mon = mon }) {
		return ErrStopped
	}

	return mon.Start(r.ctx)
}

// handshake announces the namespace and waits for the page side.
func (c *Controller) handshake(ctx context.Context, ch bridge.Channel) error {
	sub, err := ch.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	ctrl, err := c.bus.Open(ctx, bridge.ControlNamespace)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.Post(ctx, protocol.NewInitFrame(ch.Namespace(), c.cfg.APIURL)); err != nil {
		return err
	}
	return bridge.WaitReady(ctx, sub, c.cfg.ReadyTimeout)
}

func (c *Controller) dispatcher(typ action.Type, tabID string) *action.Dispatcher {
	opts := []action.DispatcherOption{action.WithTabID(tabID)}
	if c.pick != nil {
		opts = append(opts, action.WithPicker(c.pick))
	}
	return action.NewDispatcher(typ, c.cfg.Links, c.out, opts...)
}

// Stop ends the current session, if any. Safe to call at any time.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		c.mu.Lock()
		changed := c.status != StatusStopped
		c.status = StatusStopped
		c.detail = ""
		c.mu.Unlock()
		if changed {
			c.notify()
		}
		return
	}

	r.cancel()
	c.teardown(r)
	c.finish(r, StatusStopped, nil)
	c.log.Info("session stopped", "namespace", r.namespace)
}

// hold records a resource on r unless r was already torn down.
func (r *run) hold(set func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	set()
	return true
}

// teardown releases everything r holds. Safe to call more than once.
func (c *Controller) teardown(r *run) {
	r.mu.Lock()
	r.stopped = true
	mon, cam, ch := r.mon, r.cam, r.ch
	r.mon, r.cam, r.ch = nil, nil, nil
	r.mu.Unlock()

	if mon != nil {
		mon.Stop()
	}
	if cam != nil {
		c.frames.Unregister(r.ref)
		if err := cam.Close(); err != nil {
			c.log.Warn("camera close failed", "error", err)
		}
	}
	if ch != nil {
		c.detach(r.namespace)
		ch.Close()
	}
}

// detach tells the page side to drop the namespace.
func (c *Controller) detach(namespace string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ctrl, err := c.bus.Open(ctx, bridge.ControlNamespace)
	if err != nil {
		return
	}
	defer ctrl.Close()
	if err := ctrl.Post(ctx, protocol.NewTeardownFrame(namespace)); err != nil {
		c.log.Debug("teardown post failed", "error", err)
	}
}

// finish clears r as the current run and records the final status.
func (c *Controller) finish(r *run, s Status, err error) {
	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.status = s
	c.detail = ""
	if err != nil {
		c.detail = err.Error()
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) setStatus(r *run, s Status, detail string) {
	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.detail = detail
	c.mu.Unlock()
	c.log.Debug("status", "status", s, "namespace", r.namespace)
	c.notify()
}

func (c *Controller) report(rd monitor.Reading) {
	c.mu.Lock()
	c.reading = &rd
	c.mu.Unlock()
	if c.onReading != nil {
		c.onReading(rd)
	}
}

func (c *Controller) notify() {
	if c.onStatus != nil {
		c.onStatus(c.Snapshot())
	}
}

// Break opens a brainrot window on demand. It works in every state, which
// is what keeps limited mode useful.
func (c *Controller) Break(ctx context.Context) error {
	return c.dispatcher(action.Brainrot, "").OpenBrainrot(ctx)
}

// Rearm makes the next trigger require the full hold again.
func (c *Controller) Rearm() error {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return ErrNotRunning
	}
	r.mu.Lock()
	mon := r.mon
	r.mu.Unlock()
	if mon == nil {
		return ErrNotRunning
	}
	mon.Rearm()
	return nil
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		Status:  c.status,
		Detail:  c.detail,
		Reading: c.reading,
		Updated: time.Now(),
	}
	r := c.current
	c.mu.Unlock()

	if r != nil {
		cfg := r.config
		s.Namespace = r.namespace
		s.Config = &cfg
		r.mu.Lock()
		mon := r.mon
		r.mu.Unlock()
		if mon != nil {
			st := mon.Status()
			s.Monitor = &st
		}
	}
	return s
}

// Close stops the session and cancels background work.
func (c *Controller) Close() {
	c.Stop()
	c.cancel()
}
