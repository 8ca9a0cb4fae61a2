package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// NotificationTitle is the title of every trigger notification.
const NotificationTitle = "MoodGuard"

// Brainrot window geometry.
const (
	WindowWidth  = 800
	WindowHeight = 600
	MaxLeft      = 400 // left is drawn from [0, MaxLeft)
	MaxTop       = 200 // top is drawn from [0, MaxTop)
)

// ErrTabGone is returned by Tabs.Close when the tab no longer exists.
var ErrTabGone = errors.New("action: tab not found")

// Notification is a user-visible notice.
type Notification struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Emotion string    `json:"emotion"`
	Time    time.Time `json:"time"`
}

// Notifier shows notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Window describes a new browser window.
type Window struct {
	URL     string
	Width   int
	Height  int
	Left    int
	Top     int
	Focused bool
}

// Tabs controls the browser.
type Tabs interface {
	// Close removes a tab. A missing tab returns ErrTabGone.
	Close(ctx context.Context, tabID string) error

	// Open creates a tab on url.
	Open(ctx context.Context, url string) error

	// OpenWindow creates a window.
	OpenWindow(ctx context.Context, w Window) error
}

// Executor performs effects on the privileged side.
type Executor struct {
	notifier Notifier
	tabs     Tabs
	intn     func(n int) int
	log      *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRandom replaces the window position source.
func WithRandom(intn func(n int) int) ExecutorOption {
	return func(e *Executor) { e.intn = intn }
}

// NewExecutor creates an executor. Either dependency may be nil, in which
// case the matching effects are skipped.
func NewExecutor(n Notifier, t Tabs, opts ...ExecutorOption) *Executor {
	e := &Executor{
		notifier: n,
		tabs:     t,
		intn:     rand.IntN,
		log:      log.Component("action.executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle is a runtime.Handler for the privileged port.
func (e *Executor) Handle(ctx context.Context, msg protocol.Message) protocol.Ack {
	var err error
	switch msg.Type {
	case protocol.TypeEmotionTrigger:
		err = e.trigger(ctx, msg)
	case protocol.TypeOpenBrainrotWindow:
		err = e.window(ctx, msg.URL)
	default:
		err = fmt.Errorf("unhandled message type %q", msg.Type)
	}
	if err != nil {
		e.log.Warn("effect failed", "type", msg.Type, "error", err)
		return protocol.Ack{Error: err.Error()}
	}
	return protocol.Ack{Success: true}
}

func (e *Executor) trigger(ctx context.Context, msg protocol.Message) error {
	p, err := msg.TriggerPayload()
	if err != nil {
		return err
	}

	if e.notifier != nil {
		n := Notification{
			Title:   NotificationTitle,
			Message: fmt.Sprintf("Detected %s. %s", p.Emotion, p.Action.Message),
			Emotion: p.Emotion,
			Time:    time.Now(),
		}
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.log.Warn("notification failed", "error", err)
		}
	}

	if p.Action.CloseTab && p.TabID != "" && e.tabs != nil {
		// A tab that is already gone is not an error.
		if err := e.tabs.Close(ctx, p.TabID); err != nil {
			e.log.Debug("close tab ignored", "tab", p.TabID, "error", err)
		}
	}

	if p.Action.OpenURL != "" && e.tabs != nil {
		if err := e.tabs.Open(ctx, p.Action.OpenURL); err != nil {
			return fmt.Errorf("open %s: %w", p.Action.OpenURL, err)
		}
	}
	return nil
}

func (e *Executor) window(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("open-brainrot-window: missing url")
	}
	if e.tabs == nil {
		return nil
	}
	w := Window{
		URL:     url,
		Width:   WindowWidth,
		Height:  WindowHeight,
		Left:    e.intn(MaxLeft),
		Top:     e.intn(MaxTop),
		Focused: true,
	}
	if err := e.tabs.OpenWindow(ctx, w); err != nil {
		return fmt.Errorf("open window: %w", err)
	}
	e.log.Info("brainrot window opened", "url", url, "left", w.Left, "top", w.Top)
	return nil
}
