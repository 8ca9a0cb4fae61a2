// Package browser controls tabs and windows of a Chrome instance over the
// DevTools protocol. It is the privileged side's handle on the browser.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/action"
)

// Config selects the browser to drive.
type Config struct {
	// ControlURL is a DevTools websocket URL, or an http host:port to
	// resolve one from. Empty launches a local Chrome.
	ControlURL string
	Headless   bool
}

// Tab describes an open page.
type Tab struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Browser implements action.Tabs on top of rod.
type Browser struct {
	b        *rod.Browser
	url      string
	launched bool
	cancel   context.CancelFunc
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ action.Tabs = (*Browser)(nil)

// Connect attaches to the browser in cfg, launching one if needed.
func Connect(ctx context.Context, cfg Config) (*Browser, error) {
	controlURL, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	bctx, cancel := context.WithCancel(ctx)
	b := rod.New().ControlURL(controlURL).Context(bctx)
	if err := b.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	br := &Browser{
		b:        b,
		url:      controlURL,
		launched: cfg.ControlURL == "",
		cancel:   cancel,
		log:      log.Component("browser"),
	}
	br.log.Info("connected", "control_url", controlURL)
	return br, nil
}

func resolve(cfg Config) (string, error) {
	u := cfg.ControlURL
	switch {
	case u == "":
		launched, err := launcher.New().Headless(cfg.Headless).Launch()
		if err != nil {
			return "", fmt.Errorf("launch chrome: %w", err)
		}
		return launched, nil
	case strings.HasPrefix(u, "ws://"), strings.HasPrefix(u, "wss://"):
		return u, nil
	default:
		resolved, err := launcher.ResolveURL(u)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", u, err)
		}
		return resolved, nil
	}
}

// ControlURL returns the DevTools websocket URL in use.
func (br *Browser) ControlURL() string {
	return br.url
}

func (br *Browser) browser(ctx context.Context) *rod.Browser {
	return br.b.Context(ctx)
}

// find returns the page with target id, or nil.
func (br *Browser) find(ctx context.Context, id string) (*rod.Page, error) {
	pages, err := br.browser(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		if string(p.TargetID) == id {
			return p, nil
		}
	}
	return nil, nil
}

// List returns the open tabs.
func (br *Browser) List(ctx context.Context) ([]Tab, error) {
	pages, err := br.browser(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	tabs := make([]Tab, 0, len(pages))
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		tabs = append(tabs, Tab{ID: string(p.TargetID), URL: info.URL, Title: info.Title})
	}
	return tabs, nil
}

// Close implements action.Tabs.
func (br *Browser) Close(ctx context.Context, tabID string) error {
	p, err := br.find(ctx, tabID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: %s", action.ErrTabGone, tabID)
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("close tab %s: %w", tabID, err)
	}
	br.log.Info("tab closed", "tab", tabID)
	return nil
}

// Open implements action.Tabs.
func (br *Browser) Open(ctx context.Context, url string) error {
	p, err := br.browser(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	br.log.Info("tab opened", "tab", p.TargetID, "url", url)
	return nil
}

// OpenWindow implements action.Tabs.
func (br *Browser) OpenWindow(ctx context.Context, w action.Window) error {
	p, err := br.browser(ctx).Page(proto.TargetCreateTarget{URL: w.URL, NewWindow: true})
	if err != nil {
		return fmt.Errorf("open window: %w", err)
	}

	left, top, width, height := w.Left, w.Top, w.Width, w.Height
	if err := p.SetWindow(&proto.BrowserBounds{
		Left:   &left,
		Top:    &top,
		Width:  &width,
		Height: &height,
	}); err != nil {
		br.log.Debug("set window bounds failed", "error", err)
	}
	if w.Focused {
		if _, err := p.Activate(); err != nil {
			br.log.Debug("focus window failed", "error", err)
		}
	}
	return nil
}

// Shutdown disconnects from the browser. A browser this package launched
// is closed; one it attached to is left running.
func (br *Browser) Shutdown() error {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.closed {
		return nil
	}
	br.closed = true

	var err error
	if br.launched {
		err = br.b.Close()
	}
	br.cancel()
	return err
}
