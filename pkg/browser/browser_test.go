package browser

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/teslashibe/go-moodguard/pkg/action"
)

func TestResolveWebsocketURL(t *testing.T) {
	u := "ws://127.0.0.1:9222/devtools/browser/abc"
	got, err := resolve(Config{ControlURL: u})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != u {
		t.Errorf("expected websocket URL unchanged, got %s", got)
	}
}

// TestBrowserTabs drives a real Chrome. Set MOODGUARD_CHROME to a DevTools
// address (e.g. 127.0.0.1:9222) to run it.
func TestBrowserTabs(t *testing.T) {
	addr := os.Getenv("MOODGUARD_CHROME")
	if addr == "" {
		t.Skip("MOODGUARD_CHROME not set, skipping browser test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	br, err := Connect(ctx, Config{ControlURL: addr})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer br.Shutdown()

	if err := br.Open(ctx, "about:blank#moodguard"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	tabs, err := br.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var id string
	for _, tab := range tabs {
		if tab.URL == "about:blank#moodguard" {
			id = tab.ID
		}
	}
	if id == "" {
		t.Fatal("opened tab not listed")
	}

	if err := br.Close(ctx, id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := br.Close(ctx, id); !errors.Is(err, action.ErrTabGone) {
		t.Errorf("expected ErrTabGone for a closed tab, got %v", err)
	}

	err = br.OpenWindow(ctx, action.Window{
		URL: "about:blank", Width: action.WindowWidth, Height: action.WindowHeight, Focused: true,
	})
	if err != nil {
		t.Errorf("OpenWindow failed: %v", err)
	}
}
