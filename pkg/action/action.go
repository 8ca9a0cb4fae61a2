// Package action turns triggers into effects. The Dispatcher runs on the
// session side and only sends messages; the Executor runs on the
// privileged side and owns notifications, tabs and windows.
package action

import (
	"fmt"

	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// Type selects what a trigger does.
type Type string

const (
	Notify    Type = "notify"
	CloseTab  Type = "close"
	OpenHappy Type = "open_happy"
	Brainrot  Type = "brainrot"
)

// ParseType converts s to a Type. open_url and open_window are accepted as
// aliases of open_happy and brainrot.
func ParseType(s string) (Type, error) {
	switch s {
	case string(Notify):
		return Notify, nil
	case string(CloseTab):
		return CloseTab, nil
	case string(OpenHappy), "open_url":
		return OpenHappy, nil
	case string(Brainrot), "open_window":
		return Brainrot, nil
	}
	return "", fmt.Errorf("unknown action type %q", s)
}

// Links are the URLs actions open.
type Links struct {
	Happy    string   `json:"happy" yaml:"happy"`
	Brainrot []string `json:"brainrot" yaml:"brainrot"`
}

// DefaultLinks returns the built-in URLs.
func DefaultLinks() Links {
	return Links{
		Happy: "https://www.youtube.com/watch?v=ZbZSe6N_BXs",
		Brainrot: []string{
			"https://www.tiktok.com/@masterclip08/video/7552400264179895583?lang=en",
		},
	}
}

// Build returns the descriptor the executor performs for t. Brainrot has
// no descriptor; it is sent as an open-brainrot-window message instead.
func Build(t Type, links Links) protocol.Action {
	switch t {
	case CloseTab:
		return protocol.Action{Message: "Closing this tab.", CloseTab: true}
	case OpenHappy:
		return protocol.Action{Message: "Here's something to cheer you up.", OpenURL: links.Happy}
	default:
		return protocol.Action{Message: "Take a breath."}
	}
}
