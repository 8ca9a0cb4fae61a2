package session

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-moodguard/pkg/action"
	"github.com/teslashibe/go-moodguard/pkg/bridge"
	"github.com/teslashibe/go-moodguard/pkg/camera"
	"github.com/teslashibe/go-moodguard/pkg/detection"
	"github.com/teslashibe/go-moodguard/pkg/emotion"
	"github.com/teslashibe/go-moodguard/pkg/monitor"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// Config holds what every session of a controller shares.
type Config struct {
	// Defaults fill the fields a start command leaves out.
	Defaults monitor.Config

	// APIURL is sent with INIT as the capability location.
	APIURL string

	// ModelURI is where the page side loads models from.
	ModelURI string

	// Options are passed with every detection.
	Options detection.Options

	ReadyTimeout time.Duration
	CallTimeout  time.Duration

	// Camera returns the capture settings for a new session.
	Camera func() camera.Config

	Links action.Links
}

// DefaultConfig returns controller defaults.
func DefaultConfig() Config {
	return Config{
		Defaults:     monitor.DefaultConfig(),
		ModelURI:     "models",
		Options:      detection.DefaultOptions(),
		ReadyTimeout: bridge.DefaultReadyTimeout,
		CallTimeout:  bridge.DefaultCallTimeout,
		Camera:       camera.DefaultConfig,
		Links:        action.DefaultLinks(),
	}
}

// Resolve builds the monitor config for a start command. Missing or zero
// fields take the defaults.
func Resolve(p protocol.StartPayload, defaults monitor.Config) (monitor.Config, action.Type, error) {
	cfg := defaults

	if p.Emotion != "" {
		l, err := emotion.Parse(p.Emotion)
		if err != nil {
			return cfg, "", err
		}
		cfg.TargetEmotion = l
	}
	if p.Threshold != 0 {
		cfg.Threshold = p.Threshold
	}
	if p.Hold != 0 {
		cfg.Hold = time.Duration(p.Hold * float64(time.Second))
	}
	if p.ActionType != "" {
		cfg.ActionType = p.ActionType
	}

	t, err := action.ParseType(cfg.ActionType)
	if err != nil {
		return cfg, "", err
	}
	cfg.ActionType = string(t)

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, "", fmt.Errorf("invalid start payload: %v", errs)
	}
	return cfg, t, nil
}
