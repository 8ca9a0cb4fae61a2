// Package moodguard wires the detector, the session controller, the
// action executor and the dashboard into one process.
package moodguard

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-moodguard/internal/config"
	"github.com/teslashibe/go-moodguard/pkg/action"
	"github.com/teslashibe/go-moodguard/pkg/camera"
	"github.com/teslashibe/go-moodguard/pkg/emotion"
	"github.com/teslashibe/go-moodguard/pkg/monitor"
	"github.com/teslashibe/go-moodguard/pkg/session"
)

// Backends.
const (
	BridgeMemory   = "memory"
	BridgeRedis    = "redis"
	DetectorGoCV   = "gocv"
	DetectorRemote = "remote"
)

// MonitorDefaults maps the monitor section onto the defaults a start
// command falls back to.
func MonitorDefaults(c config.Monitor) (monitor.Config, error) {
	cfg := monitor.DefaultConfig()
	if c.Emotion != "" {
		l, err := emotion.Parse(c.Emotion)
		if err != nil {
			return cfg, err
		}
		cfg.TargetEmotion = l
	}
	if c.Threshold != 0 {
		cfg.Threshold = c.Threshold
	}
	if c.Hold != 0 {
		cfg.Hold = config.DurSeconds(c.Hold)
	}
	if c.Cooldown != 0 {
		cfg.Cooldown = config.DurSeconds(c.Cooldown)
	}
	if c.TickMs != 0 {
		cfg.Tick = time.Duration(c.TickMs) * time.Millisecond
	}
	if c.Retrigger != "" {
		cfg.Retrigger = monitor.Retrigger(c.Retrigger)
	}
	if c.Action != "" {
		t, err := action.ParseType(c.Action)
		if err != nil {
			return cfg, err
		}
		cfg.ActionType = string(t)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("monitor: %v", errs)
	}
	return cfg, nil
}

// CameraConfig maps the camera section.
func CameraConfig(c config.Camera) (camera.Config, error) {
	cfg := camera.DefaultConfig()
	cfg.DeviceID = c.DeviceID
	if c.Width != 0 {
		cfg.Width = c.Width
	}
	if c.Height != 0 {
		cfg.Height = c.Height
	}
	if c.Framerate != 0 {
		cfg.Framerate = c.Framerate
	}
	if c.Quality != 0 {
		cfg.Quality = c.Quality
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("camera: %v", errs)
	}
	return cfg, nil
}

// SessionConfig builds the controller config. cameraCfg is read at the
// start of every session.
func SessionConfig(root *config.Root, cameraCfg func() camera.Config) (session.Config, error) {
	cfg := session.DefaultConfig()

	defaults, err := MonitorDefaults(root.Monitor)
	if err != nil {
		return cfg, err
	}
	cfg.Defaults = defaults

	switch root.Detector.Backend {
	case DetectorGoCV, "":
	case DetectorRemote:
		if root.Detector.RemoteURL == "" {
			return cfg, fmt.Errorf("detector: remote backend needs remote_url")
		}
		cfg.APIURL = root.Detector.RemoteURL
	default:
		return cfg, fmt.Errorf("detector: unknown backend %q", root.Detector.Backend)
	}
	if root.Detector.ModelDir != "" {
		cfg.ModelURI = root.Detector.ModelDir
	}

	if d := root.Bridge.CallTimeoutDuration(); d > 0 {
		cfg.CallTimeout = d
	}
	if d := root.Bridge.ReadyTimeoutDuration(); d > 0 {
		cfg.ReadyTimeout = d
	}
	if cameraCfg != nil {
		cfg.Camera = cameraCfg
	}

	if root.Links.Happy != "" {
		cfg.Links.Happy = root.Links.Happy
	}
	if len(root.Links.Brainrot) > 0 {
		cfg.Links.Brainrot = root.Links.Brainrot
	}
	return cfg, nil
}
