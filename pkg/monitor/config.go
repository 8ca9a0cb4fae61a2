package monitor

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-moodguard/pkg/emotion"
)

// Retrigger decides the hold required after the first trigger of a session.
type Retrigger string

const (
	// RetriggerFull requires the full hold for every trigger.
	RetriggerFull Retrigger = "full"

	// RetriggerSingleTick requires one tick above threshold once the
	// monitor has fired.
	RetriggerSingleTick Retrigger = "single-tick"
)

// Config is fixed for the lifetime of a session.
type Config struct {
	TargetEmotion emotion.Label `json:"target_emotion"`
	Threshold     float64       `json:"threshold"`
	Hold          time.Duration `json:"hold"`
	Cooldown      time.Duration `json:"cooldown"` // 0 re-arms immediately after a trigger
	ActionType    string        `json:"action_type"`

	Tick      time.Duration `json:"tick"`
	Retrigger Retrigger     `json:"retrigger"`
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		TargetEmotion: emotion.Surprised,
		Threshold:     0.6,
		Hold:          3 * time.Second,
		Cooldown:      8 * time.Second,
		ActionType:    "brainrot",
		Tick:          200 * time.Millisecond,
		Retrigger:     RetriggerFull,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if !emotion.Valid(c.TargetEmotion) {
		errors = append(errors, fmt.Sprintf("unknown target emotion %q", c.TargetEmotion))
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errors = append(errors, "threshold must be between 0 and 1")
	}
	if c.Tick <= 0 {
		errors = append(errors, "tick must be positive")
	}
	if c.Hold < c.Tick {
		errors = append(errors, "hold must be at least one tick")
	}
	if c.Cooldown < 0 {
		errors = append(errors, "cooldown must not be negative")
	}
	switch c.Retrigger {
	case RetriggerFull, RetriggerSingleTick:
	default:
		errors = append(errors, fmt.Sprintf("retrigger must be %q or %q", RetriggerFull, RetriggerSingleTick))
	}

	return errors
}

// RequiredTicks returns how many consecutive ticks above threshold fire
// the first trigger.
func (c *Config) RequiredTicks() int {
	if c.Tick <= 0 {
		return 0
	}
	n := int(c.Hold / c.Tick)
	if c.Hold%c.Tick != 0 {
		n++
	}
	return n
}
