// Package config loads moodguard settings from an optional YAML file and
// MOODGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default settings.
const (
	DefaultHTTPPort  = "8787"
	DefaultRedisAddr = "localhost:6379"
	DefaultModelDir  = "models"
)

// Bridge selects the transport between the session and the detector.
type Bridge struct {
	Backend      string `yaml:"backend"` // "memory" or "redis"
	RedisAddr    string `yaml:"redis_addr"`
	CallTimeout  int    `yaml:"call_timeout_ms"`
	ReadyTimeout int    `yaml:"ready_timeout_ms"`
}

// Detector selects the expression classifier.
type Detector struct {
	Backend   string `yaml:"backend"` // "gocv" or "remote"
	ModelDir  string `yaml:"model_dir"`
	RemoteURL string `yaml:"remote_url"`
}

// Camera holds capture settings.
type Camera struct {
	DeviceID  int `yaml:"device_id"`
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	Framerate int `yaml:"framerate"`
	Quality   int `yaml:"quality"`
}

// Monitor holds the default detector session parameters.
type Monitor struct {
	Emotion   string  `yaml:"emotion"`
	Threshold float64 `yaml:"threshold"`
	Hold      float64 `yaml:"hold_seconds"`
	Cooldown  float64 `yaml:"cooldown_seconds"`
	TickMs    int     `yaml:"tick_ms"`
	Retrigger string  `yaml:"retrigger"` // "full" or "single-tick"
	Action    string  `yaml:"action"`
}

// Browser configures tab and window control.
type Browser struct {
	ControlURL string `yaml:"control_url"` // empty launches a local browser
	Headless   bool   `yaml:"headless"`
	Disabled   bool   `yaml:"disabled"`
}

// Links holds the URLs actions open.
type Links struct {
	Happy    string   `yaml:"happy"`
	Brainrot []string `yaml:"brainrot"`
}

// Root is the full configuration document.
type Root struct {
	LogLevel string   `yaml:"log_level"`
	HTTPPort string   `yaml:"http_port"`
	Bridge   Bridge   `yaml:"bridge"`
	Detector Detector `yaml:"detector"`
	Camera   Camera   `yaml:"camera"`
	Monitor  Monitor  `yaml:"monitor"`
	Browser  Browser  `yaml:"browser"`
	Links    Links    `yaml:"links"`
}

// Default returns the built-in configuration.
func Default() *Root {
	return &Root{
		LogLevel: "info",
		HTTPPort: DefaultHTTPPort,
		Bridge: Bridge{
			Backend:      "memory",
			RedisAddr:    DefaultRedisAddr,
			CallTimeout:  10000,
			ReadyTimeout: 15000,
		},
		Detector: Detector{
			Backend:  "gocv",
			ModelDir: DefaultModelDir,
		},
		Camera: Camera{
			Width:     640,
			Height:    480,
			Framerate: 15,
			Quality:   80,
		},
		Monitor: Monitor{
			Emotion:   "surprised",
			Threshold: 0.6,
			Hold:      3.0,
			Cooldown:  8.0,
			TickMs:    200,
			Retrigger: "full",
			Action:    "brainrot",
		},
		Links: Links{
			Happy: "https://www.youtube.com/results?search_query=cute+puppies",
			Brainrot: []string{
				"https://www.tiktok.com/@masterclip08/video/7552400264179895583",
			},
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path or a missing file yields defaults.
func Load(path string) (*Root, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			decErr := yaml.NewDecoder(f).Decode(cfg)
			f.Close()
			if decErr != nil {
				return nil, fmt.Errorf("decode config %s: %w", path, decErr)
			}
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// Path returns the config file path from MOODGUARD_CONFIG.
func Path() string {
	return os.Getenv("MOODGUARD_CONFIG")
}

// ApplyEnv overrides fields from MOODGUARD_* environment variables.
func (c *Root) ApplyEnv() {
	if v := os.Getenv("MOODGUARD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MOODGUARD_HTTP_PORT"); v != "" {
		c.HTTPPort = v
	}
	if v := os.Getenv("MOODGUARD_BRIDGE"); v != "" {
		c.Bridge.Backend = v
	}
	if v := os.Getenv("MOODGUARD_REDIS_ADDR"); v != "" {
		c.Bridge.RedisAddr = v
	}
	if v := os.Getenv("MOODGUARD_DETECTOR"); v != "" {
		c.Detector.Backend = v
	}
	if v := os.Getenv("MOODGUARD_MODEL_DIR"); v != "" {
		c.Detector.ModelDir = v
	}
	if v := os.Getenv("MOODGUARD_DETECTOR_URL"); v != "" {
		c.Detector.RemoteURL = v
	}
	if v, ok := envInt("MOODGUARD_CAMERA"); ok {
		c.Camera.DeviceID = v
	}
	if v := os.Getenv("MOODGUARD_BROWSER_URL"); v != "" {
		c.Browser.ControlURL = v
	}
	if v := os.Getenv("MOODGUARD_RETRIGGER"); v != "" {
		c.Monitor.Retrigger = v
	}
	if v, ok := envFloat("MOODGUARD_COOLDOWN"); ok {
		c.Monitor.Cooldown = v
	}
	if v := os.Getenv("MOODGUARD_BRAINROT_LINKS"); v != "" {
		c.Links.Brainrot = strings.Split(v, ",")
	}
}

// CallTimeoutDuration returns the bridge call timeout.
func (b Bridge) CallTimeoutDuration() time.Duration {
	return time.Duration(b.CallTimeout) * time.Millisecond
}

// ReadyTimeoutDuration returns how long to wait for the detector to load.
func (b Bridge) ReadyTimeoutDuration() time.Duration {
	return time.Duration(b.ReadyTimeout) * time.Millisecond
}

// DurSeconds converts fractional seconds to a duration.
func DurSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
