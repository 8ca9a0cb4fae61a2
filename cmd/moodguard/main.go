// MoodGuard watches the webcam for a sustained facial expression and
// reacts in the browser when it holds long enough.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-moodguard/internal/config"
	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/moodguard"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

func main() {
	cfg, autostart := parseFlags()
	log.Init(cfg.LogLevel)

	app, err := moodguard.New(cfg)
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		stdlog.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	if autostart {
		go func() {
			if ack, err := app.Start(ctx, protocol.StartPayload{}); err != nil || !ack.Success {
				log.Warn("autostart failed", "error", err, "ack", ack.Error)
			}
		}()
	}

	if err := app.Run(ctx); err != nil {
		stdlog.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags loads the config file and environment, then applies flags.
func parseFlags() (*config.Root, bool) {
	path := flag.String("config", config.Path(), "YAML config file (or set MOODGUARD_CONFIG)")
	port := flag.String("port", "", "Dashboard port")
	bridgeBackend := flag.String("bridge", "", "Bridge backend: memory, redis")
	redisAddr := flag.String("redis", "", "Redis address for the redis bridge")
	detector := flag.String("detector", "", "Detector backend: gocv, remote")
	modelDir := flag.String("models", "", "Model directory")
	detectorURL := flag.String("detector-url", "", "Remote detector URL")
	device := flag.Int("camera", -1, "Camera device id")
	browserURL := flag.String("browser", "", "Chrome DevTools URL (empty launches one)")
	noBrowser := flag.Bool("no-browser", false, "Disable tab and window control")
	headless := flag.Bool("headless", false, "Launch the browser headless")
	debug := flag.Bool("debug", false, "Enable debug logging")
	autostart := flag.Bool("start", false, "Start detection with the default settings")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		stdlog.Fatalf("❌ %v", err)
	}

	if *port != "" {
		cfg.HTTPPort = *port
	}
	if *bridgeBackend != "" {
		cfg.Bridge.Backend = *bridgeBackend
	}
	if *redisAddr != "" {
		cfg.Bridge.RedisAddr = *redisAddr
	}
	if *detector != "" {
		cfg.Detector.Backend = *detector
	}
	if *modelDir != "" {
		cfg.Detector.ModelDir = *modelDir
	}
	if *detectorURL != "" {
		cfg.Detector.RemoteURL = *detectorURL
	}
	if *device >= 0 {
		cfg.Camera.DeviceID = *device
	}
	if *browserURL != "" {
		cfg.Browser.ControlURL = *browserURL
	}
	cfg.Browser.Disabled = cfg.Browser.Disabled || *noBrowser
	cfg.Browser.Headless = cfg.Browser.Headless || *headless
	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg, *autostart
}
