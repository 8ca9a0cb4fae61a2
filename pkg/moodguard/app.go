package moodguard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-moodguard/internal/config"
	"github.com/teslashibe/go-moodguard/internal/httpc"
	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/action"
	"github.com/teslashibe/go-moodguard/pkg/bridge"
	"github.com/teslashibe/go-moodguard/pkg/browser"
	"github.com/teslashibe/go-moodguard/pkg/camera"
	"github.com/teslashibe/go-moodguard/pkg/detection"
	"github.com/teslashibe/go-moodguard/pkg/monitor"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
	"github.com/teslashibe/go-moodguard/pkg/runtime"
	"github.com/teslashibe/go-moodguard/pkg/session"
	"github.com/teslashibe/go-moodguard/pkg/web"
)

// App is the MoodGuard process.
type App struct {
	cfg *config.Root
	log *slog.Logger

	// Opener opens the camera for each session. Defaults to the webcam.
	Opener camera.Opener

	// Factory builds a classifier per session. Defaults to the configured
	// detector backend.
	Factory detection.Factory

	bus     bridge.Bus
	redis   *bridge.RedisBus
	frames  *camera.Registry
	cameras *camera.Manager
	agent   *detection.Agent
	browser *browser.Browser

	content    *runtime.Port
	background *runtime.Port
	executor   *action.Executor
	controller *session.Controller
	webServer  *web.Server
}

// New validates cfg and creates an uninitialized app.
func New(cfg *config.Root) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	switch cfg.Bridge.Backend {
	case BridgeMemory, BridgeRedis, "":
	default:
		return nil, fmt.Errorf("bridge: unknown backend %q", cfg.Bridge.Backend)
	}
	if _, err := MonitorDefaults(cfg.Monitor); err != nil {
		return nil, err
	}
	return &App{
		cfg:    cfg,
		log:    log.Component("moodguard"),
		Opener: camera.OpenWebcam,
	}, nil
}

// Init connects the bridge and the browser and builds every component.
func (a *App) Init(ctx context.Context) error {
	fmt.Println("🧠 MoodGuard")
	fmt.Println("===========")

	fmt.Print("🔌 Opening bridge... ")
	if err := a.initBridge(ctx); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	fmt.Println("✅")

	camCfg, err := CameraConfig(a.cfg.Camera)
	if err != nil {
		return err
	}
	a.frames = camera.NewRegistry()
	a.cameras = camera.NewManager(camCfg)

	if a.Factory == nil {
		a.Factory, err = a.classifierFactory()
		if err != nil {
			return err
		}
	}
	a.agent = detection.NewAgent(a.bus, a.Factory, a.frames)

	if !a.cfg.Browser.Disabled {
		fmt.Print("🌐 Connecting to browser... ")
		br, err := browser.Connect(ctx, browser.Config{
			ControlURL: a.cfg.Browser.ControlURL,
			Headless:   a.cfg.Browser.Headless,
		})
		if err != nil {
			fmt.Printf("⚠️  %v\n", err)
		} else {
			a.browser = br
			fmt.Println("✅")
		}
	}

	sessCfg, err := SessionConfig(a.cfg, a.cameras.GetConfig)
	if err != nil {
		return err
	}

	a.content = runtime.NewPort("content", 0)
	a.background = runtime.NewPort("background", 0)

	a.controller = session.New(sessCfg, a.bus, a.Opener, a.frames, a.background,
		session.WithStatusListener(func(s session.Snapshot) { a.webServer.PublishStatus(s) }),
		session.WithReadingListener(func(r monitor.Reading) { a.webServer.PublishReading(r) }),
	)

	a.webServer = web.NewServer(a.cfg.HTTPPort, a.content, a.controller)
	a.webServer.Camera = a.cameras

	if a.browser != nil {
		a.webServer.Tabs = a.browser
		a.executor = action.NewExecutor(a.webServer, a.browser)
	} else {
		a.executor = action.NewExecutor(a.webServer, nil)
	}
	return nil
}

func (a *App) initBridge(ctx context.Context) error {
	if a.cfg.Bridge.Backend != BridgeRedis {
		a.bus = bridge.NewMemoryBus()
		return nil
	}
	rb, err := bridge.DialRedis(ctx, a.cfg.Bridge.RedisAddr)
	if err != nil {
		return err
	}
	a.redis = rb
	a.bus = rb
	return nil
}

func (a *App) classifierFactory() (detection.Factory, error) {
	switch a.cfg.Detector.Backend {
	case DetectorGoCV, "":
		return func(ctx context.Context, apiURL string) (detection.Classifier, error) {
			return detection.NewGoCV(), nil
		}, nil
	case DetectorRemote:
		fallback := a.cfg.Detector.RemoteURL
		return func(ctx context.Context, apiURL string) (detection.Classifier, error) {
			if apiURL == "" {
				apiURL = fallback
			}
			if apiURL == "" {
				return nil, fmt.Errorf("no detector url")
			}
			return detection.NewRemote(apiURL, detection.WithHTTPClient(httpc.Client)), nil
		}, nil
	}
	return nil, fmt.Errorf("detector: unknown backend %q", a.cfg.Detector.Backend)
}

// Run serves every component until ctx is done.
func (a *App) Run(ctx context.Context) error {
	go func() {
		if err := a.agent.Run(ctx); err != nil {
			a.log.Error("agent stopped", "error", err)
		}
	}()
	go a.background.Serve(ctx, a.executor.Handle)
	go a.content.Serve(ctx, a.controller.HandleCommand)

	errc := make(chan error, 1)
	go func() { errc <- a.webServer.Start(ctx) }()

	fmt.Printf("🌐 Dashboard: http://localhost:%s\n", a.cfg.HTTPPort)
	fmt.Println("🎭 Ready. POST /api/commands to start detection.")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return fmt.Errorf("web server: %w", err)
	}
}

// Start sends a start-detection command as the dashboard would.
func (a *App) Start(ctx context.Context, p protocol.StartPayload) (protocol.Ack, error) {
	msg, err := protocol.NewStartMessage(p)
	if err != nil {
		return protocol.Ack{}, err
	}
	return a.content.Request(ctx, msg)
}

// Controller returns the session controller. Nil before Init.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Shutdown stops the session and releases every connection.
func (a *App) Shutdown() {
	fmt.Println("\n👋 Goodbye!")

	if a.controller != nil {
		a.controller.Close()
	}
	if a.agent != nil {
		a.agent.Close()
	}
	if a.webServer != nil {
		a.webServer.Shutdown()
	}
	if a.browser != nil {
		a.browser.Shutdown()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
