// Package web serves the MoodGuard dashboard: the command surface that
// replaces the extension popup, and the live status and notification
// feeds.
package web

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/action"
	"github.com/teslashibe/go-moodguard/pkg/browser"
	"github.com/teslashibe/go-moodguard/pkg/camera"
	"github.com/teslashibe/go-moodguard/pkg/hub"
	"github.com/teslashibe/go-moodguard/pkg/monitor"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
	"github.com/teslashibe/go-moodguard/pkg/session"
)

// maxNotifications is how many notifications GET /api/notifications keeps.
const maxNotifications = 100

// Commander delivers runtime commands and returns their acknowledgement.
type Commander interface {
	Request(ctx context.Context, msg protocol.Message) (protocol.Ack, error)
}

// Controller is the session surface the dashboard drives.
type Controller interface {
	Snapshot() session.Snapshot
	Break(ctx context.Context) error
	Rearm() error
}

// TabLister lists open browser tabs.
type TabLister interface {
	List(ctx context.Context) ([]browser.Tab, error)
}

// Event is one websocket message.
type Event struct {
	Type string `json:"type"` // status, reading, notification
	Data any    `json:"data"`
}

// Server is the dashboard server. It implements action.Notifier.
type Server struct {
	app  *fiber.App
	port string
	log  *slog.Logger

	commands Commander
	ctrl     Controller

	// Camera and Tabs are optional; their routes answer 404 when nil.
	Camera *camera.Manager
	Tabs   TabLister

	// CommandTimeout bounds POST /api/commands.
	CommandTimeout time.Duration

	notifications   []action.Notification
	notificationsMu sync.RWMutex

	statusHub *hub.Hub
	notifyHub *hub.Hub
}

// NewServer creates the dashboard server.
func NewServer(port string, commands Commander, ctrl Controller) *Server {
	s := &Server{
		port:           port,
		log:            log.Component("web"),
		commands:       commands,
		ctrl:           ctrl,
		CommandTimeout: 5 * time.Second,
		notifications:  make([]action.Notification, 0, maxNotifications),
		statusHub:      hub.New("status"),
		notifyHub:      hub.New("notifications"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "MoodGuard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Post("/commands", s.handleCommand)
	api.Get("/status", s.handleStatus)
	api.Post("/break", s.handleBreak)
	api.Post("/rearm", s.handleRearm)
	api.Get("/notifications", s.handleGetNotifications)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)
	api.Get("/camera/presets", s.handleCameraPresets)
	api.Get("/tabs", s.handleListTabs)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(hub.Serve(s.statusHub)))
	app.Get("/ws/notifications", websocket.New(hub.Serve(s.notifyHub)))

	s.app = app
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) runHubs(ctx context.Context) {
	go s.statusHub.Run(ctx)
	go s.notifyHub.Run(ctx)
}

// Start runs the hubs and listens on the configured port until the app
// is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.runHubs(ctx)
	s.log.Info("dashboard listening", "addr", ":"+s.port)
	return s.app.Listen(":" + s.port)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.runHubs(ctx)
	return s.app.Listener(ln)
}

// PublishStatus broadcasts a session snapshot. The latest one is sent to
// every client that connects later.
func (s *Server) PublishStatus(snap session.Snapshot) {
	if err := s.statusHub.Publish(Event{Type: "status", Data: snap}); err != nil {
		s.log.Warn("publish status failed", "error", err)
	}
}

// PublishReading broadcasts a monitor reading.
func (s *Server) PublishReading(r monitor.Reading) {
	if err := s.statusHub.BroadcastJSON(Event{Type: "reading", Data: r}); err != nil {
		s.log.Warn("publish reading failed", "error", err)
	}
}

// Notify implements action.Notifier.
func (s *Server) Notify(ctx context.Context, n action.Notification) error {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	s.notificationsMu.Lock()
	s.notifications = append(s.notifications, n)
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[1:]
	}
	s.notificationsMu.Unlock()

	s.log.Info("notification", "title", n.Title, "message", n.Message)
	return s.notifyHub.BroadcastJSON(Event{Type: "notification", Data: n})
}

// StatusHub returns the status hub.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// NotificationHub returns the notification hub.
func (s *Server) NotificationHub() *hub.Hub {
	return s.notifyHub
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
