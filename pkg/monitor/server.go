// Package monitor serves a live view of a recording: JSON status, the
// session catalog and a websocket stream of per-tick gaze snapshots.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/gazelog/internal/log"
	"github.com/teslashibe/gazelog/pkg/catalog"
	"github.com/teslashibe/gazelog/pkg/hub"
	"github.com/teslashibe/gazelog/pkg/protocol"
	"github.com/teslashibe/gazelog/pkg/recorder"
	"github.com/teslashibe/gazelog/pkg/sessionlog"
)

// SessionLister is satisfied by *catalog.Catalog.
type SessionLister interface {
	List(ctx context.Context, limit int) ([]catalog.Entry, error)
}

// RouteRegistrar mounts extra routes, such as the tracker bridge receiver.
type RouteRegistrar interface {
	RegisterRoutes(app fiber.Router)
}

// Config configures the monitor server.
type Config struct {
	Port string

	// PublishInterval throttles the tick stream. Zero publishes every tick.
	PublishInterval time.Duration
}

// DefaultConfig streams at 30 Hz on port 8090.
func DefaultConfig() Config {
	return Config{
		Port:            "8090",
		PublishInterval: time.Second / 30,
	}
}

// Status is the body of GET /api/status.
type Status struct {
	Recording  bool                    `json:"recording"`
	Session    *protocol.SessionEvent  `json:"session,omitempty"`
	Tick       *recorder.Tick          `json:"tick,omitempty"`
	Clients    int                     `json:"clients"`
	Components map[string]interface{} `json:"components,omitempty"`
}

// Server is the monitor HTTP server.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	gazeHub  *hub.Hub
	sessions SessionLister

	mu          sync.RWMutex
	last        recorder.Tick
	hasTick     bool
	lastPublish time.Time
	session     *protocol.SessionEvent
	components  map[string]func() interface{}
}

// NewServer creates the server. sessions may be nil when no catalog is open.
func NewServer(config Config, sessions SessionLister) *Server {
	if config.Port == "" {
		config.Port = DefaultConfig().Port
	}
	s := &Server{
		config:     config,
		logger:     log.For("monitor"),
		gazeHub:    hub.New("gaze"),
		sessions:   sessions,
		components: make(map[string]func() interface{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "gazelog monitor",
		DisableStartupMessage: true,
	})

	// CORS for local dashboards
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/sessions", s.handleSessions)

	app.Use("/ws/gaze", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/gaze", websocket.New(s.handleGazeWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the gaze stream hub.
func (s *Server) Hub() *hub.Hub {
	return s.gazeHub
}

// Mount lets another component add routes, e.g. the bridge receiver.
func (s *Server) Mount(r RouteRegistrar) {
	r.RegisterRoutes(s.app)
}

// AddComponent exposes fn's result under components.<name> in the status.
func (s *Server) AddComponent(name string, fn func() interface{}) {
	s.mu.Lock()
	s.components[name] = fn
	s.mu.Unlock()
}

// Start runs the hub and listens until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.gazeHub.Run(ctx)

	go func() {
		<-ctx.Done()
		s.app.Shutdown()
	}()

	s.logger.Info("monitor listening", "url", "http://localhost:"+s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// HandleTick records t and streams it, throttled to PublishInterval.
func (s *Server) HandleTick(t recorder.Tick) {
	s.mu.Lock()
	s.last = t
	s.hasTick = true
	due := s.config.PublishInterval <= 0 || t.Time.Sub(s.lastPublish) >= s.config.PublishInterval
	if due {
		s.lastPublish = t.Time
	}
	s.mu.Unlock()

	if !due || s.gazeHub.ClientCount() == 0 {
		return
	}
	if err := s.gazeHub.Publish(protocol.TypeTick, t); err != nil {
		s.logger.Debug("failed to publish tick", "error", err)
	}
}

// SessionStarted announces a new session file.
func (s *Server) SessionStarted(serial int, sessionID, path string) {
	s.setSession(protocol.SessionEvent{
		Event:     "started",
		Path:      path,
		Serial:    serial,
		SessionID: sessionID,
	})
}

// SessionEnded announces a finished session. It fits Logger.OnEnd.
func (s *Server) SessionEnded(r sessionlog.Result) {
	s.setSession(protocol.SessionEvent{
		Event:     "ended",
		Path:      r.Path,
		Serial:    r.Serial,
		SessionID: r.SessionID,
		Rows:      r.Rows,
		Reason:    r.Reason,
	})
}

func (s *Server) setSession(ev protocol.SessionEvent) {
	s.mu.Lock()
	s.session = &ev
	s.mu.Unlock()
	s.gazeHub.Publish(protocol.TypeSession, ev)
}

// Status returns the current status snapshot.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Clients: s.gazeHub.ClientCount()}
	if s.session != nil {
		ev := *s.session
		st.Session = &ev
		st.Recording = ev.Event == "started"
	}
	if s.hasTick {
		t := s.last
		st.Tick = &t
	}
	if len(s.components) > 0 {
		st.Components = make(map[string]interface{}, len(s.components))
		for name, fn := range s.components {
			st.Components[name] = fn()
		}
	}
	return st
}
