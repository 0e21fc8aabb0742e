package bridge

import (
	"log/slog"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/gazelog/internal/log"
)

// TrackerPath is the route bridges connect to.
const TrackerPath = "/ws/tracker"

// Receiver accepts tracker bridge connections on a fiber app.
type Receiver struct {
	buffer *Buffer
	logger *slog.Logger

	connected atomic.Int32
	received  atomic.Uint64
}

// NewReceiver creates a receiver that feeds buffer.
func NewReceiver(buffer *Buffer) *Receiver {
	return &Receiver{
		buffer: buffer,
		logger: log.For("bridge"),
	}
}

// Buffer returns the buffer the receiver feeds.
func (r *Receiver) Buffer() *Buffer {
	return r.buffer
}

// RegisterRoutes mounts the tracker websocket route.
func (r *Receiver) RegisterRoutes(app fiber.Router) {
	app.Use(TrackerPath, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(TrackerPath, websocket.New(r.handleBridge))
}

// Connected returns the number of connected bridges.
func (r *Receiver) Connected() int {
	return int(r.connected.Load())
}

// MessagesReceived returns the total number of messages read.
func (r *Receiver) MessagesReceived() uint64 {
	return r.received.Load()
}

func (r *Receiver) handleBridge(c *websocket.Conn) {
	remote := c.RemoteAddr().String()
	count := r.connected.Add(1)
	r.logger.Info("tracker bridge connected", "remote", remote, "bridges", count)

	defer func() {
		count := r.connected.Add(-1)
		r.logger.Info("tracker bridge disconnected", "remote", remote, "bridges", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Warn("tracker bridge read error", "remote", remote, "error", err)
			}
			return
		}
		r.received.Add(1)

		reply, err := r.buffer.Handle(data)
		if err != nil {
			r.logger.Debug("rejected bridge message", "remote", remote, "error", err)
			continue
		}
		if reply == nil {
			continue
		}
		raw, err := reply.Bytes()
		if err != nil {
			continue
		}
		if err := c.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}
