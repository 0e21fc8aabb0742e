package monitor

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/gazelog/pkg/hub"
	"github.com/teslashibe/gazelog/pkg/protocol"
)

// defaultSessionLimit caps GET /api/sessions without ?limit.
const defaultSessionLimit = 50

// handleStatus returns the recorder's current state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleSessions lists catalogued sessions, newest first
func (s *Server) handleSessions(c *fiber.Ctx) error {
	if s.sessions == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "session catalog not configured",
		})
	}

	limit := c.QueryInt("limit", defaultSessionLimit)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be >= 0",
		})
	}

	entries, err := s.sessions.List(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"sessions": entries,
		"count":    len(entries),
	})
}

// handleGazeWS streams session events and ticks to a monitor client
func (s *Server) handleGazeWS(c *websocket.Conn) {
	// Catch the client up before handing the connection to the hub.
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session != nil {
		if msg, err := protocol.NewSessionMessage(*session); err == nil {
			c.WriteJSON(msg)
		}
	}

	client := hub.NewClient(s.gazeHub, c)
	client.Run()
}
