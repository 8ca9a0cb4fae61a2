package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-moodguard/pkg/camera"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
	"github.com/teslashibe/go-moodguard/pkg/session"
)

func errorJSON(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// handleCommand forwards a start or stop command and returns its ack.
func (s *Server) handleCommand(c *fiber.Ctx) error {
	msg, err := protocol.ParseMessage(c.Body())
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	switch msg.Type {
	case protocol.TypeStartDetection, protocol.TypeStopDetection:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unsupported command: " + string(msg.Type),
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.CommandTimeout)
	defer cancel()

	ack, err := s.commands.Request(ctx, msg)
	if err != nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, err)
	}
	if !ack.Success {
		return c.Status(fiber.StatusBadRequest).JSON(ack)
	}
	return c.JSON(ack)
}

// handleStatus returns the session snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Snapshot())
}

// handleBreak opens a brainrot window on demand.
func (s *Server) handleBreak(c *fiber.Ctx) error {
	if err := s.ctrl.Break(c.UserContext()); err != nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, err)
	}
	return c.JSON(protocol.Ack{Success: true})
}

func (s *Server) handleRearm(c *fiber.Ctx) error {
	err := s.ctrl.Rearm()
	switch {
	case errors.Is(err, session.ErrNotRunning):
		return errorJSON(c, fiber.StatusConflict, err)
	case err != nil:
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(protocol.Ack{Success: true})
}

func (s *Server) handleGetNotifications(c *fiber.Ctx) error {
	s.notificationsMu.RLock()
	defer s.notificationsMu.RUnlock()
	return c.JSON(s.notifications)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.Camera == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.Camera.GetConfig())
}

// handleSetCamera applies a partial update, optionally starting from a
// preset. The next session picks it up.
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	if s.Camera == nil {
		return fiber.ErrNotFound
	}
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	if err := s.Camera.UpdateConfig(params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(s.Camera.GetConfig())
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(camera.PresetNames())
}

func (s *Server) handleListTabs(c *fiber.Ctx) error {
	if s.Tabs == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "browser control disabled",
		})
	}
	tabs, err := s.Tabs.List(c.UserContext())
	if err != nil {
		return errorJSON(c, fiber.StatusBadGateway, err)
	}
	return c.JSON(tabs)
}
