package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/voicewire/voicewire/pkg/agent"
)

// statusResponse is the /api/status payload.
type statusResponse struct {
	Status string `json:"status"`
	Active bool   `json:"active"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	status := s.session.Status()
	return c.JSON(statusResponse{
		Status: status.String(),
		Active: status != agent.StatusDisconnected,
	})
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.session.Config())
}

func (s *Server) handleUpdateConfig(c *fiber.Ctx) error {
	var update agent.ConfigUpdate
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := s.session.UpdateConfig(update); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, agent.ErrSessionActive) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(s.session.Config())
}

func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.session.Logs())
}

func (s *Server) handleClearLogs(c *fiber.Ctx) error {
	s.session.ClearLogs()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAudio(c *fiber.Ctx) error {
	return c.JSON(s.session.AudioData())
}

func (s *Server) handleStartSession(c *fiber.Ctx) error {
	// The session outlives the request, so it is not tied to the
	// request context.
	if err := s.session.Start(context.Background()); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, agent.ErrAlreadyActive) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(statusResponse{
		Status: s.session.Status().String(),
		Active: true,
	})
}

func (s *Server) handleStopSession(c *fiber.Ctx) error {
	if err := s.session.Stop(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(statusResponse{
		Status: s.session.Status().String(),
		Active: s.session.Status() != agent.StatusDisconnected,
	})
}
