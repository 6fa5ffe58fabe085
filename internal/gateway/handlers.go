package gateway

import (
	"strconv"
	"time"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/orchestrator"
	"codeberg.org/werrin/pithermd/internal/thermal"
	"github.com/gofiber/fiber/v2"
)

const defaultEventLimit = 50

func (s *Server) getHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"running":   s.orch.Running(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) getStatus(c *fiber.Ctx) error {
	return c.JSON(s.orch.Status())
}

func (s *Server) getThermal(c *fiber.Ctx) error {
	status, err := s.orch.ThermalStatus()
	if err != nil {
		return statusError(c, err)
	}

	stats, err := s.orch.ThermalStatistics()
	if err != nil {
		return statusError(c, err)
	}

	policy, err := s.orch.ThermalPolicy()
	if err != nil {
		return statusError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":     status,
		"statistics": stats,
		"policy":     policy,
	})
}

func (s *Server) getEvents(c *fiber.Ctx) error {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	return c.JSON(fiber.Map{
		"events": s.orch.RecentEvents(limit),
	})
}

func (s *Server) getHistory(c *fiber.Ctx) error {
	history, err := s.orch.TemperatureHistory()
	if err != nil {
		return statusError(c, err)
	}

	return c.JSON(fiber.Map{
		"history": history,
	})
}

func (s *Server) forceThermalCheck(c *fiber.Ctx) error {
	status, err := s.orch.ForceThermalCheck()
	if err != nil {
		return statusError(c, err)
	}

	return c.JSON(status)
}

func (s *Server) setThermalPolicy(c *fiber.Ctx) error {
	var policy thermal.Policy
	if err := c.BodyParser(&policy); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed policy",
		})
	}

	if err := s.orch.SetThermalPolicy(policy); err != nil {
		return statusError(c, err)
	}

	return c.JSON(fiber.Map{"status": "accepted"})
}

func (s *Server) enableFanControl(c *fiber.Ctx) error {
	if err := s.orch.EnableFanControl(); err != nil {
		return statusError(c, err)
	}

	return c.JSON(fiber.Map{"status": "requested"})
}

// statusError maps domain error codes onto HTTP statuses.
func statusError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	switch {
	case errors.HasCode(err, orchestrator.ErrNotStarted):
		code = fiber.StatusConflict
	case errors.HasCode(err, thermal.ErrInvalidPolicy),
		errors.HasCode(err, errors.ErrInvalidInterval):
		code = fiber.StatusUnprocessableEntity
	case errors.HasCode(err, thermal.ErrFanControlUnsupported):
		code = fiber.StatusNotImplemented
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
