package gateway

import (
	"time"

	"codeberg.org/werrin/pithermd/internal/orchestrator"
	"github.com/gofiber/fiber/v2"
)

// Server exposes the orchestrator state over HTTP for the external
// gateway: read-only status, events, and history, plus a manual thermal
// check trigger and runtime policy replacement.
type Server struct {
	app  *fiber.App
	orch *orchestrator.Orchestrator
}

// New creates the gateway server around an orchestrator.
func New(orch *orchestrator.Orchestrator) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ServerHeader: "pithermd",
		AppName:      "pithermd",
	})

	server := &Server{
		app:  app,
		orch: orch,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	api := s.app.Group("/api")

	api.Get("/health", s.getHealth)
	api.Get("/status", s.getStatus)
	api.Get("/thermal", s.getThermal)
	api.Get("/events", s.getEvents)
	api.Get("/history", s.getHistory)

	api.Post("/thermal/check", s.forceThermalCheck)
	api.Post("/thermal/policy", s.setThermalPolicy)
	api.Post("/fan/enable", s.enableFanControl)
}

// Listen starts serving on the given address.
func (s *Server) Listen(address string) error {
	return s.app.Listen(address)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
