package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/werrin/pithermd/internal/config"
	"codeberg.org/werrin/pithermd/internal/event"
	"codeberg.org/werrin/pithermd/internal/gateway"
	"codeberg.org/werrin/pithermd/internal/logger"
	"codeberg.org/werrin/pithermd/internal/orchestrator"
	"codeberg.org/werrin/pithermd/internal/pid"
	"codeberg.org/werrin/pithermd/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug || cfg.LogLevel == "debug", cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}

	logger.Info().Msg("Exiting...")
}

func run(cfg *config.Config) error {
	recorder, err := telemetry.NewService(cfg.TelemetryConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close telemetry")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch := orchestrator.New(cfg.OrchestratorConfig(), orchestrator.Options{
		Recorder:    recorder,
		OnEmergency: emergencyHandler(cfg, cancel),
	})

	if err := orch.Start(); err != nil {
		return err
	}
	defer orch.Stop()

	var server *gateway.Server
	if cfg.Gateway {
		server = gateway.New(orch)
		go func() {
			if err := server.Listen(cfg.Listen); err != nil {
				logger.Error().Err(err).Msg("gateway server failed")
				cancel()
			}
		}()
	}

	go handleSignals(cancel)

	<-ctx.Done()

	if server != nil {
		if err := server.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("failed to shut down gateway")
		}
	}

	return nil
}

// emergencyHandler is the host-side consumer of systemEmergency
// notifications: it logs the condition and, when configured, initiates
// a graceful shutdown so the platform can pause its services.
func emergencyHandler(cfg *config.Config, cancel context.CancelFunc) func(event.SystemEmergency) {
	return func(em event.SystemEmergency) {
		logger.Error().
			Str("type", string(em.Type)).
			Interface("data", em.Data).
			Msg("System emergency reported")

		if cfg.ExitOnEmergency {
			cancel()
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
