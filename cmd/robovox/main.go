// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package main is the entry point for the Robovox coordination core.
//
// Robovox is the hub process of a voice-driven mobile robot. It binds
// the dual-channel event bus, runs the interaction FSM, bridges the
// bus to the UART motor controller, and serves the supervision HTTP
// surface (health, telemetry, operator intents, MJPEG camera stream).
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml,
//     environment variables)
//  2. Logging: zerolog, JSON or console format
//  3. Bus hub: two embedded core-NATS servers (upstream, downstream)
//  4. Clients: bus connections, world context, conversation memory
//  5. Components: orchestrator, motor bridge, remote aggregator,
//     frame hub, session checker, HTTP server
//  6. Supervisor tree: three layers (bus, control, api) with failure
//     isolation between them
//
// # Signal handling
//
// SIGINT/SIGTERM trigger a coordinated shutdown: the supervisor tree
// cancels every service, the HTTP server drains in-flight requests,
// the serial port closes, and the embedded NATS servers stop last.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/robovox/internal/bus"
	"github.com/tomtom215/robovox/internal/config"
	"github.com/tomtom215/robovox/internal/logging"
	"github.com/tomtom215/robovox/internal/memory"
	"github.com/tomtom215/robovox/internal/motorbridge"
	"github.com/tomtom215/robovox/internal/orchestrator"
	"github.com/tomtom215/robovox/internal/remote"
	"github.com/tomtom215/robovox/internal/supervisor"
	"github.com/tomtom215/robovox/internal/world"
)

// version is stamped by the build via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("upstream", cfg.IPC.Upstream).
		Str("downstream", cfg.IPC.Downstream).
		Bool("embedded_bus", cfg.IPC.Embedded).
		Msg("Starting Robovox")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The hub binds both bus endpoints before anything connects.
	if cfg.IPC.Embedded {
		hub, err := bus.NewHub(cfg.IPC)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start bus hub")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := hub.Shutdown(shutdownCtx); err != nil {
				logging.Error().Err(err).Msg("Error stopping bus hub")
			}
		}()
		logging.Info().Msg("Embedded bus hub started")
	}

	b, err := bus.Connect(cfg.IPC)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to bus")
	}
	defer b.Close()

	// Shared state owned by the orchestrator loop.
	worldCtx := world.New(cfg.Safety.Freshness())
	conversation := memory.New(cfg.Memory.MaxTurns, cfg.Memory.Timeout())

	// Orchestrator consumes every upstream event.
	orchSub, err := b.Subscribe(bus.Upstream, "", "orchestrator")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to subscribe orchestrator")
	}
	orch := orchestrator.New(orchestrator.FromAppConfig(cfg), b, orchSub.C(), worldCtx, conversation)

	// Motor bridge consumes nav commands.
	navSub, err := b.Subscribe(bus.Downstream, bus.TopicNavCommand, "motor-bridge")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to subscribe motor bridge")
	}
	bridge := motorbridge.New(cfg.Nav, cfg.Safety, b, navSub.C())

	// Remote surface: telemetry aggregator, frame hub, session, server.
	aggUpSub, err := b.Subscribe(bus.Upstream, "", "remote-aggregator")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to subscribe aggregator upstream")
	}
	aggDownSub, err := b.Subscribe(bus.Downstream, "", "remote-aggregator")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to subscribe aggregator downstream")
	}
	agg := remote.NewAggregator(aggUpSub.C(), aggDownSub.C())

	frameSub, err := b.Subscribe(bus.Upstream, bus.TopicVisionFrame, "frame-hub")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to subscribe frame hub")
	}
	frames := remote.NewFrameHub(frameSub.C())

	session := remote.NewSession(cfg.Remote.SessionTimeout(), b)
	handler := remote.NewHandler(b, agg, frames, session, b, cfg.Remote.MJPEGFPS, version)
	router, err := remote.NewRouter(cfg.Remote, handler)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build supervision router")
	}
	server := remote.NewServer(cfg.Remote, router)

	// Supervisor tree: bus layer, control layer, api layer.
	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddBusService(agg)
	tree.AddBusService(frames)
	tree.AddControlService(orch)
	tree.AddControlService(bridge)
	tree.AddControlService(session)
	tree.AddAPIService(server)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Robovox stopped")
}
