// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package bus

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/robovox/internal/config"
	"github.com/tomtom215/robovox/internal/logging"
)

// Hub binds both bus endpoints by running one embedded NATS server per
// channel. Exactly one process runs the hub; all other collaborators
// connect to the configured URLs as clients.
type Hub struct {
	upstream   *server.Server
	downstream *server.Server
}

// startTimeout bounds how long an embedded server may take to accept clients.
const startTimeout = 30 * time.Second

// NewHub starts embedded servers for the upstream and downstream endpoints.
// A bind failure on either endpoint is fatal to startup.
func NewHub(cfg config.IPCConfig) (*Hub, error) {
	up, err := startEmbedded("robovox-upstream", cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("bind upstream endpoint: %w", err)
	}

	down, err := startEmbedded("robovox-downstream", cfg.Downstream)
	if err != nil {
		up.Shutdown()
		return nil, fmt.Errorf("bind downstream endpoint: %w", err)
	}

	logging.Info().
		Str("component", "bus").
		Str("upstream", up.ClientURL()).
		Str("downstream", down.ClientURL()).
		Msg("bus hub bound")

	return &Hub{upstream: up, downstream: down}, nil
}

// startEmbedded creates and starts one core-NATS server for an endpoint.
func startEmbedded(name, endpoint string) (*server.Server, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	opts := &server.Options{
		ServerName: name,
		Host:       host,
		Port:       port,
		// Core NATS only: at-most-once fan-out, no persistence.
		JetStream:  false,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 4 * 1024 * 1024, // room for JPEG frames on visn.frame
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded server %s: %w", name, err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(startTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded server %s not ready within %s", name, startTimeout)
	}

	return ns, nil
}

// splitEndpoint extracts host and port from a nats:// URL.
func splitEndpoint(endpoint string) (string, int, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", 0, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", 0, fmt.Errorf("endpoint %q must include host and port: %w", endpoint, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("endpoint %q has a non-numeric port: %w", endpoint, err)
	}

	return host, port, nil
}

// Running reports whether both embedded servers accept connections.
func (h *Hub) Running() bool {
	return h.upstream.Running() && h.downstream.Running()
}

// Shutdown stops both servers, waiting for shutdown or context cancellation.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.upstream.Shutdown()
	h.downstream.Shutdown()

	done := make(chan struct{})
	go func() {
		h.upstream.WaitForShutdown()
		h.downstream.WaitForShutdown()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
