// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
// Errors name the offending setting the way an operator would set it.
func (c *Config) Validate() error {
	if err := c.validateIPC(); err != nil {
		return err
	}
	if err := c.validateNav(); err != nil {
		return err
	}
	if err := c.validateSTT(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	if err := c.validateSafety(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateMemory(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateIPC() error {
	if err := validateNATSURL(c.IPC.Upstream, "ipc.upstream"); err != nil {
		return err
	}
	if err := validateNATSURL(c.IPC.Downstream, "ipc.downstream"); err != nil {
		return err
	}
	if c.IPC.Upstream == c.IPC.Downstream {
		return fmt.Errorf("ipc.upstream and ipc.downstream must be distinct endpoints, both are %s", c.IPC.Upstream)
	}
	if c.IPC.HighWaterMark <= 0 {
		return fmt.Errorf("ipc.high_water_mark must be positive, got %d", c.IPC.HighWaterMark)
	}
	return nil
}

// validateNATSURL checks that a bus endpoint is a parseable nats:// URL
// with host and port.
func validateNATSURL(raw, key string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "nats" {
		return fmt.Errorf("%s must use the nats:// scheme, got %q", key, u.Scheme)
	}
	if u.Port() == "" {
		return fmt.Errorf("%s must include a port", key)
	}
	return nil
}

func (c *Config) validateNav() error {
	if c.Nav.UARTDevice == "" {
		return fmt.Errorf("nav.uart_device is required")
	}
	if c.Nav.BaudRate <= 0 {
		return fmt.Errorf("nav.baud_rate must be positive, got %d", c.Nav.BaudRate)
	}
	if len(c.Nav.Commands) == 0 {
		return fmt.Errorf("nav.commands must map at least one direction to a UART token")
	}
	for name, token := range c.Nav.Commands {
		if token == "" {
			return fmt.Errorf("nav.commands[%s] maps to an empty UART token", name)
		}
		if strings.ContainsAny(token, "\r\n") {
			return fmt.Errorf("nav.commands[%s] token must not contain line terminators", name)
		}
	}
	if _, ok := c.Nav.Commands["stop"]; !ok {
		return fmt.Errorf("nav.commands must include a \"stop\" mapping (safety coercion target)")
	}
	if c.Nav.WriteQueueSize <= 0 {
		return fmt.Errorf("nav.write_queue_size must be positive, got %d", c.Nav.WriteQueueSize)
	}
	if c.Nav.MaxLineBytes <= 0 {
		return fmt.Errorf("nav.max_line_bytes must be positive, got %d", c.Nav.MaxLineBytes)
	}
	return nil
}

func (c *Config) validateSTT() error {
	if c.STT.TimeoutSeconds <= 0 {
		return fmt.Errorf("stt.timeout_seconds must be positive, got %d", c.STT.TimeoutSeconds)
	}
	if c.STT.MinConfidence < 0 || c.STT.MinConfidence > 1 {
		return fmt.Errorf("stt.min_confidence must be in [0,1], got %v", c.STT.MinConfidence)
	}
	return nil
}

func (c *Config) validateOrchestrator() error {
	if c.Orchestrator.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("orchestrator.llm_timeout_seconds must be positive, got %d", c.Orchestrator.LLMTimeoutSeconds)
	}
	if c.Orchestrator.SpeakingTimeoutSeconds <= 0 {
		return fmt.Errorf("orchestrator.speaking_timeout_seconds must be positive, got %d", c.Orchestrator.SpeakingTimeoutSeconds)
	}
	if c.Orchestrator.ErrorTimeoutSeconds <= 0 {
		return fmt.Errorf("orchestrator.error_timeout_seconds must be positive, got %d", c.Orchestrator.ErrorTimeoutSeconds)
	}
	return nil
}

func (c *Config) validateSafety() error {
	if c.Safety.StopDistanceCm <= 0 {
		return fmt.Errorf("safety.stop_distance_cm must be positive, got %d", c.Safety.StopDistanceCm)
	}
	if c.Safety.WarningDistanceCm <= 0 {
		return fmt.Errorf("safety.warning_distance_cm must be positive, got %d", c.Safety.WarningDistanceCm)
	}
	if c.Safety.WarningDistanceCm < c.Safety.StopDistanceCm {
		return fmt.Errorf("safety.warning_distance_cm (%d) must be >= safety.stop_distance_cm (%d)",
			c.Safety.WarningDistanceCm, c.Safety.StopDistanceCm)
	}
	if c.Safety.SensorFreshnessMs <= 0 {
		return fmt.Errorf("safety.sensor_freshness_ms must be positive, got %d", c.Safety.SensorFreshnessMs)
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.Host == "" {
		return fmt.Errorf("remote_interface.host is required")
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
		return fmt.Errorf("remote_interface.port must be in 1-65535, got %d", c.Remote.Port)
	}
	if c.Remote.MJPEGFPS <= 0 || c.Remote.MJPEGFPS > 60 {
		return fmt.Errorf("remote_interface.mjpeg_fps must be in 1-60, got %d", c.Remote.MJPEGFPS)
	}
	if c.Remote.SessionTimeoutSec <= 0 {
		return fmt.Errorf("remote_interface.session_timeout_sec must be positive, got %d", c.Remote.SessionTimeoutSec)
	}
	if len(c.Remote.AllowedCIDRs) == 0 {
		return fmt.Errorf("remote_interface.allowed_cidrs must list at least one CIDR block")
	}
	for _, cidr := range c.Remote.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("remote_interface.allowed_cidrs entry %q is not a valid CIDR: %w", cidr, err)
		}
	}
	if c.Remote.IntentRateLimit <= 0 {
		return fmt.Errorf("remote_interface.intent_rate_limit must be positive, got %d", c.Remote.IntentRateLimit)
	}
	return nil
}

func (c *Config) validateMemory() error {
	if c.Memory.MaxTurns <= 0 {
		return fmt.Errorf("memory.max_turns must be positive, got %d", c.Memory.MaxTurns)
	}
	if c.Memory.TimeoutSeconds <= 0 {
		return fmt.Errorf("memory.timeout_seconds must be positive, got %d", c.Memory.TimeoutSeconds)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("logging.level %q is not a recognized level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
