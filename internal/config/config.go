// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package config loads and validates Robovox configuration.
//
// Configuration is loaded via Koanf v2 with layered sources
// (highest priority wins):
//  1. Built-in defaults
//  2. Config file (config.yaml, optional)
//  3. Environment variables (ROBOVOX-style section prefixes, e.g.
//     NAV_UART_DEVICE, REMOTE_PORT, SAFETY_STOP_DISTANCE_CM)
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"time"
)

// Config holds all configuration for the coordination core.
type Config struct {
	IPC          IPCConfig          `koanf:"ipc"`
	Nav          NavConfig          `koanf:"nav"`
	STT          STTConfig          `koanf:"stt"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Safety       SafetyConfig       `koanf:"safety"`
	Remote       RemoteConfig       `koanf:"remote_interface"`
	Memory       MemoryConfig       `koanf:"memory"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// IPCConfig holds the dual-bus endpoints. The hub process binds both;
// every other collaborator connects.
type IPCConfig struct {
	// Upstream is the endpoint carrying sensor/event traffic toward the hub.
	Upstream string `koanf:"upstream" validate:"required,uri"`

	// Downstream is the endpoint carrying commands away from the hub.
	Downstream string `koanf:"downstream" validate:"required,uri"`

	// Embedded starts in-process NATS servers for both endpoints (hub mode).
	Embedded bool `koanf:"embedded"`

	// HighWaterMark is the per-subscription pending message limit.
	// Messages beyond it are dropped rather than back-pressuring publishers.
	HighWaterMark int `koanf:"high_water_mark" validate:"gt=0"`
}

// NavConfig holds the UART motor bridge settings.
type NavConfig struct {
	UARTDevice string `koanf:"uart_device" validate:"required"`
	BaudRate   int    `koanf:"baud_rate" validate:"gt=0"`

	// Commands maps bus direction names to uppercase UART tokens.
	Commands map[string]string `koanf:"commands" validate:"required"`

	// WriteQueueSize bounds pending serial writes; the oldest pending
	// write is dropped when full (newest wins).
	WriteQueueSize int `koanf:"write_queue_size" validate:"gt=0"`

	ReadTimeoutMs   int `koanf:"read_timeout_ms" validate:"gt=0"`
	ReopenBackoffMs int `koanf:"reopen_backoff_ms" validate:"gt=0"`
	MaxLineBytes    int `koanf:"max_line_bytes" validate:"gt=0"`
}

// ReadTimeout returns the serial read timeout as a duration.
func (c NavConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// ReopenBackoff returns the port reopen backoff as a duration.
func (c NavConfig) ReopenBackoff() time.Duration {
	return time.Duration(c.ReopenBackoffMs) * time.Millisecond
}

// STTConfig holds speech-to-text gating settings.
type STTConfig struct {
	TimeoutSeconds int     `koanf:"timeout_seconds" validate:"gt=0"`
	MinConfidence  float64 `koanf:"min_confidence" validate:"gte=0,lte=1"`
}

// Timeout returns the LISTENING phase timeout.
func (c STTConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OrchestratorConfig holds the FSM phase timeouts.
type OrchestratorConfig struct {
	LLMTimeoutSeconds      int `koanf:"llm_timeout_seconds" validate:"gt=0"`
	SpeakingTimeoutSeconds int `koanf:"speaking_timeout_seconds" validate:"gt=0"`
	ErrorTimeoutSeconds    int `koanf:"error_timeout_seconds" validate:"gt=0"`
}

// LLMTimeout returns the THINKING phase timeout.
func (c OrchestratorConfig) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// SpeakingTimeout returns the SPEAKING phase timeout.
func (c OrchestratorConfig) SpeakingTimeout() time.Duration {
	return time.Duration(c.SpeakingTimeoutSeconds) * time.Second
}

// ErrorTimeout returns the ERROR phase timeout.
func (c OrchestratorConfig) ErrorTimeout() time.Duration {
	return time.Duration(c.ErrorTimeoutSeconds) * time.Second
}

// SafetyConfig holds the software safety layer thresholds.
type SafetyConfig struct {
	StopDistanceCm    int `koanf:"stop_distance_cm" validate:"gt=0"`
	WarningDistanceCm int `koanf:"warning_distance_cm" validate:"gt=0"`

	// SensorFreshnessMs is the freshness horizon: a sensor frame older
	// than this no longer counts as current for safety decisions.
	SensorFreshnessMs int `koanf:"sensor_freshness_ms" validate:"gt=0"`
}

// Freshness returns the freshness horizon as a duration.
func (c SafetyConfig) Freshness() time.Duration {
	return time.Duration(c.SensorFreshnessMs) * time.Millisecond
}

// RemoteConfig holds the supervision HTTP server settings.
type RemoteConfig struct {
	Host              string   `koanf:"host" validate:"required"`
	Port              int      `koanf:"port" validate:"gt=0,lte=65535"`
	MJPEGFPS          int      `koanf:"mjpeg_fps" validate:"gt=0,lte=60"`
	SessionTimeoutSec int      `koanf:"session_timeout_sec" validate:"gt=0"`
	AllowedCIDRs      []string `koanf:"allowed_cidrs" validate:"required,min=1,dive,cidr"`

	// IntentRateLimit caps /intent POSTs per source IP per minute.
	IntentRateLimit int `koanf:"intent_rate_limit" validate:"gt=0"`
}

// SessionTimeout returns the operator session idle timeout.
func (c RemoteConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSec) * time.Second
}

// MemoryConfig holds conversation memory bounds.
type MemoryConfig struct {
	MaxTurns       int `koanf:"max_turns" validate:"gt=0"`
	TimeoutSeconds int `koanf:"timeout_seconds" validate:"gt=0"`
}

// Timeout returns the conversation idle timeout.
func (c MemoryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied.
// Defaults match spec values: 15s STT, 10s LLM, 30s speaking/error timeouts,
// 10/20cm safety thresholds, 2s freshness horizon, 300s session timeout.
func defaultConfig() *Config {
	return &Config{
		IPC: IPCConfig{
			Upstream:      "nats://127.0.0.1:4150",
			Downstream:    "nats://127.0.0.1:4151",
			Embedded:      true,
			HighWaterMark: 1024,
		},
		Nav: NavConfig{
			UARTDevice: "/dev/ttyUSB0",
			BaudRate:   115200,
			Commands: map[string]string{
				"forward":  "FORWARD",
				"backward": "BACKWARD",
				"left":     "LEFT",
				"right":    "RIGHT",
				"stop":     "STOP",
				"scan":     "SCAN",
				// Non-movement maintenance tokens, always permitted.
				"status":     "STATUS",
				"reset":      "RESET",
				"clearblock": "CLEARBLOCK",
			},
			WriteQueueSize:  8,
			ReadTimeoutMs:   500,
			ReopenBackoffMs: 2000,
			MaxLineBytes:    1024,
		},
		STT: STTConfig{
			TimeoutSeconds: 15,
			MinConfidence:  0.4,
		},
		Orchestrator: OrchestratorConfig{
			LLMTimeoutSeconds:      10,
			SpeakingTimeoutSeconds: 30,
			ErrorTimeoutSeconds:    30,
		},
		Safety: SafetyConfig{
			StopDistanceCm:    10,
			WarningDistanceCm: 20,
			SensorFreshnessMs: 2000,
		},
		Remote: RemoteConfig{
			Host:              "0.0.0.0",
			Port:              8750,
			MJPEGFPS:          10,
			SessionTimeoutSec: 300,
			AllowedCIDRs:      []string{"127.0.0.0/8", "::1/128", "10.8.0.0/24"},
			IntentRateLimit:   60,
		},
		Memory: MemoryConfig{
			MaxTurns:       10,
			TimeoutSeconds: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
