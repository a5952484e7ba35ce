// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package motorbridge

import (
	"time"

	"github.com/tomtom215/robovox/internal/config"
)

// Veto reasons published in esp32.blocked payloads.
const (
	ReasonObstacle    = "obstacle"
	ReasonWarningZone = "warning_zone"
	ReasonTooClose    = "too_close"
	ReasonStaleSensor = "stale_sensor"
)

// SafetyGate is the software safety layer, layered on top of the
// peripheral's own protections. Forward motion requires a fresh frame
// showing clear space; everything else always passes.
type SafetyGate struct {
	cfg config.SafetyConfig
}

// NewSafetyGate creates a gate with the configured thresholds.
func NewSafetyGate(cfg config.SafetyConfig) *SafetyGate {
	return &SafetyGate{cfg: cfg}
}

// Check decides whether a direction may be sent to the peripheral.
// frameAt is the arrival time of frame; hasFrame is false when no
// telemetry has been parsed yet. A refusal returns ok=false and the
// veto reason.
func (g *SafetyGate) Check(direction string, frame SensorFrame, frameAt time.Time, hasFrame bool, now time.Time) (ok bool, reason string) {
	if direction != "forward" {
		return true, ""
	}

	if !hasFrame || now.Sub(frameAt) >= g.cfg.Freshness() {
		return false, ReasonStaleSensor
	}
	if frame.Obstacle {
		return false, ReasonObstacle
	}
	if frame.Warning {
		return false, ReasonWarningZone
	}
	// -1 means no echo in range, which is not evidence of proximity.
	if min := frame.MinDistance(); min >= 0 && min < g.cfg.StopDistanceCm {
		return false, ReasonTooClose
	}

	return true, ""
}
