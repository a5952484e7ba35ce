// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package world maintains the orchestrator's last-known view of the robot's
// surroundings. Each observation is timestamped on arrival; snapshots
// annotate every field with its age and a staleness flag. Snapshots are
// built on demand and never cached across the event boundary.
package world

import (
	"sync"
	"time"

	"github.com/tomtom215/robovox/internal/events"
)

// Entry wraps one last-known value with freshness annotations.
type Entry struct {
	Value interface{} `json:"value"`
	AgeMs int64       `json:"age_ms"`
	Stale bool        `json:"stale"`
}

// Snapshot is the aggregated world view attached to LLM requests.
type Snapshot struct {
	Vision       *Entry `json:"vision,omitempty"`
	Sensors      *Entry `json:"sensors,omitempty"`
	DisplayState *Entry `json:"display_state,omitempty"`
	NavDirection *Entry `json:"nav_direction,omitempty"`
	VisionMode   *Entry `json:"vision_mode,omitempty"`
}

type observation struct {
	value interface{}
	at    time.Time
}

// Context aggregates last-known observations. All methods are safe for
// concurrent use, though in practice only the orchestrator loop writes.
type Context struct {
	mu        sync.Mutex
	freshness time.Duration

	vision       *observation
	sensors      *observation
	displayState *observation
	navDirection *observation
	visionMode   *observation

	lastSensor   events.SensorReport
	lastSensorAt time.Time
	hasSensor    bool
}

// New creates a world context. freshness bounds how old an observation may
// be before its snapshot entry is flagged stale.
func New(freshness time.Duration) *Context {
	return &Context{freshness: freshness}
}

// ObserveVision records a detection from visn.object.
func (c *Context) ObserveVision(obj events.VisionObject) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vision = &observation{value: obj, at: time.Now()}
}

// ObserveSensors records a frame from esp32.raw.
func (c *Context) ObserveSensors(report events.SensorReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.sensors = &observation{value: report.Data, at: now}
	c.lastSensor = report
	c.lastSensorAt = now
	c.hasSensor = true
}

// ObserveDisplayState records the current display phase.
func (c *Context) ObserveDisplayState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayState = &observation{value: state, at: time.Now()}
}

// ObserveNavDirection records the last movement direction sent.
func (c *Context) ObserveNavDirection(direction string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navDirection = &observation{value: direction, at: time.Now()}
}

// ObserveVisionMode records the current vision mode.
func (c *Context) ObserveVisionMode(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visionMode = &observation{value: mode, at: time.Now()}
}

// LastNavDirection returns the last movement direction, or "" if none.
func (c *Context) LastNavDirection() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.navDirection == nil {
		return ""
	}
	return c.navDirection.value.(string)
}

// LatestSensor returns the most recent sensor report and its arrival time.
// ok is false when no frame has been observed yet.
func (c *Context) LatestSensor() (report events.SensorReport, at time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSensor, c.lastSensorAt, c.hasSensor
}

// SensorFresh reports whether a sensor frame exists and is younger than
// the freshness horizon.
func (c *Context) SensorFresh(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasSensor && now.Sub(c.lastSensorAt) < c.freshness
}

// Snapshot builds the on-demand aggregated view.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()

	return Snapshot{
		Vision:       c.entry(c.vision, now),
		Sensors:      c.entry(c.sensors, now),
		DisplayState: c.entry(c.displayState, now),
		NavDirection: c.entry(c.navDirection, now),
		VisionMode:   c.entry(c.visionMode, now),
	}
}

func (c *Context) entry(obs *observation, now time.Time) *Entry {
	if obs == nil {
		return nil
	}
	age := now.Sub(obs.at)
	return &Entry{
		Value: obs.value,
		AgeMs: age.Milliseconds(),
		Stale: age >= c.freshness,
	}
}
