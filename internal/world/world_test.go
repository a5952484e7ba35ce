// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package world

import (
	"testing"
	"time"

	"github.com/tomtom215/robovox/internal/events"
)

func TestEmptySnapshot(t *testing.T) {
	c := New(2 * time.Second)
	snap := c.Snapshot()

	if snap.Vision != nil || snap.Sensors != nil || snap.DisplayState != nil ||
		snap.NavDirection != nil || snap.VisionMode != nil {
		t.Errorf("empty context should produce nil entries: %+v", snap)
	}
}

func TestSnapshotCarriesObservations(t *testing.T) {
	c := New(2 * time.Second)

	c.ObserveVision(events.VisionObject{Label: "person", Confidence: 0.8})
	c.ObserveNavDirection("forward")
	c.ObserveDisplayState("listening")
	c.ObserveVisionMode("track")

	snap := c.Snapshot()

	if snap.Vision == nil || snap.Vision.Stale {
		t.Errorf("vision entry should be present and fresh: %+v", snap.Vision)
	}
	if snap.NavDirection == nil || snap.NavDirection.Value.(string) != "forward" {
		t.Errorf("nav direction entry = %+v, want forward", snap.NavDirection)
	}
	if got := c.LastNavDirection(); got != "forward" {
		t.Errorf("LastNavDirection = %q, want forward", got)
	}
}

func TestStaleAnnotation(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.ObserveDisplayState("idle")

	time.Sleep(20 * time.Millisecond)

	snap := c.Snapshot()
	if snap.DisplayState == nil {
		t.Fatal("display state entry missing")
	}
	if !snap.DisplayState.Stale {
		t.Error("entry older than the freshness horizon must be stale")
	}
	if snap.DisplayState.AgeMs < 10 {
		t.Errorf("age_ms = %d, want >= 10", snap.DisplayState.AgeMs)
	}
}

func TestLatestSensor(t *testing.T) {
	c := New(2 * time.Second)

	if _, _, ok := c.LatestSensor(); ok {
		t.Error("LatestSensor should report no frame initially")
	}
	if c.SensorFresh(time.Now()) {
		t.Error("no frame can be fresh")
	}

	report := events.SensorReport{
		Data: events.SensorData{S1: 30, S2: 40, S3: 50, MinDistance: 30, IsSafe: true},
		TS:   1700000000,
	}
	c.ObserveSensors(report)

	got, at, ok := c.LatestSensor()
	if !ok {
		t.Fatal("LatestSensor should report the frame")
	}
	if got != report {
		t.Errorf("frame = %+v, want %+v", got, report)
	}
	if !c.SensorFresh(at.Add(time.Second)) {
		t.Error("1s-old frame within a 2s horizon must be fresh")
	}
	if c.SensorFresh(at.Add(3 * time.Second)) {
		t.Error("3s-old frame beyond a 2s horizon must be stale")
	}
}
