// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package remote implements the supervision HTTP surface: health and
// telemetry endpoints, operator intents, and the MJPEG camera stream.
//
// One aggregator task folds bus traffic into a single mutex-protected
// snapshot; reads copy the snapshot and are O(1). Access to every
// endpoint is gated by a source CIDR allow-list.
package remote

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/robovox/internal/bus"
	"github.com/tomtom215/robovox/internal/events"
	"github.com/tomtom215/robovox/internal/logging"
)

// Snapshot is the aggregated last-known telemetry served by /status.
// Every field is replaced last-writer-wins by the aggregator.
type Snapshot struct {
	Display struct {
		State    string `json:"state"`
		Phase    string `json:"phase"`
		LastText string `json:"last_text,omitempty"`
	} `json:"display"`

	Vision struct {
		Mode       string               `json:"mode,omitempty"`
		Paused     bool                 `json:"paused"`
		LastObject *events.VisionObject `json:"last_object,omitempty"`
	} `json:"vision"`

	Sensors *events.SensorReport `json:"sensors,omitempty"`

	LLM *events.LLMAction `json:"llm,omitempty"`

	LastSpoken string `json:"last_spoken,omitempty"`
}

// Aggregator folds envelopes from both channels into the snapshot.
type Aggregator struct {
	upstream   <-chan bus.Envelope
	downstream <-chan bus.Envelope
	log        zerolog.Logger

	mu   sync.Mutex
	snap Snapshot
}

// NewAggregator creates an aggregator consuming the given subscription
// channels. The upstream subscription should cover visn.object, esp32.raw,
// llm.response, and tts.speak; the downstream one display.state,
// display.text, cmd.vision.mode, and cmd.pause.vision.
func NewAggregator(upstream, downstream <-chan bus.Envelope) *Aggregator {
	return &Aggregator{
		upstream:   upstream,
		downstream: downstream,
		log:        logging.With().Str("component", "remote-aggregator").Logger(),
	}
}

// String names the aggregator in supervisor logs.
func (a *Aggregator) String() string {
	return "remote-aggregator"
}

// Serve consumes both channels until the context is canceled.
func (a *Aggregator) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-a.upstream:
			a.Apply(env)
		case env := <-a.downstream:
			a.Apply(env)
		}
	}
}

// Apply folds one envelope into the snapshot. Unknown topics and
// malformed payloads are ignored; the snapshot never goes backwards.
func (a *Aggregator) Apply(env bus.Envelope) {
	switch env.Topic {
	case bus.TopicDisplayState:
		var ds events.DisplayState
		if a.decode(env, &ds) {
			a.mu.Lock()
			a.snap.Display.State = ds.State
			a.snap.Display.Phase = ds.Phase
			a.mu.Unlock()
		}
	case bus.TopicDisplayText:
		var dt events.DisplayText
		if a.decode(env, &dt) {
			a.mu.Lock()
			a.snap.Display.LastText = dt.Text
			a.mu.Unlock()
		}
	case bus.TopicVisionMode:
		var vm events.VisionMode
		if a.decode(env, &vm) {
			a.mu.Lock()
			a.snap.Vision.Mode = vm.Mode
			a.mu.Unlock()
		}
	case bus.TopicPauseVision:
		var pv events.PauseVision
		if a.decode(env, &pv) {
			a.mu.Lock()
			a.snap.Vision.Paused = pv.Paused
			a.mu.Unlock()
		}
	case bus.TopicVisionObject:
		var obj events.VisionObject
		if a.decode(env, &obj) {
			a.mu.Lock()
			a.snap.Vision.LastObject = &obj
			a.mu.Unlock()
		}
	case bus.TopicSensorRaw:
		var report events.SensorReport
		if a.decode(env, &report) {
			a.mu.Lock()
			a.snap.Sensors = &report
			a.mu.Unlock()
		}
	case bus.TopicLLMResponse:
		var resp events.LLMResponse
		if a.decode(env, &resp) {
			action := resp.JSON
			a.mu.Lock()
			a.snap.LLM = &action
			a.mu.Unlock()
		}
	case bus.TopicTTSSpeak:
		var tts events.TTSSpeak
		if a.decode(env, &tts) && tts.Text != "" {
			a.mu.Lock()
			a.snap.LastSpoken = tts.Text
			a.mu.Unlock()
		}
	}
}

func (a *Aggregator) decode(env bus.Envelope, v interface{}) bool {
	if err := events.Decode(env.Topic, env.Payload, v); err != nil {
		a.log.Warn().Err(err).Str("topic", env.Topic).Msg("dropping malformed telemetry payload")
		return false
	}
	return true
}

// Snapshot returns a copy of the current snapshot.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}
