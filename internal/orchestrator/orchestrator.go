// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package orchestrator implements the authoritative interaction FSM.
//
// A single-threaded event loop drains upstream envelopes, drives phase
// transitions from the closed transition table, emits downstream
// commands, and services soft timeouts on a 100ms tick. No other
// goroutine touches phase state.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/robovox/internal/bus"
	"github.com/tomtom215/robovox/internal/config"
	"github.com/tomtom215/robovox/internal/events"
	"github.com/tomtom215/robovox/internal/logging"
	"github.com/tomtom215/robovox/internal/memory"
	"github.com/tomtom215/robovox/internal/metrics"
	"github.com/tomtom215/robovox/internal/world"
)

// Publisher is the slice of the bus the orchestrator publishes through.
type Publisher interface {
	Publish(ch bus.Channel, topic string, payload []byte) error
}

// Config holds the orchestrator's timing and gating parameters.
type Config struct {
	STTTimeout      time.Duration
	LLMTimeout      time.Duration
	SpeakingTimeout time.Duration
	ErrorTimeout    time.Duration
	MinConfidence   float64
	Freshness       time.Duration
}

// FromAppConfig derives the orchestrator config from application config.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		STTTimeout:      cfg.STT.Timeout(),
		LLMTimeout:      cfg.Orchestrator.LLMTimeout(),
		SpeakingTimeout: cfg.Orchestrator.SpeakingTimeout(),
		ErrorTimeout:    cfg.Orchestrator.ErrorTimeout(),
		MinConfidence:   cfg.STT.MinConfidence,
		Freshness:       cfg.Safety.Freshness(),
	}
}

// contextNote marks LLM world context as advisory last-known state.
const contextNote = "system_observation_only_last_known_state"

// obstacleNotice is spoken in place of a vetoed forward command.
const obstacleNotice = "I can't move forward, something is close"

// tickInterval bounds timeout enforcement latency with no bus traffic.
const tickInterval = 100 * time.Millisecond

// Orchestrator is the central coordinator.
type Orchestrator struct {
	cfg      Config
	pub      Publisher
	upstream <-chan bus.Envelope
	world    *world.Context
	memory   *memory.Conversation
	log      zerolog.Logger

	// FSM state, touched only by the Serve goroutine.
	phase    Phase
	deadline time.Time // zero when the current phase has no timeout
}

// New creates an orchestrator consuming upstream envelopes from the
// given subscription channel.
func New(cfg Config, pub Publisher, upstream <-chan bus.Envelope, w *world.Context, mem *memory.Conversation) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		pub:      pub,
		upstream: upstream,
		world:    w,
		memory:   mem,
		log:      logging.With().Str("component", "orchestrator").Logger(),
		phase:    PhaseIdle,
	}
}

// String names the orchestrator in supervisor logs.
func (o *Orchestrator) String() string {
	return "orchestrator"
}

// Phase returns the current phase. Only meaningful from within the loop
// or after Serve has returned; exposed for tests and status snapshots.
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

// Serve runs the event loop until the context is canceled. Each
// iteration dispatches at most one envelope, then evaluates timeouts,
// so a timeout fires at most tickInterval late even with no traffic.
func (o *Orchestrator) Serve(ctx context.Context) error {
	o.publishDisplayState()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-o.upstream:
			o.dispatch(env)
		case <-ticker.C:
		}
		o.checkTimeout(time.Now())
	}
}

// dispatch routes one upstream envelope to its handler. Malformed
// payloads are dropped with a warning; unexpected topics are logged at
// debug. Nothing escapes the loop.
func (o *Orchestrator) dispatch(env bus.Envelope) {
	metrics.EventsDispatched.WithLabelValues(env.Topic).Inc()

	switch env.Topic {
	case bus.TopicWakeword:
		o.handleWakeword(env)
	case bus.TopicTranscription:
		o.handleTranscription(env)
	case bus.TopicLLMResponse:
		o.handleLLMResponse(env)
	case bus.TopicTTSSpeak:
		o.handleTTSMarker(env)
	case bus.TopicSensorRaw:
		o.handleSensorReport(env)
	case bus.TopicSensorBlocked:
		o.handleBlocked(env)
	case bus.TopicSensorScan:
		o.handleScan(env)
	case bus.TopicVisionObject:
		o.handleVisionObject(env)
	case bus.TopicRemoteIntent:
		o.handleRemoteIntent(env)
	case bus.TopicSystemHealth:
		o.handleSystemHealth(env)
	case bus.TopicVisionFrame, bus.TopicVisionCapture, bus.TopicRemoteSession:
		// Consumed elsewhere (remote aggregator); nothing to do here.
	default:
		o.log.Debug().Str("topic", env.Topic).Msg("unexpected upstream topic")
	}
}

// transition applies one FSM event. between, when non-nil, runs after
// the old phase's exit actions and before the new phase's entry actions
// (used to order llm.request between listen.stop and the thinking
// display update). Returns false for pairs outside the table.
func (o *Orchestrator) transition(event Event, between func()) bool {
	to, ok := next(o.phase, event)
	if !ok {
		o.log.Debug().
			Str("phase", o.phase.String()).
			Str("event", string(event)).
			Msg("event ignored in current phase")
		return false
	}

	from := o.phase
	o.exitActions(from)

	if between != nil {
		between()
	}

	o.phase = to
	o.enterActions(to)

	metrics.RecordTransition(from.String(), to.String(), string(event), int(to))
	o.log.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("event", string(event)).
		Msg("phase transition")
	return true
}

// exitActions runs side effects of leaving a phase.
func (o *Orchestrator) exitActions(from Phase) {
	if from == PhaseListening {
		o.publish(bus.Downstream, bus.TopicListenStop, []byte(`{}`))
	}
}

// enterActions runs side effects of entering a phase and arms its timeout.
func (o *Orchestrator) enterActions(to Phase) {
	now := time.Now()
	o.deadline = time.Time{}

	switch to {
	case PhaseListening:
		o.publishPauseVision(true)
		o.publish(bus.Downstream, bus.TopicListenStart, []byte(`{}`))
		o.deadline = now.Add(o.cfg.STTTimeout)
	case PhaseThinking:
		o.deadline = now.Add(o.cfg.LLMTimeout)
	case PhaseSpeaking:
		o.deadline = now.Add(o.cfg.SpeakingTimeout)
	case PhaseError:
		o.deadline = now.Add(o.cfg.ErrorTimeout)
	}

	o.publishDisplayState()
}

// checkTimeout fires the current phase's soft timeout when due.
func (o *Orchestrator) checkTimeout(now time.Time) {
	if o.deadline.IsZero() || now.Before(o.deadline) {
		return
	}

	var event Event
	switch o.phase {
	case PhaseListening:
		event = EventSTTTimeout
	case PhaseThinking:
		event = EventLLMTimeout
	case PhaseSpeaking:
		event = EventTTSTimeout
	case PhaseError:
		event = EventErrorTimeout
	default:
		o.deadline = time.Time{}
		return
	}

	metrics.PhaseTimeouts.WithLabelValues(o.phase.String()).Inc()
	o.log.Info().Str("phase", o.phase.String()).Str("event", string(event)).Msg("phase timeout")
	o.transition(event, nil)
}

// publish sends one downstream or upstream envelope, best-effort.
func (o *Orchestrator) publish(ch bus.Channel, topic string, payload []byte) {
	if err := o.pub.Publish(ch, topic, payload); err != nil {
		o.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// publishJSON encodes and publishes one payload.
func (o *Orchestrator) publishJSON(ch bus.Channel, topic string, v interface{}) {
	payload, err := events.Encode(v)
	if err != nil {
		o.log.Error().Err(err).Str("topic", topic).Msg("encode payload")
		return
	}
	o.publish(ch, topic, payload)
}

// publishDisplayState reflects the current phase on the display topic.
func (o *Orchestrator) publishDisplayState() {
	state := o.phase.String()
	o.publishJSON(bus.Downstream, bus.TopicDisplayState, events.DisplayState{
		State:     state,
		Phase:     state,
		Timestamp: time.Now().UnixMilli(),
	})
	o.world.ObserveDisplayState(state)
}

// publishPauseVision toggles the vision pipeline.
func (o *Orchestrator) publishPauseVision(paused bool) {
	o.publishJSON(bus.Downstream, bus.TopicPauseVision, events.PauseVision{Paused: paused})
}

// publishNav emits one nav.command downstream, applying the forward
// safety veto first. Returns false when the command was refused.
func (o *Orchestrator) publishNav(direction string) bool {
	if direction == "forward" && !o.forwardSafe() {
		metrics.RecordVeto("obstacle")
		o.log.Info().Msg("forward vetoed by orchestrator")
		o.publishJSON(bus.Downstream, bus.TopicDisplayText, events.DisplayText{
			Text:      obstacleNotice,
			Timestamp: time.Now().UnixMilli(),
		})
		return false
	}

	o.publishJSON(bus.Downstream, bus.TopicNavCommand, events.NavCommand{Direction: direction})
	o.world.ObserveNavDirection(direction)
	return true
}

// forwardSafe reports whether a fresh sensor frame shows clear space.
func (o *Orchestrator) forwardSafe() bool {
	report, at, ok := o.world.LatestSensor()
	if !ok {
		return false
	}
	if time.Since(at) >= o.cfg.Freshness {
		return false
	}
	return !report.Data.Obstacle
}
