// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package orchestrator

import (
	"strings"
	"time"

	"github.com/tomtom215/robovox/internal/bus"
	"github.com/tomtom215/robovox/internal/events"
)

// handleWakeword starts listening, or re-arms the STT timer when a
// wakeword arrives while already listening.
func (o *Orchestrator) handleWakeword(env bus.Envelope) {
	var ww events.WakewordDetected
	if err := events.Decode(env.Topic, env.Payload, &ww); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed wakeword event")
		return
	}

	if o.phase == PhaseListening {
		o.deadline = time.Now().Add(o.cfg.STTTimeout)
		o.log.Debug().Str("keyword", ww.Keyword).Msg("wakeword while listening, timer re-armed")
		return
	}

	o.log.Info().Str("keyword", ww.Keyword).Str("source", ww.Source).Msg("wakeword detected")
	o.transition(EventWakeword, nil)
}

// handleTranscription gates an STT result and, when valid, launches the
// LLM request. Transcriptions outside LISTENING are ignored.
func (o *Orchestrator) handleTranscription(env bus.Envelope) {
	var tr events.Transcription
	if err := events.Decode(env.Topic, env.Payload, &tr); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed transcription")
		return
	}

	if o.phase != PhaseListening {
		o.log.Debug().Str("text", tr.Text).Msg("transcription outside listening, ignored")
		return
	}

	text := strings.TrimSpace(tr.Text)
	// Confidence exactly at the threshold is accepted.
	if text == "" || tr.Confidence < o.cfg.MinConfidence {
		o.log.Info().
			Str("text", tr.Text).
			Float64("confidence", tr.Confidence).
			Msg("transcription rejected")
		o.transition(EventSTTInvalid, nil)
		return
	}

	o.transition(EventSTTValid, func() {
		o.requestLLM(text)
	})
}

// requestLLM assembles and publishes one llm.request. Context is taken
// entirely from the current world snapshot; nothing is cached across
// requests.
func (o *Orchestrator) requestLLM(text string) {
	o.memory.AddUserTurn(text)

	o.publishJSON(bus.Downstream, bus.TopicLLMRequest, events.LLMRequest{
		Text:         text,
		Direction:    o.world.LastNavDirection(),
		WorldContext: o.world.Snapshot(),
		ContextNote:  contextNote,
	})
}

// handleLLMResponse acts on a parsed model response: movement (with the
// obstacle coercion), speech, or neither.
func (o *Orchestrator) handleLLMResponse(env bus.Envelope) {
	var resp events.LLMResponse
	if err := events.Decode(env.Topic, env.Payload, &resp); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed llm response")
		return
	}

	if o.phase != PhaseThinking {
		o.log.Debug().Msg("llm response outside thinking, ignored")
		return
	}

	action := resp.JSON

	// Coerce forward motion to stop when the latest frame shows an
	// obstacle or warning; the spoken line becomes the obstacle notice.
	if action.Direction == "forward" {
		if report, at, ok := o.world.LatestSensor(); ok &&
			time.Since(at) < o.cfg.Freshness &&
			(report.Data.Obstacle || report.Data.Warning) {
			o.log.Info().Msg("forward coerced to stop by obstacle report")
			action.Direction = "stop"
			action.Speak = obstacleNotice
		}
	}

	if action.Direction != "" {
		o.publishNav(action.Direction)
	}

	if action.Speak != "" {
		o.memory.AddAssistantTurn(action.Speak)
		o.transition(EventLLMWithSpeech, func() {
			o.publishJSON(bus.Downstream, bus.TopicTTSSpeak, events.TTSSpeak{Text: action.Speak})
		})
		return
	}
	o.transition(EventLLMNoSpeech, nil)
}

// handleTTSMarker completes the speaking phase on the upstream done marker.
func (o *Orchestrator) handleTTSMarker(env bus.Envelope) {
	var tts events.TTSSpeak
	if err := events.Decode(env.Topic, env.Payload, &tts); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed tts marker")
		return
	}
	if !tts.Done {
		return
	}

	o.transition(EventTTSDone, func() {
		o.publishPauseVision(false)
	})
}

// handleSensorReport folds telemetry into the world context.
func (o *Orchestrator) handleSensorReport(env bus.Envelope) {
	var report events.SensorReport
	if err := events.Decode(env.Topic, env.Payload, &report); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed sensor report")
		return
	}
	o.world.ObserveSensors(report)
}

// handleBlocked surfaces a refused command on the display.
func (o *Orchestrator) handleBlocked(env bus.Envelope) {
	var blocked events.Blocked
	if err := events.Decode(env.Topic, env.Payload, &blocked); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed blocked event")
		return
	}

	o.log.Info().
		Str("reason", blocked.Reason).
		Str("source", blocked.Source).
		Msg("movement blocked")
	o.publishJSON(bus.Downstream, bus.TopicDisplayText, events.DisplayText{
		Text:      "Movement blocked: " + blocked.Reason,
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleScan logs sweep progress; completion is informational since
// scans are one-shot commands.
func (o *Orchestrator) handleScan(env bus.Envelope) {
	var scan events.ScanReport
	if err := events.Decode(env.Topic, env.Payload, &scan); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed scan report")
		return
	}

	if scan.Phase == "complete" {
		o.log.Info().Msg("scan sweep complete")
	}
	if scan.Phase == "best" {
		o.log.Info().Int("angle", scan.BestAngle).Int("dist_cm", scan.BestDist).Msg("scan best direction")
	}
}

// handleVisionObject folds a detection into the world context.
func (o *Orchestrator) handleVisionObject(env bus.Envelope) {
	var obj events.VisionObject
	if err := events.Decode(env.Topic, env.Payload, &obj); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed vision object")
		return
	}
	o.world.ObserveVision(obj)
}

// handleSystemHealth drives the error phase from component health events.
func (o *Orchestrator) handleSystemHealth(env bus.Envelope) {
	var health events.SystemHealth
	if err := events.Decode(env.Topic, env.Payload, &health); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed health event")
		return
	}

	if !health.OK {
		o.log.Warn().Str("component", health.Component).Str("detail", health.Detail).Msg("component unhealthy")
		o.transition(EventHealthError, nil)
		return
	}
	if o.phase == PhaseError {
		o.transition(EventHealthOK, nil)
	}
}

// handleRemoteIntent maps operator intents to commands and phase events.
func (o *Orchestrator) handleRemoteIntent(env bus.Envelope) {
	var intent events.RemoteIntent
	if err := events.Decode(env.Topic, env.Payload, &intent); err != nil {
		o.log.Warn().Err(err).Msg("dropping malformed remote intent")
		return
	}

	o.log.Info().Str("intent", intent.Intent).Str("source", intent.Source).Msg("remote intent")

	switch intent.Intent {
	case "start":
		o.publishNav("forward")
	case "stop":
		o.publishNav("stop")
	case "left":
		o.publishNav("left")
	case "right":
		o.publishNav("right")
	case "status", "reset", "clearblock":
		o.publishNav(intent.Intent)
	case "listen":
		o.transition(EventManualTrigger, nil)
	case "text":
		text, _ := intent.Extras["text"].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			o.log.Warn().Msg("text intent without text extra")
			return
		}
		o.transition(EventManualText, func() {
			o.requestLLM(text)
		})
	case "capture":
		o.publish(bus.Downstream, bus.TopicCaptureCmd, []byte(`{}`))
	case "vision_mode":
		mode, _ := intent.Extras["mode"].(string)
		o.publishJSON(bus.Downstream, bus.TopicVisionMode, events.VisionMode{Mode: mode})
		o.world.ObserveVisionMode(mode)
	case "pause_vision":
		paused, _ := intent.Extras["paused"].(bool)
		o.publishPauseVision(paused)
	default:
		// Unknown symbols are already rejected with 400 at the HTTP
		// surface; anything landing here is just logged.
		o.log.Debug().Str("intent", intent.Intent).Msg("unrecognized intent symbol")
	}
}
