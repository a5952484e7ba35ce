// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package orchestrator

// Phase is the global interaction state. Exactly one phase is active at
// any instant; only the orchestrator's event loop mutates it.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseThinking
	PhaseSpeaking
	PhaseError
)

// String returns the lowercase phase name used in display.state payloads.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseThinking:
		return "thinking"
	case PhaseSpeaking:
		return "speaking"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Event names a phase transition trigger.
type Event string

const (
	EventWakeword      Event = "wakeword"
	EventManualTrigger Event = "manual_trigger"
	EventManualText    Event = "manual_text"
	EventSTTValid      Event = "stt_valid"
	EventSTTInvalid    Event = "stt_invalid"
	EventSTTTimeout    Event = "stt_timeout"
	EventLLMWithSpeech Event = "llm_with_speech"
	EventLLMNoSpeech   Event = "llm_no_speech"
	EventLLMTimeout    Event = "llm_timeout"
	EventTTSDone       Event = "tts_done"
	EventTTSTimeout    Event = "tts_timeout"
	EventHealthError   Event = "health_error"
	EventHealthOK      Event = "health_ok"
	EventErrorTimeout  Event = "error_timeout"
)

// transitions is the complete and authoritative transition table. A
// (phase, event) pair absent here is a logged no-op, never a fault.
// health_error is handled separately: it moves any phase to error.
var transitions = map[Phase]map[Event]Phase{
	PhaseIdle: {
		EventWakeword:      PhaseListening,
		EventManualTrigger: PhaseListening,
		EventManualText:    PhaseThinking,
	},
	PhaseListening: {
		EventSTTValid:   PhaseThinking,
		EventSTTInvalid: PhaseIdle,
		EventSTTTimeout: PhaseIdle,
	},
	PhaseThinking: {
		EventLLMWithSpeech: PhaseSpeaking,
		EventLLMNoSpeech:   PhaseIdle,
		EventLLMTimeout:    PhaseIdle,
	},
	PhaseSpeaking: {
		EventTTSDone:    PhaseIdle,
		EventTTSTimeout: PhaseIdle,
	},
	PhaseError: {
		EventHealthOK:     PhaseIdle,
		EventErrorTimeout: PhaseIdle,
	},
}

// next resolves one transition. ok is false when the pair is not in the
// table and the phase must stay unchanged.
func next(from Phase, event Event) (Phase, bool) {
	if event == EventHealthError {
		return PhaseError, true
	}
	to, ok := transitions[from][event]
	return to, ok
}
