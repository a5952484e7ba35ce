// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package bus

// Channel selects one of the two bus directions.
type Channel string

const (
	// Upstream carries sensor/event traffic toward the hub.
	Upstream Channel = "upstream"

	// Downstream carries commands away from the hub.
	Downstream Channel = "downstream"
)

// Upstream topics (events toward orchestrator/remote).
const (
	TopicWakeword      = "ww.detected"
	TopicTranscription = "stt.transcription"
	TopicLLMResponse   = "llm.response"
	TopicTTSSpeak      = "tts.speak" // upstream carries the {done:true} completion marker
	TopicVisionObject  = "visn.object"
	TopicVisionFrame   = "visn.frame" // binary JPEG payload
	TopicVisionCapture = "visn.capture"
	TopicSensorRaw     = "esp32.raw"
	TopicSensorBlocked = "esp32.blocked"
	TopicSensorScan    = "esp32.scan"
	TopicRemoteIntent  = "remote.intent"
	TopicRemoteSession = "remote.session"
	TopicSystemHealth  = "system.health"
)

// Downstream topics (commands from orchestrator/remote).
const (
	TopicLLMRequest   = "llm.request"
	TopicNavCommand   = "nav.command"
	TopicListenStart  = "cmd.listen.start"
	TopicListenStop   = "cmd.listen.stop"
	TopicPauseVision  = "cmd.pause.vision"
	TopicVisionMode   = "cmd.vision.mode"
	TopicCaptureCmd   = "cmd.visn.capture"
	TopicDisplayState = "display.state"
	TopicDisplayText  = "display.text"
)
