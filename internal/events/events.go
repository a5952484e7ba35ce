// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package events defines the typed payloads carried on every bus topic.
//
// Payloads are decoded once at the component boundary; a payload that
// fails to decode is dropped with a warning and never reaches component
// logic (malformed envelopes are a schema error, not a fault).
package events

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// WakewordDetected is the ww.detected payload.
type WakewordDetected struct {
	Keyword   string `json:"keyword"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// Transcription is the stt.transcription payload.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Timestamp  int64   `json:"timestamp"`
}

// LLMRequest is the llm.request payload sent downstream.
type LLMRequest struct {
	Text         string      `json:"text"`
	Direction    string      `json:"direction"`
	WorldContext interface{} `json:"world_context"`
	ContextNote  string      `json:"context_note"`
}

// LLMAction is the structured single-action body inside an llm.response.
type LLMAction struct {
	Speak     string `json:"speak,omitempty"`
	Direction string `json:"direction,omitempty"`
	Track     string `json:"track,omitempty"`
}

// LLMResponse is the llm.response payload.
type LLMResponse struct {
	JSON LLMAction `json:"json"`
	Raw  string    `json:"raw,omitempty"`
}

// TTSSpeak serves both directions of tts.speak: downstream requests carry
// Text, upstream completion markers carry Done=true.
type TTSSpeak struct {
	Text string `json:"text,omitempty"`
	Done bool   `json:"done,omitempty"`
}

// NavCommand is the nav.command payload. Direction is lowercase at the
// bus level: forward, backward, left, right, stop, scan, plus the
// maintenance tokens status, reset, clearblock.
type NavCommand struct {
	Direction string `json:"direction"`
}

// SensorData is the inner record of an esp32.raw payload.
type SensorData struct {
	S1          int  `json:"s1"`
	S2          int  `json:"s2"`
	S3          int  `json:"s3"`
	MQ2         int  `json:"mq2"`
	LMotor      int  `json:"lmotor"`
	RMotor      int  `json:"rmotor"`
	Obstacle    bool `json:"obstacle"`
	Warning     bool `json:"warning"`
	MinDistance int  `json:"min_distance"`
	IsSafe      bool `json:"is_safe"`
}

// SensorReport is the esp32.raw payload.
type SensorReport struct {
	Data SensorData `json:"data"`
	TS   int64      `json:"ts"`
}

// Blocked is the esp32.blocked payload: a refused movement command.
type Blocked struct {
	Reason    string `json:"reason"`
	Direction string `json:"direction,omitempty"`
	Source    string `json:"source,omitempty"` // "software" or "peripheral"
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ScanSample is one sweep sample inside an esp32.scan payload.
type ScanSample struct {
	Angle int `json:"angle"`
	S1    int `json:"s1"`
	S2    int `json:"s2"`
	S3    int `json:"s3"`
}

// ScanReport is the esp32.scan payload describing one full sweep.
// Phase is "start", "pos", "best", or "complete".
type ScanReport struct {
	Phase     string      `json:"phase"`
	Sample    *ScanSample `json:"sample,omitempty"`
	BestAngle int         `json:"best_angle,omitempty"`
	BestDist  int         `json:"best_dist,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// RemoteIntent is the remote.intent payload.
type RemoteIntent struct {
	Intent    string                 `json:"intent"`
	Extras    map[string]interface{} `json:"extras,omitempty"`
	Source    string                 `json:"source"`
	Timestamp int64                  `json:"timestamp"`
}

// RemoteSession is the remote.session payload.
type RemoteSession struct {
	Active    bool  `json:"active"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

// VisionObject is the visn.object payload.
type VisionObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp,omitempty"`
}

// PauseVision is the cmd.pause.vision payload.
type PauseVision struct {
	Paused bool `json:"paused"`
}

// VisionMode is the cmd.vision.mode payload.
type VisionMode struct {
	Mode string `json:"mode"`
}

// DisplayState is the display.state payload.
type DisplayState struct {
	State     string `json:"state"`
	Phase     string `json:"phase"`
	Timestamp int64  `json:"timestamp"`
}

// DisplayText is the display.text payload.
type DisplayText struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SystemHealth is the system.health payload.
type SystemHealth struct {
	Component string `json:"component"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Decode unmarshals a payload into v, naming the topic in the error.
func Decode(topic string, payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", topic, err)
	}
	return nil
}

// Encode marshals a payload. Failures indicate a programming error
// (unencodable value), so they are returned rather than swallowed.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}
