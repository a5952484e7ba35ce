// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package orchestrator

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/robovox/internal/bus"
	"github.com/tomtom215/robovox/internal/config"
	"github.com/tomtom215/robovox/internal/events"
	"github.com/tomtom215/robovox/internal/logging"
	"github.com/tomtom215/robovox/internal/memory"
	"github.com/tomtom215/robovox/internal/world"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// recordingPub captures every publish in order.
type recordingPub struct {
	mu   sync.Mutex
	msgs []bus.Envelope
	ping chan struct{}
}

func newRecordingPub() *recordingPub {
	return &recordingPub{ping: make(chan struct{}, 256)}
}

func (p *recordingPub) Publish(_ bus.Channel, topic string, payload []byte) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, bus.Envelope{Topic: topic, Payload: payload})
	p.mu.Unlock()
	select {
	case p.ping <- struct{}{}:
	default:
	}
	return nil
}

func (p *recordingPub) all() []bus.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bus.Envelope, len(p.msgs))
	copy(out, p.msgs)
	return out
}

func (p *recordingPub) topics() []string {
	var out []string
	for _, m := range p.all() {
		out = append(out, m.Topic)
	}
	return out
}

func (p *recordingPub) count(topic string) int {
	n := 0
	for _, m := range p.all() {
		if m.Topic == topic {
			n++
		}
	}
	return n
}

func (p *recordingPub) last(t *testing.T, topic string) bus.Envelope {
	t.Helper()
	msgs := p.all()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Topic == topic {
			return msgs[i]
		}
	}
	t.Fatalf("no %s message published; topics: %v", topic, p.topics())
	return bus.Envelope{}
}

// assertOrder checks that want appears as a subsequence of published topics.
func (p *recordingPub) assertOrder(t *testing.T, want ...string) {
	t.Helper()
	topics := p.topics()
	i := 0
	for _, topic := range topics {
		if i < len(want) && topic == want[i] {
			i++
		}
	}
	if i != len(want) {
		t.Errorf("publish order missing %q; full order: %v", want[i], topics)
	}
}

func testConfig() Config {
	return Config{
		STTTimeout:      15 * time.Second,
		LLMTimeout:      10 * time.Second,
		SpeakingTimeout: 30 * time.Second,
		ErrorTimeout:    30 * time.Second,
		MinConfidence:   0.4,
		Freshness:       2 * time.Second,
	}
}

// newTestOrchestrator builds an orchestrator whose dispatch and timeout
// paths are driven synchronously, as the single-threaded loop would.
func newTestOrchestrator(cfg Config) (*Orchestrator, *recordingPub, *world.Context) {
	pub := newRecordingPub()
	w := world.New(cfg.Freshness)
	mem := memory.New(10, 120*time.Second)
	o := New(cfg, pub, make(chan bus.Envelope), w, mem)
	return o, pub, w
}

func env(t *testing.T, topic string, v interface{}) bus.Envelope {
	t.Helper()
	payload, err := events.Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	return bus.Envelope{Topic: topic, Payload: payload}
}

func clearSensorEnv(t *testing.T) bus.Envelope {
	return env(t, bus.TopicSensorRaw, events.SensorReport{
		Data: events.SensorData{S1: 100, S2: 100, S3: 100, MinDistance: 100, IsSafe: true},
		TS:   time.Now().UnixMilli(),
	})
}

func obstacleSensorEnv(t *testing.T) bus.Envelope {
	return env(t, bus.TopicSensorRaw, events.SensorReport{
		Data: events.SensorData{S1: 5, S2: 100, S3: 100, Obstacle: true, Warning: true, MinDistance: 5},
		TS:   time.Now().UnixMilli(),
	})
}

func TestHappyPathFullInteraction(t *testing.T) {
	o, pub, _ := newTestOrchestrator(testConfig())

	o.dispatch(clearSensorEnv(t))

	// Wakeword: pause vision, start listening, show listening.
	o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{Keyword: "hey robo"}))
	if o.Phase() != PhaseListening {
		t.Fatalf("phase = %v, want listening", o.Phase())
	}
	pub.assertOrder(t, bus.TopicPauseVision, bus.TopicListenStart, bus.TopicDisplayState)

	var pv events.PauseVision
	if err := events.Decode("", pub.last(t, bus.TopicPauseVision).Payload, &pv); err != nil {
		t.Fatal(err)
	}
	if !pv.Paused {
		t.Error("entering listening must pause vision")
	}

	// Valid transcription: stop listening, request the LLM, show thinking.
	o.dispatch(env(t, bus.TopicTranscription, events.Transcription{Text: "move forward", Confidence: 0.9}))
	if o.Phase() != PhaseThinking {
		t.Fatalf("phase = %v, want thinking", o.Phase())
	}
	pub.assertOrder(t, bus.TopicListenStop, bus.TopicLLMRequest)

	var req events.LLMRequest
	if err := events.Decode("", pub.last(t, bus.TopicLLMRequest).Payload, &req); err != nil {
		t.Fatal(err)
	}
	if req.Text != "move forward" {
		t.Errorf("llm request text = %q", req.Text)
	}
	if req.ContextNote == "" {
		t.Error("llm request must carry the context note")
	}

	// Clear-path LLM response: move forward and speak.
	o.dispatch(env(t, bus.TopicLLMResponse, events.LLMResponse{
		JSON: events.LLMAction{Speak: "Moving", Direction: "forward"},
	}))
	if o.Phase() != PhaseSpeaking {
		t.Fatalf("phase = %v, want speaking", o.Phase())
	}

	var nav events.NavCommand
	if err := events.Decode("", pub.last(t, bus.TopicNavCommand).Payload, &nav); err != nil {
		t.Fatal(err)
	}
	if nav.Direction != "forward" {
		t.Errorf("nav direction = %q, want forward", nav.Direction)
	}

	var tts events.TTSSpeak
	if err := events.Decode("", pub.last(t, bus.TopicTTSSpeak).Payload, &tts); err != nil {
		t.Fatal(err)
	}
	if tts.Text != "Moving" {
		t.Errorf("tts text = %q, want Moving", tts.Text)
	}

	// TTS completion: resume vision, back to idle.
	o.dispatch(env(t, bus.TopicTTSSpeak, events.TTSSpeak{Done: true}))
	if o.Phase() != PhaseIdle {
		t.Fatalf("phase = %v, want idle", o.Phase())
	}
	if err := events.Decode("", pub.last(t, bus.TopicPauseVision).Payload, &pv); err != nil {
		t.Fatal(err)
	}
	if pv.Paused {
		t.Error("tts completion must resume vision")
	}
}

func TestObstacleCoercesForwardToStop(t *testing.T) {
	o, pub, _ := newTestOrchestrator(testConfig())

	o.dispatch(obstacleSensorEnv(t))
	o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{Keyword: "hey robo"}))
	o.dispatch(env(t, bus.TopicTranscription, events.Transcription{Text: "move forward", Confidence: 0.9}))

	o.dispatch(env(t, bus.TopicLLMResponse, events.LLMResponse{
		JSON: events.LLMAction{Speak: "Moving", Direction: "forward"},
	}))

	var nav events.NavCommand
	if err := events.Decode("", pub.last(t, bus.TopicNavCommand).Payload, &nav); err != nil {
		t.Fatal(err)
	}
	if nav.Direction != "stop" {
		t.Errorf("nav direction = %q, want stop", nav.Direction)
	}

	var tts events.TTSSpeak
	if err := events.Decode("", pub.last(t, bus.TopicTTSSpeak).Payload, &tts); err != nil {
		t.Fatal(err)
	}
	if tts.Text == "" || tts.Text == "Moving" {
		t.Errorf("tts text = %q, want an obstacle notice", tts.Text)
	}
}

func TestSTTTimeoutReturnsToIdle(t *testing.T) {
	o, pub, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{Keyword: "hey robo"}))
	if o.Phase() != PhaseListening {
		t.Fatal("should be listening")
	}

	// Before the deadline nothing fires.
	o.checkTimeout(time.Now())
	if o.Phase() != PhaseListening {
		t.Fatal("timeout fired early")
	}

	o.checkTimeout(time.Now().Add(16 * time.Second))
	if o.Phase() != PhaseIdle {
		t.Fatalf("phase = %v, want idle after stt timeout", o.Phase())
	}
	if pub.count(bus.TopicListenStop) != 1 {
		t.Error("timeout must stop listening")
	}
	if pub.count(bus.TopicLLMRequest) != 0 {
		t.Error("no llm request may be emitted on timeout")
	}
}

func TestWakewordWhileListeningReArmsTimer(t *testing.T) {
	o, pub, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{Keyword: "hey robo"}))
	d1 := o.deadline

	time.Sleep(5 * time.Millisecond)
	o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{Keyword: "hey robo"}))
	d2 := o.deadline

	if o.Phase() != PhaseListening {
		t.Fatal("second wakeword must not change phase")
	}
	if !d2.After(d1) {
		t.Error("second wakeword must re-arm the stt timer")
	}
	if pub.count(bus.TopicListenStop) != 0 {
		t.Error("no listen.stop may be emitted on re-arm")
	}
}

func TestConfidenceExactlyAtThresholdAccepted(t *testing.T) {
	o, pub, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{}))
	o.dispatch(env(t, bus.TopicTranscription, events.Transcription{Text: "hello", Confidence: 0.4}))

	if o.Phase() != PhaseThinking {
		t.Errorf("phase = %v, want thinking for boundary confidence", o.Phase())
	}
	if pub.count(bus.TopicLLMRequest) != 1 {
		t.Error("boundary confidence must produce an llm request")
	}
}

func TestLowConfidenceRejected(t *testing.T) {
	o, pub, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{}))
	o.dispatch(env(t, bus.TopicTranscription, events.Transcription{Text: "mumble", Confidence: 0.39}))

	if o.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle after invalid stt", o.Phase())
	}
	if pub.count(bus.TopicLLMRequest) != 0 {
		t.Error("rejected transcription must not produce an llm request")
	}
}

func TestEmptyTranscriptionRejected(t *testing.T) {
	o, _, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{}))
	o.dispatch(env(t, bus.TopicTranscription, events.Transcription{Text: "   ", Confidence: 0.9}))

	if o.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle for empty transcription", o.Phase())
	}
}

func TestTranscriptionOutsideListeningIgnored(t *testing.T) {
	o, pub, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicTranscription, events.Transcription{Text: "hello", Confidence: 0.9}))

	if o.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle", o.Phase())
	}
	if pub.count(bus.TopicLLMRequest) != 0 {
		t.Error("stray transcription must be ignored")
	}
}

func TestHealthErrorFromAnyPhase(t *testing.T) {
	for _, setup := range []struct {
		name  string
		drive func(o *Orchestrator)
	}{
		{"from idle", func(o *Orchestrator) {}},
		{"from listening", func(o *Orchestrator) {
			o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{}))
		}},
		{"from thinking", func(o *Orchestrator) {
			o.dispatch(env(t, bus.TopicWakeword, events.WakewordDetected{}))
			o.dispatch(env(t, bus.TopicTranscription, events.Transcription{Text: "hi", Confidence: 0.9}))
		}},
	} {
		t.Run(setup.name, func(t *testing.T) {
			o, _, _ := newTestOrchestrator(testConfig())
			setup.drive(o)

			o.dispatch(env(t, bus.TopicSystemHealth, events.SystemHealth{Component: "stt", OK: false}))
			if o.Phase() != PhaseError {
				t.Errorf("phase = %v, want error", o.Phase())
			}

			o.dispatch(env(t, bus.TopicSystemHealth, events.SystemHealth{Component: "stt", OK: true}))
			if o.Phase() != PhaseIdle {
				t.Errorf("phase = %v, want idle after recovery", o.Phase())
			}
		})
	}
}

func TestErrorTimeoutRecovers(t *testing.T) {
	o, _, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicSystemHealth, events.SystemHealth{OK: false}))
	if o.Phase() != PhaseError {
		t.Fatal("should be in error")
	}

	o.checkTimeout(time.Now().Add(31 * time.Second))
	if o.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle after error timeout", o.Phase())
	}
}

func TestRemoteIntentMappings(t *testing.T) {
	tests := []struct {
		intent    string
		extras    map[string]interface{}
		wantTopic string
		check     func(t *testing.T, payload []byte)
	}{
		{
			intent: "stop", wantTopic: bus.TopicNavCommand,
			check: func(t *testing.T, payload []byte) {
				var nav events.NavCommand
				if err := events.Decode("", payload, &nav); err != nil {
					t.Fatal(err)
				}
				if nav.Direction != "stop" {
					t.Errorf("direction = %q", nav.Direction)
				}
			},
		},
		{intent: "left", wantTopic: bus.TopicNavCommand, check: nil},
		{intent: "right", wantTopic: bus.TopicNavCommand, check: nil},
		{intent: "capture", wantTopic: bus.TopicCaptureCmd, check: nil},
		{intent: "clearblock", wantTopic: bus.TopicNavCommand, check: nil},
		{
			intent: "vision_mode", extras: map[string]interface{}{"mode": "track"},
			wantTopic: bus.TopicVisionMode,
			check: func(t *testing.T, payload []byte) {
				var vm events.VisionMode
				if err := events.Decode("", payload, &vm); err != nil {
					t.Fatal(err)
				}
				if vm.Mode != "track" {
					t.Errorf("mode = %q", vm.Mode)
				}
			},
		},
		{
			intent: "pause_vision", extras: map[string]interface{}{"paused": true},
			wantTopic: bus.TopicPauseVision, check: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			o, pub, _ := newTestOrchestrator(testConfig())
			o.dispatch(env(t, bus.TopicRemoteIntent, events.RemoteIntent{
				Intent: tt.intent, Extras: tt.extras, Source: "http",
			}))

			msg := pub.last(t, tt.wantTopic)
			if tt.check != nil {
				tt.check(t, msg.Payload)
			}
		})
	}
}

func TestListenIntentTriggersListening(t *testing.T) {
	o, _, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicRemoteIntent, events.RemoteIntent{Intent: "listen"}))
	if o.Phase() != PhaseListening {
		t.Errorf("phase = %v, want listening", o.Phase())
	}
}

func TestTextIntentGoesStraightToThinking(t *testing.T) {
	o, pub, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicRemoteIntent, events.RemoteIntent{
		Intent: "text",
		Extras: map[string]interface{}{"text": "what do you see"},
	}))

	if o.Phase() != PhaseThinking {
		t.Fatalf("phase = %v, want thinking", o.Phase())
	}
	var req events.LLMRequest
	if err := events.Decode("", pub.last(t, bus.TopicLLMRequest).Payload, &req); err != nil {
		t.Fatal(err)
	}
	if req.Text != "what do you see" {
		t.Errorf("llm text = %q", req.Text)
	}
}

func TestStartIntentVetoedWithoutFreshFrame(t *testing.T) {
	o, pub, _ := newTestOrchestrator(testConfig())

	o.dispatch(env(t, bus.TopicRemoteIntent, events.RemoteIntent{Intent: "start"}))

	if pub.count(bus.TopicNavCommand) != 0 {
		t.Error("forward without a fresh clear frame must not reach the bus")
	}
	if pub.count(bus.TopicDisplayText) == 0 {
		t.Error("a veto must surface a display notice")
	}
}

func TestTransitionTableClosure(t *testing.T) {
	allPhases := []Phase{PhaseIdle, PhaseListening, PhaseThinking, PhaseSpeaking, PhaseError}
	allEvents := []Event{
		EventWakeword, EventManualTrigger, EventManualText,
		EventSTTValid, EventSTTInvalid, EventSTTTimeout,
		EventLLMWithSpeech, EventLLMNoSpeech, EventLLMTimeout,
		EventTTSDone, EventTTSTimeout,
		EventHealthError, EventHealthOK, EventErrorTimeout,
	}

	for _, p := range allPhases {
		for _, e := range allEvents {
			to, ok := next(p, e)
			if e == EventHealthError {
				if !ok || to != PhaseError {
					t.Errorf("(%v, health_error) = (%v, %v), want error", p, to, ok)
				}
				continue
			}
			if !ok {
				continue // pairs outside the table are no-ops
			}
			if to < PhaseIdle || to > PhaseError {
				t.Errorf("(%v, %v) maps to invalid phase %v", p, e, to)
			}
		}
	}

	// Spot-check the authoritative rows.
	rows := []struct {
		from  Phase
		event Event
		to    Phase
	}{
		{PhaseIdle, EventWakeword, PhaseListening},
		{PhaseIdle, EventManualTrigger, PhaseListening},
		{PhaseIdle, EventManualText, PhaseThinking},
		{PhaseListening, EventSTTValid, PhaseThinking},
		{PhaseListening, EventSTTInvalid, PhaseIdle},
		{PhaseListening, EventSTTTimeout, PhaseIdle},
		{PhaseThinking, EventLLMWithSpeech, PhaseSpeaking},
		{PhaseThinking, EventLLMNoSpeech, PhaseIdle},
		{PhaseThinking, EventLLMTimeout, PhaseIdle},
		{PhaseSpeaking, EventTTSDone, PhaseIdle},
		{PhaseSpeaking, EventTTSTimeout, PhaseIdle},
		{PhaseError, EventHealthOK, PhaseIdle},
		{PhaseError, EventErrorTimeout, PhaseIdle},
	}
	for _, r := range rows {
		to, ok := next(r.from, r.event)
		if !ok || to != r.to {
			t.Errorf("next(%v, %v) = (%v, %v), want %v", r.from, r.event, to, ok, r.to)
		}
	}
}

func TestMalformedEnvelopeDoesNotPanicOrTransition(t *testing.T) {
	o, _, _ := newTestOrchestrator(testConfig())

	for _, topic := range []string{
		bus.TopicWakeword, bus.TopicTranscription, bus.TopicLLMResponse,
		bus.TopicTTSSpeak, bus.TopicSensorRaw, bus.TopicRemoteIntent,
		bus.TopicSystemHealth,
	} {
		o.dispatch(bus.Envelope{Topic: topic, Payload: []byte(`{"broken":`)})
	}

	if o.Phase() != PhaseIdle {
		t.Errorf("malformed envelopes must not change phase, got %v", o.Phase())
	}
}

func TestServeLoopDispatchesAndCancels(t *testing.T) {
	pub := newRecordingPub()
	cfg := testConfig()
	w := world.New(cfg.Freshness)
	mem := memory.New(10, 120*time.Second)
	upstream := make(chan bus.Envelope, 8)
	o := New(cfg, pub, upstream, w, mem)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Serve(ctx) }()

	upstream <- env(t, bus.TopicWakeword, events.WakewordDetected{Keyword: "hey robo"})

	deadline := time.After(5 * time.Second)
	for pub.count(bus.TopicListenStart) == 0 {
		select {
		case <-pub.ping:
		case <-deadline:
			t.Fatal("serve loop never dispatched the wakeword")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return on cancellation")
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.STT.TimeoutSeconds = 15
	cfg.STT.MinConfidence = 0.4
	cfg.Orchestrator.LLMTimeoutSeconds = 10
	cfg.Orchestrator.SpeakingTimeoutSeconds = 30
	cfg.Orchestrator.ErrorTimeoutSeconds = 30
	cfg.Safety.SensorFreshnessMs = 2000

	oc := FromAppConfig(cfg)
	if oc.STTTimeout != 15*time.Second || oc.LLMTimeout != 10*time.Second {
		t.Errorf("timeouts = %+v", oc)
	}
	if oc.Freshness != 2*time.Second {
		t.Errorf("freshness = %v", oc.Freshness)
	}
}
