// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package motorbridge translates between the bus and the line-oriented
// UART peripheral.
//
// Three tasks share the bridge: a command task draining nav.command
// envelopes into a bounded newest-wins write queue, a writer task
// serializing queued tokens to the port, and a reader task parsing
// telemetry lines into esp32.* events. A software safety gate vetoes
// forward motion against the latest parsed frame before anything reaches
// the wire.
package motorbridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/tomtom215/robovox/internal/bus"
	"github.com/tomtom215/robovox/internal/config"
	"github.com/tomtom215/robovox/internal/events"
	"github.com/tomtom215/robovox/internal/logging"
	"github.com/tomtom215/robovox/internal/metrics"
)

// Publisher is the slice of the bus the bridge publishes through.
type Publisher interface {
	Publish(ch bus.Channel, topic string, payload []byte) error
}

// PortOpener opens the serial port. Injectable for tests.
type PortOpener func() (io.ReadWriteCloser, error)

// coalesceWindow bounds how recently a token must have been sent for an
// identical follow-up to be coalesced away.
const coalesceWindow = 250 * time.Millisecond

// Bridge is the UART motor bridge.
type Bridge struct {
	cfg      config.NavConfig
	safety   *SafetyGate
	pub      Publisher
	commands <-chan bus.Envelope
	open     PortOpener
	log      zerolog.Logger

	portMu sync.Mutex
	port   io.ReadWriteCloser

	queueMu    sync.Mutex
	queue      []string
	queueReady chan struct{}
	lastSent   string
	lastSentAt time.Time

	frameMu  sync.Mutex
	frame    SensorFrame
	frameAt  time.Time
	hasFrame bool
}

// New creates a bridge reading nav commands from the given subscription
// channel. The default port opener dials the configured UART device at
// 8N1 with the configured baud rate.
func New(navCfg config.NavConfig, safetyCfg config.SafetyConfig, pub Publisher, commands <-chan bus.Envelope) *Bridge {
	b := &Bridge{
		cfg:        navCfg,
		safety:     NewSafetyGate(safetyCfg),
		pub:        pub,
		commands:   commands,
		queueReady: make(chan struct{}, 1),
		log:        logging.With().Str("component", "motorbridge").Logger(),
	}
	b.open = b.openSerial
	return b
}

// SetPortOpener replaces the serial opener. Used by tests to inject a
// fake port.
func (b *Bridge) SetPortOpener(open PortOpener) {
	b.open = open
}

// openSerial opens the configured device in 8N1 framing.
func (b *Bridge) openSerial() (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: b.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(b.cfg.UARTDevice, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(b.cfg.ReadTimeout()); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// String names the bridge in supervisor logs.
func (b *Bridge) String() string {
	return "motorbridge"
}

// Serve runs the bridge until the context is canceled. Port failures are
// absorbed with a reopen backoff; Serve returns only on cancellation.
func (b *Bridge) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		b.commandLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.writeLoop(ctx)
	}()

	b.readLoop(ctx)
	wg.Wait()

	b.closePort()
	return ctx.Err()
}

// commandLoop drains nav.command envelopes into the write queue.
func (b *Bridge) commandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.commands:
			b.handleCommand(env)
		}
	}
}

// handleCommand validates, safety-checks, and enqueues one command.
func (b *Bridge) handleCommand(env bus.Envelope) {
	var cmd events.NavCommand
	if err := events.Decode(env.Topic, env.Payload, &cmd); err != nil {
		b.log.Warn().Err(err).Msg("dropping malformed nav command")
		return
	}

	token, ok := b.cfg.Commands[cmd.Direction]
	if !ok {
		b.log.Warn().Str("direction", cmd.Direction).Msg("unknown nav direction")
		return
	}

	b.frameMu.Lock()
	frame, frameAt, hasFrame := b.frame, b.frameAt, b.hasFrame
	b.frameMu.Unlock()

	if ok, reason := b.safety.Check(cmd.Direction, frame, frameAt, hasFrame, time.Now()); !ok {
		b.refuse(cmd.Direction, reason)
		return
	}

	b.enqueue(token)
}

// refuse publishes a structured software veto upstream.
func (b *Bridge) refuse(direction, reason string) {
	metrics.RecordVeto(reason)
	b.log.Info().Str("direction", direction).Str("reason", reason).Msg("safety veto")

	payload, err := events.Encode(events.Blocked{
		Reason:    reason,
		Direction: direction,
		Source:    "software",
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		b.log.Error().Err(err).Msg("encode blocked event")
		return
	}
	_ = b.pub.Publish(bus.Upstream, bus.TopicSensorBlocked, payload)
}

// enqueue adds a token to the bounded write queue. A token identical to
// the newest pending (or just-sent) one is coalesced away; when the queue
// is full the oldest pending token is dropped so the newest wins.
func (b *Bridge) enqueue(token string) {
	b.queueMu.Lock()

	if n := len(b.queue); n > 0 && b.queue[n-1] == token {
		b.queueMu.Unlock()
		return
	}
	if len(b.queue) == 0 && token == b.lastSent && time.Since(b.lastSentAt) < coalesceWindow {
		b.queueMu.Unlock()
		return
	}

	if len(b.queue) >= b.cfg.WriteQueueSize {
		dropped := b.queue[0]
		b.queue = b.queue[1:]
		metrics.UARTWriteDrops.Inc()
		b.log.Warn().Str("dropped", dropped).Msg("write queue full, dropping oldest command")
	}
	b.queue = append(b.queue, token)
	b.queueMu.Unlock()

	select {
	case b.queueReady <- struct{}{}:
	default:
	}
}

// writeLoop serializes queued tokens to the port, one line per write.
func (b *Bridge) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.queueReady:
		}

		for {
			b.queueMu.Lock()
			if len(b.queue) == 0 {
				b.queueMu.Unlock()
				break
			}
			token := b.queue[0]
			b.queue = b.queue[1:]
			b.queueMu.Unlock()

			b.writeToken(token)
		}
	}
}

// writeToken writes one newline-terminated command in a single write call.
func (b *Bridge) writeToken(token string) {
	b.portMu.Lock()
	port := b.port
	b.portMu.Unlock()

	if port == nil {
		b.log.Warn().Str("token", token).Msg("port closed, dropping command")
		return
	}

	if _, err := port.Write([]byte(token + "\n")); err != nil {
		b.log.Warn().Err(err).Str("token", token).Msg("serial write failed, dropping command")
		return
	}

	metrics.UARTWrites.Inc()
	b.queueMu.Lock()
	b.lastSent = token
	b.lastSentAt = time.Now()
	b.queueMu.Unlock()
}

// readLoop owns the port lifecycle: open, read lines, and on any I/O
// error close the port, back off, and reopen.
func (b *Bridge) readLoop(ctx context.Context) {
	buf := make([]byte, 512)
	var pending []byte

	for ctx.Err() == nil {
		port := b.currentPort()
		if port == nil {
			if !b.reopen(ctx) {
				return
			}
			pending = pending[:0]
			continue
		}

		n, err := port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = b.drainLines(pending)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.log.Warn().Err(err).Msg("serial read failed")
			}
			b.closePort()
		}
		// n == 0 without error is a read timeout tick.
	}
}

// drainLines dispatches every complete line in the rolling buffer and
// returns the remaining partial bytes. Overlong partial lines are
// discarded with a warning.
func (b *Bridge) drainLines(pending []byte) []byte {
	for {
		idx := bytes.IndexByte(pending, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.ReplaceAll(pending[:idx], []byte{'\r'}, nil))
		pending = pending[idx+1:]

		if line == "" {
			continue
		}
		if len(line) > b.cfg.MaxLineBytes {
			b.log.Warn().Int("len", len(line)).Msg("discarding overlong telemetry line")
			continue
		}
		b.handleLine(line)
	}

	if len(pending) > b.cfg.MaxLineBytes {
		b.log.Warn().Int("len", len(pending)).Msg("discarding overlong partial line")
		pending = pending[:0]
	}
	return pending
}

// handleLine classifies and dispatches one complete telemetry line.
func (b *Bridge) handleLine(line string) {
	kind := Classify(line)
	metrics.UARTLinesRead.WithLabelValues(kind.String()).Inc()

	switch kind {
	case LineData:
		b.handleData(line)
	case LineAck:
		b.handleAck(line)
	case LineAlert:
		b.handleAlert(line)
	case LineScan:
		b.handleScan(line)
	default:
		b.log.Debug().Str("line", line).Msg("unknown telemetry prefix")
	}
}

func (b *Bridge) handleData(line string) {
	frame, err := ParseDataLine(line)
	if err != nil {
		metrics.UARTParseErrors.Inc()
		b.log.Warn().Err(err).Str("line", line).Msg("discarding malformed DATA line")
		return
	}

	now := time.Now()
	b.frameMu.Lock()
	b.frame = frame
	b.frameAt = now
	b.hasFrame = true
	b.frameMu.Unlock()

	payload, err := events.Encode(frame.Report(now.UnixMilli()))
	if err != nil {
		b.log.Error().Err(err).Msg("encode sensor report")
		return
	}
	_ = b.pub.Publish(bus.Upstream, bus.TopicSensorRaw, payload)
}

func (b *Bridge) handleAck(line string) {
	ack, err := ParseAckLine(line)
	if err != nil {
		metrics.UARTParseErrors.Inc()
		b.log.Warn().Err(err).Str("line", line).Msg("discarding malformed ACK line")
		return
	}
	if ack.OK {
		b.log.Debug().Str("command", ack.Command).Msg("command acknowledged")
		return
	}

	payload, err := events.Encode(events.Blocked{
		Reason:    ack.Reason,
		Direction: ack.Command,
		Source:    "peripheral",
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		b.log.Error().Err(err).Msg("encode blocked event")
		return
	}
	_ = b.pub.Publish(bus.Upstream, bus.TopicSensorBlocked, payload)
}

func (b *Bridge) handleAlert(line string) {
	detail, err := ParseAlertLine(line)
	if err != nil {
		metrics.UARTParseErrors.Inc()
		b.log.Warn().Err(err).Str("line", line).Msg("discarding malformed ALERT line")
		return
	}
	b.log.Warn().Str("detail", detail).Msg("collision alert from peripheral")

	payload, err := events.Encode(events.Blocked{
		Reason:    "collision",
		Source:    "peripheral",
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	_ = b.pub.Publish(bus.Upstream, bus.TopicSensorBlocked, payload)
}

func (b *Bridge) handleScan(line string) {
	report, err := ParseScanLine(line)
	if err != nil {
		metrics.UARTParseErrors.Inc()
		b.log.Warn().Err(err).Str("line", line).Msg("discarding malformed SCAN line")
		return
	}
	report.Timestamp = time.Now().UnixMilli()

	payload, err := events.Encode(report)
	if err != nil {
		return
	}
	_ = b.pub.Publish(bus.Upstream, bus.TopicSensorScan, payload)
}

// LatestFrame returns the cached sensor frame, its arrival time, and
// whether any frame has been parsed yet.
func (b *Bridge) LatestFrame() (SensorFrame, time.Time, bool) {
	b.frameMu.Lock()
	defer b.frameMu.Unlock()
	return b.frame, b.frameAt, b.hasFrame
}

func (b *Bridge) currentPort() io.ReadWriteCloser {
	b.portMu.Lock()
	defer b.portMu.Unlock()
	return b.port
}

// closePort closes the port and drops any pending writes.
func (b *Bridge) closePort() {
	b.portMu.Lock()
	if b.port != nil {
		b.port.Close()
		b.port = nil
	}
	b.portMu.Unlock()

	b.queueMu.Lock()
	if n := len(b.queue); n > 0 {
		b.log.Warn().Int("dropped", n).Msg("dropping pending writes on port close")
		b.queue = b.queue[:0]
	}
	b.queueMu.Unlock()
}

// reopen tries to open the port, backing off between attempts. Returns
// false when the context is canceled.
func (b *Bridge) reopen(ctx context.Context) bool {
	port, err := b.open()
	if err != nil {
		metrics.UARTReconnects.Inc()
		b.log.Warn().Err(err).
			Str("device", b.cfg.UARTDevice).
			Dur("backoff", b.cfg.ReopenBackoff()).
			Msg("serial open failed")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(b.cfg.ReopenBackoff()):
			return true
		}
	}

	b.portMu.Lock()
	b.port = port
	b.portMu.Unlock()
	b.log.Info().Str("device", b.cfg.UARTDevice).Int("baud", b.cfg.BaudRate).Msg("serial port open")
	return true
}
