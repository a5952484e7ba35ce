// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package bus implements the dual-channel publish/subscribe fabric.
//
// Two core-NATS endpoints carry all cross-component traffic: upstream for
// events toward the hub, downstream for commands away from it. Delivery is
// at-most-once and FIFO per publisher; a subscriber slower than its
// high-water mark loses messages without back-pressuring publishers.
// Topics are matched by prefix ("" subscribes to everything).
package bus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/robovox/internal/config"
	"github.com/tomtom215/robovox/internal/logging"
	"github.com/tomtom215/robovox/internal/metrics"
)

// Envelope is one immutable bus message: a topic and an opaque payload.
// Payloads are UTF-8 JSON for control topics and raw bytes for visn.frame.
type Envelope struct {
	Topic   string
	Payload []byte
}

// Stats holds rolling per-channel counters, surfaced in /status.
type Stats struct {
	Published     uint64 `json:"published"`
	PublishErrors uint64 `json:"publish_errors"`
	Dropped       uint64 `json:"dropped"`
}

type channelState struct {
	conn    *nats.Conn
	breaker *gobreaker.CircuitBreaker[any]

	published     atomic.Uint64
	publishErrors atomic.Uint64
	dropped       atomic.Uint64
}

// Bus is one process's handle on both channels.
type Bus struct {
	channels map[Channel]*channelState
	hwm      int
	log      zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Connect dials both configured endpoints. A connect failure at startup is
// fatal; after startup the client reconnects indefinitely on its own.
func Connect(cfg config.IPCConfig) (*Bus, error) {
	log := logging.With().Str("component", "bus").Logger()

	b := &Bus{
		channels: make(map[Channel]*channelState, 2),
		hwm:      cfg.HighWaterMark,
		log:      log,
	}

	endpoints := map[Channel]string{
		Upstream:   cfg.Upstream,
		Downstream: cfg.Downstream,
	}

	for ch, endpoint := range endpoints {
		conn, err := dial(string(ch), endpoint, log)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect %s endpoint %s: %w", ch, endpoint, err)
		}
		b.channels[ch] = &channelState{
			conn:    conn,
			breaker: newPublishBreaker(ch, log),
		}
	}

	return b, nil
}

// dial opens one NATS connection with indefinite reconnects.
func dial(name, endpoint string, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(endpoint,
		nats.Name("robovox-"+name),
		nats.RetryOnFailedConnect(false),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("channel", name).Msg("bus disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("channel", name).Str("url", nc.ConnectedUrl()).Msg("bus reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if errors.Is(err, nats.ErrSlowConsumer) {
				// Expected under load: the high-water mark dropped messages.
				log.Debug().Str("channel", name).Str("subject", sub.Subject).Msg("slow consumer drop")
				return
			}
			log.Error().Err(err).Str("channel", name).Msg("bus error")
		}),
	)
}

// newPublishBreaker builds the circuit breaker guarding publishes on one
// channel. Transient send failures trip it open instead of cascading.
func newPublishBreaker(ch Channel, log zerolog.Logger) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:    "bus-publish-" + string(ch),
		Timeout: 5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1.0
			}
			metrics.BusBreakerState.WithLabelValues(string(ch)).Set(open)
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publish breaker state change")
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}

// Publish sends one envelope on a channel. Best-effort: there is no
// delivery confirmation, and failures are counted and logged. The returned
// error is advisory (the /intent handler uses it to answer 503).
func (b *Bus) Publish(ch Channel, topic string, payload []byte) error {
	state, ok := b.channels[ch]
	if !ok {
		return fmt.Errorf("unknown channel %q", ch)
	}

	_, err := state.breaker.Execute(func() (any, error) {
		return nil, state.conn.Publish(topic, payload)
	})
	if err != nil {
		state.publishErrors.Add(1)
		metrics.RecordPublishError(string(ch))
		b.log.Warn().Err(err).Str("channel", string(ch)).Str("topic", topic).Msg("publish failed")
		return err
	}

	state.published.Add(1)
	metrics.RecordPublish(string(ch), topic)
	return nil
}

// Subscription is one prefix subscription on one channel. Envelopes are
// delivered on C() in publisher order; when the buffer reaches the
// high-water mark the newest message is dropped.
type Subscription struct {
	name    string
	ch      chan Envelope
	sub     *nats.Subscription
	state   *channelState
	dropped atomic.Uint64
}

// Subscribe attaches to every topic matching prefix on the given channel.
// The empty prefix subscribes to all topics; a prefix ending in "." matches
// the whole namespace below it; anything else matches the topic verbatim.
// name identifies the subscriber in drop metrics.
func (b *Bus) Subscribe(ch Channel, prefix, name string) (*Subscription, error) {
	state, ok := b.channels[ch]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", ch)
	}

	s := &Subscription{
		name:  name,
		ch:    make(chan Envelope, b.hwm),
		state: state,
	}

	subject := subjectFor(prefix)
	sub, err := state.conn.Subscribe(subject, func(msg *nats.Msg) {
		env := Envelope{Topic: msg.Subject, Payload: msg.Data}
		select {
		case s.ch <- env:
		default:
			// High-water mark reached: drop rather than block the
			// delivery goroutine.
			s.dropped.Add(1)
			state.dropped.Add(1)
			metrics.RecordDrop(string(ch), name)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s %q: %w", ch, prefix, err)
	}

	s.sub = sub
	b.log.Debug().
		Str("channel", string(ch)).
		Str("prefix", prefix).
		Str("subject", subject).
		Str("subscriber", name).
		Msg("subscribed")

	return s, nil
}

// subjectFor maps a topic prefix to a NATS subject pattern.
func subjectFor(prefix string) string {
	switch {
	case prefix == "":
		return ">"
	case strings.HasSuffix(prefix, "."):
		return prefix + ">"
	default:
		return prefix
	}
}

// C returns the envelope delivery channel.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Dropped returns how many envelopes this subscription has discarded.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe detaches from the channel. The delivery channel is not
// closed; readers should stop on context cancellation.
func (s *Subscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// ChannelStats returns the rolling counters for one channel.
func (b *Bus) ChannelStats(ch Channel) Stats {
	state, ok := b.channels[ch]
	if !ok {
		return Stats{}
	}
	return Stats{
		Published:     state.published.Load(),
		PublishErrors: state.publishErrors.Load(),
		Dropped:       state.dropped.Load(),
	}
}

// Close drains and closes both connections.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	for _, state := range b.channels {
		if state.conn != nil {
			state.conn.Close()
		}
	}
}
