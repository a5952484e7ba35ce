// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package remote

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/robovox/internal/bus"
	"github.com/tomtom215/robovox/internal/events"
	"github.com/tomtom215/robovox/internal/logging"
	"github.com/tomtom215/robovox/internal/metrics"
)

// sessionCheckInterval is how often the expiry checker wakes.
const sessionCheckInterval = 10 * time.Second

// Publisher is the slice of the bus the remote surface publishes through.
type Publisher interface {
	Publish(ch bus.Channel, topic string, payload []byte) error
}

// Session tracks the single process-wide operator session. It is created
// on the first intent, refreshed on every intent and status poll, and
// expires after the configured idle timeout.
type Session struct {
	pub     Publisher
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	id        string
	active    bool
	lastTouch time.Time
}

// NewSession creates an inactive session tracker.
func NewSession(timeout time.Duration, pub Publisher) *Session {
	return &Session{
		pub:     pub,
		timeout: timeout,
		log:     logging.With().Str("component", "remote-session").Logger(),
		now:     time.Now,
	}
}

// String names the session checker in supervisor logs.
func (s *Session) String() string {
	return "session-checker"
}

// Touch activates the session (first authenticated request) or refreshes
// its idle timer.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTouch = s.now()
	if s.active {
		return
	}

	s.active = true
	s.id = uuid.New().String()
	metrics.ActiveSessions.Set(1)
	s.log.Info().Str("session_id", s.id).Msg("operator session started")
	s.publishState(true)
}

// Active reports whether an operator session is live.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Serve runs the expiry checker until the context is canceled.
func (s *Session) Serve(ctx context.Context) error {
	ticker := time.NewTicker(sessionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.expireIfIdle(s.now())
		}
	}
}

// expireIfIdle deactivates the session when its idle timeout has passed.
func (s *Session) expireIfIdle(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || now.Sub(s.lastTouch) <= s.timeout {
		return
	}

	s.active = false
	metrics.ActiveSessions.Set(0)
	s.log.Info().Str("session_id", s.id).Msg("operator session expired")
	s.publishState(false)
}

// publishState emits remote.session upstream. Caller holds the mutex.
func (s *Session) publishState(active bool) {
	payload, err := events.Encode(events.RemoteSession{
		Active:    active,
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("encode session state")
		return
	}
	if err := s.pub.Publish(bus.Upstream, bus.TopicRemoteSession, payload); err != nil {
		s.log.Warn().Err(err).Msg("publish session state")
	}
}
