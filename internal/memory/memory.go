// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package memory implements bounded conversation memory.
//
// The buffer holds at most K user/assistant turns. Evicted turns are
// folded into a rolling summary string so older context is not lost
// outright. A conversation idle longer than the timeout is cleared
// (buffer and summary) before the next user turn is recorded.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in the conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// summaryTurnMax caps how much of an evicted turn enters the summary.
const summaryTurnMax = 80

// Conversation is a bounded FIFO of turns with an eviction summary.
// Safe for concurrent use.
type Conversation struct {
	mu           sync.Mutex
	turns        []Turn
	summary      strings.Builder
	lastActivity time.Time
	maxTurns     int
	timeout      time.Duration

	now func() time.Time // test hook
}

// New creates a conversation buffer holding at most maxTurns turns.
func New(maxTurns int, timeout time.Duration) *Conversation {
	return &Conversation{
		maxTurns: maxTurns,
		timeout:  timeout,
		now:      time.Now,
	}
}

// AddUserTurn records a user utterance. An expired conversation is
// cleared first, so the new turn starts a fresh exchange.
func (c *Conversation) AddUserTurn(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.lastActivity.IsZero() && now.Sub(c.lastActivity) > c.timeout {
		c.clearLocked()
	}
	c.addLocked(Turn{Role: RoleUser, Text: text, At: now})
}

// AddAssistantTurn records an assistant utterance.
func (c *Conversation) AddAssistantTurn(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(Turn{Role: RoleAssistant, Text: text, At: c.now()})
}

// addLocked appends a turn, evicting the oldest into the summary when the
// buffer is full. Must be called with mu held.
func (c *Conversation) addLocked(t Turn) {
	c.turns = append(c.turns, t)
	c.lastActivity = t.At

	for len(c.turns) > c.maxTurns {
		evicted := c.turns[0]
		c.turns = c.turns[1:]

		text := evicted.Text
		if len(text) > summaryTurnMax {
			text = text[:summaryTurnMax] + "..."
		}
		fmt.Fprintf(&c.summary, "%s: %s\n", evicted.Role, text)
	}
}

// Turns returns a copy of the buffered turns.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Summary returns the rolling summary of evicted turns.
func (c *Conversation) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary.String()
}

// Len returns the number of buffered turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Reset clears the buffer, summary, and activity timestamp.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.lastActivity = time.Time{}
}

// clearLocked empties the buffer and summary. Must be called with mu held.
func (c *Conversation) clearLocked() {
	c.turns = nil
	c.summary.Reset()
}
