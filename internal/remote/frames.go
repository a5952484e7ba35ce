// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package remote

import (
	"context"
	"sync"

	"github.com/tomtom215/robovox/internal/bus"
)

// FrameHub holds the single most recent JPEG frame from visn.frame.
// Single writer (the bus subscription), many readers (MJPEG clients).
type FrameHub struct {
	frames <-chan bus.Envelope

	mu     sync.Mutex
	latest []byte
	seq    uint64
}

// NewFrameHub creates a hub consuming raw JPEG envelopes from a
// visn.frame subscription channel.
func NewFrameHub(frames <-chan bus.Envelope) *FrameHub {
	return &FrameHub{frames: frames}
}

// String names the hub in supervisor logs.
func (h *FrameHub) String() string {
	return "frame-hub"
}

// Serve consumes frames until the context is canceled.
func (h *FrameHub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-h.frames:
			h.Set(env.Payload)
		}
	}
}

// Set replaces the current frame. The payload is referenced, not copied;
// bus payloads are immutable once published.
func (h *FrameHub) Set(jpeg []byte) {
	if len(jpeg) == 0 {
		return
	}
	h.mu.Lock()
	h.latest = jpeg
	h.seq++
	h.mu.Unlock()
}

// Latest returns the current frame and its sequence number. ok is false
// before the first frame arrives.
func (h *FrameHub) Latest() (jpeg []byte, seq uint64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.seq, h.latest != nil
}
