// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package remote

import (
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/robovox/internal/bus"
	"github.com/tomtom215/robovox/internal/events"
	"github.com/tomtom215/robovox/internal/logging"
	"github.com/tomtom215/robovox/internal/metrics"
	"github.com/tomtom215/robovox/internal/validation"
)

// maxIntentBody bounds /intent request bodies.
const maxIntentBody = 64 * 1024

// StatsSource exposes the bus counters included in /status.
type StatsSource interface {
	ChannelStats(ch bus.Channel) bus.Stats
}

// IntentRequest is the /intent POST body.
type IntentRequest struct {
	Intent string                 `json:"intent" validate:"required,oneof=start stop left right listen text capture vision_mode pause_vision status reset clearblock"`
	Extras map[string]interface{} `json:"extras" validate:"omitempty"`
}

// StatusResponse is the /status and /telemetry body.
type StatusResponse struct {
	OK       bool                 `json:"ok"`
	Session  sessionStatus        `json:"session"`
	Snapshot Snapshot             `json:"snapshot"`
	Bus      map[string]bus.Stats `json:"bus"`
}

type sessionStatus struct {
	Active bool `json:"active"`
}

// Handler implements the supervision endpoints.
type Handler struct {
	pub      Publisher
	agg      *Aggregator
	frames   *FrameHub
	session  *Session
	stats    StatsSource
	mjpegFPS int
	version  string
	log      zerolog.Logger
}

// NewHandler wires the supervision endpoints to their collaborators.
// stats may be nil (bus counters are then omitted from /status).
func NewHandler(pub Publisher, agg *Aggregator, frames *FrameHub, session *Session, stats StatsSource, mjpegFPS int, version string) *Handler {
	return &Handler{
		pub:      pub,
		agg:      agg,
		frames:   frames,
		session:  session,
		stats:    stats,
		mjpegFPS: mjpegFPS,
		version:  version,
		log:      logging.With().Str("component", "remote").Logger(),
	}
}

// Health answers liveness probes with build info.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"service": "robovox",
		"version": h.version,
	})
}

// Status serves the full telemetry snapshot. Also served at /telemetry.
// Two consecutive polls with no intervening bus traffic return identical
// bodies, so nothing here may depend on request time.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.session.Touch()

	resp := StatusResponse{
		OK:       true,
		Session:  sessionStatus{Active: h.session.Active()},
		Snapshot: h.agg.Snapshot(),
	}
	if h.stats != nil {
		resp.Bus = map[string]bus.Stats{
			string(bus.Upstream):   h.stats.ChannelStats(bus.Upstream),
			string(bus.Downstream): h.stats.ChannelStats(bus.Downstream),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Intent validates an operator intent and publishes it upstream.
func (h *Handler) Intent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIntentBody)

	var req IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordIntent("unknown", "invalid")
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "request body must be JSON", nil)
		return
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		metrics.RecordIntent(req.Intent, "invalid")
		apiErr := verr.ToAPIError()
		writeError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	payload, err := events.Encode(events.RemoteIntent{
		Intent:    req.Intent,
		Extras:    req.Extras,
		Source:    "http",
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		metrics.RecordIntent(req.Intent, "invalid")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "encode intent", nil)
		return
	}

	if err := h.pub.Publish(bus.Upstream, bus.TopicRemoteIntent, payload); err != nil {
		metrics.RecordIntent(req.Intent, "unavailable")
		h.log.Warn().Err(err).Str("intent", req.Intent).Msg("intent publish failed")
		writeError(w, http.StatusServiceUnavailable, "BUS_UNAVAILABLE", "event bus unavailable", nil)
		return
	}

	h.session.Touch()
	metrics.RecordIntent(req.Intent, "accepted")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
		"intent":   req.Intent,
	})
}

// StreamMJPEG serves the camera feed as multipart/x-mixed-replace. Each
// client gets its own sender ticking at the configured frame rate; when
// no new frame has arrived since the last tick the previous one is
// repeated. A write error terminates only that client.
func (h *Handler) StreamMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.MJPEGClients.Inc()
	defer metrics.MJPEGClients.Dec()
	h.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("mjpeg client connected")

	interval := time.Second / time.Duration(h.mjpegFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, _, ok := h.frames.Latest()
			if !ok {
				continue
			}
			if err := writeMJPEGPart(w, frame); err != nil {
				h.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("mjpeg client disconnected")
				return
			}
			flusher.Flush()
		}
	}
}

// writeMJPEGPart writes one multipart chunk with boundary framing.
func writeMJPEGPart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
