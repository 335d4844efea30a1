// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntOr(r.URL.Query().Get("limit"), 50)
	offset := parseIntOr(r.URL.Query().Get("offset"), 0)

	runs, err := s.Store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.Store.CountRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs": runs, "total": total, "limit": limit, "offset": offset,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleStreamRun serves /runs/{id}/stream: Server-Sent Events, one
// "run.step" message per step_event envelope, per spec.md §6. A run still
// in flight is tailed live off its ExecutionLog's Subscribe channel; a
// completed run is replayed once from the persisted record and the stream
// then closes.
func (s *Server) handleStreamRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fromSeq := parseIntOr(r.URL.Query().Get("seq"), 0)

	sw := newSSEWriter(w, r)
	if sw == nil {
		return
	}

	if log, ok := s.liveLog(id); ok {
		for _, env := range log.Events(fromSeq) {
			if !sw.Send("run.step", env) {
				return
			}
		}
		ch, unsub := log.Subscribe(32)
		defer unsub()
		for {
			select {
			case <-r.Context().Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				if !sw.Send("run.step", env) {
					return
				}
			}
		}
	}

	rec, err := s.Store.GetRun(r.Context(), id)
	if err != nil || rec == nil {
		sw.Send("run.error", map[string]string{"error": "run not found"})
		return
	}
	events, _ := rec.ResponsePayload["step_events"].([]any)
	for _, raw := range events {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if seq, ok := m["seq"].(float64); ok && int(seq) < fromSeq {
			continue
		}
		if !sw.Send("run.step", m) {
			return
		}
	}
}

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// sseWriter wraps an http.ResponseWriter as a Server-Sent Events stream: it
// sets the streaming headers once, then marshals and flushes one named
// event at a time, reporting false once the client disconnects or a write
// fails so the caller can stop producing.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     interface{ Done() <-chan struct{} }
}

func newSSEWriter(w http.ResponseWriter, r *http.Request) *sseWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &sseWriter{w: w, flusher: flusher, ctx: r.Context()}
}

func (sw *sseWriter) Send(event string, data any) bool {
	select {
	case <-sw.ctx.Done():
		return false
	default:
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event, encoded); err != nil {
		return false
	}
	sw.flusher.Flush()
	return true
}
