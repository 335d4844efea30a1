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
	"net/http"

	"github.com/go-chi/chi/v5"
)

type experimentSummary struct {
	ID          string         `json:"id"`
	Description string         `json:"description,omitempty"`
	CreatedAt   string         `json:"created_at"`
	StatusCounts map[string]int `json:"status_counts"`
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	recs, err := s.Store.ListExperiments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]experimentSummary, 0, len(recs))
	for _, rec := range recs {
		counts, err := s.Store.QueueItemStatusCounts(r.Context(), rec.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, experimentSummary{
			ID: rec.ID, Description: rec.Description,
			CreatedAt: rec.CreatedAt.UTC().Format(timeFormat), StatusCounts: counts,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": out})
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.Store.GetExperiment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}

	items, err := s.Store.ListQueueItems(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := s.Store.QueueItemStatusCounts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            rec.ID,
		"description":   rec.Description,
		"created_at":    rec.CreatedAt.UTC().Format(timeFormat),
		"status_counts": counts,
		"items":         items,
	})
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"
