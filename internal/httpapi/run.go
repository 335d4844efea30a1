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
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentnet/internal/apperrors"
	"github.com/kadirpekel/agentnet/internal/engine"
	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/rundata"
	"github.com/kadirpekel/agentnet/internal/runlog"
	"github.com/kadirpekel/agentnet/internal/store"
)

// runRequest is the /run request body, per spec.md §6.
type runRequest struct {
	NetworkName  string               `json:"network,omitempty"`
	Snapshot     *graph.CompiledGraph `json:"snapshot,omitempty"`
	AgentKey     string               `json:"agent_key,omitempty"`
	UserMessage  string               `json:"user_message"`
	Version      string               `json:"version,omitempty"`
	SystemParams map[string]any       `json:"system_params,omitempty"`
	Model        string               `json:"model,omitempty"`
	MaxSteps     int                  `json:"max_steps,omitempty"`
	Debug        bool                 `json:"debug,omitempty"`

	ExperimentID          string         `json:"experiment_id,omitempty"`
	ExperimentDesc        string         `json:"experiment_desc,omitempty"`
	ExperimentItemIndex   int            `json:"experiment_item_index,omitempty"`
	ExperimentIteration   int            `json:"experiment_iteration,omitempty"`
	ExperimentItemPayload map[string]any `json:"experiment_item_payload,omitempty"`
}

// runResponse is the /run response body: the full run artifact plus the
// graph identity and wall-clock latency the engine's own clock doesn't see.
type runResponse struct {
	TraceID        string                       `json:"trace_id"`
	GraphVersionID string                       `json:"graph_version_id,omitempty"`
	NetworkID      string                       `json:"network_id,omitempty"`
	SystemParams   map[string]any               `json:"system_params,omitempty"`
	Model          string                       `json:"model,omitempty"`
	Final          rundata.FinalResult          `json:"final"`
	ExecutionLog   []runlog.Entry               `json:"execution_log"`
	ToolLog        map[string]runlog.ToolRecord `json:"tool_log"`
	StepEvents     []runlog.StepEventEnvelope   `json:"step_events"`
	UsageTotals    *runlog.Usage                `json:"llm_usage_totals,omitempty"`
	RunDurationMS  int64                        `json:"run_duration_ms"`
	Latency        int64                        `json:"latency"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserMessage == "" {
		writeError(w, http.StatusBadRequest, "user_message is required")
		return
	}
	if (req.Snapshot == nil) == (req.NetworkName == "") {
		writeError(w, http.StatusBadRequest, "exactly one of network or snapshot must be present")
		return
	}
	if s.Config != nil && s.Config.Debug {
		req.Debug = true
	}

	g, err := s.resolveGraph(r.Context(), req.NetworkName, req.Version, req.Snapshot)
	if err != nil {
		writeErrForKind(w, err)
		return
	}

	traceID := uuid.NewString()
	start := time.Now()

	artifact, err := s.Engine.Run(r.Context(), engine.Request{
		Graph:        g,
		AgentKey:     req.AgentKey,
		UserMessage:  req.UserMessage,
		SystemParams: req.SystemParams,
		Model:        req.Model,
		MaxSteps:     req.MaxSteps,
		TraceID:      traceID,
		OnLogStart: func(log *runlog.ExecutionLog) {
			s.registerLiveLog(traceID, log)
		},
	})
	s.unregisterLiveLog(traceID)

	if err != nil {
		if kind, ok := apperrors.KindOf(err); ok && kind == apperrors.KindConfigMissing {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := runResponse{
		TraceID:        artifact.TraceID,
		GraphVersionID: g.VersionID,
		NetworkID:      g.NetworkID,
		SystemParams:   artifact.SystemParams,
		Model:          artifact.Model,
		Final:          artifact.Final,
		ExecutionLog:   artifact.ExecutionLog,
		ToolLog:        artifact.ToolLog,
		StepEvents:     artifact.StepEvents,
		UsageTotals:    &artifact.UsageTotals,
		RunDurationMS:  artifact.RunDurationMS,
		Latency:        time.Since(start).Milliseconds(),
	}

	// A write failure here is persistence_failure: logged, never fails the
	// response, per spec.md §7.
	if saveErr := s.Store.SaveRun(r.Context(), store.RunRecord{
		RunID:           artifact.TraceID,
		NetworkID:       g.NetworkID,
		NetworkVersionID: g.VersionID,
		GraphVersionKey: g.VersionKey(),
		UserMessage:     req.UserMessage,
		Status:          artifact.Final.Status,
		RequestPayload:  map[string]any{"agent_key": req.AgentKey, "user_message": req.UserMessage, "system_params": req.SystemParams, "model": req.Model},
		ResponsePayload: map[string]any{"final": artifact.Final, "step_events": artifact.StepEvents, "tool_log": artifact.ToolLog, "execution_log": artifact.ExecutionLog},
		ExperimentID:    req.ExperimentID,
	}); saveErr != nil {
		s.Logger.Error("failed to persist run record", "trace_id", artifact.TraceID, "error", saveErr)
	}

	writeJSON(w, http.StatusOK, resp)
}
