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

	"github.com/kadirpekel/agentnet/internal/action"
	"github.com/kadirpekel/agentnet/internal/graph"
)

// invokeRequest is the /invoke request body: one pre-formed instruction
// against a specific agent, for tests and admin probes. TASK_GROUP
// instructions are rejected (§7) since Execute cannot dispatch them; use
// /run against a network that allows task groups instead.
type invokeRequest struct {
	NetworkName  string               `json:"network,omitempty"`
	Snapshot     *graph.CompiledGraph `json:"snapshot,omitempty"`
	Version      string               `json:"version,omitempty"`
	AgentKey     string               `json:"agent_key"`
	SystemParams map[string]any       `json:"system_params,omitempty"`
	Instruction  json.RawMessage      `json:"instruction"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AgentKey == "" {
		writeError(w, http.StatusBadRequest, "agent_key is required")
		return
	}
	if (req.Snapshot == nil) == (req.NetworkName == "") {
		writeError(w, http.StatusBadRequest, "exactly one of network or snapshot must be present")
		return
	}

	instr, err := action.ParseInstruction(req.Instruction)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instruction: "+err.Error())
		return
	}
	if instr.Action.Type == action.TypeTaskGroup {
		writeError(w, http.StatusBadRequest, "/invoke does not support TASK_GROUP instructions; use /run")
		return
	}

	g, err := s.resolveGraph(r.Context(), req.NetworkName, req.Version, req.Snapshot)
	if err != nil {
		writeErrForKind(w, err)
		return
	}

	rc, err := s.Builder.Build(g, req.AgentKey, true, req.SystemParams)
	if err != nil {
		writeErrForKind(w, err)
		return
	}

	result, err := s.Executor.Execute(r.Context(), instr, rc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}
