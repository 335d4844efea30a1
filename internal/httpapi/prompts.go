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

	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/prompt"
)

// promptResolveRequest mirrors /run's graph-selection and input fields,
// minus anything that only matters once a decision loop is running.
type promptResolveRequest struct {
	NetworkName  string               `json:"network,omitempty"`
	Snapshot     *graph.CompiledGraph `json:"snapshot,omitempty"`
	Version      string               `json:"version,omitempty"`
	AgentKey     string               `json:"agent_key,omitempty"`
	UserMessage  string               `json:"user_message"`
	SystemParams map[string]any       `json:"system_params,omitempty"`
}

// handlePromptResolve runs C2 (RunConfig) and C6 (prompt text) with no
// decide call, returning the exact prompt step 0 would produce.
func (s *Server) handlePromptResolve(w http.ResponseWriter, r *http.Request) {
	var req promptResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if (req.Snapshot == nil) == (req.NetworkName == "") {
		writeError(w, http.StatusBadRequest, "exactly one of network or snapshot must be present")
		return
	}

	g, err := s.resolveGraph(r.Context(), req.NetworkName, req.Version, req.Snapshot)
	if err != nil {
		writeErrForKind(w, err)
		return
	}

	agentKey := req.AgentKey
	if agentKey == "" {
		agentKey = g.DefaultAgentKey
	}
	if agentKey == "" {
		writeError(w, http.StatusBadRequest, "no agent_key given and no default_agent_key in snapshot")
		return
	}

	rc, err := s.Builder.Build(g, agentKey, true, req.SystemParams)
	if err != nil {
		writeErrForKind(w, err)
		return
	}

	promptText := prompt.Build(rc, prompt.Input{UserMessage: req.UserMessage})
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_key": agentKey,
		"prompt":    promptText,
	})
}
