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

// Package rundata defines the wire shape of one completed run: the
// terminal FinalResult and the full RunArtifact bundling it with the
// execution log, tool log, and step events. It is a leaf package so both
// the run engine and the task-group scheduler (which needs to embed a
// nested run's artifact in its own log) can depend on it without a cycle.
package rundata

import "github.com/kadirpekel/agentnet/internal/runlog"

// FinalResult is the run engine's terminal block: always non-nil, always
// carrying a status of "ok" or "error".
type FinalResult struct {
	Status     string         `json:"status"`
	Response   map[string]any `json:"response,omitempty"`
	ActionType string         `json:"action_type,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// RunArtifact is the full result of one run (top-level or nested/delegated).
type RunArtifact struct {
	TraceID       string                       `json:"trace_id"`
	Final         FinalResult                  `json:"final"`
	SystemParams  map[string]any               `json:"system_params,omitempty"`
	Model         string                       `json:"model,omitempty"`
	ExecutionLog  []runlog.Entry               `json:"execution_log"`
	ToolLog       map[string]runlog.ToolRecord `json:"tool_log"`
	StepEvents    []runlog.StepEventEnvelope   `json:"step_events"`
	UsageTotals   runlog.Usage                 `json:"llm_usage_totals"`
	RunDurationMS int64                        `json:"run_duration_ms"`
}
