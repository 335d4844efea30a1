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

// Package runlog implements the Execution Log and Tool Store (C5): the
// ordered, totally-ordered-by-step event log of one run, its per-agent
// epoch counter, and the separate by-id store of full tool payloads.
package runlog

// EntryType tags one ExecutionLog entry.
type EntryType string

const (
	EntryAgent     EntryType = "agent"
	EntryTool      EntryType = "tool"
	EntryTaskGroup EntryType = "task_group"
	EntrySystem    EntryType = "system"
)

// Timing is the started/duration/completed block every timed entry carries.
type Timing struct {
	StartedAtMS   int64 `json:"started_at_ms"`
	DurationMS    int64 `json:"duration_ms"`
	CompletedAtMS int64 `json:"completed_at_ms"`
}

// Usage is the three-field token accounting shape from spec.md §4.7.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"response_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

// Add returns the element-wise sum of two Usage values.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:   u.PromptTokens + o.PromptTokens,
		ResponseTokens: u.ResponseTokens + o.ResponseTokens,
		TotalTokens:    u.TotalTokens + o.TotalTokens,
	}
}

// AgentEntry is one *agent* log entry: one step of the LLM decide call.
type AgentEntry struct {
	Step             int            `json:"step"`
	Epoch            int            `json:"epoch"`
	AgentKey         string         `json:"agent_key"`
	UserInputPreview string         `json:"user_input_preview"`
	DecisionPreview  string         `json:"decision_preview"`
	Decision         map[string]any `json:"decision"`
	Prompt           string         `json:"prompt"`
	RawResponse      string         `json:"raw_response"`
	Timing           Timing         `json:"timing"`
	StepUsage        Usage          `json:"step_usage"`
	CumulativeUsage  Usage          `json:"cumulative_usage"`
}

// ToolEntry is one *tool* log entry: one tool invocation (standalone or
// within a task group), carrying only previews — the full payload lives in
// the ToolStore under ExecutionID.
type ToolEntry struct {
	Step            int    `json:"step"`
	Epoch           int    `json:"epoch"`
	AgentKey        string `json:"agent_key"`
	ToolKey         string `json:"tool_key"`
	ExecutionID     string `json:"execution_id"`
	RequestPreview  string `json:"request_preview"`
	ResponsePreview string `json:"response_preview"`
	Status          string `json:"status"`
	DurationMS      int64  `json:"duration_ms"`
	GroupID         string `json:"group_id,omitempty"`
	ParentTaskID    string `json:"parent_task_id,omitempty"`
	Attempt         int    `json:"attempt,omitempty"`
}

// TaskGroupEntry is one *task_group* log entry: the aggregated result of a
// task-group dispatch.
type TaskGroupEntry struct {
	Step     int              `json:"step"`
	Epoch    int              `json:"epoch"`
	AgentKey string           `json:"agent_key"`
	GroupID  string           `json:"group_id"`
	Status   string           `json:"status"`
	Tasks    []map[string]any `json:"tasks"`
}

// SystemEntry is a free-form *system* log entry.
type SystemEntry struct {
	Message     string `json:"message"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// Entry is one totally-ordered execution-log record; Type selects exactly
// one non-nil variant field.
type Entry struct {
	Type      EntryType       `json:"type"`
	Agent     *AgentEntry     `json:"agent,omitempty"`
	Tool      *ToolEntry      `json:"tool,omitempty"`
	TaskGroup *TaskGroupEntry `json:"task_group,omitempty"`
	System    *SystemEntry    `json:"system,omitempty"`
}

// StepIndex returns the entry's step index, or -1 for variants that don't carry one.
func (e Entry) StepIndex() int {
	switch e.Type {
	case EntryAgent:
		return e.Agent.Step
	case EntryTool:
		return e.Tool.Step
	case EntryTaskGroup:
		return e.TaskGroup.Step
	default:
		return -1
	}
}

// StepEventEnvelope is the wire format of spec.md §6's step-event stream.
type StepEventEnvelope struct {
	TraceID string        `json:"traceId"`
	Seq     int           `json:"seq"`
	T       int64         `json:"t"`
	Step    StepEventBody `json:"step"`
}

// StepEventBody carries one log entry for streaming.
type StepEventBody struct {
	Kind      string    `json:"kind"`
	EntryType EntryType `json:"entryType"`
	Payload   any       `json:"payload"`
}
