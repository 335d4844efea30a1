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

// Package action defines the Instruction tagged union (the validated,
// typed action chosen by an LLM decision) and its five variants. Each
// variant is its own struct; Type is the wire discriminant and only the
// matching pointer field may be non-nil, so callers never reach into an
// open map of action details.
package action

import "fmt"

// Type is the wire-format discriminant for one Action variant.
type Type string

const (
	TypeUseTool     Type = "USE_TOOL"
	TypeRoute       Type = "ROUTE_TO_AGENT"
	TypeRespond     Type = "RESPOND"
	TypeTaskGroup   Type = "TASK_GROUP"
	TypeTaskRespond Type = "TASK_RESPOND"
)

// UseTool invokes one equipped tool.
type UseTool struct {
	ToolName   string         `json:"tool_name"`
	ToolParams map[string]any `json:"tool_params"`
}

// Route hands off to another agent, carrying free-form context for the
// target agent's next prompt.
type Route struct {
	TargetAgentName string         `json:"target_agent_name"`
	Context         map[string]any `json:"context,omitempty"`
}

// Respond emits the final response payload. A bare string payload is lifted
// to {"message": <string>} by Normalize.
type Respond struct {
	Payload any `json:"payload"`
}

// RetryPolicy bounds attempts for one task-group child task.
type RetryPolicy struct {
	Attempts int `json:"attempts"`
}

// UseToolTask is a task-group child that invokes a tool.
type UseToolTask struct {
	TaskID      string      `json:"task_id,omitempty"`
	ToolName    string      `json:"tool_name"`
	ToolParams  map[string]any `json:"tool_params"`
	RetryPolicy RetryPolicy `json:"retry_policy"`
}

// DelegationDetails describes one nested delegated run within a
// DelegateAgentTask.
type DelegationDetails struct {
	AgentKey         string         `json:"agent_key"`
	Assignment       string         `json:"assignment"`
	ContextOverrides map[string]any `json:"context_overrides,omitempty"`
	MaxSteps         int            `json:"max_steps"`
}

// DelegateAgentTask is a task-group child that runs one or more delegated
// agents sequentially; failure of any detail aborts the task.
type DelegateAgentTask struct {
	TaskID      string              `json:"task_id,omitempty"`
	Details     []DelegationDetails `json:"details"`
	RetryPolicy RetryPolicy         `json:"retry_policy"`
}

// TaskKind distinguishes the two Task variants.
type TaskKind string

const (
	TaskKindUseTool      TaskKind = "use_tool"
	TaskKindDelegateAgent TaskKind = "delegate_agent"
)

// Task is one child of a TaskGroup: either a UseToolTask or a
// DelegateAgentTask, discriminated by Kind.
type Task struct {
	Kind     TaskKind
	UseTool  *UseToolTask
	Delegate *DelegateAgentTask
}

// TaskID returns the child's task id, defaulting to its index if unset.
func (t *Task) TaskID(index int) string {
	var id string
	switch t.Kind {
	case TaskKindUseTool:
		if t.UseTool != nil {
			id = t.UseTool.TaskID
		}
	case TaskKindDelegateAgent:
		if t.Delegate != nil {
			id = t.Delegate.TaskID
		}
	}
	if id == "" {
		return fmt.Sprintf("%d", index)
	}
	return id
}

// GetRetryPolicy returns the child's retry policy, defaulting attempts to 1.
func (t *Task) GetRetryPolicy() RetryPolicy {
	var rp RetryPolicy
	switch t.Kind {
	case TaskKindUseTool:
		if t.UseTool != nil {
			rp = t.UseTool.RetryPolicy
		}
	case TaskKindDelegateAgent:
		if t.Delegate != nil {
			rp = t.Delegate.RetryPolicy
		}
	}
	if rp.Attempts < 1 {
		rp.Attempts = 1
	}
	return rp
}

// TaskGroup dispatches a sequential list of child tasks with per-task retry.
type TaskGroup struct {
	GroupID string `json:"group_id,omitempty"`
	Tasks   []Task `json:"tasks"`
}

// Action is the Instruction's tagged union: Type selects exactly one
// non-nil variant field.
type Action struct {
	Type        Type
	UseTool     *UseTool
	Route       *Route
	Respond     *Respond
	TaskGroup   *TaskGroup
	TaskRespond *Respond
}

// Instruction is one validated, typed action chosen by an LLM decision.
type Instruction struct {
	Reasoning string
	Action    Action
}

// Validate checks the discriminant/payload consistency of an Action and,
// for TASK_GROUP, that tasks is non-empty (spec.md §8 property 13: an empty
// task list is a configuration error caught at parse time, not run time).
func (a *Action) Validate() error {
	switch a.Type {
	case TypeUseTool:
		if a.UseTool == nil {
			return fmt.Errorf("action %s missing use_tool payload", a.Type)
		}
	case TypeRoute:
		if a.Route == nil {
			return fmt.Errorf("action %s missing route payload", a.Type)
		}
	case TypeRespond:
		if a.Respond == nil {
			return fmt.Errorf("action %s missing respond payload", a.Type)
		}
	case TypeTaskGroup:
		if a.TaskGroup == nil {
			return fmt.Errorf("action %s missing task_group payload", a.Type)
		}
		if len(a.TaskGroup.Tasks) == 0 {
			return fmt.Errorf("task_group.tasks must not be empty")
		}
	case TypeTaskRespond:
		if a.TaskRespond == nil {
			return fmt.Errorf("action %s missing task_respond payload", a.Type)
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// Normalize lifts a bare-string RESPOND/TASK_RESPOND payload to
// {"message": <string>}, per spec.md §3.
func Normalize(payload any) map[string]any {
	switch v := payload.(type) {
	case map[string]any:
		return v
	case string:
		return map[string]any{"message": v}
	case nil:
		return map[string]any{}
	default:
		return map[string]any{"message": fmt.Sprintf("%v", v)}
	}
}
