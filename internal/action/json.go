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

package action

import (
	"encoding/json"
	"fmt"
)

// instructionWire is the flat wire shape an LLM emits: reasoning plus one
// action object carrying a "type" discriminant and that variant's fields
// inlined at the top level.
type instructionWire struct {
	Reasoning string          `json:"reasoning"`
	Action    json.RawMessage `json:"action"`
}

// typeTag extracts just the discriminant from a raw action object.
type typeTag struct {
	Type Type `json:"type"`
}

// ParseInstruction decodes raw LLM JSON text into a validated Instruction.
func ParseInstruction(data []byte) (*Instruction, error) {
	var wire instructionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode instruction: %w", err)
	}

	act, err := parseAction(wire.Action)
	if err != nil {
		return nil, err
	}
	if err := act.Validate(); err != nil {
		return nil, err
	}

	return &Instruction{Reasoning: wire.Reasoning, Action: *act}, nil
}

func parseAction(raw json.RawMessage) (*Action, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("instruction missing action")
	}

	var tag typeTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("decode action type: %w", err)
	}

	act := &Action{Type: tag.Type}

	switch tag.Type {
	case TypeUseTool:
		var v UseTool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode use_tool action: %w", err)
		}
		act.UseTool = &v
	case TypeRoute:
		var v Route
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode route action: %w", err)
		}
		act.Route = &v
	case TypeRespond:
		var v struct {
			Payload any `json:"payload"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode respond action: %w", err)
		}
		act.Respond = &Respond{Payload: v.Payload}
	case TypeTaskRespond:
		var v struct {
			Payload any `json:"payload"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode task_respond action: %w", err)
		}
		act.TaskRespond = &Respond{Payload: v.Payload}
	case TypeTaskGroup:
		var v struct {
			GroupID string            `json:"group_id"`
			Tasks   []json.RawMessage `json:"tasks"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode task_group action: %w", err)
		}
		tasks := make([]Task, 0, len(v.Tasks))
		for i, raw := range v.Tasks {
			task, err := parseTask(raw)
			if err != nil {
				return nil, fmt.Errorf("decode task %d: %w", i, err)
			}
			tasks = append(tasks, *task)
		}
		act.TaskGroup = &TaskGroup{GroupID: v.GroupID, Tasks: tasks}
	default:
		return nil, fmt.Errorf("unknown action type %q", tag.Type)
	}

	return act, nil
}

// taskTypeTag is the discriminant used by individual task-group children.
type taskTypeTag struct {
	Type TaskKind `json:"type"`
}

func parseTask(raw json.RawMessage) (*Task, error) {
	var tag taskTypeTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("decode task type: %w", err)
	}

	switch tag.Type {
	case TaskKindUseTool:
		var v UseToolTask
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		if v.RetryPolicy.Attempts < 1 {
			v.RetryPolicy.Attempts = 1
		}
		return &Task{Kind: TaskKindUseTool, UseTool: &v}, nil
	case TaskKindDelegateAgent:
		var v DelegateAgentTask
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		if v.RetryPolicy.Attempts < 1 {
			v.RetryPolicy.Attempts = 1
		}
		return &Task{Kind: TaskKindDelegateAgent, Delegate: &v}, nil
	default:
		return nil, fmt.Errorf("unknown task type %q", tag.Type)
	}
}
