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

import "testing"

func TestParseInstructionUseTool(t *testing.T) {
	in, err := ParseInstruction([]byte(`{
		"reasoning": "need data",
		"action": {"type": "USE_TOOL", "tool_name": "search", "tool_params": {"q": "go"}}
	}`))
	if err != nil {
		t.Fatalf("ParseInstruction: %v", err)
	}
	if in.Action.Type != TypeUseTool || in.Action.UseTool == nil {
		t.Fatalf("expected a populated UseTool variant, got %+v", in.Action)
	}
	if in.Action.UseTool.ToolName != "search" {
		t.Fatalf("unexpected tool name: %q", in.Action.UseTool.ToolName)
	}
	if in.Action.Route != nil || in.Action.Respond != nil {
		t.Fatal("expected only the USE_TOOL variant field to be populated")
	}
}

func TestParseInstructionRoute(t *testing.T) {
	in, err := ParseInstruction([]byte(`{
		"reasoning": "handoff",
		"action": {"type": "ROUTE_TO_AGENT", "target_agent_name": "billing", "context": {"k": "v"}}
	}`))
	if err != nil {
		t.Fatalf("ParseInstruction: %v", err)
	}
	if in.Action.Route == nil || in.Action.Route.TargetAgentName != "billing" {
		t.Fatalf("unexpected route action: %+v", in.Action.Route)
	}
}

func TestParseInstructionRespond(t *testing.T) {
	in, err := ParseInstruction([]byte(`{"reasoning": "done", "action": {"type": "RESPOND", "payload": "all set"}}`))
	if err != nil {
		t.Fatalf("ParseInstruction: %v", err)
	}
	if in.Action.Respond == nil {
		t.Fatal("expected a populated Respond variant")
	}
	normalized := Normalize(in.Action.Respond.Payload)
	if normalized["message"] != "all set" {
		t.Fatalf("expected a bare string payload to be lifted to {message: ...}, got %+v", normalized)
	}
}

func TestParseInstructionTaskGroupRejectsEmptyTasks(t *testing.T) {
	_, err := ParseInstruction([]byte(`{"reasoning": "x", "action": {"type": "TASK_GROUP", "group_id": "g1", "tasks": []}}`))
	if err == nil {
		t.Fatal("expected an empty task_group.tasks list to be rejected at parse time")
	}
}

func TestParseInstructionTaskGroupDecodesMixedTaskKinds(t *testing.T) {
	in, err := ParseInstruction([]byte(`{
		"reasoning": "x",
		"action": {"type": "TASK_GROUP", "group_id": "g1", "tasks": [
			{"type": "use_tool", "tool_name": "search", "tool_params": {}},
			{"type": "delegate_agent", "details": [{"agent_key": "sub", "assignment": "go"}], "retry_policy": {"attempts": 3}}
		]}
	}`))
	if err != nil {
		t.Fatalf("ParseInstruction: %v", err)
	}
	if len(in.Action.TaskGroup.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(in.Action.TaskGroup.Tasks))
	}
	if in.Action.TaskGroup.Tasks[0].Kind != TaskKindUseTool {
		t.Fatalf("expected the first task to be use_tool, got %v", in.Action.TaskGroup.Tasks[0].Kind)
	}
	if in.Action.TaskGroup.Tasks[0].UseTool.RetryPolicy.Attempts != 1 {
		t.Fatalf("expected a missing retry policy to default to 1 attempt, got %d", in.Action.TaskGroup.Tasks[0].UseTool.RetryPolicy.Attempts)
	}
	if in.Action.TaskGroup.Tasks[1].Kind != TaskKindDelegateAgent {
		t.Fatalf("expected the second task to be delegate_agent, got %v", in.Action.TaskGroup.Tasks[1].Kind)
	}
	if in.Action.TaskGroup.Tasks[1].Delegate.RetryPolicy.Attempts != 3 {
		t.Fatalf("expected the explicit retry policy to be preserved, got %d", in.Action.TaskGroup.Tasks[1].Delegate.RetryPolicy.Attempts)
	}
}

func TestParseInstructionRejectsUnknownActionType(t *testing.T) {
	_, err := ParseInstruction([]byte(`{"reasoning": "x", "action": {"type": "DO_MAGIC"}}`))
	if err == nil {
		t.Fatal("expected an unknown action type to be rejected")
	}
}

func TestParseInstructionRejectsMissingAction(t *testing.T) {
	_, err := ParseInstruction([]byte(`{"reasoning": "x"}`))
	if err == nil {
		t.Fatal("expected a missing action object to be rejected")
	}
}

func TestTaskIDDefaultsToIndexWhenUnset(t *testing.T) {
	task := Task{Kind: TaskKindUseTool, UseTool: &UseToolTask{ToolName: "search"}}
	if got := task.TaskID(2); got != "2" {
		t.Fatalf("expected the index as a fallback task id, got %q", got)
	}

	task.UseTool.TaskID = "t-custom"
	if got := task.TaskID(2); got != "t-custom" {
		t.Fatalf("expected the explicit task id to win, got %q", got)
	}
}

func TestGetRetryPolicyDefaultsToOneAttempt(t *testing.T) {
	task := Task{Kind: TaskKindDelegateAgent, Delegate: &DelegateAgentTask{}}
	if got := task.GetRetryPolicy().Attempts; got != 1 {
		t.Fatalf("expected a zero-value retry policy to default to 1 attempt, got %d", got)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(map[string]any{"a": 1})["a"]; got != 1 {
		t.Fatal("expected a map payload to pass through unchanged")
	}
	if got := Normalize(nil); len(got) != 0 {
		t.Fatalf("expected a nil payload to normalize to an empty map, got %+v", got)
	}
	if got := Normalize(42)["message"]; got != "42" {
		t.Fatal("expected a non-string, non-map payload to be stringified under message")
	}
}

func TestActionValidateRejectsMismatchedPayload(t *testing.T) {
	a := &Action{Type: TypeUseTool}
	if err := a.Validate(); err == nil {
		t.Fatal("expected Validate to reject a USE_TOOL action with a nil payload")
	}
}
