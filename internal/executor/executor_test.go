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

package executor

import (
	"context"
	"testing"

	"github.com/kadirpekel/agentnet/internal/action"
	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/runconfig"
	"github.com/kadirpekel/agentnet/internal/tools"
)

func echoConfig() *runconfig.RunConfig {
	return &runconfig.RunConfig{
		CurrentAgent:     &graph.CompiledAgent{Key: "primary"},
		EquippedTools:    []string{"echo"},
		ToolsMap:         map[string]graph.CompiledTool{"echo": {Key: "echo", ProviderType: "builtin:echo"}},
		AllowedRoutes:    []string{"billing"},
		AllowRespond:     true,
		AllowTaskGroup:   true,
		AllowTaskRespond: true,
		SystemParams:     map[string]any{},
	}
}

func newExecutor() *Executor {
	return New(tools.NewRegistryWithBuiltins(tools.BuiltinOptions{}))
}

func TestExecuteRespondGatesOnAllowRespond(t *testing.T) {
	ex := newExecutor()
	cfg := echoConfig()
	cfg.AllowRespond = false
	instr := &action.Instruction{Action: action.Action{Type: action.TypeRespond, Respond: &action.Respond{Payload: "hi"}}}

	res, err := ex.Execute(context.Background(), instr, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusRetry || res.Error != "respond_not_permitted" {
		t.Fatalf("expected a retry with respond_not_permitted, got %+v", res)
	}
}

func TestExecuteRespondOK(t *testing.T) {
	ex := newExecutor()
	instr := &action.Instruction{Action: action.Action{Type: action.TypeRespond, Respond: &action.Respond{Payload: "hi"}}}

	res, err := ex.Execute(context.Background(), instr, echoConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusOK || res.Response["message"] != "hi" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExecuteTaskRespondGatesOnAllowTaskRespond(t *testing.T) {
	ex := newExecutor()
	cfg := echoConfig()
	cfg.AllowTaskRespond = false
	instr := &action.Instruction{Action: action.Action{Type: action.TypeTaskRespond, TaskRespond: &action.Respond{Payload: "hi"}}}

	res, err := ex.Execute(context.Background(), instr, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusRetry || res.Error != "task_respond_not_permitted" {
		t.Fatalf("expected a retry with task_respond_not_permitted, got %+v", res)
	}
}

func TestExecuteRouteGatesOnAllowedRoutes(t *testing.T) {
	ex := newExecutor()
	instr := &action.Instruction{Action: action.Action{Type: action.TypeRoute, Route: &action.Route{TargetAgentName: "unknown"}}}

	res, err := ex.Execute(context.Background(), instr, echoConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusRetry || res.Error != "route_not_permitted" {
		t.Fatalf("expected a retry with route_not_permitted, got %+v", res)
	}
}

func TestExecuteRouteAllowedReturnsNotImplemented(t *testing.T) {
	ex := newExecutor()
	instr := &action.Instruction{Action: action.Action{Type: action.TypeRoute, Route: &action.Route{TargetAgentName: "billing"}}}

	res, err := ex.Execute(context.Background(), instr, echoConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusNotImplemented || res.NextAgent != "billing" {
		t.Fatalf("expected StatusNotImplemented carrying the next agent, got %+v", res)
	}
}

func TestExecuteTaskGroupRejectsBareDispatch(t *testing.T) {
	ex := newExecutor()
	instr := &action.Instruction{Action: action.Action{Type: action.TypeTaskGroup, TaskGroup: &action.TaskGroup{
		GroupID: "g1",
		Tasks:   []action.Task{{Kind: action.TaskKindUseTool, UseTool: &action.UseToolTask{ToolName: "echo"}}},
	}}}

	_, err := ex.Execute(context.Background(), instr, echoConfig())
	if err == nil {
		t.Fatal("expected bare Execute to refuse a TASK_GROUP action")
	}
}

func TestExecuteTaskGroupGatesBeforeRejecting(t *testing.T) {
	ex := newExecutor()
	cfg := echoConfig()
	cfg.AllowTaskGroup = false
	instr := &action.Instruction{Action: action.Action{Type: action.TypeTaskGroup, TaskGroup: &action.TaskGroup{
		GroupID: "g1",
		Tasks:   []action.Task{{Kind: action.TaskKindUseTool, UseTool: &action.UseToolTask{ToolName: "echo"}}},
	}}}

	res, err := ex.Execute(context.Background(), instr, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusRetry || res.Error != "task_group_not_permitted" {
		t.Fatalf("expected the permission gate to fire before the not-implemented refusal, got %+v err=%v", res, err)
	}
}

func TestExecuteUseToolRejectsUnequippedTool(t *testing.T) {
	ex := newExecutor()
	instr := &action.Instruction{Action: action.Action{Type: action.TypeUseTool, UseTool: &action.UseTool{ToolName: "ghost"}}}

	res, err := ex.Execute(context.Background(), instr, echoConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusRetry || res.Error != "tool_not_permitted" {
		t.Fatalf("expected tool_not_permitted, got %+v", res)
	}
}

func TestExecuteUseToolRunsEchoAndReturnsOK(t *testing.T) {
	ex := newExecutor()
	instr := &action.Instruction{Action: action.Action{Type: action.TypeUseTool, UseTool: &action.UseTool{
		ToolName: "echo", ToolParams: map[string]any{"q": "hi"},
	}}}

	res, err := ex.Execute(context.Background(), instr, echoConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusOK || res.ToolName != "echo" {
		t.Fatalf("unexpected result: %+v", res)
	}
	echoed, ok := res.ToolResult["echo"].(map[string]any)
	if !ok || echoed["q"] != "hi" {
		t.Fatalf("expected the echo provider to return its params verbatim, got %+v", res.ToolResult)
	}
}

func TestExecuteUseToolUnknownProviderTypeIsTerminalError(t *testing.T) {
	ex := newExecutor()
	cfg := echoConfig()
	cfg.ToolsMap["echo"] = graph.CompiledTool{Key: "echo", ProviderType: "builtin:not-registered"}
	instr := &action.Instruction{Action: action.Action{Type: action.TypeUseTool, UseTool: &action.UseTool{ToolName: "echo"}}}

	res, err := ex.Execute(context.Background(), instr, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusError {
		t.Fatalf("expected a terminal StatusError for an unregistered provider, got %+v", res)
	}
}

func TestMergeParamsRejectsAgentSuppliedSystemParam(t *testing.T) {
	tool := &graph.CompiledTool{ParamsSchema: map[string]graph.ParamSpec{
		"session_id": {Source: graph.ParamSourceSystem},
	}}
	_, err := MergeParams(tool, map[string]any{"session_id": "spoofed"}, map[string]any{"session_id": "real"})
	if err == nil {
		t.Fatal("expected agent-supplied system params to be rejected")
	}
}

func TestMergeParamsRequiresAgentParams(t *testing.T) {
	tool := &graph.CompiledTool{ParamsSchema: map[string]graph.ParamSpec{
		"query": {Source: graph.ParamSourceAgent, Required: true},
	}}
	_, err := MergeParams(tool, map[string]any{}, nil)
	if err == nil {
		t.Fatal("expected a missing required agent param to be rejected")
	}
}

func TestMergeParamsInjectsSystemParams(t *testing.T) {
	tool := &graph.CompiledTool{ParamsSchema: map[string]graph.ParamSpec{
		"locale": {Source: graph.ParamSourceSystem, Required: true},
	}}
	merged, err := MergeParams(tool, map[string]any{}, map[string]any{"locale": "en-US"})
	if err != nil {
		t.Fatalf("MergeParams: %v", err)
	}
	if merged["locale"] != "en-US" {
		t.Fatalf("expected locale injected from system params, got %+v", merged)
	}
}

func TestMergeParamsMissingRequiredSystemParam(t *testing.T) {
	tool := &graph.CompiledTool{ParamsSchema: map[string]graph.ParamSpec{
		"locale": {Source: graph.ParamSourceSystem, Required: true},
	}}
	_, err := MergeParams(tool, map[string]any{}, map[string]any{})
	if err == nil {
		t.Fatal("expected a missing required system param to be rejected")
	}
}

func TestMergeParamsAppliesDefaults(t *testing.T) {
	tool := &graph.CompiledTool{ParamsSchema: map[string]graph.ParamSpec{
		"limit": {Source: graph.ParamSourceConst, Default: 10},
	}}
	merged, err := MergeParams(tool, map[string]any{}, nil)
	if err != nil {
		t.Fatalf("MergeParams: %v", err)
	}
	if merged["limit"] != 10 {
		t.Fatalf("expected the default to be applied, got %+v", merged)
	}
}

func TestMergeParamsDefaultDoesNotOverrideAgentValue(t *testing.T) {
	tool := &graph.CompiledTool{ParamsSchema: map[string]graph.ParamSpec{
		"limit": {Source: graph.ParamSourceAgent, Default: 10},
	}}
	merged, err := MergeParams(tool, map[string]any{"limit": 5}, nil)
	if err != nil {
		t.Fatalf("MergeParams: %v", err)
	}
	if merged["limit"] != 5 {
		t.Fatalf("expected the agent-supplied value to win over the default, got %+v", merged)
	}
}

func TestMergeParamsValidatesAgentParamsJSONSchema(t *testing.T) {
	tool := &graph.CompiledTool{
		Metadata: map[string]any{
			"agent_params_json_schema": map[string]any{
				"type":     "object",
				"required": []any{"query"},
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
	}
	if _, err := MergeParams(tool, map[string]any{"query": 5}, nil); err == nil {
		t.Fatal("expected a schema type mismatch to be rejected")
	}
	if _, err := MergeParams(tool, map[string]any{"query": "ok"}, nil); err != nil {
		t.Fatalf("expected a schema-conformant payload to pass, got %v", err)
	}
}
