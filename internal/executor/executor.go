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

// Package executor implements the Instruction Executor (C4): it gates one
// chosen action against a RunConfig and, for USE_TOOL, performs the
// parameter merge (spec.md §4.3) before dispatching to the tool registry.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kadirpekel/agentnet/internal/action"
	"github.com/kadirpekel/agentnet/internal/apperrors"
	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/runconfig"
	"github.com/kadirpekel/agentnet/internal/tools"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Status is the OrchestratorResult's terminal/non-terminal disposition.
type Status string

const (
	StatusOK            Status = "ok"
	StatusNotImplemented Status = "not_implemented"
	StatusRetry         Status = "retry"
	StatusError         Status = "error"
)

// Result is the OrchestratorResult returned by Execute.
type Result struct {
	Status     Status
	Response   map[string]any
	NextAgent  string
	Error      string
	ToolName   string
	ToolParams map[string]any
	ToolResult map[string]any
	DurationMS int64
}

// Executor gates and dispatches one Instruction against a RunConfig.
type Executor struct {
	registry *tools.Registry
}

// New builds an Executor backed by registry.
func New(registry *tools.Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute implements the C4 contract. It must not be called with a
// TASK_GROUP action — task groups are the task-group scheduler's (C9)
// responsibility, entered directly from the step loop.
func (e *Executor) Execute(ctx context.Context, instr *action.Instruction, cfg *runconfig.RunConfig) (*Result, error) {
	act := instr.Action
	switch act.Type {
	case action.TypeRespond:
		if !cfg.AllowRespond {
			return &Result{Status: StatusRetry, Error: "respond_not_permitted"}, nil
		}
		return &Result{Status: StatusOK, Response: action.Normalize(act.Respond.Payload)}, nil

	case action.TypeTaskRespond:
		if !cfg.AllowTaskRespond {
			return &Result{Status: StatusRetry, Error: "task_respond_not_permitted"}, nil
		}
		return &Result{Status: StatusOK, Response: action.Normalize(act.TaskRespond.Payload)}, nil

	case action.TypeRoute:
		if !cfg.IsRouteAllowed(act.Route.TargetAgentName) {
			return &Result{Status: StatusRetry, Error: "route_not_permitted"}, nil
		}
		return &Result{Status: StatusNotImplemented, NextAgent: act.Route.TargetAgentName}, nil

	case action.TypeTaskGroup:
		if !cfg.AllowTaskGroup {
			return &Result{Status: StatusRetry, Error: "task_group_not_permitted"}, nil
		}
		return nil, fmt.Errorf("executor: TASK_GROUP must be handled by the task-group scheduler")

	case action.TypeUseTool:
		return e.executeUseTool(ctx, act.UseTool, cfg)

	default:
		return &Result{Status: StatusError, Error: fmt.Sprintf("unknown action type %q", act.Type)}, nil
	}
}

func (e *Executor) executeUseTool(ctx context.Context, use *action.UseTool, cfg *runconfig.RunConfig) (*Result, error) {
	if !cfg.IsToolEquipped(use.ToolName) {
		return &Result{Status: StatusRetry, Error: "tool_not_permitted"}, nil
	}
	tool, ok := cfg.ToolsMap[use.ToolName]
	if !ok {
		return &Result{Status: StatusRetry, Error: "tool_not_configured"}, nil
	}

	merged, err := MergeParams(&tool, use.ToolParams, cfg.SystemParams)
	if err != nil {
		return &Result{Status: StatusRetry, Error: err.Error()}, nil
	}

	provider, ok := e.registry.Resolve(tool.ProviderType)
	if !ok {
		return &Result{Status: StatusError, Error: tools.ErrUnknownProviderType(tool.ProviderType).Error()}, nil
	}

	start := time.Now()
	out, runErr := provider.Run(ctx, tools.Input{Params: merged, System: cfg.SystemParams, Metadata: tool.Metadata})
	duration := time.Since(start)

	if runErr != nil {
		return &Result{
			Status: StatusError, Error: runErr.Error(),
			ToolName: tool.Key, ToolParams: merged, DurationMS: duration.Milliseconds(),
		}, nil
	}
	if !out.OK {
		return &Result{
			Status: StatusError, Error: out.Error,
			ToolName: tool.Key, ToolParams: merged, DurationMS: duration.Milliseconds(),
		}, nil
	}

	return &Result{
		Status: StatusOK, ToolName: tool.Key, ToolParams: merged,
		ToolResult: out.Result, DurationMS: duration.Milliseconds(),
	}, nil
}

// MergeParams implements the five-step parameter merge of spec.md §4.3.
// It is exported so the task-group scheduler (C9) can reuse it for
// synthetic UseToolTask invocations.
func MergeParams(tool *graph.CompiledTool, agentParams map[string]any, systemParams map[string]any) (map[string]any, error) {
	// Step 1: reject agent-supplied system params.
	var offending []string
	for key := range agentParams {
		if spec, ok := tool.ParamsSchema[key]; ok && spec.Source == graph.ParamSourceSystem {
			offending = append(offending, key)
		}
	}
	if len(offending) > 0 {
		sort.Strings(offending)
		return nil, fmt.Errorf("system_params_not_allowed: %v", offending)
	}

	merged := make(map[string]any, len(agentParams)+len(tool.ParamsSchema))
	for k, v := range agentParams {
		merged[k] = v
	}

	// Step 2: require agent-required params.
	var missing []string
	for key, spec := range tool.ParamsSchema {
		source := spec.Source
		if source == "" {
			source = graph.ParamSourceAgent
		}
		if source == graph.ParamSourceAgent && spec.Required {
			if _, ok := agentParams[key]; !ok {
				missing = append(missing, key)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing_required_params: %v", missing)
	}

	// Step 3: inject system params.
	var missingSystem []string
	for key, spec := range tool.ParamsSchema {
		if spec.Source != graph.ParamSourceSystem {
			continue
		}
		val, ok := systemParams[key]
		if !ok {
			if spec.Required {
				missingSystem = append(missingSystem, key)
			}
			continue
		}
		merged[key] = val
	}
	if len(missingSystem) > 0 {
		sort.Strings(missingSystem)
		return nil, fmt.Errorf("missing_system_param: %v", missingSystem)
	}

	// Step 4: apply defaults.
	for key, spec := range tool.ParamsSchema {
		if spec.Default == nil {
			continue
		}
		if _, ok := merged[key]; !ok {
			merged[key] = spec.Default
		}
	}

	// Step 5: validate agent-facing JSON Schema against the raw agent params.
	if schema, ok := tool.AgentParamsJSONSchema(); ok {
		if err := validateAgentParams(schema, agentParams); err != nil {
			return nil, fmt.Errorf("tool_params_schema_violation: %w", err)
		}
	}

	return merged, nil
}

func validateAgentParams(schemaDoc map[string]any, params map[string]any) error {
	encoded, err := json.Marshal(schemaDoc)
	if err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("agent_params.json", bytes.NewReader(encoded)); err != nil {
		return err
	}
	schema, err := compiler.Compile("agent_params.json")
	if err != nil {
		return err
	}

	// jsonschema validates decoded JSON values (float64 for numbers); round-trip
	// through JSON to normalize Go-native types the same way the wire decoder would.
	reencoded, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var normalized any
	if err := json.Unmarshal(reencoded, &normalized); err != nil {
		return err
	}

	return schema.Validate(normalized)
}
