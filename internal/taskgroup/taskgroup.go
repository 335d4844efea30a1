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

// Package taskgroup implements the Task-Group Scheduler (C9): given one
// TASK_GROUP action, it runs each child task sequentially, retrying per the
// task's own retry_policy, and stops at the first task that exhausts its
// attempts. UseToolTask children execute in-process via the Instruction
// Executor; DelegateAgentTask children run a nested, recursive step loop
// through the injected Runner, keeping this package free of any dependency
// on the run engine itself.
package taskgroup

import (
	"context"

	"github.com/kadirpekel/agentnet/internal/action"
	"github.com/kadirpekel/agentnet/internal/executor"
	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/rundata"
	"github.com/kadirpekel/agentnet/internal/runconfig"
	"github.com/kadirpekel/agentnet/internal/runlog"
)

// NestedRunRequest carries everything a DelegateAgentTask detail needs to
// start an isolated, recursive invocation of the step loop.
type NestedRunRequest struct {
	Graph            *graph.CompiledGraph
	AgentKey         string
	Assignment       string
	MaxSteps         int
	ContextOverrides map[string]any
	SystemParamsBase map[string]any
	Model            string
	ParentAgentKey   string
	GroupID          string
	TaskID           string
}

// Runner executes a nested run and returns its full artifact. The run
// engine implements this by re-entering its own step loop with
// allow_respond forced false, per spec.md §4.9.
type Runner interface {
	RunNested(ctx context.Context, req NestedRunRequest) (*rundata.RunArtifact, error)
}

// Outcome is the scheduler's result for one TASK_GROUP dispatch, embedded
// verbatim as the task_group log entry's payload.
type Outcome struct {
	Status string           `json:"status"`
	Error  string           `json:"error,omitempty"`
	Tasks  []map[string]any `json:"tasks"`
}

// Scheduler dispatches one TASK_GROUP action.
type Scheduler struct {
	Executor *executor.Executor
	Runner   Runner
	Policy   *graph.ExecutionLogPolicy
}

// New builds a Scheduler.
func New(ex *executor.Executor, runner Runner, policy *graph.ExecutionLogPolicy) *Scheduler {
	return &Scheduler{Executor: ex, Runner: runner, Policy: policy}
}

// Dispatch runs group's children sequentially against cfg, appending tool
// log entries (tagged with group_id/parent_task_id/attempt) as it goes.
// graphRef, model, and systemParamsBase are threaded through to any
// DelegateAgentTask so its nested run shares the parent's graph and model.
func (s *Scheduler) Dispatch(
	ctx context.Context,
	cfg *runconfig.RunConfig,
	group *action.TaskGroup,
	log *runlog.ExecutionLog,
	toolStore *runlog.ToolStore,
	step, epoch int,
	agentKey string,
	nowMS func() int64,
	graphRef *graph.CompiledGraph,
	model string,
	systemParamsBase map[string]any,
) Outcome {
	tasks := make([]map[string]any, 0, len(group.Tasks))

	for i := range group.Tasks {
		task := &group.Tasks[i]
		taskID := task.TaskID(i)
		rp := task.GetRetryPolicy()

		var attempts []map[string]any
		var succeeded bool
		var lastErr string

		for attempt := 1; attempt <= rp.Attempts; attempt++ {
			var ok bool
			var attemptLog map[string]any
			var errMsg string

			switch task.Kind {
			case action.TaskKindUseTool:
				ok, attemptLog, errMsg = s.runUseToolAttempt(
					ctx, cfg, task.UseTool, log, toolStore, step, epoch, agentKey,
					group.GroupID, taskID, attempt, nowMS)
			case action.TaskKindDelegateAgent:
				ok, attemptLog, errMsg = s.runDelegateAttempt(
					ctx, task.Delegate, graphRef, model, systemParamsBase, agentKey,
					group.GroupID, taskID, attempt)
			}

			attempts = append(attempts, attemptLog)
			if ok {
				succeeded = true
				break
			}
			lastErr = errMsg
		}

		status := "ok"
		if !succeeded {
			status = "error"
		}
		tasks = append(tasks, map[string]any{
			"task_id":  taskID,
			"status":   status,
			"attempts": attempts,
		})

		if !succeeded {
			return Outcome{Status: "error", Error: lastErr, Tasks: tasks}
		}
	}

	return Outcome{Status: "ok", Tasks: tasks}
}

func (s *Scheduler) runUseToolAttempt(
	ctx context.Context,
	cfg *runconfig.RunConfig,
	ut *action.UseToolTask,
	log *runlog.ExecutionLog,
	toolStore *runlog.ToolStore,
	step, epoch int,
	agentKey, groupID, taskID string,
	attempt int,
	nowMS func() int64,
) (bool, map[string]any, string) {
	instr := &action.Instruction{
		Action: action.Action{
			Type:    action.TypeUseTool,
			UseTool: &action.UseTool{ToolName: ut.ToolName, ToolParams: ut.ToolParams},
		},
	}

	started := nowMS()
	result, err := s.Executor.Execute(ctx, instr, cfg)
	completed := nowMS()
	if err != nil {
		return false, map[string]any{
			"task_id": taskID, "attempt": attempt, "status": "error", "error": err.Error(),
		}, err.Error()
	}

	status := "ok"
	if result.Status != executor.StatusOK {
		status = "error"
	}

	execID := toolStore.Put(runlog.ToolRecord{
		AgentKey:      agentKey,
		ToolKey:       result.ToolName,
		MergedParams:  result.ToolParams,
		FullResult:    result.ToolResult,
		Epoch:         epoch,
		Status:        status,
		StartedAtMS:   started,
		DurationMS:    result.DurationMS,
		CompletedAtMS: completed,
		GroupID:       groupID,
		ParentTaskID:  taskID,
		Attempt:       attempt,
	})

	log.AppendToolStep(runlog.ToolEntry{
		Step:            step,
		Epoch:           epoch,
		AgentKey:        agentKey,
		ToolKey:         result.ToolName,
		ExecutionID:     execID,
		RequestPreview:  runlog.RequestPreview(s.Policy, result.ToolName, result.ToolParams),
		ResponsePreview: runlog.ResponsePreview(s.Policy, result.ToolName, toolResponsePreviewValue(result)),
		Status:          status,
		DurationMS:      result.DurationMS,
		GroupID:         groupID,
		ParentTaskID:    taskID,
		Attempt:         attempt,
	})

	attemptLog := map[string]any{
		"task_id": taskID, "attempt": attempt, "status": status, "execution_id": execID,
	}
	if status != "ok" {
		attemptLog["error"] = result.Error
		return false, attemptLog, result.Error
	}
	return true, attemptLog, ""
}

func toolResponsePreviewValue(result *executor.Result) any {
	if result.Status == executor.StatusOK {
		return result.ToolResult
	}
	return map[string]any{"error": result.Error}
}

func (s *Scheduler) runDelegateAttempt(
	ctx context.Context,
	dt *action.DelegateAgentTask,
	graphRef *graph.CompiledGraph,
	model string,
	systemParamsBase map[string]any,
	parentAgent, groupID, taskID string,
	attempt int,
) (bool, map[string]any, string) {
	var details []map[string]any

	for _, d := range dt.Details {
		overrides := make(map[string]any, len(d.ContextOverrides))
		for k, v := range d.ContextOverrides {
			overrides[k] = v
		}

		artifact, err := s.Runner.RunNested(ctx, NestedRunRequest{
			Graph:            graphRef,
			AgentKey:         d.AgentKey,
			Assignment:       d.Assignment,
			MaxSteps:         d.MaxSteps,
			ContextOverrides: overrides,
			SystemParamsBase: systemParamsBase,
			Model:            model,
			ParentAgentKey:   parentAgent,
			GroupID:          groupID,
			TaskID:           taskID,
		})
		if err != nil {
			details = append(details, map[string]any{"agent_key": d.AgentKey, "error": err.Error()})
			errMsg := err.Error()
			return false, map[string]any{
				"task_id": taskID, "attempt": attempt, "status": "error", "details": details, "error": errMsg,
			}, errMsg
		}

		details = append(details, map[string]any{"agent_key": d.AgentKey, "artifact": artifact})

		if artifact.Final.Status != "ok" || artifact.Final.ActionType != "TASK_RESPOND" {
			errMsg := artifact.Final.Error
			if errMsg == "" {
				errMsg = "delegation_failed"
			}
			return false, map[string]any{
				"task_id": taskID, "attempt": attempt, "status": "error", "details": details, "error": errMsg,
			}, errMsg
		}
	}

	return true, map[string]any{
		"task_id": taskID, "attempt": attempt, "status": "ok", "details": details,
	}, ""
}
