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

// Package engine implements the Step Loop (C8): the per-run state machine
// that drives an agent network one step at a time until a terminal action,
// enforcing the max-steps guardrail and switching agents on routing. It is
// the only caller of the task-group scheduler (C9), which it re-enters
// recursively to run delegated agents.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentnet/internal/action"
	"github.com/kadirpekel/agentnet/internal/apperrors"
	"github.com/kadirpekel/agentnet/internal/executor"
	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/llmdecide"
	"github.com/kadirpekel/agentnet/internal/observability"
	"github.com/kadirpekel/agentnet/internal/prompt"
	"github.com/kadirpekel/agentnet/internal/rundata"
	"github.com/kadirpekel/agentnet/internal/runconfig"
	"github.com/kadirpekel/agentnet/internal/runlog"
	"github.com/kadirpekel/agentnet/internal/taskgroup"
)

// DefaultMaxSteps is the max-steps guardrail default from spec.md §5.
const DefaultMaxSteps = 10

// RecentLogLines is how many prior log entries the prompt's "Execution log
// summary" section carries, per spec.md §4.6.
const RecentLogLines = 10

// Request is one top-level /run invocation.
type Request struct {
	Graph        *graph.CompiledGraph
	AgentKey     string // optional; falls back to Graph.DefaultAgentKey
	UserMessage  string
	SystemParams map[string]any
	Model        string
	MaxSteps     int
	TraceID      string // optional; generated if empty

	// OnLogStart, if set, is called once the run's ExecutionLog exists but
	// before the first step, letting a caller (the /runs/{id}/stream SSE
	// handler) Subscribe to live step events for this trace_id.
	OnLogStart func(*runlog.ExecutionLog)
}

// Engine drives the step loop for one or more independent runs. It holds no
// per-run state; everything mutable lives in the run's ExecutionLog and
// ToolStore, constructed fresh by Run/RunNested.
type Engine struct {
	Builder   *runconfig.Builder
	Executor  *executor.Executor
	Decider   llmdecide.Decider
	Scheduler *taskgroup.Scheduler
	Now       func() int64

	// Tracer and Metrics are both optional; a nil value disables the
	// corresponding instrumentation without branching at each call site.
	Tracer  *observability.Tracer
	Metrics *observability.Metrics
}

// New builds an Engine and wires its own task-group scheduler, closing the
// C8/C9 recursion without C9 importing this package.
func New(builder *runconfig.Builder, ex *executor.Executor, decider llmdecide.Decider, policy *graph.ExecutionLogPolicy, now func() int64) *Engine {
	e := &Engine{Builder: builder, Executor: ex, Decider: decider, Now: now}
	e.Scheduler = taskgroup.New(ex, e, policy)
	return e
}

// Run executes one top-level run synchronously to completion.
func (e *Engine) Run(ctx context.Context, req Request) (*rundata.RunArtifact, error) {
	agentKey := req.AgentKey
	if agentKey == "" {
		agentKey = req.Graph.DefaultAgentKey
	}
	if agentKey == "" {
		return nil, apperrors.New(apperrors.KindConfigMissing, "engine", "Run", "no agent_key given and no default_agent_key in snapshot", nil)
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	return e.run(ctx, runParams{
		graph:                req.Graph,
		agentKey:             agentKey,
		userMessage:          req.UserMessage,
		systemParams:         req.SystemParams,
		model:                req.Model,
		maxSteps:             maxSteps,
		allowRespondOverride: true,
		traceID:              traceID,
		onLogStart:           req.OnLogStart,
	})
}

// RunNested implements taskgroup.Runner: a DelegateAgentTask detail is run
// as an isolated, recursive step loop with allow_respond forced false and
// system_params.delegation injected, per spec.md §4.9.
func (e *Engine) RunNested(ctx context.Context, req taskgroup.NestedRunRequest) (*rundata.RunArtifact, error) {
	delegation := map[string]any{
		"assignment":   req.Assignment,
		"parent_agent": req.ParentAgentKey,
		"group_id":     req.GroupID,
		"task_id":      req.TaskID,
	}
	for k, v := range req.ContextOverrides {
		delegation[k] = v
	}

	systemParams := make(map[string]any, len(req.SystemParamsBase)+1)
	for k, v := range req.SystemParamsBase {
		systemParams[k] = v
	}
	systemParams["delegation"] = delegation

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}

	return e.run(ctx, runParams{
		graph:                req.Graph,
		agentKey:             req.AgentKey,
		userMessage:          req.Assignment,
		systemParams:         systemParams,
		model:                req.Model,
		maxSteps:             maxSteps,
		allowRespondOverride: false,
		traceID:              uuid.NewString(),
	})
}

type runParams struct {
	graph                *graph.CompiledGraph
	agentKey             string
	userMessage          string
	systemParams         map[string]any
	model                string
	maxSteps             int
	allowRespondOverride bool
	traceID              string
	onLogStart           func(*runlog.ExecutionLog)
}

// run is the shared step-loop body for both top-level and nested/delegated
// invocations.
func (e *Engine) run(ctx context.Context, p runParams) (*rundata.RunArtifact, error) {
	log := runlog.New(p.traceID, p.graph.ExecutionLog, e.Now)
	if p.onLogStart != nil {
		p.onLogStart(log)
	}
	toolStore := runlog.NewToolStore()
	// handoffContext is a map keyed by lower-cased agent key, consumed at
	// most once by the agent it targets (spec.md §4.8 step 4).
	handoffContext := map[string]map[string]any{}

	runStart := e.Now()
	currentAgent := p.agentKey
	cumulativeUsage := runlog.Usage{}

	finalize := func(status, errMsg, actionType string, response map[string]any) *rundata.RunArtifact {
		durationMS := e.Now() - runStart
		e.Metrics.ObserveRun(status, float64(durationMS)/1000)
		return &rundata.RunArtifact{
			TraceID: p.traceID,
			Final: rundata.FinalResult{
				Status: status, Response: response, ActionType: actionType, Error: errMsg,
			},
			SystemParams:  p.systemParams,
			Model:         p.model,
			ExecutionLog:  log.Entries(),
			ToolLog:       toolStore.All(),
			StepEvents:    log.Events(0),
			UsageTotals:   cumulativeUsage,
			RunDurationMS: durationMS,
		}
	}

	for step := 0; step < p.maxSteps; step++ {
		stepStart := e.Now()
		ctx, span := e.Tracer.StartStep(ctx, p.traceID, currentAgent, step)

		rc, err := e.Builder.Build(p.graph, currentAgent, p.allowRespondOverride, p.systemParams)
		if err != nil {
			span.End()
			return finalize("error", err.Error(), "", nil), nil
		}

		epoch := log.StartAgentEpoch(rc.CurrentAgent.Key)
		fullToolOutputs := toolStore.CollectFullFor(log, rc.CurrentAgent.Key, epoch)
		// CollectFullFor yields insertion order; the prompt lists newest first.
		for i, j := 0, len(fullToolOutputs)-1; i < j; i, j = i+1, j-1 {
			fullToolOutputs[i], fullToolOutputs[j] = fullToolOutputs[j], fullToolOutputs[i]
		}

		key := strings.ToLower(rc.CurrentAgent.Key)
		hctx := handoffContext[key]
		delete(handoffContext, key)

		promptText := prompt.Build(rc, prompt.Input{
			UserMessage:    p.userMessage,
			HandoffContext: hctx,
			ToolOutputs:    fullToolOutputs,
			RecentLogLines: log.RecentSummary(RecentLogLines),
		})

		decideStart := e.Now()
		decision, decErr := e.Decider.Decide(ctx, promptText, p.model)
		decideCompleted := e.Now()

		stepUsage := decision.Usage
		cumulativeUsage = cumulativeUsage.Add(stepUsage)

		if decErr != nil {
			log.AppendSystemMessage(fmt.Sprintf("llm decide failed for agent %s: %v", rc.CurrentAgent.Key, decErr))
			span.End()
			return finalize("error", decErr.Error(), "", nil), nil
		}

		instr := decision.Parsed
		outcome := e.dispatch(ctx, instr, rc, log, toolStore, step, epoch, p)

		log.AppendAgentStep(runlog.AgentEntry{
			Step:             step,
			Epoch:            epoch,
			AgentKey:         rc.CurrentAgent.Key,
			UserInputPreview: runlog.Preview(p.userMessage, graph.DefaultRequestPreviewChars),
			DecisionPreview:  runlog.Preview(decisionSummary(instr), graph.DefaultResponsePreviewChars),
			Decision:         decisionMap(instr),
			Prompt:           promptText,
			RawResponse:      decision.Text,
			Timing: runlog.Timing{
				StartedAtMS: decideStart, CompletedAtMS: decideCompleted, DurationMS: decideCompleted - decideStart,
			},
			StepUsage:       stepUsage,
			CumulativeUsage: cumulativeUsage,
		})

		e.Metrics.ObserveStep(rc.CurrentAgent.Key, float64(e.Now()-stepStart)/1000)
		span.End()

		if outcome.terminal {
			return finalize(outcome.status, outcome.errMsg, outcome.actionType, outcome.response), nil
		}
		if outcome.nextAgent != "" {
			handoffContext[strings.ToLower(outcome.nextAgent)] = outcome.handoff
			currentAgent = outcome.nextAgent
		}
	}

	return finalize("error", "max_steps_exceeded", "", nil), nil
}

// stepOutcome is the step loop's internal view of what one dispatched
// action produced, before it is folded into the final artifact or the next
// iteration's current_agent.
type stepOutcome struct {
	terminal   bool
	status     string
	errMsg     string
	actionType string
	response   map[string]any
	nextAgent  string
	handoff    map[string]any
}

// dispatch executes (or, for TASK_GROUP, schedules) one Instruction and
// translates the result into a stepOutcome per spec.md §4.8 step 10.
func (e *Engine) dispatch(
	ctx context.Context,
	instr *action.Instruction,
	rc *runconfig.RunConfig,
	log *runlog.ExecutionLog,
	toolStore *runlog.ToolStore,
	step, epoch int,
	p runParams,
) stepOutcome {
	if instr.Action.Type == action.TypeTaskGroup {
		return e.dispatchTaskGroup(ctx, instr, rc, log, toolStore, step, epoch, p)
	}

	result, err := e.Executor.Execute(ctx, instr, rc)
	if err != nil {
		return stepOutcome{terminal: true, status: "error", errMsg: err.Error()}
	}
	if result.Status == executor.StatusRetry {
		log.AppendSystemMessage(fmt.Sprintf("instruction rejected for agent %s: %s", rc.CurrentAgent.Key, result.Error))
		return stepOutcome{terminal: true, status: "error", errMsg: result.Error}
	}

	switch instr.Action.Type {
	case action.TypeRespond:
		if result.Status != executor.StatusOK {
			return stepOutcome{terminal: true, status: "error", errMsg: result.Error}
		}
		return stepOutcome{terminal: true, status: "ok", response: result.Response}

	case action.TypeTaskRespond:
		if result.Status != executor.StatusOK {
			return stepOutcome{terminal: true, status: "error", errMsg: result.Error}
		}
		return stepOutcome{terminal: true, status: "ok", actionType: "TASK_RESPOND", response: result.Response}

	case action.TypeRoute:
		if result.Status != executor.StatusOK && result.Status != executor.StatusNotImplemented {
			return stepOutcome{terminal: true, status: "error", errMsg: result.Error}
		}
		return stepOutcome{nextAgent: result.NextAgent, handoff: instr.Action.Route.Context}

	case action.TypeUseTool:
		// A gate rejection (tool_not_permitted, tool_not_configured, a params
		// merge failure, or an unresolvable provider_type) never reached the
		// provider: no tool entry is logged and the run terminates. A
		// provider-level failure (result.ToolName set) is non-fatal: the log
		// records it and the loop continues so the model can observe and
		// adapt on its next turn.
		if result.Status == executor.StatusOK || (result.Status == executor.StatusError && result.ToolName != "") {
			e.appendToolLog(log, toolStore, p.graph.ExecutionLog, result, step, epoch, rc.CurrentAgent.Key, "", "", 0)
			return stepOutcome{}
		}
		return stepOutcome{terminal: true, status: "error", errMsg: result.Error}

	default:
		return stepOutcome{terminal: true, status: "error", errMsg: fmt.Sprintf("unknown action type %q", instr.Action.Type)}
	}
}

func (e *Engine) dispatchTaskGroup(
	ctx context.Context,
	instr *action.Instruction,
	rc *runconfig.RunConfig,
	log *runlog.ExecutionLog,
	toolStore *runlog.ToolStore,
	step, epoch int,
	p runParams,
) stepOutcome {
	if !rc.AllowTaskGroup {
		log.AppendSystemMessage(fmt.Sprintf("instruction rejected for agent %s: task_group_not_permitted", rc.CurrentAgent.Key))
		return stepOutcome{terminal: true, status: "error", errMsg: "task_group_not_permitted"}
	}

	outcome := e.Scheduler.Dispatch(
		ctx, rc, instr.Action.TaskGroup, log, toolStore, step, epoch, rc.CurrentAgent.Key, e.Now,
		p.graph, p.model, p.systemParams,
	)

	log.AppendTaskGroupStep(runlog.TaskGroupEntry{
		Step: step, Epoch: epoch, AgentKey: rc.CurrentAgent.Key,
		GroupID: instr.Action.TaskGroup.GroupID, Status: outcome.Status, Tasks: outcome.Tasks,
	})

	if outcome.Status != "ok" {
		return stepOutcome{terminal: true, status: "error", actionType: "TASK_GROUP", errMsg: outcome.Error}
	}
	return stepOutcome{}
}

func (e *Engine) appendToolLog(
	log *runlog.ExecutionLog,
	toolStore *runlog.ToolStore,
	policy *graph.ExecutionLogPolicy,
	result *executor.Result,
	step, epoch int,
	agentKey, groupID, parentTaskID string,
	attempt int,
) {
	status := "ok"
	if result.Status != executor.StatusOK {
		status = "error"
	}
	var responsePreviewValue any = result.ToolResult
	if status != "ok" {
		responsePreviewValue = map[string]any{"error": result.Error}
	}

	e.Metrics.ObserveToolCall(result.ToolName, status, float64(result.DurationMS)/1000)

	execID := toolStore.Put(runlog.ToolRecord{
		AgentKey: agentKey, ToolKey: result.ToolName, MergedParams: result.ToolParams,
		FullResult: result.ToolResult, Epoch: epoch, Status: status,
		DurationMS: result.DurationMS, GroupID: groupID, ParentTaskID: parentTaskID, Attempt: attempt,
	})
	log.AppendToolStep(runlog.ToolEntry{
		Step: step, Epoch: epoch, AgentKey: agentKey, ToolKey: result.ToolName, ExecutionID: execID,
		RequestPreview:  runlog.RequestPreview(policy, result.ToolName, result.ToolParams),
		ResponsePreview: runlog.ResponsePreview(policy, result.ToolName, responsePreviewValue),
		Status:          status, DurationMS: result.DurationMS,
		GroupID: groupID, ParentTaskID: parentTaskID, Attempt: attempt,
	})
}

func decisionSummary(instr *action.Instruction) string {
	if instr == nil {
		return ""
	}
	switch instr.Action.Type {
	case action.TypeUseTool:
		return fmt.Sprintf("USE_TOOL %s", instr.Action.UseTool.ToolName)
	case action.TypeRoute:
		return fmt.Sprintf("ROUTE_TO_AGENT %s", instr.Action.Route.TargetAgentName)
	case action.TypeRespond:
		return "RESPOND"
	case action.TypeTaskRespond:
		return "TASK_RESPOND"
	case action.TypeTaskGroup:
		return fmt.Sprintf("TASK_GROUP (%d tasks)", len(instr.Action.TaskGroup.Tasks))
	default:
		return string(instr.Action.Type)
	}
}

func decisionMap(instr *action.Instruction) map[string]any {
	if instr == nil {
		return nil
	}
	m := map[string]any{"reasoning": instr.Reasoning, "type": string(instr.Action.Type)}
	switch instr.Action.Type {
	case action.TypeUseTool:
		m["tool_name"] = instr.Action.UseTool.ToolName
		m["tool_params"] = instr.Action.UseTool.ToolParams
	case action.TypeRoute:
		m["target_agent_name"] = instr.Action.Route.TargetAgentName
		m["context"] = instr.Action.Route.Context
	case action.TypeRespond:
		m["payload"] = instr.Action.Respond.Payload
	case action.TypeTaskRespond:
		m["payload"] = instr.Action.TaskRespond.Payload
	case action.TypeTaskGroup:
		m["group_id"] = instr.Action.TaskGroup.GroupID
		m["task_count"] = len(instr.Action.TaskGroup.Tasks)
	}
	return m
}
