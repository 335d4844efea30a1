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

// Package runconfig builds the per-step RunConfig (C2): a projection of the
// CompiledGraph for one agent, merging caller-supplied system params over
// process-wide defaults.
package runconfig

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentnet/internal/apperrors"
	"github.com/kadirpekel/agentnet/internal/graph"
)

// RunConfig is the view over one agent for one step.
type RunConfig struct {
	CurrentAgent     *graph.CompiledAgent
	EquippedTools    []string
	ToolsMap         map[string]graph.CompiledTool // keyed by original-case tool key
	AllowedRoutes    []string
	RouteDescriptions map[string]string // agent key -> description
	AllowRespond     bool
	AllowTaskGroup   bool
	AllowTaskRespond bool
	SystemParams     map[string]any
	Prompt           string
	Respond          *graph.RespondPolicy
}

// DefaultSystemParams are process-wide defaults merged under caller overrides.
// Populated once at startup (the "system-parameter defaults cache" singleton
// from spec.md §5/§9) and passed into Build by the caller.
type DefaultSystemParams map[string]any

// Builder projects a CompiledGraph into per-step RunConfigs.
type Builder struct {
	Defaults DefaultSystemParams
}

// NewBuilder creates a Builder with the given process-wide defaults.
func NewBuilder(defaults DefaultSystemParams) *Builder {
	if defaults == nil {
		defaults = DefaultSystemParams{}
	}
	return &Builder{Defaults: defaults}
}

// Build resolves a RunConfig for agentKey within g.
//
// allowRespondOverride lets a caller (e.g. the task-group scheduler
// delegating to a child agent) force allow_respond=false regardless of the
// agent's own flag, per spec.md §4.9.
func (b *Builder) Build(g *graph.CompiledGraph, agentKey string, allowRespondOverride bool, callerSystemParams map[string]any) (*RunConfig, error) {
	agent, ok := g.AgentByKey(agentKey)
	if !ok {
		return nil, apperrors.New(apperrors.KindConfigMissing, "runconfig", "Build",
			fmt.Sprintf("agent_not_in_snapshot: %q", agentKey), nil)
	}

	toolsMap := make(map[string]graph.CompiledTool, len(agent.EquippedTools))
	for _, key := range agent.EquippedTools {
		// Tolerant policy: skip equipped keys absent from the graph to survive
		// snapshot drift (spec.md §4.2).
		if tool, ok := g.ToolByKey(key); ok {
			toolsMap[tool.Key] = *tool
		}
	}

	routeDescriptions := make(map[string]string, len(agent.AllowedRoutes))
	for _, routeKey := range agent.AllowedRoutes {
		if other, ok := g.AgentByKey(routeKey); ok {
			routeDescriptions[other.Key] = other.Description
		}
	}

	systemParams := mergeSystemParams(b.Defaults, callerSystemParams)
	if _, ok := systemParams["dialogflow_session_id"]; !ok {
		systemParams["dialogflow_session_id"] = uuid.NewString()
	}

	return &RunConfig{
		CurrentAgent:      agent,
		EquippedTools:     agent.EquippedTools,
		ToolsMap:          toolsMap,
		AllowedRoutes:     agent.AllowedRoutes,
		RouteDescriptions: routeDescriptions,
		AllowRespond:      agent.AllowRespond && allowRespondOverride,
		AllowTaskGroup:    agent.AllowTaskGroup,
		AllowTaskRespond:  agent.AllowTaskRespond,
		SystemParams:      systemParams,
		Prompt:            agent.Prompt,
		Respond:           g.Respond,
	}, nil
}

func mergeSystemParams(defaults DefaultSystemParams, caller map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(caller))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range caller {
		merged[k] = v
	}
	return merged
}

// HasAnyTools reports whether the agent has at least one equipped tool
// present in the graph — used by the prompt builder to decide whether to
// show the USE_TOOL action at all.
func (c *RunConfig) HasAnyTools() bool {
	return len(c.ToolsMap) > 0
}

// HasAnyRoutes reports whether the agent may route anywhere.
func (c *RunConfig) HasAnyRoutes() bool {
	return len(c.AllowedRoutes) > 0
}

// IsToolEquipped reports whether toolName is in the agent's equipped list
// (case-sensitive — tool keys, unlike agent keys, are matched exactly at
// the gate per the executor contract).
func (c *RunConfig) IsToolEquipped(toolName string) bool {
	for _, t := range c.EquippedTools {
		if t == toolName {
			return true
		}
	}
	return false
}

// IsRouteAllowed reports whether target is in the agent's allowed_routes.
func (c *RunConfig) IsRouteAllowed(target string) bool {
	for _, r := range c.AllowedRoutes {
		if strings.EqualFold(r, target) {
			return true
		}
	}
	return false
}
