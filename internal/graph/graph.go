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

// Package graph defines the Compiled Snapshot (C1): the immutable,
// versioned, read-only projection of an agent network consumed by the run
// engine. Snapshots are produced externally by the (out-of-scope)
// compile-and-publish step; this package only models and validates the
// shape the run engine depends on.
package graph

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/agentnet/internal/apperrors"
)

// ParamSource controls where a tool parameter's value comes from.
type ParamSource string

const (
	ParamSourceAgent  ParamSource = "agent"
	ParamSourceSystem ParamSource = "system"
	ParamSourceConst  ParamSource = "const"
	ParamSourceSecret ParamSource = "secret"
)

// ParamSpec describes one entry of a tool's params_schema.
type ParamSpec struct {
	Source   ParamSource `json:"source"`
	Required bool        `json:"required"`
	Default  any         `json:"default,omitempty"`
}

// CompiledTool is the read-only projection of one tool in the graph.
type CompiledTool struct {
	Key          string               `json:"key"`
	ProviderType string               `json:"provider_type"`
	ParamsSchema map[string]ParamSpec `json:"params_schema"`
	SecretRef    string               `json:"secret_ref,omitempty"`
	Metadata     map[string]any       `json:"metadata,omitempty"`
	Description  string               `json:"description,omitempty"`
}

// AgentParamsJSONSchema returns the agent-facing JSON Schema embedded in
// metadata, if any, used both to show the LLM a schema (C6) and to validate
// agent-supplied tool_params (C3 step 5).
func (t *CompiledTool) AgentParamsJSONSchema() (map[string]any, bool) {
	if t.Metadata == nil {
		return nil, false
	}
	schema, ok := t.Metadata["agent_params_json_schema"].(map[string]any)
	return schema, ok
}

// CompiledAgent is the read-only projection of one agent in the graph.
type CompiledAgent struct {
	Key              string   `json:"key"`
	DisplayName      string   `json:"display_name,omitempty"`
	Description      string   `json:"description,omitempty"`
	Prompt           string   `json:"prompt,omitempty"`
	AllowRespond     bool     `json:"allow_respond"`
	AllowTaskGroup   bool     `json:"allow_task_group"`
	AllowTaskRespond bool     `json:"allow_task_respond"`
	EquippedTools    []string `json:"equipped_tools,omitempty"`
	AllowedRoutes    []string `json:"allowed_routes,omitempty"`
}

// RespondPolicy is the network-level contract for the final response payload.
type RespondPolicy struct {
	PayloadSchema   map[string]any `json:"payload_schema,omitempty"`
	PayloadGuidance string         `json:"payload_guidance,omitempty"`
	PayloadExample  map[string]any `json:"payload_example,omitempty"`
}

// ExecutionLogField names one value to pull out of a tool payload for the
// execution log, in preference to dumping the whole payload. Path supports
// dot notation and bracket notation with quoted, bare, or integer keys, e.g.
// "result.items[0].name" or `response["data"]["id"]`.
type ExecutionLogField struct {
	Path     string `json:"path"`
	Label    string `json:"label,omitempty"`
	MaxChars int    `json:"max_chars,omitempty"`
}

// ToolLogExtraction is a per-tool execution-log extraction rule. When
// RequestFields/ResponseFields are set, previews render the named fields as
// "label=value" pairs instead of a truncated dump of the full payload.
type ToolLogExtraction struct {
	ToolKey            string              `json:"tool_key"`
	RequestFields      []ExecutionLogField `json:"request_fields,omitempty"`
	ResponseFields     []ExecutionLogField `json:"response_fields,omitempty"`
	RequestDefaultMax  int                 `json:"request_default_max,omitempty"`
	ResponseDefaultMax int                 `json:"response_default_max,omitempty"`
}

// DefaultRequestPreviewChars and DefaultResponsePreviewChars are the
// fallback preview limits used when a network carries no execution-log
// policy of its own.
const (
	DefaultRequestPreviewChars  = 50
	DefaultResponsePreviewChars = 100
)

// ExecutionLogPolicy configures how tool payloads are previewed in the log.
type ExecutionLogPolicy struct {
	ToolExtraction map[string]ToolLogExtraction `json:"tool_extraction,omitempty"`
}

// RequestLimitFor returns the request preview character limit for a tool key.
func (p *ExecutionLogPolicy) RequestLimitFor(toolKey string) int {
	if p != nil {
		if rule, ok := p.ToolExtraction[toolKey]; ok && rule.RequestDefaultMax > 0 {
			return rule.RequestDefaultMax
		}
	}
	return DefaultRequestPreviewChars
}

// ResponseLimitFor returns the response preview character limit for a tool key.
func (p *ExecutionLogPolicy) ResponseLimitFor(toolKey string) int {
	if p != nil {
		if rule, ok := p.ToolExtraction[toolKey]; ok && rule.ResponseDefaultMax > 0 {
			return rule.ResponseDefaultMax
		}
	}
	return DefaultResponsePreviewChars
}

// RequestFieldsFor returns the configured request field extractions for a
// tool key, or nil when the tool has none configured.
func (p *ExecutionLogPolicy) RequestFieldsFor(toolKey string) []ExecutionLogField {
	if p == nil {
		return nil
	}
	return p.ToolExtraction[toolKey].RequestFields
}

// ResponseFieldsFor returns the configured response field extractions for a
// tool key, or nil when the tool has none configured.
func (p *ExecutionLogPolicy) ResponseFieldsFor(toolKey string) []ExecutionLogField {
	if p == nil {
		return nil
	}
	return p.ToolExtraction[toolKey].ResponseFields
}

// CompiledGraph is the immutable snapshot of one network version.
type CompiledGraph struct {
	NetworkID        string          `json:"network_id"`
	VersionID        string          `json:"version_id"`
	DefaultAgentKey  string          `json:"default_agent_key,omitempty"`
	Agents           []CompiledAgent `json:"agents"`
	Tools            []CompiledTool  `json:"tools"`
	Respond          *RespondPolicy  `json:"respond,omitempty"`
	ExecutionLog     *ExecutionLogPolicy `json:"execution_log,omitempty"`

	agentIndex map[string]int // lower(key) -> index into Agents
	toolIndex  map[string]int // lower(key) -> index into Tools
}

// VersionKey returns the stringified (network_id, version_id) pair used as
// RunRecord.graph_version_key.
func (g *CompiledGraph) VersionKey() string {
	return fmt.Sprintf("%s@%s", g.NetworkID, g.VersionID)
}

// Build indexes the graph and validates its invariants: unique agent/tool
// keys (case-insensitive), no self-routes, route and default-agent
// references resolve within the graph. It must be called once after a
// snapshot is deserialized and before it is used by any run.
func (g *CompiledGraph) Build() error {
	g.agentIndex = make(map[string]int, len(g.Agents))
	for i, a := range g.Agents {
		lower := strings.ToLower(a.Key)
		if _, dup := g.agentIndex[lower]; dup {
			return apperrors.New(apperrors.KindConfigMissing, "graph", "Build",
				fmt.Sprintf("duplicate agent key %q", a.Key), nil)
		}
		g.agentIndex[lower] = i
	}

	g.toolIndex = make(map[string]int, len(g.Tools))
	for i, t := range g.Tools {
		lower := strings.ToLower(t.Key)
		if _, dup := g.toolIndex[lower]; dup {
			return apperrors.New(apperrors.KindConfigMissing, "graph", "Build",
				fmt.Sprintf("duplicate tool key %q", t.Key), nil)
		}
		g.toolIndex[lower] = i
	}

	if g.DefaultAgentKey != "" {
		if _, ok := g.AgentByKey(g.DefaultAgentKey); !ok {
			return apperrors.New(apperrors.KindConfigMissing, "graph", "Build",
				fmt.Sprintf("default_agent_key %q not in snapshot", g.DefaultAgentKey), nil)
		}
	}

	for _, a := range g.Agents {
		for _, route := range a.AllowedRoutes {
			if strings.EqualFold(route, a.Key) {
				return apperrors.New(apperrors.KindConfigMissing, "graph", "Build",
					fmt.Sprintf("agent %q routes to itself", a.Key), nil)
			}
			if _, ok := g.AgentByKey(route); !ok {
				return apperrors.New(apperrors.KindConfigMissing, "graph", "Build",
					fmt.Sprintf("agent %q routes to unknown agent %q", a.Key, route), nil)
			}
		}
	}

	return nil
}

// AgentByKey resolves an agent by case-insensitive key, preserving the
// original-case agent in the returned value.
func (g *CompiledGraph) AgentByKey(key string) (*CompiledAgent, bool) {
	idx, ok := g.agentIndex[strings.ToLower(key)]
	if !ok {
		return nil, false
	}
	return &g.Agents[idx], true
}

// ToolByKey resolves a tool by case-insensitive key.
func (g *CompiledGraph) ToolByKey(key string) (*CompiledTool, bool) {
	idx, ok := g.toolIndex[strings.ToLower(key)]
	if !ok {
		return nil, false
	}
	return &g.Tools[idx], true
}
