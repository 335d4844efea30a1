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

// Package prompt implements the Prompt Context Builder (C6): it assembles
// the single text prompt shown to the LLM from the RunConfig, the user
// message, the log so far, and the current epoch's tool outputs. Each
// permitted action is shown as one JSON example; no separate strict JSON
// Schema document is emitted for the actions. The builder never invents
// tool or route names — it only lists what the RunConfig actually carries.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/agentnet/internal/runconfig"
	"github.com/kadirpekel/agentnet/internal/runlog"
)

// Input bundles everything Build needs beyond the RunConfig.
type Input struct {
	UserMessage     string
	HandoffContext  map[string]any
	ToolOutputs     []runlog.ToolRecord // newest first, already ordered by caller
	RecentLogLines  []string           // up to last ten, "step N: kind key → status"
}

// Build assembles the prompt text for one step.
func Build(cfg *runconfig.RunConfig, in Input) string {
	var b strings.Builder

	writeBasePrompt(&b, cfg)
	writeConstraints(&b, cfg)
	writeContext(&b, in)

	return b.String()
}

func writeBasePrompt(b *strings.Builder, cfg *runconfig.RunConfig) {
	if cfg.Prompt != "" {
		b.WriteString(cfg.Prompt)
		b.WriteString("\n\n")
	}
}

func writeConstraints(b *strings.Builder, cfg *runconfig.RunConfig) {
	b.WriteString("## Available actions\n\n")
	b.WriteString("You must respond with exactly one JSON object of the form ")
	b.WriteString(`{"reasoning": "...", "action": {"type": "<ACTION>", ...}}`)
	b.WriteString(".\n\n")

	if cfg.HasAnyTools() {
		b.WriteString("### USE_TOOL\n")
		b.WriteString("Example: ")
		writeJSON(b, map[string]any{"type": "USE_TOOL", "tool_name": firstToolKey(cfg), "tool_params": map[string]any{}})
		b.WriteString("\nEquipped tools:\n")
		for _, key := range sortedToolKeys(cfg) {
			tool := cfg.ToolsMap[key]
			b.WriteString("- ")
			b.WriteString(key)
			if tool.Description != "" {
				b.WriteString(": ")
				b.WriteString(tool.Description)
			}
			if schema, ok := tool.AgentParamsJSONSchema(); ok {
				b.WriteString("\n  params schema: ")
				writeJSON(b, schema)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if cfg.HasAnyRoutes() {
		b.WriteString("### ROUTE_TO_AGENT\n")
		b.WriteString("Example: ")
		writeJSON(b, map[string]any{"type": "ROUTE_TO_AGENT", "target_agent_name": firstRouteKey(cfg), "context": map[string]any{}})
		b.WriteString("\nRoute targets:\n")
		for _, key := range sortedRouteKeys(cfg) {
			b.WriteString("- ")
			b.WriteString(key)
			if desc := cfg.RouteDescriptions[key]; desc != "" {
				b.WriteString(": ")
				b.WriteString(desc)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if cfg.AllowRespond {
		b.WriteString("### RESPOND\n")
		writeRespondBlock(b, cfg, "RESPOND")
	}

	if cfg.AllowTaskRespond {
		b.WriteString("### TASK_RESPOND\n")
		writeRespondBlock(b, cfg, "TASK_RESPOND")
	}

	if cfg.AllowTaskGroup {
		b.WriteString("### TASK_GROUP\n")
		b.WriteString("Example: ")
		writeJSON(b, map[string]any{
			"type": "TASK_GROUP",
			"tasks": []map[string]any{
				{"type": "use_tool", "tool_name": firstToolKey(cfg), "tool_params": map[string]any{}, "retry_policy": map[string]any{"attempts": 1}},
			},
		})
		b.WriteString("\n\n")
	}
}

func writeRespondBlock(b *strings.Builder, cfg *runconfig.RunConfig, actionType string) {
	b.WriteString("Example: ")
	writeJSON(b, map[string]any{"type": actionType, "payload": map[string]any{"message": "..."}})
	b.WriteString("\n")
	if cfg.Respond != nil {
		if cfg.Respond.PayloadGuidance != "" {
			b.WriteString("Guidance: ")
			b.WriteString(cfg.Respond.PayloadGuidance)
			b.WriteString("\n")
		}
		if cfg.Respond.PayloadSchema != nil {
			b.WriteString("Payload schema: ")
			writeJSON(b, cfg.Respond.PayloadSchema)
			b.WriteString("\n")
		}
		if cfg.Respond.PayloadExample != nil {
			b.WriteString("Payload example: ")
			writeJSON(b, cfg.Respond.PayloadExample)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

func writeContext(b *strings.Builder, in Input) {
	b.WriteString("## Context\n\n")
	b.WriteString("User message:\n")
	b.WriteString(in.UserMessage)
	b.WriteString("\n\n")

	if len(in.HandoffContext) > 0 {
		b.WriteString("Handoff context from the previous agent:\n")
		writeJSON(b, in.HandoffContext)
		b.WriteString("\n\n")
	}

	b.WriteString("Tool outputs (most recent first):\n")
	if len(in.ToolOutputs) == 0 {
		b.WriteString("(none)\n\n")
	} else {
		for _, rec := range in.ToolOutputs {
			b.WriteString(fmt.Sprintf("- %s (execution_id=%s): ", rec.ToolKey, rec.ExecutionID))
			writeJSON(b, rec.FullResult)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Execution log summary:\n")
	if len(in.RecentLogLines) == 0 {
		b.WriteString("(none)\n")
	} else {
		for _, line := range in.RecentLogLines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
}

func writeJSON(b *strings.Builder, v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		b.WriteString("{}")
		return
	}
	b.Write(encoded)
}

func firstToolKey(cfg *runconfig.RunConfig) string {
	keys := sortedToolKeys(cfg)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func firstRouteKey(cfg *runconfig.RunConfig) string {
	keys := sortedRouteKeys(cfg)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func sortedToolKeys(cfg *runconfig.RunConfig) []string {
	keys := make([]string, 0, len(cfg.ToolsMap))
	for k := range cfg.ToolsMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRouteKeys(cfg *runconfig.RunConfig) []string {
	keys := append([]string(nil), cfg.AllowedRoutes...)
	sort.Strings(keys)
	return keys
}
