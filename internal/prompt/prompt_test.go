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

package prompt

import (
	"strings"
	"testing"

	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/runconfig"
	"github.com/kadirpekel/agentnet/internal/runlog"
)

func baseConfig() *runconfig.RunConfig {
	return &runconfig.RunConfig{
		CurrentAgent: &graph.CompiledAgent{Key: "primary"},
		Prompt:       "You are a helpful agent.",
		AllowRespond: true,
	}
}

func TestBuildIncludesBasePromptAndUserMessage(t *testing.T) {
	out := Build(baseConfig(), Input{UserMessage: "what's the weather"})
	if !strings.Contains(out, "You are a helpful agent.") {
		t.Fatal("expected the agent's base prompt to appear")
	}
	if !strings.Contains(out, "what's the weather") {
		t.Fatal("expected the user message to appear")
	}
	if !strings.Contains(out, "### RESPOND") {
		t.Fatal("expected a RESPOND section when AllowRespond is true")
	}
}

func TestBuildOmitsSectionsNotAllowed(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowRespond = false
	out := Build(cfg, Input{UserMessage: "hi"})
	if strings.Contains(out, "### RESPOND") {
		t.Fatal("must not show RESPOND when the agent cannot respond")
	}
	if strings.Contains(out, "### USE_TOOL") {
		t.Fatal("must not show USE_TOOL when the agent has no equipped tools")
	}
	if strings.Contains(out, "### ROUTE_TO_AGENT") {
		t.Fatal("must not show ROUTE_TO_AGENT when the agent has no allowed routes")
	}
}

func TestBuildListsOnlyEquippedToolsByName(t *testing.T) {
	cfg := baseConfig()
	cfg.ToolsMap = map[string]graph.CompiledTool{
		"search": {Key: "search", Description: "Looks things up."},
	}
	out := Build(cfg, Input{UserMessage: "hi"})
	if !strings.Contains(out, "search") {
		t.Fatal("expected the equipped tool's key to appear")
	}
	if !strings.Contains(out, "Looks things up.") {
		t.Fatal("expected the tool's description to appear")
	}
	if strings.Contains(out, "unknown-tool") {
		t.Fatal("must never invent a tool name not present in ToolsMap")
	}
}

func TestBuildListsOnlyAllowedRoutes(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowedRoutes = []string{"billing"}
	cfg.RouteDescriptions = map[string]string{"billing": "Handles billing questions."}
	out := Build(cfg, Input{UserMessage: "hi"})
	if !strings.Contains(out, "billing") {
		t.Fatal("expected the allowed route to appear")
	}
	if !strings.Contains(out, "Handles billing questions.") {
		t.Fatal("expected the route description to appear")
	}
}

func TestBuildIncludesToolOutputsAndLogSummary(t *testing.T) {
	out := Build(baseConfig(), Input{
		UserMessage:    "hi",
		ToolOutputs:    []runlog.ToolRecord{{ToolKey: "search", ExecutionID: "exec-1", FullResult: map[string]any{"hits": 3}}},
		RecentLogLines: []string{"step 0: tool search -> ok"},
	})
	if !strings.Contains(out, "search") || !strings.Contains(out, "exec-1") {
		t.Fatal("expected the tool output to be listed with its execution id")
	}
	if !strings.Contains(out, "step 0: tool search -> ok") {
		t.Fatal("expected the recent log summary line to appear")
	}
}

func TestBuildHandlesNoToolOutputsOrLog(t *testing.T) {
	out := Build(baseConfig(), Input{UserMessage: "hi"})
	if !strings.Contains(out, "(none)") {
		t.Fatal("expected a (none) placeholder for empty tool outputs and log")
	}
}
