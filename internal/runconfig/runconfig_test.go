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

package runconfig

import (
	"testing"

	"github.com/kadirpekel/agentnet/internal/apperrors"
	"github.com/kadirpekel/agentnet/internal/graph"
)

func testGraph(t *testing.T) *graph.CompiledGraph {
	t.Helper()
	g := &graph.CompiledGraph{
		NetworkID: "net-1", VersionID: "v1",
		Agents: []graph.CompiledAgent{
			{
				Key: "primary", AllowRespond: true, AllowTaskGroup: true,
				EquippedTools: []string{"search", "ghost-tool"},
				AllowedRoutes: []string{"billing"},
				Prompt:        "be helpful",
			},
			{Key: "billing", Description: "handles billing"},
		},
		Tools:   []graph.CompiledTool{{Key: "search", Description: "looks things up"}},
		Respond: &graph.RespondPolicy{PayloadGuidance: "respond tersely"},
	}
	if err := g.Build(); err != nil {
		t.Fatalf("test graph failed to build: %v", err)
	}
	return g
}

func TestBuildReturnsErrorForUnknownAgent(t *testing.T) {
	b := NewBuilder(nil)
	_, err := b.Build(testGraph(t), "missing", true, nil)
	if err == nil {
		t.Fatal("expected an error for an agent not in the snapshot")
	}
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindConfigMissing {
		t.Fatalf("expected KindConfigMissing, got %v", kind)
	}
}

func TestBuildSkipsEquippedToolsMissingFromGraph(t *testing.T) {
	b := NewBuilder(nil)
	cfg, err := b.Build(testGraph(t), "primary", true, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !cfg.HasAnyTools() {
		t.Fatal("expected at least the surviving tool to be present")
	}
	if _, ok := cfg.ToolsMap["ghost-tool"]; ok {
		t.Fatal("expected a drifted equipped tool key to be silently dropped")
	}
	if _, ok := cfg.ToolsMap["search"]; !ok {
		t.Fatal("expected the valid equipped tool to survive")
	}
}

func TestBuildMergesSystemParamsWithCallerOverridingDefaults(t *testing.T) {
	b := NewBuilder(DefaultSystemParams{"locale": "en-US", "env": "prod"})
	cfg, err := b.Build(testGraph(t), "primary", true, map[string]any{"locale": "fr-FR"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.SystemParams["locale"] != "fr-FR" {
		t.Fatalf("expected caller override to win, got %v", cfg.SystemParams["locale"])
	}
	if cfg.SystemParams["env"] != "prod" {
		t.Fatalf("expected default to survive when not overridden, got %v", cfg.SystemParams["env"])
	}
	if _, ok := cfg.SystemParams["dialogflow_session_id"]; !ok {
		t.Fatal("expected a dialogflow_session_id to be synthesized when absent")
	}
}

func TestBuildPreservesCallerSuppliedDialogflowSessionID(t *testing.T) {
	b := NewBuilder(nil)
	cfg, err := b.Build(testGraph(t), "primary", true, map[string]any{"dialogflow_session_id": "sticky-id"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.SystemParams["dialogflow_session_id"] != "sticky-id" {
		t.Fatalf("expected the caller-supplied session id to be preserved, got %v", cfg.SystemParams["dialogflow_session_id"])
	}
}

func TestBuildAllowRespondOverrideForcesFalse(t *testing.T) {
	b := NewBuilder(nil)
	cfg, err := b.Build(testGraph(t), "primary", false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.AllowRespond {
		t.Fatal("expected allowRespondOverride=false to force AllowRespond false regardless of the agent's own flag")
	}
}

func TestBuildCollectsRouteDescriptions(t *testing.T) {
	b := NewBuilder(nil)
	cfg, err := b.Build(testGraph(t), "primary", true, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !cfg.HasAnyRoutes() {
		t.Fatal("expected the agent's allowed routes to be non-empty")
	}
	if cfg.RouteDescriptions["billing"] != "handles billing" {
		t.Fatalf("expected the target agent's description, got %+v", cfg.RouteDescriptions)
	}
}

func TestIsToolEquippedIsCaseSensitive(t *testing.T) {
	b := NewBuilder(nil)
	cfg, err := b.Build(testGraph(t), "primary", true, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !cfg.IsToolEquipped("search") {
		t.Fatal("expected the exact-case tool key to be equipped")
	}
	if cfg.IsToolEquipped("SEARCH") {
		t.Fatal("expected tool equip checks to be case-sensitive")
	}
}

func TestIsRouteAllowedIsCaseInsensitive(t *testing.T) {
	b := NewBuilder(nil)
	cfg, err := b.Build(testGraph(t), "primary", true, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !cfg.IsRouteAllowed("BILLING") {
		t.Fatal("expected route checks to be case-insensitive")
	}
	if cfg.IsRouteAllowed("unknown") {
		t.Fatal("expected an unlisted route to be rejected")
	}
}
