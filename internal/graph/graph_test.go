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

package graph

import (
	"testing"

	"github.com/kadirpekel/agentnet/internal/apperrors"
)

func TestBuildRejectsDuplicateAgentKeys(t *testing.T) {
	g := &CompiledGraph{Agents: []CompiledAgent{{Key: "primary"}, {Key: "Primary"}}}
	err := g.Build()
	if err == nil {
		t.Fatal("expected an error for duplicate (case-insensitive) agent keys")
	}
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindConfigMissing {
		t.Fatalf("expected KindConfigMissing, got %v", kind)
	}
}

func TestBuildRejectsDuplicateToolKeys(t *testing.T) {
	g := &CompiledGraph{
		Agents: []CompiledAgent{{Key: "primary"}},
		Tools:  []CompiledTool{{Key: "search"}, {Key: "SEARCH"}},
	}
	if err := g.Build(); err == nil {
		t.Fatal("expected an error for duplicate tool keys")
	}
}

func TestBuildRejectsUnknownDefaultAgent(t *testing.T) {
	g := &CompiledGraph{Agents: []CompiledAgent{{Key: "primary"}}, DefaultAgentKey: "missing"}
	if err := g.Build(); err == nil {
		t.Fatal("expected an error for an unresolvable default_agent_key")
	}
}

func TestBuildRejectsSelfRoute(t *testing.T) {
	g := &CompiledGraph{Agents: []CompiledAgent{{Key: "primary", AllowedRoutes: []string{"Primary"}}}}
	if err := g.Build(); err == nil {
		t.Fatal("expected an error for an agent routing to itself")
	}
}

func TestBuildRejectsDanglingRoute(t *testing.T) {
	g := &CompiledGraph{Agents: []CompiledAgent{{Key: "primary", AllowedRoutes: []string{"ghost"}}}}
	if err := g.Build(); err == nil {
		t.Fatal("expected an error for a route to an unknown agent")
	}
}

func TestBuildAcceptsValidGraphAndIndexesCaseInsensitively(t *testing.T) {
	g := &CompiledGraph{
		NetworkID: "net-1", VersionID: "v1", DefaultAgentKey: "Primary",
		Agents: []CompiledAgent{
			{Key: "Primary", AllowedRoutes: []string{"Billing"}},
			{Key: "Billing"},
		},
		Tools: []CompiledTool{{Key: "Search"}},
	}
	if err := g.Build(); err != nil {
		t.Fatalf("expected a valid graph to build cleanly, got %v", err)
	}

	if _, ok := g.AgentByKey("PRIMARY"); !ok {
		t.Fatal("expected case-insensitive agent lookup to succeed")
	}
	if _, ok := g.ToolByKey("search"); !ok {
		t.Fatal("expected case-insensitive tool lookup to succeed")
	}
	if _, ok := g.AgentByKey("nope"); ok {
		t.Fatal("expected lookup of an unknown agent to fail")
	}
	if g.VersionKey() != "net-1@v1" {
		t.Fatalf("unexpected version key: %q", g.VersionKey())
	}
}

func TestExecutionLogPolicyLimitsFallBackToDefaults(t *testing.T) {
	var p *ExecutionLogPolicy
	if got := p.RequestLimitFor("search"); got != DefaultRequestPreviewChars {
		t.Fatalf("expected default request limit from a nil policy, got %d", got)
	}
	if got := p.ResponseLimitFor("search"); got != DefaultResponsePreviewChars {
		t.Fatalf("expected default response limit from a nil policy, got %d", got)
	}

	p = &ExecutionLogPolicy{ToolExtraction: map[string]ToolLogExtraction{
		"search": {
			ToolKey:            "search",
			RequestDefaultMax:  10,
			ResponseDefaultMax: 20,
			RequestFields:      []ExecutionLogField{{Path: "query", Label: "q"}},
		},
	}}
	if got := p.RequestLimitFor("search"); got != 10 {
		t.Fatalf("expected overridden request limit 10, got %d", got)
	}
	if got := p.ResponseLimitFor("search"); got != 20 {
		t.Fatalf("expected overridden response limit 20, got %d", got)
	}
	if got := p.RequestLimitFor("other"); got != DefaultRequestPreviewChars {
		t.Fatalf("expected default for a tool with no override, got %d", got)
	}
}

func TestExecutionLogPolicyFieldsForReturnsConfiguredExtractions(t *testing.T) {
	var nilPolicy *ExecutionLogPolicy
	if got := nilPolicy.RequestFieldsFor("search"); got != nil {
		t.Fatalf("expected a nil policy to have no request fields, got %v", got)
	}

	p := &ExecutionLogPolicy{ToolExtraction: map[string]ToolLogExtraction{
		"search": {
			RequestFields:  []ExecutionLogField{{Path: "query", Label: "q"}},
			ResponseFields: []ExecutionLogField{{Path: "result.hits[0].id", Label: "top_hit"}},
		},
	}}
	if got := p.RequestFieldsFor("search"); len(got) != 1 || got[0].Path != "query" {
		t.Fatalf("unexpected request fields: %+v", got)
	}
	if got := p.ResponseFieldsFor("search"); len(got) != 1 || got[0].Path != "result.hits[0].id" {
		t.Fatalf("unexpected response fields: %+v", got)
	}
	if got := p.RequestFieldsFor("other"); got != nil {
		t.Fatalf("expected no fields for an unconfigured tool, got %v", got)
	}
}

func TestAgentParamsJSONSchema(t *testing.T) {
	tool := CompiledTool{}
	if _, ok := tool.AgentParamsJSONSchema(); ok {
		t.Fatal("expected no schema when metadata is nil")
	}

	tool.Metadata = map[string]any{"agent_params_json_schema": map[string]any{"type": "object"}}
	schema, ok := tool.AgentParamsJSONSchema()
	if !ok || schema["type"] != "object" {
		t.Fatalf("expected the embedded schema to be returned, got %+v ok=%v", schema, ok)
	}
}
