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

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/kadirpekel/agentnet/internal/config"
	"github.com/kadirpekel/agentnet/internal/engine"
	"github.com/kadirpekel/agentnet/internal/executor"
	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/llmdecide"
	"github.com/kadirpekel/agentnet/internal/queue"
	"github.com/kadirpekel/agentnet/internal/runconfig"
	"github.com/kadirpekel/agentnet/internal/store"
	"github.com/kadirpekel/agentnet/internal/tools"
)

func testServer(t *testing.T, responses []llmdecide.StubResponse) *Server {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "http.db")
	st, err := store.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	builder := runconfig.NewBuilder(nil)
	reg := tools.NewRegistryWithBuiltins(tools.BuiltinOptions{})
	ex := executor.New(reg)
	decider := &llmdecide.StubDecider{Responses: responses}
	clock := int64(0)
	now := func() int64 { clock++; return clock }
	eng := engine.New(builder, ex, decider, &graph.ExecutionLogPolicy{}, now)

	worker := queue.New(st, eng, nil, nil)

	return New(&config.Config{Addr: ":0"}, st, eng, ex, builder, worker, nil, nil, nil)
}

func respondGraphJSON(t *testing.T) *graph.CompiledGraph {
	t.Helper()
	return &graph.CompiledGraph{
		NetworkID: "net-1", VersionID: "v1", DefaultAgentKey: "primary",
		Agents: []graph.CompiledAgent{{Key: "primary", AllowRespond: true}},
	}
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleMetricsDisabledByDefault(t *testing.T) {
	s := testServer(t, nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no observability manager is configured, got %d", rec.Code)
	}
}

func TestHandleRunWithInlineSnapshot(t *testing.T) {
	s := testServer(t, []llmdecide.StubResponse{
		{Text: `{"reasoning":"done","action":{"type":"RESPOND","payload":{"message":"hi"}}}`},
	})

	body, _ := json.Marshal(map[string]any{
		"snapshot":     respondGraphJSON(t),
		"agent_key":    "primary",
		"user_message": "hello",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp runResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Final.Status != "ok" {
		t.Fatalf("expected ok status, got %s", resp.Final.Status)
	}
}

func TestHandleRunRejectsMissingUserMessage(t *testing.T) {
	s := testServer(t, nil)
	body, _ := json.Marshal(map[string]any{"snapshot": respondGraphJSON(t), "agent_key": "primary"})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user_message, got %d", rec.Code)
	}
}

func TestHandleRunRejectsBothNetworkAndSnapshot(t *testing.T) {
	s := testServer(t, nil)
	body, _ := json.Marshal(map[string]any{
		"network": "some-net", "snapshot": respondGraphJSON(t),
		"agent_key": "primary", "user_message": "hi",
	})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when both network and snapshot are present, got %d", rec.Code)
	}
}

func TestHandleRunWithNetworkNameAndNoResolverIsBadRequest(t *testing.T) {
	s := testServer(t, nil)
	body, _ := json.Marshal(map[string]any{"network": "some-net", "agent_key": "primary", "user_message": "hi"})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when no resolver is configured for a network-name request, got %d", rec.Code)
	}
}

func TestHandleInvokeRejectsTaskGroup(t *testing.T) {
	s := testServer(t, nil)
	body, _ := json.Marshal(map[string]any{
		"snapshot":  respondGraphJSON(t),
		"agent_key": "primary",
		"instruction": json.RawMessage(`{
			"reasoning":"x",
			"action":{"type":"TASK_GROUP","group_id":"g1","tasks":[
				{"type":"use_tool","tool_name":"echo","tool_params":{},"retry_policy":{"attempts":1}}
			]}
		}`),
	})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a TASK_GROUP instruction via /invoke, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleInvokeRespond(t *testing.T) {
	s := testServer(t, nil)
	body, _ := json.Marshal(map[string]any{
		"snapshot":    respondGraphJSON(t),
		"agent_key":   "primary",
		"instruction": json.RawMessage(`{"reasoning":"x","action":{"type":"RESPOND","payload":{"message":"ok"}}}`),
	})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
