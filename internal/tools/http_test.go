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

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kadirpekel/agentnet/internal/httpclient"
)

func TestHTTPRequestProviderBindsQueryHeaderAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "go" {
			t.Errorf("expected query param q=go, got %q", r.URL.Query().Get("q"))
		}
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("expected header X-Token=secret, got %q", r.Header.Get("X-Token"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["limit"] != float64(10) {
			t.Errorf("expected body limit=10, got %v", body["limit"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"hits": 3}})
	}))
	defer srv.Close()

	p := NewHTTPRequestProvider(httpclient.New(httpclient.WithMaxRetries(0)))
	out, err := p.Run(context.Background(), Input{
		Params: map[string]any{"query": "go", "token": "secret", "limit": 10},
		Metadata: map[string]any{
			"http": map[string]any{
				"url":    srv.URL,
				"method": "POST",
				"bindings": []any{
					map[string]any{"name": "query", "source": "query", "as": "q"},
					map[string]any{"name": "token", "source": "header", "as": "X-Token"},
					map[string]any{"name": "limit", "source": "body"},
				},
				"unwrap": "result",
			},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected OK, got %+v", out)
	}
	if out.Result["hits"] != float64(3) {
		t.Fatalf("expected the unwrapped result, got %+v", out.Result)
	}
}

func TestHTTPRequestProviderSurfacesHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := NewHTTPRequestProvider(httpclient.New(httpclient.WithMaxRetries(0)))
	out, err := p.Run(context.Background(), Input{
		Metadata: map[string]any{"http": map[string]any{"url": srv.URL, "method": "GET"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.OK {
		t.Fatal("expected a 5xx response to surface as a non-OK output, not a transport error")
	}
}

func TestHTTPRequestProviderRejectsMissingMetadata(t *testing.T) {
	p := NewHTTPRequestProvider(nil)
	out, err := p.Run(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.OK {
		t.Fatal("expected missing metadata.http to produce a non-OK output")
	}
}

func TestShapeFiltersToRequestedKeys(t *testing.T) {
	got := shape(map[string]any{"a": 1, "b": 2, "c": 3}, "", []string{"a", "c"})
	if len(got) != 2 || got["a"] != 1 || got["c"] != 3 {
		t.Fatalf("expected shape to filter down to the requested keys, got %+v", got)
	}
}

func TestShapeWrapsNonMapValues(t *testing.T) {
	got := shape("plain text", "", nil)
	if got["value"] != "plain text" {
		t.Fatalf("expected a non-map response wrapped under value, got %+v", got)
	}
}
