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
	"testing"
)

type fakeRAGClient struct {
	gotTopK    int
	gotFilters map[string]any
}

func (f *fakeRAGClient) Search(ctx context.Context, query string, topK int, filters map[string]any) ([]map[string]any, error) {
	f.gotTopK = topK
	f.gotFilters = filters
	return []map[string]any{{"id": "1", "score": 0.9}}, nil
}

func TestRAGHybridProviderDefaultsTopKAndForwardsHits(t *testing.T) {
	client := &fakeRAGClient{}
	p := NewRAGHybridProvider(client)

	out, err := p.Run(context.Background(), Input{Params: map[string]any{"query": "golang"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected OK, got %+v", out)
	}
	if client.gotTopK != 5 {
		t.Fatalf("expected the default top_k of 5, got %d", client.gotTopK)
	}
	hits, ok := out.Result["hits"].([]map[string]any)
	if !ok || len(hits) != 1 {
		t.Fatalf("expected the client's hits to be forwarded verbatim, got %+v", out.Result)
	}
}

func TestRAGHybridProviderHonorsExplicitTopKAndFilters(t *testing.T) {
	client := &fakeRAGClient{}
	p := NewRAGHybridProvider(client)

	_, err := p.Run(context.Background(), Input{Params: map[string]any{
		"query": "golang", "top_k": float64(20), "filters": map[string]any{"lang": "go"},
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.gotTopK != 20 {
		t.Fatalf("expected top_k 20, got %d", client.gotTopK)
	}
	if client.gotFilters["lang"] != "go" {
		t.Fatalf("expected filters to be forwarded, got %+v", client.gotFilters)
	}
}

func TestRAGHybridProviderRequiresClientAndQuery(t *testing.T) {
	p := NewRAGHybridProvider(nil)
	out, _ := p.Run(context.Background(), Input{Params: map[string]any{"query": "x"}})
	if out.OK {
		t.Fatal("expected a nil client to produce a non-OK output")
	}

	p2 := NewRAGHybridProvider(&fakeRAGClient{})
	out2, _ := p2.Run(context.Background(), Input{})
	if out2.OK {
		t.Fatal("expected a missing query param to produce a non-OK output")
	}
}
