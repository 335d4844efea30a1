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
	"fmt"

	"github.com/kadirpekel/agentnet/internal/httpclient"
)

// RAGSearchClient is the collaborator contract for an external hybrid
// (lexical + vector) search service. Concrete vector-database-backed
// implementations (qdrant, pinecone, weaviate, ...) are out of scope per
// spec.md §1; this provider only forwards.
type RAGSearchClient interface {
	Search(ctx context.Context, query string, topK int, filters map[string]any) ([]map[string]any, error)
}

// RAGHybridProvider implements "rag:hybrid": forwards to an external search
// service and returns its hits verbatim.
type RAGHybridProvider struct {
	client RAGSearchClient
}

// NewRAGHybridProvider builds a RAGHybridProvider. A nil client fails every
// call, matching the out-of-scope collaborator pattern used by dialogflow.go.
func NewRAGHybridProvider(client RAGSearchClient) *RAGHybridProvider {
	return &RAGHybridProvider{client: client}
}

// Run implements Provider.
func (p *RAGHybridProvider) Run(ctx context.Context, in Input) (Output, error) {
	if p.client == nil {
		return Output{OK: false, Error: "rag:hybrid client not configured"}, nil
	}

	query, _ := in.Params["query"].(string)
	if query == "" {
		return Output{OK: false, Error: "missing query param"}, nil
	}
	topK := 5
	if v, ok := in.Params["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}
	filters, _ := in.Params["filters"].(map[string]any)

	hits, err := p.client.Search(ctx, query, topK, filters)
	if err != nil {
		return Output{OK: false, Error: fmt.Sprintf("search: %v", err)}, nil
	}
	return Output{OK: true, Result: map[string]any{"hits": hits}}, nil
}

// BuiltinOptions configures the out-of-scope collaborator clients that the
// reference provider set forwards to. Any left nil degrades that provider
// to a config_missing-flavored error rather than panicking.
type BuiltinOptions struct {
	HTTPClient       *httpclient.Client
	DialogflowClient DialogflowCXClient
	RAGClient        RAGSearchClient
}
