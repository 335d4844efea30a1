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

package runlog

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ToolRecord is the full payload stored under one execution_id. Log entries
// carry only previews of this; ToolStore is the by-id store of the real
// request/response bodies.
type ToolRecord struct {
	ExecutionID   string         `json:"execution_id"`
	AgentKey      string         `json:"agent_key"`
	ToolKey       string         `json:"tool_key"`
	MergedParams  map[string]any `json:"merged_params"`
	FullResult    map[string]any `json:"full_result"`
	Epoch         int            `json:"epoch"`
	Status        string         `json:"status"`
	StartedAtMS   int64          `json:"started_at_ms"`
	DurationMS    int64          `json:"duration_ms"`
	CompletedAtMS int64          `json:"completed_at_ms"`
	GroupID       string         `json:"group_id,omitempty"`
	ParentTaskID  string         `json:"parent_task_id,omitempty"`
	Attempt       int            `json:"attempt,omitempty"`
}

// ToolStore is the by-id map of full tool payloads for one run.
type ToolStore struct {
	mu      sync.Mutex
	records map[string]ToolRecord
}

// NewToolStore creates an empty ToolStore.
func NewToolStore() *ToolStore {
	return &ToolStore{records: make(map[string]ToolRecord)}
}

// Put stores a full record and returns a fresh opaque execution_id (a uuid4,
// ≥128 bits of entropy per spec.md §9).
func (s *ToolStore) Put(rec ToolRecord) string {
	id := uuid.NewString()
	rec.ExecutionID = id

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = rec
	return id
}

// Get returns the full record for execution_id, if present.
func (s *ToolStore) Get(executionID string) (ToolRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[executionID]
	return rec, ok
}

// All returns a snapshot copy of every stored record, keyed by execution_id,
// for embedding in a run's final tool_log artifact.
func (s *ToolStore) All() map[string]ToolRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ToolRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// CollectFullFor returns every tool execution tagged with (agentKey, epoch),
// in log insertion order, with its full payload — the mechanism by which an
// agent sees its own tool outputs within its current epoch and nothing
// after it has yielded (spec.md §4.5).
func (s *ToolStore) CollectFullFor(log *ExecutionLog, agentKey string, epoch int) []ToolRecord {
	var out []ToolRecord
	for _, entry := range log.Entries() {
		if entry.Type != EntryTool {
			continue
		}
		t := entry.Tool
		if !strings.EqualFold(t.AgentKey, agentKey) || t.Epoch != epoch {
			continue
		}
		if rec, ok := s.Get(t.ExecutionID); ok {
			out = append(out, rec)
		}
	}
	return out
}
