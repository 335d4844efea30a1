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
	"strconv"
	"strings"
	"sync"

	"github.com/kadirpekel/agentnet/internal/graph"
)

// ExecutionLog is the ordered, single-run event log plus epoch counter. It
// is owned by exactly one run: not shared across runs, not safe to reuse.
type ExecutionLog struct {
	mu       sync.Mutex
	traceID  string
	policy   *graph.ExecutionLogPolicy
	entries  []Entry
	events   []StepEventEnvelope
	subs     []chan StepEventEnvelope
	seq      int
	nowMS    func() int64

	currentAgent string
	currentEpoch int
	seenAgent    bool
}

// New creates an empty ExecutionLog for one run, identified by traceID, and
// governed by the (optional) snapshot's execution-log policy.
func New(traceID string, policy *graph.ExecutionLogPolicy, nowMS func() int64) *ExecutionLog {
	return &ExecutionLog{
		traceID:      traceID,
		policy:       policy,
		currentEpoch: -1,
		nowMS:        nowMS,
	}
}

// StartAgentEpoch advances the epoch per spec.md §3: the first time any
// agent appears, current_epoch=0; on every transition to a different agent
// (including re-entry to a previously-seen one), current_epoch+=1. It
// returns the epoch the agent now holds.
func (l *ExecutionLog) StartAgentEpoch(agentKey string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.seenAgent {
		l.seenAgent = true
		l.currentAgent = agentKey
		l.currentEpoch = 0
		return 0
	}

	if strings.EqualFold(l.currentAgent, agentKey) {
		return l.currentEpoch
	}

	l.currentEpoch++
	l.currentAgent = agentKey
	return l.currentEpoch
}

// CurrentEpoch returns the epoch most recently assigned by StartAgentEpoch.
func (l *ExecutionLog) CurrentEpoch() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentEpoch
}

// AppendAgentStep records one *agent* entry and emits its step_event.
func (l *ExecutionLog) AppendAgentStep(e AgentEntry) Entry {
	entry := Entry{Type: EntryAgent, Agent: &e}
	l.append(entry)
	return entry
}

// AppendToolStep records one *tool* entry and emits its step_event. Previews
// are truncated by the caller using Preview, RequestPreview or
// ResponsePreview before calling this, so the log never holds full payloads.
func (l *ExecutionLog) AppendToolStep(e ToolEntry) Entry {
	entry := Entry{Type: EntryTool, Tool: &e}
	l.append(entry)
	return entry
}

// AppendTaskGroupStep records one *task_group* entry and emits its step_event.
func (l *ExecutionLog) AppendTaskGroupStep(e TaskGroupEntry) Entry {
	entry := Entry{Type: EntryTaskGroup, TaskGroup: &e}
	l.append(entry)
	return entry
}

// AppendSystemMessage records a free-form *system* entry.
func (l *ExecutionLog) AppendSystemMessage(message string) Entry {
	entry := Entry{Type: EntrySystem, System: &SystemEntry{Message: message, TimestampMS: l.now()}}
	l.append(entry)
	return entry
}

func (l *ExecutionLog) now() int64 {
	if l.nowMS != nil {
		return l.nowMS()
	}
	return 0
}

func (l *ExecutionLog) append(entry Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)

	var payload any
	switch entry.Type {
	case EntryAgent:
		payload = entry.Agent
	case EntryTool:
		payload = entry.Tool
	case EntryTaskGroup:
		payload = entry.TaskGroup
	case EntrySystem:
		payload = entry.System
	}

	env := StepEventEnvelope{
		TraceID: l.traceID,
		Seq:     l.seq,
		T:       l.now(),
		Step: StepEventBody{
			Kind:      "log_entry",
			EntryType: entry.Type,
			Payload:   payload,
		},
	}
	l.seq++
	l.events = append(l.events, env)
	subs := append([]chan StepEventEnvelope(nil), l.subs...)
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- env:
		default:
		}
	}
}

// Entries returns a snapshot copy of the accumulated entries.
func (l *ExecutionLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Events returns a snapshot copy of the accumulated step events, optionally
// starting from a given seq (for resumable SSE streams).
func (l *ExecutionLog) Events(fromSeq int) []StepEventEnvelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]StepEventEnvelope, 0, len(l.events))
	for _, e := range l.events {
		if e.Seq >= fromSeq {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe registers a channel that receives every future step event as it
// is appended, used by the /runs/{id}/stream SSE handler. The returned
// function unsubscribes.
func (l *ExecutionLog) Subscribe(buffer int) (<-chan StepEventEnvelope, func()) {
	ch := make(chan StepEventEnvelope, buffer)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()

	unsub := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, c := range l.subs {
			if c == ch {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsub
}

// RecentSummary formats up to the last n entries as "step N: <kind> <key> →
// <action|status>" lines, for the prompt builder's "Execution log summary".
func (l *ExecutionLog) RecentSummary(n int) []string {
	entries := l.Entries()
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, summarizeEntry(e))
	}
	return lines
}

func summarizeEntry(e Entry) string {
	switch e.Type {
	case EntryAgent:
		return joinSummary(e.Agent.Step, "agent", e.Agent.AgentKey, e.Agent.DecisionPreview)
	case EntryTool:
		return joinSummary(e.Tool.Step, "tool", e.Tool.ToolKey, e.Tool.Status)
	case EntryTaskGroup:
		return joinSummary(e.TaskGroup.Step, "task_group", e.TaskGroup.GroupID, e.TaskGroup.Status)
	case EntrySystem:
		return "system: " + e.System.Message
	default:
		return ""
	}
}

func joinSummary(step int, kind, key, detail string) string {
	b := strings.Builder{}
	b.WriteString("step ")
	b.WriteString(strconv.Itoa(step))
	b.WriteString(": ")
	b.WriteString(kind)
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString(" → ")
	b.WriteString(detail)
	return b.String()
}
