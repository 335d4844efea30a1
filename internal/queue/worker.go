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

// Package queue implements the Experiment Queue Worker (C10): a durable
// FIFO of queued runs drained through the run engine at whatever rate the
// process can sustain, with at-least-once semantics and stale-lease
// recovery, per spec.md §4.10.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/agentnet/internal/engine"
	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/observability"
	"github.com/kadirpekel/agentnet/internal/store"
)

// DefaultStaleTimeout is how long an in_progress row may go without
// completing before it is presumed crashed and recovered to pending.
const DefaultStaleTimeout = 5 * time.Minute

// RunOnceRequest is the exact run request a queue row's payload decodes
// into, mirroring the /run request body (spec.md §6) minus the fields the
// queue already tracks (item_index, iteration, experiment_id).
type RunOnceRequest struct {
	NetworkName  string         `json:"network,omitempty"`
	Version      string         `json:"version,omitempty"`
	Snapshot     *graph.CompiledGraph `json:"snapshot,omitempty"`
	AgentKey     string         `json:"agent_key,omitempty"`
	UserMessage  string         `json:"user_message"`
	SystemParams map[string]any `json:"system_params,omitempty"`
	Model        string         `json:"model,omitempty"`
	MaxSteps     int            `json:"max_steps,omitempty"`

	// IdempotencyKey is derived deterministically from
	// (experiment_id, item_index, iteration) by the /run-batch handler and
	// echoed back on completion, so a re-enqueue of the same logical item
	// is identifiable even across worker restarts.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Worker drains pending queue rows of every experiment through Engine, one at
// a time, off a single in-process drainer goroutine re-armed by Enqueue and
// Start.
type Worker struct {
	Store        *store.Store
	Engine       *engine.Engine
	Resolver     graph.Resolver // consulted when a row carries network/version instead of an inline snapshot
	StaleTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *observability.Metrics // optional; nil disables queue depth/outcome metrics

	mu      sync.Mutex
	running bool
}

// New builds a Worker. resolver may be nil if every enqueued row carries an
// inline snapshot.
func New(st *store.Store, eng *engine.Engine, resolver graph.Resolver, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		Store:        st,
		Engine:       eng,
		Resolver:     resolver,
		StaleTimeout: DefaultStaleTimeout,
		Logger:       logger,
	}
}

// Enqueue writes items for experimentID and (re)starts the drainer if it is
// not already running, per spec.md §4.10.
func (w *Worker) Enqueue(ctx context.Context, experimentID string, items []store.EnqueueItem) error {
	if err := w.Store.Enqueue(ctx, experimentID, items); err != nil {
		return err
	}
	w.kick()
	return nil
}

// Start (re)arms the drainer at process startup, per spec.md §4.10.
func (w *Worker) Start() {
	w.kick()
}

// kick starts the drainer if it is not already running. Guarded by mu so at
// most one drainer runs per process, per spec.md §5.
func (w *Worker) kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	go w.drain()
}

// drain recovers stale leases, then leases and runs items until the queue
// is empty. A panic anywhere in this loop is the worker_crash disposition:
// log it, clear the handle, and return; a later Enqueue or Start restarts
// the drainer.
func (w *Worker) drain() {
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error("experiment queue drainer crashed", "panic", r)
		}
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ctx := context.Background()

	if n, err := w.Store.RecoverStale(ctx, w.effectiveStaleTimeout()); err != nil {
		w.Logger.Error("stale-lease recovery failed", "error", err)
	} else if n > 0 {
		w.Logger.Info("recovered stale queue items", "count", n)
	}

	for {
		item, err := w.Store.LeaseNext(ctx)
		if err != nil {
			w.Logger.Error("lease_next failed", "error", err)
			return
		}
		if item == nil {
			w.Metrics.SetQueueDepth("pending", 0)
			w.Metrics.SetQueueDepth("in_progress", 0)
			return
		}
		w.runItem(ctx, item)
	}
}

func (w *Worker) effectiveStaleTimeout() time.Duration {
	if w.StaleTimeout <= 0 {
		return DefaultStaleTimeout
	}
	return w.StaleTimeout
}

func (w *Worker) runItem(ctx context.Context, item *store.ExperimentQueueItem) {
	summary := map[string]any{"item_index": item.ItemIndex, "iteration": item.Iteration}

	req, err := decodeRunOnceRequest(item.Payload)
	if err != nil {
		summary["status"] = "error"
		w.Store.MarkCompleted(ctx, item.ID, false, err.Error(), summary)
		w.Metrics.ObserveQueueItemCompleted("error")
		return
	}
	if req.IdempotencyKey != "" {
		summary["idempotency_key"] = req.IdempotencyKey
	}

	g, err := w.resolveGraph(ctx, req)
	if err != nil {
		summary["status"] = "error"
		w.Store.MarkCompleted(ctx, item.ID, false, err.Error(), summary)
		w.Metrics.ObserveQueueItemCompleted("error")
		return
	}

	artifact, err := w.Engine.Run(ctx, engine.Request{
		Graph:        g,
		AgentKey:     req.AgentKey,
		UserMessage:  req.UserMessage,
		SystemParams: req.SystemParams,
		Model:        req.Model,
		MaxSteps:     req.MaxSteps,
	})
	if err != nil {
		summary["status"] = "error"
		summary["error"] = err.Error()
		w.Store.MarkCompleted(ctx, item.ID, false, err.Error(), summary)
		w.Metrics.ObserveQueueItemCompleted("error")
		return
	}

	summary["trace_id"] = artifact.TraceID
	summary["status"] = artifact.Final.Status
	succeeded := artifact.Final.Status == "ok"

	if saveErr := w.Store.SaveRun(ctx, store.RunRecord{
		RunID:           artifact.TraceID,
		NetworkID:       g.NetworkID,
		GraphVersionKey: g.VersionKey(),
		UserMessage:     req.UserMessage,
		Status:          artifact.Final.Status,
		RequestPayload:  map[string]any{"agent_key": req.AgentKey, "user_message": req.UserMessage, "system_params": req.SystemParams},
		ResponsePayload: runArtifactToMap(artifact),
		ExperimentID:    item.ExperimentID,
	}); saveErr != nil {
		w.Logger.Error("failed to persist run record for queued item", "error", saveErr)
	}

	w.Store.MarkCompleted(ctx, item.ID, succeeded, artifact.Final.Error, summary)
	outcome := "error"
	if succeeded {
		outcome = "ok"
	}
	w.Metrics.ObserveQueueItemCompleted(outcome)
}

func (w *Worker) resolveGraph(ctx context.Context, req RunOnceRequest) (*graph.CompiledGraph, error) {
	if req.Snapshot != nil {
		if err := req.Snapshot.Build(); err != nil {
			return nil, err
		}
		return req.Snapshot, nil
	}
	if w.Resolver == nil {
		return nil, fmt.Errorf("queue item carries no inline snapshot and no graph resolver is configured")
	}
	return w.Resolver.Resolve(ctx, graph.Ref{NetworkName: req.NetworkName, Version: req.Version})
}

func decodeRunOnceRequest(payload map[string]any) (RunOnceRequest, error) {
	var req RunOnceRequest
	raw, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("re-encode queue payload: %w", err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("decode queue payload as RunOnceRequest: %w", err)
	}
	if req.UserMessage == "" {
		return req, fmt.Errorf("queue payload missing user_message")
	}
	return req, nil
}

func runArtifactToMap(artifact any) map[string]any {
	raw, err := json.Marshal(artifact)
	if err != nil {
		return nil
	}
	var m map[string]any
	json.Unmarshal(raw, &m)
	return m
}
