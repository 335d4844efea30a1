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

// Package httpapi exposes the run engine, instruction executor, and
// experiment queue over the HTTP surface of spec.md §6: /health, /run,
// /invoke, /run-batch(/upload), /experiments, /runs(/stream), and
// /prompts/resolve.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/agentnet/internal/apperrors"
	"github.com/kadirpekel/agentnet/internal/config"
	"github.com/kadirpekel/agentnet/internal/engine"
	"github.com/kadirpekel/agentnet/internal/executor"
	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/observability"
	"github.com/kadirpekel/agentnet/internal/queue"
	"github.com/kadirpekel/agentnet/internal/runconfig"
	"github.com/kadirpekel/agentnet/internal/runlog"
	"github.com/kadirpekel/agentnet/internal/store"
)

// Server wires the orchestration core's components to chi routes and owns
// the one process-wide registry of in-flight runs' ExecutionLogs, used to
// serve /runs/{id}/stream for runs that have not yet been persisted.
type Server struct {
	Config        *config.Config
	Store         *store.Store
	Engine        *engine.Engine
	Executor      *executor.Executor
	Builder       *runconfig.Builder
	Worker        *queue.Worker
	Resolver      graph.Resolver
	Observability *observability.Manager
	Logger        *slog.Logger

	httpSrv *http.Server

	mu       sync.Mutex
	liveLogs map[string]*runlog.ExecutionLog
}

// New builds a Server. Resolver and Worker may be nil: a nil Resolver means
// every /run request must carry an inline snapshot; a nil Worker means
// /run-batch cannot be used. obsMgr may be nil, which serves /metrics as a
// 503 stub.
func New(cfg *config.Config, st *store.Store, eng *engine.Engine, ex *executor.Executor, builder *runconfig.Builder, w *queue.Worker, resolver graph.Resolver, obsMgr *observability.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Config:        cfg,
		Store:         st,
		Engine:        eng,
		Executor:      ex,
		Builder:       builder,
		Worker:        w,
		Resolver:      resolver,
		Observability: obsMgr,
		Logger:        logger,
		liveLogs:      make(map[string]*runlog.ExecutionLog),
	}
}

// Routes builds the chi router. Order: logging -> cors -> routes, matching
// the layered-middleware convention of the HTTP servers this package is
// modeled on.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/run", s.handleRun)
	r.Post("/invoke", s.handleInvoke)
	r.Post("/run-batch/upload", s.handleBatchUpload)
	r.Post("/run-batch", s.handleBatchCreate)
	r.Get("/experiments", s.handleListExperiments)
	r.Get("/experiments/{id}", s.handleGetExperiment)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	r.Get("/runs/{id}/stream", s.handleStreamRun)
	r.Post("/prompts/resolve", s.handlePromptResolve)

	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully. Mirrors the listen-in-goroutine/select-on-ctx pattern used
// throughout this codebase's reference material.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Config.Addr
	if addr == "" {
		addr = ":8000"
	}
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Routes()}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully stops the server, waiting for in-flight requests until
// ctx is done, for callers that already manage their own lifecycle context.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerLiveLog(traceID string, log *runlog.ExecutionLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveLogs[traceID] = log
}

func (s *Server) unregisterLiveLog(traceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.liveLogs, traceID)
}

func (s *Server) liveLog(traceID string) (*runlog.ExecutionLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.liveLogs[traceID]
	return log, ok
}

// resolveGraph turns a /run-style request's (network, version, snapshot)
// fields into a built CompiledGraph. Exactly one of network or snapshot
// must be set by the caller; that XOR is validated by each handler before
// calling this.
func (s *Server) resolveGraph(ctx context.Context, networkName, version string, snapshot *graph.CompiledGraph) (*graph.CompiledGraph, error) {
	if snapshot != nil {
		if err := snapshot.Build(); err != nil {
			return nil, err
		}
		return snapshot, nil
	}
	if s.Resolver == nil {
		return nil, apperrors.New(apperrors.KindConfigMissing, "httpapi", "resolveGraph",
			"network given but no graph resolver is configured; pass an inline snapshot instead", nil)
	}
	return s.Resolver.Resolve(ctx, graph.Ref{NetworkName: networkName, Version: version})
}

// loggingMiddleware logs method/path/duration after the handler runs. It
// deliberately does not wrap http.ResponseWriter: that would break
// http.Flusher and break /runs/{id}/stream's SSE support.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

// corsMiddleware allows the configured origins (or "*" if none configured)
// and short-circuits preflight OPTIONS requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(s.Config.CORSAllowOrigins) == 0 {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && originAllowed(s.Config.CORSAllowOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.Observability.MetricsHandler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErrForKind translates an error into the status code spec.md §7
// assigns its Kind: config_missing is terminal-and-4xx; everything else
// reaching this helper (resolver/store failures outside a run) is a 500.
func writeErrForKind(w http.ResponseWriter, err error) {
	if kind, ok := apperrors.KindOf(err); ok && kind == apperrors.KindConfigMissing {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
