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

// Command agentnetd runs the agent network orchestration runtime's HTTP
// surface: /run, /invoke, /run-batch, /experiments, and /runs.
//
// Usage:
//
//	agentnetd api
//	agentnetd api --addr :9000
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/agentnet/internal/config"
	"github.com/kadirpekel/agentnet/internal/engine"
	"github.com/kadirpekel/agentnet/internal/executor"
	"github.com/kadirpekel/agentnet/internal/httpapi"
	"github.com/kadirpekel/agentnet/internal/httpclient"
	"github.com/kadirpekel/agentnet/internal/llmdecide"
	"github.com/kadirpekel/agentnet/internal/observability"
	"github.com/kadirpekel/agentnet/internal/obslog"
	"github.com/kadirpekel/agentnet/internal/queue"
	"github.com/kadirpekel/agentnet/internal/runconfig"
	"github.com/kadirpekel/agentnet/internal/store"
	"github.com/kadirpekel/agentnet/internal/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	API ApiCmd `cmd:"" help:"Start the HTTP API server."`
}

// ApiCmd starts the HTTP server wiring every component together.
type ApiCmd struct {
	Addr string `help:"HTTP listen address, overrides ADDR env." placeholder:"ADDR"`
}

func (c *ApiCmd) Run() error {
	cfg := config.FromEnv()
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}

	logger := obslog.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	obsMgr, err := observability.NewManager(ctx, &observability.Config{
		Tracing: observability.TracingConfig{
			Enabled:  cfg.TracingEnabled,
			Exporter: cfg.TracingExporter,
			Endpoint: cfg.OTLPEndpoint,
		},
		Metrics: observability.MetricsConfig{Enabled: cfg.MetricsEnabled},
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obsMgr.Shutdown(context.Background())

	registry := tools.NewRegistryWithBuiltins(tools.BuiltinOptions{
		HTTPClient: httpclient.New(),
	})
	ex := executor.New(registry)
	builder := runconfig.NewBuilder(nil)

	decider, err := llmdecide.NewGeminiDecider(cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		return fmt.Errorf("init llm decider: %w", err)
	}

	eng := engine.New(builder, ex, decider, nil, nowMS)
	eng.Tracer = obsMgr.Tracer()
	eng.Metrics = obsMgr.Metrics()

	// No concrete graph.Resolver is wired: the declarative network/tool
	// configuration store is an out-of-scope collaborator (spec.md §6), so
	// every /run and /run-batch request must carry an inline snapshot.
	worker := queue.New(st, eng, nil, logger)
	worker.Metrics = obsMgr.Metrics()
	worker.Start()

	srv := httpapi.New(cfg, st, eng, ex, builder, worker, nil, obsMgr, logger)

	logger.Info("agentnetd listening", "addr", cfg.Addr)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("agentnetd"),
		kong.Description("Agent network orchestration runtime."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
