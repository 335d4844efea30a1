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

// Package config loads process configuration from the environment, per the
// external-interfaces contract in spec.md §6. The declarative network/tool
// configuration CRUD surface is an out-of-scope collaborator; this package
// only covers the ambient process configuration the run-time core needs.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the process-wide configuration resolved at startup.
type Config struct {
	// DatabaseURL is the DSN for the RunRecord / ExperimentQueueItem store.
	// Scheme selects the driver: postgres://, mysql://, sqlite://.
	DatabaseURL string

	// CORSAllowOrigins is the comma-separated allow-list for the HTTP API.
	CORSAllowOrigins []string

	// LogLevel is passed to obslog.New.
	LogLevel string

	// Debug forces debug=true on every /run request when set.
	Debug bool

	// GeminiAPIKey authenticates the default C7 decide provider.
	GeminiAPIKey string

	// GeminiModel is the default model name used when a /run request omits one.
	GeminiModel string

	// Addr is the HTTP listen address for the "api" CLI subcommand.
	Addr string

	// TracingEnabled turns on OTLP/stdout span export for the step loop.
	TracingEnabled bool
	// TracingExporter selects "otlp" (default) or "stdout".
	TracingExporter string
	// OTLPEndpoint is the collector address for the otlp exporter.
	OTLPEndpoint string
	// MetricsEnabled turns on the /metrics Prometheus endpoint.
	MetricsEnabled bool
}

const defaultCORSOrigin = "http://localhost:3000"
const defaultGeminiModel = "gemini-2.5-flash"
const defaultAddr = ":8000"

// FromEnv resolves a Config from the process environment, applying the
// defaults documented in spec.md §6.
func FromEnv() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		CORSAllowOrigins: splitCSV(getenvOr("CORS_ALLOW_ORIGINS", defaultCORSOrigin)),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Debug:            parseBool(os.Getenv("DEBUG")),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getenvOr("GEMINI_MODEL", defaultGeminiModel),
		Addr:             getenvOr("ADDR", defaultAddr),
		TracingEnabled:   parseBool(os.Getenv("TRACING_ENABLED")),
		TracingExporter:  getenvOr("TRACING_EXPORTER", "otlp"),
		OTLPEndpoint:     getenvOr("OTLP_ENDPOINT", "localhost:4317"),
		MetricsEnabled:   parseBool(os.Getenv("METRICS_ENABLED")),
	}
	return cfg
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return b
}
