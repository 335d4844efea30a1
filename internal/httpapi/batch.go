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
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kadirpekel/agentnet/internal/graph"
	"github.com/kadirpekel/agentnet/internal/queue"
	"github.com/kadirpekel/agentnet/internal/store"
)

// batchItem is one parsed row of an uploaded CSV/JSONL batch file, per
// spec.md §6: iterations is the only required column; user_message,
// correct_answer, and label are recognized optional columns; anything else
// becomes free-form metadata, except system_params.-/system_params__-
// prefixed columns, which nest under system_params.
type batchItem struct {
	ItemIndex     int            `json:"item_index"`
	Iterations    int            `json:"iterations"`
	UserMessage   string         `json:"user_message,omitempty"`
	CorrectAnswer string         `json:"correct_answer,omitempty"`
	Label         string         `json:"label,omitempty"`
	SystemParams  map[string]any `json:"system_params,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type batchUploadResponse struct {
	Items      []batchItem    `json:"items"`
	Warnings   []string       `json:"warnings,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	SchemaHint map[string]any `json:"schema_hint"`
}

var batchSchemaHint = map[string]any{
	"required": []string{"iterations"},
	"optional": []string{"user_message", "correct_answer", "label"},
	"note":     "columns prefixed system_params. or system_params__ nest under system_params; any other column becomes metadata",
}

// handleBatchUpload parses an uploaded CSV or JSONL file (chosen by
// extension) and returns its parsed items without queuing any runs.
func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field: "+err.Error())
		return
	}
	defer file.Close()

	var items []batchItem
	var warnings, errs []string

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv":
		items, warnings, errs = parseCSVBatch(file)
	case ".jsonl", ".ndjson":
		items, warnings, errs = parseJSONLBatch(file)
	default:
		writeError(w, http.StatusBadRequest, "unsupported file extension; use .csv or .jsonl")
		return
	}

	writeJSON(w, http.StatusOK, batchUploadResponse{
		Items: items, Warnings: warnings, Errors: errs, SchemaHint: batchSchemaHint,
	})
}

func parseCSVBatch(r io.Reader) (items []batchItem, warnings, errs []string) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, []string{"failed to read header row: " + err.Error()}
	}
	colIndex := map[string]int{}
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIndex["iterations"]; !ok {
		return nil, nil, []string{"missing required column: iterations"}
	}

	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}

		item := batchItem{SystemParams: map[string]any{}, Metadata: map[string]any{}}
		var iterationsRaw string
		for col, idx := range colIndex {
			if idx >= len(row) {
				continue
			}
			val := row[idx]
			switch {
			case col == "iterations":
				iterationsRaw = val
			case col == "user_message":
				item.UserMessage = val
			case col == "correct_answer":
				item.CorrectAnswer = val
			case col == "label":
				item.Label = val
			case strings.HasPrefix(col, "system_params."):
				item.SystemParams[strings.TrimPrefix(col, "system_params.")] = val
			case strings.HasPrefix(col, "system_params__"):
				item.SystemParams[strings.TrimPrefix(col, "system_params__")] = val
			default:
				item.Metadata[col] = val
			}
		}

		iterations, err := strconv.Atoi(strings.TrimSpace(iterationsRaw))
		if err != nil || iterations < 1 {
			errs = append(errs, fmt.Sprintf("row %d: iterations must be an integer >= 1, got %q", rowNum, iterationsRaw))
			continue
		}
		item.Iterations = iterations
		item.ItemIndex = len(items)
		if len(item.SystemParams) == 0 {
			item.SystemParams = nil
		}
		if len(item.Metadata) == 0 {
			item.Metadata = nil
		}
		items = append(items, item)
	}

	return items, warnings, errs
}

func parseJSONLBatch(r io.Reader) (items []batchItem, warnings, errs []string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			errs = append(errs, fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
			continue
		}

		iterVal, ok := raw["iterations"]
		iterations, iterOK := toPositiveInt(iterVal)
		if !ok || !iterOK {
			errs = append(errs, fmt.Sprintf("line %d: iterations must be an integer >= 1", lineNum))
			continue
		}

		item := batchItem{Iterations: iterations, ItemIndex: len(items), Metadata: map[string]any{}}
		if v, ok := raw["user_message"].(string); ok {
			item.UserMessage = v
		}
		if v, ok := raw["correct_answer"].(string); ok {
			item.CorrectAnswer = v
		}
		if v, ok := raw["label"].(string); ok {
			item.Label = v
		}
		if v, ok := raw["system_params"].(map[string]any); ok {
			item.SystemParams = v
		}
		for k, v := range raw {
			switch k {
			case "iterations", "user_message", "correct_answer", "label", "system_params":
			default:
				item.Metadata[k] = v
			}
		}
		if len(item.Metadata) == 0 {
			item.Metadata = nil
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, "failed reading file: "+err.Error())
	}

	return items, warnings, errs
}

func toPositiveInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n >= 1 {
			return int(n), true
		}
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil && i >= 1 {
			return i, true
		}
	}
	return 0, false
}

// runBatchRequest is the /run-batch request body: the run parameters common
// to every enqueued item, plus the batch of items themselves (typically the
// output of a prior /run-batch/upload call).
type runBatchRequest struct {
	NetworkName    string               `json:"network,omitempty"`
	Snapshot       *graph.CompiledGraph `json:"snapshot,omitempty"`
	Version        string               `json:"version,omitempty"`
	AgentKey       string               `json:"agent_key,omitempty"`
	Model          string               `json:"model,omitempty"`
	MaxSteps       int                  `json:"max_steps,omitempty"`
	SystemParams   map[string]any       `json:"system_params,omitempty"`
	ExperimentDesc string               `json:"experiment_desc,omitempty"`
	Items          []batchItem          `json:"items"`
}

// handleBatchCreate registers an experiment and enqueues sum(iterations)
// runs, one queue row per (item, iteration), per spec.md §6/§4.10.
func (s *Server) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	if s.Worker == nil {
		writeError(w, http.StatusServiceUnavailable, "experiment queue worker is not configured")
		return
	}

	var req runBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if (req.Snapshot == nil) == (req.NetworkName == "") {
		writeError(w, http.StatusBadRequest, "exactly one of network or snapshot must be present")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items must not be empty")
		return
	}

	experimentID, err := s.Store.CreateExperiment(r.Context(), req.ExperimentDesc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var enqueueItems []store.EnqueueItem
	for _, item := range req.Items {
		systemParams := mergeMaps(req.SystemParams, item.SystemParams)
		for iteration := 0; iteration < item.Iterations; iteration++ {
			payload := queue.RunOnceRequest{
				NetworkName:    req.NetworkName,
				Version:        req.Version,
				Snapshot:       req.Snapshot,
				AgentKey:       req.AgentKey,
				UserMessage:    item.UserMessage,
				SystemParams:   systemParams,
				Model:          req.Model,
				MaxSteps:       req.MaxSteps,
				IdempotencyKey: idempotencyKey(experimentID, item.ItemIndex, iteration),
			}
			raw, err := json.Marshal(payload)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "encode queue payload: "+err.Error())
				return
			}
			var payloadMap map[string]any
			json.Unmarshal(raw, &payloadMap)

			enqueueItems = append(enqueueItems, store.EnqueueItem{
				ItemIndex: item.ItemIndex, Iteration: iteration, Payload: payloadMap,
			})
		}
	}

	if err := s.Worker.Enqueue(r.Context(), experimentID, enqueueItems); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"experiment_id": experimentID,
		"queued":        true,
		"total_runs":    len(enqueueItems),
	})
}

// idempotencyKey derives a deterministic key for one (experiment, item,
// iteration) tuple, per SPEC_FULL.md's open-question decision: re-enqueuing
// the same logical item always produces the same key, even across worker
// restarts.
func idempotencyKey(experimentID string, itemIndex, iteration int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", experimentID, itemIndex, iteration)))
	return hex.EncodeToString(sum[:])
}

func mergeMaps(base, override map[string]any) map[string]any {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
