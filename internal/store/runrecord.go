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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/kadirpekel/agentnet/internal/apperrors"
)

// RunRecord is one persisted run: the request that produced it and the full
// response payload, for later retrieval via /runs and /runs/{id}.
type RunRecord struct {
	RunID            string
	NetworkID        string
	NetworkVersionID string
	GraphVersionKey  string
	UserMessage      string
	Status           string
	RequestPayload   map[string]any
	ResponsePayload  map[string]any
	ExperimentID     string
	CreatedAt        time.Time
}

// SaveRun writes rec in a single statement. Per spec.md §6, a write failure
// here must never fail the caller's response; callers should log the error
// (tagged apperrors.KindPersistenceFailure) and proceed.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) error {
	reqJSON, err := json.Marshal(rec.RequestPayload)
	if err != nil {
		return apperrors.New(apperrors.KindPersistenceFailure, "store", "SaveRun", "marshal request_json", err)
	}
	respJSON, err := json.Marshal(rec.ResponsePayload)
	if err != nil {
		return apperrors.New(apperrors.KindPersistenceFailure, "store", "SaveRun", "marshal response_json", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO run_records
		(run_id, network_id, network_version_id, graph_version_key, user_message, status, request_json, response_json, experiment_id, created_at)
		VALUES (` + s.ph(1) + `,` + s.ph(2) + `,` + s.ph(3) + `,` + s.ph(4) + `,` + s.ph(5) + `,` + s.ph(6) + `,` + s.ph(7) + `,` + s.ph(8) + `,` + s.ph(9) + `,` + s.ph(10) + `)`

	_, err = s.db.ExecContext(ctx, query,
		rec.RunID, nullable(rec.NetworkID), nullable(rec.NetworkVersionID), rec.GraphVersionKey,
		rec.UserMessage, rec.Status, string(reqJSON), string(respJSON), nullable(rec.ExperimentID), rec.CreatedAt,
	)
	if err != nil {
		return apperrors.New(apperrors.KindPersistenceFailure, "store", "SaveRun", "insert run_records", err)
	}
	return nil
}

// GetRun fetches one run by id, or (nil, nil) if it does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	query := `SELECT run_id, network_id, network_version_id, graph_version_key, user_message, status, request_json, response_json, experiment_id, created_at
		FROM run_records WHERE run_id = ` + s.ph(1)

	var rec RunRecord
	var networkID, networkVersionID, experimentID sql.NullString
	var reqJSON, respJSON string

	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&rec.RunID, &networkID, &networkVersionID, &rec.GraphVersionKey,
		&rec.UserMessage, &rec.Status, &reqJSON, &respJSON, &experimentID, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "GetRun", "select run_records", err)
	}

	rec.NetworkID = networkID.String
	rec.NetworkVersionID = networkVersionID.String
	rec.ExperimentID = experimentID.String
	json.Unmarshal([]byte(reqJSON), &rec.RequestPayload)
	json.Unmarshal([]byte(respJSON), &rec.ResponsePayload)
	return &rec, nil
}

// ListRuns returns runs newest-first, capped at limit (default 50) and
// offset by offset, for the /runs list endpoint's pagination.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT run_id, network_id, network_version_id, graph_version_key, user_message, status, request_json, response_json, experiment_id, created_at
		FROM run_records ORDER BY created_at DESC LIMIT ` + s.ph(1) + ` OFFSET ` + s.ph(2)

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "ListRuns", "select run_records", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var networkID, networkVersionID, experimentID sql.NullString
		var reqJSON, respJSON string
		if err := rows.Scan(&rec.RunID, &networkID, &networkVersionID, &rec.GraphVersionKey,
			&rec.UserMessage, &rec.Status, &reqJSON, &respJSON, &experimentID, &rec.CreatedAt); err != nil {
			return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "ListRuns", "scan run_records", err)
		}
		rec.NetworkID = networkID.String
		rec.NetworkVersionID = networkVersionID.String
		rec.ExperimentID = experimentID.String
		json.Unmarshal([]byte(reqJSON), &rec.RequestPayload)
		json.Unmarshal([]byte(respJSON), &rec.ResponsePayload)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRuns returns the total number of persisted runs, for the /runs list
// endpoint's total count.
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_records`).Scan(&n); err != nil {
		return 0, apperrors.New(apperrors.KindPersistenceFailure, "store", "CountRuns", "count run_records", err)
	}
	return n, nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
