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

	"github.com/google/uuid"

	"github.com/kadirpekel/agentnet/internal/apperrors"
)

// Queue status values, per spec.md §3.
const (
	QueueStatusPending    = "pending"
	QueueStatusInProgress = "in_progress"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// ExperimentRecord is a named batch of queued runs sharing common parameters.
type ExperimentRecord struct {
	ID          string
	Description string
	CreatedAt   time.Time
}

// ExperimentQueueItem is one queue row: one iteration of one item of one
// experiment.
type ExperimentQueueItem struct {
	ID           int64
	ExperimentID string
	ItemIndex    int
	Iteration    int
	Status       string
	Payload      map[string]any
	Result       map[string]any
	Error        string
	EnqueuedAt   time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// CreateExperiment registers a new experiment and returns its generated id.
func (s *Store) CreateExperiment(ctx context.Context, description string) (string, error) {
	id := uuid.NewString()
	query := `INSERT INTO experiment_records (id, description, created_at) VALUES (` + s.ph(1) + `,` + s.ph(2) + `,` + s.ph(3) + `)`
	if _, err := s.db.ExecContext(ctx, query, id, description, time.Now().UTC()); err != nil {
		return "", apperrors.New(apperrors.KindPersistenceFailure, "store", "CreateExperiment", "insert experiment_records", err)
	}
	return id, nil
}

// GetExperiment fetches one experiment summary, or (nil, nil) if absent.
func (s *Store) GetExperiment(ctx context.Context, id string) (*ExperimentRecord, error) {
	query := `SELECT id, description, created_at FROM experiment_records WHERE id = ` + s.ph(1)
	var rec ExperimentRecord
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &desc, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "GetExperiment", "select experiment_records", err)
	}
	rec.Description = desc.String
	return &rec, nil
}

// ListExperiments returns every experiment, newest first, for the
// /experiments list endpoint.
func (s *Store) ListExperiments(ctx context.Context) ([]ExperimentRecord, error) {
	query := `SELECT id, description, created_at FROM experiment_records ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "ListExperiments", "select experiment_records", err)
	}
	defer rows.Close()

	var out []ExperimentRecord
	for rows.Next() {
		var rec ExperimentRecord
		var desc sql.NullString
		if err := rows.Scan(&rec.ID, &desc, &rec.CreatedAt); err != nil {
			return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "ListExperiments", "scan", err)
		}
		rec.Description = desc.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// QueueItemStatusCounts summarizes one experiment's queue progress, grouped by
// status, for the /experiments/{id} response.
func (s *Store) QueueItemStatusCounts(ctx context.Context, experimentID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM experiment_queue_items WHERE experiment_id = ` + s.ph(1) + ` GROUP BY status`
	rows, err := s.db.QueryContext(ctx, query, experimentID)
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "QueueItemStatusCounts", "select experiment_queue_items", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "QueueItemStatusCounts", "scan", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

// EnqueueItem is one (item_index, iteration, payload) tuple to enqueue.
type EnqueueItem struct {
	ItemIndex int
	Iteration int
	Payload   map[string]any
}

// Enqueue writes all of items atomically, ordered by (item_index, iteration),
// per spec.md §4.10.
func (s *Store) Enqueue(ctx context.Context, experimentID string, items []EnqueueItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.New(apperrors.KindPersistenceFailure, "store", "Enqueue", "begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	query := `INSERT INTO experiment_queue_items
		(experiment_id, item_index, iteration, status, payload_json, enqueued_at)
		VALUES (` + s.ph(1) + `,` + s.ph(2) + `,` + s.ph(3) + `,` + s.ph(4) + `,` + s.ph(5) + `,` + s.ph(6) + `)`

	for _, item := range items {
		payloadJSON, err := json.Marshal(item.Payload)
		if err != nil {
			return apperrors.New(apperrors.KindPersistenceFailure, "store", "Enqueue", "marshal payload_json", err)
		}
		if _, err := tx.ExecContext(ctx, query, experimentID, item.ItemIndex, item.Iteration, QueueStatusPending, string(payloadJSON), now); err != nil {
			return apperrors.New(apperrors.KindPersistenceFailure, "store", "Enqueue", "insert experiment_queue_items", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.New(apperrors.KindPersistenceFailure, "store", "Enqueue", "commit tx", err)
	}
	return nil
}

// LeaseNext selects the oldest pending row, flips it to in_progress, and
// returns it. Returns (nil, nil) if no pending row exists.
func (s *Store) LeaseNext(ctx context.Context) (*ExperimentQueueItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "LeaseNext", "begin tx", err)
	}
	defer tx.Rollback()

	selectQuery := `SELECT id, experiment_id, item_index, iteration, payload_json, enqueued_at
		FROM experiment_queue_items WHERE status = ` + s.ph(1) + ` ORDER BY enqueued_at ASC, item_index ASC, iteration ASC LIMIT 1`

	var item ExperimentQueueItem
	var payloadJSON string
	err = tx.QueryRowContext(ctx, selectQuery, QueueStatusPending).Scan(
		&item.ID, &item.ExperimentID, &item.ItemIndex, &item.Iteration, &payloadJSON, &item.EnqueuedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "LeaseNext", "select pending item", err)
	}

	now := time.Now().UTC()
	updateQuery := `UPDATE experiment_queue_items SET status = ` + s.ph(1) + `, started_at = ` + s.ph(2) + ` WHERE id = ` + s.ph(3)
	if _, err := tx.ExecContext(ctx, updateQuery, QueueStatusInProgress, now, item.ID); err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "LeaseNext", "flip to in_progress", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "LeaseNext", "commit tx", err)
	}

	item.Status = QueueStatusInProgress
	item.StartedAt = &now
	json.Unmarshal([]byte(payloadJSON), &item.Payload)
	return &item, nil
}

// MarkCompleted records the terminal outcome of a leased item.
func (s *Store) MarkCompleted(ctx context.Context, id int64, succeeded bool, errMsg string, result map[string]any) error {
	status := QueueStatusCompleted
	if !succeeded {
		status = QueueStatusFailed
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return apperrors.New(apperrors.KindPersistenceFailure, "store", "MarkCompleted", "marshal result_json", err)
	}

	query := `UPDATE experiment_queue_items SET status = ` + s.ph(1) + `, completed_at = ` + s.ph(2) + `, error = ` + s.ph(3) + `, result_json = ` + s.ph(4) + ` WHERE id = ` + s.ph(5)
	if _, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), nullable(errMsg), string(resultJSON), id); err != nil {
		return apperrors.New(apperrors.KindPersistenceFailure, "store", "MarkCompleted", "update experiment_queue_items", err)
	}
	return nil
}

// RecoverStale resets rows stuck in_progress longer than staleTimeout back
// to pending, clearing started_at/error/result, per spec.md §4.10. Returns
// the number of rows recovered.
func (s *Store) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleTimeout)
	query := `UPDATE experiment_queue_items SET status = ` + s.ph(1) + `, started_at = NULL, error = NULL, result_json = NULL
		WHERE status = ` + s.ph(2) + ` AND started_at < ` + s.ph(3)

	res, err := s.db.ExecContext(ctx, query, QueueStatusPending, QueueStatusInProgress, cutoff)
	if err != nil {
		return 0, apperrors.New(apperrors.KindPersistenceFailure, "store", "RecoverStale", "reset stale rows", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListQueueItems returns every row for one experiment, ordered by
// (item_index, iteration).
func (s *Store) ListQueueItems(ctx context.Context, experimentID string) ([]ExperimentQueueItem, error) {
	query := `SELECT id, experiment_id, item_index, iteration, status, payload_json, result_json, error, enqueued_at, started_at, completed_at
		FROM experiment_queue_items WHERE experiment_id = ` + s.ph(1) + ` ORDER BY item_index ASC, iteration ASC`

	rows, err := s.db.QueryContext(ctx, query, experimentID)
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "ListQueueItems", "select experiment_queue_items", err)
	}
	defer rows.Close()

	var out []ExperimentQueueItem
	for rows.Next() {
		var item ExperimentQueueItem
		var payloadJSON string
		var resultJSON, errMsg sql.NullString
		var startedAt, completedAt sql.NullTime

		if err := rows.Scan(&item.ID, &item.ExperimentID, &item.ItemIndex, &item.Iteration, &item.Status,
			&payloadJSON, &resultJSON, &errMsg, &item.EnqueuedAt, &startedAt, &completedAt); err != nil {
			return nil, apperrors.New(apperrors.KindPersistenceFailure, "store", "ListQueueItems", "scan", err)
		}

		json.Unmarshal([]byte(payloadJSON), &item.Payload)
		if resultJSON.Valid {
			json.Unmarshal([]byte(resultJSON.String), &item.Result)
		}
		item.Error = errMsg.String
		if startedAt.Valid {
			t := startedAt.Time
			item.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			item.CompletedAt = &t
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
