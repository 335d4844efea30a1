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

// Package store persists RunRecord, ExperimentRecord, and
// ExperimentQueueItem rows over database/sql, with the driver selected from
// the DSN's URL scheme so the same code runs against Postgres, MySQL, or
// SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/agentnet/internal/apperrors"
)

// Store owns one *sql.DB and the schema for run/experiment/queue tables.
type Store struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

// Open resolves dsn's scheme to a driver, opens the connection, pings it,
// and initializes the schema. Supported schemes: postgres://, postgresql://,
// mysql://, sqlite://, plus a bare filesystem path (treated as sqlite).
func Open(ctx context.Context, dsn string) (*Store, error) {
	dialect, driverName, connStr, err := resolveDSN(dsn)
	if err != nil {
		return nil, apperrors.New(apperrors.KindConfigMissing, "store", "Open", "invalid DATABASE_URL", err)
	}

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, apperrors.New(apperrors.KindConfigMissing, "store", "Open", "failed to open database", err)
	}

	// SQLite only supports one writer; serialize all access through a
	// single connection to avoid "database is locked" errors.
	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.New(apperrors.KindConfigMissing, "store", "Open", "failed to connect to database", err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// resolveDSN maps a DATABASE_URL to (dialect, driver name, driver-specific
// connection string).
func resolveDSN(dsn string) (dialect, driver, connStr string, err error) {
	if dsn == "" {
		return "", "", "", fmt.Errorf("DATABASE_URL is empty")
	}
	if !strings.Contains(dsn, "://") {
		// Bare path: treat as a sqlite file.
		return "sqlite", "sqlite3", dsn, nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", "postgres", dsn, nil
	case "mysql":
		// database/sql's mysql driver wants the DSN without the scheme.
		return "mysql", "mysql", strings.TrimPrefix(dsn, "mysql://"), nil
	case "sqlite", "sqlite3", "file":
		path := u.Opaque
		if path == "" {
			path = u.Path
		}
		return "sqlite", "sqlite3", path, nil
	default:
		return "", "", "", fmt.Errorf("unsupported DATABASE_URL scheme %q", u.Scheme)
	}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ph returns a dialect-appropriate positional placeholder: "$1" for
// postgres, "?" for mysql/sqlite.
func (s *Store) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS run_records (
	run_id TEXT PRIMARY KEY,
	network_id TEXT,
	network_version_id TEXT,
	graph_version_key TEXT NOT NULL,
	user_message TEXT NOT NULL,
	status TEXT NOT NULL,
	request_json TEXT NOT NULL,
	response_json TEXT NOT NULL,
	experiment_id TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_records_experiment ON run_records(experiment_id);
CREATE INDEX IF NOT EXISTS idx_run_records_created_at ON run_records(created_at);

CREATE TABLE IF NOT EXISTS experiment_records (
	id TEXT PRIMARY KEY,
	description TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS experiment_queue_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id TEXT NOT NULL,
	item_index INTEGER NOT NULL,
	iteration INTEGER NOT NULL,
	status TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	result_json TEXT,
	error TEXT,
	enqueued_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_queue_status_enqueued ON experiment_queue_items(status, enqueued_at);
CREATE INDEX IF NOT EXISTS idx_queue_experiment ON experiment_queue_items(experiment_id);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS run_records (
	run_id TEXT PRIMARY KEY,
	network_id TEXT,
	network_version_id TEXT,
	graph_version_key TEXT NOT NULL,
	user_message TEXT NOT NULL,
	status TEXT NOT NULL,
	request_json TEXT NOT NULL,
	response_json TEXT NOT NULL,
	experiment_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_records_experiment ON run_records(experiment_id);
CREATE INDEX IF NOT EXISTS idx_run_records_created_at ON run_records(created_at);

CREATE TABLE IF NOT EXISTS experiment_records (
	id TEXT PRIMARY KEY,
	description TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS experiment_queue_items (
	id BIGSERIAL PRIMARY KEY,
	experiment_id TEXT NOT NULL,
	item_index INTEGER NOT NULL,
	iteration INTEGER NOT NULL,
	status TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	result_json TEXT,
	error TEXT,
	enqueued_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_queue_status_enqueued ON experiment_queue_items(status, enqueued_at);
CREATE INDEX IF NOT EXISTS idx_queue_experiment ON experiment_queue_items(experiment_id);
`

const schemaMySQL = `
CREATE TABLE IF NOT EXISTS run_records (
	run_id VARCHAR(64) PRIMARY KEY,
	network_id VARCHAR(128),
	network_version_id VARCHAR(128),
	graph_version_key VARCHAR(255) NOT NULL,
	user_message TEXT NOT NULL,
	status VARCHAR(16) NOT NULL,
	request_json TEXT NOT NULL,
	response_json LONGTEXT NOT NULL,
	experiment_id VARCHAR(64),
	created_at DATETIME NOT NULL,
	INDEX idx_run_records_experiment (experiment_id),
	INDEX idx_run_records_created_at (created_at)
);

CREATE TABLE IF NOT EXISTS experiment_records (
	id VARCHAR(64) PRIMARY KEY,
	description TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS experiment_queue_items (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	experiment_id VARCHAR(64) NOT NULL,
	item_index INTEGER NOT NULL,
	iteration INTEGER NOT NULL,
	status VARCHAR(16) NOT NULL,
	payload_json TEXT NOT NULL,
	result_json TEXT,
	error TEXT,
	enqueued_at DATETIME NOT NULL,
	started_at DATETIME NULL,
	completed_at DATETIME NULL,
	INDEX idx_queue_status_enqueued (status, enqueued_at),
	INDEX idx_queue_experiment (experiment_id)
);
`

func (s *Store) initSchema(ctx context.Context) error {
	var schema string
	switch s.dialect {
	case "postgres":
		schema = schemaPostgres
	case "mysql":
		schema = schemaMySQL
	default:
		schema = schemaSQLite
	}

	for _, stmt := range splitStatements(schema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.New(apperrors.KindConfigMissing, "store", "initSchema", "failed to initialize schema", err)
		}
	}

	if s.dialect == "sqlite" {
		s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		s.db.ExecContext(ctx, "PRAGMA busy_timeout=10000")
	}
	return nil
}

func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
