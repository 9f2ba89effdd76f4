// Package tables holds the pipeline's persisted state: job tracking for
// chunked parses, UBI assignments and their archive twin, the error log,
// the router audit log, review drafts, and versioned config entries.
// State beyond object placement lives here and nowhere else.
package tables

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the shared sqlite handle. Use ":memory:" in tests.
type DB struct {
	sql *sql.DB
}

// Open opens (and migrates) the billflow database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes internally but rejects concurrent
	// writers at the driver level; a single connection sidesteps
	// SQLITE_BUSY under parallel processors.
	db.SetMaxOpenConns(1)

	d := &DB{sql: db}
	if err := d.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return d, nil
}

func (d *DB) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		source_file TEXT NOT NULL,
		total_chunks INTEGER NOT NULL,
		chunks_completed INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'processing',
		chunk_keys TEXT NOT NULL,
		chunk_results TEXT NOT NULL DEFAULT '[]',
		previous_context TEXT NOT NULL DEFAULT '',
		expected_lines INTEGER,
		bill_from TEXT NOT NULL DEFAULT '',
		doc_type TEXT NOT NULL DEFAULT '',
		pages_per_chunk INTEGER NOT NULL,
		output_key TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS ubi_assignments (
		line_hash TEXT NOT NULL,
		ubi_period TEXT NOT NULL,
		s3_key TEXT NOT NULL,
		amount REAL NOT NULL,
		months_total INTEGER NOT NULL,
		assigned_by TEXT NOT NULL,
		assigned_date TEXT NOT NULL,
		PRIMARY KEY (line_hash, ubi_period)
	);

	CREATE TABLE IF NOT EXISTS ubi_archived (
		line_hash TEXT NOT NULL,
		ubi_period TEXT NOT NULL,
		s3_key TEXT NOT NULL,
		amount REAL NOT NULL,
		months_total INTEGER NOT NULL,
		assigned_by TEXT NOT NULL,
		assigned_date TEXT NOT NULL,
		PRIMARY KEY (line_hash, ubi_period)
	);

	CREATE TABLE IF NOT EXISTS errors (
		pk TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		pdf_key TEXT NOT NULL,
		error_type TEXT NOT NULL,
		error_details TEXT NOT NULL,
		date TEXT NOT NULL,
		hour INTEGER NOT NULL,
		PRIMARY KEY (pk, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_errors_date ON errors(date);

	CREATE TABLE IF NOT EXISTS router_log (
		pdf_key TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		destination TEXT NOT NULL,
		pages INTEGER NOT NULL,
		size_mb REAL NOT NULL,
		reason TEXT NOT NULL,
		PRIMARY KEY (pdf_key, timestamp)
	);

	CREATE TABLE IF NOT EXISTS review_drafts (
		line_id TEXT PRIMARY KEY,
		overrides TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'Pending',
		reviewer TEXT NOT NULL DEFAULT '',
		started_at INTEGER,
		heartbeat_at INTEGER,
		stopped_at INTEGER,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS config_entries (
		config_type TEXT NOT NULL,
		config_key TEXT NOT NULL,
		value TEXT NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (config_type, config_key, version)
	);
	`
	_, err := d.sql.Exec(schema)
	return err
}

// Jobs returns the chunk-job store.
func (d *DB) Jobs() *JobStore { return &JobStore{db: d.sql} }

// UBI returns the assignment table store.
func (d *DB) UBI() *UBIStore { return &UBIStore{db: d.sql} }

// Errors returns the error log.
func (d *DB) Errors() *ErrorLog { return &ErrorLog{db: d.sql} }

// RouterLog returns the routing-decision audit log.
func (d *DB) RouterLog() *RouterLog { return &RouterLog{db: d.sql} }

// Drafts returns the review draft store.
func (d *DB) Drafts() *DraftStore { return &DraftStore{db: d.sql} }

// Config returns the versioned config store.
func (d *DB) Config() *ConfigStore { return &ConfigStore{db: d.sql} }

// Close closes the database connection.
func (d *DB) Close() error { return d.sql.Close() }
