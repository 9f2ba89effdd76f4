package tables

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Assignment is one (line_hash, period) row. A single line hash may
// carry many assignments: one per billback period.
type Assignment struct {
	LineHash     string
	UBIPeriod    string // YYYY-MM
	S3Key        string
	Amount       float64
	MonthsTotal  int
	AssignedBy   string
	AssignedDate string
}

// UBIStore persists the assignment table and its archive twin. Rows
// migrate assignment -> archive exactly once, when a reviewer archives
// the line; both tables share a schema and a primary key.
type UBIStore struct {
	db *sql.DB
}

const (
	tableAssignments = "ubi_assignments"
	tableArchived    = "ubi_archived"
)

// Assign inserts one row per period under the line's stable hash, in one
// transaction. Existing (hash, period) rows are replaced, which is what
// makes event re-delivery idempotent.
func (s *UBIStore) Assign(ctx context.Context, assignments []Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, a := range assignments {
		if a.AssignedDate == "" {
			a.AssignedDate = time.Now().UTC().Format("2006-01-02")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO ubi_assignments
				(line_hash, ubi_period, s3_key, amount, months_total, assigned_by, assigned_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.LineHash, a.UBIPeriod, a.S3Key, a.Amount, a.MonthsTotal,
			a.AssignedBy, a.AssignedDate); err != nil {
			return fmt.Errorf("insert assignment %s/%s: %w", a.LineHash, a.UBIPeriod, err)
		}
	}
	return tx.Commit()
}

// Unassign deletes every assignment row for a line hash.
func (s *UBIStore) Unassign(ctx context.Context, lineHash string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM ubi_assignments WHERE line_hash = ?`, lineHash)
	if err != nil {
		return fmt.Errorf("delete assignments for %s: %w", lineHash, err)
	}
	return nil
}

// Reassign replaces a line's assignment rows with a new set, atomically
// (delete-then-put under the same hash).
func (s *UBIStore) Reassign(ctx context.Context, lineHash string, assignments []Assignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ubi_assignments WHERE line_hash = ?`, lineHash); err != nil {
		return fmt.Errorf("delete assignments for %s: %w", lineHash, err)
	}
	for _, a := range assignments {
		if a.AssignedDate == "" {
			a.AssignedDate = time.Now().UTC().Format("2006-01-02")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ubi_assignments
				(line_hash, ubi_period, s3_key, amount, months_total, assigned_by, assigned_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.LineHash, a.UBIPeriod, a.S3Key, a.Amount, a.MonthsTotal,
			a.AssignedBy, a.AssignedDate); err != nil {
			return fmt.Errorf("insert assignment %s/%s: %w", a.LineHash, a.UBIPeriod, err)
		}
	}
	return tx.Commit()
}

// Archive migrates every row for a line hash from the assignment table
// to the archive twin in one transaction. Archiving an already-archived
// line is a no-op.
func (s *UBIStore) Archive(ctx context.Context, lineHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO ubi_archived
			(line_hash, ubi_period, s3_key, amount, months_total, assigned_by, assigned_date)
		SELECT line_hash, ubi_period, s3_key, amount, months_total, assigned_by, assigned_date
		FROM ubi_assignments WHERE line_hash = ?`, lineHash); err != nil {
		return fmt.Errorf("copy to archive for %s: %w", lineHash, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ubi_assignments WHERE line_hash = ?`, lineHash); err != nil {
		return fmt.Errorf("delete archived assignments for %s: %w", lineHash, err)
	}
	return tx.Commit()
}

// Get returns all assignment rows for a line hash, sorted by period.
func (s *UBIStore) Get(ctx context.Context, lineHash string) ([]Assignment, error) {
	return s.get(ctx, tableAssignments, lineHash)
}

// GetArchived returns the archive twin's rows for a line hash.
func (s *UBIStore) GetArchived(ctx context.Context, lineHash string) ([]Assignment, error) {
	return s.get(ctx, tableArchived, lineHash)
}

func (s *UBIStore) get(ctx context.Context, table, lineHash string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_hash, ubi_period, s3_key, amount, months_total, assigned_by, assigned_date
		FROM `+table+` WHERE line_hash = ? ORDER BY ubi_period`, lineHash)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// HashStatus describes which table knows a line hash.
type HashStatus int

const (
	HashUnassigned HashStatus = iota
	HashAssigned
	HashArchived
)

// Status resolves a line hash against both tables. The assignment table
// wins when a hash somehow appears in both.
func (s *UBIStore) Status(ctx context.Context, lineHash string) (HashStatus, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ubi_assignments WHERE line_hash = ?`, lineHash).Scan(&n); err != nil {
		return HashUnassigned, fmt.Errorf("count assignments: %w", err)
	}
	if n > 0 {
		return HashAssigned, nil
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ubi_archived WHERE line_hash = ?`, lineHash).Scan(&n); err != nil {
		return HashUnassigned, fmt.Errorf("count archived: %w", err)
	}
	if n > 0 {
		return HashArchived, nil
	}
	return HashUnassigned, nil
}

// KnownHashes returns every hash present in either table, for bulk
// exclusion during unassigned scans.
func (s *UBIStore) KnownHashes(ctx context.Context) (map[string]HashStatus, error) {
	out := make(map[string]HashStatus)
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT line_hash FROM ubi_assignments`)
	if err != nil {
		return nil, fmt.Errorf("query assignment hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out[h] = HashAssigned
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	archived, err := s.db.QueryContext(ctx, `SELECT DISTINCT line_hash FROM ubi_archived`)
	if err != nil {
		return nil, fmt.Errorf("query archived hashes: %w", err)
	}
	defer archived.Close()
	for archived.Next() {
		var h string
		if err := archived.Scan(&h); err != nil {
			return nil, err
		}
		if _, ok := out[h]; !ok {
			out[h] = HashArchived
		}
	}
	return out, archived.Err()
}

// SuggestByAccount returns historical assignments whose stored line keys
// share the given account number fragment. The review UI uses these as
// period/property suggestions.
func (s *UBIStore) SuggestByAccount(ctx context.Context, account string, limit int) ([]Assignment, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ReplaceAll(account, "%", "") + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_hash, ubi_period, s3_key, amount, months_total, assigned_by, assigned_date
		FROM (
			SELECT * FROM ubi_assignments WHERE s3_key LIKE ?
			UNION ALL
			SELECT * FROM ubi_archived WHERE s3_key LIKE ?
		) ORDER BY assigned_date DESC LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func scanAssignments(rows *sql.Rows) ([]Assignment, error) {
	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.LineHash, &a.UBIPeriod, &a.S3Key, &a.Amount,
			&a.MonthsTotal, &a.AssignedBy, &a.AssignedDate); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LineHash != out[j].LineHash {
			return out[i].LineHash < out[j].LineHash
		}
		return out[i].UBIPeriod < out[j].UBIPeriod
	})
	return out, nil
}
