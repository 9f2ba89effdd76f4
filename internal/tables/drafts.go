package tables

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
)

// Draft statuses.
const (
	DraftPending   = "Pending"
	DraftReviewed  = "Reviewed"
	DraftSubmitted = "Submitted"
)

// Draft is a reviewer's tentative field overrides for one line. Overrides
// are applied on top of Stage 4 records at read time; they are never
// merged back into Stage 4.
type Draft struct {
	LineID      string
	Overrides   map[string]string
	Status      string
	Reviewer    string
	StartedAt   time.Time
	HeartbeatAt time.Time
	StoppedAt   time.Time
	UpdatedAt   time.Time
}

// DraftStore is the write side of human review.
type DraftStore struct {
	db *sql.DB
}

// Put upserts a draft by line id.
func (s *DraftStore) Put(ctx context.Context, d *Draft) error {
	if d.Status == "" {
		d.Status = DraftPending
	}
	overrides, err := json.Marshal(d.Overrides)
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}
	d.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_drafts (line_id, overrides, status, reviewer,
			started_at, heartbeat_at, stopped_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(line_id) DO UPDATE SET
			overrides = excluded.overrides,
			status = excluded.status,
			reviewer = excluded.reviewer,
			started_at = excluded.started_at,
			heartbeat_at = excluded.heartbeat_at,
			stopped_at = excluded.stopped_at,
			updated_at = excluded.updated_at`,
		d.LineID, string(overrides), d.Status, d.Reviewer,
		nullUnix(d.StartedAt), nullUnix(d.HeartbeatAt), nullUnix(d.StoppedAt),
		d.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert draft %s: %w", d.LineID, err)
	}
	return nil
}

// Get loads a draft by line id.
func (s *DraftStore) Get(ctx context.Context, lineID string) (*Draft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT line_id, overrides, status, reviewer, started_at, heartbeat_at, stopped_at, updated_at
		FROM review_drafts WHERE line_id = ?`, lineID)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, pe.Newf(pe.KindNotFound, "draft %s not found", lineID)
	}
	return d, err
}

// ForLines loads drafts for a set of line ids, keyed by line id.
func (s *DraftStore) ForLines(ctx context.Context, lineIDs []string) (map[string]*Draft, error) {
	out := make(map[string]*Draft, len(lineIDs))
	for _, id := range lineIDs {
		d, err := s.Get(ctx, id)
		if err != nil {
			if pe.Is(err, pe.KindNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = d
	}
	return out, nil
}

// Heartbeat refreshes the reviewer's timing metadata.
func (s *DraftStore) Heartbeat(ctx context.Context, lineID string) error {
	now := time.Now().UTC().Unix()
	_, err := s.db.ExecContext(ctx, `
		UPDATE review_drafts SET heartbeat_at = ?, updated_at = ? WHERE line_id = ?`,
		now, now, lineID)
	if err != nil {
		return fmt.Errorf("heartbeat draft %s: %w", lineID, err)
	}
	return nil
}

// SetStatus advances the review status for a set of lines.
func (s *DraftStore) SetStatus(ctx context.Context, lineIDs []string, status string) error {
	now := time.Now().UTC().Unix()
	for _, id := range lineIDs {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE review_drafts SET status = ?, updated_at = ? WHERE line_id = ?`,
			status, now, id); err != nil {
			return fmt.Errorf("set draft status %s: %w", id, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*Draft, error) {
	var d Draft
	var overrides string
	var started, heartbeat, stopped sql.NullInt64
	var updated int64
	err := row.Scan(&d.LineID, &overrides, &d.Status, &d.Reviewer,
		&started, &heartbeat, &stopped, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(overrides), &d.Overrides); err != nil {
		return nil, fmt.Errorf("unmarshal overrides: %w", err)
	}
	if started.Valid {
		d.StartedAt = time.Unix(started.Int64, 0).UTC()
	}
	if heartbeat.Valid {
		d.HeartbeatAt = time.Unix(heartbeat.Int64, 0).UTC()
	}
	if stopped.Valid {
		d.StoppedAt = time.Unix(stopped.Int64, 0).UTC()
	}
	d.UpdatedAt = time.Unix(updated, 0).UTC()
	return &d, nil
}

func nullUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
