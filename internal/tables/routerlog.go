package tables

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RoutingDecision is the audit record of one router classification.
type RoutingDecision struct {
	PDFKey      string
	Timestamp   time.Time
	Destination string // Stage1_Standard/ or Stage1_LargeFile/
	Pages       int
	SizeMB      float64
	Reason      string
}

// RouterLog records routing decisions for audit.
type RouterLog struct {
	db *sql.DB
}

// Append writes one routing-decision row.
func (l *RouterLog) Append(ctx context.Context, d RoutingDecision) error {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO router_log (pdf_key, timestamp, destination, pages, size_mb, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.PDFKey, d.Timestamp.UnixNano(), d.Destination, d.Pages, d.SizeMB, d.Reason)
	if err != nil {
		return fmt.Errorf("append routing decision: %w", err)
	}
	return nil
}

// List returns all routing decisions for a PDF key, newest first.
func (l *RouterLog) List(ctx context.Context, pdfKey string) ([]RoutingDecision, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT pdf_key, timestamp, destination, pages, size_mb, reason
		FROM router_log WHERE pdf_key = ? ORDER BY timestamp DESC`, pdfKey)
	if err != nil {
		return nil, fmt.Errorf("query router log: %w", err)
	}
	defer rows.Close()

	var out []RoutingDecision
	for rows.Next() {
		var d RoutingDecision
		var ts int64
		if err := rows.Scan(&d.PDFKey, &ts, &d.Destination, &d.Pages, &d.SizeMB, &d.Reason); err != nil {
			return nil, fmt.Errorf("scan routing decision: %w", err)
		}
		d.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}
