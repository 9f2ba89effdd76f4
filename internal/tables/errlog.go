package tables

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"time"
)

// ErrorRecord is one row in the operator-facing failure feed.
type ErrorRecord struct {
	PK           string // ERROR#<filename>
	Timestamp    time.Time
	PDFKey       string
	ErrorType    string
	ErrorDetails string
	Date         string // YYYY-MM-DD, for the debug UI's daily feed
	Hour         int
}

// ErrorLog appends processor failures for the debug UI.
type ErrorLog struct {
	db *sql.DB
}

// Append writes one error row for the given object key.
func (l *ErrorLog) Append(ctx context.Context, pdfKey, errorType, details string) error {
	now := time.Now().UTC()
	pk := "ERROR#" + path.Base(pdfKey)
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO errors (pk, timestamp, pdf_key, error_type, error_details, date, hour)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pk, now.UnixNano(), pdfKey, errorType, details,
		now.Format("2006-01-02"), now.Hour())
	if err != nil {
		return fmt.Errorf("append error record: %w", err)
	}
	return nil
}

// ListByDate returns the error feed for one day, newest first.
func (l *ErrorLog) ListByDate(ctx context.Context, date string) ([]ErrorRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT pk, timestamp, pdf_key, error_type, error_details, date, hour
		FROM errors WHERE date = ? ORDER BY timestamp DESC`, date)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	var records []ErrorRecord
	for rows.Next() {
		var r ErrorRecord
		var ts int64
		if err := rows.Scan(&r.PK, &ts, &r.PDFKey, &r.ErrorType, &r.ErrorDetails, &r.Date, &r.Hour); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
