// Package ubi implements utility billback: assigning posted bill lines
// to properties and periods under their stable content hash, and rolling
// assigned lines up into master bills.
package ubi

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/enrich"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// DateRange is an inclusive bill-date window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses "YYYY-MM-DD" bounds. A zero End means open-ended.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if start != "" {
		if r.Start, err = time.Parse("2006-01-02", start); err != nil {
			return r, pe.Wrap(err, pe.KindValidation, "parse start date")
		}
	}
	if end != "" {
		if r.End, err = time.Parse("2006-01-02", end); err != nil {
			return r, pe.Wrap(err, pe.KindValidation, "parse end date")
		}
	}
	return r, nil
}

// contains checks a bill date in MM/DD/YYYY form against the window.
// Unparseable dates are kept: a reviewer should see them, not lose them.
func (r DateRange) contains(billDate string) bool {
	if r.Start.IsZero() && r.End.IsZero() {
		return true
	}
	t, err := time.Parse("01/02/2006", billDate)
	if err != nil {
		return true
	}
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Period is one billback period of an assignment.
type Period struct {
	Period string  `json:"period"` // YYYY-MM
	Amount float64 `json:"amount"`
}

// Engine serves the UBI operations over the posted lines in Stage 7 and
// the assignment tables.
type Engine struct {
	Store storage.ObjectStore
	UBI   *tables.UBIStore
}

// Line is a posted line annotated with its hash and assignment status.
type Line struct {
	Record line.Record `json:"record"`
	Hash   string      `json:"line_hash"`
	Status string      `json:"status"`
}

func statusLabel(s tables.HashStatus) string {
	switch s {
	case tables.HashAssigned:
		return "assigned"
	case tables.HashArchived:
		return "archived"
	default:
		return "unassigned"
	}
}

// ListUnassigned returns posted lines in the window whose hash is in
// neither assignment table.
func (e *Engine) ListUnassigned(ctx context.Context, r DateRange) ([]Line, error) {
	return e.list(ctx, r, tables.HashUnassigned)
}

// ListAssigned returns posted lines in the window with active assignments.
func (e *Engine) ListAssigned(ctx context.Context, r DateRange) ([]Line, error) {
	return e.list(ctx, r, tables.HashAssigned)
}

// ListArchived returns posted lines in the window whose assignments were
// archived.
func (e *Engine) ListArchived(ctx context.Context, r DateRange) ([]Line, error) {
	return e.list(ctx, r, tables.HashArchived)
}

func (e *Engine) list(ctx context.Context, r DateRange, want tables.HashStatus) ([]Line, error) {
	records, err := e.loadPosted(ctx, r)
	if err != nil {
		return nil, err
	}
	known, err := e.UBI.KnownHashes(ctx)
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "load known hashes")
	}

	var out []Line
	for _, rec := range records {
		hash := line.StableHash(rec)
		status, ok := known[hash]
		if !ok {
			status = tables.HashUnassigned
		}
		if status != want {
			continue
		}
		out = append(out, Line{Record: rec, Hash: hash, Status: statusLabel(status)})
	}
	return out, nil
}

// loadPosted reads every Stage 7 line whose bill date falls in the window.
func (e *Engine) loadPosted(ctx context.Context, r DateRange) ([]line.Record, error) {
	keys, err := e.Store.List(ctx, stage.PostEntrata)
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "list posted outputs")
	}
	var records []line.Record
	for _, k := range keys {
		if !strings.HasSuffix(k, ".jsonl") {
			// Skip .posted.json and other sidecars.
			continue
		}
		data, err := e.Store.Get(ctx, k)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, pe.Wrap(err, pe.KindTransport, "read posted output")
		}
		rs, err := line.DecodeNDJSON(data)
		if err != nil {
			return nil, pe.Wrap(err, pe.KindValidation, "decode posted output")
		}
		for _, rec := range rs {
			if r.contains(rec.Get(line.FieldBillDate)) {
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

// findLine locates a posted line by line id.
func (e *Engine) findLine(ctx context.Context, lineID string) (line.Record, error) {
	records, err := e.loadPosted(ctx, DateRange{})
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Get("line_id") == lineID {
			return rec, nil
		}
	}
	return nil, pe.Newf(pe.KindNotFound, "posted line %s not found", lineID)
}

// Assign creates one assignment row per period under the line's stable
// hash and dual-writes the annotated line copy to Stage 8 and Stage 99.
func (e *Engine) Assign(ctx context.Context, lineID, propertyID string, periods []Period, assignedBy string) (string, error) {
	if len(periods) == 0 {
		return "", pe.New(pe.KindValidation, "assignment needs at least one period")
	}
	rec, err := e.findLine(ctx, lineID)
	if err != nil {
		return "", err
	}
	hash := line.StableHash(rec)

	sort.Slice(periods, func(i, j int) bool { return periods[i].Period < periods[j].Period })
	assignedDate := time.Now().UTC().Format("2006-01-02")

	assignments := make([]tables.Assignment, 0, len(periods))
	for _, p := range periods {
		assignments = append(assignments, tables.Assignment{
			LineHash:     hash,
			UBIPeriod:    p.Period,
			S3Key:        rec.Get("source_key"),
			Amount:       p.Amount,
			MonthsTotal:  len(periods),
			AssignedBy:   assignedBy,
			AssignedDate: assignedDate,
		})
	}
	if err := e.UBI.Assign(ctx, assignments); err != nil {
		return "", pe.Wrap(err, pe.KindTransport, "write assignments")
	}

	if err := e.writeAssignedCopy(ctx, rec, hash, propertyID, periods, assignedBy, assignedDate); err != nil {
		return "", err
	}
	slog.Info("Line assigned", logfields.LineID(lineID), logfields.LineHash(hash),
		logfields.PropertyID(propertyID), slog.Int("periods", len(periods)))
	return hash, nil
}

// writeAssignedCopy is the dual write: the annotated line lands in
// Stage 8 for roll-ups and in Stage 99 as a permanent history record.
// Legacy single-period fields come from the earliest period.
func (e *Engine) writeAssignedCopy(ctx context.Context, rec line.Record, hash, propertyID string, periods []Period, assignedBy, assignedDate string) error {
	c := rec.Clone()
	earliest := periods[0]
	c.Set(enrich.FieldPropertyID, propertyID)
	c.Set("ubi_period", earliest.Period)
	c.Set("ubi_amount", earliest.Amount)
	c.Set("ubi_months_total", len(periods))
	c.Set("ubi_assigned_by", assignedBy)
	c.Set("ubi_assigned_date", assignedDate)
	c.Set("ubi_assignments", periods)
	c.Set("ubi_period_count", len(periods))

	data, err := json.Marshal(c)
	if err != nil {
		return pe.Wrap(err, pe.KindInternal, "encode assigned line")
	}
	for _, prefix := range []string{stage.UBIAssigned, stage.HistoricalArchive} {
		if err := e.Store.Put(ctx, prefix+hash+".json", data); err != nil {
			return pe.Wrap(err, pe.KindTransport, "write assigned line copy")
		}
	}
	return nil
}

// Unassign removes a line's assignment rows and its Stage 8 copy. The
// Stage 99 history record stays.
func (e *Engine) Unassign(ctx context.Context, lineHash string) error {
	if err := e.UBI.Unassign(ctx, lineHash); err != nil {
		return pe.Wrap(err, pe.KindTransport, "delete assignments")
	}
	if err := e.Store.Delete(ctx, stage.UBIAssigned+lineHash+".json"); err != nil && !storage.IsNotFound(err) {
		slog.Warn("Assigned copy delete failed", logfields.LineHash(lineHash), logfields.Error(err))
	}
	slog.Info("Line unassigned", logfields.LineHash(lineHash))
	return nil
}

// Reassign replaces a line's periods and property in one table
// transaction, then rewrites the Stage 8 and Stage 99 copies.
func (e *Engine) Reassign(ctx context.Context, lineID, propertyID string, periods []Period, assignedBy string) (string, error) {
	if len(periods) == 0 {
		return "", pe.New(pe.KindValidation, "reassignment needs at least one period")
	}
	rec, err := e.findLine(ctx, lineID)
	if err != nil {
		return "", err
	}
	hash := line.StableHash(rec)

	sort.Slice(periods, func(i, j int) bool { return periods[i].Period < periods[j].Period })
	assignedDate := time.Now().UTC().Format("2006-01-02")

	assignments := make([]tables.Assignment, 0, len(periods))
	for _, p := range periods {
		assignments = append(assignments, tables.Assignment{
			LineHash:     hash,
			UBIPeriod:    p.Period,
			S3Key:        rec.Get("source_key"),
			Amount:       p.Amount,
			MonthsTotal:  len(periods),
			AssignedBy:   assignedBy,
			AssignedDate: assignedDate,
		})
	}
	if err := e.UBI.Reassign(ctx, hash, assignments); err != nil {
		return "", pe.Wrap(err, pe.KindTransport, "replace assignments")
	}
	if err := e.writeAssignedCopy(ctx, rec, hash, propertyID, periods, assignedBy, assignedDate); err != nil {
		return "", err
	}
	slog.Info("Line reassigned", logfields.LineID(lineID), logfields.LineHash(hash))
	return hash, nil
}

// Archive migrates a line's rows to the archive table.
func (e *Engine) Archive(ctx context.Context, lineHash string) error {
	if err := e.UBI.Archive(ctx, lineHash); err != nil {
		return pe.Wrap(err, pe.KindTransport, "archive assignments")
	}
	slog.Info("Line archived", logfields.LineHash(lineHash))
	return nil
}

// Suggest returns historical assignments matching the line's account
// number, as period and property candidates for the reviewer.
func (e *Engine) Suggest(ctx context.Context, lineID string) ([]tables.Assignment, error) {
	rec, err := e.findLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	account := rec.Get(line.FieldAccountNumber)
	if account == "" {
		return nil, nil
	}
	out, err := e.UBI.SuggestByAccount(ctx, account, 10)
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "query suggestions")
	}
	return out, nil
}

// PropertyStat counts files with unassigned lines for one property.
type PropertyStat struct {
	PropertyID string `json:"property_id"`
	Files      int    `json:"files"`
}

// StatsByProperty counts, per property, the PDFs with at least one
// unassigned line in the window.
func (e *Engine) StatsByProperty(ctx context.Context, r DateRange) ([]PropertyStat, error) {
	lines, err := e.ListUnassigned(ctx, r)
	if err != nil {
		return nil, err
	}
	files := map[string]map[string]bool{}
	for _, l := range lines {
		prop := l.Record.Get(enrich.FieldPropertyID)
		if prop == "" {
			prop = "unknown"
		}
		if files[prop] == nil {
			files[prop] = map[string]bool{}
		}
		files[prop][l.Record.Get("pdf_id")] = true
	}

	stats := make([]PropertyStat, 0, len(files))
	for prop, pdfs := range files {
		stats = append(stats, PropertyStat{PropertyID: prop, Files: len(pdfs)})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].PropertyID < stats[j].PropertyID })
	return stats, nil
}
