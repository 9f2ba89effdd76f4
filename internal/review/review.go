// Package review is the read/annotate surface over Stage 4: reviewers see
// enriched lines with their draft overrides applied, and batch operations
// write drafts or rework sidecars without ever mutating Stage 4 objects.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/enrich"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/sidecar"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// Service combines Stage 4 reads with the draft store.
type Service struct {
	Store  storage.ObjectStore
	Drafts *tables.DraftStore
}

// Date is one day with enriched output present.
type Date struct {
	Year  int `json:"yyyy"`
	Month int `json:"mm"`
	Day   int `json:"dd"`
}

var partitionRe = regexp.MustCompile(`yyyy=(\d{4})/mm=(\d{2})/dd=(\d{2})/`)

// ListDates returns the distinct date partitions under Stage 4, ascending.
func (s *Service) ListDates(ctx context.Context) ([]Date, error) {
	keys, err := s.Store.List(ctx, stage.EnrichedOutputs)
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "list enriched outputs")
	}
	seen := map[Date]bool{}
	for _, k := range keys {
		m := partitionRe.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		var d Date
		fmt.Sscanf(m[1], "%d", &d.Year)
		fmt.Sscanf(m[2], "%d", &d.Month)
		fmt.Sscanf(m[3], "%d", &d.Day)
		seen[d] = true
	}
	dates := make([]Date, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool {
		if dates[i].Year != dates[j].Year {
			return dates[i].Year < dates[j].Year
		}
		if dates[i].Month != dates[j].Month {
			return dates[i].Month < dates[j].Month
		}
		return dates[i].Day < dates[j].Day
	})
	return dates, nil
}

// datePrefix builds the Stage 4 partition prefix for a day.
func datePrefix(d Date) string {
	return fmt.Sprintf("%syyyy=%04d/mm=%02d/dd=%02d/",
		stage.EnrichedOutputs, d.Year, d.Month, d.Day)
}

// LinesForDate returns every enriched line for a day with draft overrides
// applied.
func (s *Service) LinesForDate(ctx context.Context, d Date) ([]line.Record, error) {
	keys, err := s.Store.List(ctx, datePrefix(d))
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "list enriched partition")
	}
	var records []line.Record
	for _, k := range keys {
		data, err := s.Store.Get(ctx, k)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, pe.Wrap(err, pe.KindTransport, "read enriched output")
		}
		rs, err := line.DecodeNDJSON(data)
		if err != nil {
			return nil, pe.Wrap(err, pe.KindValidation, "decode enriched output")
		}
		records = append(records, rs...)
	}
	return s.withOverrides(ctx, records)
}

// withOverrides applies each line's draft on top of a clone of the
// record. Stage 4 content is never modified.
func (s *Service) withOverrides(ctx context.Context, records []line.Record) ([]line.Record, error) {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id := r.Get("line_id"); id != "" {
			ids = append(ids, id)
		}
	}
	drafts, err := s.Drafts.ForLines(ctx, ids)
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "load drafts")
	}
	return ApplyOverrides(records, drafts), nil
}

// ApplyOverrides returns clones of records with draft overrides laid on
// top; records without a draft pass through unchanged.
func ApplyOverrides(records []line.Record, drafts map[string]*tables.Draft) []line.Record {
	out := make([]line.Record, 0, len(records))
	for _, r := range records {
		d := drafts[r.Get("line_id")]
		if d == nil || len(d.Overrides) == 0 {
			out = append(out, r)
			continue
		}
		c := r.Clone()
		for field, value := range d.Overrides {
			c.Set(field, value)
		}
		c.Set("override_fields", sortedKeys(d.Overrides))
		out = append(out, c)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BulkAssignProperty writes a property override draft for every line of
// the given pdf ids on one day.
func (s *Service) BulkAssignProperty(ctx context.Context, d Date, pdfIDs []string, propertyID, reviewer string) (int, error) {
	return s.bulkOverride(ctx, d, pdfIDs, reviewer, map[string]string{
		enrich.FieldPropertyID: propertyID,
	})
}

// BulkAssignVendor writes a vendor override draft for every line of the
// given pdf ids on one day.
func (s *Service) BulkAssignVendor(ctx context.Context, d Date, pdfIDs []string, vendorID, reviewer string) (int, error) {
	return s.bulkOverride(ctx, d, pdfIDs, reviewer, map[string]string{
		enrich.FieldVendorID: vendorID,
	})
}

func (s *Service) bulkOverride(ctx context.Context, d Date, pdfIDs []string, reviewer string, overrides map[string]string) (int, error) {
	records, err := s.LinesForDate(ctx, d)
	if err != nil {
		return 0, err
	}
	want := map[string]bool{}
	for _, id := range pdfIDs {
		want[id] = true
	}

	updated := 0
	now := time.Now().UTC()
	for _, r := range records {
		if !want[r.Get("pdf_id")] {
			continue
		}
		lineID := r.Get("line_id")
		if lineID == "" {
			continue
		}
		draft, err := s.Drafts.Get(ctx, lineID)
		if err != nil {
			if !pe.Is(err, pe.KindNotFound) {
				return updated, pe.Wrap(err, pe.KindTransport, "load draft")
			}
			draft = &tables.Draft{LineID: lineID, Overrides: map[string]string{}, StartedAt: now}
		}
		if draft.Overrides == nil {
			draft.Overrides = map[string]string{}
		}
		for k, v := range overrides {
			draft.Overrides[k] = v
		}
		draft.Reviewer = reviewer
		draft.HeartbeatAt = now
		if err := s.Drafts.Put(ctx, draft); err != nil {
			return updated, pe.Wrap(err, pe.KindTransport, "save draft")
		}
		updated++
	}
	return updated, nil
}

// Rework flags archived PDFs for re-extraction by writing a rework
// sidecar next to each Stage 2 copy. The re-ingest sweep picks the PDF up
// together with the sidecar.
func (s *Service) Rework(ctx context.Context, d Date, pdfIDs []string, hints sidecar.Hints) (int, error) {
	records, err := s.LinesForDate(ctx, d)
	if err != nil {
		return 0, err
	}
	want := map[string]bool{}
	for _, id := range pdfIDs {
		want[id] = true
	}

	// One sidecar per PDF, not per line.
	sources := map[string]bool{}
	for _, r := range records {
		if want[r.Get("pdf_id")] {
			if src := r.Get("source_key"); src != "" {
				sources[src] = true
			}
		}
	}

	payload, err := json.Marshal(hints)
	if err != nil {
		return 0, pe.Wrap(err, pe.KindInternal, "encode rework hints")
	}
	written := 0
	for src := range sources {
		key := stage.SidecarKey(src, stage.SidecarRework)
		if err := s.Store.Put(ctx, key, payload); err != nil {
			return written, pe.Wrap(err, pe.KindTransport, "write rework sidecar")
		}
		written++
		slog.Info("Rework requested", logfields.PDFKey(src), logfields.Reason(hints.Reason))
	}
	return written, nil
}
