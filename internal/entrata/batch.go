package entrata

import (
	"context"
	"log/slog"
	"sort"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/review"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
)

// Builder materializes Stage 6 batches: one submission-ready NDJSON per
// PDF, built from the enriched lines with review overrides applied.
type Builder struct {
	Store  storage.ObjectStore
	Review *review.Service
}

// Build writes one Stage 6 batch per requested pdf id and returns the
// created keys. PDFs with no lines on the date are skipped.
func (b *Builder) Build(ctx context.Context, d review.Date, pdfIDs []string) ([]string, error) {
	records, err := b.Review.LinesForDate(ctx, d)
	if err != nil {
		return nil, err
	}

	want := map[string]bool{}
	for _, id := range pdfIDs {
		want[id] = true
	}
	byPDF := map[string][]line.Record{}
	for _, r := range records {
		if id := r.Get("pdf_id"); want[id] {
			byPDF[id] = append(byPDF[id], r)
		}
	}

	ids := make([]string, 0, len(byPDF))
	for id := range byPDF {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		data, err := line.EncodeNDJSON(byPDF[id])
		if err != nil {
			return keys, pe.Wrap(err, pe.KindInternal, "encode batch")
		}
		key := stage.PreEntrata + id + ".jsonl"
		if err := b.Store.Put(ctx, key, data); err != nil {
			return keys, pe.Wrap(err, pe.KindTransport, "write batch")
		}
		keys = append(keys, key)
		slog.Info("Batch built", logfields.PDFKey(key), logfields.Rows(len(byPDF[id])))
	}
	return keys, nil
}
