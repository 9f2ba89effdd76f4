package parser

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/pipeline"
	"github.com/brightpath-pm/billflow/internal/sidecar"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// Processor is the standard parser: it extracts line items from one
// whole PDF under Stage1_Standard/, writes the Stage 3 NDJSON, archives
// the PDF into Stage 2, and parks failures.
type Processor struct {
	Store  storage.ObjectStore
	Engine *Engine
	Errors *tables.ErrorLog

	// Now is swapped out in tests to pin the Stage 3 date partitions.
	Now func() time.Time
}

// Handler returns the bus handler for Stage1_Standard/ events.
func (p *Processor) Handler() pipeline.Handler {
	return func(e pipeline.ObjectCreated) error {
		return p.Process(context.Background(), e.Key)
	}
}

// Process runs one standard parse. Re-delivering the same event
// recomputes and overwrites the same output keys.
func (p *Processor) Process(ctx context.Context, key string) error {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	pdfData, err := p.Store.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			// Duplicate event after this invocation already archived the
			// PDF and deleted the staging key.
			slog.Info("Standard parse skipped, staging key gone", logfields.PDFKey(key))
			return nil
		}
		return pe.Wrap(err, pe.KindTransport, "read standard PDF")
	}

	// Archive first: pdf_id derives from the Stage 2 key, so the
	// archive copy has to exist before any line ids do.
	archiveKey := stage.Rebase(key, stage.ParsedInputs)
	if err := p.Store.Copy(ctx, key, archiveKey); err != nil {
		return pe.Wrap(err, pe.KindTransport, "archive PDF to parsed inputs")
	}
	if err := sidecar.CopyAll(ctx, p.Store, key, stage.ParsedInputs); err != nil {
		slog.Warn("Sidecar archive failed", logfields.PDFKey(key), logfields.Error(err))
	}

	hints := sidecar.Read(ctx, p.Store, key)
	engine := p.Engine
	if hints.DocType != "" {
		// Reviewer-tagged legal bills take the legal column schema.
		engine = engine.WithSchema(line.SchemaFor(hints.DocType))
	}
	result, err := engine.Extract(ctx, pdfData, PromptParams{
		ExpectedLines: hints.ExpectedLineCount,
		BillFrom:      hints.BillFrom,
	})
	if err != nil {
		return p.park(ctx, key, err)
	}

	if result.Empty {
		// No rows: nothing to write downstream, but the PDF is already
		// archived and the staging key still has to go.
		slog.Info("Standard parse found no rows", logfields.PDFKey(key))
		p.deleteStaging(ctx, key)
		return nil
	}

	pdfID := stage.PDFID(archiveKey)
	for i, r := range result.Records {
		r.Set("pdf_id", pdfID)
		r.Set("line_id", stage.LineID(pdfID, i))
		r.Set("source_key", archiveKey)
	}

	data, err := line.EncodeNDJSON(result.Records)
	if err != nil {
		return pe.Wrap(err, pe.KindInternal, "encode parsed output")
	}
	outputKey := stage.ParsedOutputKey(key, now())
	if err := p.Store.Put(ctx, outputKey, data); err != nil {
		return pe.Wrap(err, pe.KindTransport, "write parsed output")
	}

	p.deleteStaging(ctx, key)
	slog.Info("Standard parse completed", logfields.PDFKey(key),
		logfields.Rows(len(result.Records)), logfields.Attempt(result.Attempts))
	return nil
}

// deleteStaging removes the Stage 1 key and its sidecars once the
// downstream copy is acknowledged. Failure to delete is logged but never
// rolled back; downstream idempotence absorbs the duplicate.
func (p *Processor) deleteStaging(ctx context.Context, key string) {
	if err := p.Store.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
		slog.Warn("Staging delete failed", logfields.PDFKey(key), logfields.Error(err))
	}
	sidecar.DeleteAll(ctx, p.Store, key)
}

// park moves an exhausted PDF to Failed/ with a diagnostic sidecar and
// an error-table row.
func (p *Processor) park(ctx context.Context, key string, cause error) error {
	kind := pe.KindOf(cause)
	slog.Error("Standard parse failed", logfields.PDFKey(key),
		logfields.Reason(string(kind)), logfields.Error(cause))

	failedKey := stage.Rebase(key, stage.Failed)
	if err := p.Store.Copy(ctx, key, failedKey); err != nil {
		return pe.Wrap(err, pe.KindTransport, "park failed PDF")
	}
	diag, _ := json.Marshal(map[string]any{
		"pdf_key":    key,
		"error_type": string(kind),
		"error":      cause.Error(),
		"parked_at":  time.Now().UTC().Format(time.RFC3339),
	})
	errorKey := stage.SidecarKey(failedKey, stage.SidecarError)
	if err := p.Store.Put(ctx, errorKey, diag); err != nil {
		slog.Warn("Error sidecar write failed", logfields.PDFKey(key), logfields.Error(err))
	}
	p.deleteStaging(ctx, key)

	if p.Errors != nil {
		if err := p.Errors.Append(ctx, key, string(kind), cause.Error()); err != nil {
			slog.Warn("Error table append failed", logfields.PDFKey(key), logfields.Error(err))
		}
	}
	return nil
}
