package chunk

import (
	"context"
	"log/slog"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// Aggregator assembles a job's chunk results into one Stage 3 document.
type Aggregator struct {
	Store storage.ObjectStore
	Jobs  *tables.JobStore

	// Now is swapped out in tests to pin the Stage 3 date partitions.
	Now func() time.Time
}

// Run aggregates one job. Safe to call repeatedly and from multiple
// chunk processors: the completeness guard and the conditional status
// transition make the commit happen exactly once.
func (a *Aggregator) Run(ctx context.Context, jobID string) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	job, err := a.Jobs.Get(ctx, jobID)
	if err != nil {
		return pe.Wrap(err, pe.KindTransport, "load job for aggregation")
	}
	if job.Status != tables.JobProcessing {
		slog.Info("Aggregation skipped, job no longer processing",
			logfields.JobID(jobID), slog.String("status", job.Status))
		return nil
	}
	if job.ChunksCompleted < job.TotalChunks {
		slog.Info("Aggregation deferred, chunks outstanding",
			logfields.JobID(jobID),
			slog.Int("chunks_completed", job.ChunksCompleted),
			slog.Int("total_chunks", job.TotalChunks))
		return nil
	}

	// Chunk results are read in chunk order regardless of the order their
	// completions landed in the job record.
	var records []line.Record
	for num := 1; num <= job.TotalChunks; num++ {
		resultKey := stage.ChunkResultKey(jobID, num)
		data, err := a.Store.Get(ctx, resultKey)
		if err != nil {
			return pe.Wrap(err, pe.KindTransport, "read chunk result")
		}
		result, err := DecodeResult(data)
		if err != nil {
			return pe.Wrap(err, pe.KindInternal, "decode chunk result")
		}
		for _, r := range result.Rows {
			r.Set("source_page_start", result.SourcePageStart)
			r.Set("source_page_end", result.SourcePageEnd)
			records = append(records, r)
		}
	}

	// Every chunk parsed but none yielded a row: the document produced
	// nothing usable, which is a failure, not an empty success.
	if len(records) == 0 {
		slog.Warn("Aggregation found no rows, failing job", logfields.JobID(jobID))
		if err := a.Jobs.MarkFailed(ctx, jobID); err != nil {
			return pe.Wrap(err, pe.KindTransport, "mark empty job failed")
		}
		a.cleanup(ctx, job)
		return nil
	}

	// Header fields are enforced document-wide: chunks past the first page
	// rarely see the vendor block, so the per-chunk majority vote is
	// replaced with one vote over the whole document.
	line.EnforceHeaders(records)
	pdfID := stage.PDFID(job.SourceFile)
	for i, r := range records {
		line.NormalizeDates(r)
		r.Set("pdf_id", pdfID)
		r.Set("line_id", stage.LineID(pdfID, i))
		r.Set("source_key", job.SourceFile)
		r.Set("job_id", jobID)
	}

	data, err := line.EncodeNDJSON(records)
	if err != nil {
		return pe.Wrap(err, pe.KindInternal, "encode aggregated output")
	}
	outputKey := stage.ParsedOutputKey(job.SourceFile, now())
	if err := a.Store.Put(ctx, outputKey, data); err != nil {
		return pe.Wrap(err, pe.KindTransport, "write aggregated output")
	}

	marked, err := a.Jobs.MarkCompleted(ctx, jobID, outputKey)
	if err != nil {
		return pe.Wrap(err, pe.KindTransport, "mark job completed")
	}
	if !marked {
		// A concurrent aggregation won the transition; its output key is
		// the same, so there is nothing to undo.
		slog.Info("Aggregation already committed elsewhere", logfields.JobID(jobID))
		return nil
	}

	a.cleanup(ctx, job)
	slog.Info("Aggregation completed", logfields.JobID(jobID),
		logfields.Rows(len(records)), logfields.PDFKey(outputKey))
	return nil
}

// cleanup deletes the job's chunk PDFs and result objects. Failures are
// logged; a leftover artifact costs storage, not correctness.
func (a *Aggregator) cleanup(ctx context.Context, job *tables.Job) {
	for num := 1; num <= job.TotalChunks; num++ {
		for _, key := range []string{
			stage.ChunkKey(job.JobID, num),
			stage.ChunkResultKey(job.JobID, num),
		} {
			if err := a.Store.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
				slog.Warn("Chunk artifact delete failed",
					logfields.JobID(job.JobID), logfields.PDFKey(key),
					logfields.Error(err))
			}
		}
	}
}
