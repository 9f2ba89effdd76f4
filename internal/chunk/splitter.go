package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/pdf"
	"github.com/brightpath-pm/billflow/internal/pipeline"
	"github.com/brightpath-pm/billflow/internal/sidecar"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// Splitter slices a LargeFile PDF into page-range chunks and creates the
// job record that chunk processors coordinate through.
type Splitter struct {
	Store         storage.ObjectStore
	Jobs          *tables.JobStore
	PagesPerChunk int

	// Now is swapped out in tests to pin job ids.
	Now func() time.Time
}

// Handler returns the bus handler for Stage1_LargeFile/ events.
func (s *Splitter) Handler() pipeline.Handler {
	return func(e pipeline.ObjectCreated) error {
		return s.Split(context.Background(), e.Key)
	}
}

// NewJobID builds "<UTC timestamp>_<8-hex>".
func (s *Splitter) NewJobID() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return fmt.Sprintf("%s_%s",
		now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8])
}

// Split processes one LargeFile PDF.
func (s *Splitter) Split(ctx context.Context, key string) error {
	data, err := s.Store.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			slog.Info("Split skipped, largefile key gone", logfields.PDFKey(key))
			return nil
		}
		return pe.Wrap(err, pe.KindTransport, "read largefile PDF")
	}

	jobID := s.NewJobID()

	// Archive before splitting so the job's source_file names the
	// canonical Stage 2 key the aggregator derives pdf_id from.
	archiveKey := stage.Rebase(key, stage.ParsedInputs)
	if err := s.Store.Copy(ctx, key, archiveKey); err != nil {
		return pe.Wrap(err, pe.KindTransport, "archive largefile PDF")
	}
	if err := sidecar.CopyAll(ctx, s.Store, key, stage.ParsedInputs); err != nil {
		slog.Warn("Sidecar archive failed", logfields.PDFKey(key), logfields.Error(err))
	}

	hints := sidecar.Read(ctx, s.Store, key)

	chunks, err := pdf.Split(data, s.PagesPerChunk)
	if err != nil {
		return pe.Wrap(err, pe.KindValidation, "split PDF into chunks")
	}
	if len(chunks) == 0 {
		return pe.New(pe.KindValidation, "PDF produced no chunks")
	}

	chunkKeys := make([]string, len(chunks))
	for i, c := range chunks {
		chunkKeys[i] = stage.ChunkKey(jobID, c.Num)
	}

	// The job record must be visible before any chunk object exists:
	// each chunk upload triggers a chunk processor that reads the job.
	job := &tables.Job{
		JobID:         jobID,
		SourceFile:    archiveKey,
		TotalChunks:   len(chunks),
		ChunkKeys:     chunkKeys,
		ExpectedLines: hints.ExpectedLineCount,
		BillFrom:      hints.BillFrom,
		DocType:       hints.DocType,
		PagesPerChunk: s.PagesPerChunk,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return pe.Wrap(err, pe.KindTransport, "create job record")
	}

	for _, c := range chunks {
		if err := s.Store.Put(ctx, stage.ChunkKey(jobID, c.Num), c.Data); err != nil {
			return pe.Wrap(err, pe.KindTransport,
				fmt.Sprintf("upload chunk %d", c.Num))
		}
	}

	if err := s.Store.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
		slog.Warn("LargeFile delete failed", logfields.PDFKey(key), logfields.Error(err))
	}
	sidecar.DeleteAll(ctx, s.Store, key)

	slog.Info("Split largefile PDF", logfields.PDFKey(key),
		logfields.JobID(jobID), slog.Int("chunks", len(chunks)))
	return nil
}
