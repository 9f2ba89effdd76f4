package chunk

import (
	"context"
	"log/slog"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/parser"
	"github.com/brightpath-pm/billflow/internal/pdf"
	"github.com/brightpath-pm/billflow/internal/pipeline"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// jobLookupAttempts bounds the retry loop that covers the window between
// a chunk upload event arriving and its job row becoming visible.
const jobLookupAttempts = 5

// Processor extracts line items from one chunk PDF and records the
// completion against its job.
type Processor struct {
	Store  storage.ObjectStore
	Jobs   *tables.JobStore
	Engine *parser.Engine
	Errors *tables.ErrorLog

	// Stagger spaces out concurrent chunk starts so a burst of chunk
	// uploads does not hit the provider's rate limit all at once.
	Stagger time.Duration

	// Aggregate is called when this chunk's completion brings the job to
	// its total. Wired to (*Aggregator).Run.
	Aggregate func(ctx context.Context, jobID string) error

	// Sleep is swapped out in tests.
	Sleep func(time.Duration)
}

// Handler returns the bus handler for Stage1_LargeFile_Chunks/ events.
func (p *Processor) Handler() pipeline.Handler {
	return func(e pipeline.ObjectCreated) error {
		return p.Process(context.Background(), e.Key)
	}
}

// Process runs one chunk extraction. Re-delivered events are absorbed:
// an existing result object short-circuits before any LLM call.
func (p *Processor) Process(ctx context.Context, key string) error {
	jobID, ok := stage.JobIDFromChunkKey(key)
	if !ok {
		slog.Warn("Chunk key outside job layout", logfields.PDFKey(key))
		return nil
	}
	chunkNum, ok := stage.ChunkNumFromKey(key)
	if !ok {
		slog.Warn("Chunk key has no chunk number", logfields.PDFKey(key))
		return nil
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	if p.Stagger > 0 {
		sleep(time.Duration(chunkNum) * p.Stagger)
	}

	job, err := p.lookupJob(ctx, jobID, sleep)
	if err != nil {
		return err
	}
	if job.Status != tables.JobProcessing {
		slog.Info("Chunk skipped, job no longer processing",
			logfields.JobID(jobID), logfields.Chunk(chunkNum),
			slog.String("status", job.Status))
		return nil
	}

	resultKey := stage.ChunkResultKey(jobID, chunkNum)
	if exists, err := p.Store.Exists(ctx, resultKey); err == nil && exists {
		slog.Info("Chunk skipped, result already written",
			logfields.JobID(jobID), logfields.Chunk(chunkNum))
		return nil
	}

	data, err := p.Store.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			// Aggregation already cleaned this job's artifacts.
			slog.Info("Chunk skipped, chunk key gone",
				logfields.JobID(jobID), logfields.Chunk(chunkNum))
			return nil
		}
		return pe.Wrap(err, pe.KindTransport, "read chunk PDF")
	}

	pageStart := (chunkNum-1)*job.PagesPerChunk + 1
	pageEnd := pageStart + job.PagesPerChunk - 1
	if n, err := pdf.PageCount(data); err == nil {
		pageEnd = pageStart + n - 1
	}

	engine := p.Engine
	if job.DocType != "" {
		// The doc-type hint was captured on the job at split time; every
		// chunk of a legal bill parses under the legal schema.
		engine = engine.WithSchema(line.SchemaFor(job.DocType))
	}
	result, err := engine.Extract(ctx, data, parser.PromptParams{
		ExpectedLines:   job.ExpectedLines,
		BillFrom:        job.BillFrom,
		PreviousContext: job.PreviousContext,
		PageStart:       pageStart,
		PageEnd:         pageEnd,
	})
	if err != nil {
		return p.failJob(ctx, job, chunkNum, err)
	}

	payload := &Result{
		ChunkNum:        chunkNum,
		SourcePageStart: pageStart,
		SourcePageEnd:   pageEnd,
		Rows:            result.Records,
	}
	encoded, err := payload.Encode()
	if err != nil {
		return pe.Wrap(err, pe.KindInternal, "encode chunk result")
	}
	if err := p.Store.Put(ctx, resultKey, encoded); err != nil {
		return pe.Wrap(err, pe.KindTransport, "write chunk result")
	}

	// First chunk to land header values seeds the running context for the
	// chunks still in flight.
	if job.PreviousContext == "" && len(result.Records) > 0 {
		if summary := parser.ContextSummary(result.Records); summary != "" {
			if err := p.Jobs.SetPreviousContext(ctx, jobID, summary); err != nil {
				slog.Warn("Previous context update failed",
					logfields.JobID(jobID), logfields.Error(err))
			}
		}
	}

	completed, err := p.Jobs.CompleteChunk(ctx, jobID, resultKey)
	if err != nil {
		return pe.Wrap(err, pe.KindTransport, "record chunk completion")
	}
	slog.Info("Chunk completed", logfields.JobID(jobID),
		logfields.Chunk(chunkNum), logfields.Rows(len(result.Records)),
		slog.Int("chunks_completed", completed),
		slog.Int("total_chunks", job.TotalChunks))

	if completed >= job.TotalChunks && p.Aggregate != nil {
		return p.Aggregate(ctx, jobID)
	}
	return nil
}

// lookupJob retries a not-found job; the job row is written before the
// chunk upload, but a reader can still race a slow commit.
func (p *Processor) lookupJob(ctx context.Context, jobID string, sleep func(time.Duration)) (*tables.Job, error) {
	var lastErr error
	for attempt := 0; attempt < jobLookupAttempts; attempt++ {
		job, err := p.Jobs.Get(ctx, jobID)
		if err == nil {
			return job, nil
		}
		lastErr = err
		if !pe.Is(err, pe.KindNotFound) {
			return nil, err
		}
		if attempt < jobLookupAttempts-1 {
			sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	return nil, pe.Wrap(lastErr, pe.KindNotFound, "job record never appeared")
}

// failJob marks the whole job failed on an exhausted chunk. Other chunks
// observe the failed status and stop.
func (p *Processor) failJob(ctx context.Context, job *tables.Job, chunkNum int, cause error) error {
	kind := pe.KindOf(cause)
	slog.Error("Chunk extraction failed", logfields.JobID(job.JobID),
		logfields.Chunk(chunkNum), logfields.Reason(string(kind)),
		logfields.Error(cause))

	if err := p.Jobs.MarkFailed(ctx, job.JobID); err != nil {
		slog.Warn("Job failure mark failed", logfields.JobID(job.JobID), logfields.Error(err))
	}
	if p.Errors != nil {
		if err := p.Errors.Append(ctx, job.SourceFile, string(kind), cause.Error()); err != nil {
			slog.Warn("Error table append failed", logfields.JobID(job.JobID), logfields.Error(err))
		}
	}
	return nil
}
