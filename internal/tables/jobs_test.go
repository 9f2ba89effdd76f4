package tables

import (
	"context"
	"path/filepath"
	"testing"

	pe "github.com/brightpath-pm/billflow/internal/errors"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "billflow.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestJob(t *testing.T, jobs *JobStore, total int) *Job {
	t.Helper()
	job := &Job{
		JobID:         "20260305T120000_1a2b3c4d",
		SourceFile:    "Stage2_ParsedInputs/bill.pdf",
		TotalChunks:   total,
		ChunkKeys:     []string{"a", "b", "c"}[:total],
		ChunkResults:  []string{},
		PagesPerChunk: 10,
	}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func TestJobCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	jobs := db.Jobs()
	ctx := context.Background()

	created := newTestJob(t, jobs, 3)
	got, err := jobs.Get(ctx, created.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != JobProcessing {
		t.Errorf("status = %q", got.Status)
	}
	if got.ChunksCompleted != 0 || got.TotalChunks != 3 {
		t.Errorf("counters = %d/%d", got.ChunksCompleted, got.TotalChunks)
	}
	if len(got.ChunkKeys) != 3 {
		t.Errorf("chunk keys = %v", got.ChunkKeys)
	}

	_, err = jobs.Get(ctx, "missing")
	if !pe.Is(err, pe.KindNotFound) {
		t.Errorf("missing job error = %v", err)
	}
}

func TestJobDocTypeRoundTrip(t *testing.T) {
	db := openTestDB(t)
	jobs := db.Jobs()
	ctx := context.Background()

	job := &Job{
		JobID:         "20260305T120000_ffffffff",
		SourceFile:    "Stage2_ParsedInputs/legal.pdf",
		TotalChunks:   1,
		ChunkKeys:     []string{"a"},
		ChunkResults:  []string{},
		DocType:       "legal",
		PagesPerChunk: 10,
	}
	if err := jobs.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := jobs.Get(ctx, job.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DocType != "legal" {
		t.Errorf("doc type = %q, want legal", got.DocType)
	}
}

func TestCompleteChunkIncrementsOnce(t *testing.T) {
	db := openTestDB(t)
	jobs := db.Jobs()
	ctx := context.Background()
	job := newTestJob(t, jobs, 2)

	n, err := jobs.CompleteChunk(ctx, job.JobID, "r1")
	if err != nil || n != 1 {
		t.Fatalf("first completion = %d, %v", n, err)
	}
	// a re-delivered event for the same chunk reports the current
	// counter without incrementing
	n, err = jobs.CompleteChunk(ctx, job.JobID, "r1")
	if err != nil || n != 1 {
		t.Fatalf("duplicate completion = %d, %v", n, err)
	}
	n, err = jobs.CompleteChunk(ctx, job.JobID, "r2")
	if err != nil || n != 2 {
		t.Fatalf("second completion = %d, %v", n, err)
	}
	// the conditional update refuses to overshoot total_chunks
	if _, err := jobs.CompleteChunk(ctx, job.JobID, "r3"); !pe.Is(err, pe.KindValidation) {
		t.Fatalf("overshoot error = %v", err)
	}

	got, err := jobs.Get(ctx, job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ChunksCompleted != 2 || len(got.ChunkResults) != 2 {
		t.Errorf("final state = %d completed, results %v", got.ChunksCompleted, got.ChunkResults)
	}
}

func TestMarkCompletedOnlyFromProcessing(t *testing.T) {
	db := openTestDB(t)
	jobs := db.Jobs()
	ctx := context.Background()
	job := newTestJob(t, jobs, 1)

	ok, err := jobs.MarkCompleted(ctx, job.JobID, "Stage3_ParsedOutputs/out.jsonl")
	if err != nil || !ok {
		t.Fatalf("first completion = %v, %v", ok, err)
	}
	// concurrent aggregator losing the race observes a no-op
	ok, err = jobs.MarkCompleted(ctx, job.JobID, "Stage3_ParsedOutputs/other.jsonl")
	if err != nil || ok {
		t.Fatalf("second completion = %v, %v", ok, err)
	}

	got, _ := jobs.Get(ctx, job.JobID)
	if got.Status != JobCompleted || got.OutputKey != "Stage3_ParsedOutputs/out.jsonl" {
		t.Errorf("job = %q output %q", got.Status, got.OutputKey)
	}
	if got.CompletedAt.IsZero() {
		t.Error("completed_at not set")
	}
}

func TestMarkFailed(t *testing.T) {
	db := openTestDB(t)
	jobs := db.Jobs()
	ctx := context.Background()
	job := newTestJob(t, jobs, 1)

	if err := jobs.MarkFailed(ctx, job.JobID); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ := jobs.Get(ctx, job.JobID)
	if got.Status != JobFailed {
		t.Errorf("status = %q", got.Status)
	}
	// a failed job never transitions to completed
	if ok, _ := jobs.MarkCompleted(ctx, job.JobID, "x"); ok {
		t.Error("failed job transitioned to completed")
	}
}

func TestSetPreviousContext(t *testing.T) {
	db := openTestDB(t)
	jobs := db.Jobs()
	ctx := context.Background()
	job := newTestJob(t, jobs, 1)

	if err := jobs.SetPreviousContext(ctx, job.JobID, "Vendor Name: Acme"); err != nil {
		t.Fatalf("SetPreviousContext: %v", err)
	}
	got, _ := jobs.Get(ctx, job.JobID)
	if got.PreviousContext != "Vendor Name: Acme" {
		t.Errorf("previous context = %q", got.PreviousContext)
	}
}
