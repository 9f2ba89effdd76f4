package tables

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
)

// Job statuses.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Job is the metadata record for one chunked-parse run. It is created
// atomically before the first chunk object is uploaded so that a chunk
// processor can always resolve its job.
type Job struct {
	JobID           string
	SourceFile      string
	TotalChunks     int
	ChunksCompleted int
	Status          string
	ChunkKeys       []string
	ChunkResults    []string
	PreviousContext string
	ExpectedLines   int    // 0 when no hint
	BillFrom        string
	DocType         string // "" means the utility schema
	PagesPerChunk   int
	OutputKey       string
	CreatedAt       time.Time
	CompletedAt     time.Time // zero until completed
}

// JobStore persists chunk jobs.
type JobStore struct {
	db *sql.DB
}

// Create inserts a new job with chunks_completed=0.
func (s *JobStore) Create(ctx context.Context, job *Job) error {
	keys, err := json.Marshal(job.ChunkKeys)
	if err != nil {
		return fmt.Errorf("marshal chunk keys: %w", err)
	}
	results, err := json.Marshal(job.ChunkResults)
	if err != nil {
		return fmt.Errorf("marshal chunk results: %w", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = JobProcessing
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, source_file, total_chunks, chunks_completed,
			status, chunk_keys, chunk_results, previous_context, expected_lines,
			bill_from, doc_type, pages_per_chunk, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, job.SourceFile, job.TotalChunks, job.ChunksCompleted,
		job.Status, string(keys), string(results), job.PreviousContext,
		job.ExpectedLines, job.BillFrom, job.DocType, job.PagesPerChunk, job.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.JobID, err)
	}
	return nil
}

// Get loads a job by id.
func (s *JobStore) Get(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, source_file, total_chunks, chunks_completed, status,
			chunk_keys, chunk_results, previous_context, expected_lines,
			bill_from, doc_type, pages_per_chunk, output_key, created_at, completed_at
		FROM jobs WHERE job_id = ?`, jobID)

	var job Job
	var keys, results string
	var expectedLines sql.NullInt64
	var createdAt int64
	var completedAt sql.NullInt64
	err := row.Scan(&job.JobID, &job.SourceFile, &job.TotalChunks,
		&job.ChunksCompleted, &job.Status, &keys, &results,
		&job.PreviousContext, &expectedLines, &job.BillFrom, &job.DocType,
		&job.PagesPerChunk, &job.OutputKey, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, pe.Newf(pe.KindNotFound, "job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if err := json.Unmarshal([]byte(keys), &job.ChunkKeys); err != nil {
		return nil, fmt.Errorf("unmarshal chunk keys: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &job.ChunkResults); err != nil {
		return nil, fmt.Errorf("unmarshal chunk results: %w", err)
	}
	if expectedLines.Valid {
		job.ExpectedLines = int(expectedLines.Int64)
	}
	job.CreatedAt = time.Unix(createdAt, 0).UTC()
	if completedAt.Valid {
		job.CompletedAt = time.Unix(completedAt.Int64, 0).UTC()
	}
	return &job, nil
}

// CompleteChunk atomically increments chunks_completed and appends the
// chunk's result key. The increment is conditional on the counter being
// below total_chunks, so re-delivered chunk events cannot overshoot.
// Returns the post-increment counter.
func (s *JobStore) CompleteChunk(ctx context.Context, jobID, resultKey string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var results string
	if err := tx.QueryRowContext(ctx,
		`SELECT chunk_results FROM jobs WHERE job_id = ?`, jobID).Scan(&results); err != nil {
		if err == sql.ErrNoRows {
			return 0, pe.Newf(pe.KindNotFound, "job %s not found", jobID)
		}
		return 0, fmt.Errorf("load chunk results: %w", err)
	}
	var resultKeys []string
	if err := json.Unmarshal([]byte(results), &resultKeys); err != nil {
		return 0, fmt.Errorf("unmarshal chunk results: %w", err)
	}
	for _, k := range resultKeys {
		if k == resultKey {
			// Re-delivered event: the chunk already completed once.
			var completed int
			if err := tx.QueryRowContext(ctx,
				`SELECT chunks_completed FROM jobs WHERE job_id = ?`, jobID).Scan(&completed); err != nil {
				return 0, fmt.Errorf("load chunks_completed: %w", err)
			}
			return completed, tx.Commit()
		}
	}
	resultKeys = append(resultKeys, resultKey)
	updated, err := json.Marshal(resultKeys)
	if err != nil {
		return 0, fmt.Errorf("marshal chunk results: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET chunks_completed = chunks_completed + 1, chunk_results = ?
		WHERE job_id = ? AND chunks_completed < total_chunks`,
		string(updated), jobID)
	if err != nil {
		return 0, fmt.Errorf("increment chunks_completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, pe.Newf(pe.KindValidation, "job %s already at total_chunks", jobID)
	}

	var completed int
	if err := tx.QueryRowContext(ctx,
		`SELECT chunks_completed FROM jobs WHERE job_id = ?`, jobID).Scan(&completed); err != nil {
		return 0, fmt.Errorf("load chunks_completed: %w", err)
	}
	return completed, tx.Commit()
}

// SetPreviousContext stores the running extraction summary chunks pass
// forward so header-level fields propagate.
func (s *JobStore) SetPreviousContext(ctx context.Context, jobID, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET previous_context = ? WHERE job_id = ?`, summary, jobID)
	if err != nil {
		return fmt.Errorf("update previous_context: %w", err)
	}
	return nil
}

// MarkCompleted transitions a job to completed with its output key. Only
// a processing job transitions; re-running the aggregator on a completed
// job is a no-op.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID, outputKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, output_key = ?, completed_at = ?
		WHERE job_id = ? AND status = ?`,
		JobCompleted, outputKey, time.Now().UTC().Unix(), jobID, JobProcessing)
	if err != nil {
		return false, fmt.Errorf("mark job completed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkFailed transitions a job to failed.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, completed_at = ? WHERE job_id = ?`,
		JobFailed, time.Now().UTC().Unix(), jobID)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}
