package parser

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/llm"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/secrets"
)

// Engine is the retrying LLM extraction loop shared by the standard
// parser and the chunk processor.
type Engine struct {
	Schema line.Schema
	Client llm.Client
	Keys   *secrets.Pool

	// MaxAttempts bounds the whole extraction; key rotation is
	// deterministic by attempt number modulo pool size.
	MaxAttempts int

	// BaseBackoff seeds the exponential, jittered between-attempt sleep
	// for transport and timeout failures.
	BaseBackoff time.Duration

	// MaxDroppedRows is the per-reply tolerance before a schema retry.
	MaxDroppedRows int

	// Sleep is swapped out in tests.
	Sleep func(time.Duration)
}

// WithSchema returns a copy of the engine targeting a different column
// schema. The copy shares the client and key pool; processors use it to
// switch lanes per document without rebuilding the engine.
func (e *Engine) WithSchema(s line.Schema) *Engine {
	clone := *e
	clone.Schema = s
	return &clone
}

// Result is a successful extraction.
type Result struct {
	Records  []line.Record
	Empty    bool // document had no extractable rows
	Attempts int
}

// Extract runs the retry loop for one PDF (or one chunk).
func (e *Engine) Extract(ctx context.Context, pdfData []byte, params PromptParams) (*Result, error) {
	sleep := e.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	priorReply := ""
	for attempt := 0; attempt < e.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, pe.Wrap(err, pe.KindTimeout, "extraction canceled")
		}

		p := params
		p.PriorReply = priorReply
		prompt := BuildPrompt(e.Schema, p)
		apiKey := e.Keys.ForAttempt(attempt)

		reply, err := e.Client.GeneratePDF(ctx, apiKey, pdfData, prompt)
		if err != nil {
			lastErr = err
			if !pe.IsRetryable(err) {
				return nil, err
			}
			// A 429 rotates immediately; transport and timeout failures
			// back off first. Both consume the attempt budget.
			if !pe.Is(err, pe.KindRateLimit) && attempt < e.MaxAttempts-1 {
				sleep(e.backoff(attempt))
			}
			slog.Warn("Extraction attempt failed",
				logfields.Attempt(attempt+1), logfields.Error(err))
			continue
		}

		rows, dropped, empty := ParseReply(e.Schema, reply)
		if empty {
			return &Result{Empty: true, Attempts: attempt + 1}, nil
		}
		if dropped > e.MaxDroppedRows {
			lastErr = pe.Newf(pe.KindSchema,
				"%d rows dropped after normalization (threshold %d)", dropped, e.MaxDroppedRows)
			priorReply = reply
			slog.Warn("Reply violated column contract",
				logfields.Attempt(attempt+1), logfields.Rows(dropped))
			continue
		}

		records := make([]line.Record, 0, len(rows))
		for _, fields := range rows {
			r, err := line.FromFields(e.Schema, fields)
			if err != nil {
				return nil, pe.Wrap(err, pe.KindSchema, "normalized row has wrong width")
			}
			line.NormalizeDates(r)
			records = append(records, r)
		}
		line.PropagateHeaders(records)
		return &Result{Records: records, Attempts: attempt + 1}, nil
	}

	return nil, pe.Wrap(lastErr, pe.KindExhausted, "extraction attempts exhausted")
}

// backoff is BaseBackoff * 2^attempt with +-25% jitter.
func (e *Engine) backoff(attempt int) time.Duration {
	base := e.BaseBackoff
	if base <= 0 {
		base = 2 * time.Second
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > 2*time.Minute {
		d = 2 * time.Minute
	}
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * jitter)
}
