package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/logfields"
)

// RetryPolicy defines event-level retry behavior for failed handlers.
// This is the outer loop: processors also retry LLM calls internally
// with their own attempt budget.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	IsRetryable func(error) bool
}

// DefaultRetryPolicy retries transient pipeline errors 3 times with
// exponential backoff starting at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Second,
		IsRetryable: pe.IsRetryable,
	}
}

// WithRetry wraps a handler with retry logic; exhausted events land in
// the DLQ so operators can replay them.
func WithRetry(h Handler, policy RetryPolicy, dlq *DeadLetterQueue) Handler {
	return func(e ObjectCreated) error {
		var lastErr error
		for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
			lastErr = h(e)
			if lastErr == nil {
				return nil
			}
			if !policy.IsRetryable(lastErr) {
				slog.Warn("Non-retryable handler error",
					logfields.PDFKey(e.Key), logfields.Error(lastErr))
				break
			}
			if attempt < policy.MaxAttempts {
				backoff := policy.Backoff * time.Duration(1<<uint(attempt-1))
				slog.Info("Retrying handler after failure",
					logfields.PDFKey(e.Key), logfields.Attempt(attempt),
					slog.Duration("backoff", backoff), logfields.Error(lastErr))
				time.Sleep(backoff)
			}
		}
		slog.Error("Handler failed after retries",
			logfields.PDFKey(e.Key), logfields.Attempt(policy.MaxAttempts),
			logfields.Error(lastErr))
		if dlq != nil {
			dlq.Enqueue(FailedEvent{Event: e, Error: lastErr, Timestamp: time.Now()})
		}
		return fmt.Errorf("handler for %s failed after %d attempts: %w",
			e.Key, policy.MaxAttempts, lastErr)
	}
}
