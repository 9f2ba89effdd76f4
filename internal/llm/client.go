// Package llm wraps the Gemini API behind a narrow client interface:
// send a PDF plus a prompt, get text back. Key selection, retries and
// backoff belong to the callers; this package only classifies failures.
package llm

import (
	"context"
)

// Client generates text from a PDF document and a prompt.
type Client interface {
	// GeneratePDF sends the PDF bytes inline with the prompt using the
	// given API key and returns the concatenated reply text. Errors are
	// classified: rate_limit (429), timeout (deadline), transport
	// (everything else).
	GeneratePDF(ctx context.Context, apiKey string, pdf []byte, prompt string) (string, error)

	// GenerateText is the PDF-less variant used by the fuzzy matcher.
	GenerateText(ctx context.Context, apiKey string, prompt string) (string, error)

	// Close releases per-key client resources.
	Close() error
}
