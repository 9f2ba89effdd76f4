// Package pdf wraps pdfcpu for the two operations the pipeline needs:
// counting pages for routing and slicing page ranges for chunked parsing.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var conf = model.NewDefaultConfiguration()

func init() {
	// Bills arrive from dozens of vendor systems; tolerate mildly
	// malformed files instead of rejecting them at the router.
	conf.ValidationMode = model.ValidationRelaxed
}

// PageCount returns the number of pages, or an error when the bytes do
// not parse as a PDF (the router then defaults to Standard).
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// Chunk is a contiguous page range extracted into its own PDF.
type Chunk struct {
	Num       int // 1-based chunk number
	PageStart int // 1-based, inclusive
	PageEnd   int // inclusive
	Data      []byte
}

// Split slices a PDF into chunks of pagesPerChunk pages. The chunk list
// is computed up front; the last chunk may be short.
func Split(data []byte, pagesPerChunk int) ([]Chunk, error) {
	if pagesPerChunk < 1 {
		return nil, fmt.Errorf("pagesPerChunk must be >= 1, got %d", pagesPerChunk)
	}
	total, err := PageCount(data)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for start := 1; start <= total; start += pagesPerChunk {
		end := start + pagesPerChunk - 1
		if end > total {
			end = total
		}
		var buf bytes.Buffer
		sel := []string{fmt.Sprintf("%d-%d", start, end)}
		if err := api.Trim(bytes.NewReader(data), &buf, sel, conf); err != nil {
			return nil, fmt.Errorf("extract pages %d-%d: %w", start, end, err)
		}
		chunks = append(chunks, Chunk{
			Num:       len(chunks) + 1,
			PageStart: start,
			PageEnd:   end,
			Data:      buf.Bytes(),
		})
	}
	return chunks, nil
}
