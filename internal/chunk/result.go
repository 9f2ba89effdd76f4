// Package chunk implements chunked parsing for LargeFile PDFs: the
// splitter fans a document out into page-range chunks, chunk processors
// extract each chunk independently, and the aggregator fans results back
// in once the job's completed-chunk counter reaches its total.
package chunk

import (
	"encoding/json"

	"github.com/brightpath-pm/billflow/internal/line"
)

// Result is the per-chunk payload written to
// Stage1_LargeFile_Results/<job_id>/chunk_NNN.json.
type Result struct {
	ChunkNum        int           `json:"chunk_num"`
	SourcePageStart int           `json:"source_page_start"`
	SourcePageEnd   int           `json:"source_page_end"`
	Rows            []line.Record `json:"rows"`
}

// Encode marshals a result payload.
func (r *Result) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResult parses a result payload.
func DecodeResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
