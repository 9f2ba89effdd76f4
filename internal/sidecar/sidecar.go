// Package sidecar reads the reviewer-written hint files that ride along
// with a PDF (<name>.notes.json, <name>.rework.json). Sidecars are the
// only way review metadata reaches later stages; consumers derive the
// adjacent key, never list directories.
package sidecar

import (
	"context"
	"encoding/json"

	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
)

// Hints are the fields later stages act on. Rework hints win over notes
// when both sidecars carry a value.
type Hints struct {
	ExpectedLineCount int    `json:"expected_line_count"`
	BillFrom          string `json:"bill_from"`
	DocType           string `json:"doc_type,omitempty"`
	Reason            string `json:"reason,omitempty"`
	RequestedBy       string `json:"requested_by,omitempty"`
}

// Read merges the hint sidecars adjacent to a PDF key. Missing or
// malformed sidecars contribute nothing; a PDF without sidecars yields
// zero-valued hints.
func Read(ctx context.Context, store storage.ObjectStore, pdfKey string) Hints {
	var merged Hints
	for _, kind := range []string{stage.SidecarNotes, stage.SidecarRework} {
		data, err := store.Get(ctx, stage.SidecarKey(pdfKey, kind))
		if err != nil {
			continue
		}
		var h Hints
		if json.Unmarshal(data, &h) != nil {
			continue
		}
		if h.ExpectedLineCount > 0 {
			merged.ExpectedLineCount = h.ExpectedLineCount
		}
		if h.BillFrom != "" {
			merged.BillFrom = h.BillFrom
		}
		if h.DocType != "" {
			merged.DocType = h.DocType
		}
		if h.Reason != "" {
			merged.Reason = h.Reason
		}
		if h.RequestedBy != "" {
			merged.RequestedBy = h.RequestedBy
		}
	}
	return merged
}

// CopyAll copies any hint sidecars that share src's base name to the
// destination prefix. Absent sidecars are skipped silently.
func CopyAll(ctx context.Context, store storage.ObjectStore, srcPDFKey, dstPrefix string) error {
	for _, kind := range stage.SidecarKinds {
		src := stage.SidecarKey(srcPDFKey, kind)
		ok, err := store.Exists(ctx, src)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := store.Copy(ctx, src, stage.Rebase(src, dstPrefix)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll removes hint sidecars adjacent to a PDF key. Best effort:
// missing sidecars are not errors.
func DeleteAll(ctx context.Context, store storage.ObjectStore, pdfKey string) {
	for _, kind := range stage.SidecarKinds {
		_ = store.Delete(ctx, stage.SidecarKey(pdfKey, kind))
	}
}
