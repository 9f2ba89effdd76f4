// Package logfields defines canonical log field name constants so field
// names do not drift across processors.
package logfields

import "log/slog"

const (
	KeyPDFKey     = "pdf_key"
	KeyJobID      = "job_id"
	KeyStage      = "stage"
	KeyAttempt    = "attempt"
	KeyChunk      = "chunk"
	KeyLineHash   = "line_hash"
	KeyLineID     = "line_id"
	KeyPropertyID = "property_id"
	KeyVendorID   = "vendor_id"
	KeyInvoice    = "invoice_number"
	KeyPeriod     = "ubi_period"
	KeyDurationMS = "duration_ms"
	KeyRows       = "rows"
	KeyReason     = "reason"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers
// can compose.
func PDFKey(k string) slog.Attr       { return slog.String(KeyPDFKey, k) }
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Chunk(n int) slog.Attr           { return slog.Int(KeyChunk, n) }
func LineHash(h string) slog.Attr     { return slog.String(KeyLineHash, h) }
func LineID(id string) slog.Attr      { return slog.String(KeyLineID, id) }
func PropertyID(id string) slog.Attr  { return slog.String(KeyPropertyID, id) }
func VendorID(id string) slog.Attr    { return slog.String(KeyVendorID, id) }
func Invoice(n string) slog.Attr      { return slog.String(KeyInvoice, n) }
func Period(p string) slog.Attr       { return slog.String(KeyPeriod, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Rows(n int) slog.Attr            { return slog.Int(KeyRows, n) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
