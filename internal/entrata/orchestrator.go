package entrata

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/enrich"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// PostOptions tweak one posting run.
type PostOptions struct {
	// VendorOverrides maps pdf_id to a vendor id that replaces the
	// enriched one for this run only.
	VendorOverrides map[string]string

	// PostMonth, when set (MM/YYYY), is sent as the accounting period.
	PostMonth string
}

// KeyResult reports the outcome for one Stage 6 key.
type KeyResult struct {
	Key     string `json:"key"`
	Outcome string `json:"outcome"`
	Invoice string `json:"invoice,omitempty"`
	Message string `json:"message,omitempty"`
}

// Orchestrator drives validation, submission, duplicate escalation, and
// the Stage 6 to Stage 7 move.
type Orchestrator struct {
	Store  storage.ObjectStore
	Client *Client
	Drafts *tables.DraftStore
	Errors *tables.ErrorLog
}

// PostKeys posts a set of Stage 6 keys. Each key succeeds or fails
// independently; the returned results are in input order.
func (o *Orchestrator) PostKeys(ctx context.Context, keys []string, opts PostOptions) []KeyResult {
	results := make([]KeyResult, 0, len(keys))
	for _, key := range keys {
		results = append(results, o.postOne(ctx, key, opts))
	}
	return results
}

func (o *Orchestrator) postOne(ctx context.Context, key string, opts PostOptions) KeyResult {
	res := KeyResult{Key: key}

	data, err := o.Store.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			// Already moved by an earlier run.
			res.Outcome = "skipped"
			res.Message = "key not found"
			return res
		}
		return o.fail(ctx, res, key, err)
	}
	records, err := line.DecodeNDJSON(data)
	if err != nil {
		return o.fail(ctx, res, key, pe.Wrap(err, pe.KindValidation, "decode batch"))
	}
	if err := Validate(records); err != nil {
		return o.fail(ctx, res, key, err)
	}

	head := records[0]
	vendorID := head.Get(enrich.FieldVendorID)
	if override, ok := opts.VendorOverrides[head.Get("pdf_id")]; ok && override != "" {
		vendorID = override
	}

	invoice := head.Get(line.FieldInvoiceNumber)
	for {
		raw, err := o.Client.Call(ctx, "sendInvoices", o.buildParams(records, vendorID, invoice, opts.PostMonth))
		if err != nil {
			return o.fail(ctx, res, key, err)
		}
		outcome, message := Classify(raw)
		switch outcome {
		case OutcomeSuccess:
			if err := o.commit(ctx, key, invoice, records, raw); err != nil {
				return o.fail(ctx, res, key, err)
			}
			res.Outcome = outcome.String()
			res.Invoice = invoice
			return res
		case OutcomeDuplicate:
			next, err := EscalateInvoice(invoice)
			if err != nil {
				return o.fail(ctx, res, key, err)
			}
			slog.Info("Duplicate invoice, escalating suffix", logfields.PDFKey(key),
				logfields.Invoice(invoice), slog.String("next", next))
			invoice = next
		default:
			return o.fail(ctx, res, key,
				pe.Newf(pe.KindValidation, "entrata rejected batch: %s", message))
		}
	}
}

// buildParams assembles the sendInvoices payload from a PDF's records.
func (o *Orchestrator) buildParams(records []line.Record, vendorID, invoice, postMonth string) map[string]any {
	head := records[0]
	lines := make([]map[string]any, 0, len(records))
	for _, r := range records {
		amount, err := ParseAmount(r.Get(line.FieldLineItemCharge))
		if err != nil {
			continue
		}
		lines = append(lines, map[string]any{
			"glAccountNumber": r.Get(enrich.FieldGLNumber),
			"description":     r.Get(enrich.FieldGLLineDesc),
			"amount":          amount,
		})
	}
	params := map[string]any{
		"propertyId":    head.Get(enrich.FieldPropertyID),
		"vendorId":      vendorID,
		"invoiceNumber": invoice,
		"invoiceDate":   head.Get(line.FieldBillDate),
		"dueDate":       head.Get(line.FieldDueDate),
		"lines":         lines,
	}
	if postMonth != "" {
		params["postMonth"] = postMonth
	}
	return params
}

// commit moves a posted batch to Stage 7 with the response sidecar and
// marks its drafts submitted. The Stage 7 records carry the invoice
// number that was actually accepted, which differs from the Stage 6
// value whenever duplicate escalation suffixed it.
func (o *Orchestrator) commit(ctx context.Context, key, invoice string, records []line.Record, response []byte) error {
	for _, r := range records {
		r.Set(line.FieldInvoiceNumber, invoice)
	}
	data, err := line.EncodeNDJSON(records)
	if err != nil {
		return pe.Wrap(err, pe.KindValidation, "encode posted batch")
	}
	target := stage.Rebase(key, stage.PostEntrata)
	if err := o.Store.Put(ctx, target, data); err != nil {
		return pe.Wrap(err, pe.KindTransport, "move batch to posted stage")
	}

	posted, _ := json.Marshal(map[string]any{
		"invoice":   invoice,
		"posted_at": time.Now().UTC().Format(time.RFC3339),
		"response":  json.RawMessage(response),
	})
	if err := o.Store.Put(ctx, stage.SidecarKey(target, stage.SidecarPosted), posted); err != nil {
		slog.Warn("Posted sidecar write failed", logfields.PDFKey(key), logfields.Error(err))
	}

	if err := o.Store.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
		slog.Warn("Batch delete failed", logfields.PDFKey(key), logfields.Error(err))
	}

	if o.Drafts != nil {
		var ids []string
		for _, r := range records {
			if id := r.Get("line_id"); id != "" {
				ids = append(ids, id)
			}
		}
		if err := o.Drafts.SetStatus(ctx, ids, tables.DraftSubmitted); err != nil {
			slog.Warn("Draft status update failed", logfields.PDFKey(key), logfields.Error(err))
		}
	}

	slog.Info("Batch posted", logfields.PDFKey(key), logfields.Invoice(invoice))
	return nil
}

// fail records a non-duplicate failure: sanitized message in the result,
// full detail in the log and error table.
func (o *Orchestrator) fail(ctx context.Context, res KeyResult, key string, cause error) KeyResult {
	kind := pe.KindOf(cause)
	slog.Error("Batch posting failed", logfields.PDFKey(key),
		logfields.Reason(string(kind)), logfields.Error(cause))
	if o.Errors != nil {
		if err := o.Errors.Append(ctx, key, string(kind), cause.Error()); err != nil {
			slog.Warn("Error table append failed", logfields.PDFKey(key), logfields.Error(err))
		}
	}
	res.Outcome = "error"
	res.Message = pe.Sanitize(cause)
	return res
}
