// Package failure implements the escalation path for invocation-level
// parser failures: a PDF that timed out or ran out of memory gets one
// chunked retry in the LargeFile lane, marked so a second failure parks
// it instead of looping forever.
package failure

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/sidecar"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// Router consumes failure-destination payloads.
type Router struct {
	Store  storage.ObjectStore
	Errors *tables.ErrorLog
}

// HandlePayload parses a raw failure-destination payload and routes the
// wrapped object.
func (r *Router) HandlePayload(ctx context.Context, raw []byte) error {
	var p struct {
		RequestPayload struct {
			Key string `json:"key"`
		} `json:"requestPayload"`
		ErrorType    string `json:"errorType"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return pe.Wrap(err, pe.KindValidation, "parse failure payload")
	}
	if p.RequestPayload.Key == "" {
		return pe.New(pe.KindValidation, "failure payload has no object key")
	}
	return r.Route(ctx, p.RequestPayload.Key, p.ErrorType, p.ErrorMessage)
}

// Route escalates one failed PDF. First failure: rename with the
// LargeFile marker and drop into the LargeFile lane for chunked retry.
// Second failure (marker already present): park in Failed/.
func (r *Router) Route(ctx context.Context, key, errorType, errorMessage string) error {
	exists, err := r.Store.Exists(ctx, key)
	if err != nil {
		return pe.Wrap(err, pe.KindTransport, "check failed object")
	}
	if !exists {
		// A duplicate failure delivery after this invocation already
		// moved the object.
		slog.Info("Failure routing skipped, key gone", logfields.PDFKey(key))
		return nil
	}

	name := stage.Basename(key)
	var target, action string
	if stage.IsMarkedLargeFile(name) {
		target = stage.Failed + name
		action = "parked"
	} else {
		target = stage.LargeFile + stage.MarkLargeFile(name)
		action = "promoted_to_largefile"
	}

	if err := r.Store.Copy(ctx, key, target); err != nil {
		return pe.Wrap(err, pe.KindTransport, "move failed object")
	}
	// Sidecars are re-derived from the target name so reviewer hints stay
	// adjacent after the marker rename.
	for _, kind := range stage.SidecarKinds {
		src := stage.SidecarKey(key, kind)
		data, err := r.Store.Get(ctx, src)
		if err != nil {
			continue
		}
		if err := r.Store.Put(ctx, stage.SidecarKey(target, kind), data); err != nil {
			slog.Warn("Sidecar escalation copy failed", logfields.PDFKey(key), logfields.Error(err))
		}
	}

	diag, _ := json.Marshal(map[string]any{
		"pdf_key":       key,
		"action":        action,
		"error_type":    errorType,
		"error_message": errorMessage,
		"escalated_at":  time.Now().UTC().Format(time.RFC3339),
	})
	errorKey := stage.SidecarKey(target, stage.SidecarError)
	if err := r.Store.Put(ctx, errorKey, diag); err != nil {
		slog.Warn("Error sidecar write failed", logfields.PDFKey(key), logfields.Error(err))
	}

	if err := r.Store.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
		slog.Warn("Failed-object delete failed", logfields.PDFKey(key), logfields.Error(err))
	}
	sidecar.DeleteAll(ctx, r.Store, key)

	if r.Errors != nil {
		if err := r.Errors.Append(ctx, key, errorType, errorMessage); err != nil {
			slog.Warn("Error table append failed", logfields.PDFKey(key), logfields.Error(err))
		}
	}

	slog.Info("Failure routed", logfields.PDFKey(key),
		slog.String("action", action), slog.String("target", target),
		logfields.Reason(errorType))
	return nil
}
