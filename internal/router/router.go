// Package router classifies newly uploaded PDFs into the Standard or
// LargeFile lane by page count and byte size.
package router

import (
	"context"
	"log/slog"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/pdf"
	"github.com/brightpath-pm/billflow/internal/pipeline"
	"github.com/brightpath-pm/billflow/internal/sidecar"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// Routing reasons recorded in the audit log.
const (
	ReasonPages        = "page_count_over_threshold"
	ReasonSize         = "size_over_threshold"
	ReasonStandard     = "within_standard_thresholds"
	ReasonUnknownPages = "unknown_page_count_default_standard"
	ReasonMarkedLarge  = "largefile_marker_present"
)

// Router routes objects from Stage1_Pending/.
type Router struct {
	Store storage.ObjectStore
	Log   *tables.RouterLog

	// Thresholds use strict > comparisons: a PDF of exactly
	// MaxPagesStandard pages (or exactly MaxSizeMB) stays Standard.
	MaxPagesStandard int
	MaxSizeMB        int
}

// Handler returns the bus handler for Stage1_Pending/ events.
func (r *Router) Handler() pipeline.Handler {
	return func(e pipeline.ObjectCreated) error {
		return r.Route(context.Background(), e.Key)
	}
}

// Route classifies one pending PDF and moves it (plus its sidecars) to
// the chosen lane.
func (r *Router) Route(ctx context.Context, key string) error {
	data, err := r.Store.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			slog.Info("Routing skipped, pending key gone", logfields.PDFKey(key))
			return nil
		}
		return pe.Wrap(err, pe.KindTransport, "read pending PDF")
	}

	sizeMB := float64(len(data)) / (1024 * 1024)
	dest := stage.Standard
	reason := ReasonStandard
	pages, pageErr := pdf.PageCount(data)
	switch {
	case stage.IsMarkedLargeFile(stage.Basename(key)):
		// A failure-router promotion dropped this into Pending again;
		// honor the marker without re-measuring.
		dest, reason = stage.LargeFile, ReasonMarkedLarge
	case pageErr != nil:
		dest, reason = stage.Standard, ReasonUnknownPages
		pages = 0
	case pages > r.MaxPagesStandard:
		dest, reason = stage.LargeFile, ReasonPages
	case sizeMB > float64(r.MaxSizeMB):
		dest, reason = stage.LargeFile, ReasonSize
	}

	target := stage.Rebase(key, dest)
	if err := r.Store.Copy(ctx, key, target); err != nil {
		return pe.Wrap(err, pe.KindTransport, "copy PDF to routed lane")
	}
	// Sidecars carry rework hints from the review surface; the event
	// payload cannot, so they ride along explicitly.
	if err := sidecar.CopyAll(ctx, r.Store, key, dest); err != nil {
		return pe.Wrap(err, pe.KindTransport, "copy sidecars to routed lane")
	}

	// Delete failures are logged, not rolled back: downstream
	// processors are idempotent on their keys.
	if err := r.Store.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
		slog.Warn("Pending delete failed", logfields.PDFKey(key), logfields.Error(err))
	}
	sidecar.DeleteAll(ctx, r.Store, key)

	if r.Log != nil {
		if err := r.Log.Append(ctx, tables.RoutingDecision{
			PDFKey:      key,
			Destination: dest,
			Pages:       pages,
			SizeMB:      sizeMB,
			Reason:      reason,
		}); err != nil {
			slog.Warn("Routing audit append failed", logfields.PDFKey(key), logfields.Error(err))
		}
	}

	slog.Info("Routed PDF", logfields.PDFKey(key),
		slog.String("destination", dest), logfields.Reason(reason),
		slog.Int("pages", pages), slog.Float64("size_mb", sizeMB))
	return nil
}
