package enrich

import (
	"context"
	"fmt"
	"log/slog"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/pipeline"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
)

// Enriched field names added to each record. The uppercase forms are the
// wire names the review surface and exports already key on.
const (
	FieldVendorID     = "EnrichedVendorID"
	FieldVendorName   = "EnrichedVendorName"
	FieldPropertyID   = "EnrichedPropertyID"
	FieldPropertyName = "EnrichedPropertyName"
	FieldGLNumber     = "EnrichedGLAccountNumber"
	FieldGLName       = "EnrichedGLAccountName"
	FieldGLLineDesc   = "GL_LINE_DESC"
	FieldConsumption  = "ENRICHED CONSUMPTION"
	FieldUOM          = "ENRICHED UOM"
)

// Enricher annotates Stage 3 records and writes the Stage 4 copy.
type Enricher struct {
	Store     storage.ObjectStore
	Snapshots *Snapshots
	Matcher   *Matcher // nil disables fuzzy matching
}

// Handler returns the bus handler for Stage3_ParsedOutputs/ events.
func (e *Enricher) Handler() pipeline.Handler {
	return func(ev pipeline.ObjectCreated) error {
		return e.Process(context.Background(), ev.Key)
	}
}

// Process enriches one Stage 3 file. Re-running overwrites the same
// Stage 4 key with the same content.
func (e *Enricher) Process(ctx context.Context, key string) error {
	data, err := e.Store.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			slog.Info("Enrichment skipped, parsed key gone", logfields.PDFKey(key))
			return nil
		}
		return pe.Wrap(err, pe.KindTransport, "read parsed output")
	}
	records, err := line.DecodeNDJSON(data)
	if err != nil {
		return pe.Wrap(err, pe.KindValidation, "decode parsed output")
	}

	for _, r := range records {
		e.enrichRecord(ctx, r)
	}

	out, err := line.EncodeNDJSON(records)
	if err != nil {
		return pe.Wrap(err, pe.KindInternal, "encode enriched output")
	}
	outputKey := stage.EnrichedOutputKey(key)
	if err := e.Store.Put(ctx, outputKey, out); err != nil {
		return pe.Wrap(err, pe.KindTransport, "write enriched output")
	}

	slog.Info("Enriched parsed output", logfields.PDFKey(key),
		logfields.Rows(len(records)))
	return nil
}

func (e *Enricher) enrichRecord(ctx context.Context, r line.Record) {
	if vendor := r.Get(line.FieldVendorName); vendor != "" {
		if entry, ok := e.matchDim(ctx, "vendor", vendor, e.Snapshots.Vendor, e.Snapshots.Vendors); ok {
			r.Set(FieldVendorID, entry.ID)
			r.Set(FieldVendorName, entry.Name)
		}
	}
	if property := r.Get(line.FieldPropertyName); property != "" {
		if entry, ok := e.matchDim(ctx, "property", property, e.Snapshots.Property, e.Snapshots.Properties); ok {
			r.Set(FieldPropertyID, entry.ID)
			r.Set(FieldPropertyName, entry.Name)
		}
	}

	addr := ParseServiceAddress(r.Get(line.FieldServiceAddress))
	utility := r.Get(line.FieldUtilityType)
	if gl, ok := ResolveGL(utility, r.Get("Occupant Status")); ok {
		name := gl.Name
		if snapName, ok := e.Snapshots.GLName(gl.Code); ok {
			name = snapName
		}
		r.Set(FieldGLNumber, gl.Code)
		r.Set(FieldGLName, name)
		r.Set(FieldGLLineDesc, GLDescription(utility, addr,
			r.Get(line.FieldServiceStart), r.Get(line.FieldServiceEnd)))
	}

	if gallons, ok := ToGallons(r.Get(line.FieldConsumption), r.Get(line.FieldUOM)); ok {
		r.Set(FieldConsumption, fmt.Sprintf("%g", gallons))
		r.Set(FieldUOM, "gallons")
	}
}

// matchDim tries the exact-normalized index first, then the LLM matcher.
// Matcher failures degrade to no match; enrichment never blocks the file.
func (e *Enricher) matchDim(ctx context.Context, kind, name string,
	exact func(string) (DimEntry, bool), all func() []DimEntry) (DimEntry, bool) {

	if entry, ok := exact(name); ok {
		return entry, true
	}
	if e.Matcher == nil {
		return DimEntry{}, false
	}
	candidates := all()
	id, err := e.Matcher.Match(ctx, kind, name, candidates)
	if err != nil {
		slog.Warn("Fuzzy match failed", slog.String("kind", kind),
			slog.String("name", name), logfields.Error(err))
		return DimEntry{}, false
	}
	if id == "" {
		return DimEntry{}, false
	}
	for _, c := range candidates {
		if c.ID == id {
			return c, true
		}
	}
	return DimEntry{}, false
}
