package enrich

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
)

// Dimension export prefixes under Enrichment/exports/. Each holds dated
// NDJSON snapshots; the lexically last key is the current one.
const (
	DimVendorPrefix   = stage.EnrichmentExports + "dim_vendor/"
	DimPropertyPrefix = stage.EnrichmentExports + "dim_property/"
	DimGLPrefix       = stage.EnrichmentExports + "dim_gl/"
)

// DimEntry is one dimension row: an id and its display name.
type DimEntry struct {
	ID   string
	Name string
}

// Snapshots holds the loaded dimension tables, indexed by normalized
// name. Safe for concurrent read during a background refresh.
type Snapshots struct {
	mu         sync.RWMutex
	vendors    map[string]DimEntry // normalized name -> entry
	properties map[string]DimEntry
	glAccounts map[string]DimEntry // gl code -> entry
}

// NewSnapshots returns an empty snapshot set; call Refresh before use.
func NewSnapshots() *Snapshots {
	return &Snapshots{
		vendors:    map[string]DimEntry{},
		properties: map[string]DimEntry{},
		glAccounts: map[string]DimEntry{},
	}
}

// Refresh reloads all three dimensions from the latest export objects.
// A missing export leaves the previous table in place.
func (s *Snapshots) Refresh(ctx context.Context, store storage.ObjectStore) error {
	vendors, err := loadDim(ctx, store, DimVendorPrefix, "vendor_id", "vendor_name")
	if err != nil {
		return err
	}
	properties, err := loadDim(ctx, store, DimPropertyPrefix, "property_id", "property_name")
	if err != nil {
		return err
	}
	gl, err := loadDim(ctx, store, DimGLPrefix, "gl_code", "gl_name")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if vendors != nil {
		s.vendors = indexByNormalizedName(vendors)
	}
	if properties != nil {
		s.properties = indexByNormalizedName(properties)
	}
	if gl != nil {
		byCode := make(map[string]DimEntry, len(gl))
		for _, e := range gl {
			byCode[e.ID] = e
		}
		s.glAccounts = byCode
	}
	slog.Info("Dimension snapshots refreshed",
		slog.Int("vendors", len(vendors)),
		slog.Int("properties", len(properties)),
		slog.Int("gl_accounts", len(gl)))
	return nil
}

// Vendor looks up a vendor by normalized name equality.
func (s *Snapshots) Vendor(name string) (DimEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.vendors[NormalizeName(name)]
	return e, ok
}

// Property looks up a property by normalized name equality.
func (s *Snapshots) Property(name string) (DimEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.properties[NormalizeName(name)]
	return e, ok
}

// GLName returns the snapshot name for a GL code, falling back to the
// rule-set name when the code is not exported.
func (s *Snapshots) GLName(code string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.glAccounts[code]
	return e.Name, ok
}

// Vendors returns all vendor entries, for fuzzy-match candidate lists.
func (s *Snapshots) Vendors() []DimEntry { return s.all(&s.vendors) }

// Properties returns all property entries.
func (s *Snapshots) Properties() []DimEntry { return s.all(&s.properties) }

func (s *Snapshots) all(m *map[string]DimEntry) []DimEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DimEntry, 0, len(*m))
	for _, e := range *m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// loadDim reads the latest NDJSON snapshot under a dimension prefix.
// Returns (nil, nil) when the prefix has no exports yet.
func loadDim(ctx context.Context, store storage.ObjectStore, prefix, idField, nameField string) ([]DimEntry, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "list dimension exports")
	}
	var latest string
	for _, k := range keys {
		if strings.HasSuffix(k, ".jsonl") && k > latest {
			latest = k
		}
	}
	if latest == "" {
		slog.Warn("No dimension export found", slog.String("prefix", prefix))
		return nil, nil
	}

	data, err := store.Get(ctx, latest)
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "read dimension export")
	}
	records, err := line.DecodeNDJSON(data)
	if err != nil {
		return nil, pe.Wrap(err, pe.KindValidation, "decode dimension export")
	}

	entries := make([]DimEntry, 0, len(records))
	for _, r := range records {
		id, name := r.Get(idField), r.Get(nameField)
		if id == "" || name == "" {
			slog.Warn("Dimension row missing id or name", logfields.PDFKey(latest))
			continue
		}
		entries = append(entries, DimEntry{ID: id, Name: name})
	}
	return entries, nil
}

func indexByNormalizedName(entries []DimEntry) map[string]DimEntry {
	idx := make(map[string]DimEntry, len(entries))
	for _, e := range entries {
		key := NormalizeName(e.Name)
		if key == "" {
			continue
		}
		if _, dup := idx[key]; !dup {
			idx[key] = e
		}
	}
	return idx
}
