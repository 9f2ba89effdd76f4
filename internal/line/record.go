package line

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one extracted line item: the schema fields plus the mutable
// annotations added downstream (enrichment, overrides, UBI). Records are
// serialized as NDJSON, one object per line.
type Record map[string]any

// FromFields builds a Record from an ordered field slice per the schema.
func FromFields(schema Schema, fields []string) (Record, error) {
	if len(fields) != schema.Len() {
		return nil, fmt.Errorf("expected %d fields, got %d", schema.Len(), len(fields))
	}
	r := make(Record, schema.Len())
	for i, col := range schema.Columns {
		r[col] = fields[i]
	}
	return r, nil
}

// Get returns the field as a string; non-string values are rendered via
// fmt. Missing fields return "".
func (r Record) Get(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Set stores a field value.
func (r Record) Set(field string, value any) { r[field] = value }

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// InferredFields returns the canonical array form of the LLM-populated
// "Inferred Fields" column, tolerating the legacy hyphen-joined string.
func (r Record) InferredFields() []string {
	switch v := r[FieldInferredFields].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, "-")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// InferredFieldsLegacy renders the hyphen-joined compatibility view.
func (r Record) InferredFieldsLegacy() string {
	return strings.Join(r.InferredFields(), "-")
}

// EncodeNDJSON writes records as NDJSON.
func EncodeNDJSON(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeNDJSON parses NDJSON into records, skipping blank lines.
func DecodeNDJSON(data []byte) ([]Record, error) {
	var records []Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(records), err)
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ndjson: %w", err)
	}
	return records, nil
}
