package line

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// VolatileSetVersion pins the volatile field set. The set defines line
// identity for the UBI engine: any change to it is a migration that
// invalidates every stored assignment hash, not a routine edit.
const VolatileSetVersion = 1

// volatileFields are the mutable annotations excluded from the stable
// hash so that downstream edits never change a line's identity.
var volatileFields = map[string]bool{
	// charge-code annotations
	"charge_code":       true,
	"charge_code_group": true,
	// amount overrides from the review surface
	"override_amount": true,
	"override_fields": true,
	// exclusion flag
	"ubi_excluded": true,
	// mapped-utility name
	"mapped_utility": true,
	// the UBI annotations themselves
	"ubi_period":        true,
	"ubi_amount":        true,
	"ubi_months_total":  true,
	"ubi_assigned_by":   true,
	"ubi_assigned_date": true,
	"ubi_assignments":   true,
	"ubi_period_count":  true,
}

// IsVolatile reports whether a field is excluded from the stable hash.
func IsVolatile(field string) bool { return volatileFields[field] }

// StableHash computes the content-addressed identity of a record:
// SHA256 over canonical JSON (sorted keys) with volatile fields removed.
func StableHash(r Record) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if !volatileFields[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(r[k])
		h.Write(kb)
		h.Write([]byte{':'})
		h.Write(vb)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
