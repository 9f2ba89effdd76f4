package line

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order against a cleaned value. Two-digit years
// use Go's 06 pivot (69 and below -> 20xx).
var dateLayouts = []string{
	"1/2/2006",
	"1/2/06",
	"1-2-2006",
	"1-2-06",
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2 2006",
	"01022006", // packed MMDDYYYY
	"20060102", // packed YYYYMMDD
}

// NormalizeDate coerces a recognized date to MM/DD/YYYY. Unparseable
// values pass through unchanged.
func NormalizeDate(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return value
	}
	cleaned := strings.Trim(v, ".,")
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, cleaned)
		if err != nil {
			continue
		}
		// Packed forms are ambiguous: an 8-digit string can parse under
		// both layouts. Reject implausible years instead of guessing.
		if t.Year() < 1900 || t.Year() > 2200 {
			continue
		}
		return fmt.Sprintf("%02d/%02d/%04d", int(t.Month()), t.Day(), t.Year())
	}
	return value
}

// NormalizeDates coerces every recognized date field on a record.
func NormalizeDates(r Record) {
	for _, field := range DateFields {
		if v := r.Get(field); v != "" {
			r.Set(field, NormalizeDate(v))
		}
	}
}
