// Package enrich resolves parsed line items against the vendor, property,
// and GL dimension snapshots and derives the enriched fields the review
// surface and Entrata posting consume.
package enrich

import (
	"strings"
	"unicode"
)

// NormalizeName canonicalizes a vendor or property name for dimension
// matching: ampersands become "and", everything lowercases, punctuation
// drops, whitespace collapses.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "&", " and ")
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
