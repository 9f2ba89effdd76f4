// Package parser implements the generic LLM extraction engine: prompt a
// model for pipe-delimited rows, validate against a fixed column schema,
// normalize drift, and retry with key rotation and self-correction. The
// utility and legal parsers are the same engine with different schemas.
package parser

import (
	"strings"

	"github.com/brightpath-pm/billflow/internal/line"
)

// EmptyToken is the literal reply the model must emit when a document
// contains no extractable rows.
const EmptyToken = "EMPTY"

// NormalizeRow coerces a raw reply row toward the schema's column count.
// Too few fields: pad with empty strings. Too many: assume a pipe leaked
// into the description column and rejoin the excess there with "-". This
// is the one deterministic salvage for LLM schema drift; it turns a
// whole class of failures into successes without human review.
func NormalizeRow(schema line.Schema, fields []string) []string {
	want := schema.Len()
	if len(fields) < want {
		padded := make([]string, want)
		copy(padded, fields)
		fields = padded
	} else if len(fields) > want {
		excess := len(fields) - want
		di := schema.DescriptionIndex
		merged := make([]string, 0, want)
		merged = append(merged, fields[:di]...)
		merged = append(merged, strings.Join(fields[di:di+excess+1], "-"))
		merged = append(merged, fields[di+excess+1:]...)
		fields = merged
	}
	for i, f := range fields {
		fields[i] = cleanField(f)
	}
	return fields
}

// cleanField strips internal pipes and carriage returns and collapses
// whitespace runs.
func cleanField(s string) string {
	s = strings.ReplaceAll(s, "|", "")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}

// ParseReply splits a model reply into normalized row field slices.
// Rows that cannot be normalized to the schema width are dropped and
// counted; the caller decides whether the drop count forces a retry.
func ParseReply(schema line.Schema, reply string) (rows [][]string, dropped int, empty bool) {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" || strings.EqualFold(trimmed, EmptyToken) {
		return nil, 0, true
	}
	for _, raw := range strings.Split(trimmed, "\n") {
		text := strings.TrimSpace(raw)
		if text == "" || strings.EqualFold(text, EmptyToken) {
			continue
		}
		// Markdown fences and header separators are model chatter, not
		// data rows.
		if strings.HasPrefix(text, "```") || isSeparatorRow(text) {
			continue
		}
		split := strings.Split(text, "|")
		// A line with no pipes at all is prose, not a row the
		// normalizer can salvage.
		if len(split) == 1 {
			dropped++
			continue
		}
		rows = append(rows, NormalizeRow(schema, split))
	}
	if len(rows) == 0 && dropped == 0 {
		return nil, 0, true
	}
	return rows, dropped, false
}

func isSeparatorRow(text string) bool {
	for _, r := range text {
		switch r {
		case '-', '|', ':', ' ':
		default:
			return false
		}
	}
	return true
}
