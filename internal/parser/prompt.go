package parser

import (
	"fmt"
	"strings"

	"github.com/brightpath-pm/billflow/internal/line"
)

// PromptParams carries the optional extras woven into an extraction
// prompt: reviewer hints from sidecar files, the running summary from
// earlier chunks, and the prior reply excerpt used for self-correction.
type PromptParams struct {
	ExpectedLines   int
	BillFrom        string
	PreviousContext string
	PriorReply      string // excerpt of a reply that violated the schema
	PageStart       int    // chunk page range; zero for whole documents
	PageEnd         int
}

// maxExcerptLen bounds the self-correction excerpt so a pathological
// reply cannot blow up the next prompt.
const maxExcerptLen = 2000

// BuildPrompt renders the extraction prompt for a schema. The output
// contract is fixed: exactly K pipe-delimited fields per row, or the
// literal EMPTY token.
func BuildPrompt(schema line.Schema, p PromptParams) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Extract every line item from this %s bill PDF.\n\n", schema.Name)
	fmt.Fprintf(&sb, "Output one row per line item, fields separated by the pipe character (|).\n")
	fmt.Fprintf(&sb, "Each row must contain exactly %d fields, in this order:\n", schema.Len())
	for i, col := range schema.Columns {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, col)
	}
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Leave a field empty when the document does not state it; never invent values.\n")
	sb.WriteString("- Never use the pipe character inside a field value.\n")
	fmt.Fprintf(&sb, "- List any field names you inferred rather than read verbatim in the %q field as a JSON array.\n", line.FieldInferredFields)
	fmt.Fprintf(&sb, "- If the document contains no line items, reply with the single token %s.\n", EmptyToken)
	sb.WriteString("- Reply with data rows only: no headers, no markdown, no commentary.\n")

	if p.PageStart > 0 {
		fmt.Fprintf(&sb, "\nThis PDF contains pages %d-%d of a larger document.\n", p.PageStart, p.PageEnd)
	}
	if p.ExpectedLines > 0 {
		fmt.Fprintf(&sb, "\nA reviewer expects about %d line items in the full document.\n", p.ExpectedLines)
	}
	if p.BillFrom != "" {
		fmt.Fprintf(&sb, "The bill is from %q; use this as the vendor name if the document is unclear.\n", p.BillFrom)
	}
	if p.PreviousContext != "" {
		sb.WriteString("\nEarlier pages of this document established the following header values; reuse them where this section omits them:\n")
		sb.WriteString(p.PreviousContext)
		sb.WriteString("\n")
	}
	if p.PriorReply != "" {
		excerpt := p.PriorReply
		if len(excerpt) > maxExcerptLen {
			excerpt = excerpt[:maxExcerptLen]
		}
		fmt.Fprintf(&sb, "\nYour previous reply did not follow the %d-field contract. It began:\n---\n%s\n---\nCorrect the field count this time.\n", schema.Len(), excerpt)
	}
	return sb.String()
}

// ContextSummary renders the header values a chunk established, for the
// job record's previous_context field.
func ContextSummary(records []line.Record) string {
	if len(records) == 0 {
		return ""
	}
	r := records[0]
	var parts []string
	for _, field := range line.HeaderFields {
		if v := r.Get(field); v != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", field, v))
		}
	}
	return strings.Join(parts, "; ")
}
