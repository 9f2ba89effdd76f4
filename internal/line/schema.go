// Package line defines the extracted line-item record: the fixed column
// schemas the LLM must emit, NDJSON encoding, date normalization, and the
// stable content hash that identifies a line across re-processings.
package line

import "strings"

// Schema is a fixed, ordered column list. The parse engine is generic
// over a Schema; utility and legal bills differ only in this list.
type Schema struct {
	Name    string
	Columns []string

	// DescriptionIndex is the column that absorbs excess fields when a
	// pipe character leaks into the description and a reply row splits
	// into too many columns.
	DescriptionIndex int
}

// Len returns the column count the LLM must emit per row.
func (s Schema) Len() int { return len(s.Columns) }

// Header-level fields must hold the same value on every row extracted
// from one PDF; the aggregator enforces this by majority vote.
var HeaderFields = []string{
	FieldVendorName,
	FieldInvoiceNumber,
	FieldAccountNumber,
	FieldBillDate,
	FieldDueDate,
}

// Canonical field names shared by both schemas.
const (
	FieldVendorName        = "Vendor Name"
	FieldInvoiceNumber     = "Invoice Number"
	FieldAccountNumber     = "Account Number"
	FieldBillDate          = "Bill Date"
	FieldDueDate           = "Due Date"
	FieldPropertyName      = "Property Name"
	FieldServiceAddress    = "Service Address"
	FieldLineItemAccount   = "Line Item Account Number"
	FieldLineItemDesc      = "Line Item Description"
	FieldLineItemCharge    = "Line Item Charge"
	FieldUtilityType       = "Utility Type"
	FieldConsumption       = "Consumption"
	FieldUOM               = "UOM"
	FieldServiceStart      = "Service Start Date"
	FieldServiceEnd        = "Service End Date"
	FieldInferredFields    = "Inferred Fields"
)

// Utility is the 30-column utility-bill schema. Column order is part of
// the LLM contract; FieldLineItemDesc sits at index 24 on purpose (the
// pipe-salvage rule rejoins spilled fields there).
var Utility = Schema{
	Name: "utility",
	Columns: []string{
		FieldVendorName,            // 0
		"Vendor Address",           // 1
		"Remit To Address",         // 2
		FieldPropertyName,          // 3
		"Property Address",         // 4
		FieldServiceAddress,        // 5
		FieldAccountNumber,         // 6
		FieldInvoiceNumber,         // 7
		FieldBillDate,              // 8
		FieldDueDate,               // 9
		"Billing Period Start",     // 10
		"Billing Period End",       // 11
		FieldServiceStart,          // 12
		FieldServiceEnd,            // 13
		FieldUtilityType,           // 14
		"Meter Number",             // 15
		"Previous Reading",         // 16
		"Current Reading",          // 17
		FieldConsumption,           // 18
		FieldUOM,                   // 19
		"Rate",                     // 20
		"Previous Balance",         // 21
		"Payments Received",        // 22
		FieldLineItemAccount,       // 23
		FieldLineItemDesc,          // 24
		FieldLineItemCharge,        // 25
		"Late Fee",                 // 26
		"Total Amount Due",         // 27
		"Occupant Status",          // 28
		FieldInferredFields,        // 29
	},
	DescriptionIndex: 24,
}

// Legal is the 11-column legal-bill schema.
var Legal = Schema{
	Name: "legal",
	Columns: []string{
		FieldVendorName,       // 0
		FieldPropertyName,     // 1
		"Matter Number",       // 2
		"Matter Description",  // 3
		FieldAccountNumber,    // 4
		FieldInvoiceNumber,    // 5
		FieldBillDate,         // 6
		FieldDueDate,          // 7
		FieldLineItemDesc,     // 8
		FieldLineItemCharge,   // 9
		FieldInferredFields,   // 10
	},
	DescriptionIndex: 8,
}

// SchemaFor maps a reviewer-supplied document type to its schema.
// Unknown or empty types fall back to the utility schema, the lane the
// overwhelming majority of ingested bills take.
func SchemaFor(docType string) Schema {
	if strings.EqualFold(strings.TrimSpace(docType), Legal.Name) {
		return Legal
	}
	return Utility
}

// DateFields lists every field coerced to MM/DD/YYYY.
var DateFields = []string{
	FieldBillDate,
	FieldDueDate,
	"Billing Period Start",
	"Billing Period End",
	FieldServiceStart,
	FieldServiceEnd,
}
