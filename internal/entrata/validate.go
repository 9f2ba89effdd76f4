package entrata

import (
	"strconv"
	"strings"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/enrich"
	"github.com/brightpath-pm/billflow/internal/line"
)

// Validate checks that one PDF's records carry everything Entrata
// requires: property, vendor, invoice number, bill date, GL code, and at
// least one line with a parseable amount.
func Validate(records []line.Record) error {
	if len(records) == 0 {
		return pe.New(pe.KindValidation, "batch has no lines")
	}
	head := records[0]

	var missing []string
	if head.Get(enrich.FieldPropertyID) == "" {
		missing = append(missing, "property")
	}
	if head.Get(enrich.FieldVendorID) == "" {
		missing = append(missing, "vendor")
	}
	if head.Get(line.FieldInvoiceNumber) == "" {
		missing = append(missing, "invoice number")
	}
	if head.Get(line.FieldBillDate) == "" {
		missing = append(missing, "bill date")
	}

	hasGL := false
	hasAmount := false
	for _, r := range records {
		if r.Get(enrich.FieldGLNumber) != "" {
			hasGL = true
		}
		if _, err := ParseAmount(r.Get(line.FieldLineItemCharge)); err == nil {
			hasAmount = true
		}
	}
	if !hasGL {
		missing = append(missing, "GL code")
	}
	if !hasAmount {
		missing = append(missing, "line amount")
	}

	if len(missing) > 0 {
		return pe.Newf(pe.KindValidation, "missing required fields: %s",
			strings.Join(missing, ", "))
	}
	return nil
}

// ParseAmount parses a charge string, tolerating currency symbols,
// thousands separators, and parenthesized negatives.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if negative {
		n = -n
	}
	return n, nil
}
