package entrata

import (
	"strings"

	pe "github.com/brightpath-pm/billflow/internal/errors"
)

// maxSuffix caps duplicate escalation at "-Z".
const maxSuffix = 26

// EscalateInvoice returns the next invoice number in the duplicate
// escalation chain: INV123 -> INV123-A -> INV123-B ... INV123-Z, then an
// exhausted error.
func EscalateInvoice(invoice string) (string, error) {
	base, suffix := splitSuffix(invoice)
	if suffix == 0 {
		return base + "-A", nil
	}
	if suffix >= maxSuffix {
		return "", pe.Newf(pe.KindExhausted, "invoice %s exhausted duplicate suffixes", invoice)
	}
	return base + "-" + string(rune('A'+suffix)), nil
}

// splitSuffix detects an existing "-<letter>" escalation suffix. Returns
// the base invoice and the suffix ordinal (1 for A), or 0 when none.
func splitSuffix(invoice string) (string, int) {
	if len(invoice) < 2 || invoice[len(invoice)-2] != '-' {
		return invoice, 0
	}
	last := invoice[len(invoice)-1]
	if last < 'A' || last > 'Z' {
		return invoice, 0
	}
	return strings.TrimSuffix(invoice, invoice[len(invoice)-2:]), int(last-'A') + 1
}
