package entrata

import (
	"testing"

	pe "github.com/brightpath-pm/billflow/internal/errors"
)

func TestEscalateInvoiceChain(t *testing.T) {
	inv := "INV-2026-001"
	next, err := EscalateInvoice(inv)
	if err != nil || next != "INV-2026-001-A" {
		t.Fatalf("first escalation = %q, %v", next, err)
	}
	next, err = EscalateInvoice(next)
	if err != nil || next != "INV-2026-001-B" {
		t.Fatalf("second escalation = %q, %v", next, err)
	}
	next, err = EscalateInvoice("INV-2026-001-Y")
	if err != nil || next != "INV-2026-001-Z" {
		t.Fatalf("Y escalation = %q, %v", next, err)
	}
}

func TestEscalateInvoiceExhaustsAtZ(t *testing.T) {
	_, err := EscalateInvoice("INV-2026-001-Z")
	if !pe.Is(err, pe.KindExhausted) {
		t.Fatalf("err = %v, want exhausted", err)
	}
}

func TestEscalateInvoiceIgnoresLowercaseTail(t *testing.T) {
	// "-a" is vendor data, not an escalation suffix
	next, err := EscalateInvoice("INV-a")
	if err != nil || next != "INV-a-A" {
		t.Fatalf("escalation = %q, %v", next, err)
	}
}
