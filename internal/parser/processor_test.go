package parser

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/llm"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
)

func processorNow() time.Time {
	return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
}

func newTestProcessor(client llm.Client) *Processor {
	eng, _ := newTestEngine(client, "k1")
	return &Processor{Store: storage.NewMockStore(), Engine: eng, Now: processorNow}
}

func TestProcessStandardPDF(t *testing.T) {
	fake := llm.NewFakeClient().Reply("Acme Water|INV-1|water service|42.00")
	p := newTestProcessor(fake)
	store := p.Store.(*storage.MockStore)
	ctx := context.Background()

	key := stage.Standard + "bill.pdf"
	store.Put(ctx, key, []byte("pdf bytes"))
	store.Put(ctx, stage.SidecarKey(key, stage.SidecarNotes),
		[]byte(`{"expected_line_count":7,"bill_from":"Acme Water"}`))

	if err := p.Process(ctx, key); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// reviewer hints reach the prompt
	if !strings.Contains(fake.Prompts[0], "about 7 line items") ||
		!strings.Contains(fake.Prompts[0], `"Acme Water"`) {
		t.Errorf("hints missing from prompt:\n%s", fake.Prompts[0])
	}

	archiveKey := stage.Rebase(key, stage.ParsedInputs)
	if ok, _ := store.Exists(ctx, archiveKey); !ok {
		t.Fatal("PDF not archived to stage 2")
	}
	if ok, _ := store.Exists(ctx, stage.SidecarKey(archiveKey, stage.SidecarNotes)); !ok {
		t.Error("sidecar not archived with the PDF")
	}

	data, err := store.Get(ctx, stage.ParsedOutputKey(key, processorNow()))
	if err != nil {
		t.Fatalf("stage 3 output: %v", err)
	}
	records, err := line.DecodeNDJSON(data)
	if err != nil || len(records) != 1 {
		t.Fatalf("records = %d, %v", len(records), err)
	}
	pdfID := stage.PDFID(archiveKey)
	if records[0].Get("pdf_id") != pdfID ||
		records[0].Get("line_id") != stage.LineID(pdfID, 0) ||
		records[0].Get("source_key") != archiveKey {
		t.Errorf("provenance = %v", records[0])
	}

	// staging key and its sidecars are gone
	if ok, _ := store.Exists(ctx, key); ok {
		t.Error("staging key survived")
	}
	if ok, _ := store.Exists(ctx, stage.SidecarKey(key, stage.SidecarNotes)); ok {
		t.Error("staging sidecar survived")
	}
}

func TestProcessLegalDocTypeHint(t *testing.T) {
	legalRow := "Smith & Gray LLP|Maple Court|M-2201|Eviction matter 12B|8890|LGL-445|03/02/2026|04/01/2026|Court filing fees|350.00|[]"
	fake := llm.NewFakeClient().Reply(legalRow)
	p := newTestProcessor(fake)
	store := p.Store.(*storage.MockStore)
	ctx := context.Background()

	key := stage.Standard + "legal.pdf"
	store.Put(ctx, key, []byte("pdf bytes"))
	store.Put(ctx, stage.SidecarKey(key, stage.SidecarNotes),
		[]byte(`{"doc_type":"legal"}`))

	if err := p.Process(ctx, key); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// the doc-type hint switches the prompt to the legal column contract
	if !strings.Contains(fake.Prompts[0], "legal bill") ||
		!strings.Contains(fake.Prompts[0], "Matter Number") {
		t.Errorf("prompt not on the legal schema:\n%s", fake.Prompts[0])
	}

	data, err := store.Get(ctx, stage.ParsedOutputKey(key, processorNow()))
	if err != nil {
		t.Fatalf("stage 3 output: %v", err)
	}
	records, err := line.DecodeNDJSON(data)
	if err != nil || len(records) != 1 {
		t.Fatalf("records = %d, %v", len(records), err)
	}
	if records[0].Get("Matter Number") != "M-2201" ||
		records[0].Get(line.FieldLineItemCharge) != "350.00" {
		t.Errorf("legal record = %v", records[0])
	}

	// the shared engine keeps its default schema for the next document
	if p.Engine.Schema.Name != testSchema.Name {
		t.Errorf("engine schema mutated to %q", p.Engine.Schema.Name)
	}
}

func TestProcessMissingKeyIsNoOp(t *testing.T) {
	fake := llm.NewFakeClient()
	p := newTestProcessor(fake)
	if err := p.Process(context.Background(), stage.Standard+"gone.pdf"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(fake.Calls) != 0 {
		t.Error("missing key reached the engine")
	}
}

func TestProcessEmptyDocument(t *testing.T) {
	fake := llm.NewFakeClient().Reply("EMPTY")
	p := newTestProcessor(fake)
	store := p.Store.(*storage.MockStore)
	ctx := context.Background()

	key := stage.Standard + "blank.pdf"
	store.Put(ctx, key, []byte("pdf bytes"))

	if err := p.Process(ctx, key); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ok, _ := store.Exists(ctx, stage.Rebase(key, stage.ParsedInputs)); !ok {
		t.Error("empty document not archived")
	}
	if ok, _ := store.Exists(ctx, key); ok {
		t.Error("staging key survived")
	}
	if ok, _ := store.Exists(ctx, stage.ParsedOutputKey(key, processorNow())); ok {
		t.Error("empty document produced stage 3 output")
	}
}

func TestProcessExhaustionParks(t *testing.T) {
	fake := llm.NewFakeClient().Fail(pe.New(pe.KindTimeout, "deadline"))
	p := newTestProcessor(fake)
	store := p.Store.(*storage.MockStore)
	ctx := context.Background()

	key := stage.Standard + "bad.pdf"
	store.Put(ctx, key, []byte("pdf bytes"))

	// parking absorbs the failure so the event is not redelivered
	if err := p.Process(ctx, key); err != nil {
		t.Fatalf("Process: %v", err)
	}

	failedKey := stage.Rebase(key, stage.Failed)
	if ok, _ := store.Exists(ctx, failedKey); !ok {
		t.Fatal("PDF not parked in Failed/")
	}
	diag, err := store.Get(ctx, stage.SidecarKey(failedKey, stage.SidecarError))
	if err != nil {
		t.Fatalf("error sidecar: %v", err)
	}
	var d struct {
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal(diag, &d); err != nil {
		t.Fatal(err)
	}
	if d.ErrorType != string(pe.KindExhausted) {
		t.Errorf("error type = %q", d.ErrorType)
	}
	if ok, _ := store.Exists(ctx, key); ok {
		t.Error("staging key survived parking")
	}
}
