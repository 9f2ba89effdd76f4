package entrata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brightpath-pm/billflow/internal/enrich"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
)

const batchKey = stage.PreEntrata + "abc123.jsonl"

func seedBatch(t *testing.T, store *storage.MockStore) {
	t.Helper()
	records := []line.Record{{
		enrich.FieldPropertyID:   "p-1",
		enrich.FieldVendorID:     "v-1",
		enrich.FieldGLNumber:     "5720",
		enrich.FieldGLLineDesc:   "WATER 123 UNIT 4",
		line.FieldInvoiceNumber:  "INV-1",
		line.FieldBillDate:       "03/05/2026",
		line.FieldDueDate:        "03/25/2026",
		line.FieldLineItemCharge: "$42.17",
		"pdf_id":                 "deadbeef",
		"line_id":                "deadbeef#0",
	}}
	data, err := line.EncodeNDJSON(records)
	if err != nil {
		t.Fatal(err)
	}
	store.Put(context.Background(), batchKey, data)
}

type scriptedEntrata struct {
	t       *testing.T
	replies []string
	// requests captures the decoded invoice number of each call
	invoices []string
}

func (s *scriptedEntrata) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Auth struct {
				Type     string `json:"type"`
				Username string `json:"username"`
			} `json:"auth"`
			RequestID string `json:"requestId"`
			Method    struct {
				Name   string `json:"name"`
				Params struct {
					InvoiceNumber string `json:"invoiceNumber"`
				} `json:"params"`
			} `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.t.Errorf("decode request: %v", err)
		}
		if req.Auth.Type != "basic" || req.Method.Name != "sendInvoices" || req.RequestID == "" {
			s.t.Errorf("bad envelope: %+v", req)
		}
		s.invoices = append(s.invoices, req.Method.Params.InvoiceNumber)

		reply := s.replies[0]
		if len(s.replies) > 1 {
			s.replies = s.replies[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}
}

func newOrchestrator(store storage.ObjectStore, url string) *Orchestrator {
	return &Orchestrator{
		Store:  store,
		Client: &Client{BaseURL: url, Username: "u", Password: "p"},
	}
}

func TestPostKeysSuccessMovesToStage7(t *testing.T) {
	store := storage.NewMockStore()
	seedBatch(t, store)
	script := &scriptedEntrata{t: t, replies: []string{`{"status":"ok","message":"posted"}`}}
	srv := httptest.NewServer(script.handler())
	defer srv.Close()

	o := newOrchestrator(store, srv.URL)
	results := o.PostKeys(context.Background(), []string{batchKey}, PostOptions{})
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	if results[0].Outcome != "success" || results[0].Invoice != "INV-1" {
		t.Fatalf("result = %+v", results[0])
	}

	ctx := context.Background()
	target := stage.Rebase(batchKey, stage.PostEntrata)
	if ok, _ := store.Exists(ctx, target); !ok {
		t.Error("batch not in Stage 7")
	}
	if ok, _ := store.Exists(ctx, batchKey); ok {
		t.Error("Stage 6 key not deleted")
	}
	posted, err := store.Get(ctx, stage.SidecarKey(target, stage.SidecarPosted))
	if err != nil {
		t.Fatalf("posted sidecar: %v", err)
	}
	var sidecar struct {
		Invoice  string          `json:"invoice"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(posted, &sidecar); err != nil {
		t.Fatalf("decode sidecar: %v", err)
	}
	if sidecar.Invoice != "INV-1" || len(sidecar.Response) == 0 {
		t.Errorf("sidecar = %+v", sidecar)
	}
}

func TestPostKeysEscalatesDuplicate(t *testing.T) {
	store := storage.NewMockStore()
	seedBatch(t, store)
	script := &scriptedEntrata{t: t, replies: []string{
		`{"status":"error","message":"invoice already exists"}`,
		`{"status":"error","message":"duplicate invoice"}`,
		`{"status":"ok"}`,
	}}
	srv := httptest.NewServer(script.handler())
	defer srv.Close()

	o := newOrchestrator(store, srv.URL)
	results := o.PostKeys(context.Background(), []string{batchKey}, PostOptions{})
	if results[0].Outcome != "success" {
		t.Fatalf("result = %+v", results[0])
	}
	if results[0].Invoice != "INV-1-B" {
		t.Errorf("final invoice = %q, want INV-1-B", results[0].Invoice)
	}
	want := []string{"INV-1", "INV-1-A", "INV-1-B"}
	if len(script.invoices) != 3 {
		t.Fatalf("invoices sent = %v", script.invoices)
	}
	for i := range want {
		if script.invoices[i] != want[i] {
			t.Errorf("call %d invoice = %q, want %q", i, script.invoices[i], want[i])
		}
	}

	// The Stage 7 record carries the invoice Entrata accepted, not the
	// Stage 6 original.
	ctx := context.Background()
	data, err := store.Get(ctx, stage.Rebase(batchKey, stage.PostEntrata))
	if err != nil {
		t.Fatalf("stage 7 batch: %v", err)
	}
	posted, err := line.DecodeNDJSON(data)
	if err != nil {
		t.Fatalf("decode stage 7 batch: %v", err)
	}
	if got := posted[0].Get(line.FieldInvoiceNumber); got != "INV-1-B" {
		t.Errorf("stage 7 invoice = %q, want INV-1-B", got)
	}
}

func TestPostKeysRejectionFailsBatch(t *testing.T) {
	store := storage.NewMockStore()
	seedBatch(t, store)
	script := &scriptedEntrata{t: t, replies: []string{`{"status":"error","message":"vendor not found"}`}}
	srv := httptest.NewServer(script.handler())
	defer srv.Close()

	o := newOrchestrator(store, srv.URL)
	results := o.PostKeys(context.Background(), []string{batchKey}, PostOptions{})
	if results[0].Outcome != "error" {
		t.Fatalf("result = %+v", results[0])
	}
	// rejected batches stay in Stage 6 for the reviewer
	if ok, _ := store.Exists(context.Background(), batchKey); !ok {
		t.Error("rejected batch removed from Stage 6")
	}
}

func TestPostKeysMissingKeySkips(t *testing.T) {
	store := storage.NewMockStore()
	o := newOrchestrator(store, "http://unused.invalid")
	results := o.PostKeys(context.Background(), []string{batchKey}, PostOptions{})
	if results[0].Outcome != "skipped" {
		t.Fatalf("result = %+v", results[0])
	}
}

func TestPostKeysInvalidBatchNeverCallsAPI(t *testing.T) {
	store := storage.NewMockStore()
	ctx := context.Background()
	records := []line.Record{{line.FieldLineItemCharge: "10.00"}} // no vendor/property/invoice
	data, _ := line.EncodeNDJSON(records)
	store.Put(ctx, batchKey, data)

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	o := newOrchestrator(store, srv.URL)
	results := o.PostKeys(ctx, []string{batchKey}, PostOptions{})
	if results[0].Outcome != "error" {
		t.Fatalf("result = %+v", results[0])
	}
	if called {
		t.Error("invalid batch reached the API")
	}
}

func TestPostKeysVendorOverride(t *testing.T) {
	store := storage.NewMockStore()
	seedBatch(t, store)

	var vendorSent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method struct {
				Params struct {
					VendorID string `json:"vendorId"`
				} `json:"params"`
			} `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		vendorSent = req.Method.Params.VendorID
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	o := newOrchestrator(store, srv.URL)
	o.PostKeys(context.Background(), []string{batchKey}, PostOptions{
		VendorOverrides: map[string]string{"deadbeef": "v-override"},
	})
	if vendorSent != "v-override" {
		t.Errorf("vendor sent = %q", vendorSent)
	}
}
