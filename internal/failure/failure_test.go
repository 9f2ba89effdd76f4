package failure

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/brightpath-pm/billflow/internal/sidecar"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
)

func TestRouteFirstFailurePromotesToLargeFile(t *testing.T) {
	store := storage.NewMockStore()
	ctx := context.Background()
	key := stage.Standard + "bill.pdf"
	store.Put(ctx, key, []byte("pdf bytes"))
	store.Put(ctx, stage.SidecarKey(key, stage.SidecarNotes), []byte(`{"expected_line_count":7}`))

	r := &Router{Store: store}
	if err := r.Route(ctx, key, "Timeout", "invocation timed out"); err != nil {
		t.Fatalf("Route: %v", err)
	}

	target := stage.LargeFile + "bill_LARGEFILE_.pdf"
	if ok, _ := store.Exists(ctx, target); !ok {
		t.Fatal("PDF not promoted to large-file lane")
	}
	if ok, _ := store.Exists(ctx, key); ok {
		t.Error("source key not deleted")
	}

	// hints follow the marker rename
	h := sidecar.Read(ctx, store, target)
	if h.ExpectedLineCount != 7 {
		t.Errorf("hints after promotion = %+v", h)
	}

	diag, err := store.Get(ctx, stage.SidecarKey(target, stage.SidecarError))
	if err != nil {
		t.Fatalf("error sidecar: %v", err)
	}
	var d struct {
		Action    string `json:"action"`
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal(diag, &d); err != nil {
		t.Fatal(err)
	}
	if d.Action != "promoted_to_largefile" || d.ErrorType != "Timeout" {
		t.Errorf("diagnostic = %+v", d)
	}
}

func TestRouteSecondFailureParks(t *testing.T) {
	store := storage.NewMockStore()
	ctx := context.Background()
	key := stage.LargeFile + "bill_LARGEFILE_.pdf"
	store.Put(ctx, key, []byte("pdf bytes"))

	r := &Router{Store: store}
	if err := r.Route(ctx, key, "OOM", "out of memory"); err != nil {
		t.Fatalf("Route: %v", err)
	}

	parked := stage.Failed + "bill_LARGEFILE_.pdf"
	if ok, _ := store.Exists(ctx, parked); !ok {
		t.Fatal("marked PDF not parked in Failed/")
	}
	var d struct {
		Action string `json:"action"`
	}
	diag, _ := store.Get(ctx, stage.SidecarKey(parked, stage.SidecarError))
	json.Unmarshal(diag, &d)
	if d.Action != "parked" {
		t.Errorf("action = %q", d.Action)
	}
}

func TestRouteMissingKeyIsNoOp(t *testing.T) {
	store := storage.NewMockStore()
	r := &Router{Store: store}
	if err := r.Route(context.Background(), stage.Standard+"gone.pdf", "Timeout", "x"); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if store.Len() != 0 {
		t.Error("store mutated")
	}
}

func TestHandlePayload(t *testing.T) {
	store := storage.NewMockStore()
	ctx := context.Background()
	key := stage.Standard + "bill.pdf"
	store.Put(ctx, key, []byte("pdf bytes"))

	payload := fmt.Sprintf(`{"requestPayload":{"key":%q},"errorType":"Timeout","errorMessage":"slow"}`, key)
	r := &Router{Store: store}
	if err := r.HandlePayload(ctx, []byte(payload)); err != nil {
		t.Fatalf("HandlePayload: %v", err)
	}
	if ok, _ := store.Exists(ctx, stage.LargeFile+"bill_LARGEFILE_.pdf"); !ok {
		t.Error("payload routing did not promote the PDF")
	}

	if err := r.HandlePayload(ctx, []byte(`{"errorType":"Timeout"}`)); err == nil {
		t.Error("payload without key accepted")
	}
	if err := r.HandlePayload(ctx, []byte("not json")); err == nil {
		t.Error("malformed payload accepted")
	}
}
