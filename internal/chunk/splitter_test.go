package chunk

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
)

func TestNewJobIDFormat(t *testing.T) {
	s := &Splitter{Now: func() time.Time {
		return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	}}
	id := s.NewJobID()
	if m, _ := regexp.MatchString(`^20260305T120000_[0-9a-f]{8}$`, id); !m {
		t.Errorf("job id = %q", id)
	}
	if s.NewJobID() == id {
		t.Error("job ids not unique")
	}
}

func TestSplitSkipsMissingKey(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMockStore()
	s := &Splitter{Store: store, Jobs: db.Jobs(), PagesPerChunk: 10}

	if err := s.Split(context.Background(), stage.LargeFile+"gone.pdf"); err != nil {
		t.Fatalf("Split on missing key: %v", err)
	}
	if store.Len() != 0 {
		t.Error("store mutated")
	}
}

func TestSplitRejectsUnparseablePDF(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMockStore()
	ctx := context.Background()
	key := stage.LargeFile + "bill.pdf"
	store.Put(ctx, key, []byte("not a pdf"))

	s := &Splitter{Store: store, Jobs: db.Jobs(), PagesPerChunk: 10}
	if err := s.Split(ctx, key); err == nil {
		t.Fatal("expected error for unparseable PDF")
	}
	// the archive copy lands before splitting, so pdf_id derivation is
	// stable even for a retried split
	if ok, _ := store.Exists(ctx, stage.Rebase(key, stage.ParsedInputs)); !ok {
		t.Error("archive copy missing")
	}
	// the source stays put for the failure router
	if ok, _ := store.Exists(ctx, key); !ok {
		t.Error("source removed despite failure")
	}
}
