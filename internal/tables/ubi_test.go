package tables

import (
	"context"
	"testing"
)

func sampleAssignments(hash string) []Assignment {
	return []Assignment{
		{LineHash: hash, UBIPeriod: "2026-03", S3Key: "Stage7_PostEntrata/acct-1234.jsonl", Amount: 20.50, MonthsTotal: 2, AssignedBy: "reviewer"},
		{LineHash: hash, UBIPeriod: "2026-04", S3Key: "Stage7_PostEntrata/acct-1234.jsonl", Amount: 20.50, MonthsTotal: 2, AssignedBy: "reviewer"},
	}
}

func TestAssignIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	store := db.UBI()
	ctx := context.Background()

	rows := sampleAssignments("h1")
	if err := store.Assign(ctx, rows); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	// re-delivered assignment replaces rather than duplicates
	if err := store.Assign(ctx, rows); err != nil {
		t.Fatalf("second Assign: %v", err)
	}

	got, err := store.Get(ctx, "h1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].UBIPeriod != "2026-03" || got[1].UBIPeriod != "2026-04" {
		t.Errorf("periods = %q, %q", got[0].UBIPeriod, got[1].UBIPeriod)
	}
	if got[0].AssignedDate == "" {
		t.Error("assigned date not defaulted")
	}
}

func TestReassignReplacesPeriodSet(t *testing.T) {
	db := openTestDB(t)
	store := db.UBI()
	ctx := context.Background()

	store.Assign(ctx, sampleAssignments("h1"))
	if err := store.Reassign(ctx, "h1", []Assignment{
		{LineHash: "h1", UBIPeriod: "2026-06", S3Key: "k", Amount: 41.00, MonthsTotal: 1, AssignedBy: "reviewer"},
	}); err != nil {
		t.Fatalf("Reassign: %v", err)
	}

	got, _ := store.Get(ctx, "h1")
	if len(got) != 1 || got[0].UBIPeriod != "2026-06" {
		t.Fatalf("rows after reassign = %v", got)
	}
}

func TestArchiveMigratesRows(t *testing.T) {
	db := openTestDB(t)
	store := db.UBI()
	ctx := context.Background()

	store.Assign(ctx, sampleAssignments("h1"))
	if err := store.Archive(ctx, "h1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if got, _ := store.Get(ctx, "h1"); len(got) != 0 {
		t.Errorf("assignment rows survived archive: %v", got)
	}
	archived, err := store.GetArchived(ctx, "h1")
	if err != nil {
		t.Fatalf("GetArchived: %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("archived %d rows, want 2", len(archived))
	}

	// archiving an already-archived line is a no-op
	if err := store.Archive(ctx, "h1"); err != nil {
		t.Fatalf("second Archive: %v", err)
	}
	if archived, _ = store.GetArchived(ctx, "h1"); len(archived) != 2 {
		t.Errorf("archive rows after no-op = %d", len(archived))
	}
}

func TestStatusAndKnownHashes(t *testing.T) {
	db := openTestDB(t)
	store := db.UBI()
	ctx := context.Background()

	store.Assign(ctx, sampleAssignments("assigned"))
	store.Assign(ctx, sampleAssignments("archived"))
	store.Archive(ctx, "archived")

	cases := []struct {
		hash string
		want HashStatus
	}{
		{"assigned", HashAssigned},
		{"archived", HashArchived},
		{"unknown", HashUnassigned},
	}
	for _, c := range cases {
		got, err := store.Status(ctx, c.hash)
		if err != nil {
			t.Fatalf("Status(%s): %v", c.hash, err)
		}
		if got != c.want {
			t.Errorf("Status(%s) = %v, want %v", c.hash, got, c.want)
		}
	}

	known, err := store.KnownHashes(ctx)
	if err != nil {
		t.Fatalf("KnownHashes: %v", err)
	}
	if len(known) != 2 || known["assigned"] != HashAssigned || known["archived"] != HashArchived {
		t.Errorf("known = %v", known)
	}
}

func TestUnassignDeletesRows(t *testing.T) {
	db := openTestDB(t)
	store := db.UBI()
	ctx := context.Background()

	store.Assign(ctx, sampleAssignments("h1"))
	if err := store.Unassign(ctx, "h1"); err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	if got, _ := store.Get(ctx, "h1"); len(got) != 0 {
		t.Errorf("rows after unassign = %v", got)
	}
	if st, _ := store.Status(ctx, "h1"); st != HashUnassigned {
		t.Errorf("status = %v", st)
	}
}

func TestSuggestByAccountSearchesBothTables(t *testing.T) {
	db := openTestDB(t)
	store := db.UBI()
	ctx := context.Background()

	store.Assign(ctx, []Assignment{
		{LineHash: "h1", UBIPeriod: "2026-03", S3Key: "Stage7_PostEntrata/acct-1234.jsonl", Amount: 1, MonthsTotal: 1, AssignedBy: "r", AssignedDate: "2026-03-01"},
	})
	store.Assign(ctx, []Assignment{
		{LineHash: "h2", UBIPeriod: "2026-01", S3Key: "Stage7_PostEntrata/acct-1234.jsonl", Amount: 2, MonthsTotal: 1, AssignedBy: "r", AssignedDate: "2026-01-01"},
	})
	store.Archive(ctx, "h2")

	got, err := store.SuggestByAccount(ctx, "acct-1234", 10)
	if err != nil {
		t.Fatalf("SuggestByAccount: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("suggestions = %v", got)
	}
	if got, _ := store.SuggestByAccount(ctx, "acct-9999", 10); len(got) != 0 {
		t.Errorf("unrelated account matched: %v", got)
	}
}
