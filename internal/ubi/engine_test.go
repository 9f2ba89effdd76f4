package ubi

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/brightpath-pm/billflow/internal/enrich"
	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
)

// The seeded account number is a substring of the source key so that
// account-based suggestions can find prior assignments for the file.
const sourceKey = "Stage2_ParsedInputs/acct-777_bill.pdf"

func newTestEngine(t *testing.T) (*Engine, *storage.MockStore) {
	t.Helper()
	db, err := tables.Open(filepath.Join(t.TempDir(), "billflow.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewMockStore()
	ctx := context.Background()

	posted := []line.Record{
		{
			"line_id": "pdfA#0", "pdf_id": "pdfA", "source_key": sourceKey,
			line.FieldVendorName:     "Acme Water",
			line.FieldAccountNumber:  "777",
			line.FieldBillDate:       "03/05/2026",
			line.FieldLineItemDesc:   "water service",
			line.FieldLineItemCharge: "100.00",
			enrich.FieldPropertyID:   "p-1",
		},
		{
			"line_id": "pdfA#1", "pdf_id": "pdfA", "source_key": sourceKey,
			line.FieldVendorName:     "Acme Water",
			line.FieldAccountNumber:  "777",
			line.FieldBillDate:       "see attached",
			line.FieldLineItemDesc:   "late fee",
			line.FieldLineItemCharge: "5.00",
		},
		{
			"line_id": "pdfB#0", "pdf_id": "pdfB",
			"source_key":             "Stage2_ParsedInputs/other.pdf",
			line.FieldVendorName:     "City Gas",
			line.FieldBillDate:       "01/15/2026",
			line.FieldLineItemDesc:   "gas service",
			line.FieldLineItemCharge: "40.00",
		},
	}
	data, err := line.EncodeNDJSON(posted)
	if err != nil {
		t.Fatal(err)
	}
	store.Put(ctx, stage.PostEntrata+"2026/03/05/bill.jsonl", data)
	// sidecars under Stage 7 are not line files and must be skipped
	store.Put(ctx, stage.PostEntrata+"2026/03/05/bill.jsonl.posted.json", []byte(`{"invoice":"INV-1"}`))

	return &Engine{Store: store, UBI: db.UBI()}, store
}

func marchWindow(t *testing.T) DateRange {
	t.Helper()
	r, err := ParseDateRange("2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("ParseDateRange: %v", err)
	}
	return r
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2026-03-01", "")
	if err != nil {
		t.Fatalf("open-ended range: %v", err)
	}
	if r.Start.IsZero() || !r.End.IsZero() {
		t.Errorf("range = %+v", r)
	}
	if _, err := ParseDateRange("03/01/2026", ""); !pe.Is(err, pe.KindValidation) {
		t.Errorf("bad start date error = %v", err)
	}
	if _, err := ParseDateRange("", "not-a-date"); !pe.Is(err, pe.KindValidation) {
		t.Errorf("bad end date error = %v", err)
	}
}

func TestListUnassignedWindow(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	lines, err := e.ListUnassigned(ctx, marchWindow(t))
	if err != nil {
		t.Fatalf("ListUnassigned: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	ids := map[string]bool{}
	for _, l := range lines {
		ids[l.Record.Get("line_id")] = true
		if l.Status != "unassigned" || l.Hash == "" {
			t.Errorf("line %q status %q hash %q", l.Record.Get("line_id"), l.Status, l.Hash)
		}
	}
	// the January line is filtered out; the unparseable bill date is kept
	if !ids["pdfA#0"] || !ids["pdfA#1"] || ids["pdfB#0"] {
		t.Errorf("window selected %v", ids)
	}
}

func TestAssignDualWrites(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	hash, err := e.Assign(ctx, "pdfA#0", "p-9", []Period{
		{Period: "2026-04", Amount: 50},
		{Period: "2026-03", Amount: 75},
	}, "reviewer@bp")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	for _, prefix := range []string{stage.UBIAssigned, stage.HistoricalArchive} {
		data, err := store.Get(ctx, prefix+hash+".json")
		if err != nil {
			t.Fatalf("assigned copy under %s: %v", prefix, err)
		}
		var rec line.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			t.Fatal(err)
		}
		// legacy single-period fields come from the earliest period
		if rec.Get("ubi_period") != "2026-03" || rec.Get("ubi_amount") != "75" {
			t.Errorf("legacy fields = %q / %q", rec.Get("ubi_period"), rec.Get("ubi_amount"))
		}
		if rec.Get("ubi_months_total") != "2" || rec.Get(enrich.FieldPropertyID) != "p-9" {
			t.Errorf("months = %q property = %q", rec.Get("ubi_months_total"), rec.Get(enrich.FieldPropertyID))
		}
	}

	rows, err := e.UBI.Get(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].UBIPeriod != "2026-03" || rows[1].UBIPeriod != "2026-04" {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].S3Key != sourceKey || rows[0].MonthsTotal != 2 || rows[0].AssignedBy != "reviewer@bp" {
		t.Errorf("row = %+v", rows[0])
	}

	assigned, err := e.ListAssigned(ctx, marchWindow(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(assigned) != 1 || assigned[0].Hash != hash || assigned[0].Status != "assigned" {
		t.Errorf("assigned = %+v", assigned)
	}
	unassigned, _ := e.ListUnassigned(ctx, marchWindow(t))
	for _, l := range unassigned {
		if l.Hash == hash {
			t.Error("assigned line still listed as unassigned")
		}
	}
}

func TestAssignValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Assign(ctx, "pdfA#0", "p-1", nil, "r"); !pe.Is(err, pe.KindValidation) {
		t.Errorf("empty periods error = %v", err)
	}
	if _, err := e.Assign(ctx, "nope#0", "p-1", []Period{{Period: "2026-03"}}, "r"); !pe.Is(err, pe.KindNotFound) {
		t.Errorf("unknown line error = %v", err)
	}
}

func TestUnassignKeepsHistory(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	hash, err := e.Assign(ctx, "pdfA#0", "p-1", []Period{{Period: "2026-03", Amount: 75}}, "r")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Unassign(ctx, hash); err != nil {
		t.Fatalf("Unassign: %v", err)
	}

	if ok, _ := store.Exists(ctx, stage.UBIAssigned+hash+".json"); ok {
		t.Error("stage 8 copy survived unassign")
	}
	if ok, _ := store.Exists(ctx, stage.HistoricalArchive+hash+".json"); !ok {
		t.Error("history record removed by unassign")
	}
	status, _ := e.UBI.Status(ctx, hash)
	if status != tables.HashUnassigned {
		t.Errorf("status = %v", status)
	}
}

func TestReassignReplacesPeriods(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	hash, err := e.Assign(ctx, "pdfA#0", "p-1", []Period{{Period: "2026-03", Amount: 75}}, "r")
	if err != nil {
		t.Fatal(err)
	}
	hash2, err := e.Reassign(ctx, "pdfA#0", "p-2", []Period{
		{Period: "2026-05", Amount: 30},
		{Period: "2026-06", Amount: 30},
	}, "r2")
	if err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if hash2 != hash {
		t.Errorf("hash changed across reassign: %q vs %q", hash2, hash)
	}

	rows, _ := e.UBI.Get(ctx, hash)
	if len(rows) != 2 || rows[0].UBIPeriod != "2026-05" || rows[1].UBIPeriod != "2026-06" {
		t.Fatalf("rows after reassign = %+v", rows)
	}
}

func TestArchiveMovesStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	hash, err := e.Assign(ctx, "pdfA#0", "p-1", []Period{{Period: "2026-03", Amount: 75}}, "r")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Archive(ctx, hash); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	archived, err := e.ListArchived(ctx, marchWindow(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 1 || archived[0].Status != "archived" {
		t.Errorf("archived = %+v", archived)
	}
	assigned, _ := e.ListAssigned(ctx, marchWindow(t))
	if len(assigned) != 0 {
		t.Errorf("assigned after archive = %+v", assigned)
	}
	rows, _ := e.UBI.GetArchived(ctx, hash)
	if len(rows) != 1 {
		t.Errorf("archive rows = %+v", rows)
	}
}

func TestSuggestByAccountHistory(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Assign(ctx, "pdfA#0", "p-1", []Period{{Period: "2026-03", Amount: 75}}, "r"); err != nil {
		t.Fatal(err)
	}

	// the sibling line shares the account number, so the prior
	// assignment surfaces as a suggestion
	got, err := e.Suggest(ctx, "pdfA#1")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 || got[0].UBIPeriod != "2026-03" {
		t.Errorf("suggestions = %+v", got)
	}

	// no account number, no suggestions
	none, err := e.Suggest(ctx, "pdfB#0")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("suggestions without account = %+v", none)
	}
}

func TestStatsByProperty(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	stats, err := e.StatsByProperty(ctx, marchWindow(t))
	if err != nil {
		t.Fatalf("StatsByProperty: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	// sorted by property id, lines without one bucketed as unknown
	if stats[0].PropertyID != "p-1" || stats[0].Files != 1 {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[1].PropertyID != "unknown" || stats[1].Files != 1 {
		t.Errorf("stats[1] = %+v", stats[1])
	}

	if _, err := e.Assign(ctx, "pdfA#0", "p-1", []Period{{Period: "2026-03", Amount: 75}}, "r"); err != nil {
		t.Fatal(err)
	}
	stats, _ = e.StatsByProperty(ctx, marchWindow(t))
	if len(stats) != 1 || stats[0].PropertyID != "unknown" {
		t.Errorf("stats after assign = %+v", stats)
	}
}
