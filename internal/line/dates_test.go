package line

import "testing"

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"3/5/2026", "03/05/2026"},
		{"3/5/26", "03/05/2026"},
		{"03-05-2026", "03/05/2026"},
		{"3-5-26", "03/05/2026"},
		{"2026-03-05", "03/05/2026"},
		{"2026/03/05", "03/05/2026"},
		{"Mar 5, 2026", "03/05/2026"},
		{"March 5, 2026", "03/05/2026"},
		{"5 Mar 2026", "03/05/2026"},
		{"Mar 5 2026", "03/05/2026"},
		{"03052026", "03/05/2026"},
		{"20260305", "03/05/2026"},
		{"Mar 5, 2026.", "03/05/2026"},
		{"12/31/2025", "12/31/2025"},
		// unparseable values pass through unchanged
		{"not a date", "not a date"},
		{"", ""},
		{"13/45/2026", "13/45/2026"},
	}
	for _, c := range cases {
		if got := NormalizeDate(c.in); got != c.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeDatesOnRecord(t *testing.T) {
	r := Record{
		FieldBillDate:     "2026-03-05",
		FieldDueDate:      "ask the vendor",
		FieldLineItemDesc: "2026-03-05", // not a date field, left alone
	}
	NormalizeDates(r)
	if got := r.Get(FieldBillDate); got != "03/05/2026" {
		t.Errorf("bill date = %q", got)
	}
	if got := r.Get(FieldDueDate); got != "ask the vendor" {
		t.Errorf("due date = %q", got)
	}
	if got := r.Get(FieldLineItemDesc); got != "2026-03-05" {
		t.Errorf("description mutated: %q", got)
	}
}
