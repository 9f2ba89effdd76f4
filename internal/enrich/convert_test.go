package enrich

import (
	"math"
	"testing"
)

func TestToGallons(t *testing.T) {
	cases := []struct {
		value, uom string
		want       float64
		ok         bool
	}{
		{"10", "gallons", 10, true},
		{"2", "CCF", 1496, true},
		{"1.5", "kGal", 1500, true},
		{"100", "cubic feet", 748.052, true},
		{"1", "MGAL", 1e6, true},
		{"3", "thousand gallons", 3000, true},
		{"1,250", "gal", 1250, true},
		{"10", "kWh", 0, false},
		{"n/a", "gallons", 0, false},
		{"", "gallons", 0, false},
	}
	for _, c := range cases {
		got, ok := ToGallons(c.value, c.uom)
		if ok != c.ok || (ok && math.Abs(got-c.want) > 1e-6) {
			t.Errorf("ToGallons(%q, %q) = %v, %v; want %v, %v",
				c.value, c.uom, got, ok, c.want, c.ok)
		}
	}
}
