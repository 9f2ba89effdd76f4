package enrich

import (
	"strconv"
	"strings"
)

// gallonsPerUnit converts a consumption unit of measure to gallons.
var gallonsPerUnit = map[string]float64{
	"gallon":           1,
	"gallons":          1,
	"gal":              1,
	"ccf":              748,
	"kgal":             1000,
	"cubic feet":       7.48052,
	"mgal":             1e6,
	"thousand gallons": 1000,
}

// ToGallons converts a consumption value to gallons when the unit is in
// the conversion table. Returns false for unknown units or unparseable
// values; the caller leaves the original fields untouched.
func ToGallons(value, uom string) (float64, bool) {
	factor, ok := gallonsPerUnit[strings.ToLower(strings.TrimSpace(uom))]
	if !ok {
		return 0, false
	}
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return n * factor, true
}
