package ubi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/enrich"
	"github.com/brightpath-pm/billflow/internal/entrata"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
)

// MasterBill is one roll-up of assigned lines for a property, GL account,
// utility, and billback month.
type MasterBill struct {
	Key        string  `json:"key"`
	PropertyID string  `json:"property_id"`
	GLCode     string  `json:"gl_code"`
	Utility    string  `json:"utility"`
	MonthStart string  `json:"month_start"` // MM/DD/YYYY
	MonthEnd   string  `json:"month_end"`
	Total      float64 `json:"total"`
	Lines      int     `json:"lines"`
}

// MasterBills scans Stage 8 and groups assigned lines by property, GL
// code, utility, and period. The per-line amount prefers ubi_amount over
// the raw charge. Output order is deterministic by group key.
func (e *Engine) MasterBills(ctx context.Context, r DateRange) ([]MasterBill, error) {
	keys, err := e.Store.List(ctx, stage.UBIAssigned)
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "list assigned lines")
	}

	groups := map[string]*MasterBill{}
	for _, k := range keys {
		data, err := e.Store.Get(ctx, k)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, pe.Wrap(err, pe.KindTransport, "read assigned line")
		}
		var rec line.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, pe.Wrap(err, pe.KindValidation, "decode assigned line")
		}
		if !r.contains(rec.Get(line.FieldBillDate)) {
			continue
		}

		amount, ok := lineAmount(rec)
		if !ok {
			continue
		}
		property := rec.Get(enrich.FieldPropertyID)
		gl := rec.Get(enrich.FieldGLNumber)
		utility := rec.Get("mapped_utility")
		if utility == "" {
			utility = enrich.UtilityFamily(rec.Get(line.FieldUtilityType))
		}
		monthStart, monthEnd := periodBounds(rec.Get("ubi_period"))

		key := fmt.Sprintf("%s|%s|%s|%s|%s", property, gl, utility, monthStart, monthEnd)
		g := groups[key]
		if g == nil {
			g = &MasterBill{
				Key:        key,
				PropertyID: property,
				GLCode:     gl,
				Utility:    utility,
				MonthStart: monthStart,
				MonthEnd:   monthEnd,
			}
			groups[key] = g
		}
		g.Total += amount
		g.Lines++
	}

	bills := make([]MasterBill, 0, len(groups))
	for _, g := range groups {
		bills = append(bills, *g)
	}
	sort.Slice(bills, func(i, j int) bool { return bills[i].Key < bills[j].Key })
	return bills, nil
}

// lineAmount prefers the reviewer's ubi_amount; absent that, the parsed
// line charge.
func lineAmount(rec line.Record) (float64, bool) {
	if v := rec.Get("ubi_amount"); v != "" {
		if n, err := entrata.ParseAmount(v); err == nil {
			return n, true
		}
	}
	if n, err := entrata.ParseAmount(rec.Get(line.FieldLineItemCharge)); err == nil {
		return n, true
	}
	return 0, false
}

// periodBounds expands a YYYY-MM billback period to its first and last
// day in MM/DD/YYYY form.
func periodBounds(period string) (string, string) {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return period, period
	}
	first := t
	last := t.AddDate(0, 1, -1)
	return first.Format("01/02/2006"), last.Format("01/02/2006")
}
