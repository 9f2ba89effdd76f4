package line

// mostCommon returns the most frequent non-empty value, breaking ties by
// first appearance so the result is deterministic.
func mostCommon(values []string) string {
	counts := make(map[string]int)
	order := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best := ""
	bestCount := 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// PropagateHeaders fills missing header-level fields across all records
// of one PDF with the most common non-empty value, and back-fills
// Account Number and Line Item Account Number symmetrically.
func PropagateHeaders(records []Record) {
	if len(records) == 0 {
		return
	}

	for _, r := range records {
		acct := r.Get(FieldAccountNumber)
		lineAcct := r.Get(FieldLineItemAccount)
		if acct == "" && lineAcct != "" {
			r.Set(FieldAccountNumber, lineAcct)
		}
		if lineAcct == "" && acct != "" {
			r.Set(FieldLineItemAccount, acct)
		}
	}

	for _, field := range HeaderFields {
		values := make([]string, 0, len(records))
		for _, r := range records {
			values = append(values, r.Get(field))
		}
		winner := mostCommon(values)
		if winner == "" {
			continue
		}
		for _, r := range records {
			if r.Get(field) == "" {
				r.Set(field, winner)
			}
		}
	}
}

// EnforceHeaders overwrites header-level fields on every record with the
// majority value. The aggregator uses this document-wide pass so chunks
// that disagree converge on one value per field.
func EnforceHeaders(records []Record) {
	if len(records) == 0 {
		return
	}
	for _, r := range records {
		acct := r.Get(FieldAccountNumber)
		lineAcct := r.Get(FieldLineItemAccount)
		if acct == "" && lineAcct != "" {
			r.Set(FieldAccountNumber, lineAcct)
		}
		if lineAcct == "" && acct != "" {
			r.Set(FieldLineItemAccount, acct)
		}
	}
	for _, field := range HeaderFields {
		values := make([]string, 0, len(records))
		for _, r := range records {
			values = append(values, r.Get(field))
		}
		winner := mostCommon(values)
		if winner == "" {
			continue
		}
		for _, r := range records {
			r.Set(field, winner)
		}
	}
}
