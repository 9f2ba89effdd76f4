package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/llm"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/secrets"
)

// noMatchToken is what the matcher prompt asks for when none of the
// candidates fit.
const noMatchToken = "NONE"

// matcherAttempts bounds retries; the matcher pool is small and the call
// is advisory, so the budget is tighter than extraction's.
const matcherAttempts = 3

// Matcher resolves names that miss the exact-normalized index by asking
// an LLM to pick from the candidate list. Results are cached per process:
// the same misspelling recurs on every bill from the same vendor.
type Matcher struct {
	Client llm.Client
	Keys   *secrets.Pool

	mu    sync.Mutex
	cache map[string]string // "<kind>|<normalized query>" -> id ("" = no match)
}

// Match returns the candidate id for a query name, or "" when nothing
// matches. Errors are returned only for transport-level failures that
// exhausted retries.
func (m *Matcher) Match(ctx context.Context, kind, query string, candidates []DimEntry) (string, error) {
	norm := NormalizeName(query)
	if norm == "" || len(candidates) == 0 {
		return "", nil
	}
	cacheKey := kind + "|" + norm

	m.mu.Lock()
	if m.cache == nil {
		m.cache = map[string]string{}
	}
	if id, ok := m.cache[cacheKey]; ok {
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	prompt := buildMatchPrompt(kind, query, candidates)

	var lastErr error
	for attempt := 0; attempt < matcherAttempts; attempt++ {
		reply, err := m.Client.GenerateText(ctx, m.Keys.ForAttempt(attempt), prompt)
		if err != nil {
			lastErr = err
			if !pe.IsRetryable(err) {
				return "", err
			}
			slog.Warn("Matcher attempt failed", logfields.Attempt(attempt+1), logfields.Error(err))
			continue
		}
		id := parseMatchReply(reply, candidates)
		m.mu.Lock()
		m.cache[cacheKey] = id
		m.mu.Unlock()
		return id, nil
	}
	return "", pe.Wrap(lastErr, pe.KindExhausted, "matcher attempts exhausted")
}

func buildMatchPrompt(kind, query string, candidates []DimEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Match the %s name %q to one of these known %ss:\n", kind, query, kind)
	for _, c := range candidates {
		fmt.Fprintf(&sb, "%s: %s\n", c.ID, c.Name)
	}
	fmt.Fprintf(&sb, "\nReply with the id alone, or %s if none of them is the same %s.\n", noMatchToken, kind)
	return sb.String()
}

// parseMatchReply accepts only ids that exist in the candidate list; any
// other reply is treated as no match.
func parseMatchReply(reply string, candidates []DimEntry) string {
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, noMatchToken) {
		return ""
	}
	reply = strings.Trim(reply, "\"'`")
	for _, c := range candidates {
		if strings.EqualFold(reply, c.ID) {
			return c.ID
		}
	}
	return ""
}
