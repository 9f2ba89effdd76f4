// Package secrets resolves the ordered LLM API key pools. Keys come from
// the environment (comma-separated list, or a single-key fallback) or a
// key file with one key per line. Rotation is deterministic by attempt
// number; there is no cross-invocation coordination, so key collisions
// between parallel processors are accepted and absorbed by the
// rate-limit retry loop.
package secrets

import (
	"os"
	"strings"

	pe "github.com/brightpath-pm/billflow/internal/errors"
)

// Pool is an ordered, immutable list of API keys.
type Pool struct {
	name string
	keys []string
}

// poolSpec maps a pool name to its environment sources, checked in order.
type poolSpec struct {
	listVars   []string // comma-separated key lists
	singleVars []string // single-key fallbacks
	fileVars   []string // path to a file with one key per line
}

var knownPools = map[string]poolSpec{
	// Extraction keys drive the parser and chunk processor.
	"extraction": {
		listVars:   []string{"GEMINI_API_KEYS"},
		singleVars: []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		fileVars:   []string{"GEMINI_API_KEY_FILE"},
	},
	// Matcher keys drive the enricher's fuzzy vendor/property matcher.
	"matcher": {
		listVars:   []string{"MATCHER_API_KEYS"},
		singleVars: []string{"MATCHER_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		fileVars:   []string{"MATCHER_API_KEY_FILE"},
	},
}

// LoadPool fetches the ordered key list for a named pool. Each processor
// calls this once at cold start and caches the pool for the invocation's
// lifetime. A missing pool is a configuration error.
func LoadPool(name string) (*Pool, error) {
	spec, ok := knownPools[name]
	if !ok {
		return nil, pe.Newf(pe.KindConfiguration, "unknown key pool %q", name)
	}

	for _, env := range spec.listVars {
		if v := os.Getenv(env); v != "" {
			if keys := splitKeys(v); len(keys) > 0 {
				return &Pool{name: name, keys: keys}, nil
			}
		}
	}
	for _, env := range spec.fileVars {
		path := os.Getenv(env)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, pe.Wrap(err, pe.KindConfiguration, "read key file for pool "+name)
		}
		if keys := splitLines(string(data)); len(keys) > 0 {
			return &Pool{name: name, keys: keys}, nil
		}
	}
	for _, env := range spec.singleVars {
		if v := os.Getenv(env); v != "" {
			return &Pool{name: name, keys: []string{strings.TrimSpace(v)}}, nil
		}
	}

	return nil, pe.Newf(pe.KindConfiguration,
		"no API keys configured for pool %q (set %s)", name, strings.Join(spec.listVars, " or "))
}

// NewStaticPool builds a pool from explicit keys. Intended for tests.
func NewStaticPool(name string, keys ...string) *Pool {
	return &Pool{name: name, keys: keys}
}

// ForAttempt returns the key for the given attempt number, rotating
// round-robin. Attempts are zero-based.
func (p *Pool) ForAttempt(attempt int) string {
	if len(p.keys) == 0 {
		return ""
	}
	if attempt < 0 {
		attempt = 0
	}
	return p.keys[attempt%len(p.keys)]
}

// Size returns the number of keys in the pool.
func (p *Pool) Size() int { return len(p.keys) }

// Name returns the pool identifier.
func (p *Pool) Name() string { return p.name }

func splitKeys(v string) []string {
	parts := strings.Split(v, ",")
	keys := make([]string, 0, len(parts))
	for _, part := range parts {
		if k := strings.TrimSpace(part); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func splitLines(v string) []string {
	var keys []string
	for _, ln := range strings.Split(v, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" && !strings.HasPrefix(ln, "#") {
			keys = append(keys, ln)
		}
	}
	return keys
}
