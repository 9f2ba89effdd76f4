package enrich

import (
	"regexp"
	"strings"
)

// ServiceAddress is the parsed decomposition of a service-address string,
// used for GL-description composition.
type ServiceAddress struct {
	StreetNum    string
	StreetLetter string
	Unit         string
	Building     string
}

var (
	streetNumRe = regexp.MustCompile(`^\s*(\d+)\s*([A-Za-z])?\b`)
	unitRe      = regexp.MustCompile(`(?i)\b(?:APT|UNIT|STE|SUITE)\.?\s*#?\s*([A-Za-z0-9-]+)`)
	hashUnitRe  = regexp.MustCompile(`#\s*([A-Za-z0-9-]+)`)
	buildingRe  = regexp.MustCompile(`(?i)\bBLDG\.?\s*#?\s*([A-Za-z0-9-]+)`)
)

// ParseServiceAddress extracts the street number, an optional trailing
// street letter, and any unit or building designator.
func ParseServiceAddress(addr string) ServiceAddress {
	var out ServiceAddress
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return out
	}

	if m := streetNumRe.FindStringSubmatch(addr); m != nil {
		out.StreetNum = m[1]
		out.StreetLetter = strings.ToUpper(m[2])
	}
	if m := buildingRe.FindStringSubmatch(addr); m != nil {
		out.Building = strings.ToUpper(m[1])
	}
	if m := unitRe.FindStringSubmatch(addr); m != nil {
		out.Unit = strings.ToUpper(m[1])
	} else if m := hashUnitRe.FindStringSubmatch(addr); m != nil {
		// Bare "#12" with no APT/UNIT keyword.
		out.Unit = strings.ToUpper(m[1])
	}
	return out
}

// Compact renders the short form used in GL descriptions, e.g.
// "123A UNIT 4" or "88 BLDG C".
func (a ServiceAddress) Compact() string {
	var parts []string
	if a.StreetNum != "" {
		parts = append(parts, a.StreetNum+a.StreetLetter)
	}
	if a.Unit != "" {
		parts = append(parts, "UNIT "+a.Unit)
	}
	if a.Building != "" {
		parts = append(parts, "BLDG "+a.Building)
	}
	return strings.Join(parts, " ")
}
