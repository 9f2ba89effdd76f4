package enrich

import (
	"fmt"
	"strings"
)

// GLAccount is a resolved general-ledger account.
type GLAccount struct {
	Code string
	Name string
}

// glRule keys GL resolution by utility family and occupancy. Occupancy
// splits follow the house/vacant convention: occupied units post to the
// house account, vacants to the adjacent vacant account.
type glRule struct {
	house  GLAccount
	vacant GLAccount
}

var glRules = map[string]glRule{
	"electric": {
		house:  GLAccount{Code: "5706", Name: "Utilities - Electric"},
		vacant: GLAccount{Code: "5705", Name: "Utilities - Electric Vacant"},
	},
	"gas": {
		house:  GLAccount{Code: "5710", Name: "Utilities - Gas"},
		vacant: GLAccount{Code: "5715", Name: "Utilities - Gas Vacant"},
	},
	"water": {
		house:  GLAccount{Code: "5720", Name: "Utilities - Water"},
		vacant: GLAccount{Code: "5725", Name: "Utilities - Water Vacant"},
	},
	"sewer": {
		house:  GLAccount{Code: "5730", Name: "Utilities - Sewer"},
		vacant: GLAccount{Code: "5735", Name: "Utilities - Sewer Vacant"},
	},
	"trash": {
		house:  GLAccount{Code: "5740", Name: "Utilities - Trash"},
		vacant: GLAccount{Code: "5745", Name: "Utilities - Trash Vacant"},
	},
	"hoa": {
		house:  GLAccount{Code: "5750", Name: "HOA Dues"},
		vacant: GLAccount{Code: "5750", Name: "HOA Dues"},
	},
}

// utilityAliases folds the free-text utility strings bills actually use
// into the rule families.
var utilityAliases = map[string]string{
	"electric":    "electric",
	"electricity": "electric",
	"power":       "electric",
	"gas":         "gas",
	"natural gas": "gas",
	"water":       "water",
	"sewer":       "sewer",
	"wastewater":  "sewer",
	"sewage":      "sewer",
	"trash":       "trash",
	"garbage":     "trash",
	"refuse":      "trash",
	"waste":       "trash",
	"hoa":         "hoa",
	"hoa dues":    "hoa",
	"association": "hoa",
}

// UtilityFamily folds a raw utility-type string into a rule family.
// Returns "" when no family matches.
func UtilityFamily(utilityType string) string {
	key := strings.ToLower(strings.TrimSpace(utilityType))
	if fam, ok := utilityAliases[key]; ok {
		return fam
	}
	// Substring fallback covers compound values like "Water/Sewer".
	for alias, fam := range utilityAliases {
		if strings.Contains(key, alias) {
			return fam
		}
	}
	return ""
}

// IsVacant interprets the occupant-status field.
func IsVacant(occupantStatus string) bool {
	return strings.EqualFold(strings.TrimSpace(occupantStatus), "vacant")
}

// ResolveGL returns the GL account for a utility type and occupancy.
// Returns false when the utility type maps to no rule family.
func ResolveGL(utilityType, occupantStatus string) (GLAccount, bool) {
	fam := UtilityFamily(utilityType)
	rule, ok := glRules[fam]
	if !ok {
		return GLAccount{}, false
	}
	if IsVacant(occupantStatus) {
		return rule.vacant, true
	}
	return rule.house, true
}

// GLDescription composes the compact line description for a GL family,
// e.g. "ELECTRIC 123A UNIT 4 06/01/2025-06/30/2025".
func GLDescription(utilityType string, addr ServiceAddress, serviceStart, serviceEnd string) string {
	fam := UtilityFamily(utilityType)
	if fam == "" {
		fam = strings.ToLower(strings.TrimSpace(utilityType))
	}
	parts := []string{strings.ToUpper(fam)}
	if c := addr.Compact(); c != "" {
		parts = append(parts, c)
	}
	if serviceStart != "" && serviceEnd != "" {
		parts = append(parts, fmt.Sprintf("%s-%s", serviceStart, serviceEnd))
	}
	return strings.Join(parts, " ")
}
