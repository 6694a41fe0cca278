package utils

import (
	"regexp"
	"strings"
)

// townAliases maps shorthand and common misspellings to canonical HDB town names
var townAliases = map[string]string{
	"AMK":              "ANG MO KIO",
	"ANGMOKIO":         "ANG MO KIO",
	"BB":               "BUKIT BATOK",
	"BBT":              "BUKIT BATOK",
	"BPJ":              "BUKIT PANJANG",
	"BT MERAH":         "BUKIT MERAH",
	"BT BATOK":         "BUKIT BATOK",
	"BT PANJANG":       "BUKIT PANJANG",
	"BT TIMAH":         "BUKIT TIMAH",
	"CCK":              "CHOA CHU KANG",
	"CENTRAL":          "CENTRAL AREA",
	"CBD":              "CENTRAL AREA",
	"TOWN":             "CENTRAL AREA",
	"JE":               "JURONG EAST",
	"JW":               "JURONG WEST",
	"KALLANG":          "KALLANG/WHAMPOA",
	"WHAMPOA":          "KALLANG/WHAMPOA",
	"KALLANG WHAMPOA":  "KALLANG/WHAMPOA",
	"KALLANG-WHAMPOA":  "KALLANG/WHAMPOA",
	"MARINE PDE":       "MARINE PARADE",
	"PUNGOL":           "PUNGGOL",
	"SENG KANG":        "SENGKANG",
	"SEMBWANG":         "SEMBAWANG",
	"TPY":              "TOA PAYOH",
	"TAMPINESE":        "TAMPINES",
	"WOODLAND":         "WOODLANDS",
	"QUEENSTWN":        "QUEENSTOWN",
	"HOUGANG TOWN":     "HOUGANG",
	"PASIR RIS TOWN":   "PASIR RIS",
	"SERANGOON GARDEN": "SERANGOON",
}

var (
	roomCountRe = regexp.MustCompile(`^(\d)\s*[- ]?\s*(ROOM|ROOMS|RM|RMS|R|BR|BEDROOM|BEDROOMS)$`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// NormalizeTown upper-cases a location and resolves known aliases.
// The special location "ALL" passes through untouched.
func NormalizeTown(location string) string {
	s := canonicalSpaces(location)
	if alias, ok := townAliases[s]; ok {
		return alias
	}
	return s
}

// NormalizeFlatType maps free-form unit types ("4-room", "4rm", "exec")
// onto the labels used by the transaction data ("4 ROOM", "EXECUTIVE").
func NormalizeFlatType(unitType string) string {
	s := canonicalSpaces(unitType)
	s = strings.TrimPrefix(s, "HDB ")
	s = strings.TrimSuffix(s, " FLAT")

	if m := roomCountRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1] + " ROOM"
	}

	switch s {
	case "EXEC", "EXECUTIVE", "EA", "EM", "EXECUTIVE APARTMENT", "EXECUTIVE MAISONETTE":
		return "EXECUTIVE"
	case "MULTI GENERATION", "MULTI-GENERATION", "3GEN", "3-GEN":
		return "MULTI-GENERATION"
	}
	return s
}

// FuzzyMatchTown reports whether a user-supplied location refers to town
func FuzzyMatchTown(searchTerm, town string) bool {
	search := NormalizeTown(searchTerm)
	canonical := NormalizeTown(town)
	if search == "" || canonical == "" {
		return false
	}
	if search == canonical {
		return true
	}
	return strings.Contains(canonical, search) && len(search) >= 4
}

func canonicalSpaces(s string) string {
	return spaceRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), " ")
}
