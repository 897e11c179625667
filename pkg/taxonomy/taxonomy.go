// Package taxonomy holds the fixed cause labels and place table shared by the
// donor vision extractor, the submission extractor and opportunity matching.
//
// Order is significant everywhere in this package: callers that take the
// first match depend on it, and changing it changes classifications.
package taxonomy

import "strings"

// Cause labels. Vision pillars and submission causes use the same strings so
// they can be compared directly.
const (
	CauseEmergencyRelief = "Emergency relief"
	CauseCleanWater      = "Clean water"
	CauseHealth          = "Health"
	CauseEducation       = "Education"
	CausePoverty         = "Hunger & poverty"
	CauseEnvironment     = "Environment"
	CauseJewishLife      = "Jewish life"
	CauseArts            = "Arts & culture"
	CauseWomenGirls      = "Women & girls"
)

// Causes lists every label in priority order.
var Causes = []string{
	CauseEmergencyRelief,
	CauseCleanWater,
	CauseHealth,
	CauseEducation,
	CausePoverty,
	CauseEnvironment,
	CauseJewishLife,
	CauseArts,
	CauseWomenGirls,
}

// Place maps a lowercase keyword to a display label.
type Place struct {
	Keyword string
	Label   string
}

// Places is scanned top to bottom; several keywords may share a label.
var Places = []Place{
	{"israel", "Israel"},
	{"jerusalem", "Israel"},
	{"tel aviv", "Israel"},
	{"nyc", "New York"},
	{"new york", "New York"},
	{"brooklyn", "New York"},
	{"los angeles", "Los Angeles"},
	{"chicago", "Chicago"},
	{"united states", "United States"},
	{"usa", "United States"},
	{"canada", "Canada"},
	{"mexico", "Mexico"},
	{"haiti", "Haiti"},
	{"ukraine", "Ukraine"},
	{"uk", "United Kingdom"},
	{"london", "United Kingdom"},
	{"europe", "Europe"},
	{"kenya", "Kenya"},
	{"uganda", "Uganda"},
	{"ethiopia", "Ethiopia"},
	{"africa", "Africa"},
	{"india", "India"},
	{"asia", "Asia"},
	{"latin america", "Latin America"},
	{"global", "Global"},
	{"worldwide", "Global"},
}

// MatchPlaces returns every place label whose keyword appears in text as a
// whole word, deduplicated in table order. text must already be lowercase.
func MatchPlaces(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range Places {
		if _, dup := seen[p.Label]; dup {
			continue
		}
		if ContainsWord(text, p.Keyword) {
			seen[p.Label] = struct{}{}
			out = append(out, p.Label)
		}
	}
	return out
}

// ContainsWord reports whether kw occurs in text bounded by non-letters on
// both sides, so "uk" does not fire inside "ukulele".
func ContainsWord(text, kw string) bool {
	if kw == "" {
		return false
	}
	from := 0
	for {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if (start == 0 || !isLetter(text[start-1])) && (end == len(text) || !isLetter(text[end])) {
			return true
		}
		from = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Dedupe appends s to list unless already present.
func Dedupe(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
