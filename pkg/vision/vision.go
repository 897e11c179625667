// Package vision turns a donor's chat history into a structured picture of
// what they want to fund, picks the assistant's next reply, and lays the
// result out as a board.
//
// Everything here is a pure function of its input so the API can recompute
// the vision on every read instead of trusting the cached copy on the
// donor profile.
package vision

import (
	"regexp"
	"strings"

	"donormatch/pkg/taxonomy"
)

// Chat roles.
const (
	RoleDonor     = "donor"
	RoleAssistant = "assistant"
)

// Turn is one chat message, oldest first.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Vision is persisted as JSON on the donor profile; keep the field names
// stable.
type Vision struct {
	Pillars  []string `json:"pillars"`
	GeoFocus []string `json:"geoFocus"`
	Budget   string   `json:"budget,omitempty"`
	Horizon  string   `json:"horizon,omitempty"`
}

type pillar struct {
	label    string
	keywords []string
}

// Chat wording differs from grant applications, so pillars carry their own
// keywords. "well" is deliberately absent: donors write "as well" constantly.
var pillars = []pillar{
	{taxonomy.CauseEmergencyRelief, []string{"emergency", "disaster", "relief", "crisis", "refugee"}},
	{taxonomy.CauseCleanWater, []string{"clean water", "water", "sanitation", "wells"}},
	{taxonomy.CauseHealth, []string{"health", "medical", "hospital", "clinic", "disease"}},
	{taxonomy.CauseEducation, []string{"education", "school", "scholarship", "literacy", "student", "teacher"}},
	{taxonomy.CausePoverty, []string{"hunger", "poverty", "food", "homeless", "housing"}},
	{taxonomy.CauseEnvironment, []string{"climate", "environment", "conservation", "sustainab"}},
	{taxonomy.CauseJewishLife, []string{"jewish", "synagogue", "torah", "yeshiva"}},
	{taxonomy.CauseArts, []string{"arts", "music", "museum", "theater", "theatre", "culture"}},
	{taxonomy.CauseWomenGirls, []string{"women", "girls", "maternal"}},
}

var (
	budgetPattern  = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?\s?(?:mm|million|m|k|b)?\b`)
	horizonPattern = regexp.MustCompile(`\b(?:over|within|in|for)\s+(?:the\s+next\s+)?(\d+|one|two|three|four|five|ten)\s+(years?|months?)\b`)
	thisYearRe     = regexp.MustCompile(`\bthis year\b`)
	longTermRe     = regexp.MustCompile(`\blong[- ]term\b`)
)

// Empty returns a vision with non-nil lists so it serialises as [] not null.
func Empty() Vision {
	return Vision{Pillars: []string{}, GeoFocus: []string{}}
}

// Extract scans donor turns in order. Pillars and places keep the order in
// which they were first mentioned; budget and horizon take the latest
// mention, since donors revise those. Assistant turns are ignored because
// the assistant's own questions name causes and places.
func Extract(turns []Turn) Vision {
	v := Empty()
	for _, turn := range turns {
		if turn.Role != RoleDonor {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(turn.Content))
		if text == "" {
			continue
		}
		for _, p := range pillars {
			for _, kw := range p.keywords {
				if strings.Contains(text, kw) {
					v.Pillars = taxonomy.Dedupe(v.Pillars, p.label)
					break
				}
			}
		}
		for _, place := range taxonomy.MatchPlaces(text) {
			v.GeoFocus = taxonomy.Dedupe(v.GeoFocus, place)
		}
		if m := budgetPattern.FindAllString(text, -1); len(m) > 0 {
			v.Budget = strings.TrimSpace(m[len(m)-1])
		}
		if h := extractHorizon(text); h != "" {
			v.Horizon = h
		}
	}
	return v
}

func extractHorizon(text string) string {
	best, bestAt := "", -1
	if locs := horizonPattern.FindAllStringSubmatchIndex(text, -1); len(locs) > 0 {
		loc := locs[len(locs)-1]
		best = text[loc[2]:loc[3]] + " " + text[loc[4]:loc[5]]
		bestAt = loc[0]
	}
	if loc := lastIndex(thisYearRe, text); loc > bestAt {
		best, bestAt = "this year", loc
	}
	if loc := lastIndex(longTermRe, text); loc > bestAt {
		best = "long term"
	}
	return best
}

func lastIndex(re *regexp.Regexp, text string) int {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][0]
}

// Change describes how a vision moved between two turns.
type Change struct {
	AddedPillars   []string
	AddedGeo       []string
	BudgetChanged  bool
	HorizonChanged bool
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool {
	return len(c.AddedPillars) == 0 && len(c.AddedGeo) == 0 && !c.BudgetChanged && !c.HorizonChanged
}

// Diff compares next against prev.
func Diff(prev, next Vision) Change {
	return Change{
		AddedPillars:   added(prev.Pillars, next.Pillars),
		AddedGeo:       added(prev.GeoFocus, next.GeoFocus),
		BudgetChanged:  next.Budget != "" && next.Budget != prev.Budget,
		HorizonChanged: next.Horizon != "" && next.Horizon != prev.Horizon,
	}
}

func added(prev, next []string) []string {
	seen := make(map[string]struct{}, len(prev))
	for _, s := range prev {
		seen[s] = struct{}{}
	}
	var out []string
	for _, s := range next {
		if _, ok := seen[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// joinHuman renders ["a","b","c"] as "a, b and c".
func joinHuman(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
