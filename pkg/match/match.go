// Package match orders funding opportunities against a donor's vision.
package match

import (
	"cmp"
	"slices"

	"donormatch/pkg/submission"
	"donormatch/pkg/vision"
)

// Tiers, best first.
const (
	TierCauseAndGeo = iota
	TierCause
	TierGeo
	TierNone
)

// Candidate is an opportunity as the matcher sees it.
type Candidate struct {
	Key       string   `json:"key"`
	Title     string   `json:"title"`
	OrgName   string   `json:"orgName,omitempty"`
	Cause     string   `json:"cause,omitempty"`
	Geo       []string `json:"geo"`
	Amount    *int64   `json:"amount,omitempty"`
	Urgency   string   `json:"urgency,omitempty"`
	Passed    bool     `json:"passed"`
	Committed bool     `json:"committed"`
}

// Ranked is a candidate with the reasons it was placed where it was.
type Ranked struct {
	Candidate
	Tier    int      `json:"tier"`
	Reasons []string `json:"reasons"`
}

// Rank returns every candidate ordered by tier, urgent first inside a tier,
// and otherwise in input order.
func Rank(v vision.Vision, candidates []Candidate) []Ranked {
	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, score(v, c))
	}
	slices.SortStableFunc(out, func(a, b Ranked) int {
		if c := cmp.Compare(a.Tier, b.Tier); c != 0 {
			return c
		}
		return cmp.Compare(urgencyRank(a), urgencyRank(b))
	})
	return out
}

func urgencyRank(r Ranked) int {
	if r.Urgency == submission.UrgencyUrgent {
		return 0
	}
	return 1
}

func score(v vision.Vision, c Candidate) Ranked {
	r := Ranked{Candidate: c, Reasons: []string{}}
	causeHit := c.Cause != "" && slices.Contains(v.Pillars, c.Cause)
	var places []string
	for _, g := range c.Geo {
		if slices.Contains(v.GeoFocus, g) {
			places = append(places, g)
		}
	}
	switch {
	case causeHit && len(places) > 0:
		r.Tier = TierCauseAndGeo
	case causeHit:
		r.Tier = TierCause
	case len(places) > 0:
		r.Tier = TierGeo
	default:
		r.Tier = TierNone
	}
	if causeHit {
		r.Reasons = append(r.Reasons, "Matches your focus on "+c.Cause)
	}
	for _, p := range places {
		r.Reasons = append(r.Reasons, "Works in "+p)
	}
	if c.Urgency == submission.UrgencyUrgent {
		r.Reasons = append(r.Reasons, "Time-sensitive")
	}
	switch {
	case c.Committed:
		r.Reasons = append(r.Reasons, "You committed funding")
	case c.Passed:
		r.Reasons = append(r.Reasons, "You passed on this")
	}
	return r
}
