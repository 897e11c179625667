package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donormatch/pkg/submission"
	"donormatch/pkg/vision"
)

func keys(rs []Ranked) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Key)
	}
	return out
}

func TestRankTiers(t *testing.T) {
	v := vision.Vision{Pillars: []string{"Health", "Education"}, GeoFocus: []string{"Israel"}}
	got := Rank(v, []Candidate{
		{Key: "none", Cause: "Arts & culture", Geo: []string{"Kenya"}},
		{Key: "geo", Cause: "Environment", Geo: []string{"Israel"}},
		{Key: "cause", Cause: "Education", Geo: []string{"Kenya"}},
		{Key: "both", Cause: "Health", Geo: []string{"Kenya", "Israel"}},
	})
	assert.Equal(t, []string{"both", "cause", "geo", "none"}, keys(got))
	assert.Equal(t, []int{TierCauseAndGeo, TierCause, TierGeo, TierNone}, []int{got[0].Tier, got[1].Tier, got[2].Tier, got[3].Tier})
	assert.Equal(t, []string{"Matches your focus on Health", "Works in Israel"}, got[0].Reasons)
	assert.Empty(t, got[3].Reasons)
}

func TestRankUrgentFirstAndStable(t *testing.T) {
	v := vision.Vision{Pillars: []string{"Health"}}
	got := Rank(v, []Candidate{
		{Key: "a", Cause: "Health"},
		{Key: "b", Cause: "Health", Urgency: submission.UrgencyUrgent},
		{Key: "c", Cause: "Health", Urgency: "Within 2 weeks"},
		{Key: "d", Cause: "Health", Urgency: submission.UrgencyUrgent},
	})
	assert.Equal(t, []string{"b", "d", "a", "c"}, keys(got))
	assert.Contains(t, got[0].Reasons, "Time-sensitive")
}

func TestRankFlagsDecidedOpportunities(t *testing.T) {
	got := Rank(vision.Empty(), []Candidate{{Key: "p", Passed: true}, {Key: "f", Committed: true, Passed: true}})
	require.Len(t, got, 2)
	assert.Equal(t, []string{"You passed on this"}, got[0].Reasons)
	assert.Equal(t, []string{"You committed funding"}, got[1].Reasons)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(vision.Empty(), nil))
}
