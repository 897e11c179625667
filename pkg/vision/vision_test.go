package vision

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donormatch/pkg/taxonomy"
)

func donor(s string) Turn     { return Turn{Role: RoleDonor, Content: s} }
func assistant(s string) Turn { return Turn{Role: RoleAssistant, Content: s} }

func TestExtractEmptyHistory(t *testing.T) {
	v := Extract(nil)
	assert.NotNil(t, v.Pillars)
	assert.NotNil(t, v.GeoFocus)
	assert.Empty(t, v.Pillars)
	assert.Empty(t, v.GeoFocus)
	assert.Empty(t, v.Budget)
	assert.Empty(t, v.Horizon)
}

func TestExtractAccumulatesInMentionOrder(t *testing.T) {
	turns := []Turn{
		donor("I care about clean water and schools in Kenya"),
		assistant("Do you also care about health in Haiti?"),
		donor("Also medical clinics in Israel, about $250k over the next 3 years"),
	}
	got := Extract(turns)
	want := Vision{
		Pillars:  []string{taxonomy.CauseCleanWater, taxonomy.CauseEducation, taxonomy.CauseHealth},
		GeoFocus: []string{"Kenya", "Israel"},
		Budget:   "$250k",
		Horizon:  "3 years",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Extract mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractMatchesKeywordsInsideWords(t *testing.T) {
	got := Extract([]Turn{donor("I love telehealth and groundwater projects")})
	assert.Equal(t, []string{taxonomy.CauseCleanWater, taxonomy.CauseHealth}, got.Pillars)
}

func TestExtractIsDeterministic(t *testing.T) {
	turns := []Turn{donor("Refugee relief in Ukraine and Europe"), donor("maybe $1m for the next 2 years")}
	first := Extract(turns)
	second := Extract(turns)
	assert.Equal(t, first, second)
}

func TestExtractLatestBudgetWins(t *testing.T) {
	got := Extract([]Turn{donor("I can give $10k this year"), donor("actually make it $50k")})
	assert.Equal(t, "$50k", got.Budget)
	assert.Equal(t, "this year", got.Horizon)
}

func TestExtractUnrecognizedText(t *testing.T) {
	got := Extract([]Turn{donor("hello there"), donor("   "), {Role: "system", Content: "water"}})
	assert.Equal(t, Empty(), got)
}

func TestVisionJSONFieldNames(t *testing.T) {
	raw, err := json.Marshal(Empty())
	require.NoError(t, err)
	assert.JSONEq(t, `{"pillars":[],"geoFocus":[]}`, string(raw))

	var v Vision
	require.NoError(t, json.Unmarshal([]byte(`{"pillars":["Health"],"geoFocus":["Israel"],"budget":"$5k"}`), &v))
	assert.Equal(t, []string{"Health"}, v.Pillars)
	assert.Equal(t, "$5k", v.Budget)
}

func TestDiff(t *testing.T) {
	prev := Vision{Pillars: []string{"Health"}, GeoFocus: []string{}}
	next := Vision{Pillars: []string{"Health", "Education"}, GeoFocus: []string{"Israel"}, Budget: "$5k"}
	c := Diff(prev, next)
	assert.Equal(t, []string{"Education"}, c.AddedPillars)
	assert.Equal(t, []string{"Israel"}, c.AddedGeo)
	assert.True(t, c.BudgetChanged)
	assert.False(t, c.HorizonChanged)
	assert.False(t, c.Empty())
	assert.True(t, Diff(next, next).Empty())
}

func TestComposeReply(t *testing.T) {
	full := Vision{Pillars: []string{"Health"}, GeoFocus: []string{"Israel"}, Budget: "$5k", Horizon: "this year"}
	tests := []struct {
		name   string
		vision Vision
		msg    string
		prev   *Vision
		want   string
	}{
		{name: "empty message", vision: Empty(), msg: "  ", want: ReplyGreeting},
		{name: "nothing recognized", vision: Empty(), msg: "hello", want: ReplyAskPillars},
		{
			name:   "pillar without geo",
			vision: Vision{Pillars: []string{"Clean water"}, GeoFocus: []string{}},
			msg:    "clean water",
			want:   "Clean water stands out. Where in the world should that giving land?",
		},
		{
			name:   "pillars with geo",
			vision: Vision{Pillars: []string{"Clean water", "Education"}, GeoFocus: []string{"Kenya"}},
			msg:    "water and schools in kenya",
			want:   "Added Clean water and Education to your board next to your focus on Kenya.",
		},
		{
			name:   "geo without budget",
			vision: Vision{Pillars: []string{"Health"}, GeoFocus: []string{"Israel"}},
			msg:    "israel",
			prev:   &Vision{Pillars: []string{"Health"}},
			want:   "Got it, Israel. " + ReplyAskBudget,
		},
		{
			name:   "budget without horizon",
			vision: Vision{Pillars: []string{"Health"}, GeoFocus: []string{"Israel"}, Budget: "$5k"},
			msg:    "$5k",
			prev:   &Vision{Pillars: []string{"Health"}, GeoFocus: []string{"Israel"}},
			want:   ReplyBudgetNoTime,
		},
		{
			name:   "horizon",
			vision: full,
			msg:    "this year",
			prev:   &Vision{Pillars: []string{"Health"}, GeoFocus: []string{"Israel"}, Budget: "$5k"},
			want:   "A this year horizon helps me pace your pipeline. Want to see matching opportunities?",
		},
		{name: "no change missing geo", vision: Vision{Pillars: []string{"Health"}}, msg: "ok", prev: &Vision{Pillars: []string{"Health"}}, want: ReplyAskGeo},
		{name: "no change complete", vision: full, msg: "thanks", prev: &full, want: ReplyBoardReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComposeReply(tt.vision, tt.msg, ComposeOptions{PrevVision: tt.prev})
			assert.Equal(t, tt.want, got.Reply)
		})
	}
}

func TestBuildBoard(t *testing.T) {
	v := Vision{
		Pillars:  []string{"Clean water", "Education", "Health"},
		GeoFocus: []string{"Kenya", "Israel"},
		Budget:   "$250k",
		Horizon:  "3 years",
	}
	b := BuildBoard(v)
	require.Len(t, b.Sections, 3)
	assert.Equal(t, SectionCauses, b.Sections[0].Key)
	assert.Len(t, b.Sections[0].Tiles, 3)
	assert.Equal(t, Tile{Label: "Israel", Kind: "geo"}, b.Sections[1].Tiles[1])
	assert.Equal(t, []Tile{{Label: "$250k", Kind: "budget"}, {Label: "3 years", Kind: "horizon"}}, b.Sections[2].Tiles)
	assert.Equal(t, "Focused on Clean water, Education and Health in Kenya and Israel.", b.Summary)
	assert.True(t, b.Complete)
}

func TestBuildBoardEmpty(t *testing.T) {
	b := BuildBoard(Empty())
	require.Len(t, b.Sections, 3)
	for _, s := range b.Sections {
		assert.NotNil(t, s.Tiles)
		assert.Empty(t, s.Tiles)
	}
	assert.False(t, b.Complete)
	assert.Equal(t, "Tell us what you care about to start your board.", b.Summary)

	raw, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tiles":[]`)
}
