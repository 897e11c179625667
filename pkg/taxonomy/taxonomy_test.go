package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPlacesDedupesInTableOrder(t *testing.T) {
	got := MatchPlaces("wells in kenya, projects in jerusalem and israel, nyc office")
	assert.Equal(t, []string{"Israel", "New York", "Kenya"}, got)
}

func TestMatchPlacesRequiresWordBoundary(t *testing.T) {
	assert.Empty(t, MatchPlaces("ukulele lessons for busy parents"))
	assert.Equal(t, []string{"United Kingdom"}, MatchPlaces("schools across the uk."))
}

func TestContainsWord(t *testing.T) {
	assert.True(t, ContainsWord("tel aviv youth", "tel aviv"))
	assert.True(t, ContainsWord("usa", "usa"))
	assert.False(t, ContainsWord("causal", "usa"))
	assert.False(t, ContainsWord("", "usa"))
}

func TestPlacesNeedWholeWords(t *testing.T) {
	assert.Equal(t, []string{"Israel"}, MatchPlaces("youth programs in jerusalem"), "usa inside jerusalem")
}
