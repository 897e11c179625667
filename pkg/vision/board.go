package vision

import "fmt"

// Board section keys.
const (
	SectionCauses   = "causes"
	SectionPlaces   = "places"
	SectionCapacity = "capacity"
)

// Tile is one card on the donor board.
type Tile struct {
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// Section groups tiles under a heading.
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Tiles []Tile `json:"tiles"`
}

// Board is persisted as JSON on the donor profile next to the vision.
type Board struct {
	Sections []Section `json:"sections"`
	Summary  string    `json:"summary"`
	Complete bool      `json:"complete"`
}

// BuildBoard lays out a vision. All three sections are always present so
// the front end can render a stable grid.
func BuildBoard(v Vision) Board {
	causes := Section{Key: SectionCauses, Title: "Causes", Tiles: []Tile{}}
	for _, p := range v.Pillars {
		causes.Tiles = append(causes.Tiles, Tile{Label: p, Kind: "pillar"})
	}
	places := Section{Key: SectionPlaces, Title: "Places", Tiles: []Tile{}}
	for _, g := range v.GeoFocus {
		places.Tiles = append(places.Tiles, Tile{Label: g, Kind: "geo"})
	}
	capacity := Section{Key: SectionCapacity, Title: "Capacity", Tiles: []Tile{}}
	if v.Budget != "" {
		capacity.Tiles = append(capacity.Tiles, Tile{Label: v.Budget, Kind: "budget"})
	}
	if v.Horizon != "" {
		capacity.Tiles = append(capacity.Tiles, Tile{Label: v.Horizon, Kind: "horizon"})
	}
	return Board{
		Sections: []Section{causes, places, capacity},
		Summary:  summarize(v),
		Complete: len(v.Pillars) > 0 && len(v.GeoFocus) > 0 && v.Budget != "",
	}
}

func summarize(v Vision) string {
	switch {
	case len(v.Pillars) == 0 && len(v.GeoFocus) == 0:
		return "Tell us what you care about to start your board."
	case len(v.GeoFocus) == 0:
		return fmt.Sprintf("Focused on %s.", joinHuman(v.Pillars))
	case len(v.Pillars) == 0:
		return fmt.Sprintf("Giving in %s.", joinHuman(v.GeoFocus))
	default:
		return fmt.Sprintf("Focused on %s in %s.", joinHuman(v.Pillars), joinHuman(v.GeoFocus))
	}
}
