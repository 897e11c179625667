package workflow

// Extra board columns for opportunities that left the pipeline.
const (
	ColumnPassed    = "passed"
	ColumnCommitted = "committed"
)

// Item is one opportunity on the donor's pipeline board.
type Item struct {
	OpportunityKey string `json:"opportunityKey"`
	Title          string `json:"title"`
	Result
}

// Column is a board column. Items keep their input order.
type Column struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Items []Item `json:"items"`
}

var columnTitles = map[string]string{
	StageDiscover:      "Discover",
	StageInfoRequested: "Info requested",
	StageMeeting:       "Meeting",
	StageDueDiligence:  "Due diligence",
	StageDecision:      "Decision",
	ColumnPassed:       "Passed",
	ColumnCommitted:    "Committed",
}

// BuildBoard groups items into the five stage columns followed by passed
// and committed. Every column is present even when empty.
func BuildBoard(items []Item) []Column {
	keys := append(append([]string{}, Stages...), ColumnPassed, ColumnCommitted)
	cols := make([]Column, len(keys))
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		cols[i] = Column{Key: k, Title: columnTitles[k], Items: []Item{}}
		index[k] = i
	}
	for _, it := range items {
		key := it.Stage
		switch {
		case it.IsPassed:
			key = ColumnPassed
		case it.IsCommitted:
			key = ColumnCommitted
		}
		i, ok := index[key]
		if !ok {
			i = index[StageDiscover]
		}
		cols[i].Items = append(cols[i].Items, it)
	}
	return cols
}
