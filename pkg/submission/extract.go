// Package submission pulls structured funding signals out of free-text
// nonprofit submissions.
package submission

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"donormatch/pkg/taxonomy"
)

// ConfidenceDemo tags every result produced by the keyword heuristics.
const ConfidenceDemo = "demo"

// UrgencyUrgent is reported when the text asks for immediate help.
const UrgencyUrgent = "Urgent"

// Input is the text an organization submits. Only Summary is required by
// the API; the extractor itself accepts anything.
type Input struct {
	Title           string `json:"title,omitempty"`
	Summary         string `json:"summary"`
	OrgName         string `json:"orgName,omitempty"`
	OrgEmail        string `json:"orgEmail,omitempty"`
	VideoURL        string `json:"videoUrl,omitempty"`
	AmountRequested *int64 `json:"amountRequested,omitempty"`

	// AttachmentText is plain text pulled from an uploaded document.
	AttachmentText string `json:"-"`
}

// Signals is stored with the submission. Absent signals are omitted.
type Signals struct {
	Cause      string   `json:"cause,omitempty"`
	Geo        []string `json:"geo,omitempty"`
	Amount     *int64   `json:"amount,omitempty"`
	Urgency    string   `json:"urgency,omitempty"`
	Confidence string   `json:"confidence"`
}

type bucket struct {
	cause    string
	keywords []string
}

// The first bucket with a hit wins; reordering changes classifications.
var causeBuckets = []bucket{
	{taxonomy.CauseEmergencyRelief, []string{"emergency", "relief", "disaster", "crisis"}},
	{taxonomy.CauseCleanWater, []string{"water", "well"}},
	{taxonomy.CauseHealth, []string{"medical", "health", "hospital", "clinic"}},
	{taxonomy.CauseEducation, []string{"school", "education", "scholarship", "literacy"}},
	{taxonomy.CausePoverty, []string{"hunger", "food", "poverty", "homeless"}},
	{taxonomy.CauseEnvironment, []string{"climate", "environment", "conservation"}},
	{taxonomy.CauseJewishLife, []string{"jewish", "synagogue", "torah"}},
	{taxonomy.CauseArts, []string{"arts", "music", "museum", "theater"}},
	{taxonomy.CauseWomenGirls, []string{"women", "girls"}},
}

var (
	currencyRe = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d+)?)\s?(mm|million|m|k)?\b`)
	bareRe     = regexp.MustCompile(`\b\d{5,9}\b`)
	withinRe   = regexp.MustCompile(`\bwithin\s+(\d+)\s+(days?|weeks?|months?)\b`)
	durationRe = regexp.MustCompile(`\b(\d+)\s+(days?|weeks?|months?)\b`)
)

var urgentWords = []string{"urgent", "immediately", "asap"}

// Extract never fails: anything it cannot find is left empty.
func Extract(in Input) Signals {
	text := strings.ToLower(strings.Join([]string{
		in.Title, in.Summary, in.OrgName, in.OrgEmail, in.VideoURL, in.AttachmentText,
	}, " "))

	out := Signals{Confidence: ConfidenceDemo}
	out.Amount = extractAmount(text, in.AmountRequested)
	out.Urgency = extractUrgency(text)
	out.Geo = taxonomy.MatchPlaces(text)
	out.Cause = extractCause(text)
	return out
}

func extractAmount(text string, explicit *int64) *int64 {
	if explicit != nil && *explicit > 0 {
		v := *explicit
		return &v
	}
	if m := currencyRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil {
			switch m[2] {
			case "k":
				n *= 1_000
			case "m", "mm", "million":
				n *= 1_000_000
			}
			// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
			if n = math.Round(n); !math.IsInf(n, 0) && !math.IsNaN(n) && n < math.MaxInt64 {
				v := int64(n)
				return &v
			}
		}
	}
	if m := bareRe.FindString(text); m != "" {
		v, err := strconv.ParseInt(m, 10, 64)
		if err == nil {
			return &v
		}
	}
	return nil
}

func extractUrgency(text string) string {
	for _, w := range urgentWords {
		if strings.Contains(text, w) {
			return UrgencyUrgent
		}
	}
	if m := withinRe.FindStringSubmatch(text); m != nil {
		return "Within " + m[1] + " " + m[2]
	}
	if m := durationRe.FindStringSubmatch(text); m != nil && (strings.Contains(text, "in ") || strings.Contains(text, "within")) {
		return "In " + m[1] + " " + m[2]
	}
	return ""
}

func extractCause(text string) string {
	for _, b := range causeBuckets {
		for _, kw := range b.keywords {
			if strings.Contains(text, kw) {
				return b.cause
			}
		}
	}
	return ""
}
