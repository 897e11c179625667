package workflow

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var donorLabels = map[string]string{
	EventSave:               "Saved to your pipeline",
	EventRequestInfo:        "You requested more information",
	EventInfoReceived:       "The organization sent more information",
	EventScheduled:          "Meeting scheduled",
	EventMeetingCompleted:   "Meeting completed",
	EventLeverageCreated:    "Leverage plan created",
	EventDiligenceCompleted: "Due diligence completed",
	EventPass:               "You passed",
	EventCommit:             "You committed funding",
	EventReopen:             "Reopened",
}

var orgLabels = map[string]string{
	EventSave:               "A donor saved your request",
	EventRequestInfo:        "A donor asked for more information",
	EventInfoReceived:       "You sent more information",
	EventScheduled:          "A donor scheduled a meeting",
	EventMeetingCompleted:   "Meeting with a donor completed",
	EventLeverageCreated:    "A donor is building a leverage plan",
	EventDiligenceCompleted: "A donor completed due diligence",
	EventPass:               "A donor passed",
	EventCommit:             "A donor committed funding",
	EventReopen:             "A donor reopened your request",
}

// HumanizeEventType labels an event for the donor's timeline.
func HumanizeEventType(eventType string) string {
	if label, ok := donorLabels[eventType]; ok {
		return label
	}
	return titleTag(eventType)
}

// HumanizeEventTypeOrg labels an event for the organization's timeline.
func HumanizeEventTypeOrg(eventType string) string {
	if label, ok := orgLabels[eventType]; ok {
		return label
	}
	return titleTag(eventType)
}

// titleTag turns "unknown_tag" into "Unknown Tag". Existing capitals are
// kept, so "HTTP_error" becomes "HTTP Error".
func titleTag(tag string) string {
	words := strings.Fields(strings.ReplaceAll(tag, "_", " "))
	// Casers carry state, so one per call.
	return cases.Title(language.English, cases.NoLower).String(strings.Join(words, " "))
}
