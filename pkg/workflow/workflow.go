// Package workflow derives where a donor stands with an opportunity from the
// opportunity's event log.
//
// The event log is authoritative. The stored state snapshot is only used for
// the terminal passed/funded flags and as a last fallback, and Reconcile can
// rebuild it from the log at any time.
package workflow

// Pipeline stages, in order.
const (
	StageDiscover      = "discover"
	StageInfoRequested = "info_requested"
	StageMeeting       = "meeting"
	StageDueDiligence  = "due_diligence"
	StageDecision      = "decision"
)

// Stages lists the pipeline in order.
var Stages = []string{StageDiscover, StageInfoRequested, StageMeeting, StageDueDiligence, StageDecision}

// Snapshot states stored on an opportunity.
const (
	StateNew           = "new"
	StateSaved         = "saved"
	StateRequestedInfo = "requested_info"
	StateScheduled     = "scheduled"
	StatePassed        = "passed"
	StateFunded        = "funded"
	StateActive        = "active"
)

// Event types.
const (
	EventSave               = "save"
	EventRequestInfo        = "request_info"
	EventInfoReceived       = "info_received"
	EventScheduled          = "scheduled"
	EventMeetingCompleted   = "meeting_completed"
	EventLeverageCreated    = "leverage_created"
	EventDiligenceCompleted = "diligence_completed"
	EventPass               = "pass"
	EventCommit             = "commit"
	EventReopen             = "reopen"
)

// Event is the part of a stored event the deriver looks at.
type Event struct {
	Type string `json:"type"`
}

// Input is a snapshot state plus the events in the order they were recorded.
type Input struct {
	State  string  `json:"state"`
	Events []Event `json:"events"`
}

// Result is the derived position in the pipeline.
type Result struct {
	Stage       string `json:"stage"`
	IsPassed    bool   `json:"isPassed"`
	IsCommitted bool   `json:"isCommitted"`
}

// Derive computes the stage for in. Unknown states and event types are
// ignored, so the result is always one of Stages.
func Derive(in Input) Result {
	seen := make(map[string]bool, len(in.Events))
	for _, e := range in.Events {
		seen[e.Type] = true
	}

	switch in.State {
	case StatePassed:
		reached := 0
		if seen[EventRequestInfo] {
			reached = 1
		}
		if seen[EventInfoReceived] || seen[EventScheduled] {
			reached = 2
		}
		if seen[EventMeetingCompleted] || seen[EventLeverageCreated] {
			reached = 3
		}
		if seen[EventDiligenceCompleted] {
			reached = 4
		}
		next := reached + 1
		if next >= len(Stages) {
			next = len(Stages) - 1
		}
		return Result{Stage: Stages[next], IsPassed: true}
	case StateFunded:
		return Result{Stage: StageDecision, IsCommitted: true}
	}

	switch {
	case seen[EventDiligenceCompleted]:
		return Result{Stage: StageDecision}
	case seen[EventMeetingCompleted]:
		return Result{Stage: StageDueDiligence}
	case seen[EventLeverageCreated]:
		return Result{Stage: StageDueDiligence}
	case seen[EventScheduled]:
		return Result{Stage: StageMeeting}
	case seen[EventInfoReceived]:
		return Result{Stage: StageMeeting}
	case seen[EventRequestInfo]:
		return Result{Stage: StageInfoRequested}
	}

	switch in.State {
	case StateScheduled:
		return Result{Stage: StageMeeting}
	case StateRequestedInfo:
		return Result{Stage: StageInfoRequested}
	}
	return Result{Stage: StageDiscover}
}

// StateAfter returns the snapshot state once eventType has been recorded on
// an opportunity in state current. Events that do not move the snapshot
// leave it unchanged.
func StateAfter(current, eventType string) string {
	if current == "" {
		current = StateNew
	}
	switch eventType {
	case EventSave:
		return StateSaved
	case EventRequestInfo:
		return StateRequestedInfo
	case EventScheduled:
		return StateScheduled
	case EventPass:
		return StatePassed
	case EventCommit:
		return StateFunded
	case EventReopen:
		return StateActive
	default:
		return current
	}
}

// Reconcile replays events from StateNew.
func Reconcile(events []Event) string {
	state := StateNew
	for _, e := range events {
		state = StateAfter(state, e.Type)
	}
	return state
}

var donorActions = map[string]bool{
	EventSave:               true,
	EventRequestInfo:        true,
	EventScheduled:          true,
	EventMeetingCompleted:   true,
	EventLeverageCreated:    true,
	EventDiligenceCompleted: true,
	EventPass:               true,
	EventCommit:             true,
	EventReopen:             true,
}

// IsDonorAction reports whether a donor may record eventType.
func IsDonorAction(eventType string) bool { return donorActions[eventType] }

// IsOrgAction reports whether the organization side may record eventType.
func IsOrgAction(eventType string) bool { return eventType == EventInfoReceived }

// Allowed reports whether eventType may follow the snapshot state. Passed
// and funded opportunities only accept reopen; reopen needs one of those.
func Allowed(state, eventType string) bool {
	switch eventType {
	case EventReopen:
		return state == StatePassed || state == StateFunded
	default:
		return state != StatePassed && state != StateFunded
	}
}
