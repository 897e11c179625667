package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func events(types ...string) []Event {
	out := make([]Event, 0, len(types))
	for _, t := range types {
		out = append(out, Event{Type: t})
	}
	return out
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Result
	}{
		{name: "new", in: Input{State: StateNew}, want: Result{Stage: StageDiscover}},
		{name: "empty", in: Input{}, want: Result{Stage: StageDiscover}},
		{
			name: "funded ignores events",
			in:   Input{State: StateFunded, Events: events(EventRequestInfo)},
			want: Result{Stage: StageDecision, IsCommitted: true},
		},
		{name: "funded without events", in: Input{State: StateFunded}, want: Result{Stage: StageDecision, IsCommitted: true}},
		{
			name: "passed after meeting scheduled",
			in:   Input{State: StatePassed, Events: events(EventRequestInfo, EventScheduled)},
			want: Result{Stage: StageDueDiligence, IsPassed: true},
		},
		{name: "passed with no history", in: Input{State: StatePassed}, want: Result{Stage: StageInfoRequested, IsPassed: true}},
		{
			name: "passed after diligence is capped",
			in:   Input{State: StatePassed, Events: events(EventDiligenceCompleted)},
			want: Result{Stage: StageDecision, IsPassed: true},
		},
		{
			name: "passed after leverage",
			in:   Input{State: StatePassed, Events: events(EventLeverageCreated)},
			want: Result{Stage: StageDecision, IsPassed: true},
		},
		{name: "request info", in: Input{State: StateRequestedInfo, Events: events(EventRequestInfo)}, want: Result{Stage: StageInfoRequested}},
		{name: "info received", in: Input{Events: events(EventRequestInfo, EventInfoReceived)}, want: Result{Stage: StageMeeting}},
		{name: "scheduled", in: Input{Events: events(EventScheduled)}, want: Result{Stage: StageMeeting}},
		{name: "meeting completed", in: Input{Events: events(EventScheduled, EventMeetingCompleted)}, want: Result{Stage: StageDueDiligence}},
		{name: "leverage", in: Input{Events: events(EventLeverageCreated)}, want: Result{Stage: StageDueDiligence}},
		{name: "diligence wins regardless of order", in: Input{Events: events(EventDiligenceCompleted, EventRequestInfo)}, want: Result{Stage: StageDecision}},
		{name: "state fallback scheduled", in: Input{State: StateScheduled}, want: Result{Stage: StageMeeting}},
		{name: "state fallback requested info", in: Input{State: StateRequestedInfo}, want: Result{Stage: StageInfoRequested}},
		{name: "unknown events", in: Input{State: "weird", Events: events("", "foo")}, want: Result{Stage: StageDiscover}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.in))
			assert.Equal(t, Derive(tt.in), Derive(tt.in))
		})
	}
}

func TestStateAfterAndReconcile(t *testing.T) {
	assert.Equal(t, StateSaved, StateAfter("", EventSave))
	assert.Equal(t, StateNew, StateAfter("", EventMeetingCompleted))
	assert.Equal(t, StateScheduled, StateAfter(StateRequestedInfo, EventScheduled))
	assert.Equal(t, StateScheduled, StateAfter(StateScheduled, EventInfoReceived))
	assert.Equal(t, StateActive, StateAfter(StatePassed, EventReopen))

	assert.Equal(t, StateNew, Reconcile(nil))
	assert.Equal(t, StateFunded, Reconcile(events(EventSave, EventRequestInfo, EventInfoReceived, EventCommit)))
	assert.Equal(t, StateActive, Reconcile(events(EventPass, EventReopen, EventMeetingCompleted)))
}

func TestActions(t *testing.T) {
	assert.True(t, IsDonorAction(EventCommit))
	assert.False(t, IsDonorAction(EventInfoReceived))
	assert.True(t, IsOrgAction(EventInfoReceived))
	assert.False(t, IsOrgAction(EventPass))

	assert.True(t, Allowed(StateNew, EventSave))
	assert.False(t, Allowed(StatePassed, EventCommit))
	assert.True(t, Allowed(StatePassed, EventReopen))
	assert.False(t, Allowed(StateSaved, EventReopen))
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Unknown Tag", HumanizeEventType("unknown_tag"))
	assert.Equal(t, "Unknown Tag", HumanizeEventTypeOrg("unknown_tag"))
	assert.Equal(t, "Site Visit Done", HumanizeEventType("site__visit_done"))
	assert.Equal(t, "", HumanizeEventType(""))
	assert.Equal(t, "HTTP Error", HumanizeEventType("HTTP_error"))
	assert.Equal(t, "Sent To DAF", HumanizeEventTypeOrg("sent_to_DAF"))
	assert.Equal(t, "You committed funding", HumanizeEventType(EventCommit))
	assert.Equal(t, "A donor committed funding", HumanizeEventTypeOrg(EventCommit))
	for tag := range donorLabels {
		_, ok := orgLabels[tag]
		assert.True(t, ok, "missing org label for %s", tag)
	}
}

func TestBuildBoard(t *testing.T) {
	cols := BuildBoard([]Item{
		{OpportunityKey: "a", Result: Result{Stage: StageMeeting}},
		{OpportunityKey: "b", Result: Result{Stage: StageDueDiligence, IsPassed: true}},
		{OpportunityKey: "c", Result: Result{Stage: StageDecision, IsCommitted: true}},
		{OpportunityKey: "d", Result: Result{Stage: StageMeeting}},
		{OpportunityKey: "e", Result: Result{Stage: "bogus"}},
	})
	require.Len(t, cols, 7)
	byKey := map[string][]string{}
	for _, c := range cols {
		for _, it := range c.Items {
			byKey[c.Key] = append(byKey[c.Key], it.OpportunityKey)
		}
	}
	assert.Equal(t, []string{"a", "d"}, byKey[StageMeeting])
	assert.Equal(t, []string{"b"}, byKey[ColumnPassed])
	assert.Equal(t, []string{"c"}, byKey[ColumnCommitted])
	assert.Equal(t, []string{"e"}, byKey[StageDiscover])
	assert.Empty(t, cols[1].Items)
	assert.Equal(t, "Info requested", cols[1].Title)
}
