package maintenance

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donormatch/pkg/domain"
	"donormatch/pkg/store"
	"donormatch/pkg/taxonomy"
	"donormatch/pkg/workflow"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(t *testing.T, st store.Store, donorID, key, eventType, state string, at time.Time) {
	t.Helper()
	require.NoError(t, st.RecordEvent(domain.OpportunityEvent{
		ID:             donorID + key + eventType,
		DonorID:        donorID,
		OpportunityKey: key,
		Type:           eventType,
		CreatedAt:      at,
	}, state))
}

func TestReconcileStates(t *testing.T) {
	st := store.NewMemoryStore()
	record(t, st, "d1", "req1", workflow.EventRequestInfo, workflow.StateRequestedInfo, now)
	record(t, st, "d1", "req1", workflow.EventScheduled, workflow.StateScheduled, now.Add(time.Second))
	record(t, st, "d1", "sub_1", workflow.EventPass, workflow.StatePassed, now)
	// snapshot written out of band
	require.NoError(t, st.SaveState(domain.OpportunityState{DonorID: "d1", OpportunityKey: "sub_1", State: workflow.StateActive}))

	drifts, err := ReconcileStates(st, false, now)
	require.NoError(t, err)
	want := []Drift{{DonorID: "d1", OpportunityKey: "sub_1", Stored: workflow.StateActive, Derived: workflow.StatePassed}}
	if diff := cmp.Diff(want, drifts); diff != "" {
		t.Fatalf("drifts mismatch (-want +got):\n%s", diff)
	}
	state, _, err := st.GetState("d1", "sub_1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateActive, state.State, "dry run must not write")

	_, err = ReconcileStates(st, true, now)
	require.NoError(t, err)
	state, _, err = st.GetState("d1", "sub_1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePassed, state.State)

	drifts, err = ReconcileStates(st, false, now)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestRebuildProfiles(t *testing.T) {
	st := store.NewMemoryStore()
	for i, msg := range []domain.ChatMessage{
		{ID: "m1", DonorID: "d1", Role: "donor", Content: "Education in India"},
		{ID: "m2", DonorID: "d1", Role: "assistant", Content: "Which places in Kenya?"},
		{ID: "m3", DonorID: "d2", Role: "donor", Content: "Climate work, $5k"},
	} {
		msg.CreatedAt = now.Add(time.Duration(i) * time.Second)
		require.NoError(t, st.AppendChatMessage(msg))
	}
	require.NoError(t, st.SaveProfile(domain.DonorProfile{DonorID: "d1", DonorToDonorOptIn: true, ShareToken: "tok"}))

	n, err := RebuildProfiles(st, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p1, ok, err := st.GetProfile("d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{taxonomy.CauseEducation}, p1.Vision.Pillars)
	assert.Equal(t, []string{"India"}, p1.Vision.GeoFocus, "assistant turns are not scanned")
	assert.True(t, p1.DonorToDonorOptIn)
	assert.Equal(t, "tok", p1.ShareToken)

	p2, ok, err := st.GetProfile("d2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{taxonomy.CauseEnvironment}, p2.Vision.Pillars)
	assert.Equal(t, "$5k", p2.Vision.Budget)
}

func TestPromoteAdmin(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveUser(domain.User{ID: "u1", Email: "ops@example.org", Role: domain.RoleDonor, Status: domain.StatusActive}))

	user, err := PromoteAdmin(st, " OPS@example.org ", now)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)

	stored, _, err := st.GetUserByID("u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, stored.Role)

	_, err = PromoteAdmin(st, "missing@example.org", now)
	assert.Error(t, err)
}
