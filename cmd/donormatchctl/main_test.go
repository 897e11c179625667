package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donormatch/pkg/domain"
	"donormatch/pkg/store"
	"donormatch/pkg/submission"
	"donormatch/pkg/taxonomy"
	"donormatch/pkg/workflow"
)

func useMemoryStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	prev := openStore
	openStore = func() (store.Store, func() error, error) {
		return st, func() error { return nil }, nil
	}
	t.Cleanup(func() { openStore = prev })
	return st
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// cobra keeps flag values between Execute calls on the same tree.
func resetFlags(cmd *cobra.Command) {
	for _, c := range cmd.Commands() {
		for _, name := range []string{"apply", "email", "summary", "title", "org", "amount"} {
			if f := c.Flags().Lookup(name); f != nil {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			}
		}
	}
}

func TestExtractPrintsSignals(t *testing.T) {
	out, err := execute(t, "extract", "--summary", "Urgent: $40k for a rural clinic in Kenya")
	require.NoError(t, err)

	var got submission.Signals
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, taxonomy.CauseHealth, got.Cause)
	assert.Equal(t, []string{"Kenya"}, got.Geo)
	require.NotNil(t, got.Amount)
	assert.Equal(t, int64(40000), *got.Amount)
	assert.Equal(t, "Urgent", got.Urgency)
}

func TestExtractReadsStdin(t *testing.T) {
	rootCmd.SetIn(strings.NewReader("School supplies for girls in Peru"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })
	out, err := execute(t, "extract")
	require.NoError(t, err)
	assert.Contains(t, out, `"cause": "`+taxonomy.CauseEducation+`"`)
}

func TestReconcileReportsDrift(t *testing.T) {
	st := useMemoryStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.RecordEvent(domain.OpportunityEvent{
		ID: "e1", DonorID: "d1", OpportunityKey: "sub_1", Type: workflow.EventPass, CreatedAt: at,
	}, workflow.StatePassed))
	require.NoError(t, st.SaveState(domain.OpportunityState{DonorID: "d1", OpportunityKey: "sub_1", State: workflow.StateActive}))

	out, err := execute(t, "reconcile-states")
	require.NoError(t, err)
	assert.Contains(t, out, "d1 sub_1: active -> passed")
	assert.Contains(t, out, "found 1 drifted snapshot(s)")

	out, err = execute(t, "reconcile-states", "--apply")
	require.NoError(t, err)
	assert.Contains(t, out, "fixed 1 drifted snapshot(s)")

	out, err = execute(t, "reconcile-states")
	require.NoError(t, err)
	assert.Contains(t, out, "found 0 drifted snapshot(s)")
}

func TestPromote(t *testing.T) {
	st := useMemoryStore(t)
	require.NoError(t, st.SaveUser(domain.User{ID: "u1", Email: "ops@example.org", Role: domain.RoleDonor, Status: domain.StatusActive}))

	out, err := execute(t, "promote", "--email", "OPS@example.org")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.org is now admin\n", out)

	_, err = execute(t, "promote", "--email", "nobody@example.org")
	assert.Error(t, err)
}

func TestRebuildProfilesCommand(t *testing.T) {
	st := useMemoryStore(t)
	require.NoError(t, st.AppendChatMessage(domain.ChatMessage{
		ID: "m1", DonorID: "d1", Role: "donor", Content: "Clean water in Ghana", CreatedAt: time.Now(),
	}))
	out, err := execute(t, "rebuild-profiles")
	require.NoError(t, err)
	assert.Equal(t, "rebuilt 1 profile(s)\n", out)
}

func TestMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := execute(t, "rebuild-profiles")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL required")
}
