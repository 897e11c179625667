// Package maintenance repairs cached data from the logs it is derived from:
// opportunity state snapshots from the event log and donor profiles from the
// chat log.
package maintenance

import (
	"fmt"
	"strings"
	"time"

	"donormatch/pkg/domain"
	"donormatch/pkg/store"
	"donormatch/pkg/vision"
	"donormatch/pkg/workflow"
)

// Drift is a snapshot whose state disagrees with its event log.
type Drift struct {
	DonorID        string `json:"donorId"`
	OpportunityKey string `json:"opportunityKey"`
	Stored         string `json:"stored"`
	Derived        string `json:"derived"`
}

// ReconcileStates replays every donor/opportunity event log and reports the
// snapshots that disagree. With apply the snapshots are rewritten.
func ReconcileStates(st store.Store, apply bool, now time.Time) ([]Drift, error) {
	states, err := st.ListAllStates()
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	drifts := []Drift{}
	for _, state := range states {
		events, err := st.ListEvents(state.DonorID, state.OpportunityKey)
		if err != nil {
			return drifts, fmt.Errorf("list events: %w", err)
		}
		log := make([]workflow.Event, 0, len(events))
		for _, ev := range events {
			log = append(log, workflow.Event{Type: ev.Type})
		}
		derived := workflow.Reconcile(log)
		if derived == state.State {
			continue
		}
		drifts = append(drifts, Drift{
			DonorID:        state.DonorID,
			OpportunityKey: state.OpportunityKey,
			Stored:         state.State,
			Derived:        derived,
		})
		if !apply {
			continue
		}
		state.State = derived
		state.UpdatedAt = now.UTC()
		if err := st.SaveState(state); err != nil {
			return drifts, fmt.Errorf("save state: %w", err)
		}
	}
	return drifts, nil
}

// RebuildProfile recomputes one donor's cached vision and board. Sharing
// settings are kept.
func RebuildProfile(st store.Store, donorID string, now time.Time) (domain.DonorProfile, error) {
	var out domain.DonorProfile
	err := st.WithDonorLock(donorID, func(tx store.Store) error {
		history, err := tx.ListChatMessages(donorID, 0)
		if err != nil {
			return fmt.Errorf("list chat: %w", err)
		}
		profile, _, err := tx.GetProfile(donorID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		turns := make([]vision.Turn, 0, len(history))
		for _, m := range history {
			turns = append(turns, vision.Turn{Role: m.Role, Content: m.Content})
		}
		v := vision.Extract(turns)
		profile.DonorID = donorID
		profile.Vision = v
		profile.Board = vision.BuildBoard(v)
		profile.UpdatedAt = now.UTC()
		if err := tx.SaveProfile(profile); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		out = profile
		return nil
	})
	return out, err
}

// RebuildProfiles runs RebuildProfile for every donor with a chat thread and
// returns how many were rebuilt.
func RebuildProfiles(st store.Store, now time.Time) (int, error) {
	donorIDs, err := st.ListChatDonorIDs()
	if err != nil {
		return 0, fmt.Errorf("list donors: %w", err)
	}
	for i, id := range donorIDs {
		if _, err := RebuildProfile(st, id, now); err != nil {
			return i, fmt.Errorf("rebuild %s: %w", id, err)
		}
	}
	return len(donorIDs), nil
}

// PromoteAdmin gives the user with email the admin role.
func PromoteAdmin(st store.Store, email string, now time.Time) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, ok, err := st.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, fmt.Errorf("no user with email %q", email)
	}
	if user.Role == domain.RoleAdmin {
		return user, nil
	}
	user.Role = domain.RoleAdmin
	user.UpdatedAt = now.UTC()
	if err := st.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}
