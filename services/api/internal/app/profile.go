package app

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"donormatch/pkg/domain"
	"donormatch/pkg/store"
	"donormatch/pkg/vision"
)

// ProfileUpdate carries donor changes to sharing. Nil fields are left alone.
type ProfileUpdate struct {
	DonorToDonorOptIn *bool
	CollabSettings    *domain.CollabSettings
}

// SharedBoard is the read-only view behind a share link.
type SharedBoard struct {
	Name  string       `json:"name"`
	Board vision.Board `json:"board"`
}

// Peer is another opted-in donor, showing only what they chose to share.
type Peer struct {
	DonorID       string   `json:"donorId"`
	Name          string   `json:"name"`
	SharedPillars []string `json:"sharedPillars"`
	Pillars       []string `json:"pillars,omitempty"`
	GeoFocus      []string `json:"geoFocus,omitempty"`
	Budget        string   `json:"budget,omitempty"`
	Note          string   `json:"note,omitempty"`
}

// GetProfile returns the donor's profile, empty when none was saved yet.
func (a *App) GetProfile(donor domain.User) (domain.DonorProfile, error) {
	profile, ok, err := a.store.GetProfile(donor.ID)
	if err != nil {
		return domain.DonorProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if !ok {
		v := vision.Empty()
		profile = domain.DonorProfile{DonorID: donor.ID, Vision: v, Board: vision.BuildBoard(v)}
	}
	return profile, nil
}

// UpdateProfile changes sharing settings without touching the cached vision.
func (a *App) UpdateProfile(donor domain.User, in ProfileUpdate) (domain.DonorProfile, error) {
	return a.mutateProfile(donor.ID, func(p *domain.DonorProfile) {
		if in.DonorToDonorOptIn != nil {
			p.DonorToDonorOptIn = *in.DonorToDonorOptIn
		}
		if in.CollabSettings != nil {
			settings := *in.CollabSettings
			settings.Note = strings.TrimSpace(settings.Note)
			p.CollabSettings = settings
		}
	})
}

// RotateShareToken issues a fresh share link, invalidating the old one.
func (a *App) RotateShareToken(donor domain.User) (domain.DonorProfile, error) {
	return a.mutateProfile(donor.ID, func(p *domain.DonorProfile) {
		p.ShareToken = uuid.NewString()
	})
}

// RevokeShareToken turns the share link off.
func (a *App) RevokeShareToken(donor domain.User) (domain.DonorProfile, error) {
	return a.mutateProfile(donor.ID, func(p *domain.DonorProfile) {
		p.ShareToken = ""
	})
}

// SharedBoardByToken resolves a public share link.
func (a *App) SharedBoardByToken(token string) (SharedBoard, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SharedBoard{}, ErrNotFound
	}
	profile, ok, err := a.store.GetProfileByShareToken(token)
	if err != nil {
		return SharedBoard{}, fmt.Errorf("load shared profile: %w", err)
	}
	if !ok {
		return SharedBoard{}, ErrNotFound
	}
	name := ""
	if user, found, err := a.store.GetUserByID(profile.DonorID); err == nil && found {
		name = displayName(user)
	}
	return SharedBoard{Name: name, Board: profile.Board}, nil
}

// Peers lists opted-in donors sharing at least one pillar with donor. The
// caller has to be opted in too.
func (a *App) Peers(donor domain.User) ([]Peer, error) {
	me, err := a.GetProfile(donor)
	if err != nil {
		return nil, err
	}
	if !me.DonorToDonorOptIn {
		return nil, ErrOptInRequired
	}
	profiles, err := a.store.ListOptedInProfiles()
	if err != nil {
		return nil, fmt.Errorf("list opted-in profiles: %w", err)
	}
	peers := []Peer{}
	for _, p := range profiles {
		if p.DonorID == donor.ID {
			continue
		}
		shared := sharedPillars(me.Vision.Pillars, p.Vision.Pillars)
		if len(shared) == 0 {
			continue
		}
		peer := Peer{DonorID: p.DonorID, SharedPillars: shared, Note: p.CollabSettings.Note}
		if user, found, err := a.store.GetUserByID(p.DonorID); err == nil && found {
			if user.Status == domain.StatusDisabled {
				continue
			}
			peer.Name = displayName(user)
		}
		if p.CollabSettings.ShowPillars {
			peer.Pillars = p.Vision.Pillars
		}
		if p.CollabSettings.ShowGeo {
			peer.GeoFocus = p.Vision.GeoFocus
		}
		if p.CollabSettings.ShowBudget {
			peer.Budget = p.Vision.Budget
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

func (a *App) mutateProfile(donorID string, fn func(*domain.DonorProfile)) (domain.DonorProfile, error) {
	var out domain.DonorProfile
	err := a.store.WithDonorLock(donorID, func(tx store.Store) error {
		profile, ok, err := tx.GetProfile(donorID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		if !ok {
			v := vision.Empty()
			profile = domain.DonorProfile{DonorID: donorID, Vision: v, Board: vision.BuildBoard(v)}
		}
		fn(&profile)
		profile.UpdatedAt = a.timestamp()
		if err := tx.SaveProfile(profile); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		out = profile
		return nil
	})
	return out, err
}

func sharedPillars(mine, theirs []string) []string {
	out := []string{}
	for _, p := range mine {
		if slices.Contains(theirs, p) {
			out = append(out, p)
		}
	}
	return out
}
