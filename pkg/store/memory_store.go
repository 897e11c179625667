package store

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"donormatch/pkg/domain"
)

// MemoryStore implements Store in process memory. Used in tests and for
// local runs without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	messages    []domain.ChatMessage
	profiles    map[string]domain.DonorProfile
	requests    map[string]domain.FundingRequest
	submissions map[string]domain.Submission
	events      []domain.OpportunityEvent
	states      map[stateKey]domain.OpportunityState
	grants      map[string]domain.Grant

	lockMu     sync.Mutex
	donorLocks map[string]*sync.Mutex
}

type stateKey struct {
	donorID string
	key     string
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		profiles:    make(map[string]domain.DonorProfile),
		requests:    make(map[string]domain.FundingRequest),
		submissions: make(map[string]domain.Submission),
		states:      make(map[stateKey]domain.OpportunityState),
		grants:      make(map[string]domain.Grant),
		donorLocks:  make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	_, ok, err := s.GetUserByEmail(email)
	return ok, err
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) ListUsers() ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UserCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryStore) AppendChatMessage(msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *MemoryStore) ListChatMessages(donorID string, limit int) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ChatMessage{}
	for _, m := range s.messages {
		if m.DonorID == donorID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) ListChatDonorIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, m := range s.messages {
		if !slices.Contains(ids, m.DonorID) {
			ids = append(ids, m.DonorID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) SaveProfile(p domain.DonorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ShareToken != "" {
		for id, other := range s.profiles {
			if id != p.DonorID && other.ShareToken == p.ShareToken {
				return errDuplicateShareToken
			}
		}
	}
	s.profiles[p.DonorID] = p
	return nil
}

func (s *MemoryStore) GetProfile(donorID string) (domain.DonorProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[donorID]
	return p, ok, nil
}

func (s *MemoryStore) GetProfileByShareToken(token string) (domain.DonorProfile, bool, error) {
	if strings.TrimSpace(token) == "" {
		return domain.DonorProfile{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.ShareToken == token {
			return p, true, nil
		}
	}
	return domain.DonorProfile{}, false, nil
}

func (s *MemoryStore) ListOptedInProfiles() ([]domain.DonorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DonorProfile
	for _, p := range s.profiles {
		if p.DonorToDonorOptIn {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DonorID < out[j].DonorID })
	return out, nil
}

func (s *MemoryStore) SaveRequest(r domain.FundingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
	return nil
}

func (s *MemoryStore) GetRequest(id string) (domain.FundingRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	return r, ok, nil
}

func (s *MemoryStore) ListRequests(includeArchived bool) ([]domain.FundingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FundingRequest, 0, len(s.requests))
	for _, r := range s.requests {
		if !includeArchived && r.Status == domain.RequestArchived {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SaveSubmission(sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = sub
	return nil
}

func (s *MemoryStore) GetSubmission(id string) (domain.Submission, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	return sub, ok, nil
}

func (s *MemoryStore) ListSubmissions(status domain.SubmissionStatus) ([]domain.Submission, error) {
	return s.filterSubmissions(func(sub domain.Submission) bool {
		return status == "" || sub.Status == status
	}), nil
}

func (s *MemoryStore) ListSubmissionsByRequestor(requestorID string) ([]domain.Submission, error) {
	return s.filterSubmissions(func(sub domain.Submission) bool {
		return sub.RequestorID == requestorID
	}), nil
}

func (s *MemoryStore) filterSubmissions(keep func(domain.Submission) bool) []domain.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Submission{}
	for _, sub := range s.submissions {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) RecordEvent(ev domain.OpportunityEvent, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.states[stateKey{ev.DonorID, ev.OpportunityKey}] = domain.OpportunityState{
		DonorID:        ev.DonorID,
		OpportunityKey: ev.OpportunityKey,
		State:          state,
		UpdatedAt:      ev.CreatedAt,
	}
	return nil
}

func (s *MemoryStore) ListEvents(donorID, opportunityKey string) ([]domain.OpportunityEvent, error) {
	return s.filterEvents(func(ev domain.OpportunityEvent) bool {
		return ev.DonorID == donorID && ev.OpportunityKey == opportunityKey
	}), nil
}

func (s *MemoryStore) ListEventsByOpportunity(opportunityKey string) ([]domain.OpportunityEvent, error) {
	return s.filterEvents(func(ev domain.OpportunityEvent) bool {
		return ev.OpportunityKey == opportunityKey
	}), nil
}

// filterEvents keeps append order, which is the order events were recorded.
func (s *MemoryStore) filterEvents(keep func(domain.OpportunityEvent) bool) []domain.OpportunityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.OpportunityEvent{}
	for _, ev := range s.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *MemoryStore) GetState(donorID, opportunityKey string) (domain.OpportunityState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[stateKey{donorID, opportunityKey}]
	return st, ok, nil
}

func (s *MemoryStore) ListStates(donorID string) ([]domain.OpportunityState, error) {
	return s.filterStates(func(st domain.OpportunityState) bool { return st.DonorID == donorID }), nil
}

func (s *MemoryStore) ListAllStates() ([]domain.OpportunityState, error) {
	return s.filterStates(func(domain.OpportunityState) bool { return true }), nil
}

func (s *MemoryStore) filterStates(keep func(domain.OpportunityState) bool) []domain.OpportunityState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.OpportunityState{}
	for _, st := range s.states {
		if keep(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DonorID == out[j].DonorID {
			return out[i].OpportunityKey < out[j].OpportunityKey
		}
		return out[i].DonorID < out[j].DonorID
	})
	return out
}

func (s *MemoryStore) SaveState(st domain.OpportunityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stateKey{st.DonorID, st.OpportunityKey}] = st
	return nil
}

func (s *MemoryStore) SaveGrant(g domain.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[g.ID] = g
	return nil
}

func (s *MemoryStore) ListGrants(donorID string) ([]domain.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Grant{}
	for _, g := range s.grants {
		if donorID == "" || g.DonorID == donorID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// WithDonorLock serializes callers per donor. fn sees the same store, so
// writes are not rolled back if fn fails.
func (s *MemoryStore) WithDonorLock(donorID string, fn func(Store) error) error {
	s.lockMu.Lock()
	l, ok := s.donorLocks[donorID]
	if !ok {
		l = &sync.Mutex{}
		s.donorLocks[donorID] = l
	}
	s.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(s)
}
