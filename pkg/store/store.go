package store

import (
	"errors"

	"donormatch/pkg/domain"
)

var errDuplicateShareToken = errors.New("share token already in use")

// Store defines persistence for users, donor chat, opportunities and the
// opportunity event log.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	UserCount() (int, error)

	// donor chat, oldest first; limit <= 0 returns the whole thread
	AppendChatMessage(domain.ChatMessage) error
	ListChatMessages(donorID string, limit int) ([]domain.ChatMessage, error)
	ListChatDonorIDs() ([]string, error)

	// donor profiles
	SaveProfile(domain.DonorProfile) error
	GetProfile(donorID string) (domain.DonorProfile, bool, error)
	GetProfileByShareToken(token string) (domain.DonorProfile, bool, error)
	ListOptedInProfiles() ([]domain.DonorProfile, error)

	// curated requests
	SaveRequest(domain.FundingRequest) error
	GetRequest(id string) (domain.FundingRequest, bool, error)
	ListRequests(includeArchived bool) ([]domain.FundingRequest, error)

	// submissions; an empty status lists all
	SaveSubmission(domain.Submission) error
	GetSubmission(id string) (domain.Submission, bool, error)
	ListSubmissions(status domain.SubmissionStatus) ([]domain.Submission, error)
	ListSubmissionsByRequestor(requestorID string) ([]domain.Submission, error)

	// opportunity workflow
	RecordEvent(ev domain.OpportunityEvent, state string) error
	ListEvents(donorID, opportunityKey string) ([]domain.OpportunityEvent, error)
	ListEventsByOpportunity(opportunityKey string) ([]domain.OpportunityEvent, error)
	GetState(donorID, opportunityKey string) (domain.OpportunityState, bool, error)
	ListStates(donorID string) ([]domain.OpportunityState, error)
	ListAllStates() ([]domain.OpportunityState, error)
	SaveState(domain.OpportunityState) error

	// grants; an empty donorID lists all
	SaveGrant(domain.Grant) error
	ListGrants(donorID string) ([]domain.Grant, error)

	// WithDonorLock runs fn with writes for donorID serialized against
	// other callers holding the same lock. Gorm runs fn in a transaction.
	WithDonorLock(donorID string, fn func(Store) error) error
}
