package domain

import (
	"time"

	"donormatch/pkg/submission"
	"donormatch/pkg/vision"
)

type UserRole string

const (
	RoleDonor     UserRole = "donor"
	RoleRequestor UserRole = "requestor"
	RoleAdmin     UserRole = "admin"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name,omitempty"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ChatMessage is append-only.
type ChatMessage struct {
	ID        string    `json:"id"`
	DonorID   string    `json:"donorId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// CollabSettings controls what peers see when a donor opts in.
type CollabSettings struct {
	ShowPillars bool   `json:"showPillars"`
	ShowGeo     bool   `json:"showGeo"`
	ShowBudget  bool   `json:"showBudget"`
	Note        string `json:"note,omitempty"`
}

// DonorProfile caches the derived vision and board. The message log is
// authoritative.
type DonorProfile struct {
	DonorID           string         `json:"donorId"`
	Vision            vision.Vision  `json:"vision"`
	Board             vision.Board   `json:"board"`
	DonorToDonorOptIn bool           `json:"donorToDonorOptIn"`
	CollabSettings    CollabSettings `json:"collabSettings"`
	ShareToken        string         `json:"shareToken,omitempty"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

type RequestStatus string

const (
	RequestActive   RequestStatus = "active"
	RequestArchived RequestStatus = "archived"
)

// FundingRequest is a curated opportunity managed by admins.
type FundingRequest struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	OrgName   string        `json:"orgName"`
	Summary   string        `json:"summary"`
	Cause     string        `json:"cause,omitempty"`
	Geo       []string      `json:"geo"`
	Amount    *int64        `json:"amount,omitempty"`
	Urgency   string        `json:"urgency,omitempty"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Submission is a funding request sent in by an organization.
type Submission struct {
	ID              string             `json:"id"`
	RequestorID     string             `json:"requestorId"`
	Title           string             `json:"title"`
	Summary         string             `json:"summary"`
	OrgName         string             `json:"orgName"`
	OrgEmail        string             `json:"orgEmail"`
	VideoURL        string             `json:"videoUrl,omitempty"`
	AmountRequested *int64             `json:"amountRequested,omitempty"`
	AttachmentKey   string             `json:"-"`
	AttachmentName  string             `json:"attachmentName,omitempty"`
	AttachmentText  string             `json:"-"`
	Signals         submission.Signals `json:"signals"`
	Status          SubmissionStatus   `json:"status"`
	ReviewNote      string             `json:"reviewNote,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// OpportunityEvent is append-only.
type OpportunityEvent struct {
	ID             string            `json:"id"`
	DonorID        string            `json:"donorId"`
	OpportunityKey string            `json:"opportunityKey"`
	Type           string            `json:"type"`
	Meta           map[string]string `json:"meta,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// OpportunityState is the snapshot kept next to the event log.
type OpportunityState struct {
	DonorID        string    `json:"donorId"`
	OpportunityKey string    `json:"opportunityKey"`
	State          string    `json:"state"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type GrantStatus string

const (
	GrantPledged GrantStatus = "pledged"
	GrantPaid    GrantStatus = "paid"
)

// Grant records a donor commitment.
type Grant struct {
	ID             string      `json:"id"`
	DonorID        string      `json:"donorId"`
	OpportunityKey string      `json:"opportunityKey"`
	Amount         *int64      `json:"amount,omitempty"`
	DAFName        string      `json:"dafName,omitempty"`
	Status         GrantStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}
