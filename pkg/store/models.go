package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Status       string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ChatMessageModel struct {
	ID        string    `gorm:"primaryKey"`
	DonorID   string    `gorm:"not null;index"`
	Role      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type DonorProfileModel struct {
	DonorID           string         `gorm:"primaryKey"`
	Vision            datatypes.JSON `gorm:"type:jsonb"`
	Board             datatypes.JSON `gorm:"type:jsonb"`
	DonorToDonorOptIn bool           `gorm:"not null;default:false;index"`
	CollabSettings    datatypes.JSON `gorm:"type:jsonb"`
	ShareToken        *string        `gorm:"uniqueIndex"`
	UpdatedAt         time.Time      `gorm:"not null"`
}

type FundingRequestModel struct {
	ID        string `gorm:"primaryKey"`
	Title     string `gorm:"not null"`
	OrgName   string
	Summary   string `gorm:"type:text"`
	Cause     string
	Geo       datatypes.JSON `gorm:"type:jsonb"`
	Amount    *int64
	Urgency   string
	Status    string    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type SubmissionModel struct {
	ID              string `gorm:"primaryKey"`
	RequestorID     string `gorm:"not null;index"`
	Title           string
	Summary         string `gorm:"type:text;not null"`
	OrgName         string
	OrgEmail        string
	VideoURL        string
	AmountRequested *int64
	AttachmentKey   string
	AttachmentName  string
	AttachmentText  string         `gorm:"type:text"`
	Signals         datatypes.JSON `gorm:"type:jsonb"`
	Status          string         `gorm:"not null;index"`
	ReviewNote      string
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type OpportunityEventModel struct {
	ID             string         `gorm:"primaryKey"`
	DonorID        string         `gorm:"not null;index:idx_event_pair,priority:1"`
	OpportunityKey string         `gorm:"not null;index:idx_event_pair,priority:2;index"`
	Type           string         `gorm:"not null"`
	Meta           datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
}

type OpportunityStateModel struct {
	DonorID        string    `gorm:"primaryKey"`
	OpportunityKey string    `gorm:"primaryKey"`
	State          string    `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

type GrantModel struct {
	ID             string `gorm:"primaryKey"`
	DonorID        string `gorm:"not null;index"`
	OpportunityKey string `gorm:"not null"`
	Amount         *int64
	DAFName        string
	Status         string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}
