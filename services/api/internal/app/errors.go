package app

import "errors"

var (
	// ErrInvalidCredentials is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	// ErrUserDisabled should not be exposed to clients as-is.
	ErrUserDisabled = errors.New("user disabled")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")
	ErrInvalidRole              = errors.New("invalid role")
	ErrInvalidStatus            = errors.New("invalid status")
	ErrCannotChangeOwnRole      = errors.New("cannot change own role")
	ErrCannotDisableSelf        = errors.New("cannot disable self")

	ErrRefreshTokenRequired = errors.New("refresh token required")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")

	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")

	ErrMessageRequired = errors.New("message required")
	ErrMessageTooLong  = errors.New("message too long")
	ErrOptInRequired   = errors.New("donor-to-donor sharing is off")

	ErrInvalidAction    = errors.New("invalid action")
	ErrActionNotAllowed = errors.New("action not allowed in current state")
	ErrNoInfoRequest    = errors.New("donor has not requested info")
	ErrDonorIDRequired  = errors.New("donorId required")

	ErrSummaryRequired        = errors.New("summary required")
	ErrTitleRequired          = errors.New("title required")
	ErrUnsupportedAttachment  = errors.New("unsupported attachment type")
	ErrInvalidDecision        = errors.New("decision must be approve or reject")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrSubmissionAlreadyFinal = errors.New("submission already reviewed")
)
