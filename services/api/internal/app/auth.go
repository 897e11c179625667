package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"donormatch/internal/util"
	"donormatch/pkg/auth"
	"donormatch/pkg/domain"
	"donormatch/pkg/mail"
	"donormatch/pkg/session"
)

// SignUpInput is the signup form. Role is donor or requestor.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// AuthResult is returned by every flow that issues tokens.
type AuthResult struct {
	User         domain.User
	Token        string
	RefreshToken string
}

// SignUp registers a donor or requestor. The very first account becomes admin.
func (a *App) SignUp(ctx context.Context, in SignUpInput) (AuthResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return AuthResult{}, ErrEmailAndPasswordRequired
	}
	role, err := parseSignupRole(in.Role)
	if err != nil {
		return AuthResult{}, err
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return AuthResult{}, err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return AuthResult{}, ErrEmailAlreadyExists
	}
	count, err := a.store.UserCount()
	if err != nil {
		return AuthResult{}, fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		role = domain.RoleAdmin
	}
	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.timestamp()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: passwordHash,
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return AuthResult{}, fmt.Errorf("save user: %w", err)
	}
	a.enqueueMail(ctx, mail.Request{
		To:       user.Email,
		Template: mail.TemplateWelcome,
		Data: map[string]string{
			"Name": displayName(user),
			"Role": string(user.Role),
		},
	})
	return a.issueTokens(user)
}

// Login validates credentials and issues a token pair.
func (a *App) Login(email, password string) (AuthResult, error) {
	user, ok, err := a.store.GetUserByEmail(normalizeEmail(email))
	if err != nil {
		return AuthResult{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if user.Status == domain.StatusDisabled {
		return AuthResult{}, ErrUserDisabled
	}
	return a.issueTokens(user)
}

// Refresh rotates the refresh token and issues a new pair.
func (a *App) Refresh(refreshToken string) (AuthResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return AuthResult{}, ErrRefreshTokenRequired
	}
	userID, next, err := a.refresh.Rotate(refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) || errors.Is(err, session.ErrRefreshTokenReplay) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found || user.Status == domain.StatusDisabled {
		_ = a.refresh.Revoke(next)
		return AuthResult{}, ErrInvalidRefreshToken
	}
	access, err := a.sessions.Issue(user.ID)
	if err != nil {
		_ = a.refresh.Revoke(next)
		return AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}
	return AuthResult{User: user, Token: access, RefreshToken: next}, nil
}

// Logout revokes the access token and, when given, the refresh token.
func (a *App) Logout(accessToken, refreshToken string) error {
	if err := a.sessions.Revoke(accessToken); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		if err := a.refresh.Revoke(refreshToken); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	return nil
}

// UserFromToken resolves an active user from an access token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, err := a.sessions.Verify(token)
	if err != nil {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found || user.Status == domain.StatusDisabled {
		return domain.User{}, false
	}
	return user, true
}

// JWKS returns the public signing keys.
func (a *App) JWKS() []session.JWK {
	return a.sessions.JWKS()
}

// ListUsers returns all users (admin use only).
func (a *App) ListUsers() ([]domain.User, error) {
	return a.store.ListUsers()
}

// UserUpdate carries admin changes to an account. Nil fields are left alone.
type UserUpdate struct {
	Role   *domain.UserRole
	Status *domain.UserStatus
}

// AdminUpdateUser changes role or status. Disabling revokes every token.
func (a *App) AdminUpdateUser(admin domain.User, userID string, in UserUpdate) (domain.User, error) {
	target, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if target.ID == admin.ID {
		if in.Role != nil && *in.Role != admin.Role {
			return domain.User{}, ErrCannotChangeOwnRole
		}
		if in.Status != nil && *in.Status == domain.StatusDisabled {
			return domain.User{}, ErrCannotDisableSelf
		}
	}
	if in.Role != nil {
		target.Role = *in.Role
	}
	if in.Status != nil {
		target.Status = *in.Status
	}
	target.UpdatedAt = a.timestamp()
	if err := a.store.SaveUser(target); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	if in.Status != nil && *in.Status == domain.StatusDisabled {
		if err := a.sessions.RevokeUser(target.ID, target.UpdatedAt); err != nil {
			return domain.User{}, fmt.Errorf("revoke access tokens: %w", err)
		}
		if err := a.refresh.RevokeUser(target.ID); err != nil {
			return domain.User{}, fmt.Errorf("revoke refresh tokens: %w", err)
		}
	}
	return target, nil
}

// ParseRole accepts any known role.
func ParseRole(role string) (domain.UserRole, error) {
	switch domain.UserRole(strings.ToLower(strings.TrimSpace(role))) {
	case domain.RoleDonor:
		return domain.RoleDonor, nil
	case domain.RoleRequestor:
		return domain.RoleRequestor, nil
	case domain.RoleAdmin:
		return domain.RoleAdmin, nil
	default:
		return "", ErrInvalidRole
	}
}

// ParseStatus accepts active or disabled.
func ParseStatus(status string) (domain.UserStatus, error) {
	switch domain.UserStatus(strings.ToLower(strings.TrimSpace(status))) {
	case domain.StatusActive:
		return domain.StatusActive, nil
	case domain.StatusDisabled:
		return domain.StatusDisabled, nil
	default:
		return "", ErrInvalidStatus
	}
}

func parseSignupRole(role string) (domain.UserRole, error) {
	if strings.TrimSpace(role) == "" {
		return domain.RoleDonor, nil
	}
	parsed, err := ParseRole(role)
	if err != nil || parsed == domain.RoleAdmin {
		return "", ErrInvalidRole
	}
	return parsed, nil
}

func (a *App) issueTokens(user domain.User) (AuthResult, error) {
	access, err := a.sessions.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := a.refresh.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return AuthResult{User: user, Token: access, RefreshToken: refresh}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func displayName(u domain.User) string {
	if u.Name != "" {
		return u.Name
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}
