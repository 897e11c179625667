package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"donormatch/internal/ratelimit"
	"donormatch/internal/util"
	"donormatch/pkg/auth"
	"donormatch/pkg/domain"
	"donormatch/services/api/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	RedisAddr                string
	RedisPassword            string
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	ChatRateLimitPerMinute   int
	MaxUploadBytes           int64
	TrustedProxyCIDRs        []string
	AllowedOrigins           []string
}

// Server exposes the donormatch HTTP API.
type Server struct {
	app            *app.App
	router         chi.Router
	trusted        *util.TrustedProxies
	allowedOrigins []string
	maxUploadBytes int64
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	refreshLimiter *ratelimit.FixedWindowLimiter
	chatLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, err
	}
	newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
		if limit <= 0 {
			limit = fallback
		}
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "donormatch:api:ratelimit:"+name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	s := &Server{
		app:            cfg.App,
		trusted:        trusted,
		allowedOrigins: cfg.AllowedOrigins,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 20 * 1024 * 1024
	}
	if s.signupLimiter, err = newLimiter("signup", cfg.SignupRateLimitPerMinute, 5); err != nil {
		return nil, err
	}
	if s.loginLimiter, err = newLimiter("login", cfg.LoginRateLimitPerMinute, 10); err != nil {
		return nil, err
	}
	if s.refreshLimiter, err = newLimiter("refresh", 0, 20); err != nil {
		return nil, err
	}
	if s.chatLimiter, err = newLimiter("chat", cfg.ChatRateLimitPerMinute, 30); err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Close releases the rate limiter connections.
func (s *Server) Close() error {
	return errors.Join(
		s.signupLimiter.Close(),
		s.loginLimiter.Close(),
		s.refreshLimiter.Close(),
		s.chatLimiter.Close(),
	)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(util.WithRequestID)
	r.Use(func(next http.Handler) http.Handler { return util.WithRequestLog("api", next) })
	r.Use(chiMiddleware.Recoverer)
	r.Use(util.WithSecurityHeaders)
	r.Use(util.WithCORS(s.allowedOrigins))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeError(w, http.StatusNotFound, "not found") })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { methodNotAllowed(w) })

	r.Get("/healthz", s.handleHealth)

	// auth
	r.Post("/api/auth/signup", s.handleSignup)
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/refresh", s.handleRefresh)
	r.Post("/api/auth/logout", s.handleLogout)
	r.Get("/api/auth/jwks", s.handleJWKS)
	r.Get("/.well-known/jwks.json", s.handleJWKS)
	r.Get("/api/users/me", s.authenticated(s.handleMe))

	// public share links
	r.Get("/api/shared/{token}", s.handleSharedBoard)

	// donors
	donor := []domain.UserRole{domain.RoleDonor}
	r.Get("/api/chat", s.withRoles(donor, s.handleGetChat))
	r.Post("/api/chat", s.withRoles(donor, s.handlePostChat))
	r.Get("/api/profile", s.withRoles(donor, s.handleGetProfile))
	r.Patch("/api/profile", s.withRoles(donor, s.handleUpdateProfile))
	r.Post("/api/profile/share-token", s.withRoles(donor, s.handleRotateShareToken))
	r.Delete("/api/profile/share-token", s.withRoles(donor, s.handleRevokeShareToken))
	r.Get("/api/peers", s.withRoles(donor, s.handlePeers))
	r.Get("/api/opportunities", s.withRoles(donor, s.handleListOpportunities))
	r.Get("/api/opportunities/{key}", s.withRoles(donor, s.handleGetOpportunity))
	r.Post("/api/opportunities/{key}/actions", s.withRoles(donor, s.handleRecordAction))
	r.Get("/api/pipeline", s.withRoles(donor, s.handlePipeline))
	r.Get("/api/grants", s.withRoles(donor, s.handleMyGrants))

	// requestors
	requestor := []domain.UserRole{domain.RoleRequestor}
	r.Post("/api/submissions", s.withRoles(requestor, s.handleCreateSubmission))
	r.Get("/api/submissions", s.withRoles(requestor, s.handleListMySubmissions))
	r.Get("/api/submissions/{id}", s.withRoles(requestor, s.handleGetSubmission))
	r.Get("/api/submissions/{id}/attachment", s.authenticated(s.handleAttachmentURL))
	r.Post("/api/opportunities/{key}/info", s.withRoles(requestor, s.handleRespondInfo))

	// admin
	admin := []domain.UserRole{domain.RoleAdmin}
	r.Get("/api/admin/requests", s.withRoles(admin, s.handleAdminListRequests))
	r.Post("/api/admin/requests", s.withRoles(admin, s.handleAdminCreateRequest))
	r.Patch("/api/admin/requests/{id}", s.withRoles(admin, s.handleAdminUpdateRequest))
	r.Delete("/api/admin/requests/{id}", s.withRoles(admin, s.handleAdminArchiveRequest))
	r.Get("/api/admin/submissions", s.withRoles(admin, s.handleAdminListSubmissions))
	r.Patch("/api/admin/submissions/{id}", s.withRoles(admin, s.handleAdminEditSubmission))
	r.Post("/api/admin/submissions/{id}/review", s.withRoles(admin, s.handleAdminReviewSubmission))
	r.Get("/api/admin/users", s.withRoles(admin, s.handleAdminListUsers))
	r.Patch("/api/admin/users/{id}", s.withRoles(admin, s.handleAdminUpdateUser))
	r.Get("/api/admin/grants", s.withRoles(admin, s.handleAdminListGrants))

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	}
}

// withRoles admits the listed roles. Admins are always admitted.
func (s *Server) withRoles(roles []domain.UserRole, next authHandler) http.HandlerFunc {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if user.Role != domain.RoleAdmin && !hasRole(roles, user.Role) {
			s.audit(r, "api.role.authorize", "fail", "user_id", user.ID, "role", user.Role)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	user, ok := s.app.UserFromToken(token)
	if !ok {
		s.audit(r, "api.token.verify", "fail")
		return domain.User{}, false
	}
	return user, true
}

func hasRole(roles []domain.UserRole, role domain.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"client_ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("audit", logAttrs...)
		return
	}
	logger.Warn("audit", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, key, msg string) bool {
	ok, retryAfter := limiter.Allow(r.Context(), key)
	if ok {
		return true
	}
	seconds := int(retryAfter.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) clientKey(r *http.Request) string {
	return util.ClientIP(r, s.trusted)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps app errors to responses. Unknown errors are logged and
// reported as internal.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrUserDisabled):
		writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrActionNotAllowed),
		errors.Is(err, app.ErrSubmissionAlreadyFinal),
		errors.Is(err, app.ErrNoInfoRequest):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrOptInRequired),
		errors.Is(err, app.ErrCannotChangeOwnRole),
		errors.Is(err, app.ErrCannotDisableSelf):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrUnsupportedAttachment):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrInvalidStatus),
		errors.Is(err, app.ErrRefreshTokenRequired),
		errors.Is(err, app.ErrMessageRequired),
		errors.Is(err, app.ErrMessageTooLong),
		errors.Is(err, app.ErrInvalidAction),
		errors.Is(err, app.ErrDonorIDRequired),
		errors.Is(err, app.ErrSummaryRequired),
		errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrInvalidDecision),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, auth.ErrPasswordWeak):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request_failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == strings.ToLower(app.ErrInvalidCredentials.Error()):
		return "AUTH_INVALID_CREDENTIALS"
	case message == app.ErrInvalidRefreshToken.Error():
		return "AUTH_INVALID_REFRESH_TOKEN"
	case message == app.ErrEmailAlreadyExists.Error():
		return "AUTH_EMAIL_EXISTS"
	case strings.HasPrefix(message, "password"):
		return "AUTH_WEAK_PASSWORD"
	case strings.HasPrefix(message, "too many"):
		return "RATE_LIMITED"
	case message == app.ErrActionNotAllowed.Error(), message == app.ErrInvalidAction.Error():
		return "WORKFLOW_INVALID_ACTION"
	case message == app.ErrNoInfoRequest.Error():
		return "WORKFLOW_NO_INFO_REQUEST"
	case message == app.ErrOptInRequired.Error():
		return "PROFILE_OPT_IN_REQUIRED"
	case message == app.ErrUnsupportedAttachment.Error():
		return "SUBMISSION_UNSUPPORTED_ATTACHMENT"
	case message == app.ErrSummaryRequired.Error():
		return "SUBMISSION_SUMMARY_REQUIRED"
	case message == app.ErrInvalidAmount.Error():
		return "REQUEST_INVALID_AMOUNT"
	case message == app.ErrSubmissionAlreadyFinal.Error():
		return "SUBMISSION_ALREADY_REVIEWED"
	case message == "file too large":
		return "SUBMISSION_FILE_TOO_LARGE"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
