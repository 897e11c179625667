package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"donormatch/pkg/domain"
	"donormatch/services/api/internal/app"
)

type requestPayload struct {
	Title   string   `json:"title"`
	OrgName string   `json:"orgName"`
	Summary string   `json:"summary"`
	Cause   string   `json:"cause"`
	Geo     []string `json:"geo"`
	Amount  *int64   `json:"amount"`
	Urgency string   `json:"urgency"`
}

func (p requestPayload) input() app.RequestInput {
	return app.RequestInput{
		Title:   p.Title,
		OrgName: p.OrgName,
		Summary: p.Summary,
		Cause:   p.Cause,
		Geo:     p.Geo,
		Amount:  p.Amount,
		Urgency: p.Urgency,
	}
}

type submissionEditRequest struct {
	Title           *string `json:"title"`
	Summary         *string `json:"summary"`
	OrgName         *string `json:"orgName"`
	AmountRequested *int64  `json:"amountRequested"`
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

type adminUserUpdateRequest struct {
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (s *Server) handleAdminListRequests(w http.ResponseWriter, r *http.Request, _ domain.User) {
	includeArchived := r.URL.Query().Get("includeArchived") == "true"
	reqs, err := s.app.ListRequests(includeArchived)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, reqs)
}

func (s *Server) handleAdminCreateRequest(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var req requestPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := s.app.CreateRequest(req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAdminUpdateRequest(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var req requestPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.UpdateRequest(chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAdminArchiveRequest(w http.ResponseWriter, r *http.Request, user domain.User) {
	archived, err := s.app.ArchiveRequest(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.admin.request.archive", "success", "user_id", user.ID, "request_id", archived.ID)
	writeJSON(w, http.StatusOK, archived)
}

func (s *Server) handleAdminListSubmissions(w http.ResponseWriter, r *http.Request, _ domain.User) {
	status := domain.SubmissionStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "", domain.SubmissionPending, domain.SubmissionApproved, domain.SubmissionRejected:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	subs, err := s.app.ListSubmissions(status)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, subs)
}

func (s *Server) handleAdminEditSubmission(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var req submissionEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := s.app.EditSubmission(chi.URLParam(r, "id"), app.SubmissionEdit{
		Title:           req.Title,
		Summary:         req.Summary,
		OrgName:         req.OrgName,
		AmountRequested: req.AmountRequested,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleAdminReviewSubmission(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := s.app.ReviewSubmission(r.Context(), user, chi.URLParam(r, "id"), req.Decision, req.Note)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.admin.submission.review", "success", "user_id", user.ID, "submission_id", sub.ID, "status", sub.Status)
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	users, err := s.app.ListUsers()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, users)
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req adminUserUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var update app.UserUpdate
	if req.Role != "" {
		role, err := app.ParseRole(req.Role)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		update.Role = &role
	}
	if req.Status != "" {
		status, err := app.ParseStatus(req.Status)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		update.Status = &status
	}
	if update.Role == nil && update.Status == nil {
		writeError(w, http.StatusBadRequest, "role or status is required")
		return
	}
	id := chi.URLParam(r, "id")
	updated, err := s.app.AdminUpdateUser(user, id, update)
	if err != nil {
		s.audit(r, "api.admin.user.update", "fail", "user_id", user.ID, "target_id", id, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.admin.user.update", "success", "user_id", user.ID, "target_id", updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAdminListGrants(w http.ResponseWriter, r *http.Request, _ domain.User) {
	grants, err := s.app.ListGrants("")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, grants)
}
