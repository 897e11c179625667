package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"donormatch/pkg/domain"
	"donormatch/services/api/internal/app"
)

type chatRequest struct {
	Message string `json:"message"`
}

type profileUpdateRequest struct {
	DonorToDonorOptIn *bool                  `json:"donorToDonorOptIn"`
	CollabSettings    *domain.CollabSettings `json:"collabSettings"`
}

type actionRequest struct {
	Type    string `json:"type"`
	Note    string `json:"note"`
	Amount  *int64 `json:"amount"`
	DAFName string `json:"dafName"`
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	view, err := s.app.GetChat(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePostChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.chatLimiter, user.ID, "too many chat messages") {
		s.audit(r, "api.chat", "rate_limited", "user_id", user.ID)
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.PostChatTurn(r.Context(), user, req.Message)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	profile, err := s.app.GetProfile(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req profileUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DonorToDonorOptIn == nil && req.CollabSettings == nil {
		writeError(w, http.StatusBadRequest, "donorToDonorOptIn or collabSettings is required")
		return
	}
	profile, err := s.app.UpdateProfile(user, app.ProfileUpdate{
		DonorToDonorOptIn: req.DonorToDonorOptIn,
		CollabSettings:    req.CollabSettings,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleRotateShareToken(w http.ResponseWriter, r *http.Request, user domain.User) {
	profile, err := s.app.RotateShareToken(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.share_token.rotate", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"shareToken": profile.ShareToken})
}

func (s *Server) handleRevokeShareToken(w http.ResponseWriter, r *http.Request, user domain.User) {
	if _, err := s.app.RevokeShareToken(user); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.share_token.revoke", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) handleSharedBoard(w http.ResponseWriter, r *http.Request) {
	board, err := s.app.SharedBoardByToken(chi.URLParam(r, "token"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request, user domain.User) {
	peers, err := s.app.Peers(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, peers)
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request, user domain.User) {
	ranked, err := s.app.ListOpportunities(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, ranked)
}

func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request, user domain.User) {
	detail, err := s.app.GetOpportunity(r.Context(), user, chi.URLParam(r, "key"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleRecordAction(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req actionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.RecordAction(r.Context(), user, chi.URLParam(r, "key"), app.ActionInput{
		Type:    req.Type,
		Note:    req.Note,
		Amount:  req.Amount,
		DAFName: req.DAFName,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request, user domain.User) {
	columns, err := s.app.Pipeline(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": columns})
}

func (s *Server) handleMyGrants(w http.ResponseWriter, r *http.Request, user domain.User) {
	grants, err := s.app.ListGrants(user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, grants)
}
