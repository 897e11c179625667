package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"donormatch/pkg/domain"
	"donormatch/services/api/internal/app"
)

type submissionRequest struct {
	Title           string `json:"title"`
	Summary         string `json:"summary"`
	OrgName         string `json:"orgName"`
	OrgEmail        string `json:"orgEmail"`
	VideoURL        string `json:"videoUrl"`
	AmountRequested *int64 `json:"amountRequested"`
}

type infoResponseRequest struct {
	DonorID string `json:"donorId"`
	Note    string `json:"note"`
}

// handleCreateSubmission accepts JSON, or multipart/form-data with an
// optional "attachment" file.
func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request, user domain.User) {
	var (
		req submissionRequest
		att *app.Attachment
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var ok bool
		req, att, ok = s.parseSubmissionForm(w, r)
		if !ok {
			return
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := s.app.CreateSubmission(r.Context(), user, app.SubmissionInput{
		Title:           req.Title,
		Summary:         req.Summary,
		OrgName:         req.OrgName,
		OrgEmail:        req.OrgEmail,
		VideoURL:        req.VideoURL,
		AmountRequested: req.AmountRequested,
	}, att)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) parseSubmissionForm(w http.ResponseWriter, r *http.Request) (submissionRequest, *app.Attachment, bool) {
	if r.ContentLength > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return submissionRequest{}, nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return submissionRequest{}, nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return submissionRequest{}, nil, false
	}
	req := submissionRequest{
		Title:    r.FormValue("title"),
		Summary:  r.FormValue("summary"),
		OrgName:  r.FormValue("orgName"),
		OrgEmail: r.FormValue("orgEmail"),
		VideoURL: r.FormValue("videoUrl"),
	}
	if raw := strings.TrimSpace(r.FormValue("amountRequested")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid amountRequested")
			return submissionRequest{}, nil, false
		}
		req.AmountRequested = &n
	}
	file, header, err := r.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return submissionRequest{}, nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return submissionRequest{}, nil, false
	}
	return req, &app.Attachment{Filename: header.Filename, Data: data}, true
}

func (s *Server) handleListMySubmissions(w http.ResponseWriter, r *http.Request, user domain.User) {
	subs, err := s.app.ListMySubmissions(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, subs)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request, user domain.User) {
	view, err := s.app.GetSubmission(user, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAttachmentURL(w http.ResponseWriter, r *http.Request, user domain.User) {
	url, filename, err := s.app.AttachmentURL(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      url,
		"filename": filename,
	})
}

func (s *Server) handleRespondInfo(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req infoResponseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.RespondToInfoRequest(r.Context(), user, chi.URLParam(r, "key"), app.InfoResponse{
		DonorID: req.DonorID,
		Note:    req.Note,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
