package app

import (
	"context"
	"fmt"
	"strings"

	"donormatch/internal/util"
	"donormatch/pkg/docs"
	"donormatch/pkg/domain"
	"donormatch/pkg/mail"
	"donormatch/pkg/submission"
	"donormatch/pkg/taxonomy"
)

// Review decisions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// RequestInput creates or replaces a curated request. Cause, geo, amount and
// urgency left empty are filled from the summary.
type RequestInput struct {
	Title   string
	OrgName string
	Summary string
	Cause   string
	Geo     []string
	Amount  *int64
	Urgency string
}

// SubmissionEdit is an admin correction. Nil fields are left alone.
type SubmissionEdit struct {
	Title           *string
	Summary         *string
	OrgName         *string
	AmountRequested *int64
}

// ListRequests returns curated requests, archived ones only when asked.
func (a *App) ListRequests(includeArchived bool) ([]domain.FundingRequest, error) {
	reqs, err := a.store.ListRequests(includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

// CreateRequest adds a curated request.
func (a *App) CreateRequest(in RequestInput) (domain.FundingRequest, error) {
	now := a.timestamp()
	req := domain.FundingRequest{
		ID:        util.NewID(),
		Status:    domain.RequestActive,
		CreatedAt: now,
	}
	if err := applyRequestInput(&req, in); err != nil {
		return domain.FundingRequest{}, err
	}
	req.UpdatedAt = now
	if err := a.store.SaveRequest(req); err != nil {
		return domain.FundingRequest{}, fmt.Errorf("save request: %w", err)
	}
	return req, nil
}

// UpdateRequest replaces the editable fields of a curated request.
func (a *App) UpdateRequest(id string, in RequestInput) (domain.FundingRequest, error) {
	req, found, err := a.store.GetRequest(id)
	if err != nil {
		return domain.FundingRequest{}, fmt.Errorf("load request: %w", err)
	}
	if !found {
		return domain.FundingRequest{}, ErrNotFound
	}
	if err := applyRequestInput(&req, in); err != nil {
		return domain.FundingRequest{}, err
	}
	req.UpdatedAt = a.timestamp()
	if err := a.store.SaveRequest(req); err != nil {
		return domain.FundingRequest{}, fmt.Errorf("save request: %w", err)
	}
	return req, nil
}

// ArchiveRequest hides a request from donors. Events recorded against it stay.
func (a *App) ArchiveRequest(id string) (domain.FundingRequest, error) {
	req, found, err := a.store.GetRequest(id)
	if err != nil {
		return domain.FundingRequest{}, fmt.Errorf("load request: %w", err)
	}
	if !found {
		return domain.FundingRequest{}, ErrNotFound
	}
	req.Status = domain.RequestArchived
	req.UpdatedAt = a.timestamp()
	if err := a.store.SaveRequest(req); err != nil {
		return domain.FundingRequest{}, fmt.Errorf("save request: %w", err)
	}
	return req, nil
}

// ListSubmissions returns submissions with status, or all for "".
func (a *App) ListSubmissions(status domain.SubmissionStatus) ([]domain.Submission, error) {
	subs, err := a.store.ListSubmissions(status)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// EditSubmission applies an admin correction and recomputes the signals.
func (a *App) EditSubmission(id string, in SubmissionEdit) (domain.Submission, error) {
	sub, found, err := a.store.GetSubmission(id)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("load submission: %w", err)
	}
	if !found {
		return domain.Submission{}, ErrNotFound
	}
	if in.Title != nil {
		if t := strings.TrimSpace(*in.Title); t != "" {
			sub.Title = t
		}
	}
	if in.Summary != nil {
		summary := docs.HTMLText(*in.Summary)
		if summary == "" {
			return domain.Submission{}, ErrSummaryRequired
		}
		sub.Summary = summary
	}
	if in.OrgName != nil {
		sub.OrgName = strings.TrimSpace(*in.OrgName)
	}
	if in.AmountRequested != nil {
		if !validAmount(in.AmountRequested) {
			return domain.Submission{}, ErrInvalidAmount
		}
		sub.AmountRequested = in.AmountRequested
	}
	sub.Signals = extractSignals(sub)
	sub.UpdatedAt = a.timestamp()
	if err := a.store.SaveSubmission(sub); err != nil {
		return domain.Submission{}, fmt.Errorf("save submission: %w", err)
	}
	return sub, nil
}

// ReviewSubmission approves or rejects a pending submission and mails the
// organization.
func (a *App) ReviewSubmission(ctx context.Context, admin domain.User, id, decision, note string) (domain.Submission, error) {
	var status domain.SubmissionStatus
	switch strings.ToLower(strings.TrimSpace(decision)) {
	case DecisionApprove:
		status = domain.SubmissionApproved
	case DecisionReject:
		status = domain.SubmissionRejected
	default:
		return domain.Submission{}, ErrInvalidDecision
	}
	sub, found, err := a.store.GetSubmission(id)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("load submission: %w", err)
	}
	if !found {
		return domain.Submission{}, ErrNotFound
	}
	if sub.Status != domain.SubmissionPending {
		return domain.Submission{}, ErrSubmissionAlreadyFinal
	}
	sub.Status = status
	sub.ReviewNote = strings.TrimSpace(note)
	sub.UpdatedAt = a.timestamp()
	if err := a.store.SaveSubmission(sub); err != nil {
		return domain.Submission{}, fmt.Errorf("save submission: %w", err)
	}
	a.enqueueMail(ctx, mail.Request{
		To:       sub.OrgEmail,
		Template: mail.TemplateSubmissionReviewed,
		Data: map[string]string{
			"OrgName": sub.OrgName,
			"Title":   sub.Title,
			"Status":  string(sub.Status),
			"Note":    sub.ReviewNote,
		},
	})
	util.LoggerFromContext(ctx).Info("submission_reviewed",
		"submission_id", sub.ID,
		"admin_id", admin.ID,
		"status", sub.Status,
	)
	return sub, nil
}

func applyRequestInput(req *domain.FundingRequest, in RequestInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return ErrTitleRequired
	}
	summary := docs.HTMLText(in.Summary)
	if summary == "" {
		return ErrSummaryRequired
	}
	if !validAmount(in.Amount) {
		return ErrInvalidAmount
	}
	signals := submission.Extract(submission.Input{
		Title:           title,
		Summary:         summary,
		OrgName:         in.OrgName,
		AmountRequested: in.Amount,
	})
	req.Title = title
	req.OrgName = strings.TrimSpace(in.OrgName)
	req.Summary = summary
	req.Cause = strings.TrimSpace(in.Cause)
	if req.Cause == "" {
		req.Cause = signals.Cause
	}
	req.Geo = cleanList(in.Geo)
	if len(req.Geo) == 0 {
		req.Geo = nonNil(signals.Geo)
	}
	req.Amount = in.Amount
	if req.Amount == nil {
		req.Amount = signals.Amount
	}
	req.Urgency = strings.TrimSpace(in.Urgency)
	if req.Urgency == "" {
		req.Urgency = signals.Urgency
	}
	return nil
}

func cleanList(items []string) []string {
	out := []string{}
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = taxonomy.Dedupe(out, item)
		}
	}
	return out
}
