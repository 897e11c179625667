package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"donormatch/internal/util"
	"donormatch/pkg/docs"
	"donormatch/pkg/domain"
	"donormatch/pkg/eventbus"
	"donormatch/pkg/storage"
	"donormatch/pkg/store"
	"donormatch/pkg/submission"
	"donormatch/pkg/workflow"
)

// SubmissionInput is what an organization sends in. Summary may be HTML.
type SubmissionInput struct {
	Title           string
	Summary         string
	OrgName         string
	OrgEmail        string
	VideoURL        string
	AmountRequested *int64
}

// Attachment is an uploaded pitch document.
type Attachment struct {
	Filename string
	Data     []byte
}

// SubmissionView is a submission with the org-facing timeline.
type SubmissionView struct {
	Submission domain.Submission `json:"submission"`
	Key        string            `json:"opportunityKey"`
	Timeline   []TimelineEntry   `json:"timeline"`
}

// InfoResponse answers a donor's request for information.
type InfoResponse struct {
	DonorID string
	Note    string
}

// CreateSubmission stores a submission with extracted signals. Attachment
// text feeds extraction but never overrides explicit fields.
func (a *App) CreateSubmission(ctx context.Context, requestor domain.User, in SubmissionInput, att *Attachment) (domain.Submission, error) {
	summary := docs.HTMLText(in.Summary)
	if summary == "" {
		return domain.Submission{}, ErrSummaryRequired
	}
	if !validAmount(in.AmountRequested) {
		return domain.Submission{}, ErrInvalidAmount
	}
	now := a.timestamp()
	sub := domain.Submission{
		ID:              util.NewID(),
		RequestorID:     requestor.ID,
		Title:           strings.TrimSpace(in.Title),
		Summary:         summary,
		OrgName:         strings.TrimSpace(in.OrgName),
		OrgEmail:        normalizeEmail(in.OrgEmail),
		VideoURL:        strings.TrimSpace(in.VideoURL),
		AmountRequested: in.AmountRequested,
		Status:          domain.SubmissionPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if sub.OrgEmail == "" {
		sub.OrgEmail = requestor.Email
	}
	if sub.Title == "" {
		sub.Title = defaultTitle(sub)
	}

	if att != nil && len(att.Data) > 0 {
		name := filepath.Base(strings.TrimSpace(att.Filename))
		text, err := docs.Text(ctx, name, att.Data)
		switch {
		case errors.Is(err, docs.ErrUnsupported):
			return domain.Submission{}, ErrUnsupportedAttachment
		case err != nil:
			util.LoggerFromContext(ctx).Warn("attachment_text_failed", "submission_id", sub.ID, "err", err)
		}
		key := storage.AttachmentKey(sub.ID, name)
		if err := a.objects.Put(ctx, key, bytes.NewReader(att.Data), int64(len(att.Data)), contentType(name)); err != nil {
			return domain.Submission{}, fmt.Errorf("save attachment: %w", err)
		}
		sub.AttachmentKey = key
		sub.AttachmentName = name
		sub.AttachmentText = text
	}

	sub.Signals = extractSignals(sub)
	if err := a.store.SaveSubmission(sub); err != nil {
		if sub.AttachmentKey != "" {
			_ = a.objects.Delete(ctx, sub.AttachmentKey)
		}
		return domain.Submission{}, fmt.Errorf("save submission: %w", err)
	}
	util.LoggerFromContext(ctx).Info("submission_created",
		"submission_id", sub.ID,
		"requestor_id", requestor.ID,
		"cause", sub.Signals.Cause,
		"has_attachment", sub.AttachmentKey != "",
	)
	return sub, nil
}

// ListMySubmissions returns the requestor's submissions.
func (a *App) ListMySubmissions(requestor domain.User) ([]domain.Submission, error) {
	subs, err := a.store.ListSubmissionsByRequestor(requestor.ID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// GetSubmission returns a submission to its owner or an admin, with every
// donor event labelled for the organization.
func (a *App) GetSubmission(user domain.User, id string) (SubmissionView, error) {
	sub, err := a.ownedSubmission(user, id)
	if err != nil {
		return SubmissionView{}, err
	}
	key := SubmissionKey(sub.ID)
	events, err := a.store.ListEventsByOpportunity(key)
	if err != nil {
		return SubmissionView{}, fmt.Errorf("list events: %w", err)
	}
	return SubmissionView{Submission: sub, Key: key, Timeline: orgTimeline(events)}, nil
}

// RespondToInfoRequest records info_received for one donor. Submissions are
// answered by their requestor, curated requests by an admin.
func (a *App) RespondToInfoRequest(ctx context.Context, user domain.User, key string, in InfoResponse) (ActionResult, error) {
	donorID := strings.TrimSpace(in.DonorID)
	if donorID == "" {
		return ActionResult{}, ErrDonorIDRequired
	}
	opp, err := a.resolveOpportunity(key, false)
	if err != nil {
		return ActionResult{}, err
	}
	if user.Role != domain.RoleAdmin && (opp.Kind != KindSubmission || opp.requestorID != user.ID) {
		return ActionResult{}, ErrForbidden
	}
	var result ActionResult
	err = a.store.WithDonorLock(donorID, func(tx store.Store) error {
		events, err := tx.ListEvents(donorID, opp.Key)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if !hasEvent(events, workflow.EventRequestInfo) {
			return ErrNoInfoRequest
		}
		st, _, err := tx.GetState(donorID, opp.Key)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		current := stateOrNew(st.State)
		if !workflow.Allowed(current, workflow.EventInfoReceived) {
			return ErrActionNotAllowed
		}
		ev := domain.OpportunityEvent{
			ID:             util.NewID(),
			DonorID:        donorID,
			OpportunityKey: opp.Key,
			Type:           workflow.EventInfoReceived,
			Meta:           actionMeta(ActionInput{Note: in.Note}),
			CreatedAt:      a.timestamp(),
		}
		next := workflow.StateAfter(current, ev.Type)
		if err := tx.RecordEvent(ev, next); err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		events = append(events, ev)
		result = ActionResult{
			Event:    ev,
			State:    next,
			Workflow: workflow.Derive(workflow.Input{State: next, Events: toWorkflowEvents(events)}),
		}
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}
	a.publish(ctx, eventbus.OpportunityEvent{
		ID:             result.Event.ID,
		DonorID:        donorID,
		OpportunityKey: opp.Key,
		Type:           result.Event.Type,
		State:          result.State,
		Stage:          result.Workflow.Stage,
		CreatedAt:      result.Event.CreatedAt,
	})
	return result, nil
}

// AttachmentURL presigns the submission's attachment for its owner, an admin,
// or any donor once the submission is approved.
func (a *App) AttachmentURL(ctx context.Context, user domain.User, id string) (string, string, error) {
	sub, found, err := a.store.GetSubmission(id)
	if err != nil {
		return "", "", fmt.Errorf("load submission: %w", err)
	}
	if !found {
		return "", "", ErrNotFound
	}
	allowed := user.Role == domain.RoleAdmin ||
		sub.RequestorID == user.ID ||
		(user.Role == domain.RoleDonor && sub.Status == domain.SubmissionApproved)
	if !allowed {
		return "", "", ErrForbidden
	}
	if sub.AttachmentKey == "" {
		return "", "", ErrNotFound
	}
	url, err := a.objects.PresignGet(ctx, sub.AttachmentKey, a.presignExpiry)
	if err != nil {
		return "", "", fmt.Errorf("presign attachment: %w", err)
	}
	return url, sub.AttachmentName, nil
}

func (a *App) ownedSubmission(user domain.User, id string) (domain.Submission, error) {
	sub, found, err := a.store.GetSubmission(id)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("load submission: %w", err)
	}
	if !found {
		return domain.Submission{}, ErrNotFound
	}
	if sub.RequestorID != user.ID && user.Role != domain.RoleAdmin {
		return domain.Submission{}, ErrForbidden
	}
	return sub, nil
}

func extractSignals(sub domain.Submission) submission.Signals {
	return submission.Extract(submission.Input{
		Title:           sub.Title,
		Summary:         sub.Summary,
		OrgName:         sub.OrgName,
		OrgEmail:        sub.OrgEmail,
		VideoURL:        sub.VideoURL,
		AmountRequested: sub.AmountRequested,
		AttachmentText:  sub.AttachmentText,
	})
}

func orgTimeline(events []domain.OpportunityEvent) []TimelineEntry {
	out := make([]TimelineEntry, 0, len(events))
	for _, ev := range events {
		out = append(out, TimelineEntry{
			ID:        ev.ID,
			Type:      ev.Type,
			Label:     workflow.HumanizeEventTypeOrg(ev.Type),
			DonorID:   ev.DonorID,
			Meta:      ev.Meta,
			CreatedAt: ev.CreatedAt,
		})
	}
	return out
}

// validAmount accepts a missing amount or a positive one.
func validAmount(amount *int64) bool {
	return amount == nil || *amount > 0
}

func hasEvent(events []domain.OpportunityEvent, eventType string) bool {
	for _, ev := range events {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}

func defaultTitle(sub domain.Submission) string {
	if sub.OrgName != "" {
		return "Funding request from " + sub.OrgName
	}
	words := strings.Fields(sub.Summary)
	if len(words) > 8 {
		words = append(words[:8], "...")
	}
	return strings.Join(words, " ")
}

func contentType(filename string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
