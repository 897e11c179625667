package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"donormatch/internal/util"
	"donormatch/pkg/domain"
	"donormatch/pkg/eventbus"
	"donormatch/pkg/mail"
	"donormatch/pkg/match"
	"donormatch/pkg/store"
	"donormatch/pkg/workflow"
)

// Opportunity kinds.
const (
	KindRequest    = "request"
	KindSubmission = "submission"
)

const submissionKeyPrefix = "sub_"

// loadLimit caps concurrent per-opportunity store reads.
const loadLimit = 8

// Opportunity is a curated request or an approved submission as donors see it.
type Opportunity struct {
	Key            string   `json:"key"`
	Kind           string   `json:"kind"`
	Title          string   `json:"title"`
	OrgName        string   `json:"orgName,omitempty"`
	Summary        string   `json:"summary"`
	Cause          string   `json:"cause,omitempty"`
	Geo            []string `json:"geo"`
	Amount         *int64   `json:"amount,omitempty"`
	Urgency        string   `json:"urgency,omitempty"`
	VideoURL       string   `json:"videoUrl,omitempty"`
	AttachmentName string   `json:"attachmentName,omitempty"`

	orgEmail    string
	requestorID string
}

// TimelineEntry is one event with a label for the viewer.
type TimelineEntry struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Label     string            `json:"label"`
	DonorID   string            `json:"donorId,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// OpportunityDetail is an opportunity with the donor's progress on it.
type OpportunityDetail struct {
	Opportunity Opportunity     `json:"opportunity"`
	State       string          `json:"state"`
	Workflow    workflow.Result `json:"workflow"`
	Timeline    []TimelineEntry `json:"timeline"`
	Actions     []string        `json:"actions"`
}

// ActionInput is a donor pipeline action.
type ActionInput struct {
	Type    string
	Note    string
	Amount  *int64
	DAFName string
}

// ActionResult is returned after an event has been recorded.
type ActionResult struct {
	Event    domain.OpportunityEvent `json:"event"`
	State    string                  `json:"state"`
	Workflow workflow.Result         `json:"workflow"`
	Grant    *domain.Grant           `json:"grant,omitempty"`
}

// SubmissionKey returns the opportunity key of a submission.
func SubmissionKey(submissionID string) string {
	return submissionKeyPrefix + submissionID
}

// ListOpportunities ranks active requests and approved submissions against
// the donor's vision.
func (a *App) ListOpportunities(ctx context.Context, donor domain.User) ([]match.Ranked, error) {
	var (
		opps    []Opportunity
		states  []domain.OpportunityState
		profile domain.DonorProfile
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		opps, err = a.listOpportunities()
		return err
	})
	g.Go(func() error {
		var err error
		states, err = a.store.ListStates(donor.ID)
		if err != nil {
			return fmt.Errorf("list states: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		profile, err = a.GetProfile(donor)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stateByKey := make(map[string]string, len(states))
	for _, st := range states {
		stateByKey[st.OpportunityKey] = st.State
	}
	candidates := make([]match.Candidate, 0, len(opps))
	for _, o := range opps {
		state := stateByKey[o.Key]
		candidates = append(candidates, match.Candidate{
			Key:       o.Key,
			Title:     o.Title,
			OrgName:   o.OrgName,
			Cause:     o.Cause,
			Geo:       o.Geo,
			Amount:    o.Amount,
			Urgency:   o.Urgency,
			Passed:    state == workflow.StatePassed,
			Committed: state == workflow.StateFunded,
		})
	}
	return match.Rank(profile.Vision, candidates), nil
}

// GetOpportunity returns the opportunity with the donor's derived stage and
// donor-facing timeline.
func (a *App) GetOpportunity(ctx context.Context, donor domain.User, key string) (OpportunityDetail, error) {
	opp, err := a.resolveOpportunity(key, false)
	if err != nil {
		return OpportunityDetail{}, err
	}
	var (
		events []domain.OpportunityEvent
		state  domain.OpportunityState
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = a.store.ListEvents(donor.ID, opp.Key)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		st, _, err := a.store.GetState(donor.ID, opp.Key)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		state = st
		return nil
	})
	if err := g.Wait(); err != nil {
		return OpportunityDetail{}, err
	}
	current := stateOrNew(state.State)
	timeline := make([]TimelineEntry, 0, len(events))
	for _, ev := range events {
		timeline = append(timeline, TimelineEntry{
			ID:        ev.ID,
			Type:      ev.Type,
			Label:     workflow.HumanizeEventType(ev.Type),
			Meta:      ev.Meta,
			CreatedAt: ev.CreatedAt,
		})
	}
	return OpportunityDetail{
		Opportunity: opp,
		State:       current,
		Workflow:    workflow.Derive(workflow.Input{State: current, Events: toWorkflowEvents(events)}),
		Timeline:    timeline,
		Actions:     donorActions(current),
	}, nil
}

// RecordAction appends a donor event and moves the state snapshot in the same
// transaction. Committing also records a pledged grant.
func (a *App) RecordAction(ctx context.Context, donor domain.User, key string, in ActionInput) (ActionResult, error) {
	in.Type = strings.TrimSpace(in.Type)
	if !workflow.IsDonorAction(in.Type) {
		return ActionResult{}, ErrInvalidAction
	}
	if in.Type == workflow.EventCommit && !validAmount(in.Amount) {
		return ActionResult{}, ErrInvalidAmount
	}
	opp, err := a.resolveOpportunity(key, false)
	if err != nil {
		return ActionResult{}, err
	}
	var result ActionResult
	err = a.store.WithDonorLock(donor.ID, func(tx store.Store) error {
		st, _, err := tx.GetState(donor.ID, opp.Key)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		current := stateOrNew(st.State)
		if !workflow.Allowed(current, in.Type) {
			return ErrActionNotAllowed
		}
		now := a.timestamp()
		ev := domain.OpportunityEvent{
			ID:             util.NewID(),
			DonorID:        donor.ID,
			OpportunityKey: opp.Key,
			Type:           in.Type,
			Meta:           actionMeta(in),
			CreatedAt:      now,
		}
		next := workflow.StateAfter(current, in.Type)
		if err := tx.RecordEvent(ev, next); err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		if in.Type == workflow.EventCommit {
			amount := in.Amount
			if amount == nil {
				amount = opp.Amount
			}
			grant := domain.Grant{
				ID:             util.NewID(),
				DonorID:        donor.ID,
				OpportunityKey: opp.Key,
				Amount:         amount,
				DAFName:        strings.TrimSpace(in.DAFName),
				Status:         domain.GrantPledged,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.SaveGrant(grant); err != nil {
				return fmt.Errorf("save grant: %w", err)
			}
			result.Grant = &grant
		}
		events, err := tx.ListEvents(donor.ID, opp.Key)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		result.Event = ev
		result.State = next
		result.Workflow = workflow.Derive(workflow.Input{State: next, Events: toWorkflowEvents(events)})
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}

	if in.Type == workflow.EventRequestInfo {
		a.enqueueMail(ctx, mail.Request{
			To:       opp.orgEmail,
			Template: mail.TemplateInfoRequest,
			Data: map[string]string{
				"OrgName": opp.OrgName,
				"Title":   opp.Title,
				"Name":    displayName(donor),
				"Note":    result.Event.Meta["note"],
			},
		})
	}
	a.publish(ctx, eventbus.OpportunityEvent{
		ID:             result.Event.ID,
		DonorID:        donor.ID,
		OpportunityKey: opp.Key,
		Type:           result.Event.Type,
		State:          result.State,
		Stage:          result.Workflow.Stage,
		CreatedAt:      result.Event.CreatedAt,
	})
	util.LoggerFromContext(ctx).Info("opportunity_event",
		"donor_id", donor.ID,
		"opportunity_key", opp.Key,
		"type", in.Type,
		"state", result.State,
		"stage", result.Workflow.Stage,
	)
	return result, nil
}

// Pipeline groups every opportunity the donor has touched into board columns.
func (a *App) Pipeline(ctx context.Context, donor domain.User) ([]workflow.Column, error) {
	states, err := a.store.ListStates(donor.ID)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	items := make([]workflow.Item, len(states))
	keep := make([]bool, len(states))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(loadLimit)
	for i, st := range states {
		g.Go(func() error {
			opp, err := a.resolveOpportunity(st.OpportunityKey, true)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			events, err := a.store.ListEvents(donor.ID, st.OpportunityKey)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			items[i] = workflow.Item{
				OpportunityKey: st.OpportunityKey,
				Title:          opp.Title,
				Result:         workflow.Derive(workflow.Input{State: st.State, Events: toWorkflowEvents(events)}),
			}
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	kept := make([]workflow.Item, 0, len(items))
	for i, it := range items {
		if keep[i] {
			kept = append(kept, it)
		}
	}
	return workflow.BuildBoard(kept), nil
}

// ListGrants returns the donor's grants, or every grant when donorID is empty.
func (a *App) ListGrants(donorID string) ([]domain.Grant, error) {
	grants, err := a.store.ListGrants(donorID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

func (a *App) listOpportunities() ([]Opportunity, error) {
	requests, err := a.store.ListRequests(false)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	subs, err := a.store.ListSubmissions(domain.SubmissionApproved)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]Opportunity, 0, len(requests)+len(subs))
	for _, r := range requests {
		out = append(out, opportunityFromRequest(r))
	}
	for _, s := range subs {
		out = append(out, opportunityFromSubmission(s))
	}
	return out, nil
}

// resolveOpportunity finds what key points at. Archived requests and
// unapproved submissions resolve only with includeHidden, so existing
// pipeline entries keep their titles.
func (a *App) resolveOpportunity(key string, includeHidden bool) (Opportunity, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Opportunity{}, ErrNotFound
	}
	if id, ok := strings.CutPrefix(key, submissionKeyPrefix); ok {
		sub, found, err := a.store.GetSubmission(id)
		if err != nil {
			return Opportunity{}, fmt.Errorf("load submission: %w", err)
		}
		if !found || (!includeHidden && sub.Status != domain.SubmissionApproved) {
			return Opportunity{}, ErrNotFound
		}
		return opportunityFromSubmission(sub), nil
	}
	req, found, err := a.store.GetRequest(key)
	if err != nil {
		return Opportunity{}, fmt.Errorf("load request: %w", err)
	}
	if !found || (!includeHidden && req.Status != domain.RequestActive) {
		return Opportunity{}, ErrNotFound
	}
	return opportunityFromRequest(req), nil
}

func opportunityFromRequest(r domain.FundingRequest) Opportunity {
	return Opportunity{
		Key:     r.ID,
		Kind:    KindRequest,
		Title:   r.Title,
		OrgName: r.OrgName,
		Summary: r.Summary,
		Cause:   r.Cause,
		Geo:     nonNil(r.Geo),
		Amount:  r.Amount,
		Urgency: r.Urgency,
	}
}

// The extracted amount already prefers a positive AmountRequested.
func opportunityFromSubmission(s domain.Submission) Opportunity {
	return Opportunity{
		Key:            SubmissionKey(s.ID),
		Kind:           KindSubmission,
		Title:          s.Title,
		OrgName:        s.OrgName,
		Summary:        s.Summary,
		Cause:          s.Signals.Cause,
		Geo:            nonNil(s.Signals.Geo),
		Amount:         s.Signals.Amount,
		Urgency:        s.Signals.Urgency,
		VideoURL:       s.VideoURL,
		AttachmentName: s.AttachmentName,
		orgEmail:       s.OrgEmail,
		requestorID:    s.RequestorID,
	}
}

func donorActions(state string) []string {
	all := []string{
		workflow.EventSave,
		workflow.EventRequestInfo,
		workflow.EventScheduled,
		workflow.EventMeetingCompleted,
		workflow.EventLeverageCreated,
		workflow.EventDiligenceCompleted,
		workflow.EventPass,
		workflow.EventCommit,
		workflow.EventReopen,
	}
	out := make([]string, 0, len(all))
	for _, t := range all {
		if workflow.Allowed(state, t) {
			out = append(out, t)
		}
	}
	return out
}

func actionMeta(in ActionInput) map[string]string {
	meta := map[string]string{}
	if note := strings.TrimSpace(in.Note); note != "" {
		meta["note"] = note
	}
	if in.Amount != nil {
		meta["amount"] = strconv.FormatInt(*in.Amount, 10)
	}
	if daf := strings.TrimSpace(in.DAFName); daf != "" {
		meta["dafName"] = daf
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func toWorkflowEvents(events []domain.OpportunityEvent) []workflow.Event {
	out := make([]workflow.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, workflow.Event{Type: ev.Type})
	}
	return out
}

func stateOrNew(state string) string {
	if strings.TrimSpace(state) == "" {
		return workflow.StateNew
	}
	return state
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
