package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"donormatch/pkg/domain"
	"donormatch/pkg/submission"
	"donormatch/pkg/vision"
)

const migrateLockID int64 = 51850117

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&ChatMessageModel{},
			&DonorProfileModel{},
			&FundingRequestModel{},
			&SubmissionModel{},
			&OpportunityEventModel{},
			&OpportunityStateModel{},
			&GrantModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "password_hash", "role", "status", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if notFound(err) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// AppendChatMessage records a chat turn.
func (s *GormStore) AppendChatMessage(msg domain.ChatMessage) error {
	model := ChatMessageModel(msg)
	return s.db.Create(&model).Error
}

// ListChatMessages returns the newest limit messages, oldest first.
func (s *GormStore) ListChatMessages(donorID string, limit int) ([]domain.ChatMessage, error) {
	query := s.db.Where("donor_id = ?", donorID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []ChatMessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, domain.ChatMessage(models[i]))
	}
	return msgs, nil
}

// ListChatDonorIDs returns every donor with at least one chat message.
func (s *GormStore) ListChatDonorIDs() ([]string, error) {
	var ids []string
	if err := s.db.Model(&ChatMessageModel{}).Distinct("donor_id").Order("donor_id").Pluck("donor_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveProfile upserts the donor profile.
func (s *GormStore) SaveProfile(p domain.DonorProfile) error {
	model, err := profileToModel(p)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "donor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vision", "board", "donor_to_donor_opt_in", "collab_settings", "share_token", "updated_at"}),
	}).Create(&model).Error
}

// GetProfile loads a donor profile.
func (s *GormStore) GetProfile(donorID string) (domain.DonorProfile, bool, error) {
	return s.getProfile("donor_id = ?", donorID)
}

// GetProfileByShareToken resolves a public board link.
func (s *GormStore) GetProfileByShareToken(token string) (domain.DonorProfile, bool, error) {
	if strings.TrimSpace(token) == "" {
		return domain.DonorProfile{}, false, nil
	}
	return s.getProfile("share_token = ?", token)
}

func (s *GormStore) getProfile(cond string, arg any) (domain.DonorProfile, bool, error) {
	var model DonorProfileModel
	if err := s.db.Where(cond, arg).First(&model).Error; err != nil {
		if notFound(err) {
			return domain.DonorProfile{}, false, nil
		}
		return domain.DonorProfile{}, false, err
	}
	return profileFromModel(model), true, nil
}

// ListOptedInProfiles returns donors who allow donor-to-donor contact.
func (s *GormStore) ListOptedInProfiles() ([]domain.DonorProfile, error) {
	var models []DonorProfileModel
	if err := s.db.Where("donor_to_donor_opt_in = ?", true).Order("donor_id").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.DonorProfile, 0, len(models))
	for _, m := range models {
		out = append(out, profileFromModel(m))
	}
	return out, nil
}

// SaveRequest upserts a curated request.
func (s *GormStore) SaveRequest(r domain.FundingRequest) error {
	model := requestToModel(r)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "org_name", "summary", "cause", "geo", "amount", "urgency", "status", "updated_at"}),
	}).Create(&model).Error
}

// GetRequest loads a curated request.
func (s *GormStore) GetRequest(id string) (domain.FundingRequest, bool, error) {
	var model FundingRequestModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return domain.FundingRequest{}, false, nil
		}
		return domain.FundingRequest{}, false, err
	}
	return requestFromModel(model), true, nil
}

// ListRequests returns curated requests, oldest first.
func (s *GormStore) ListRequests(includeArchived bool) ([]domain.FundingRequest, error) {
	tx := s.db.Order("created_at ASC").Order("id ASC")
	if !includeArchived {
		tx = tx.Where("status <> ?", string(domain.RequestArchived))
	}
	var models []FundingRequestModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.FundingRequest, 0, len(models))
	for _, m := range models {
		out = append(out, requestFromModel(m))
	}
	return out, nil
}

// SaveSubmission upserts a submission.
func (s *GormStore) SaveSubmission(sub domain.Submission) error {
	model := submissionToModel(sub)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "summary", "org_name", "org_email", "video_url", "amount_requested",
			"attachment_key", "attachment_name", "attachment_text", "signals", "status", "review_note", "updated_at",
		}),
	}).Create(&model).Error
}

// GetSubmission loads a submission.
func (s *GormStore) GetSubmission(id string) (domain.Submission, bool, error) {
	var model SubmissionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return domain.Submission{}, false, nil
		}
		return domain.Submission{}, false, err
	}
	return submissionFromModel(model), true, nil
}

// ListSubmissions returns submissions with the given status, oldest first.
func (s *GormStore) ListSubmissions(status domain.SubmissionStatus) ([]domain.Submission, error) {
	if status == "" {
		return s.listSubmissions()
	}
	return s.listSubmissions("status = ?", string(status))
}

// ListSubmissionsByRequestor returns one organization user's submissions.
func (s *GormStore) ListSubmissionsByRequestor(requestorID string) ([]domain.Submission, error) {
	return s.listSubmissions("requestor_id = ?", requestorID)
}

func (s *GormStore) listSubmissions(conds ...any) ([]domain.Submission, error) {
	var models []SubmissionModel
	tx := s.db.Order("created_at ASC").Order("id ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Submission, 0, len(models))
	for _, m := range models {
		out = append(out, submissionFromModel(m))
	}
	return out, nil
}

// RecordEvent appends ev and moves the state snapshot in one transaction.
func (s *GormStore) RecordEvent(ev domain.OpportunityEvent, state string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := eventToModel(ev)
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		snap := OpportunityStateModel{
			DonorID:        ev.DonorID,
			OpportunityKey: ev.OpportunityKey,
			State:          state,
			UpdatedAt:      ev.CreatedAt,
		}
		if err := upsertState(tx, snap); err != nil {
			return fmt.Errorf("update state: %w", err)
		}
		return nil
	})
}

func upsertState(tx *gorm.DB, m OpportunityStateModel) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "donor_id"}, {Name: "opportunity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(&m).Error
}

// ListEvents returns one donor's events for an opportunity in order.
func (s *GormStore) ListEvents(donorID, opportunityKey string) ([]domain.OpportunityEvent, error) {
	return s.listEvents("donor_id = ? AND opportunity_key = ?", donorID, opportunityKey)
}

// ListEventsByOpportunity returns every donor's events for an opportunity.
func (s *GormStore) ListEventsByOpportunity(opportunityKey string) ([]domain.OpportunityEvent, error) {
	return s.listEvents("opportunity_key = ?", opportunityKey)
}

func (s *GormStore) listEvents(cond string, args ...any) ([]domain.OpportunityEvent, error) {
	var models []OpportunityEventModel
	if err := s.db.Where(cond, args...).Order("created_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OpportunityEvent, 0, len(models))
	for _, m := range models {
		out = append(out, eventFromModel(m))
	}
	return out, nil
}

// GetState loads the snapshot for a donor/opportunity pair.
func (s *GormStore) GetState(donorID, opportunityKey string) (domain.OpportunityState, bool, error) {
	var model OpportunityStateModel
	if err := s.db.First(&model, "donor_id = ? AND opportunity_key = ?", donorID, opportunityKey).Error; err != nil {
		if notFound(err) {
			return domain.OpportunityState{}, false, nil
		}
		return domain.OpportunityState{}, false, err
	}
	return domain.OpportunityState(model), true, nil
}

// ListStates returns a donor's snapshots.
func (s *GormStore) ListStates(donorID string) ([]domain.OpportunityState, error) {
	return s.listStates("donor_id = ?", donorID)
}

// ListAllStates returns every snapshot.
func (s *GormStore) ListAllStates() ([]domain.OpportunityState, error) {
	return s.listStates()
}

func (s *GormStore) listStates(conds ...any) ([]domain.OpportunityState, error) {
	var models []OpportunityStateModel
	tx := s.db.Order("donor_id ASC").Order("opportunity_key ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OpportunityState, 0, len(models))
	for _, m := range models {
		out = append(out, domain.OpportunityState(m))
	}
	return out, nil
}

// SaveState overwrites a snapshot without touching the event log.
func (s *GormStore) SaveState(st domain.OpportunityState) error {
	return upsertState(s.db, OpportunityStateModel(st))
}

// SaveGrant upserts a grant.
func (s *GormStore) SaveGrant(g domain.Grant) error {
	model := grantToModel(g)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "daf_name", "status", "updated_at"}),
	}).Create(&model).Error
}

// ListGrants returns grants, newest first.
func (s *GormStore) ListGrants(donorID string) ([]domain.Grant, error) {
	var models []GrantModel
	tx := s.db.Order("created_at DESC").Order("id DESC")
	if donorID != "" {
		tx = tx.Where("donor_id = ?", donorID)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Grant, 0, len(models))
	for _, m := range models {
		out = append(out, grantFromModel(m))
	}
	return out, nil
}

// WithDonorLock locks the donor's profile row for the duration of fn.
func (s *GormStore) WithDonorLock(donorID string, fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		seed := DonorProfileModel{DonorID: donorID, UpdatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return fmt.Errorf("ensure profile row: %w", err)
		}
		var locked DonorProfileModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "donor_id = ?", donorID).Error; err != nil {
			return fmt.Errorf("lock profile row: %w", err)
		}
		return fn(&GormStore{db: tx})
	})
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func profileToModel(p domain.DonorProfile) (DonorProfileModel, error) {
	v, err := json.Marshal(p.Vision)
	if err != nil {
		return DonorProfileModel{}, fmt.Errorf("encode vision: %w", err)
	}
	b, err := json.Marshal(p.Board)
	if err != nil {
		return DonorProfileModel{}, fmt.Errorf("encode board: %w", err)
	}
	c, err := json.Marshal(p.CollabSettings)
	if err != nil {
		return DonorProfileModel{}, fmt.Errorf("encode collab settings: %w", err)
	}
	var token *string
	if t := strings.TrimSpace(p.ShareToken); t != "" {
		token = &t
	}
	return DonorProfileModel{
		DonorID:           p.DonorID,
		Vision:            v,
		Board:             b,
		DonorToDonorOptIn: p.DonorToDonorOptIn,
		CollabSettings:    c,
		ShareToken:        token,
		UpdatedAt:         p.UpdatedAt,
	}, nil
}

// profileFromModel tolerates empty or damaged JSON: the vision and board
// are recomputed from chat anyway.
func profileFromModel(m DonorProfileModel) domain.DonorProfile {
	p := domain.DonorProfile{
		DonorID:           m.DonorID,
		Vision:            vision.Empty(),
		DonorToDonorOptIn: m.DonorToDonorOptIn,
		UpdatedAt:         m.UpdatedAt,
	}
	if len(m.Vision) > 0 {
		_ = json.Unmarshal(m.Vision, &p.Vision)
	}
	if p.Vision.Pillars == nil {
		p.Vision.Pillars = []string{}
	}
	if p.Vision.GeoFocus == nil {
		p.Vision.GeoFocus = []string{}
	}
	if len(m.Board) > 0 {
		_ = json.Unmarshal(m.Board, &p.Board)
	}
	if len(p.Board.Sections) == 0 {
		p.Board = vision.BuildBoard(p.Vision)
	}
	if len(m.CollabSettings) > 0 {
		_ = json.Unmarshal(m.CollabSettings, &p.CollabSettings)
	}
	if m.ShareToken != nil {
		p.ShareToken = *m.ShareToken
	}
	return p
}

func requestToModel(r domain.FundingRequest) FundingRequestModel {
	geo, _ := json.Marshal(nonNil(r.Geo))
	return FundingRequestModel{
		ID:        r.ID,
		Title:     r.Title,
		OrgName:   r.OrgName,
		Summary:   r.Summary,
		Cause:     r.Cause,
		Geo:       geo,
		Amount:    r.Amount,
		Urgency:   r.Urgency,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func requestFromModel(m FundingRequestModel) domain.FundingRequest {
	geo := []string{}
	if len(m.Geo) > 0 {
		_ = json.Unmarshal(m.Geo, &geo)
	}
	return domain.FundingRequest{
		ID:        m.ID,
		Title:     m.Title,
		OrgName:   m.OrgName,
		Summary:   m.Summary,
		Cause:     m.Cause,
		Geo:       nonNil(geo),
		Amount:    m.Amount,
		Urgency:   m.Urgency,
		Status:    domain.RequestStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func submissionToModel(sub domain.Submission) SubmissionModel {
	signals, _ := json.Marshal(sub.Signals)
	return SubmissionModel{
		ID:              sub.ID,
		RequestorID:     sub.RequestorID,
		Title:           sub.Title,
		Summary:         sub.Summary,
		OrgName:         sub.OrgName,
		OrgEmail:        sub.OrgEmail,
		VideoURL:        sub.VideoURL,
		AmountRequested: sub.AmountRequested,
		AttachmentKey:   sub.AttachmentKey,
		AttachmentName:  sub.AttachmentName,
		AttachmentText:  sub.AttachmentText,
		Signals:         signals,
		Status:          string(sub.Status),
		ReviewNote:      sub.ReviewNote,
		CreatedAt:       sub.CreatedAt,
		UpdatedAt:       sub.UpdatedAt,
	}
}

func submissionFromModel(m SubmissionModel) domain.Submission {
	signals := submission.Signals{Confidence: submission.ConfidenceDemo}
	if len(m.Signals) > 0 {
		_ = json.Unmarshal(m.Signals, &signals)
	}
	return domain.Submission{
		ID:              m.ID,
		RequestorID:     m.RequestorID,
		Title:           m.Title,
		Summary:         m.Summary,
		OrgName:         m.OrgName,
		OrgEmail:        m.OrgEmail,
		VideoURL:        m.VideoURL,
		AmountRequested: m.AmountRequested,
		AttachmentKey:   m.AttachmentKey,
		AttachmentName:  m.AttachmentName,
		AttachmentText:  m.AttachmentText,
		Signals:         signals,
		Status:          domain.SubmissionStatus(m.Status),
		ReviewNote:      m.ReviewNote,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func eventToModel(ev domain.OpportunityEvent) OpportunityEventModel {
	var meta []byte
	if len(ev.Meta) > 0 {
		meta, _ = json.Marshal(ev.Meta)
	}
	return OpportunityEventModel{
		ID:             ev.ID,
		DonorID:        ev.DonorID,
		OpportunityKey: ev.OpportunityKey,
		Type:           ev.Type,
		Meta:           meta,
		CreatedAt:      ev.CreatedAt,
	}
}

func eventFromModel(m OpportunityEventModel) domain.OpportunityEvent {
	var meta map[string]string
	if len(m.Meta) > 0 {
		_ = json.Unmarshal(m.Meta, &meta)
	}
	return domain.OpportunityEvent{
		ID:             m.ID,
		DonorID:        m.DonorID,
		OpportunityKey: m.OpportunityKey,
		Type:           m.Type,
		Meta:           meta,
		CreatedAt:      m.CreatedAt,
	}
}

func grantToModel(g domain.Grant) GrantModel {
	return GrantModel{
		ID:             g.ID,
		DonorID:        g.DonorID,
		OpportunityKey: g.OpportunityKey,
		Amount:         g.Amount,
		DAFName:        g.DAFName,
		Status:         string(g.Status),
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
}

func grantFromModel(m GrantModel) domain.Grant {
	return domain.Grant{
		ID:             m.ID,
		DonorID:        m.DonorID,
		OpportunityKey: m.OpportunityKey,
		Amount:         m.Amount,
		DAFName:        m.DAFName,
		Status:         domain.GrantStatus(m.Status),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
