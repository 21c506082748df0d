package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"atelier/api/internal/auth"
	"atelier/api/internal/blueprint"
	"atelier/api/internal/config"
	"atelier/api/internal/diffview"
	"atelier/api/internal/email"
	"atelier/api/internal/export"
	"atelier/api/internal/search"
	"atelier/api/internal/store"
	"atelier/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	JTI       string
	ExpiresAt time.Time
}

type AddStakeholderInput struct {
	Role  string `json:"role"`
	Email string `json:"email"`
}

type UpdateStakeholderInput struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// Progress is the approval roll-up for a workshop. Percent is 0 when no
// stakeholders exist, and FullyApproved requires at least one stakeholder.
type Progress struct {
	Approved      int  `json:"approved"`
	Total         int  `json:"total"`
	Percent       int  `json:"percent"`
	FullyApproved bool `json:"fullyApproved"`
}

var allowedStakeholderStatuses = map[string]struct{}{
	store.StatusPending: {},
	store.StatusYes:     {},
	store.StatusNo:      {},
}

type dataStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	InsertWorkshop(context.Context, store.Workshop) error
	GetWorkshop(context.Context, string) (store.Workshop, error)
	GetWorkshopByShareID(context.Context, string) (store.Workshop, error)
	ListWorkshops(context.Context) ([]store.Workshop, error)
	SaveVersion(context.Context, string, blueprint.Blueprint) (store.BlueprintVersion, error)
	GetVersion(context.Context, string, int64) (store.BlueprintVersion, error)
	ListVersions(context.Context, string) ([]store.VersionMeta, error)
	InsertStakeholder(context.Context, store.Stakeholder) error
	UpdateStakeholderStatus(context.Context, string, string, string, string) (bool, error)
	DeleteStakeholder(context.Context, string, string) error
	ListStakeholders(context.Context, string) ([]store.Stakeholder, error)
	ApprovalCounts(context.Context, string) (int, int, error)
	UpsertSharePasscode(context.Context, string, string) error
	GetShareLink(context.Context, string) (store.ShareLink, error)
	RevokeShareLink(context.Context, string) error
	IncrementShareAccess(context.Context, string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	search *search.Service
	export *export.Service
	email  *email.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service, exportService *export.Service, emailService *email.Service) *Service {
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		search: searchService,
		export: exportService,
		email:  emailService,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GuestSignIn provisions (or reuses) a user for the display name and issues
// a bearer token for it.
func (s *Service) GuestSignIn(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "Guest"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, persistenceError("could not provision user")
	}

	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) CreateWorkshop(ctx context.Context, session Session, name string) (store.Workshop, error) {
	if session.UserID == "" {
		return store.Workshop{}, authError("sign in to create a workshop")
	}

	workshopName := strings.TrimSpace(name)
	if workshopName == "" {
		return store.Workshop{}, validationError("workshop name is required", nil)
	}

	workshop := store.Workshop{
		ID:      util.NewID("ws"),
		OwnerID: session.UserID,
		ShareID: util.NewShareID(),
		Name:    workshopName,
	}
	if err := s.store.InsertWorkshop(ctx, workshop); err != nil {
		return store.Workshop{}, persistenceError("could not create workshop")
	}

	s.indexWorkshop(workshop)
	return workshop, nil
}

func (s *Service) ListWorkshops(ctx context.Context) ([]store.Workshop, error) {
	workshops, err := s.store.ListWorkshops(ctx)
	if err != nil {
		return nil, persistenceError("could not list workshops")
	}
	return workshops, nil
}

func (s *Service) GetWorkshop(ctx context.Context, workshopID string) (store.Workshop, error) {
	workshop, err := s.store.GetWorkshop(ctx, workshopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Workshop{}, notFoundError("workshop not found")
		}
		return store.Workshop{}, persistenceError("could not load workshop")
	}
	return workshop, nil
}

// JoinByShareID resolves a share token to its workshop, enforcing the
// optional passcode and recording the access. A revoked link behaves as if
// the token never existed.
func (s *Service) JoinByShareID(ctx context.Context, shareID, passcode string) (store.Workshop, error) {
	workshop, err := s.store.GetWorkshopByShareID(ctx, shareID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Workshop{}, notFoundError("workshop not found")
		}
		return store.Workshop{}, persistenceError("could not load workshop")
	}

	link, err := s.store.GetShareLink(ctx, workshop.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return store.Workshop{}, persistenceError("could not load share link")
	}
	if err == nil {
		if link.RevokedAt != nil {
			return store.Workshop{}, notFoundError("workshop not found")
		}
		if link.PasscodeHash != "" {
			if bcrypt.CompareHashAndPassword([]byte(link.PasscodeHash), []byte(passcode)) != nil {
				return store.Workshop{}, forbiddenError("incorrect passcode")
			}
		}
	}

	if err := s.store.IncrementShareAccess(ctx, workshop.ID); err != nil {
		log.Printf("share access count for %s: %v", workshop.ID, err)
	}
	return workshop, nil
}

// ShareableLink is the URL a facilitator hands out. It embeds the share
// token, never the workshop ID.
func (s *Service) ShareableLink(workshop store.Workshop) string {
	return fmt.Sprintf("%s/workshop?id=%s", strings.TrimRight(s.cfg.PublicOrigin, "/"), workshop.ShareID)
}

func (s *Service) SetSharePasscode(ctx context.Context, session Session, workshopID, passcode string) error {
	workshop, err := s.GetWorkshop(ctx, workshopID)
	if err != nil {
		return err
	}
	if workshop.OwnerID != session.UserID {
		return forbiddenError("only the workshop owner can manage sharing")
	}
	if strings.TrimSpace(passcode) == "" {
		return validationError("passcode is required", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.store.UpsertSharePasscode(ctx, workshop.ID, string(hash)); err != nil {
		return persistenceError("could not set passcode")
	}
	return nil
}

func (s *Service) RevokeShare(ctx context.Context, session Session, workshopID string) error {
	workshop, err := s.GetWorkshop(ctx, workshopID)
	if err != nil {
		return err
	}
	if workshop.OwnerID != session.UserID {
		return forbiddenError("only the workshop owner can manage sharing")
	}
	if err := s.store.RevokeShareLink(ctx, workshop.ID); err != nil {
		return persistenceError("could not revoke share link")
	}
	return nil
}

// SaveBlueprint appends a new immutable version and moves the workshop's
// current content forward. The returned version carries the sequence number
// the database assigned.
func (s *Service) SaveBlueprint(ctx context.Context, session Session, workshopID string, bp blueprint.Blueprint) (store.BlueprintVersion, error) {
	if session.UserID == "" {
		return store.BlueprintVersion{}, authError("sign in to save")
	}
	if err := bp.Validate(); err != nil {
		return store.BlueprintVersion{}, validationError(err.Error(), nil)
	}

	workshop, err := s.GetWorkshop(ctx, workshopID)
	if err != nil {
		return store.BlueprintVersion{}, err
	}

	version, err := s.store.SaveVersion(ctx, workshop.ID, bp)
	if err != nil {
		return store.BlueprintVersion{}, persistenceError("could not save blueprint version")
	}

	workshop.CurrentContent = &bp
	s.indexWorkshop(workshop)
	return version, nil
}

func (s *Service) ListVersions(ctx context.Context, workshopID string) ([]store.VersionMeta, error) {
	if _, err := s.GetWorkshop(ctx, workshopID); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, workshopID)
	if err != nil {
		return nil, persistenceError("could not list versions")
	}
	return versions, nil
}

// DiffVersions compares two stored versions block by block.
func (s *Service) DiffVersions(ctx context.Context, workshopID string, oldSeq, newSeq int64) (diffview.Comparison, error) {
	if oldSeq < 1 || newSeq < 1 {
		return diffview.Comparison{}, validationError("version numbers start at 1", nil)
	}

	oldVersion, err := s.store.GetVersion(ctx, workshopID, oldSeq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return diffview.Comparison{}, notFoundError(fmt.Sprintf("version %d not found", oldSeq))
		}
		return diffview.Comparison{}, persistenceError("could not load version")
	}
	newVersion, err := s.store.GetVersion(ctx, workshopID, newSeq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return diffview.Comparison{}, notFoundError(fmt.Sprintf("version %d not found", newSeq))
		}
		return diffview.Comparison{}, persistenceError("could not load version")
	}

	return diffview.Compare(oldSeq, newSeq, oldVersion.Content, newVersion.Content), nil
}

func (s *Service) AddStakeholder(ctx context.Context, session Session, workshopID string, input AddStakeholderInput) (store.Stakeholder, error) {
	if session.UserID == "" {
		return store.Stakeholder{}, authError("sign in to add stakeholders")
	}
	role := strings.TrimSpace(input.Role)
	if role == "" {
		return store.Stakeholder{}, validationError("stakeholder role is required", nil)
	}

	workshop, err := s.GetWorkshop(ctx, workshopID)
	if err != nil {
		return store.Stakeholder{}, err
	}

	stakeholder := store.Stakeholder{
		ID:         util.NewID("stk"),
		WorkshopID: workshop.ID,
		Role:       role,
		Email:      strings.TrimSpace(input.Email),
		Status:     store.StatusPending,
	}
	if err := s.store.InsertStakeholder(ctx, stakeholder); err != nil {
		return store.Stakeholder{}, persistenceError("could not add stakeholder")
	}

	if stakeholder.Email != "" && s.email != nil && s.email.IsConfigured() {
		go func(to, role, name, url string) {
			if err := s.email.SendApprovalRequestEmail(to, role, name, url); err != nil {
				log.Printf("approval request email to %s: %v", to, err)
			}
		}(stakeholder.Email, stakeholder.Role, workshop.Name, s.ShareableLink(workshop))
	}
	return stakeholder, nil
}

func (s *Service) UpdateStakeholder(ctx context.Context, session Session, workshopID, stakeholderID string, input UpdateStakeholderInput) error {
	if session.UserID == "" {
		return authError("sign in to record approvals")
	}
	if _, ok := allowedStakeholderStatuses[input.Status]; !ok {
		return validationError("status must be one of pending, yes, no", map[string]any{"status": input.Status})
	}

	found, err := s.store.UpdateStakeholderStatus(ctx, workshopID, stakeholderID, input.Status, input.Comment)
	if err != nil {
		return persistenceError("could not update stakeholder")
	}
	if !found {
		return notFoundError("stakeholder not found")
	}
	return nil
}

// RemoveStakeholder deletes the stakeholder if present. Removing an unknown
// ID is not an error, so retried deletes stay quiet.
func (s *Service) RemoveStakeholder(ctx context.Context, session Session, workshopID, stakeholderID string) error {
	if session.UserID == "" {
		return authError("sign in to manage stakeholders")
	}
	if err := s.store.DeleteStakeholder(ctx, workshopID, stakeholderID); err != nil {
		return persistenceError("could not remove stakeholder")
	}
	return nil
}

func (s *Service) ListStakeholders(ctx context.Context, workshopID string) ([]store.Stakeholder, error) {
	stakeholders, err := s.store.ListStakeholders(ctx, workshopID)
	if err != nil {
		return nil, persistenceError("could not list stakeholders")
	}
	return stakeholders, nil
}

func (s *Service) ApprovalProgress(ctx context.Context, workshopID string) (Progress, error) {
	approved, total, err := s.store.ApprovalCounts(ctx, workshopID)
	if err != nil {
		return Progress{}, persistenceError("could not compute progress")
	}

	progress := Progress{Approved: approved, Total: total}
	if total > 0 {
		progress.Percent = approved * 100 / total
		progress.FullyApproved = approved == total
	}
	return progress, nil
}

func (s *Service) ExportBlueprint(ctx context.Context, workshopID string, format export.Format) (*export.Result, error) {
	workshop, err := s.GetWorkshop(ctx, workshopID)
	if err != nil {
		return nil, err
	}
	if workshop.CurrentContent == nil {
		return nil, validationError("workshop has no blueprint to export", nil)
	}

	approved, total, err := s.store.ApprovalCounts(ctx, workshop.ID)
	if err != nil {
		return nil, persistenceError("could not compute progress")
	}

	return s.export.Render(export.Input{
		WorkshopName: workshop.Name,
		Blueprint:    *workshop.CurrentContent,
		Approved:     approved,
		Total:        total,
	}, format)
}

func (s *Service) SearchWorkshops(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) indexWorkshop(workshop store.Workshop) {
	if s.search == nil {
		return
	}
	record := search.WorkshopRecord{
		ID:   workshop.ID,
		Name: workshop.Name,
	}
	if bp := workshop.CurrentContent; bp != nil {
		record.Title = bp.Title
		record.Objectives = strings.Join(bp.Objectives, "\n")
		record.Context = bp.MeetingContext
	}
	s.search.IndexWorkshop(record)
}
