package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusops/campusops/internal/academicyear"
	"github.com/campusops/campusops/internal/shared"
)

const refIDAttempts = 3

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, e Emergency, media *Media) (Emergency, error)
	Get(ctx context.Context, id int64) (Emergency, error)
	GetMedia(ctx context.Context, id int64) (Media, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	ListByOwner(ctx context.Context, ownerID int64) ([]Emergency, error)
	ListAll(ctx context.Context) ([]Emergency, error)
}

// YearPort resolves the active academic year.
type YearPort interface {
	GetActive(ctx context.Context) (academicyear.AcademicYear, error)
}

// AuditPort records administrative actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportsPort drops cached summaries after a mutation. May be nil.
type ReportsPort interface {
	Invalidate(ctx context.Context) error
}

// Service owns emergency funding requests.
type Service struct {
	repo    RepositoryPort
	years   YearPort
	audit   AuditPort
	reports ReportsPort
}

// NewService constructs the emergency service.
func NewService(repo RepositoryPort, years YearPort, audit AuditPort, reports ReportsPort) *Service {
	return &Service{repo: repo, years: years, audit: audit, reports: reports}
}

// CreateInput carries a new emergency request. Media is optional.
type CreateInput struct {
	Title       string
	Description string
	Amount      float64
	Media       *Media
}

// Create files an emergency request against the currently active
// academic year.
func (s *Service) Create(ctx context.Context, principal shared.Principal, in CreateInput) (Emergency, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Emergency{}, fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Description) == "" {
		return Emergency{}, fmt.Errorf("%w: description is required", shared.ErrValidation)
	}
	if in.Amount <= 0 {
		return Emergency{}, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	if in.Media != nil {
		if len(in.Media.Data) == 0 {
			return Emergency{}, fmt.Errorf("%w: media file is empty", shared.ErrValidation)
		}
		if len(in.Media.Data) > MaxMediaBytes {
			return Emergency{}, fmt.Errorf("%w: media file exceeds %d bytes", shared.ErrValidation, MaxMediaBytes)
		}
		if in.Media.ContentType == "" {
			return Emergency{}, fmt.Errorf("%w: media content type is required", shared.ErrValidation)
		}
	}

	year, err := s.years.GetActive(ctx)
	if err != nil {
		return Emergency{}, err
	}

	e := Emergency{
		Title:          title,
		Description:    in.Description,
		Amount:         in.Amount,
		OwnerID:        principal.UserID,
		AcademicYearID: year.ID,
		HasMedia:       in.Media != nil,
		Status:         StatusPending,
	}
	for attempt := 0; attempt < refIDAttempts; attempt++ {
		e.RefID = shared.RefID("EMR", time.Now())
		created, err := s.repo.Insert(ctx, e, in.Media)
		if err == nil {
			s.recordAudit(ctx, principal, "EMERGENCY_CREATE", created.ID, map[string]any{"ref": created.RefID, "amount": created.Amount})
			s.dropReports(ctx)
			return created, nil
		}
		if !errors.Is(err, shared.ErrDuplicate) {
			return Emergency{}, err
		}
	}
	return Emergency{}, fmt.Errorf("%w: could not allocate emergency reference", shared.ErrDuplicate)
}

// SetStatus applies an admin decision directly.
func (s *Service) SetStatus(ctx context.Context, principal shared.Principal, id int64, status Status) (Emergency, error) {
	if !principal.IsAdmin() {
		return Emergency{}, fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	if !ValidStatus(status) {
		return Emergency{}, fmt.Errorf("%w: unknown emergency status %q", shared.ErrValidation, status)
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return Emergency{}, err
	}
	s.recordAudit(ctx, principal, "EMERGENCY_SET_STATUS", id, map[string]any{"status": string(status)})
	s.dropReports(ctx)
	return s.repo.Get(ctx, id)
}

// Get returns an emergency visible to the caller: its owner or an admin.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (Emergency, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return Emergency{}, err
	}
	if e.OwnerID != principal.UserID && !principal.IsAdmin() {
		return Emergency{}, fmt.Errorf("%w: not the emergency owner", shared.ErrForbidden)
	}
	return e, nil
}

// GetMedia returns the attached document. Any authenticated user may
// fetch it.
func (s *Service) GetMedia(ctx context.Context, id int64) (Media, error) {
	return s.repo.GetMedia(ctx, id)
}

// ListMine returns the caller's emergencies, newest first.
func (s *Service) ListMine(ctx context.Context, principal shared.Principal) ([]Emergency, error) {
	return s.repo.ListByOwner(ctx, principal.UserID)
}

// ListAll returns every emergency. Admin only.
func (s *Service) ListAll(ctx context.Context, principal shared.Principal) ([]Emergency, error) {
	if !principal.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	return s.repo.ListAll(ctx)
}

func (s *Service) dropReports(ctx context.Context) {
	if s.reports == nil {
		return
	}
	_ = s.reports.Invalidate(ctx)
}

func (s *Service) recordAudit(ctx context.Context, principal shared.Principal, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: principal.UserID, Action: action, Entity: "emergency", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
