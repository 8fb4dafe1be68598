package academicyear

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campusops/campusops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, year AcademicYear) (AcademicYear, error)
	ActivateExclusive(ctx context.Context, id int64) error
	Update(ctx context.Context, year AcademicYear) error
	SoftDelete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (AcademicYear, error)
	GetActive(ctx context.Context) (AcademicYear, error)
	List(ctx context.Context) ([]AcademicYear, error)
	CountReferences(ctx context.Context, id int64) (int, error)
}

// AuditPort records administrative actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the academic year registry rules.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the registry service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes a new academic year.
type CreateInput struct {
	Label     string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
}

// Create registers a new academic year. Admin only. A duplicate label
// fails with ErrDuplicate; when IsActive is requested the new year becomes
// the single active one.
func (s *Service) Create(ctx context.Context, principal shared.Principal, input CreateInput) (AcademicYear, error) {
	if !principal.IsAdmin() {
		return AcademicYear{}, fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	input.Label = strings.TrimSpace(input.Label)
	if input.Label == "" {
		return AcademicYear{}, fmt.Errorf("%w: year label is required", shared.ErrValidation)
	}
	if !input.EndDate.After(input.StartDate) {
		return AcademicYear{}, fmt.Errorf("%w: end date must be after start date", shared.ErrValidation)
	}
	year, err := s.repo.Insert(ctx, AcademicYear{
		Label:     input.Label,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		IsActive:  input.IsActive,
	})
	if err != nil {
		return AcademicYear{}, err
	}
	s.recordAudit(ctx, principal, "YEAR_CREATE", year.ID, map[string]any{"label": year.Label, "active": year.IsActive})
	return year, nil
}

// Activate makes the target year the single active one in one atomic swap.
func (s *Service) Activate(ctx context.Context, principal shared.Principal, id int64) error {
	if !principal.IsAdmin() {
		return fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	if err := s.repo.ActivateExclusive(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, principal, "YEAR_ACTIVATE", id, nil)
	return nil
}

// UpdateInput carries mutable year fields.
type UpdateInput struct {
	Label     string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
}

// Update rewrites label and dates; when IsActive is set the year also
// becomes the single active one.
func (s *Service) Update(ctx context.Context, principal shared.Principal, id int64, input UpdateInput) (AcademicYear, error) {
	if !principal.IsAdmin() {
		return AcademicYear{}, fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	input.Label = strings.TrimSpace(input.Label)
	if input.Label == "" {
		return AcademicYear{}, fmt.Errorf("%w: year label is required", shared.ErrValidation)
	}
	if !input.EndDate.After(input.StartDate) {
		return AcademicYear{}, fmt.Errorf("%w: end date must be after start date", shared.ErrValidation)
	}
	year, err := s.repo.Get(ctx, id)
	if err != nil {
		return AcademicYear{}, err
	}
	year.Label = input.Label
	year.StartDate = input.StartDate
	year.EndDate = input.EndDate
	if err := s.repo.Update(ctx, year); err != nil {
		return AcademicYear{}, err
	}
	if input.IsActive {
		if err := s.repo.ActivateExclusive(ctx, id); err != nil {
			return AcademicYear{}, err
		}
		year.IsActive = true
	}
	s.recordAudit(ctx, principal, "YEAR_UPDATE", id, map[string]any{"label": year.Label})
	return year, nil
}

// Delete soft-deletes a year. A year referenced by budgets or emergencies
// cannot be removed.
func (s *Service) Delete(ctx context.Context, principal shared.Principal, id int64) error {
	if !principal.IsAdmin() {
		return fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	refs, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: academic year is referenced by %d records", shared.ErrInvalidState, refs)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, principal, "YEAR_DELETE", id, nil)
	return nil
}

// Get fetches a single year.
func (s *Service) Get(ctx context.Context, id int64) (AcademicYear, error) {
	return s.repo.Get(ctx, id)
}

// GetActive returns the single active year. Budget and emergency creation
// depend on this precondition.
func (s *Service) GetActive(ctx context.Context) (AcademicYear, error) {
	return s.repo.GetActive(ctx)
}

// List returns all registered years, newest first.
func (s *Service) List(ctx context.Context) ([]AcademicYear, error) {
	return s.repo.List(ctx)
}

func (s *Service) recordAudit(ctx context.Context, principal shared.Principal, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: principal.UserID, Action: action, Entity: "academic_year", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
