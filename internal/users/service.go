package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/campusops/campusops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	InsertDepartment(ctx context.Context, d Department) (Department, error)
	GetDepartment(ctx context.Context, id int64) (Department, error)
	UpdateDepartment(ctx context.Context, d Department) error
	ListActiveDepartments(ctx context.Context) ([]Department, error)
	ListDepartmentsByCreator(ctx context.Context, creatorID int64) ([]Department, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsersByDepartments(ctx context.Context, departments []string) ([]User, error)
	UpdateUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, id int64) error
}

// AuditPort records directory changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages departments and the users within them. A caller may
// only manage users whose department was created by the caller.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the directory service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateDepartment registers a new department owned by the caller.
func (s *Service) CreateDepartment(ctx context.Context, principal shared.Principal, name, description string) (Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Department{}, fmt.Errorf("%w: department name is required", shared.ErrValidation)
	}
	d, err := s.repo.InsertDepartment(ctx, Department{
		Name:        name,
		Description: description,
		CreatedBy:   principal.UserID,
		IsActive:    true,
	})
	if err != nil {
		return Department{}, err
	}
	s.recordAudit(ctx, principal, "DEPARTMENT_CREATE", d.ID, map[string]any{"name": d.Name})
	return d, nil
}

// UpdateDepartmentInput carries optional department changes.
type UpdateDepartmentInput struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// UpdateDepartment changes a department owned by the caller.
func (s *Service) UpdateDepartment(ctx context.Context, principal shared.Principal, id int64, in UpdateDepartmentInput) (Department, error) {
	d, err := s.ownedDepartment(ctx, principal, id)
	if err != nil {
		return Department{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Department{}, fmt.Errorf("%w: department name is required", shared.ErrValidation)
		}
		d.Name = name
	}
	if in.Description != nil {
		d.Description = *in.Description
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if err := s.repo.UpdateDepartment(ctx, d); err != nil {
		return Department{}, err
	}
	s.recordAudit(ctx, principal, "DEPARTMENT_UPDATE", d.ID, map[string]any{"name": d.Name, "active": d.IsActive})
	return d, nil
}

// DeleteDepartment deactivates a department owned by the caller.
func (s *Service) DeleteDepartment(ctx context.Context, principal shared.Principal, id int64) error {
	d, err := s.ownedDepartment(ctx, principal, id)
	if err != nil {
		return err
	}
	d.IsActive = false
	if err := s.repo.UpdateDepartment(ctx, d); err != nil {
		return err
	}
	s.recordAudit(ctx, principal, "DEPARTMENT_DELETE", d.ID, map[string]any{"name": d.Name})
	return nil
}

// ListDepartments returns all active departments.
func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.repo.ListActiveDepartments(ctx)
}

// ListMyDepartments returns the active departments owned by the caller.
func (s *Service) ListMyDepartments(ctx context.Context, principal shared.Principal) ([]Department, error) {
	all, err := s.repo.ListDepartmentsByCreator(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListUsers returns users belonging to departments owned by the caller.
func (s *Service) ListUsers(ctx context.Context, principal shared.Principal) ([]User, error) {
	names, err := s.ownedDepartmentNames(ctx, principal)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []User{}, nil
	}
	return s.repo.ListUsersByDepartments(ctx, names)
}

// GetUser returns one user if they belong to a department owned by the
// caller.
func (s *Service) GetUser(ctx context.Context, principal shared.Principal, id int64) (User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := s.requireScope(ctx, principal, u.Department); err != nil {
		return User{}, err
	}
	return u, nil
}

// UpdateUserInput carries optional user changes.
type UpdateUserInput struct {
	Name       *string
	Email      *string
	Department *string
}

// UpdateUser changes a user within the caller's departments. Moving the
// user to another department requires that department to also be owned
// by the caller.
func (s *Service) UpdateUser(ctx context.Context, principal shared.Principal, id int64, in UpdateUserInput) (User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	names, err := s.ownedDepartmentNames(ctx, principal)
	if err != nil {
		return User{}, err
	}
	if !contains(names, u.Department) {
		return User{}, fmt.Errorf("%w: user is outside your departments", shared.ErrForbidden)
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		u.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Department != nil && *in.Department != "" {
		if !contains(names, *in.Department) {
			return User{}, fmt.Errorf("%w: invalid department selection", shared.ErrValidation)
		}
		u.Department = *in.Department
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, principal, "USER_UPDATE", u.ID, map[string]any{"department": u.Department})
	return u, nil
}

// DeleteUser removes a user within the caller's departments.
func (s *Service) DeleteUser(ctx context.Context, principal shared.Principal, id int64) error {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireScope(ctx, principal, u.Department); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, principal, "USER_DELETE", id, nil)
	return nil
}

func (s *Service) ownedDepartment(ctx context.Context, principal shared.Principal, id int64) (Department, error) {
	d, err := s.repo.GetDepartment(ctx, id)
	if err != nil {
		return Department{}, err
	}
	if d.CreatedBy != principal.UserID {
		return Department{}, fmt.Errorf("%w: department %d", shared.ErrNotFound, id)
	}
	return d, nil
}

func (s *Service) ownedDepartmentNames(ctx context.Context, principal shared.Principal) ([]string, error) {
	departments, err := s.repo.ListDepartmentsByCreator(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(departments))
	for _, d := range departments {
		names = append(names, d.Name)
	}
	return names, nil
}

func (s *Service) requireScope(ctx context.Context, principal shared.Principal, department string) error {
	names, err := s.ownedDepartmentNames(ctx, principal)
	if err != nil {
		return err
	}
	if !contains(names, department) {
		return fmt.Errorf("%w: user is outside your departments", shared.ErrForbidden)
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (s *Service) recordAudit(ctx context.Context, principal shared.Principal, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: principal.UserID, Action: action, Entity: "directory", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
