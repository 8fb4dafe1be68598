package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusops/campusops/internal/academicyear"
	"github.com/campusops/campusops/internal/shared"
)

// refIDAttempts bounds the collision-retry loop for display ids.
const refIDAttempts = 3

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Budget, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Budget, error)
	ListAll(ctx context.Context) ([]Budget, error)
}

// YearPort exposes the academic year gate.
type YearPort interface {
	Get(ctx context.Context, id int64) (academicyear.AcademicYear, error)
}

// AuditPort records administrative actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportsPort drops cached summaries after a mutation. May be nil.
type ReportsPort interface {
	Invalidate(ctx context.Context) error
}

// Service owns the budget ledger rules: item-level approval and aggregate
// status derivation.
type Service struct {
	repo    RepositoryPort
	years   YearPort
	audit   AuditPort
	reports ReportsPort
}

// NewService constructs the budget service.
func NewService(repo RepositoryPort, years YearPort, audit AuditPort, reports ReportsPort) *Service {
	return &Service{repo: repo, years: years, audit: audit, reports: reports}
}

// ItemInput describes one requested line item.
type ItemInput struct {
	Name     string
	Quantity int64
	Price    float64
}

// Create opens a budget against the currently active academic year.
func (s *Service) Create(ctx context.Context, principal shared.Principal, academicYearID int64, items []ItemInput) (Budget, error) {
	year, err := s.years.Get(ctx, academicYearID)
	if err != nil {
		return Budget{}, err
	}
	if !year.IsActive {
		return Budget{}, fmt.Errorf("%w: budgets may only be created for the active academic year", shared.ErrInvalidState)
	}
	if len(items) == 0 {
		return Budget{}, fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}

	budget := Budget{
		AcademicYearID: academicYearID,
		OwnerID:        principal.UserID,
		Status:         StatusPending,
	}
	for _, in := range items {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return Budget{}, fmt.Errorf("%w: item name is required", shared.ErrValidation)
		}
		if in.Quantity <= 0 {
			return Budget{}, fmt.Errorf("%w: quantity for %q must be positive", shared.ErrValidation, name)
		}
		if in.Price <= 0 {
			return Budget{}, fmt.Errorf("%w: price for %q must be positive", shared.ErrValidation, name)
		}
		amount := float64(in.Quantity) * in.Price
		budget.Items = append(budget.Items, Item{
			Name:     name,
			Quantity: in.Quantity,
			Price:    in.Price,
			Amount:   amount,
			Status:   ItemPending,
		})
		budget.TotalAmount += amount
	}

	created, err := s.insertWithRefID(ctx, budget)
	if err != nil {
		return Budget{}, err
	}
	s.recordAudit(ctx, principal, "BUDGET_CREATE", created.ID, map[string]any{"ref": created.RefID, "total": created.TotalAmount})
	s.dropReports(ctx)
	return created, nil
}

// ApproveItem sets an item's approved quantity and marks it approved, then
// recomputes the aggregate budget status. The approved quantity is clamped
// to the requested quantity. The item update is a targeted per-row patch
// so concurrent approvals of sibling items do not lose updates.
func (s *Service) ApproveItem(ctx context.Context, principal shared.Principal, budgetID, itemID, approvedQuantity int64) (Budget, error) {
	if !principal.IsAdmin() {
		return Budget{}, fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	if approvedQuantity < 0 {
		return Budget{}, fmt.Errorf("%w: approved quantity cannot be negative", shared.ErrValidation)
	}

	var updated Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetForUpdate(ctx, budgetID)
		if err != nil {
			return err
		}
		idx := -1
		for i := range b.Items {
			if b.Items[i].ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: budget item %d", shared.ErrNotFound, itemID)
		}
		if approvedQuantity > b.Items[idx].Quantity {
			return fmt.Errorf("%w: approved quantity %d exceeds requested quantity %d", shared.ErrValidation, approvedQuantity, b.Items[idx].Quantity)
		}
		if err := tx.SetItemApproval(ctx, itemID, approvedQuantity); err != nil {
			return err
		}
		b.Items[idx].ApprovedQuantity = approvedQuantity
		b.Items[idx].Status = ItemApproved

		next := deriveStatus(b.Items, b.Status)
		if next != b.Status {
			if err := tx.SetStatus(ctx, budgetID, next); err != nil {
				return err
			}
			b.Status = next
		}
		updated = b
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.recordAudit(ctx, principal, "BUDGET_ITEM_APPROVE", budgetID, map[string]any{"item": itemID, "approved_qty": approvedQuantity})
	s.dropReports(ctx)
	return updated, nil
}

// SetStatus applies an explicit admin status override. Rejection cascades
// to every item; already-drawn requests against those items are not
// retroactively invalidated.
func (s *Service) SetStatus(ctx context.Context, principal shared.Principal, budgetID int64, status Status) (Budget, error) {
	if !principal.IsAdmin() {
		return Budget{}, fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	if !ValidStatus(status) {
		return Budget{}, fmt.Errorf("%w: unknown budget status %q", shared.ErrValidation, status)
	}

	var updated Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetForUpdate(ctx, budgetID)
		if err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, budgetID, status); err != nil {
			return err
		}
		b.Status = status
		if status == StatusRejected {
			if err := tx.RejectAllItems(ctx, budgetID); err != nil {
				return err
			}
			for i := range b.Items {
				b.Items[i].Status = ItemRejected
			}
		}
		updated = b
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.recordAudit(ctx, principal, "BUDGET_SET_STATUS", budgetID, map[string]any{"status": string(status)})
	s.dropReports(ctx)
	return updated, nil
}

// Get returns a budget visible to the caller: its owner or an admin.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (Budget, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	if b.OwnerID != principal.UserID && !principal.IsAdmin() {
		return Budget{}, fmt.Errorf("%w: not the budget owner", shared.ErrForbidden)
	}
	return b, nil
}

// ListMine returns the caller's budgets, newest first.
func (s *Service) ListMine(ctx context.Context, principal shared.Principal) ([]Budget, error) {
	return s.repo.ListByOwner(ctx, principal.UserID)
}

// ListAll returns every budget whose owner still resolves to a known
// department. Admin only.
func (s *Service) ListAll(ctx context.Context, principal shared.Principal) ([]Budget, error) {
	if !principal.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	return s.repo.ListAll(ctx)
}

func (s *Service) insertWithRefID(ctx context.Context, budget Budget) (Budget, error) {
	var created Budget
	for attempt := 0; attempt < refIDAttempts; attempt++ {
		budget.RefID = shared.RefID("BUD", time.Now())
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			c, err := tx.Insert(ctx, budget)
			if err != nil {
				return err
			}
			created = c
			return nil
		})
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, shared.ErrDuplicate) {
			return Budget{}, err
		}
	}
	return Budget{}, fmt.Errorf("%w: could not allocate budget reference", shared.ErrDuplicate)
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
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: principal.UserID, Action: action, Entity: "budget", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
