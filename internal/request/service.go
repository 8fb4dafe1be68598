package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusops/campusops/internal/budget"
	"github.com/campusops/campusops/internal/shared"
)

const refIDAttempts = 3

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Request, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Request, error)
	ListAll(ctx context.Context) ([]Request, error)
}

// AuditPort records administrative actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportsPort drops cached summaries after a mutation. May be nil.
type ReportsPort interface {
	Invalidate(ctx context.Context) error
}

// Service enforces the drawdown rules: requests may only draw from
// approved budget items, and a budget item's approved quantity is a hard
// ceiling across all pending and approved requests combined.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	reports     ReportsPort
}

// NewService constructs the request service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, reports ReportsPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, reports: reports}
}

// CreateIdempotent wraps Create with a client-supplied idempotency key so
// a resubmitted form cannot open the same request twice. An empty key
// skips the guard.
func (s *Service) CreateIdempotent(ctx context.Context, principal shared.Principal, key string, budgetID int64, items []ItemInput) (Request, error) {
	inserted := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "request.create"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Request{}, fmt.Errorf("%w: request already submitted", shared.ErrDuplicate)
			}
			return Request{}, err
		}
		inserted = true
	}
	created, err := s.Create(ctx, principal, budgetID, items)
	if err != nil && inserted {
		_ = s.idempotency.Delete(ctx, key)
	}
	return created, err
}

// ItemInput describes one line to draw from a budget item.
type ItemInput struct {
	BudgetItemID int64
	Quantity     int64
	Price        float64
}

// ItemStatusUpdate targets one request item in UpdateStatus.
type ItemStatusUpdate struct {
	ItemID int64
	Status ItemStatus
}

// Create opens a request drawing against the given budget. Validation and
// insert run in one transaction; each drawn budget item row is locked so
// concurrent requests against the same item serialize and the allowance
// cannot be oversubscribed.
func (s *Service) Create(ctx context.Context, principal shared.Principal, budgetID int64, items []ItemInput) (Request, error) {
	if len(items) == 0 {
		return Request{}, fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}
	for _, in := range items {
		if in.Quantity <= 0 {
			return Request{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
		}
		if in.Price <= 0 {
			return Request{}, fmt.Errorf("%w: price must be positive", shared.ErrValidation)
		}
	}

	var created Request
	insert := func(ctx context.Context, tx TxRepository, refID string) error {
		b, err := tx.GetBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		if b.Status != budget.StatusApproved && b.Status != budget.StatusPartiallyApproved {
			return fmt.Errorf("%w: requests may only draw from approved budgets", shared.ErrInvalidState)
		}
		if b.OwnerID != principal.UserID && !principal.IsAdmin() {
			return fmt.Errorf("%w: not the budget owner", shared.ErrForbidden)
		}

		req := Request{
			RefID:    refID,
			BudgetID: budgetID,
			OwnerID:  principal.UserID,
			Status:   StatusPending,
		}
		for _, in := range items {
			budgetItem, err := tx.LockBudgetItem(ctx, budgetID, in.BudgetItemID)
			if err != nil {
				return err
			}
			if budgetItem.Status != budget.ItemApproved {
				return fmt.Errorf("%w: item %q is not approved in budget", shared.ErrInvalidState, budgetItem.Name)
			}
			consumed, err := tx.ConsumedQuantity(ctx, in.BudgetItemID)
			if err != nil {
				return err
			}
			available := budgetItem.ApprovedQuantity - consumed
			if in.Quantity > available {
				return fmt.Errorf("%w: requested quantity for %q exceeds available approved quantity. Available: %d", shared.ErrValidation, budgetItem.Name, available)
			}
			amount := float64(in.Quantity) * in.Price
			req.Items = append(req.Items, Item{
				BudgetItemID: in.BudgetItemID,
				Name:         budgetItem.Name,
				Quantity:     in.Quantity,
				Price:        in.Price,
				Amount:       amount,
				Status:       ItemPending,
			})
			req.TotalAmount += amount
		}

		created, err = tx.Insert(ctx, req)
		return err
	}

	var err error
	for attempt := 0; attempt < refIDAttempts; attempt++ {
		refID := shared.RefID("REQ", time.Now())
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return insert(ctx, tx, refID)
		})
		if err == nil {
			s.recordAudit(ctx, principal, "REQUEST_CREATE", created.ID, map[string]any{"ref": created.RefID, "budget": budgetID, "total": created.TotalAmount})
			s.dropReports(ctx)
			return created, nil
		}
		if !errors.Is(err, shared.ErrDuplicate) {
			return Request{}, err
		}
	}
	return Request{}, fmt.Errorf("%w: could not allocate request reference", shared.ErrDuplicate)
}

// UpdateStatus applies an admin decision. When itemUpdates is non-empty
// only the named items change; otherwise every item is set to status.
// The request-level status is stored as given, it is not derived from
// the items.
func (s *Service) UpdateStatus(ctx context.Context, principal shared.Principal, requestID int64, status Status, itemUpdates []ItemStatusUpdate) (Request, error) {
	if !principal.IsAdmin() {
		return Request{}, fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	if !ValidStatus(status) {
		return Request{}, fmt.Errorf("%w: unknown request status %q", shared.ErrValidation, status)
	}
	for _, upd := range itemUpdates {
		if !ValidItemStatus(upd.Status) {
			return Request{}, fmt.Errorf("%w: unknown item status %q", shared.ErrValidation, upd.Status)
		}
	}

	var updated Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, requestID, status); err != nil {
			return err
		}
		req.Status = status

		if len(itemUpdates) > 0 {
			byID := make(map[int64]int, len(req.Items))
			for i, item := range req.Items {
				byID[item.ID] = i
			}
			for _, upd := range itemUpdates {
				idx, ok := byID[upd.ItemID]
				if !ok {
					continue
				}
				if err := tx.SetItemStatus(ctx, upd.ItemID, upd.Status); err != nil {
					return err
				}
				req.Items[idx].Status = upd.Status
			}
		} else if st := ItemStatus(status); ValidItemStatus(st) {
			// partially_approved has no item-level counterpart, items keep
			// their current states in that case.
			if err := tx.SetAllItemStatuses(ctx, requestID, st); err != nil {
				return err
			}
			for i := range req.Items {
				req.Items[i].Status = st
			}
		}
		updated = req
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.recordAudit(ctx, principal, "REQUEST_SET_STATUS", requestID, map[string]any{"status": string(status), "items": len(itemUpdates)})
	s.dropReports(ctx)
	return updated, nil
}

// Get returns a request visible to the caller: its owner or an admin.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.OwnerID != principal.UserID && !principal.IsAdmin() {
		return Request{}, fmt.Errorf("%w: not the request owner", shared.ErrForbidden)
	}
	return req, nil
}

// ListMine returns the caller's requests, newest first.
func (s *Service) ListMine(ctx context.Context, principal shared.Principal) ([]Request, error) {
	return s.repo.ListByOwner(ctx, principal.UserID)
}

// ListAll returns every request. Admin only.
func (s *Service) ListAll(ctx context.Context, principal shared.Principal) ([]Request, error) {
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
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: principal.UserID, Action: action, Entity: "request", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
