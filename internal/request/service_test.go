package request

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusops/campusops/internal/budget"
	"github.com/campusops/campusops/internal/shared"
)

// memoryRequestRepo serializes transactions with a mutex, mirroring the
// per-item row locks the SQL repository takes. Reads inside a transaction
// see every prior commit, matching the read-committed level the SQL
// repository requests.
type memoryRequestRepo struct {
	mu       sync.Mutex
	budgets  map[int64]budget.Budget
	requests map[int64]Request
	refs     map[string]bool
	nextID   int64
}

type memoryRequestTx struct {
	repo *memoryRequestRepo
}

func newMemoryRequestRepo() *memoryRequestRepo {
	return &memoryRequestRepo{
		budgets:  make(map[int64]budget.Budget),
		requests: make(map[int64]Request),
		refs:     make(map[string]bool),
	}
}

func (r *memoryRequestRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryRequestTx{repo: r})
}

func (r *memoryRequestRepo) Get(ctx context.Context, id int64) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *memoryRequestRepo) get(id int64) (Request, error) {
	req, ok := r.requests[id]
	if !ok {
		return Request{}, fmt.Errorf("%w: request %d", shared.ErrNotFound, id)
	}
	req.Items = append([]Item(nil), req.Items...)
	return req, nil
}

func (r *memoryRequestRepo) ListByOwner(ctx context.Context, ownerID int64) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Request
	for _, req := range r.requests {
		if req.OwnerID == ownerID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memoryRequestRepo) ListAll(ctx context.Context) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Request, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req)
	}
	return out, nil
}

func (tx *memoryRequestTx) GetBudget(ctx context.Context, budgetID int64) (budget.Budget, error) {
	b, ok := tx.repo.budgets[budgetID]
	if !ok {
		return budget.Budget{}, fmt.Errorf("%w: budget %d", shared.ErrNotFound, budgetID)
	}
	return b, nil
}

func (tx *memoryRequestTx) LockBudgetItem(ctx context.Context, budgetID, itemID int64) (budget.Item, error) {
	b, ok := tx.repo.budgets[budgetID]
	if !ok {
		return budget.Item{}, fmt.Errorf("%w: budget %d", shared.ErrNotFound, budgetID)
	}
	for _, item := range b.Items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return budget.Item{}, fmt.Errorf("%w: item %d not found in budget", shared.ErrValidation, itemID)
}

func (tx *memoryRequestTx) ConsumedQuantity(ctx context.Context, budgetItemID int64) (int64, error) {
	var consumed int64
	for _, req := range tx.repo.requests {
		if req.Status != StatusPending && req.Status != StatusApproved {
			continue
		}
		for _, item := range req.Items {
			if item.BudgetItemID == budgetItemID {
				consumed += item.Quantity
			}
		}
	}
	return consumed, nil
}

func (tx *memoryRequestTx) Insert(ctx context.Context, req Request) (Request, error) {
	if tx.repo.refs[req.RefID] {
		return Request{}, fmt.Errorf("%w: request reference %s", shared.ErrDuplicate, req.RefID)
	}
	tx.repo.nextID++
	req.ID = tx.repo.nextID
	req.CreatedAt = time.Now()
	for i := range req.Items {
		tx.repo.nextID++
		req.Items[i].ID = tx.repo.nextID
		req.Items[i].RequestID = req.ID
	}
	tx.repo.refs[req.RefID] = true
	tx.repo.requests[req.ID] = req
	return req, nil
}

func (tx *memoryRequestTx) GetForUpdate(ctx context.Context, id int64) (Request, error) {
	return tx.repo.get(id)
}

func (tx *memoryRequestTx) SetStatus(ctx context.Context, id int64, status Status) error {
	req, ok := tx.repo.requests[id]
	if !ok {
		return fmt.Errorf("%w: request %d", shared.ErrNotFound, id)
	}
	req.Status = status
	tx.repo.requests[id] = req
	return nil
}

func (tx *memoryRequestTx) SetItemStatus(ctx context.Context, itemID int64, status ItemStatus) error {
	for id, req := range tx.repo.requests {
		for i := range req.Items {
			if req.Items[i].ID == itemID {
				req.Items[i].Status = status
				tx.repo.requests[id] = req
				return nil
			}
		}
	}
	return nil
}

func (tx *memoryRequestTx) SetAllItemStatuses(ctx context.Context, requestID int64, status ItemStatus) error {
	req, ok := tx.repo.requests[requestID]
	if !ok {
		return fmt.Errorf("%w: request %d", shared.ErrNotFound, requestID)
	}
	for i := range req.Items {
		req.Items[i].Status = status
	}
	tx.repo.requests[requestID] = req
	return nil
}

type stubAudit struct {
	records []shared.AuditLog
}

func (s *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	s.records = append(s.records, log)
	return nil
}

var (
	owner = shared.Principal{UserID: 10, Role: shared.RoleUser}
	admin = shared.Principal{UserID: 99, Role: shared.RoleAdmin}
)

func seedBudget(repo *memoryRequestRepo, status budget.Status, items ...budget.Item) int64 {
	repo.nextID++
	id := repo.nextID
	repo.budgets[id] = budget.Budget{ID: id, OwnerID: owner.UserID, Status: status, Items: items}
	return id
}

func TestCreateRequestHappyPath(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRequestRepo()
	svc := NewService(repo, &stubAudit{}, nil, nil)

	budgetID := seedBudget(repo, budget.StatusApproved,
		budget.Item{ID: 100, Name: "Microscopes", Quantity: 10, Price: 1500, ApprovedQuantity: 8, Status: budget.ItemApproved},
	)

	req, err := svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 3, Price: 1500}})
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)
	require.InDelta(t, 4500.0, req.TotalAmount, 0.001)
	require.Len(t, req.Items, 1)
	require.Equal(t, "Microscopes", req.Items[0].Name)
	require.Equal(t, ItemPending, req.Items[0].Status)
	require.Regexp(t, `^REQ-\d{4}-\d{3}$`, req.RefID)
}

func TestCreateRequestGates(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRequestRepo()
	svc := NewService(repo, &stubAudit{}, nil, nil)

	pendingID := seedBudget(repo, budget.StatusPending,
		budget.Item{ID: 100, Name: "Desks", Quantity: 5, Price: 80, ApprovedQuantity: 0, Status: budget.ItemPending},
	)
	approvedID := seedBudget(repo, budget.StatusPartiallyApproved,
		budget.Item{ID: 200, Name: "Chairs", Quantity: 20, Price: 40, ApprovedQuantity: 15, Status: budget.ItemApproved},
		budget.Item{ID: 201, Name: "Lamps", Quantity: 6, Price: 25, ApprovedQuantity: 0, Status: budget.ItemPending},
	)

	_, err := svc.Create(ctx, owner, 404, []ItemInput{{BudgetItemID: 100, Quantity: 1, Price: 80}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Create(ctx, owner, pendingID, []ItemInput{{BudgetItemID: 100, Quantity: 1, Price: 80}})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	stranger := shared.Principal{UserID: 55, Role: shared.RoleUser}
	_, err = svc.Create(ctx, stranger, approvedID, []ItemInput{{BudgetItemID: 200, Quantity: 1, Price: 40}})
	require.ErrorIs(t, err, shared.ErrForbidden)

	// Admins may draw on behalf of any budget.
	_, err = svc.Create(ctx, admin, approvedID, []ItemInput{{BudgetItemID: 200, Quantity: 1, Price: 40}})
	require.NoError(t, err)

	_, err = svc.Create(ctx, owner, approvedID, []ItemInput{{BudgetItemID: 999, Quantity: 1, Price: 40}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, owner, approvedID, []ItemInput{{BudgetItemID: 201, Quantity: 1, Price: 25}})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCreateRequestAvailability(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRequestRepo()
	svc := NewService(repo, &stubAudit{}, nil, nil)

	budgetID := seedBudget(repo, budget.StatusApproved,
		budget.Item{ID: 100, Name: "Projectors", Quantity: 10, Price: 800, ApprovedQuantity: 5, Status: budget.ItemApproved},
	)

	_, err := svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 3, Price: 800}})
	require.NoError(t, err)

	// A pending request counts against the allowance.
	_, err = svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 3, Price: 800}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorContains(t, err, "Available: 2")

	second, err := svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 2, Price: 800}})
	require.NoError(t, err)

	// A rejected request releases its drawn quantity.
	_, err = svc.UpdateStatus(ctx, admin, second.ID, StatusRejected, nil)
	require.NoError(t, err)

	_, err = svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 2, Price: 800}})
	require.NoError(t, err)
}

func TestCreateRequestConcurrentConservation(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRequestRepo()
	svc := NewService(repo, &stubAudit{}, nil, nil)

	const allowance = 10
	budgetID := seedBudget(repo, budget.StatusApproved,
		budget.Item{ID: 100, Name: "Tablets", Quantity: 20, Price: 300, ApprovedQuantity: allowance, Status: budget.ItemApproved},
	)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, _ = svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 1, Price: 300}})
			}
		}()
	}
	wg.Wait()

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	var drawn int64
	for _, req := range all {
		for _, item := range req.Items {
			if item.BudgetItemID == 100 {
				drawn += item.Quantity
			}
		}
	}
	require.LessOrEqual(t, drawn, int64(allowance))
	require.Equal(t, int64(allowance), drawn)
}

func TestCreateRequestCompetingDrawsSeeEachOther(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRequestRepo()
	svc := NewService(repo, &stubAudit{}, nil, nil)

	budgetID := seedBudget(repo, budget.StatusApproved,
		budget.Item{ID: 100, Name: "Cameras", Quantity: 20, Price: 600, ApprovedQuantity: 10, Status: budget.ItemApproved},
	)

	// Two rival draws of 6 against an allowance of 10. Whichever acquires
	// the item lock second must see the winner's commit in its availability
	// check, so exactly one may succeed.
	start := make(chan struct{})
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, err := svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 6, Price: 600}})
			errs <- err
		}()
	}
	close(start)

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			require.ErrorIs(t, err, shared.ErrValidation)
			require.ErrorContains(t, err, "Available: 4")
			failures++
		}
	}
	require.Equal(t, 1, failures)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	var drawn int64
	for _, req := range all {
		for _, item := range req.Items {
			drawn += item.Quantity
		}
	}
	require.Equal(t, int64(6), drawn)
}

func TestUpdateStatusPerItemAndUniform(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRequestRepo()
	svc := NewService(repo, &stubAudit{}, nil, nil)

	budgetID := seedBudget(repo, budget.StatusApproved,
		budget.Item{ID: 100, Name: "Routers", Quantity: 10, Price: 120, ApprovedQuantity: 10, Status: budget.ItemApproved},
		budget.Item{ID: 101, Name: "Switches", Quantity: 10, Price: 240, ApprovedQuantity: 10, Status: budget.ItemApproved},
	)

	req, err := svc.Create(ctx, owner, budgetID, []ItemInput{
		{BudgetItemID: 100, Quantity: 2, Price: 120},
		{BudgetItemID: 101, Quantity: 1, Price: 240},
	})
	require.NoError(t, err)

	// Per-item updates change only the named items; unknown ids are ignored.
	updated, err := svc.UpdateStatus(ctx, admin, req.ID, StatusPartiallyApproved, []ItemStatusUpdate{
		{ItemID: req.Items[0].ID, Status: ItemApproved},
		{ItemID: 98765, Status: ItemRejected},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyApproved, updated.Status)
	require.Equal(t, ItemApproved, updated.Items[0].Status)
	require.Equal(t, ItemPending, updated.Items[1].Status)

	// Uniform update cascades to every item.
	updated, err = svc.UpdateStatus(ctx, admin, req.ID, StatusApproved, nil)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, updated.Status)
	for _, item := range updated.Items {
		require.Equal(t, ItemApproved, item.Status)
	}

	_, err = svc.UpdateStatus(ctx, owner, req.ID, StatusApproved, nil)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.UpdateStatus(ctx, admin, req.ID, Status("done"), nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpdateStatus(ctx, admin, 404, StatusApproved, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBudgetRejectionLeavesPriorRequestsPending(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRequestRepo()
	svc := NewService(repo, &stubAudit{}, nil, nil)

	budgetID := seedBudget(repo, budget.StatusApproved,
		budget.Item{ID: 100, Name: "Centrifuges", Quantity: 6, Price: 2200, ApprovedQuantity: 6, Status: budget.ItemApproved},
	)

	req, err := svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 2, Price: 2200}})
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)

	// Admin rejects the budget afterwards. The cascade stops at budget
	// items; requests already drawn against it keep their own lifecycle
	// and stay pending until reviewed.
	rejected := repo.budgets[budgetID]
	rejected.Status = budget.StatusRejected
	for i := range rejected.Items {
		rejected.Items[i].Status = budget.ItemRejected
		rejected.Items[i].ApprovedQuantity = 0
	}
	repo.budgets[budgetID] = rejected

	got, err := svc.Get(ctx, owner, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	for _, item := range got.Items {
		require.Equal(t, ItemPending, item.Status)
	}

	// New draws against the rejected budget are refused.
	_, err = svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 1, Price: 2200}})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// The reviewer can still close the stranded request out.
	updated, err := svc.UpdateStatus(ctx, admin, req.ID, StatusRejected, nil)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, updated.Status)
}

func TestRequestVisibility(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRequestRepo()
	svc := NewService(repo, &stubAudit{}, nil, nil)

	budgetID := seedBudget(repo, budget.StatusApproved,
		budget.Item{ID: 100, Name: "Printers", Quantity: 4, Price: 450, ApprovedQuantity: 4, Status: budget.ItemApproved},
	)
	req, err := svc.Create(ctx, owner, budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 1, Price: 450}})
	require.NoError(t, err)

	_, err = svc.Get(ctx, owner, req.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, admin, req.ID)
	require.NoError(t, err)

	stranger := shared.Principal{UserID: 55, Role: shared.RoleUser}
	_, err = svc.Get(ctx, stranger, req.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.ListAll(ctx, stranger)
	require.ErrorIs(t, err, shared.ErrForbidden)

	mine, err := svc.ListMine(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestCreateIdempotentWithoutStore(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRequestRepo()
	svc := NewService(repo, &stubAudit{}, nil, nil)

	budgetID := seedBudget(repo, budget.StatusApproved,
		budget.Item{ID: 100, Name: "Beakers", Quantity: 20, Price: 12, ApprovedQuantity: 20, Status: budget.ItemApproved},
	)

	req, err := svc.CreateIdempotent(ctx, owner, "req-key-1", budgetID, []ItemInput{{BudgetItemID: 100, Quantity: 2, Price: 12}})
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)
}
