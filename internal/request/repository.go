package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusops/campusops/internal/budget"
	"github.com/campusops/campusops/internal/platform/db"
	"github.com/campusops/campusops/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. LockBudgetItem takes a
// row lock on the budget item so availability checks serialize per item.
type TxRepository interface {
	GetBudget(ctx context.Context, budgetID int64) (budget.Budget, error)
	LockBudgetItem(ctx context.Context, budgetID, itemID int64) (budget.Item, error)
	ConsumedQuantity(ctx context.Context, budgetItemID int64) (int64, error)
	Insert(ctx context.Context, req Request) (Request, error)
	GetForUpdate(ctx context.Context, id int64) (Request, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	SetItemStatus(ctx context.Context, itemID int64, status ItemStatus) error
	SetAllItemStatuses(ctx context.Context, requestID int64, status ItemStatus) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction. ConsumedQuantity
// runs after LockBudgetItem and must see requests committed while the lock
// was held by another writer, so a repeatable-read snapshot is unsafe here.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get fetches request header and items.
func (r *Repository) Get(ctx context.Context, id int64) (Request, error) {
	return fetchRequest(ctx, r.pool, id, false)
}

// ListByOwner returns the owner's requests, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]Request, error) {
	return r.list(ctx, `SELECT id FROM requests WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

// ListAll returns every request, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Request, error) {
	return r.list(ctx, `SELECT id FROM requests ORDER BY created_at DESC`)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	requests := make([]Request, 0, len(ids))
	for _, id := range ids {
		req, err := fetchRequest(ctx, r.pool, id, false)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func (tx *txRepo) GetBudget(ctx context.Context, budgetID int64) (budget.Budget, error) {
	var b budget.Budget
	var status string
	err := tx.tx.QueryRow(ctx, `SELECT id, ref_id, academic_year_id, owner_id, total_amount, status, created_at
FROM budgets WHERE id = $1`, budgetID).
		Scan(&b.ID, &b.RefID, &b.AcademicYearID, &b.OwnerID, &b.TotalAmount, &status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return budget.Budget{}, fmt.Errorf("%w: budget %d", shared.ErrNotFound, budgetID)
		}
		return budget.Budget{}, err
	}
	b.Status = budget.Status(status)
	return b, nil
}

func (tx *txRepo) LockBudgetItem(ctx context.Context, budgetID, itemID int64) (budget.Item, error) {
	var item budget.Item
	var status string
	err := tx.tx.QueryRow(ctx, `SELECT id, budget_id, item_name, quantity, price, amount, approved_quantity, status
FROM budget_items WHERE id = $1 AND budget_id = $2 FOR UPDATE`, itemID, budgetID).
		Scan(&item.ID, &item.BudgetID, &item.Name, &item.Quantity, &item.Price, &item.Amount, &item.ApprovedQuantity, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return budget.Item{}, fmt.Errorf("%w: item %d not found in budget", shared.ErrValidation, itemID)
		}
		return budget.Item{}, err
	}
	item.Status = budget.ItemStatus(status)
	return item, nil
}

func (tx *txRepo) ConsumedQuantity(ctx context.Context, budgetItemID int64) (int64, error) {
	var consumed int64
	err := tx.tx.QueryRow(ctx, `SELECT COALESCE(SUM(ri.quantity), 0)
FROM request_items ri
JOIN requests r ON r.id = ri.request_id
WHERE ri.budget_item_id = $1 AND r.status IN ('pending', 'approved')`, budgetItemID).Scan(&consumed)
	return consumed, err
}

func (tx *txRepo) Insert(ctx context.Context, req Request) (Request, error) {
	err := tx.tx.QueryRow(ctx, `INSERT INTO requests (ref_id, budget_id, owner_id, total_amount, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`, req.RefID, req.BudgetID, req.OwnerID, req.TotalAmount, string(req.Status)).
		Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Request{}, fmt.Errorf("%w: request reference %s", shared.ErrDuplicate, req.RefID)
		}
		return Request{}, err
	}
	for i := range req.Items {
		item := &req.Items[i]
		item.RequestID = req.ID
		err := tx.tx.QueryRow(ctx, `INSERT INTO request_items (request_id, budget_item_id, item_name, quantity, price, amount, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, req.ID, item.BudgetItemID, item.Name, item.Quantity, item.Price, item.Amount, string(item.Status)).Scan(&item.ID)
		if err != nil {
			return Request{}, err
		}
	}
	return req, nil
}

func (tx *txRepo) GetForUpdate(ctx context.Context, id int64) (Request, error) {
	return fetchRequest(ctx, tx.tx, id, true)
}

func (tx *txRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE requests SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: request %d", shared.ErrNotFound, id)
	}
	return nil
}

func (tx *txRepo) SetItemStatus(ctx context.Context, itemID int64, status ItemStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE request_items SET status = $2 WHERE id = $1`, itemID, string(status))
	return err
}

func (tx *txRepo) SetAllItemStatuses(ctx context.Context, requestID int64, status ItemStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE request_items SET status = $2 WHERE request_id = $1`, requestID, string(status))
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func fetchRequest(ctx context.Context, q queryer, id int64, forUpdate bool) (Request, error) {
	headerSQL := `SELECT id, ref_id, budget_id, owner_id, total_amount, status, created_at
FROM requests WHERE id = $1`
	if forUpdate {
		headerSQL += ` FOR UPDATE`
	}
	var req Request
	var status string
	err := q.QueryRow(ctx, headerSQL, id).
		Scan(&req.ID, &req.RefID, &req.BudgetID, &req.OwnerID, &req.TotalAmount, &status, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, fmt.Errorf("%w: request %d", shared.ErrNotFound, id)
		}
		return Request{}, err
	}
	req.Status = Status(status)

	rows, err := q.Query(ctx, `SELECT id, request_id, budget_item_id, item_name, quantity, price, amount, status
FROM request_items WHERE request_id = $1 ORDER BY id`, id)
	if err != nil {
		return Request{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		var itemStatus string
		if err := rows.Scan(&item.ID, &item.RequestID, &item.BudgetItemID, &item.Name, &item.Quantity, &item.Price, &item.Amount, &itemStatus); err != nil {
			return Request{}, err
		}
		item.Status = ItemStatus(itemStatus)
		req.Items = append(req.Items, item)
	}
	return req, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
