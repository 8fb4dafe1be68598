package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// TxRepository exposes transactional operations. Item mutations are
// targeted single-row updates, never whole-document rewrites.
type TxRepository interface {
	Insert(ctx context.Context, budget Budget) (Budget, error)
	GetForUpdate(ctx context.Context, id int64) (Budget, error)
	SetItemApproval(ctx context.Context, itemID int64, approvedQuantity int64) error
	SetStatus(ctx context.Context, id int64, status Status) error
	RejectAllItems(ctx context.Context, budgetID int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get fetches budget header and items.
func (r *Repository) Get(ctx context.Context, id int64) (Budget, error) {
	return fetchBudget(ctx, r.pool, id, false)
}

// ListByOwner returns the owner's budgets, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]Budget, error) {
	return r.list(ctx, `SELECT id FROM budgets WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

// ListAll returns all budgets whose owner resolves to a user with a
// department; rows with dangling owner references are excluded.
func (r *Repository) ListAll(ctx context.Context) ([]Budget, error) {
	return r.list(ctx, `SELECT b.id FROM budgets b
JOIN users u ON u.id = b.owner_id
WHERE u.department <> ''
ORDER BY b.created_at DESC`)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Budget, error) {
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

	budgets := make([]Budget, 0, len(ids))
	for _, id := range ids {
		b, err := fetchBudget(ctx, r.pool, id, false)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, nil
}

func (tx *txRepo) Insert(ctx context.Context, budget Budget) (Budget, error) {
	err := tx.tx.QueryRow(ctx, `INSERT INTO budgets (ref_id, academic_year_id, owner_id, total_amount, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`, budget.RefID, budget.AcademicYearID, budget.OwnerID, budget.TotalAmount, string(budget.Status)).
		Scan(&budget.ID, &budget.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Budget{}, fmt.Errorf("%w: budget reference %s", shared.ErrDuplicate, budget.RefID)
		}
		return Budget{}, err
	}
	for i := range budget.Items {
		item := &budget.Items[i]
		item.BudgetID = budget.ID
		err := tx.tx.QueryRow(ctx, `INSERT INTO budget_items (budget_id, item_name, quantity, price, amount, approved_quantity, status)
VALUES ($1, $2, $3, $4, $5, 0, $6)
RETURNING id`, budget.ID, item.Name, item.Quantity, item.Price, item.Amount, string(item.Status)).Scan(&item.ID)
		if err != nil {
			return Budget{}, err
		}
	}
	return budget, nil
}

func (tx *txRepo) GetForUpdate(ctx context.Context, id int64) (Budget, error) {
	return fetchBudget(ctx, tx.tx, id, true)
}

func (tx *txRepo) SetItemApproval(ctx context.Context, itemID int64, approvedQuantity int64) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE budget_items
SET approved_quantity = $2, status = 'approved'
WHERE id = $1`, itemID, approvedQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: budget item %d", shared.ErrNotFound, itemID)
	}
	return nil
}

func (tx *txRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE budgets SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: budget %d", shared.ErrNotFound, id)
	}
	return nil
}

func (tx *txRepo) RejectAllItems(ctx context.Context, budgetID int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE budget_items SET status = 'rejected' WHERE budget_id = $1`, budgetID)
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func fetchBudget(ctx context.Context, q queryer, id int64, forUpdate bool) (Budget, error) {
	headerSQL := `SELECT id, ref_id, academic_year_id, owner_id, total_amount, status, created_at
FROM budgets WHERE id = $1`
	if forUpdate {
		headerSQL += ` FOR UPDATE`
	}
	var b Budget
	var status string
	err := q.QueryRow(ctx, headerSQL, id).
		Scan(&b.ID, &b.RefID, &b.AcademicYearID, &b.OwnerID, &b.TotalAmount, &status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, fmt.Errorf("%w: budget %d", shared.ErrNotFound, id)
		}
		return Budget{}, err
	}
	b.Status = Status(status)

	rows, err := q.Query(ctx, `SELECT id, budget_id, item_name, quantity, price, amount, approved_quantity, status
FROM budget_items WHERE budget_id = $1 ORDER BY id`, id)
	if err != nil {
		return Budget{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		var itemStatus string
		if err := rows.Scan(&item.ID, &item.BudgetID, &item.Name, &item.Quantity, &item.Price, &item.Amount, &item.ApprovedQuantity, &itemStatus); err != nil {
			return Budget{}, err
		}
		item.Status = ItemStatus(itemStatus)
		b.Items = append(b.Items, item)
	}
	return b, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
