package reporting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusops/campusops/internal/academicyear"
	"github.com/campusops/campusops/internal/budget"
	"github.com/campusops/campusops/internal/emergency"
	"github.com/campusops/campusops/internal/request"
	"github.com/campusops/campusops/internal/shared"
)

// Repository runs the read-only aggregation queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ActiveYear(ctx context.Context) (academicyear.AcademicYear, error) {
	var y academicyear.AcademicYear
	err := r.pool.QueryRow(ctx, `SELECT id, label, start_date, end_date, is_active, created_at
FROM academic_years WHERE is_active AND deleted_at IS NULL`).
		Scan(&y.ID, &y.Label, &y.StartDate, &y.EndDate, &y.IsActive, &y.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return academicyear.AcademicYear{}, fmt.Errorf("%w: no active academic year", shared.ErrNotFound)
		}
		return academicyear.AcademicYear{}, err
	}
	return y, nil
}

func (r *Repository) BudgetsForOwner(ctx context.Context, yearID, ownerID int64) ([]BudgetRecord, error) {
	return r.budgets(ctx, `SELECT b.id, b.owner_id, u.name, u.department, b.total_amount, b.status
FROM budgets b
JOIN users u ON u.id = b.owner_id
WHERE b.academic_year_id = $1 AND b.owner_id = $2`, yearID, ownerID)
}

func (r *Repository) BudgetsForYear(ctx context.Context, yearID int64, department string) ([]BudgetRecord, error) {
	if department != "" {
		return r.budgets(ctx, `SELECT b.id, b.owner_id, u.name, u.department, b.total_amount, b.status
FROM budgets b
JOIN users u ON u.id = b.owner_id
WHERE b.academic_year_id = $1 AND u.department = $2`, yearID, department)
	}
	return r.budgets(ctx, `SELECT b.id, b.owner_id, u.name, u.department, b.total_amount, b.status
FROM budgets b
JOIN users u ON u.id = b.owner_id
WHERE b.academic_year_id = $1 AND u.department <> ''`, yearID)
}

func (r *Repository) budgets(ctx context.Context, query string, args ...any) ([]BudgetRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BudgetRecord
	for rows.Next() {
		var rec BudgetRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.OwnerName, &rec.Department, &rec.TotalAmount, &status); err != nil {
			return nil, err
		}
		rec.Status = budget.Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := r.budgetItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *Repository) budgetItems(ctx context.Context, budgetID int64) ([]budget.Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, budget_id, item_name, quantity, price, amount, approved_quantity, status
FROM budget_items WHERE budget_id = $1 ORDER BY id`, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []budget.Item
	for rows.Next() {
		var item budget.Item
		var status string
		if err := rows.Scan(&item.ID, &item.BudgetID, &item.Name, &item.Quantity, &item.Price, &item.Amount, &item.ApprovedQuantity, &status); err != nil {
			return nil, err
		}
		item.Status = budget.ItemStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) RequestsForBudgets(ctx context.Context, budgetIDs []int64) ([]RequestRecord, error) {
	if len(budgetIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, budget_id, total_amount, status
FROM requests WHERE budget_id = ANY($1)`, budgetIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RequestRecord
	for rows.Next() {
		var rec RequestRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.BudgetID, &rec.TotalAmount, &status); err != nil {
			return nil, err
		}
		rec.Status = request.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) EmergenciesForOwner(ctx context.Context, yearID, ownerID int64) ([]EmergencyRecord, error) {
	return r.emergencies(ctx, `SELECT id, amount, status FROM emergencies
WHERE academic_year_id = $1 AND owner_id = $2`, yearID, ownerID)
}

func (r *Repository) EmergenciesForYear(ctx context.Context, yearID int64, department string) ([]EmergencyRecord, error) {
	if department != "" {
		return r.emergencies(ctx, `SELECT e.id, e.amount, e.status FROM emergencies e
JOIN users u ON u.id = e.owner_id
WHERE e.academic_year_id = $1 AND u.department = $2`, yearID, department)
	}
	return r.emergencies(ctx, `SELECT id, amount, status FROM emergencies WHERE academic_year_id = $1`, yearID)
}

func (r *Repository) emergencies(ctx context.Context, query string, args ...any) ([]EmergencyRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EmergencyRecord
	for rows.Next() {
		var rec EmergencyRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.Amount, &status); err != nil {
			return nil, err
		}
		rec.Status = emergency.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) UsersByDepartment(ctx context.Context, department string) ([]ReportUser, error) {
	query := `SELECT id, name, email, department FROM users ORDER BY name`
	args := []any{}
	if department != "" {
		query = `SELECT id, name, email, department FROM users WHERE department = $1 ORDER BY name`
		args = append(args, department)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportUser
	for rows.Next() {
		var u ReportUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Department); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
