package academicyear

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// Insert stores a new year. When IsActive is requested, the insert and the
// exclusivity swap run in one transaction so readers never observe two
// active years.
func (r *Repository) Insert(ctx context.Context, year AcademicYear) (AcademicYear, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return AcademicYear{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, `INSERT INTO academic_years (label, start_date, end_date, is_active)
VALUES ($1, $2, $3, FALSE)
RETURNING id, created_at`, year.Label, year.StartDate, year.EndDate).Scan(&year.ID, &year.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return AcademicYear{}, fmt.Errorf("%w: academic year %q already exists", shared.ErrDuplicate, year.Label)
		}
		return AcademicYear{}, err
	}

	if year.IsActive {
		if _, err := tx.Exec(ctx, `UPDATE academic_years SET is_active = (id = $1) WHERE deleted_at IS NULL`, year.ID); err != nil {
			return AcademicYear{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return AcademicYear{}, err
	}
	return year, nil
}

// ActivateExclusive flips the active flag to the target year in a single
// statement, so no reader observes zero or two active years.
func (r *Repository) ActivateExclusive(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE academic_years
SET is_active = (id = $1)
WHERE deleted_at IS NULL
  AND EXISTS (SELECT 1 FROM academic_years WHERE id = $1 AND deleted_at IS NULL)`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: academic year %d", shared.ErrNotFound, id)
	}
	return nil
}

// Update rewrites label and dates.
func (r *Repository) Update(ctx context.Context, year AcademicYear) error {
	tag, err := r.pool.Exec(ctx, `UPDATE academic_years
SET label = $2, start_date = $3, end_date = $4
WHERE id = $1 AND deleted_at IS NULL`, year.ID, year.Label, year.StartDate, year.EndDate)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: academic year %q already exists", shared.ErrDuplicate, year.Label)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: academic year %d", shared.ErrNotFound, year.ID)
	}
	return nil
}

// SoftDelete marks the year deleted without removing the row.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE academic_years
SET deleted_at = NOW(), is_active = FALSE
WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: academic year %d", shared.ErrNotFound, id)
	}
	return nil
}

// Get fetches a year by id.
func (r *Repository) Get(ctx context.Context, id int64) (AcademicYear, error) {
	return r.scanOne(ctx, `SELECT id, label, start_date, end_date, is_active, created_at
FROM academic_years WHERE id = $1 AND deleted_at IS NULL`, id)
}

// GetActive returns the single active year.
func (r *Repository) GetActive(ctx context.Context) (AcademicYear, error) {
	year, err := r.scanOne(ctx, `SELECT id, label, start_date, end_date, is_active, created_at
FROM academic_years WHERE is_active AND deleted_at IS NULL LIMIT 1`)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return AcademicYear{}, fmt.Errorf("%w: no active academic year", shared.ErrNotFound)
		}
		return AcademicYear{}, err
	}
	return year, nil
}

// List returns all years, newest first.
func (r *Repository) List(ctx context.Context) ([]AcademicYear, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, label, start_date, end_date, is_active, created_at
FROM academic_years WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []AcademicYear
	for rows.Next() {
		var y AcademicYear
		if err := rows.Scan(&y.ID, &y.Label, &y.StartDate, &y.EndDate, &y.IsActive, &y.CreatedAt); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// CountReferences counts budgets and emergencies scoped to the year.
func (r *Repository) CountReferences(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM budgets WHERE academic_year_id = $1) +
  (SELECT COUNT(*) FROM emergencies WHERE academic_year_id = $1)`, id).Scan(&count)
	return count, err
}

func (r *Repository) scanOne(ctx context.Context, query string, args ...any) (AcademicYear, error) {
	var y AcademicYear
	err := r.pool.QueryRow(ctx, query, args...).Scan(&y.ID, &y.Label, &y.StartDate, &y.EndDate, &y.IsActive, &y.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AcademicYear{}, shared.ErrNotFound
		}
		return AcademicYear{}, err
	}
	return y, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
