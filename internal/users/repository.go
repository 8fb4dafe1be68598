package users

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

func (r *Repository) InsertDepartment(ctx context.Context, d Department) (Department, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO departments (name, description, created_by, is_active)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`, d.Name, d.Description, d.CreatedBy, d.IsActive).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Department{}, fmt.Errorf("%w: department %s already exists", shared.ErrDuplicate, d.Name)
		}
		return Department{}, err
	}
	return d, nil
}

func (r *Repository) GetDepartment(ctx context.Context, id int64) (Department, error) {
	var d Department
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, created_by, is_active, created_at
FROM departments WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Description, &d.CreatedBy, &d.IsActive, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Department{}, fmt.Errorf("%w: department %d", shared.ErrNotFound, id)
		}
		return Department{}, err
	}
	return d, nil
}

func (r *Repository) UpdateDepartment(ctx context.Context, d Department) error {
	tag, err := r.pool.Exec(ctx, `UPDATE departments SET name = $2, description = $3, is_active = $4
WHERE id = $1`, d.ID, d.Name, d.Description, d.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: department %d", shared.ErrNotFound, d.ID)
	}
	return nil
}

func (r *Repository) ListActiveDepartments(ctx context.Context) ([]Department, error) {
	return r.listDepartments(ctx, `SELECT id, name, description, created_by, is_active, created_at
FROM departments WHERE is_active ORDER BY name`)
}

func (r *Repository) ListDepartmentsByCreator(ctx context.Context, creatorID int64) ([]Department, error) {
	return r.listDepartments(ctx, `SELECT id, name, description, created_by, is_active, created_at
FROM departments WHERE created_by = $1 ORDER BY name`, creatorID)
}

func (r *Repository) listDepartments(ctx context.Context, query string, args ...any) ([]Department, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedBy, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, role, department, created_at
FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
		}
		return User{}, err
	}
	return u, nil
}

func (r *Repository) ListUsersByDepartments(ctx context.Context, departments []string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, email, role, department, created_at
FROM users WHERE department = ANY($1) ORDER BY name`, departments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateUser(ctx context.Context, u User) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET name = $2, email = $3, department = $4
WHERE id = $1`, u.ID, u.Name, u.Email, u.Department)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: email %s already in use", shared.ErrDuplicate, u.Email)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, u.ID)
	}
	return nil
}

func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return nil
}
