package emergency

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusops/campusops/internal/shared"
)

// Repository provides PostgreSQL backed persistence. Media is stored
// inline as bytea next to the row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const emergencyColumns = `id, ref_id, title, description, amount, owner_id, academic_year_id,
media_data IS NOT NULL, status, created_at`

// Insert stores a new emergency with optional media.
func (r *Repository) Insert(ctx context.Context, e Emergency, media *Media) (Emergency, error) {
	var data []byte
	var contentType *string
	if media != nil {
		data = media.Data
		contentType = &media.ContentType
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO emergencies (ref_id, title, description, amount, owner_id, academic_year_id, media_data, media_content_type, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`,
		e.RefID, e.Title, e.Description, e.Amount, e.OwnerID, e.AcademicYearID, data, contentType, string(e.Status)).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Emergency{}, fmt.Errorf("%w: emergency reference %s", shared.ErrDuplicate, e.RefID)
		}
		return Emergency{}, err
	}
	return e, nil
}

// Get fetches one emergency without its media payload.
func (r *Repository) Get(ctx context.Context, id int64) (Emergency, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+emergencyColumns+` FROM emergencies WHERE id = $1`, id)
	e, err := scanEmergency(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Emergency{}, fmt.Errorf("%w: emergency %d", shared.ErrNotFound, id)
		}
		return Emergency{}, err
	}
	return e, nil
}

// GetMedia fetches the attached document.
func (r *Repository) GetMedia(ctx context.Context, id int64) (Media, error) {
	var m Media
	err := r.pool.QueryRow(ctx, `SELECT media_data, media_content_type FROM emergencies
WHERE id = $1 AND media_data IS NOT NULL`, id).Scan(&m.Data, &m.ContentType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Media{}, fmt.Errorf("%w: media for emergency %d", shared.ErrNotFound, id)
		}
		return Media{}, err
	}
	return m, nil
}

// SetStatus stores the admin decision.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE emergencies SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: emergency %d", shared.ErrNotFound, id)
	}
	return nil
}

// ListByOwner returns the owner's emergencies, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]Emergency, error) {
	return r.list(ctx, `SELECT `+emergencyColumns+` FROM emergencies WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

// ListAll returns every emergency, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Emergency, error) {
	return r.list(ctx, `SELECT `+emergencyColumns+` FROM emergencies ORDER BY created_at DESC`)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Emergency, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Emergency
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEmergency(row pgx.Row) (Emergency, error) {
	var e Emergency
	var status string
	err := row.Scan(&e.ID, &e.RefID, &e.Title, &e.Description, &e.Amount, &e.OwnerID, &e.AcademicYearID, &e.HasMedia, &status, &e.CreatedAt)
	if err != nil {
		return Emergency{}, err
	}
	e.Status = Status(status)
	return e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
