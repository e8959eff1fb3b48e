package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed access to profile projections. The
// profiles table itself is populated by an upstream trigger when an identity
// is created; this repository only observes and amends rows it finds.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchProjection loads a profile projection by identity ID. Returns
// ErrNotFound while the row has not been materialized.
func (r *Repository) FetchProjection(ctx context.Context, id uuid.UUID) (Projection, error) {
	const query = `
		SELECT id, email, first_name, last_name, phone, role, status, created_at, updated_at
		FROM profiles
		WHERE id = $1`

	var p Projection
	var firstName, lastName, phone, role, status *string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Email, &firstName, &lastName, &phone, &role, &status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Projection{}, ErrNotFound
		}
		return Projection{}, err
	}
	p.FirstName = deref(firstName)
	p.LastName = deref(lastName)
	p.Phone = deref(phone)
	p.Role = deref(role)
	p.Status = deref(status)
	return p, nil
}

// UpdateProjection writes profile attributes onto an existing projection.
// Returns ErrNotFound when the projection is still missing so callers can
// distinguish "too early" from a genuine write failure.
func (r *Repository) UpdateProjection(ctx context.Context, id uuid.UUID, attrs Attributes) error {
	const query = `
		UPDATE profiles
		SET first_name = $2, last_name = $3, phone = $4, role = $5, status = $6, updated_at = $7
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, attrs.FirstName, attrs.LastName, attrs.Phone, attrs.Role, attrs.Status, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Projections = (*Repository)(nil)
