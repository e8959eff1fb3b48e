package provision

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for memberships.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateMembership inserts a membership record. A duplicate for the same
// identity is reported as ErrDuplicateMembership.
func (r *Repository) CreateMembership(ctx context.Context, m Membership) error {
	const query = `
		INSERT INTO memberships (identity_id, started_on, expires_on, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.pool.Exec(ctx, query, m.IdentityID, m.StartedOn, m.ExpiresOn, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateMembership
		}
		return err
	}
	return nil
}

var _ MembershipRepository = (*Repository)(nil)
