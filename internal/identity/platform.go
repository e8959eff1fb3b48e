package identity

import (
	"context"

	"github.com/google/uuid"
)

// Creator creates authentication identities on the identity platform.
type Creator interface {
	CreateIdentity(ctx context.Context, input NewIdentity) (uuid.UUID, error)
}

// Projections reads and writes the profile projections owned by the data
// platform. FetchProjection returns ErrNotFound while the projection has not
// been materialized yet.
type Projections interface {
	FetchProjection(ctx context.Context, id uuid.UUID) (Projection, error)
	UpdateProjection(ctx context.Context, id uuid.UUID, attrs Attributes) error
}

// Platform is the full identity platform surface consumed by this core.
type Platform interface {
	Creator
	Projections
}

// EventStream delivers identity platform notifications. The returned channel
// closes when the subscription ends.
type EventStream interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Directory composes an identity creator with a projection store into the
// Platform consumed by provisioning. Identity creation goes to the platform's
// admin API while projections live in the application database.
type Directory struct {
	Creator     Creator
	Projections Projections
}

// CreateIdentity delegates to the configured creator.
func (d Directory) CreateIdentity(ctx context.Context, input NewIdentity) (uuid.UUID, error) {
	return d.Creator.CreateIdentity(ctx, input)
}

// FetchProjection delegates to the projection store.
func (d Directory) FetchProjection(ctx context.Context, id uuid.UUID) (Projection, error) {
	return d.Projections.FetchProjection(ctx, id)
}

// UpdateProjection delegates to the projection store.
func (d Directory) UpdateProjection(ctx context.Context, id uuid.UUID, attrs Attributes) error {
	return d.Projections.UpdateProjection(ctx, id, attrs)
}

var _ Platform = Directory{}
