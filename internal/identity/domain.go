package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates that a projection is not (yet) visible. During
// provisioning this is a normal probe outcome, not a failure.
var ErrNotFound = errors.New("identity: projection not found")

// Projection is the profile record derived from an identity. It is
// materialized asynchronously by the identity platform, outside any
// transaction this application controls.
type Projection struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewIdentity carries the inputs for creating an authentication identity.
type NewIdentity struct {
	Email    string
	Secret   string
	Metadata Metadata
}

// Metadata is the auxiliary payload stored alongside an identity. It doubles
// as the fallback role source when the projection cannot be fetched in time.
type Metadata struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Attributes are the profile fields written onto a projection once it exists.
type Attributes struct {
	FirstName string
	LastName  string
	Phone     string
	Role      string
	Status    string
}

// EventType enumerates identity platform notifications.
type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
)

// Event is a single notification from the identity platform.
type Event struct {
	Type       EventType `json:"type"`
	IdentityID uuid.UUID `json:"identity_id"`
	Metadata   Metadata  `json:"metadata"`
}
