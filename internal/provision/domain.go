package provision

import (
	"time"

	"github.com/google/uuid"

	"github.com/memberline/memberline/internal/authz"
)

// Member lifecycle statuses as stored on the projection.
const (
	StatusPending = "pending"
	StatusActive  = "active"
)

// Request is the input for provisioning a new member account.
type Request struct {
	Email     string `validate:"required,email"`
	Secret    string `validate:"omitempty,min=12"`
	Role      string `validate:"required"`
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
	Phone     string `validate:"omitempty,min=6"`

	// Membership, when set, requests a dependent membership record after the
	// profile attributes are written.
	Membership *MembershipTerms
}

// MembershipTerms describe the dependent membership record.
type MembershipTerms struct {
	StartDate      time.Time `validate:"required"`
	DurationMonths int       `validate:"required,min=1,max=120"`
}

// Result reports which provisioning steps completed, so callers can
// distinguish full success from partial completion and resume from the right
// stage.
type Result struct {
	IdentityID         uuid.UUID `json:"identity_id"`
	Status             string    `json:"status"`
	IdentityCreated    bool      `json:"identity_created"`
	ProjectionObserved bool      `json:"projection_observed"`
	AttributesWritten  bool      `json:"attributes_written"`
	MembershipCreated  bool      `json:"membership_created"`
	UsedDefaultSecret  bool      `json:"used_default_secret"`
}

// Membership is the dependent record created for a provisioned member.
type Membership struct {
	IdentityID uuid.UUID
	StartedOn  time.Time
	ExpiresOn  time.Time
}

// MemberCreatedEvent is the outward notification emitted after provisioning
// reaches at least the attribute-write stage.
type MemberCreatedEvent struct {
	IdentityID        uuid.UUID `json:"identity_id"`
	Email             string    `json:"email"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Role              string    `json:"role"`
	Status            string    `json:"status"`
	MembershipCreated bool      `json:"membership_created"`
}

// deriveStatus maps the requested role to the initial member status. The
// lowest-privilege onboarding role starts pending; everyone else is active.
// This is the one place that policy lives.
func deriveStatus(role authz.Role) string {
	if role == authz.RoleProspective {
		return StatusPending
	}
	return StatusActive
}
