package provision

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Stage names the provisioning step an error occurred in.
type Stage string

const (
	StageIdentity   Stage = "identity"
	StageProjection Stage = "projection"
	StageAttributes Stage = "attributes"
	StageMembership Stage = "membership"
)

// ErrDuplicateMembership indicates the membership record already exists.
var ErrDuplicateMembership = errors.New("provision: membership already exists")

// IdentityError means identity creation failed. Nothing was created; the
// request is safe to retry from scratch.
type IdentityError struct {
	Err error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("provision: identity creation failed: %v", e.Err)
}

func (e *IdentityError) Unwrap() error { return e.Err }

// ProjectionTimeoutError means the identity exists upstream but its projection
// never became visible within the attempt budget. The carried identity ID
// makes the attribute-write phase resumable without re-creating the identity.
type ProjectionTimeoutError struct {
	IdentityID uuid.UUID
	Attempts   int
}

func (e *ProjectionTimeoutError) Error() string {
	return fmt.Sprintf("provision: projection for %s not visible after %d attempts", e.IdentityID, e.Attempts)
}

// AttributeWriteError means identity and projection exist but the attribute
// write failed; attributes may be partially applied.
type AttributeWriteError struct {
	IdentityID uuid.UUID
	Err        error
}

func (e *AttributeWriteError) Error() string {
	return fmt.Sprintf("provision: attribute write for %s failed: %v", e.IdentityID, e.Err)
}

func (e *AttributeWriteError) Unwrap() error { return e.Err }

// MembershipError means identity and profile exist but the membership record
// was not created. The member is in a valid but incomplete state; nothing is
// rolled back.
type MembershipError struct {
	IdentityID uuid.UUID
	Err        error
}

func (e *MembershipError) Error() string {
	return fmt.Sprintf("provision: membership creation for %s failed: %v", e.IdentityID, e.Err)
}

func (e *MembershipError) Unwrap() error { return e.Err }

// ErrorStage extracts the stage and resumption identity from a provisioning
// error. The second return is uuid.Nil when the failure predates identity
// creation.
func ErrorStage(err error) (Stage, uuid.UUID, bool) {
	var identityErr *IdentityError
	if errors.As(err, &identityErr) {
		return StageIdentity, uuid.Nil, true
	}
	var timeoutErr *ProjectionTimeoutError
	if errors.As(err, &timeoutErr) {
		return StageProjection, timeoutErr.IdentityID, true
	}
	var attrErr *AttributeWriteError
	if errors.As(err, &attrErr) {
		return StageAttributes, attrErr.IdentityID, true
	}
	var memberErr *MembershipError
	if errors.As(err, &memberErr) {
		return StageMembership, memberErr.IdentityID, true
	}
	return "", uuid.Nil, false
}
