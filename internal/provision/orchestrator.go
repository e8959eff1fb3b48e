package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/memberline/memberline/internal/authz"
	"github.com/memberline/memberline/internal/identity"
)

// MembershipRepository persists dependent membership records.
type MembershipRepository interface {
	CreateMembership(ctx context.Context, m Membership) error
}

// Notifier receives the outward member.created event. Implementations are
// expected to be best-effort; the orchestrator never lets a notifier error
// change a provisioning outcome.
type Notifier interface {
	MemberCreated(ctx context.Context, event MemberCreatedEvent) error
}

// StageObserver records provisioning stage outcomes for metrics.
type StageObserver interface {
	ObserveProvisionStage(stage, outcome string)
}

// Config carries orchestrator policy knobs.
type Config struct {
	// DefaultSecret is used when a request supplies no secret. The result
	// flags its use so the caller can notify the actor out-of-band.
	DefaultSecret string
}

// Orchestrator sequences identity creation, projection wait, attribute write
// and membership creation. Steps are strictly sequential; each step starts
// only after its predecessor completed.
type Orchestrator struct {
	platform    identity.Platform
	waiter      *Waiter
	memberships MembershipRepository
	notifier    Notifier
	observer    StageObserver
	validate    *validator.Validate
	cfg         Config
	logger      *slog.Logger
}

// NewOrchestrator constructs an orchestrator.
func NewOrchestrator(platform identity.Platform, waiter *Waiter, memberships MembershipRepository, notifier Notifier, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		platform:    platform,
		waiter:      waiter,
		memberships: memberships,
		notifier:    notifier,
		validate:    validator.New(),
		cfg:         cfg,
		logger:      logger,
	}
}

// WithObserver attaches a metrics observer.
func (o *Orchestrator) WithObserver(observer StageObserver) *Orchestrator {
	o.observer = observer
	return o
}

// Provision executes the full provisioning flow. The returned Result is
// meaningful even when err is non-nil: its flags report how far the flow got,
// and typed errors carry the identity ID needed to resume.
func (o *Orchestrator) Provision(ctx context.Context, req Request) (Result, error) {
	var result Result

	if err := o.validate.Struct(req); err != nil {
		return result, fmt.Errorf("provision: invalid request: %w", err)
	}

	role := authz.NormalizeRole(req.Role)
	status := deriveStatus(role)
	result.Status = status

	secret := req.Secret
	if secret == "" {
		if o.cfg.DefaultSecret == "" {
			return result, errors.New("provision: no secret supplied and no default configured")
		}
		secret = o.cfg.DefaultSecret
		result.UsedDefaultSecret = true
	}

	id, err := o.platform.CreateIdentity(ctx, identity.NewIdentity{
		Email:  req.Email,
		Secret: secret,
		Metadata: identity.Metadata{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      string(role),
			Status:    status,
		},
	})
	if err != nil {
		o.observe(StageIdentity, "error")
		return result, &IdentityError{Err: err}
	}
	o.observe(StageIdentity, "ok")
	result.IdentityID = id
	result.IdentityCreated = true

	return o.continueFrom(ctx, id, role, status, req, result)
}

// Resume re-runs the wait, attribute-write and membership stages for an
// identity that already exists upstream. It is the retry path for
// ProjectionTimeoutError and AttributeWriteError results.
func (o *Orchestrator) Resume(ctx context.Context, id uuid.UUID, req Request) (Result, error) {
	if id == uuid.Nil {
		return Result{}, errors.New("provision: resume requires an identity id")
	}
	// Full validation, same as Provision: the secret is omitempty (no
	// identity gets created here) but membership terms must still be sound.
	if err := o.validate.Struct(req); err != nil {
		return Result{}, fmt.Errorf("provision: invalid request: %w", err)
	}

	role := authz.NormalizeRole(req.Role)
	status := deriveStatus(role)
	result := Result{
		IdentityID:      id,
		Status:          status,
		IdentityCreated: true,
	}
	return o.continueFrom(ctx, id, role, status, req, result)
}

func (o *Orchestrator) continueFrom(ctx context.Context, id uuid.UUID, role authz.Role, status string, req Request, result Result) (Result, error) {
	if _, err := o.waiter.Await(ctx, id); err != nil {
		var timeoutErr *ProjectionTimeoutError
		if errors.As(err, &timeoutErr) {
			o.observe(StageProjection, "timeout")
			return result, timeoutErr
		}
		// Only budget exhaustion is a timeout; anything else here is the
		// caller cancelling between probes.
		o.observe(StageProjection, "canceled")
		return result, err
	}
	o.observe(StageProjection, "ok")
	result.ProjectionObserved = true

	err := o.platform.UpdateProjection(ctx, id, identity.Attributes{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      string(role),
		Status:    status,
	})
	if err != nil {
		o.observe(StageAttributes, "error")
		return result, &AttributeWriteError{IdentityID: id, Err: err}
	}
	o.observe(StageAttributes, "ok")
	result.AttributesWritten = true

	var membershipErr error
	if req.Membership != nil {
		start := req.Membership.StartDate
		membership := Membership{
			IdentityID: id,
			StartedOn:  start,
			ExpiresOn:  start.AddDate(0, req.Membership.DurationMonths, 0),
		}
		if err := o.memberships.CreateMembership(ctx, membership); err != nil {
			o.observe(StageMembership, "error")
			membershipErr = &MembershipError{IdentityID: id, Err: err}
		} else {
			o.observe(StageMembership, "ok")
			result.MembershipCreated = true
		}
	}

	o.emitMemberCreated(ctx, req, role, status, result)

	return result, membershipErr
}

// emitMemberCreated hands the outward event to the notifier. Failure here is
// logged and dropped; notification delivery must never fail provisioning.
func (o *Orchestrator) emitMemberCreated(ctx context.Context, req Request, role authz.Role, status string, result Result) {
	if o.notifier == nil {
		return
	}
	event := MemberCreatedEvent{
		IdentityID:        result.IdentityID,
		Email:             req.Email,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Role:              string(role),
		Status:            status,
		MembershipCreated: result.MembershipCreated,
	}
	if err := o.notifier.MemberCreated(ctx, event); err != nil && o.logger != nil {
		o.logger.Warn("member.created notification dropped",
			slog.String("identity_id", result.IdentityID.String()),
			slog.Any("error", err))
	}
}

func (o *Orchestrator) observe(stage Stage, outcome string) {
	if o.observer != nil {
		o.observer.ObserveProvisionStage(string(stage), outcome)
	}
}
