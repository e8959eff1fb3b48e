package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/memberline/memberline/internal/identity"
	_ "github.com/memberline/memberline/testing"
)

type fakePlatform struct {
	createErr     error
	createdID     uuid.UUID
	created       []identity.NewIdentity
	fetchMisses   int
	fetchCalls    int
	updateErr     error
	updates       []identity.Attributes
	updateTargets []uuid.UUID
}

func (p *fakePlatform) CreateIdentity(ctx context.Context, input identity.NewIdentity) (uuid.UUID, error) {
	if p.createErr != nil {
		return uuid.Nil, p.createErr
	}
	p.created = append(p.created, input)
	if p.createdID == uuid.Nil {
		p.createdID = uuid.New()
	}
	return p.createdID, nil
}

func (p *fakePlatform) FetchProjection(ctx context.Context, id uuid.UUID) (identity.Projection, error) {
	p.fetchCalls++
	if p.fetchCalls <= p.fetchMisses {
		return identity.Projection{}, identity.ErrNotFound
	}
	return identity.Projection{ID: id}, nil
}

func (p *fakePlatform) UpdateProjection(ctx context.Context, id uuid.UUID, attrs identity.Attributes) error {
	if p.updateErr != nil {
		return p.updateErr
	}
	p.updates = append(p.updates, attrs)
	p.updateTargets = append(p.updateTargets, id)
	return nil
}

type fakeMemberships struct {
	err     error
	records []Membership
}

func (m *fakeMemberships) CreateMembership(ctx context.Context, membership Membership) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, membership)
	return nil
}

type fakeNotifier struct {
	err    error
	events []MemberCreatedEvent
}

func (n *fakeNotifier) MemberCreated(ctx context.Context, event MemberCreatedEvent) error {
	n.events = append(n.events, event)
	return n.err
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

// newTestOrchestrator takes the Notifier interface, not *fakeNotifier: a nil
// literal must reach NewOrchestrator as a nil interface so the no-notifier
// path is exercised rather than a typed nil slipping past the guard.
func newTestOrchestrator(platform *fakePlatform, memberships *fakeMemberships, notifier Notifier) *Orchestrator {
	waiter := NewWaiter(platform, WaitConfig{Interval: time.Millisecond, MaxAttempts: 10}, nil).WithSleep(noSleep)
	return NewOrchestrator(platform, waiter, memberships, notifier, Config{DefaultSecret: "default-secret-value"}, nil)
}

func validRequest() Request {
	return Request{
		Email:     "ada@chapter.test",
		Secret:    "chosen-secret-value",
		Role:      "member",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
}

func TestProvisionFullSuccess(t *testing.T) {
	platform := &fakePlatform{fetchMisses: 9}
	memberships := &fakeMemberships{}
	notifier := &fakeNotifier{}
	orch := newTestOrchestrator(platform, memberships, notifier)

	req := validRequest()
	req.Membership = &MembershipTerms{StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), DurationMonths: 12}

	result, err := orch.Provision(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.IdentityCreated)
	require.True(t, result.ProjectionObserved)
	require.True(t, result.AttributesWritten)
	require.True(t, result.MembershipCreated)
	require.False(t, result.UsedDefaultSecret)
	require.Equal(t, StatusActive, result.Status)

	// Found on the tenth probe after nine misses.
	require.Equal(t, 10, platform.fetchCalls)

	require.Len(t, memberships.records, 1)
	require.Equal(t, platform.createdID, memberships.records[0].IdentityID)
	require.Equal(t, time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC), memberships.records[0].ExpiresOn)

	require.Len(t, notifier.events, 1)
	require.True(t, notifier.events[0].MembershipCreated)
}

func TestProvisionStatusDerivation(t *testing.T) {
	cases := map[string]string{
		"prospective": StatusPending,
		"member":      StatusActive,
		"admin":       StatusActive,
	}
	for role, want := range cases {
		platform := &fakePlatform{}
		orch := newTestOrchestrator(platform, &fakeMemberships{}, nil)
		req := validRequest()
		req.Role = role

		result, err := orch.Provision(context.Background(), req)
		require.NoError(t, err, "role=%s", role)
		require.Equal(t, want, result.Status, "role=%s", role)
		require.Equal(t, want, platform.created[0].Metadata.Status, "role=%s", role)
	}
}

func TestProvisionIdentityFailure(t *testing.T) {
	platform := &fakePlatform{createErr: errors.New("email taken")}
	orch := newTestOrchestrator(platform, &fakeMemberships{}, nil)

	result, err := orch.Provision(context.Background(), validRequest())
	var identityErr *IdentityError
	require.ErrorAs(t, err, &identityErr)
	require.False(t, result.IdentityCreated)
	require.Equal(t, uuid.Nil, result.IdentityID)
}

func TestProvisionProjectionTimeoutSkipsAttributeWrite(t *testing.T) {
	platform := &fakePlatform{fetchMisses: 1000}
	orch := newTestOrchestrator(platform, &fakeMemberships{}, nil)

	result, err := orch.Provision(context.Background(), validRequest())
	var timeoutErr *ProjectionTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, platform.createdID, timeoutErr.IdentityID)

	require.True(t, result.IdentityCreated)
	require.False(t, result.ProjectionObserved)
	require.Empty(t, platform.updates, "attribute write must not run after timeout")

	stage, id, ok := ErrorStage(err)
	require.True(t, ok)
	require.Equal(t, StageProjection, stage)
	require.Equal(t, platform.createdID, id)
}

func TestProvisionAttributeWriteFailure(t *testing.T) {
	platform := &fakePlatform{updateErr: errors.New("row locked")}
	orch := newTestOrchestrator(platform, &fakeMemberships{}, nil)

	result, err := orch.Provision(context.Background(), validRequest())
	var attrErr *AttributeWriteError
	require.ErrorAs(t, err, &attrErr)
	require.Equal(t, platform.createdID, attrErr.IdentityID)
	require.True(t, result.ProjectionObserved)
	require.False(t, result.AttributesWritten)
}

func TestProvisionMembershipFailureIsReportedNotRolledBack(t *testing.T) {
	platform := &fakePlatform{}
	memberships := &fakeMemberships{err: errors.New("insert failed")}
	notifier := &fakeNotifier{}
	orch := newTestOrchestrator(platform, memberships, notifier)

	req := validRequest()
	req.Membership = &MembershipTerms{StartDate: time.Now().UTC(), DurationMonths: 6}

	result, err := orch.Provision(context.Background(), req)
	var memberErr *MembershipError
	require.ErrorAs(t, err, &memberErr)

	// Identity and profile survive; nothing is compensated.
	require.True(t, result.AttributesWritten)
	require.False(t, result.MembershipCreated)
	require.Len(t, platform.updates, 1)

	// The outward event still fires for the partial success.
	require.Len(t, notifier.events, 1)
	require.False(t, notifier.events[0].MembershipCreated)
}

func TestProvisionNotifierFailureDoesNotFailProvisioning(t *testing.T) {
	platform := &fakePlatform{}
	notifier := &fakeNotifier{err: errors.New("queue down")}
	orch := newTestOrchestrator(platform, &fakeMemberships{}, notifier)

	result, err := orch.Provision(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, result.AttributesWritten)
	require.Len(t, notifier.events, 1)
}

func TestProvisionWithoutNotifierCompletes(t *testing.T) {
	platform := &fakePlatform{}
	orch := newTestOrchestrator(platform, &fakeMemberships{}, nil)

	result, err := orch.Provision(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, result.AttributesWritten)
}

func TestProvisionUsesDefaultSecret(t *testing.T) {
	platform := &fakePlatform{}
	orch := newTestOrchestrator(platform, &fakeMemberships{}, nil)

	req := validRequest()
	req.Secret = ""

	result, err := orch.Provision(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.UsedDefaultSecret)
	require.Equal(t, "default-secret-value", platform.created[0].Secret)
}

func TestProvisionRejectsInvalidRequest(t *testing.T) {
	orch := newTestOrchestrator(&fakePlatform{}, &fakeMemberships{}, nil)

	req := validRequest()
	req.Email = "not-an-email"

	_, err := orch.Provision(context.Background(), req)
	require.Error(t, err)
}

type stageRecorder struct {
	observations []string
}

func (r *stageRecorder) ObserveProvisionStage(stage, outcome string) {
	r.observations = append(r.observations, stage+":"+outcome)
}

func TestProvisionCanceledWaitIsNotATimeout(t *testing.T) {
	platform := &fakePlatform{fetchMisses: 1000}
	recorder := &stageRecorder{}
	orch := newTestOrchestrator(platform, &fakeMemberships{}, nil).WithObserver(recorder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Provision(ctx, validRequest())
	require.ErrorIs(t, err, context.Canceled)
	var timeoutErr *ProjectionTimeoutError
	require.False(t, errors.As(err, &timeoutErr))

	require.Contains(t, recorder.observations, "projection:canceled")
	require.NotContains(t, recorder.observations, "projection:timeout")
}

func TestResumeRejectsInvalidMembershipTerms(t *testing.T) {
	platform := &fakePlatform{}
	memberships := &fakeMemberships{}
	orch := newTestOrchestrator(platform, memberships, nil)

	req := validRequest()
	req.Secret = ""
	req.Membership = &MembershipTerms{}

	_, err := orch.Resume(context.Background(), uuid.New(), req)
	require.Error(t, err, "zero start date and duration must not pass validation")
	require.Empty(t, memberships.records)
	require.Empty(t, platform.updates, "validation failure must precede any write")
}

func TestResumeSkipsIdentityCreation(t *testing.T) {
	platform := &fakePlatform{}
	orch := newTestOrchestrator(platform, &fakeMemberships{}, nil)

	id := uuid.New()
	result, err := orch.Resume(context.Background(), id, validRequest())
	require.NoError(t, err)
	require.Empty(t, platform.created, "resume must not re-create the identity")
	require.Equal(t, id, result.IdentityID)
	require.True(t, result.AttributesWritten)
	require.Equal(t, []uuid.UUID{id}, platform.updateTargets)
}
