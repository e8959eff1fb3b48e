package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/memberline/memberline/internal/authz"
	"github.com/memberline/memberline/internal/identity"
	"github.com/memberline/memberline/internal/platform/httpx"
	"github.com/memberline/memberline/internal/provision"
	"github.com/memberline/memberline/internal/session"
	"github.com/memberline/memberline/internal/shared"
)

// Handler exposes the JSON surface UI collaborators consult: permission
// checks, the current session and member provisioning.
type Handler struct {
	logger       *slog.Logger
	matrix       authz.Matrix
	sessions     *session.Store
	orchestrator *provision.Orchestrator
	projections  identity.Projections
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, matrix authz.Matrix, sessions *session.Store, orchestrator *provision.Orchestrator) *Handler {
	return &Handler{logger: logger, matrix: matrix, sessions: sessions, orchestrator: orchestrator}
}

// WithProjections enables the member lookup route.
func (h *Handler) WithProjections(projections identity.Projections) *Handler {
	h.projections = projections
	return h
}

// MountRoutes registers API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/permissions", func(r chi.Router) {
		r.Get("/can", h.can)
		r.Get("/access", h.canAccess)
		r.Get("/actions", h.actions)
	})
	r.Get("/actors/{id}/manageable", h.canManageActor)
	r.Get("/session", h.currentSession)
	if h.projections != nil {
		r.Get("/members/{identityID}", h.getMember)
	}
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/members", h.provisionMember)
		r.Post("/members/{identityID}/resume", h.resumeMember)
	})
}

type permissionResponse struct {
	Allowed bool `json:"allowed"`
}

// currentActor prefers the per-request snapshot installed by the middleware
// stack, falling back to a live store read when no snapshot is present.
func (h *Handler) currentActor(r *http.Request) session.ActorSession {
	if sess, ok := shared.ActorFromContext(r.Context()); ok {
		return sess
	}
	return h.sessions.Current()
}

// can never errors on unknown resources or actions; an unknown name simply
// has no permissions.
func (h *Handler) can(w http.ResponseWriter, r *http.Request) {
	sess := h.currentActor(r)
	resource, okRes := authz.ParseResource(r.URL.Query().Get("resource"))
	action, okAct := authz.ParseAction(r.URL.Query().Get("action"))
	allowed := okRes && okAct && authz.HasPermission(h.matrix, sess.Role, resource, action)
	httpx.JSON(w, http.StatusOK, permissionResponse{Allowed: allowed})
}

func (h *Handler) canAccess(w http.ResponseWriter, r *http.Request) {
	sess := h.currentActor(r)
	resource, ok := authz.ParseResource(r.URL.Query().Get("resource"))
	allowed := ok && authz.CanAccessResource(h.matrix, sess.Role, resource)
	httpx.JSON(w, http.StatusOK, permissionResponse{Allowed: allowed})
}

type actionsResponse struct {
	Actions []authz.Action `json:"actions"`
}

func (h *Handler) actions(w http.ResponseWriter, r *http.Request) {
	sess := h.currentActor(r)
	resource, ok := authz.ParseResource(r.URL.Query().Get("resource"))
	if !ok {
		httpx.JSON(w, http.StatusOK, actionsResponse{Actions: []authz.Action{}})
		return
	}
	actions := authz.ResourceActions(h.matrix, sess.Role, resource).Slice()
	httpx.JSON(w, http.StatusOK, actionsResponse{Actions: actions})
}

func (h *Handler) canManageActor(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Actor ID", "actor id must be a UUID")
		return
	}
	sess := h.currentActor(r)
	allowed := authz.CanManageActor(h.matrix, sess.Role, sess.IdentityID, targetID)
	httpx.JSON(w, http.StatusOK, permissionResponse{Allowed: allowed})
}

type sessionResponse struct {
	IdentityID     string     `json:"identity_id,omitempty"`
	Role           authz.Role `json:"role"`
	Degraded       bool       `json:"degraded"`
	DegradedReason string     `json:"degraded_reason,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	HasProjection  bool       `json:"has_projection"`
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) {
	sess := h.currentActor(r)
	resp := sessionResponse{
		Role:           sess.Role,
		Degraded:       sess.Degraded,
		DegradedReason: sess.DegradedReason,
		HasProjection:  sess.Projection != nil,
	}
	if sess.Anonymous() {
		resp.Role = authz.RoleGuest
	} else {
		resp.IdentityID = sess.IdentityID.String()
		resolvedAt := sess.ResolvedAt
		resp.ResolvedAt = &resolvedAt
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type provisionRequest struct {
	Email      string `json:"email"`
	Secret     string `json:"secret"`
	Role       string `json:"role"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
	Membership *struct {
		StartDate      time.Time `json:"start_date"`
		DurationMonths int       `json:"duration_months"`
	} `json:"membership"`
}

func (h *Handler) provisionMember(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProvisionRequest(w, r)
	if !ok {
		return
	}
	result, err := h.orchestrator.Provision(r.Context(), req)
	h.respondProvision(w, result, err)
}

func (h *Handler) getMember(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "identityID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identity ID", "identity id must be a UUID")
		return
	}
	projection, err := h.projections.FetchProjection(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		if h.logger != nil {
			h.logger.Error("fetch member projection", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, projection)
}

func (h *Handler) resumeMember(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "identityID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identity ID", "identity id must be a UUID")
		return
	}
	req, ok := h.decodeProvisionRequest(w, r)
	if !ok {
		return
	}
	result, resumeErr := h.orchestrator.Resume(r.Context(), id, req)
	h.respondProvision(w, result, resumeErr)
}

func (h *Handler) decodeProvisionRequest(w http.ResponseWriter, r *http.Request) (provision.Request, bool) {
	var body provisionRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return provision.Request{}, false
	}
	req := provision.Request{
		Email:     body.Email,
		Secret:    body.Secret,
		Role:      body.Role,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Phone:     body.Phone,
	}
	if body.Membership != nil {
		req.Membership = &provision.MembershipTerms{
			StartDate:      body.Membership.StartDate,
			DurationMonths: body.Membership.DurationMonths,
		}
	}
	return req, true
}

// provisionProblem extends the problem shape with the failed stage and the
// identity needed to resume, so support tooling can retry only the failed
// phase.
type provisionProblem struct {
	httpx.ProblemDetail
	Stage      string            `json:"stage,omitempty"`
	IdentityID string            `json:"identity_id,omitempty"`
	Result     *provision.Result `json:"result,omitempty"`
}

func (h *Handler) respondProvision(w http.ResponseWriter, result provision.Result, err error) {
	if err == nil {
		httpx.JSON(w, http.StatusCreated, result)
		return
	}

	if errors.Is(err, provision.ErrDuplicateMembership) {
		httpx.Problem(w, http.StatusConflict, "Duplicate Membership", err.Error())
		return
	}

	stage, identityID, ok := ErrorDetails(err)
	if !ok {
		if h.logger != nil {
			h.logger.Error("provisioning rejected", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if h.logger != nil {
		h.logger.Error("provisioning failed",
			slog.String("stage", stage),
			slog.String("identity_id", identityID),
			slog.Any("error", err))
	}
	problem := provisionProblem{
		ProblemDetail: httpx.ProblemDetail{
			Title:  "Provisioning Failed",
			Status: http.StatusBadGateway,
			Detail: err.Error(),
		},
		Stage:      stage,
		IdentityID: identityID,
		Result:     &result,
	}
	httpx.JSON(w, http.StatusBadGateway, problem)
}

// ErrorDetails flattens a typed provisioning error for transport.
func ErrorDetails(err error) (stage, identityID string, ok bool) {
	s, id, ok := provision.ErrorStage(err)
	if !ok {
		return "", "", false
	}
	if id != uuid.Nil {
		identityID = id.String()
	}
	return string(s), identityID, true
}
