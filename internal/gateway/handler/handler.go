// Package handler exposes the gateway over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kgcore/internal/events"
	"kgcore/internal/gateway"
	"kgcore/internal/identity"
	"kgcore/internal/instances/models"
	"kgcore/internal/permission"
	"kgcore/internal/platform/middleware"
	registrymodels "kgcore/internal/registry/models"
	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/platform/httputil"
	"kgcore/pkg/requestcontext"
)

// Service is the gateway surface the handler drives.
type Service interface {
	PostEvent(ctx context.Context, e events.Event) (*gateway.Result, error)
	GetReleaseStatus(ctx context.Context, id uuid.UUID, scope models.TreeScope) (models.ReleaseStatus, error)
	GetReleaseStatuses(ctx context.Context, ids []uuid.UUID, scope models.TreeScope) (map[uuid.UUID]models.ReleaseStatus, error)
	FindInstanceByIdentifiers(ctx context.Context, stage domain.DataStage, id uuid.UUID, identifiers []string) (*domain.InstanceID, error)
	ResolveIDs(ctx context.Context, stage domain.DataStage, requests []registrymodels.ResolveRequest) ([]*domain.InstanceID, error)
	Events(ctx context.Context, id uuid.UUID) ([]events.Persisted, error)
	Replay(ctx context.Context, id uuid.UUID) (*gateway.Result, error)
	FailedEvents(ctx context.Context, limit int) ([]events.Persisted, error)
}

// Handler handles the knowledge graph endpoints.
type Handler struct {
	service Service
	auth    identity.Authenticator
	logger  *slog.Logger
	timeout time.Duration
}

func New(service Service, auth identity.Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		auth:    auth,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// Register registers the routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	kg := chi.NewRouter()
	kg.Use(middleware.Recovery(h.logger))
	kg.Use(middleware.RequestID)
	kg.Use(middleware.RequestTime)
	kg.Use(middleware.Logger(h.logger))
	kg.Use(identity.RequireAuth(h.auth, h.logger))

	kg.Get("/users/me", h.handleMe)
	kg.Post("/events", h.handlePostEvent)
	kg.Get("/instances/{id}/release-status", h.handleReleaseStatus)
	kg.Post("/instances/release-status", h.handleReleaseStatuses)
	kg.Get("/instances/{id}/events", h.handleEvents)
	kg.Post("/instances/find", h.handleFind)
	kg.Post("/instances/resolve", h.handleResolve)
	kg.Post("/admin/instances/{id}/replay", h.handleReplay)
	kg.Get("/admin/events/failed", h.handleFailedEvents)

	r.Mount("/", kg)
}

type meResponse struct {
	UserID       domain.UserID    `json:"userId"`
	UserName     string           `json:"userName,omitempty"`
	ClientID     string           `json:"clientId,omitempty"`
	PrivateSpace domain.SpaceName `json:"privateSpace"`
	Permissions  []string         `json:"permissions"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := permission.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	grants := p.Grants()
	resp := meResponse{
		UserID:       p.UserID(),
		UserName:     p.User().UserName,
		ClientID:     p.ClientID(),
		PrivateSpace: p.PrivateSpace(),
		Permissions:  make([]string, len(grants)),
	}
	for i, g := range grants {
		resp.Permissions[i] = g.String()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var e events.Event
	if err := httputil.DecodeJSON(r, &e); err != nil {
		h.logger.WarnContext(ctx, "invalid event body",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	if e.ReportedAt.IsZero() {
		e.ReportedAt = requestcontext.Now(ctx)
	}

	result, err := h.service.PostEvent(ctx, e)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if result.Suggestion {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, result)
}

type statusResponse struct {
	ID     uuid.UUID            `json:"id"`
	Status models.ReleaseStatus `json:"releaseStatus"`
}

func (h *Handler) handleReleaseStatus(w http.ResponseWriter, r *http.Request) {
	id, err := instanceParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scope, err := scopeParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, err := h.service.GetReleaseStatus(r.Context(), id, scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{ID: id, Status: status})
}

func (h *Handler) handleReleaseStatuses(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var ids []uuid.UUID
	if err := httputil.DecodeJSON(r, &ids); err != nil {
		httputil.WriteError(w, err)
		return
	}
	statuses, err := h.service.GetReleaseStatuses(r.Context(), ids, scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statuses)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := instanceParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.Events(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type lookupRequest struct {
	ID          uuid.UUID `json:"id"`
	Identifiers []string  `json:"identifiers"`
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	stage, err := stageParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req lookupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.service.FindInstanceByIdentifiers(r.Context(), stage, req.ID, req.Identifiers)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if found == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no instance matches the identifiers"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

type resolveResult struct {
	Request  lookupRequest      `json:"request"`
	Instance *domain.InstanceID `json:"instance"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	stage, err := stageParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var reqs []lookupRequest
	if err := httputil.DecodeJSON(r, &reqs); err != nil {
		httputil.WriteError(w, err)
		return
	}
	batch := make([]registrymodels.ResolveRequest, len(reqs))
	for i, req := range reqs {
		batch[i] = registrymodels.ResolveRequest{UUID: req.ID, Identifiers: req.Identifiers}
	}
	resolved, err := h.service.ResolveIDs(r.Context(), stage, batch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]resolveResult, len(reqs))
	for i, req := range reqs {
		out[i] = resolveResult{Request: req, Instance: resolved[i]}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	id, err := instanceParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Replay(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleFailedEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	list, err := h.service.FailedEvents(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func instanceParam(r *http.Request) (uuid.UUID, error) {
	return domain.ParseInstanceUUID(chi.URLParam(r, "id"))
}

func scopeParam(r *http.Request) (models.TreeScope, error) {
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		return models.ScopeTopInstanceOnly, nil
	}
	return models.ParseTreeScope(raw)
}

func stageParam(r *http.Request) (domain.DataStage, error) {
	raw := r.URL.Query().Get("stage")
	if raw == "" {
		return domain.StageInProgress, nil
	}
	return domain.ParseDataStage(raw)
}
