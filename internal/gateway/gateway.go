// Package gateway is the single entry point for mutations. It authorizes an
// event, persists it and drives reconciliation and the release lifecycle inside
// one unit of work per instance.
package gateway

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"kgcore/internal/events"
	"kgcore/internal/instances/models"
	"kgcore/internal/reconcile"
	registrymodels "kgcore/internal/registry/models"
	"kgcore/internal/space"
	"kgcore/pkg/domain"
)

const tracerName = "kgcore/internal/gateway"

// Spaces is the space registry.
type Spaces interface {
	Get(ctx context.Context, name domain.SpaceName) (*space.Space, error)
	Save(ctx context.Context, sp space.Space) error
}

// Journal records every accepted or failed event.
type Journal interface {
	Append(ctx context.Context, e events.Persisted) error
	Get(ctx context.Context, id uuid.UUID) (*events.Persisted, error)
	ListByInstance(ctx context.Context, id uuid.UUID) ([]events.Persisted, error)
	ListFailed(ctx context.Context, limit int) ([]events.Persisted, error)
}

// Lifecycle moves instances through their stages.
type Lifecycle interface {
	Info(ctx context.Context, id uuid.UUID) (*models.Info, error)
	Contribute(ctx context.Context, id domain.InstanceID, user domain.UserID, patch domain.Document, mode reconcile.PatchMode, suggestion bool) (*reconcile.Contribution, error)
	Materialize(ctx context.Context, id domain.InstanceID) (*models.InferredRecord, error)
	Release(ctx context.Context, id uuid.UUID, expectedRevision string) (*models.ReleasedRecord, error)
	Unrelease(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) (domain.InstanceID, error)
	ReleaseStatus(ctx context.Context, id uuid.UUID, scope models.TreeScope) (models.ReleaseStatus, error)
	ReleaseStatuses(ctx context.Context, ids []uuid.UUID, scope models.TreeScope) (map[uuid.UUID]models.ReleaseStatus, error)
}

// Registry resolves identifiers to instances.
type Registry interface {
	AbsoluteID(id uuid.UUID) string
	FindInstanceByIdentifiers(ctx context.Context, stage domain.DataStage, id uuid.UUID, identifiers []string) (*domain.InstanceID, error)
	ResolveIDs(ctx context.Context, stage domain.DataStage, requests []registrymodels.ResolveRequest) ([]*domain.InstanceID, error)
}

// Gateway orchestrates the write path.
type Gateway struct {
	uow       UnitOfWork
	spaces    Spaces
	journal   Journal
	lifecycle Lifecycle
	registry  Registry
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gateway) {
		g.tracer = tp.Tracer(tracerName)
	}
}

func New(uow UnitOfWork, spaces Spaces, journal Journal, lifecycle Lifecycle, registry Registry, opts ...Option) *Gateway {
	g := &Gateway{
		uow:       uow,
		spaces:    spaces,
		journal:   journal,
		lifecycle: lifecycle,
		registry:  registry,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Result describes an accepted event.
type Result struct {
	ID         domain.InstanceID    `json:"id"`
	EventID    uuid.UUID            `json:"eventId"`
	Suggestion bool                 `json:"suggestion,omitempty"`
	Revision   string               `json:"revision,omitempty"`
	Status     models.ReleaseStatus `json:"releaseStatus,omitempty"`
}
