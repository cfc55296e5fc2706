package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kgcore/internal/instances/models"
	"kgcore/internal/reconcile"
	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/requestcontext"
)

// Store persists contributions, inferred and released documents and the status marker.
type Store interface {
	Info(ctx context.Context, id uuid.UUID) (*models.Info, error)
	SaveInfo(ctx context.Context, info models.Info) error
	RemoveInfo(ctx context.Context, id uuid.UUID) error
	ReleaseStatuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ReleaseStatus, error)

	Contributions(ctx context.Context, id uuid.UUID) ([]reconcile.Contribution, error)
	Contribution(ctx context.Context, id uuid.UUID, user domain.UserID) (*reconcile.Contribution, error)
	SaveContribution(ctx context.Context, id domain.InstanceID, c reconcile.Contribution) error
	RemoveContributions(ctx context.Context, id uuid.UUID) ([]string, error)

	Inferred(ctx context.Context, id uuid.UUID) (*models.InferredRecord, error)
	SaveInferred(ctx context.Context, rec models.InferredRecord) error
	RemoveInferred(ctx context.Context, id uuid.UUID) error
	RemoveInferredDerivedFrom(ctx context.Context, contributionIDs []string) ([]uuid.UUID, error)

	Released(ctx context.Context, id uuid.UUID) (*models.ReleasedRecord, error)
	SaveReleased(ctx context.Context, rec models.ReleasedRecord) error
	RemoveReleased(ctx context.Context, id uuid.UUID) error
}

// Registry registers identifiers per stage.
type Registry interface {
	AbsoluteID(id uuid.UUID) string
	Upsert(ctx context.Context, stage domain.DataStage, id domain.InstanceID, alternatives []string) error
	Remove(ctx context.Context, stage domain.DataStage, id uuid.UUID) error
}

// Graph is the per-stage projection of instances.
type Graph interface {
	Upsert(ctx context.Context, stage domain.DataStage, id domain.InstanceID, doc domain.Document) error
	Delete(ctx context.Context, stage domain.DataStage, id uuid.UUID) error
	Related(ctx context.Context, stage domain.DataStage, id uuid.UUID) ([]uuid.UUID, error)
	SpaceOf(ctx context.Context, stage domain.DataStage, id uuid.UUID) (domain.SpaceName, error)
}

// Lifecycle moves instances between NATIVE, IN_PROGRESS and RELEASED. It does
// not open transactions; callers run it inside their unit of work.
type Lifecycle struct {
	store    Store
	registry Registry
	graph    Graph
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Lifecycle)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) {
		l.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Lifecycle) {
		l.metrics = m
	}
}

func New(store Store, registry Registry, graph Graph, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:    store,
		registry: registry,
		graph:    graph,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Contribute folds patch into the user's NATIVE contribution to id.
func (l *Lifecycle) Contribute(ctx context.Context, id domain.InstanceID, user domain.UserID, patch domain.Document, mode reconcile.PatchMode, suggestion bool) (*reconcile.Contribution, error) {
	base, err := l.store.Contribution(ctx, id.UUID, user)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		base = &reconcile.Contribution{}
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contribution")
	}
	base.ID = reconcile.ContributionID(id.UUID.String(), user)
	base.UserID = user
	base.Suggestion = suggestion

	next := reconcile.ApplyPatch(*base, patch, requestcontext.Now(ctx), mode)
	if err := l.store.SaveContribution(ctx, id, next); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save contribution")
	}
	return &next, nil
}

// Materialize reconciles the contributions of id into its IN_PROGRESS document,
// registers its identifiers and recomputes the release status. Running it twice
// over the same contributions yields the same document and revision.
func (l *Lifecycle) Materialize(ctx context.Context, id domain.InstanceID) (*models.InferredRecord, error) {
	contributions, err := l.store.Contributions(ctx, id.UUID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contributions")
	}
	if len(contributions) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "instance has no contributions")
	}

	start := time.Now()
	inferred := reconcile.Reconcile(contributions)
	l.observeReconcile(start)
	inferred.Document.SetID(l.registry.AbsoluteID(id.UUID))

	revision, err := models.Revision(inferred.Document)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute revision")
	}
	if err := l.registry.Upsert(ctx, domain.StageInProgress, id, inferred.Document.Identifiers()); err != nil {
		return nil, err
	}
	rec := models.InferredRecord{ID: id, Inferred: inferred, Revision: revision, UpdatedAt: requestcontext.Now(ctx)}
	if err := l.store.SaveInferred(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save inferred document")
	}

	status, err := l.statusAfterChange(ctx, id.UUID, revision)
	if err != nil {
		return nil, err
	}
	if err := l.store.SaveInfo(ctx, models.Info{ID: id, ReleaseStatus: status}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save release status")
	}
	if err := l.graph.Upsert(ctx, domain.StageInProgress, id, inferred.Document); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to project document")
	}

	l.logger.DebugContext(ctx, "instance materialized",
		"instance_id", id.UUID,
		"space", id.Space,
		"contributions", len(contributions),
		"revision", revision,
		"release_status", status,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &rec, nil
}

// statusAfterChange compares the new IN_PROGRESS revision with the released copy.
func (l *Lifecycle) statusAfterChange(ctx context.Context, id uuid.UUID, revision string) (models.ReleaseStatus, error) {
	released, err := l.store.Released(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.StatusUnreleased, nil
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load released document")
	}
	if released.Revision == revision {
		return models.StatusReleased, nil
	}
	return models.StatusHasChanged, nil
}

// Release copies the IN_PROGRESS document to RELEASED. A non-empty
// expectedRevision must match the current IN_PROGRESS revision.
func (l *Lifecycle) Release(ctx context.Context, id uuid.UUID, expectedRevision string) (*models.ReleasedRecord, error) {
	current, err := l.Inferred(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedRevision != "" && expectedRevision != current.Revision {
		l.logger.WarnContext(ctx, "stale release rejected",
			"instance_id", id,
			"expected_revision", expectedRevision,
			"current_revision", current.Revision,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeStaleRevision, "instance changed since revision "+expectedRevision)
	}

	rec := models.ReleasedRecord{
		ID:         current.ID,
		Document:   current.Inferred.Document.Clone(),
		Revision:   current.Revision,
		ReleasedAt: requestcontext.Now(ctx),
	}
	if err := l.store.SaveReleased(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save released document")
	}
	if err := l.registry.Upsert(ctx, domain.StageReleased, current.ID, rec.Document.Identifiers()); err != nil {
		return nil, err
	}
	if err := l.store.SaveInfo(ctx, models.Info{ID: current.ID, ReleaseStatus: models.StatusReleased}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save release status")
	}
	if err := l.graph.Upsert(ctx, domain.StageReleased, current.ID, rec.Document); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to project released document")
	}
	l.countTransition(models.StatusReleased)
	return &rec, nil
}

// Unrelease withdraws the RELEASED copy. Unreleasing an unreleased instance is a no-op.
func (l *Lifecycle) Unrelease(ctx context.Context, id uuid.UUID) error {
	info, err := l.info(ctx, id)
	if err != nil {
		return err
	}
	if info.ReleaseStatus == models.StatusUnreleased {
		return nil
	}
	if err := l.store.RemoveReleased(ctx, id); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove released document")
	}
	if err := l.registry.Remove(ctx, domain.StageReleased, id); err != nil {
		return err
	}
	if err := l.graph.Delete(ctx, domain.StageReleased, id); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove released projection")
	}
	info.ReleaseStatus = models.StatusUnreleased
	if err := l.store.SaveInfo(ctx, *info); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save release status")
	}
	l.countTransition(models.StatusUnreleased)
	return nil
}

// Delete removes every trace of an unreleased instance: its contributions, the
// inferred documents derived from them, its IN_PROGRESS registration and projection.
func (l *Lifecycle) Delete(ctx context.Context, id uuid.UUID) (domain.InstanceID, error) {
	info, err := l.info(ctx, id)
	if err != nil {
		return domain.InstanceID{}, err
	}
	if info.ReleaseStatus != models.StatusUnreleased {
		return domain.InstanceID{}, dErrors.New(dErrors.CodeInvalidState, "instance is released; unrelease it before deleting")
	}

	contributionIDs, err := l.store.RemoveContributions(ctx, id)
	if err != nil {
		return domain.InstanceID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove contributions")
	}
	derived, err := l.store.RemoveInferredDerivedFrom(ctx, contributionIDs)
	if err != nil {
		return domain.InstanceID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove derived documents")
	}
	if err := l.store.RemoveInferred(ctx, id); err != nil {
		return domain.InstanceID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove inferred document")
	}

	affected := append([]uuid.UUID{id}, derived...)
	seen := make(map[uuid.UUID]struct{}, len(affected))
	for _, target := range affected {
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		if err := l.registry.Remove(ctx, domain.StageInProgress, target); err != nil {
			return domain.InstanceID{}, err
		}
		if err := l.graph.Delete(ctx, domain.StageInProgress, target); err != nil {
			return domain.InstanceID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove projection")
		}
	}
	if err := l.store.RemoveInfo(ctx, id); err != nil {
		return domain.InstanceID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove instance info")
	}

	l.logger.InfoContext(ctx, "instance deleted",
		"instance_id", id,
		"space", info.ID.Space,
		"contributions", len(contributionIDs),
		"derived", len(seen)-1,
		"request_id", requestcontext.RequestID(ctx),
	)
	return info.ID, nil
}

// Info returns the bookkeeping row of an instance.
func (l *Lifecycle) Info(ctx context.Context, id uuid.UUID) (*models.Info, error) {
	return l.info(ctx, id)
}

func (l *Lifecycle) info(ctx context.Context, id uuid.UUID) (*models.Info, error) {
	info, err := l.store.Info(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "instance not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load instance")
	}
	return info, nil
}

// Inferred returns the IN_PROGRESS document of an instance.
func (l *Lifecycle) Inferred(ctx context.Context, id uuid.UUID) (*models.InferredRecord, error) {
	rec, err := l.store.Inferred(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "instance has no in-progress document")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load inferred document")
	}
	return rec, nil
}

// Released returns the RELEASED copy of an instance.
func (l *Lifecycle) Released(ctx context.Context, id uuid.UUID) (*models.ReleasedRecord, error) {
	rec, err := l.store.Released(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "instance is not released")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load released document")
	}
	return rec, nil
}

func (l *Lifecycle) observeReconcile(start time.Time) {
	if l.metrics != nil {
		l.metrics.ReconcileDuration.Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (l *Lifecycle) countTransition(status models.ReleaseStatus) {
	if l.metrics != nil {
		l.metrics.Transitions.WithLabelValues(string(status)).Inc()
	}
}
