package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"kgcore/internal/registry/models"
	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/platform/sentinel"
	kgstrings "kgcore/pkg/platform/strings"
	"kgcore/pkg/requestcontext"
)

// Store persists identifier registrations per stage.
type Store interface {
	Get(ctx context.Context, id uuid.UUID, stage domain.DataStage) (*models.Record, error)
	FindByAlternatives(ctx context.Context, stage domain.DataStage, alternatives []string) ([]models.Record, error)
	Save(ctx context.Context, rec models.Record) error
	Remove(ctx context.Context, id uuid.UUID, stage domain.DataStage) error
}

// AmbiguousError reports that identifiers resolve to more than one instance.
type AmbiguousError struct {
	Matches []domain.InstanceID
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		names[i] = m.String()
	}
	return "identifiers resolve to multiple instances: " + strings.Join(names, ", ")
}

func (e *AmbiguousError) Unwrap() error {
	return dErrors.New(dErrors.CodeAmbiguous, "ambiguous identifiers")
}

// Service maps external identifiers onto instance uuids.
type Service struct {
	store     Store
	namespace string
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a Service. namespace prefixes instance uuids to form absolute
// identifiers, e.g. "https://kg.example.org/instances/".
func New(store Store, namespace string, opts ...Option) *Service {
	s := &Service{store: store, namespace: namespace, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AbsoluteID is the globally unique identifier of an instance.
func (s *Service) AbsoluteID(id uuid.UUID) string {
	return s.namespace + id.String()
}

// UUIDFromAbsoluteID extracts the uuid from an identifier in this service's namespace.
func (s *Service) UUIDFromAbsoluteID(absolute string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(absolute, s.namespace)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Upsert registers identifiers for an instance. At IN_PROGRESS registrations are
// additive: previously registered identifiers are kept. The absolute identifier
// of the instance is always registered.
func (s *Service) Upsert(ctx context.Context, stage domain.DataStage, id domain.InstanceID, alternatives []string) error {
	absolute := s.AbsoluteID(id.UUID)
	merged := alternatives
	if stage == domain.StageInProgress {
		existing, err := s.store.Get(ctx, id.UUID, stage)
		switch {
		case err == nil:
			merged = append(kgstrings.Without(existing.Alternatives, absolute), alternatives...)
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identifiers")
		}
	}

	rec := models.Record{
		UUID:         id.UUID,
		Stage:        stage,
		Space:        id.Space,
		Alternatives: kgstrings.SortedSet(merged, []string{absolute}),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register identifiers")
	}
	s.logger.DebugContext(ctx, "identifiers registered",
		"instance_id", id.UUID,
		"stage", stage,
		"alternatives", len(rec.Alternatives),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Remove drops the registration of an instance at a stage.
func (s *Service) Remove(ctx context.Context, stage domain.DataStage, id uuid.UUID) error {
	if err := s.store.Remove(ctx, id, stage); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove identifiers")
	}
	return nil
}

// Get returns the registration of an instance at a stage.
func (s *Service) Get(ctx context.Context, stage domain.DataStage, id uuid.UUID) (*models.Record, error) {
	rec, err := s.store.Get(ctx, id, stage)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "instance not registered")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identifiers")
	}
	return rec, nil
}

// FindInstanceByIdentifiers resolves an instance. A uuid registered at stage wins
// outright; otherwise its absolute identifier joins the candidate identifiers.
// No match yields (nil, nil); more than one match yields an *AmbiguousError.
func (s *Service) FindInstanceByIdentifiers(ctx context.Context, stage domain.DataStage, id uuid.UUID, identifiers []string) (*domain.InstanceID, error) {
	candidates := kgstrings.DedupeAndTrim(identifiers)
	if id != uuid.Nil {
		rec, err := s.store.Get(ctx, id, stage)
		if err == nil {
			found := rec.InstanceID()
			return &found, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up instance")
		}
		candidates = append(candidates, s.AbsoluteID(id))
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	matches, err := s.store.FindByAlternatives(ctx, stage, candidates)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identifiers")
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		found := matches[0].InstanceID()
		return &found, nil
	default:
		ids := make([]domain.InstanceID, len(matches))
		for i, m := range matches {
			ids[i] = m.InstanceID()
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		s.logger.WarnContext(ctx, "ambiguous identifiers",
			"stage", stage,
			"matches", len(ids),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, &AmbiguousError{Matches: ids}
	}
}

// ResolveIDs resolves a batch; the result is aligned with requests. Unknown and
// ambiguous requests resolve to nil; only infrastructure failures abort the batch.
func (s *Service) ResolveIDs(ctx context.Context, stage domain.DataStage, requests []models.ResolveRequest) ([]*domain.InstanceID, error) {
	out := make([]*domain.InstanceID, len(requests))
	for i, req := range requests {
		found, err := s.FindInstanceByIdentifiers(ctx, stage, req.UUID, req.Identifiers)
		if err != nil && !dErrors.HasCode(err, dErrors.CodeAmbiguous) {
			return nil, err
		}
		out[i] = found
	}
	return out, nil
}
