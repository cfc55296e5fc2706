package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"kgcore/internal/instances/models"
	"kgcore/internal/reconcile"
	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/platform/tx"
)

// InMemory holds every stage of every instance in maps. Writes inside a unit
// of work register undo steps on the journal in context.
type InMemory struct {
	mu            sync.RWMutex
	infos         map[uuid.UUID]models.Info
	contributions map[uuid.UUID][]reconcile.Contribution
	inferred      map[uuid.UUID]models.InferredRecord
	released      map[uuid.UUID]models.ReleasedRecord
}

func NewInMemory() *InMemory {
	return &InMemory{
		infos:         make(map[uuid.UUID]models.Info),
		contributions: make(map[uuid.UUID][]reconcile.Contribution),
		inferred:      make(map[uuid.UUID]models.InferredRecord),
		released:      make(map[uuid.UUID]models.ReleasedRecord),
	}
}

// swap replaces m[key] and records how to restore it.
func swap[V any](ctx context.Context, s *InMemory, m map[uuid.UUID]V, key uuid.UUID, next *V) {
	previous, existed := m[key]
	if next == nil {
		delete(m, key)
	} else {
		m[key] = *next
	}
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			m[key] = previous
		} else {
			delete(m, key)
		}
	})
}

func (s *InMemory) Info(_ context.Context, id uuid.UUID) (*models.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &info, nil
}

func (s *InMemory) SaveInfo(ctx context.Context, info models.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	swap(ctx, s, s.infos, info.ID.UUID, &info)
	return nil
}

func (s *InMemory) RemoveInfo(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	swap[models.Info](ctx, s, s.infos, id, nil)
	return nil
}

// ReleaseStatuses returns the status of every known instance among ids.
func (s *InMemory) ReleaseStatuses(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ReleaseStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]models.ReleaseStatus, len(ids))
	for _, id := range ids {
		if info, ok := s.infos[id]; ok {
			out[id] = info.ReleaseStatus
		}
	}
	return out, nil
}

// Contributions returns the contributions of an instance in insertion order.
func (s *InMemory) Contributions(_ context.Context, id uuid.UUID) ([]reconcile.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reconcile.Contribution, len(s.contributions[id]))
	for i, c := range s.contributions[id] {
		out[i] = cloneContribution(c)
	}
	return out, nil
}

func (s *InMemory) Contribution(_ context.Context, id uuid.UUID, user domain.UserID) (*reconcile.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contributions[id] {
		if c.UserID == user {
			clone := cloneContribution(c)
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// SaveContribution replaces the user's contribution in place or appends it.
func (s *InMemory) SaveContribution(ctx context.Context, id domain.InstanceID, c reconcile.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := slices.Clone(s.contributions[id.UUID])
	idx := slices.IndexFunc(list, func(existing reconcile.Contribution) bool { return existing.UserID == c.UserID })
	if idx >= 0 {
		list[idx] = cloneContribution(c)
	} else {
		list = append(list, cloneContribution(c))
	}
	swap(ctx, s, s.contributions, id.UUID, &list)
	return nil
}

// RemoveContributions drops all contributions and returns their ids.
func (s *InMemory) RemoveContributions(ctx context.Context, id uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, c := range s.contributions[id] {
		ids = append(ids, c.ID)
	}
	swap[[]reconcile.Contribution](ctx, s, s.contributions, id, nil)
	return ids, nil
}

func (s *InMemory) Inferred(_ context.Context, id uuid.UUID) (*models.InferredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.inferred[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rec.Inferred = cloneInferred(rec.Inferred)
	return &rec, nil
}

func (s *InMemory) SaveInferred(ctx context.Context, rec models.InferredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Inferred = cloneInferred(rec.Inferred)
	swap(ctx, s, s.inferred, rec.ID.UUID, &rec)
	return nil
}

func (s *InMemory) RemoveInferred(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	swap[models.InferredRecord](ctx, s, s.inferred, id, nil)
	return nil
}

// RemoveInferredDerivedFrom drops every inferred document built from any of the
// contribution ids and returns the affected instances.
func (s *InMemory) RemoveInferredDerivedFrom(ctx context.Context, contributionIDs []string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected []uuid.UUID
	for id, rec := range s.inferred {
		for _, source := range rec.Inferred.InferenceOf {
			if slices.Contains(contributionIDs, source) {
				affected = append(affected, id)
				break
			}
		}
	}
	for _, id := range affected {
		swap[models.InferredRecord](ctx, s, s.inferred, id, nil)
	}
	return affected, nil
}

func (s *InMemory) Released(_ context.Context, id uuid.UUID) (*models.ReleasedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.released[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rec.Document = rec.Document.Clone()
	return &rec, nil
}

func (s *InMemory) SaveReleased(ctx context.Context, rec models.ReleasedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Document = rec.Document.Clone()
	swap(ctx, s, s.released, rec.ID.UUID, &rec)
	return nil
}

func (s *InMemory) RemoveReleased(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	swap[models.ReleasedRecord](ctx, s, s.released, id, nil)
	return nil
}

func cloneContribution(c reconcile.Contribution) reconcile.Contribution {
	c.Document = c.Document.Clone()
	c.FieldUpdateTimes = maps.Clone(c.FieldUpdateTimes)
	return c
}

func cloneInferred(in reconcile.Inferred) reconcile.Inferred {
	in.Document = in.Document.Clone()
	in.FieldUpdateTimes = maps.Clone(in.FieldUpdateTimes)
	in.Alternatives = maps.Clone(in.Alternatives)
	in.InferenceOf = slices.Clone(in.InferenceOf)
	return in
}
