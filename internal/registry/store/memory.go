package store

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"kgcore/internal/registry/models"
	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/platform/tx"
)

type recordKey struct {
	stage domain.DataStage
	id    uuid.UUID
}

type altKey struct {
	stage domain.DataStage
	alt   string
}

// InMemory keeps registrations in maps. Writes inside a unit of work register
// undo steps on the journal in context.
type InMemory struct {
	mu      sync.RWMutex
	records map[recordKey]models.Record
	byAlt   map[altKey]map[uuid.UUID]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[recordKey]models.Record),
		byAlt:   make(map[altKey]map[uuid.UUID]struct{}),
	}
}

func (s *InMemory) Get(_ context.Context, id uuid.UUID, stage domain.DataStage) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey{stage, id}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// FindByAlternatives returns every record at stage registering any of alternatives, ordered by uuid.
func (s *InMemory) FindByAlternatives(_ context.Context, stage domain.DataStage, alternatives []string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[uuid.UUID]struct{}{}
	var out []models.Record
	for _, alt := range alternatives {
		for id := range s.byAlt[altKey{stage, alt}] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, *cloneRecord(s.records[recordKey{stage, id}]))
		}
	}
	slices.SortFunc(out, func(a, b models.Record) int {
		return compareUUID(a.UUID, b.UUID)
	})
	return out, nil
}

func (s *InMemory) Save(ctx context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{rec.Stage, rec.UUID}
	previous, existed := s.records[key]
	s.putLocked(*cloneRecord(rec))

	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.putLocked(previous)
		} else {
			s.deleteLocked(key)
		}
	})
	return nil
}

func (s *InMemory) Remove(ctx context.Context, id uuid.UUID, stage domain.DataStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{stage, id}
	previous, existed := s.records[key]
	if !existed {
		return nil
	}
	s.deleteLocked(key)

	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.putLocked(previous)
	})
	return nil
}

func (s *InMemory) putLocked(rec models.Record) {
	key := recordKey{rec.Stage, rec.UUID}
	s.deleteLocked(key)
	s.records[key] = rec
	for _, alt := range rec.Alternatives {
		k := altKey{rec.Stage, alt}
		if s.byAlt[k] == nil {
			s.byAlt[k] = map[uuid.UUID]struct{}{}
		}
		s.byAlt[k][rec.UUID] = struct{}{}
	}
}

func (s *InMemory) deleteLocked(key recordKey) {
	rec, ok := s.records[key]
	if !ok {
		return
	}
	for _, alt := range rec.Alternatives {
		k := altKey{key.stage, alt}
		delete(s.byAlt[k], key.id)
		if len(s.byAlt[k]) == 0 {
			delete(s.byAlt, k)
		}
	}
	delete(s.records, key)
}

func cloneRecord(rec models.Record) *models.Record {
	rec.Alternatives = slices.Clone(rec.Alternatives)
	return &rec
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
