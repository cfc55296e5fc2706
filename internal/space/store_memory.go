package space

import (
	"context"
	"sort"
	"sync"

	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/platform/tx"
)

// InMemoryStore keeps spaces in a map.
type InMemoryStore struct {
	mu     sync.RWMutex
	spaces map[domain.SpaceName]Space
}

func NewInMemoryStore(seed ...Space) *InMemoryStore {
	s := &InMemoryStore{spaces: make(map[domain.SpaceName]Space)}
	for _, sp := range seed {
		s.spaces[sp.Name] = sp
	}
	return s
}

func (s *InMemoryStore) Get(_ context.Context, name domain.SpaceName) (*Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.spaces[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &sp, nil
}

// Save inserts or replaces a space.
func (s *InMemoryStore) Save(ctx context.Context, sp Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, existed := s.spaces[sp.Name]
	s.spaces[sp.Name] = sp
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.spaces[sp.Name] = previous
		} else {
			delete(s.spaces, sp.Name)
		}
	})
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Space, 0, len(s.spaces))
	for _, sp := range s.spaces {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
