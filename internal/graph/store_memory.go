package graph

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/platform/tx"
)

type nodeKey struct {
	stage domain.DataStage
	id    uuid.UUID
}

// InMemoryStore keeps one node per stage and instance.
type InMemoryStore struct {
	mu      sync.RWMutex
	nodes   map[nodeKey]Node
	resolve RefResolver
}

func NewInMemoryStore(resolve RefResolver) *InMemoryStore {
	return &InMemoryStore{nodes: make(map[nodeKey]Node), resolve: resolve}
}

func (s *InMemoryStore) Upsert(ctx context.Context, stage domain.DataStage, id domain.InstanceID, doc domain.Document) error {
	node := Node{ID: id, Document: doc.Clone(), Links: resolveLinks(doc, id.UUID, s.resolve)}
	s.put(ctx, nodeKey{stage, id.UUID}, &node)
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, stage domain.DataStage, id uuid.UUID) error {
	s.put(ctx, nodeKey{stage, id}, nil)
	return nil
}

func (s *InMemoryStore) put(ctx context.Context, key nodeKey, node *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, existed := s.nodes[key]
	if node == nil {
		delete(s.nodes, key)
	} else {
		s.nodes[key] = *node
	}
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.nodes[key] = previous
		} else {
			delete(s.nodes, key)
		}
	})
}

// Get returns the projected node.
func (s *InMemoryStore) Get(_ context.Context, stage domain.DataStage, id uuid.UUID) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[nodeKey{stage, id}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	node.Document = node.Document.Clone()
	node.Links = slices.Clone(node.Links)
	return &node, nil
}

// Related returns the instances id links to directly.
func (s *InMemoryStore) Related(_ context.Context, stage domain.DataStage, id uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[nodeKey{stage, id}]
	if !ok {
		return nil, nil
	}
	return slices.Clone(node.Links), nil
}

// SpaceOf reports the space of a projected instance.
func (s *InMemoryStore) SpaceOf(_ context.Context, stage domain.DataStage, id uuid.UUID) (domain.SpaceName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[nodeKey{stage, id}]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return node.ID.Space, nil
}
