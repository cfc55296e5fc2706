package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"kgcore/internal/events/outbox"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/platform/tx"
)

const (
	aggregateEvent    = "event"
	eventTypeAccepted = "event.accepted"
	eventTypeFailed   = "event.failed"
)

// OutboxWriter announces journal entries to downstream consumers.
type OutboxWriter interface {
	Append(ctx context.Context, e outbox.Entry) error
}

// InMemoryJournal keeps events in append order.
type InMemoryJournal struct {
	mu     sync.RWMutex
	events []Persisted
	outbox OutboxWriter
}

func NewInMemoryJournal(ob OutboxWriter) *InMemoryJournal {
	return &InMemoryJournal{outbox: ob}
}

func (j *InMemoryJournal) Append(ctx context.Context, e Persisted) error {
	j.mu.Lock()
	j.events = append(j.events, clonePersisted(e))
	j.mu.Unlock()
	tx.RecordUndo(ctx, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		for i := len(j.events) - 1; i >= 0; i-- {
			if j.events[i].ID == e.ID {
				j.events = append(j.events[:i], j.events[i+1:]...)
				return
			}
		}
	})
	return announce(ctx, j.outbox, e)
}

func (j *InMemoryJournal) Get(_ context.Context, id uuid.UUID) (*Persisted, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, e := range j.events {
		if e.ID == id {
			out := clonePersisted(e)
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListByInstance returns the events of an instance oldest first.
func (j *InMemoryJournal) ListByInstance(_ context.Context, id uuid.UUID) ([]Persisted, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Persisted
	for _, e := range j.events {
		if e.InstanceUUID == id {
			out = append(out, clonePersisted(e))
		}
	}
	return out, nil
}

// ListFailed returns up to limit failed events oldest first.
func (j *InMemoryJournal) ListFailed(_ context.Context, limit int) ([]Persisted, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Persisted
	for _, e := range j.events {
		if !e.Failed {
			continue
		}
		out = append(out, clonePersisted(e))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func clonePersisted(e Persisted) Persisted {
	e.Document = e.Document.Clone()
	return e
}

func announce(ctx context.Context, ob OutboxWriter, e Persisted) error {
	if ob == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	eventType := eventTypeAccepted
	if e.Failed {
		eventType = eventTypeFailed
	}
	return ob.Append(ctx, outbox.NewEntry(aggregateEvent, e.InstanceUUID.String(), eventType, payload, e.IndexedAt))
}
