package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kgcore/internal/events/outbox"
	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/platform/tx"
)

type JournalSuite struct {
	suite.Suite
	ctx     context.Context
	outbox  *outbox.InMemoryStore
	journal *InMemoryJournal
	now     time.Time
}

func TestJournalSuite(t *testing.T) {
	suite.Run(t, new(JournalSuite))
}

func (s *JournalSuite) SetupTest() {
	s.ctx = context.Background()
	s.outbox = outbox.NewInMemoryStore()
	s.journal = NewInMemoryJournal(s.outbox)
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *JournalSuite) event(eventType domain.EventType, instance uuid.UUID) Persisted {
	return Persist(Event{
		Type:         eventType,
		Space:        "alpha",
		InstanceUUID: instance,
		Document:     domain.Document{"name": "x"},
		ReportedAt:   s.now,
	}, "amy", "", s.now)
}

func (s *JournalSuite) TestPersist() {
	e := s.event(domain.EventUpdate, uuid.New())
	s.NotEqual(uuid.Nil, e.ID)
	s.Equal(domain.StageNative, e.Stage)
	s.Equal(domain.InstanceID{Space: "alpha", UUID: e.InstanceUUID}, e.InstanceID())

	failed := e.MarkFailed(errors.New("graph unavailable"))
	s.True(failed.Failed)
	s.Equal("graph unavailable", failed.Failure)
	s.False(e.Failed)
}

func (s *JournalSuite) TestAppendAndList() {
	instance := uuid.New()
	first := s.event(domain.EventInsert, instance)
	second := s.event(domain.EventRelease, instance).MarkFailed(errors.New("stale"))
	other := s.event(domain.EventInsert, uuid.New())
	for _, e := range []Persisted{first, second, other} {
		s.Require().NoError(s.journal.Append(s.ctx, e))
	}

	byInstance, err := s.journal.ListByInstance(s.ctx, instance)
	s.Require().NoError(err)
	s.Require().Len(byInstance, 2)
	s.Equal(first.ID, byInstance[0].ID)
	s.Equal(second.ID, byInstance[1].ID)

	failed, err := s.journal.ListFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal("stale", failed[0].Failure)

	got, err := s.journal.Get(s.ctx, other.ID)
	s.Require().NoError(err)
	s.Equal(other.InstanceUUID, got.InstanceUUID)
	_, err = s.journal.Get(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)

	entries := s.outbox.All()
	s.Require().Len(entries, 3)
	s.Equal(eventTypeAccepted, entries[0].EventType)
	s.Equal(eventTypeFailed, entries[1].EventType)
	s.Equal(instance.String(), entries[0].AggregateID)
}

func (s *JournalSuite) TestAppendRollsBack() {
	journal := tx.NewJournal()
	ctx := tx.WithJournal(s.ctx, journal)
	e := s.event(domain.EventInsert, uuid.New())
	s.Require().NoError(s.journal.Append(ctx, e))

	journal.Rollback()

	_, err := s.journal.Get(s.ctx, e.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Empty(s.outbox.All())
}
