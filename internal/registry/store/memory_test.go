package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kgcore/internal/registry/models"
	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/platform/tx"
)

type registryStore interface {
	Get(ctx context.Context, id uuid.UUID, stage domain.DataStage) (*models.Record, error)
	FindByAlternatives(ctx context.Context, stage domain.DataStage, alternatives []string) ([]models.Record, error)
	Save(ctx context.Context, rec models.Record) error
	Remove(ctx context.Context, id uuid.UUID, stage domain.DataStage) error
}

// StoreSuite runs against every registry store implementation.
type StoreSuite struct {
	suite.Suite
	newStore func() registryStore
	store    registryStore
	ctx      context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() registryStore { return NewInMemory() }})
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
}

func (s *StoreSuite) record(space domain.SpaceName, alts ...string) models.Record {
	return models.Record{UUID: uuid.New(), Stage: domain.StageInProgress, Space: space, Alternatives: alts}
}

func (s *StoreSuite) TestSaveAndGet() {
	s.Run("round trip", func() {
		rec := s.record("alpha", "urn:a", "urn:b")
		s.Require().NoError(s.store.Save(s.ctx, rec))

		got, err := s.store.Get(s.ctx, rec.UUID, domain.StageInProgress)
		s.Require().NoError(err)
		s.Equal(rec.Space, got.Space)
		s.ElementsMatch(rec.Alternatives, got.Alternatives)
	})

	s.Run("stages are separate", func() {
		rec := s.record("alpha", "urn:c")
		s.Require().NoError(s.store.Save(s.ctx, rec))

		_, err := s.store.Get(s.ctx, rec.UUID, domain.StageReleased)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown uuid", func() {
		_, err := s.store.Get(s.ctx, uuid.New(), domain.StageInProgress)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StoreSuite) TestFindByAlternatives() {
	first := s.record("alpha", "urn:shared", "urn:first")
	second := s.record("beta", "urn:shared", "urn:second")
	s.Require().NoError(s.store.Save(s.ctx, first))
	s.Require().NoError(s.store.Save(s.ctx, second))

	s.Run("single match", func() {
		got, err := s.store.FindByAlternatives(s.ctx, domain.StageInProgress, []string{"urn:first"})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(first.UUID, got[0].UUID)
	})

	s.Run("shared alternative matches both once", func() {
		got, err := s.store.FindByAlternatives(s.ctx, domain.StageInProgress, []string{"urn:shared", "urn:first"})
		s.Require().NoError(err)
		s.Len(got, 2)
	})

	s.Run("no match", func() {
		got, err := s.store.FindByAlternatives(s.ctx, domain.StageInProgress, []string{"urn:none"})
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("replacing drops stale alternatives", func() {
		updated := first
		updated.Alternatives = []string{"urn:renamed"}
		s.Require().NoError(s.store.Save(s.ctx, updated))

		got, err := s.store.FindByAlternatives(s.ctx, domain.StageInProgress, []string{"urn:first"})
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *StoreSuite) TestRemove() {
	rec := s.record("alpha", "urn:gone")
	s.Require().NoError(s.store.Save(s.ctx, rec))
	s.Require().NoError(s.store.Remove(s.ctx, rec.UUID, domain.StageInProgress))

	_, err := s.store.Get(s.ctx, rec.UUID, domain.StageInProgress)
	s.ErrorIs(err, sentinel.ErrNotFound)

	got, err := s.store.FindByAlternatives(s.ctx, domain.StageInProgress, []string{"urn:gone"})
	s.Require().NoError(err)
	s.Empty(got)

	s.NoError(s.store.Remove(s.ctx, uuid.New(), domain.StageInProgress))
}

func (s *StoreSuite) TestJournalRollback() {
	kept := s.record("alpha", "urn:kept")
	s.Require().NoError(s.store.Save(s.ctx, kept))

	journal := tx.NewJournal()
	ctx := tx.WithJournal(s.ctx, journal)

	changed := kept
	changed.Alternatives = []string{"urn:changed"}
	added := s.record("beta", "urn:added")
	s.Require().NoError(s.store.Save(ctx, changed))
	s.Require().NoError(s.store.Save(ctx, added))
	s.Require().NoError(s.store.Remove(ctx, kept.UUID, domain.StageInProgress))

	journal.Rollback()

	got, err := s.store.Get(s.ctx, kept.UUID, domain.StageInProgress)
	s.Require().NoError(err)
	s.Equal([]string{"urn:kept"}, got.Alternatives)

	_, err = s.store.Get(s.ctx, added.UUID, domain.StageInProgress)
	s.ErrorIs(err, sentinel.ErrNotFound)

	matches, err := s.store.FindByAlternatives(s.ctx, domain.StageInProgress, []string{"urn:changed", "urn:added"})
	s.Require().NoError(err)
	s.Empty(matches)
}
