package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kgcore/internal/instances/models"
	"kgcore/internal/reconcile"
	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/platform/tx"
)

type InstanceStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	id    domain.InstanceID
}

func TestInstanceStoreSuite(t *testing.T) {
	suite.Run(t, new(InstanceStoreSuite))
}

func (s *InstanceStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.id = domain.InstanceID{Space: "alpha", UUID: uuid.New()}
}

func (s *InstanceStoreSuite) contribution(user domain.UserID, name string) reconcile.Contribution {
	return reconcile.Contribution{
		ID:               reconcile.ContributionID(s.id.UUID.String(), user),
		UserID:           user,
		Document:         domain.Document{"name": name},
		FieldUpdateTimes: map[string]time.Time{"name": time.Unix(100, 0)},
	}
}

func (s *InstanceStoreSuite) TestContributionsKeepInsertionOrder() {
	s.Require().NoError(s.store.SaveContribution(s.ctx, s.id, s.contribution("zed", "a")))
	s.Require().NoError(s.store.SaveContribution(s.ctx, s.id, s.contribution("amy", "b")))
	s.Require().NoError(s.store.SaveContribution(s.ctx, s.id, s.contribution("zed", "c")))

	all, err := s.store.Contributions(s.ctx, s.id.UUID)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(domain.UserID("zed"), all[0].UserID)
	s.Equal("c", all[0].Document["name"])
	s.Equal(domain.UserID("amy"), all[1].UserID)

	one, err := s.store.Contribution(s.ctx, s.id.UUID, "amy")
	s.Require().NoError(err)
	s.Equal("b", one.Document["name"])

	_, err = s.store.Contribution(s.ctx, s.id.UUID, "bob")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InstanceStoreSuite) TestReturnedDocumentsAreCopies() {
	s.Require().NoError(s.store.SaveContribution(s.ctx, s.id, s.contribution("zed", "a")))
	got, err := s.store.Contribution(s.ctx, s.id.UUID, "zed")
	s.Require().NoError(err)
	got.Document["name"] = "mutated"

	again, err := s.store.Contribution(s.ctx, s.id.UUID, "zed")
	s.Require().NoError(err)
	s.Equal("a", again.Document["name"])
}

func (s *InstanceStoreSuite) TestRemoveInferredDerivedFrom() {
	c := s.contribution("zed", "a")
	s.Require().NoError(s.store.SaveContribution(s.ctx, s.id, c))
	s.Require().NoError(s.store.SaveInferred(s.ctx, models.InferredRecord{
		ID:       s.id,
		Inferred: reconcile.Inferred{Document: domain.Document{"name": "a"}, InferenceOf: []string{c.ID}},
	}))
	other := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
	s.Require().NoError(s.store.SaveInferred(s.ctx, models.InferredRecord{
		ID:       other,
		Inferred: reconcile.Inferred{InferenceOf: []string{"unrelated"}},
	}))

	ids, err := s.store.RemoveContributions(s.ctx, s.id.UUID)
	s.Require().NoError(err)
	s.Equal([]string{c.ID}, ids)

	affected, err := s.store.RemoveInferredDerivedFrom(s.ctx, ids)
	s.Require().NoError(err)
	s.Equal([]uuid.UUID{s.id.UUID}, affected)

	_, err = s.store.Inferred(s.ctx, s.id.UUID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Inferred(s.ctx, other.UUID)
	s.NoError(err)
}

func (s *InstanceStoreSuite) TestRollbackRestoresEveryStage() {
	s.Require().NoError(s.store.SaveInfo(s.ctx, models.Info{ID: s.id, ReleaseStatus: models.StatusReleased}))
	s.Require().NoError(s.store.SaveReleased(s.ctx, models.ReleasedRecord{ID: s.id, Document: domain.Document{"name": "a"}, Revision: "r1"}))

	journal := tx.NewJournal()
	ctx := tx.WithJournal(s.ctx, journal)
	s.Require().NoError(s.store.SaveContribution(ctx, s.id, s.contribution("zed", "b")))
	s.Require().NoError(s.store.SaveInfo(ctx, models.Info{ID: s.id, ReleaseStatus: models.StatusHasChanged}))
	s.Require().NoError(s.store.RemoveReleased(ctx, s.id.UUID))
	journal.Rollback()

	info, err := s.store.Info(s.ctx, s.id.UUID)
	s.Require().NoError(err)
	s.Equal(models.StatusReleased, info.ReleaseStatus)
	rel, err := s.store.Released(s.ctx, s.id.UUID)
	s.Require().NoError(err)
	s.Equal("r1", rel.Revision)
	all, err := s.store.Contributions(s.ctx, s.id.UUID)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *InstanceStoreSuite) TestReleaseStatusesSkipsUnknown() {
	s.Require().NoError(s.store.SaveInfo(s.ctx, models.Info{ID: s.id, ReleaseStatus: models.StatusHasChanged}))
	unknown := uuid.New()

	statuses, err := s.store.ReleaseStatuses(s.ctx, []uuid.UUID{s.id.UUID, unknown})
	s.Require().NoError(err)
	s.Equal(map[uuid.UUID]models.ReleaseStatus{s.id.UUID: models.StatusHasChanged}, statuses)
}
