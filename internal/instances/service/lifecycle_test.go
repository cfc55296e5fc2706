package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"kgcore/internal/graph"
	"kgcore/internal/instances/models"
	"kgcore/internal/instances/store"
	"kgcore/internal/reconcile"
	registrysvc "kgcore/internal/registry/service"
	registrystore "kgcore/internal/registry/store"
	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/requestcontext"
)

const namespace = "https://kg.example.org/instances/"

type LifecycleSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.InMemory
	registry  *registrysvc.Service
	graph     *graph.InMemoryStore
	metrics   *Metrics
	lifecycle *Lifecycle
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.registry = registrysvc.New(registrystore.NewInMemory(), namespace)
	s.graph = graph.NewInMemoryStore(s.registry.UUIDFromAbsoluteID)
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.lifecycle = New(s.store, s.registry, s.graph, WithMetrics(s.metrics))
}

func (s *LifecycleSuite) at(ctx context.Context, minutes int) context.Context {
	return requestcontext.WithTime(ctx, time.Date(2026, 1, 1, 12, minutes, 0, 0, time.UTC))
}

// write contributes doc as user and materializes the instance.
func (s *LifecycleSuite) write(id domain.InstanceID, user domain.UserID, doc domain.Document) *models.InferredRecord {
	_, err := s.lifecycle.Contribute(s.ctx, id, user, doc, reconcile.PatchMerge, false)
	s.Require().NoError(err)
	rec, err := s.lifecycle.Materialize(s.ctx, id)
	s.Require().NoError(err)
	return rec
}

func (s *LifecycleSuite) status(id uuid.UUID, scope models.TreeScope) models.ReleaseStatus {
	st, err := s.lifecycle.ReleaseStatus(s.ctx, id, scope)
	s.Require().NoError(err)
	return st
}

func (s *LifecycleSuite) TestMaterialize() {
	id := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
	rec := s.write(id, "amy", domain.Document{"name": "first", domain.KeyIdentifier: []any{"ext-1"}})

	s.Equal(s.registry.AbsoluteID(id.UUID), rec.Inferred.Document.ID())
	s.Equal(models.StatusUnreleased, s.status(id.UUID, models.ScopeTopInstanceOnly))

	found, err := s.registry.FindInstanceByIdentifiers(s.ctx, domain.StageInProgress, uuid.Nil, []string{"ext-1"})
	s.Require().NoError(err)
	s.Equal(&id, found)

	node, err := s.graph.Get(s.ctx, domain.StageInProgress, id.UUID)
	s.Require().NoError(err)
	s.Equal("first", node.Document["name"])

	s.Run("is idempotent", func() {
		again, err := s.lifecycle.Materialize(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(rec.Revision, again.Revision)
		s.True(rec.Inferred.Document.Equal(again.Inferred.Document))
	})

	s.Run("requires contributions", func() {
		_, err := s.lifecycle.Materialize(s.ctx, domain.InstanceID{Space: "alpha", UUID: uuid.New()})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LifecycleSuite) TestContributeAppliesPatches() {
	id := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
	_, err := s.lifecycle.Contribute(s.ctx, id, "amy", domain.Document{"name": "a", "size": 1.0}, reconcile.PatchMerge, false)
	s.Require().NoError(err)

	later := s.at(s.ctx, 5)
	c, err := s.lifecycle.Contribute(later, id, "amy", domain.Document{"size": domain.ResetValue}, reconcile.PatchMerge, true)
	s.Require().NoError(err)
	s.Equal(reconcile.ContributionID(id.UUID.String(), "amy"), c.ID)
	s.True(c.Suggestion)
	s.Equal(domain.Document{"name": "a"}, c.Document)
	s.NotContains(c.FieldUpdateTimes, "size")
}

func (s *LifecycleSuite) TestReleaseUnreleaseRelease() {
	id := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
	first := s.write(id, "amy", domain.Document{"name": "first"})

	released, err := s.lifecycle.Release(s.ctx, id.UUID, first.Revision)
	s.Require().NoError(err)
	s.Equal(first.Revision, released.Revision)
	s.Equal(models.StatusReleased, s.status(id.UUID, models.ScopeTopInstanceOnly))

	s.ctx = s.at(s.ctx, 1)
	second := s.write(id, "amy", domain.Document{"name": "second"})
	s.NotEqual(first.Revision, second.Revision)
	s.Equal(models.StatusHasChanged, s.status(id.UUID, models.ScopeTopInstanceOnly))

	s.Require().NoError(s.lifecycle.Unrelease(s.ctx, id.UUID))
	s.Equal(models.StatusUnreleased, s.status(id.UUID, models.ScopeTopInstanceOnly))
	_, err = s.lifecycle.Released(s.ctx, id.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.registry.Get(s.ctx, domain.StageReleased, id.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Require().NoError(s.lifecycle.Unrelease(s.ctx, id.UUID), "unrelease is idempotent")

	_, err = s.lifecycle.Release(s.ctx, id.UUID, "")
	s.Require().NoError(err)
	s.Equal(models.StatusReleased, s.status(id.UUID, models.ScopeTopInstanceOnly))
	current, err := s.lifecycle.Released(s.ctx, id.UUID)
	s.Require().NoError(err)
	s.True(current.Document.Equal(second.Inferred.Document))
	s.Equal(second.Revision, current.Revision)

	s.Equal(2.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues(string(models.StatusReleased))))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues(string(models.StatusUnreleased))))

	s.Run("rematerializing identical content restores RELEASED", func() {
		s.ctx = s.at(s.ctx, 2)
		s.write(id, "amy", domain.Document{"name": "third"})
		s.Equal(models.StatusHasChanged, s.status(id.UUID, models.ScopeTopInstanceOnly))
		s.ctx = s.at(s.ctx, 3)
		s.write(id, "amy", domain.Document{"name": "second"})
		s.Equal(models.StatusReleased, s.status(id.UUID, models.ScopeTopInstanceOnly))
	})
}

func (s *LifecycleSuite) TestStaleReleaseIsRejected() {
	id := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
	first := s.write(id, "amy", domain.Document{"name": "first"})
	s.ctx = s.at(s.ctx, 1)
	s.write(id, "bob", domain.Document{"name": "second"})

	_, err := s.lifecycle.Release(s.ctx, id.UUID, first.Revision)
	s.True(dErrors.HasCode(err, dErrors.CodeStaleRevision))
	s.Equal(models.StatusUnreleased, s.status(id.UUID, models.ScopeTopInstanceOnly))
	_, err = s.lifecycle.Released(s.ctx, id.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LifecycleSuite) TestDeleteRequiresUnreleased() {
	id := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
	rec := s.write(id, "amy", domain.Document{"name": "first"})
	_, err := s.lifecycle.Release(s.ctx, id.UUID, rec.Revision)
	s.Require().NoError(err)

	_, err = s.lifecycle.Delete(s.ctx, id.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	contributions, err := s.store.Contributions(s.ctx, id.UUID)
	s.Require().NoError(err)
	s.Len(contributions, 1)
	inferred, err := s.lifecycle.Inferred(s.ctx, id.UUID)
	s.Require().NoError(err)
	s.Equal(rec.Revision, inferred.Revision)
	released, err := s.lifecycle.Released(s.ctx, id.UUID)
	s.Require().NoError(err)
	s.Equal(rec.Revision, released.Revision)
	s.Equal(models.StatusReleased, s.status(id.UUID, models.ScopeTopInstanceOnly))
}

func (s *LifecycleSuite) TestDeleteCascades() {
	id := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
	s.write(id, "amy", domain.Document{"name": "a", domain.KeyIdentifier: "ext-a"})
	s.write(id, "bob", domain.Document{"size": 2.0})

	deleted, err := s.lifecycle.Delete(s.ctx, id.UUID)
	s.Require().NoError(err)
	s.Equal(id, deleted)

	contributions, err := s.store.Contributions(s.ctx, id.UUID)
	s.Require().NoError(err)
	s.Empty(contributions)
	_, err = s.lifecycle.Inferred(s.ctx, id.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.lifecycle.Info(s.ctx, id.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	found, err := s.registry.FindInstanceByIdentifiers(s.ctx, domain.StageInProgress, uuid.Nil, []string{"ext-a"})
	s.Require().NoError(err)
	s.Nil(found)
	_, err = s.graph.Get(s.ctx, domain.StageInProgress, id.UUID)
	s.Error(err)

	_, err = s.lifecycle.Delete(s.ctx, id.UUID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LifecycleSuite) link(id uuid.UUID) map[string]any {
	return map[string]any{domain.KeyID: s.registry.AbsoluteID(id)}
}

func (s *LifecycleSuite) TestTreeScopes() {
	root := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
	child := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
	foreign := domain.InstanceID{Space: "beta", UUID: uuid.New()}
	grandchild := domain.InstanceID{Space: "alpha", UUID: uuid.New()}

	childRec := s.write(child, "amy", domain.Document{"name": "child"})
	foreignRec := s.write(foreign, "amy", domain.Document{"name": "foreign"})
	rootRec := s.write(root, "amy", domain.Document{
		"name":  "root",
		"parts": []any{s.link(child.UUID), s.link(foreign.UUID)},
	})

	members, err := s.lifecycle.Scope(s.ctx, root.UUID, "")
	s.Require().NoError(err)
	s.Equal(root.UUID, members[0])
	s.ElementsMatch([]uuid.UUID{root.UUID, child.UUID, foreign.UUID}, members)

	for _, rec := range []*models.InferredRecord{rootRec, childRec} {
		_, err := s.lifecycle.Release(s.ctx, rec.ID.UUID, rec.Revision)
		s.Require().NoError(err)
	}
	s.Equal(models.StatusReleased, s.status(root.UUID, models.ScopeTopInstanceOnly))
	s.Equal(models.StatusUnreleased, s.status(root.UUID, models.ScopeChildrenOnly), "foreign child is unreleased")
	s.Equal(models.StatusReleased, s.status(root.UUID, models.ScopeChildrenOnlyRestricted))

	_, err = s.lifecycle.Release(s.ctx, foreign.UUID, foreignRec.Revision)
	s.Require().NoError(err)
	s.Equal(models.StatusReleased, s.status(root.UUID, models.ScopeChildrenOnly))

	s.ctx = s.at(s.ctx, 1)
	s.write(child, "amy", domain.Document{"name": "child v2"})
	s.Equal(models.StatusHasChanged, s.status(root.UUID, models.ScopeChildrenOnly))

	s.Run("grandchild joins through a new link", func() {
		s.write(grandchild, "amy", domain.Document{"name": "grandchild"})
		s.write(child, "amy", domain.Document{"part": s.link(grandchild.UUID)})
		members, err := s.lifecycle.Scope(s.ctx, root.UUID, "alpha")
		s.Require().NoError(err)
		s.ElementsMatch([]uuid.UUID{root.UUID, child.UUID, grandchild.UUID}, members)
		s.Equal(models.StatusUnreleased, s.status(root.UUID, models.ScopeChildrenOnlyRestricted))
	})

	s.Run("batch skips unknown instances", func() {
		unknown := uuid.New()
		statuses, err := s.lifecycle.ReleaseStatuses(s.ctx, []uuid.UUID{root.UUID, unknown}, models.ScopeTopInstanceOnly)
		s.Require().NoError(err)
		s.Equal(map[uuid.UUID]models.ReleaseStatus{root.UUID: models.StatusReleased}, statuses)
	})
}
