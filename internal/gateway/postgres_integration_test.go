//go:build integration

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kgcore/internal/events"
	"kgcore/internal/events/outbox"
	"kgcore/internal/graph"
	"kgcore/internal/instances/models"
	instancesvc "kgcore/internal/instances/service"
	"kgcore/internal/instances/store"
	"kgcore/internal/permission"
	registrysvc "kgcore/internal/registry/service"
	registrystore "kgcore/internal/registry/store"
	"kgcore/internal/space"
	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/requestcontext"
	"kgcore/pkg/testutil/containers"
)

type failingPostgresGraph struct {
	*graph.PostgresStore
	fail bool
}

func (g *failingPostgresGraph) Upsert(ctx context.Context, stage domain.DataStage, id domain.InstanceID, doc domain.Document) error {
	if g.fail {
		return errors.New("projection failed")
	}
	return g.PostgresStore.Upsert(ctx, stage, id, doc)
}

type PostgresGatewaySuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	ctx       context.Context
	spaces    *space.PostgresStore
	outbox    *outbox.PostgresStore
	journal   *events.PostgresJournal
	graph     *failingPostgresGraph
	lifecycle *instancesvc.Lifecycle
	gateway   *Gateway
}

func TestPostgresGatewaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresGatewaySuite))
}

func (s *PostgresGatewaySuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
}

func (s *PostgresGatewaySuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s.Require().NoError(s.postgres.Truncate(s.ctx))

	db := s.postgres.DB
	s.spaces = space.NewPostgresStore(db)
	s.Require().NoError(s.spaces.Save(s.ctx, space.Space{Name: "alpha", CreatedAt: time.Now()}))

	registry := registrysvc.New(registrystore.NewInMemory(), namespace)
	s.outbox = outbox.NewPostgresStore(db)
	s.journal = events.NewPostgresJournal(db, s.outbox)
	s.graph = &failingPostgresGraph{PostgresStore: graph.NewPostgresStore(db, s.outbox, registry.UUIDFromAbsoluteID)}
	s.lifecycle = instancesvc.New(store.NewPostgres(db), registry, s.graph)
	s.gateway = New(NewPostgresUnitOfWork(db, 5*time.Second), s.spaces, s.journal, s.lifecycle, registry)
}

func (s *PostgresGatewaySuite) as(user domain.UserID, roles ...string) context.Context {
	p := permission.NewPrincipal(permission.PrincipalInput{
		User:      permission.User{ID: user},
		UserRoles: append([]string{}, roles...),
	}, permission.DefaultRoleMapping())
	return permission.WithPrincipal(s.ctx, p)
}

func (s *PostgresGatewaySuite) TestInsertAndRelease() {
	olga := s.as("olga", "alpha:owner")
	res, err := s.gateway.PostEvent(olga, events.Event{
		Type:         domain.EventInsert,
		Space:        "alpha",
		InstanceUUID: uuid.New(),
		Document:     domain.Document{keyName: "Ada"},
	})
	s.Require().NoError(err)
	s.Equal(models.StatusUnreleased, res.Status)

	released, err := s.gateway.PostEvent(olga, events.Event{
		Type:             domain.EventRelease,
		InstanceUUID:     res.ID.UUID,
		ExpectedRevision: res.Revision,
	})
	s.Require().NoError(err)
	s.Equal(models.StatusReleased, released.Status)

	rec, err := s.lifecycle.Released(s.ctx, res.ID.UUID)
	s.Require().NoError(err)
	s.Equal(res.Revision, rec.Revision)

	node, err := s.graph.Get(s.ctx, domain.StageReleased, res.ID.UUID)
	s.Require().NoError(err)
	s.Equal("Ada", node.Document[keyName])

	list, err := s.journal.ListByInstance(s.ctx, res.ID.UUID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(domain.EventInsert, list[0].Type)
	s.Equal(domain.EventRelease, list[1].Type)

	pending, err := s.outbox.Pending(s.ctx, 100)
	s.Require().NoError(err)
	s.NotEmpty(pending)
}

func (s *PostgresGatewaySuite) TestFailedProjectionRollsBack() {
	olga := s.as("olga", "gamma:owner")
	id := uuid.New()
	s.graph.fail = true
	defer func() { s.graph.fail = false }()

	_, err := s.gateway.PostEvent(olga, events.Event{
		Type:         domain.EventInsert,
		Space:        "gamma",
		InstanceUUID: id,
		Document:     domain.Document{keyName: "Ada"},
	})
	s.Require().Error(err)

	_, err = s.spaces.Get(s.ctx, "gamma")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.lifecycle.Inferred(s.ctx, id)
	s.Error(err)

	failed, err := s.journal.ListFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal(id, failed[0].InstanceUUID)
	s.Contains(failed[0].Failure, "projection failed")

	list, err := s.journal.ListByInstance(s.ctx, id)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *PostgresGatewaySuite) TestConcurrentContributorsSerialize() {
	olga := s.as("olga", "alpha:owner")
	res, err := s.gateway.PostEvent(olga, events.Event{
		Type:         domain.EventInsert,
		Space:        "alpha",
		InstanceUUID: uuid.New(),
		Document:     domain.Document{keyName: "Ada"},
	})
	s.Require().NoError(err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := s.as(domain.UserID(fmt.Sprintf("editor-%d", i)), "alpha:editor")
			_, err := s.gateway.PostEvent(ctx, events.Event{
				Type:         domain.EventUpdate,
				InstanceUUID: res.ID.UUID,
				Document:     domain.Document{"http://schema.org/description": fmt.Sprintf("v%d", i)},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	list, err := s.journal.ListByInstance(s.ctx, res.ID.UUID)
	s.Require().NoError(err)
	s.Len(list, writers+1)

	rec, err := s.lifecycle.Inferred(s.ctx, res.ID.UUID)
	s.Require().NoError(err)
	s.Len(rec.Inferred.InferenceOf, writers+1)
}
