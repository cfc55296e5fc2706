package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kgcore/internal/registry/models"
	"kgcore/internal/registry/store"
	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
)

const namespace = "https://kg.example.org/instances/"

type RegistryServiceSuite struct {
	suite.Suite
	service *Service
	ctx     context.Context
}

func TestRegistryServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistryServiceSuite))
}

func (s *RegistryServiceSuite) SetupTest() {
	s.service = New(store.NewInMemory(), namespace)
	s.ctx = context.Background()
}

func (s *RegistryServiceSuite) register(space domain.SpaceName, identifiers ...string) domain.InstanceID {
	id := domain.InstanceID{Space: space, UUID: uuid.New()}
	s.Require().NoError(s.service.Upsert(s.ctx, domain.StageInProgress, id, identifiers))
	return id
}

func (s *RegistryServiceSuite) TestAbsoluteIdentifiers() {
	id := uuid.New()
	absolute := s.service.AbsoluteID(id)
	s.Equal(namespace+id.String(), absolute)

	parsed, ok := s.service.UUIDFromAbsoluteID(absolute)
	s.True(ok)
	s.Equal(id, parsed)

	_, ok = s.service.UUIDFromAbsoluteID("https://elsewhere.org/" + id.String())
	s.False(ok)
}

func (s *RegistryServiceSuite) TestUpsert() {
	s.Run("absolute id is always registered", func() {
		id := s.register("alpha")
		rec, err := s.service.Get(s.ctx, domain.StageInProgress, id.UUID)
		s.Require().NoError(err)
		s.Equal([]string{s.service.AbsoluteID(id.UUID)}, rec.Alternatives)
	})

	s.Run("in-progress registrations accumulate", func() {
		id := s.register("alpha", "urn:one")
		s.Require().NoError(s.service.Upsert(s.ctx, domain.StageInProgress, id, []string{"urn:two"}))

		rec, err := s.service.Get(s.ctx, domain.StageInProgress, id.UUID)
		s.Require().NoError(err)
		s.ElementsMatch([]string{"urn:one", "urn:two", s.service.AbsoluteID(id.UUID)}, rec.Alternatives)
	})

	s.Run("released registrations replace", func() {
		id := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
		s.Require().NoError(s.service.Upsert(s.ctx, domain.StageReleased, id, []string{"urn:old"}))
		s.Require().NoError(s.service.Upsert(s.ctx, domain.StageReleased, id, []string{"urn:new"}))

		rec, err := s.service.Get(s.ctx, domain.StageReleased, id.UUID)
		s.Require().NoError(err)
		s.ElementsMatch([]string{"urn:new", s.service.AbsoluteID(id.UUID)}, rec.Alternatives)
	})
}

func (s *RegistryServiceSuite) TestFindInstanceByIdentifiers() {
	s.Run("by registered uuid", func() {
		id := s.register("alpha")
		found, err := s.service.FindInstanceByIdentifiers(s.ctx, domain.StageInProgress, id.UUID, nil)
		s.Require().NoError(err)
		s.Equal(id, *found)
	})

	s.Run("by alternative identifier", func() {
		id := s.register("alpha", "https://doi.org/10.1000/xyz")
		found, err := s.service.FindInstanceByIdentifiers(s.ctx, domain.StageInProgress, uuid.New(), []string{"https://doi.org/10.1000/xyz"})
		s.Require().NoError(err)
		s.Equal(id, *found)
	})

	s.Run("unknown uuid falls back to its absolute id", func() {
		foreign := uuid.New()
		id := s.register("beta", s.service.AbsoluteID(foreign))
		found, err := s.service.FindInstanceByIdentifiers(s.ctx, domain.StageInProgress, foreign, nil)
		s.Require().NoError(err)
		s.Equal(id, *found)
	})

	s.Run("no match is not an error", func() {
		found, err := s.service.FindInstanceByIdentifiers(s.ctx, domain.StageInProgress, uuid.New(), []string{"urn:nobody"})
		s.Require().NoError(err)
		s.Nil(found)

		found, err = s.service.FindInstanceByIdentifiers(s.ctx, domain.StageInProgress, uuid.Nil, nil)
		s.Require().NoError(err)
		s.Nil(found)
	})

	s.Run("stages do not leak", func() {
		id := s.register("alpha", "urn:draft-only")
		found, err := s.service.FindInstanceByIdentifiers(s.ctx, domain.StageReleased, id.UUID, []string{"urn:draft-only"})
		s.Require().NoError(err)
		s.Nil(found)
	})

	s.Run("ambiguity names every match", func() {
		a := s.register("alpha", "urn:dup")
		b := s.register("beta", "urn:dup")

		found, err := s.service.FindInstanceByIdentifiers(s.ctx, domain.StageInProgress, uuid.Nil, []string{"urn:dup"})
		s.Require().Error(err)
		s.Nil(found)
		s.True(dErrors.HasCode(err, dErrors.CodeAmbiguous))

		var ambiguous *AmbiguousError
		s.Require().True(errors.As(err, &ambiguous))
		s.ElementsMatch([]domain.InstanceID{a, b}, ambiguous.Matches)
		s.Contains(err.Error(), a.UUID.String())
		s.Contains(err.Error(), b.UUID.String())
	})
}

func (s *RegistryServiceSuite) TestResolveIDs() {
	known := s.register("alpha", "urn:known")
	s.register("alpha", "urn:twice")
	s.register("beta", "urn:twice")

	got, err := s.service.ResolveIDs(s.ctx, domain.StageInProgress, []models.ResolveRequest{
		{UUID: known.UUID},
		{Identifiers: []string{"urn:twice"}},
		{Identifiers: []string{"urn:unknown"}},
		{Identifiers: []string{"urn:known"}},
	})
	s.Require().NoError(err)
	s.Require().Len(got, 4)
	s.Equal(known, *got[0])
	s.Nil(got[1])
	s.Nil(got[2])
	s.Equal(known, *got[3])
}
