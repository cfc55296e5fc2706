//go:build integration

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"kgcore/pkg/testutil/containers"
)

const relayTopic = "kg.events.it"

type RelayIntegrationSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
}

func TestRelayIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelayIntegrationSuite))
}

func (s *RelayIntegrationSuite) SetupSuite() {
	s.broker = containers.NewRedpandaContainer(s.T())
}

func (s *RelayIntegrationSuite) TestPublishesKeyedRecords() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	producer := s.broker.Client(s.T())
	s.Require().NoError(EnsureTopic(ctx, producer, relayTopic, 3, 1))
	s.Require().NoError(EnsureTopic(ctx, producer, relayTopic, 3, 1), "existing topic is not an error")

	store := NewInMemoryStore()
	for _, aggregate := range []string{"a", "b", "a"} {
		s.Require().NoError(store.Append(ctx, NewEntry("instance", aggregate, "graph.upsert", []byte(`{"uuid":"`+aggregate+`"}`), time.Now())))
	}

	n, err := NewRelay(store, producer, relayTopic).Flush(ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
	pending, err := store.Pending(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)

	consumer := s.broker.Client(s.T(),
		kgo.ConsumeTopics(relayTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	var records []*kgo.Record
	for len(records) < 3 && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().Empty(fetches.Errors())
		records = append(records, fetches.Records()...)
	}
	s.Require().Len(records, 3)

	byKey := map[string][]string{}
	for _, r := range records {
		byKey[string(r.Key)] = append(byKey[string(r.Key)], string(r.Value))
		s.Equal("graph.upsert", string(r.Headers[0].Value))
	}
	s.Len(byKey["a"], 2)
	s.Len(byKey["b"], 1)
}
