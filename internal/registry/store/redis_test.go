package store

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"kgcore/internal/registry/models"
	"kgcore/pkg/domain"
)

type RedisCompensationSuite struct {
	suite.Suite
	logs  bytes.Buffer
	store *Redis
}

func TestRedisCompensationSuite(t *testing.T) {
	suite.Run(t, new(RedisCompensationSuite))
}

func (s *RedisCompensationSuite) SetupTest() {
	s.logs.Reset()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	s.T().Cleanup(func() { _ = client.Close() })
	s.store = NewRedis(client, WithLogger(slog.New(slog.NewJSONHandler(&s.logs, nil))))
}

func (s *RedisCompensationSuite) TestFailedCompensationIsLogged() {
	rec := &models.Record{
		UUID:         uuid.New(),
		Stage:        domain.StageInProgress,
		Space:        "alpha",
		Alternatives: []string{"urn:a"},
	}

	s.store.compensate(rec, nil)

	s.Contains(s.logs.String(), "registry compensation failed")
	s.Contains(s.logs.String(), rec.UUID.String())
}
