package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"kgcore/internal/registry/models"
	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/platform/tx"
)

var lookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "kg_registry_redis_lookup_duration_ms",
	Help:    "Latency of identifier lookups against Redis in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	// kg:id:<stage>:<uuid> is a hash with the space and the JSON encoded alternatives.
	recordKeyPrefix = "kg:id:"
	// kg:alt:<stage>:<alternative> is the set of uuids registering the alternative.
	altKeyPrefix = "kg:alt:"

	fieldSpace        = "space"
	fieldAlternatives = "alternatives"

	undoTimeout = 5 * time.Second
)

// Redis stores registrations in Redis. Redis cannot join a SQL transaction,
// so writes register compensating writes on the journal in context instead.
type Redis struct {
	client redis.UniversalClient
	logger *slog.Logger
}

type RedisOption func(*Redis)

// WithLogger reports compensating writes that could not be applied.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(s *Redis) {
		s.logger = logger
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	s := &Redis{client: client, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func recordRedisKey(stage domain.DataStage, id uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", recordKeyPrefix, stage, id)
}

func altRedisKey(stage domain.DataStage, alt string) string {
	return fmt.Sprintf("%s%s:%s", altKeyPrefix, stage, alt)
}

func (s *Redis) Get(ctx context.Context, id uuid.UUID, stage domain.DataStage) (*models.Record, error) {
	start := time.Now()
	defer func() {
		lookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	fields, err := s.client.HGetAll(ctx, recordRedisKey(stage, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read registration: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decodeRecord(id, stage, fields)
}

func (s *Redis) FindByAlternatives(ctx context.Context, stage domain.DataStage, alternatives []string) ([]models.Record, error) {
	if len(alternatives) == 0 {
		return nil, nil
	}
	start := time.Now()
	defer func() {
		lookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	keys := make([]string, len(alternatives))
	for i, alt := range alternatives {
		keys[i] = altRedisKey(stage, alt)
	}
	members, err := s.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up alternatives: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareUUID)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, recordRedisKey(stage, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read registrations: %w", err)
	}

	out := make([]models.Record, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// The reverse index outlived the record; skip the dangling entry.
			continue
		}
		rec, err := decodeRecord(ids[i], stage, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *Redis) Save(ctx context.Context, rec models.Record) error {
	previous, err := s.Get(ctx, rec.UUID, rec.Stage)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if err := s.write(ctx, previous, &rec); err != nil {
		return err
	}
	tx.RecordUndo(ctx, func() { s.compensate(&rec, previous) })
	return nil
}

func (s *Redis) Remove(ctx context.Context, id uuid.UUID, stage domain.DataStage) error {
	previous, err := s.Get(ctx, id, stage)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.write(ctx, previous, nil); err != nil {
		return err
	}
	tx.RecordUndo(ctx, func() { s.compensate(nil, previous) })
	return nil
}

// write replaces previous with next atomically; a nil next deletes.
func (s *Redis) write(ctx context.Context, previous, next *models.Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != nil {
			for _, alt := range previous.Alternatives {
				pipe.SRem(ctx, altRedisKey(previous.Stage, alt), previous.UUID.String())
			}
			pipe.Del(ctx, recordRedisKey(previous.Stage, previous.UUID))
		}
		if next != nil {
			alts, err := json.Marshal(next.Alternatives)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, recordRedisKey(next.Stage, next.UUID),
				fieldSpace, string(next.Space),
				fieldAlternatives, string(alts),
			)
			for _, alt := range next.Alternatives {
				pipe.SAdd(ctx, altRedisKey(next.Stage, alt), next.UUID.String())
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write registration: %w", err)
	}
	return nil
}

// compensate runs on rollback, after the request context may already be done.
func (s *Redis) compensate(current, previous *models.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), undoTimeout)
	defer cancel()
	if err := s.write(ctx, current, previous); err != nil {
		target := current
		if target == nil {
			target = previous
		}
		s.logger.ErrorContext(ctx, "registry compensation failed",
			"instance", target.UUID,
			"stage", target.Stage,
			"error", err,
		)
	}
}

func decodeRecord(id uuid.UUID, stage domain.DataStage, fields map[string]string) (*models.Record, error) {
	rec := &models.Record{UUID: id, Stage: stage, Space: domain.SpaceName(fields[fieldSpace])}
	if raw := fields[fieldAlternatives]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Alternatives); err != nil {
			return nil, fmt.Errorf("failed to decode alternatives: %w", err)
		}
	}
	return rec, nil
}
