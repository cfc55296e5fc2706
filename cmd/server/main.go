package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"kgcore/internal/events"
	"kgcore/internal/events/outbox"
	"kgcore/internal/gateway"
	"kgcore/internal/gateway/handler"
	"kgcore/internal/graph"
	"kgcore/internal/identity"
	instancesvc "kgcore/internal/instances/service"
	instancestore "kgcore/internal/instances/store"
	"kgcore/internal/permission"
	"kgcore/internal/platform/config"
	"kgcore/internal/platform/database"
	"kgcore/internal/platform/httpserver"
	"kgcore/internal/platform/logger"
	"kgcore/internal/platform/metrics"
	"kgcore/internal/platform/redis"
	registrysvc "kgcore/internal/registry/service"
	registrystore "kgcore/internal/registry/store"
	"kgcore/internal/space"
	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/platform/httputil"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type outboxStore interface {
	outbox.Source
	graph.OutboxWriter
}

// backends groups the stores selected by configuration.
type backends struct {
	db        *sql.DB
	uow       gateway.UnitOfWork
	spaces    gateway.Spaces
	journal   gateway.Journal
	instances instancesvc.Store
	graph     instancesvc.Graph
	registry  registrysvc.Store
	redis     *redis.Client
	outbox    outboxStore
	closers   []func() error
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

// health reports whether the configured backends answer.
func (b *backends) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "postgres unavailable"))
			return
		}
	}
	if b.redis != nil {
		if err := b.redis.Health(ctx); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "redis unavailable"))
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if err := validateBackends(cfg); err != nil {
		return err
	}
	roles, err := roleMapping(cfg.RoleMappingPath)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	reg := metrics.NewRegistry()
	registry := registrysvc.New(b.registry, cfg.IDNamespace, registrysvc.WithLogger(log))
	if b.db != nil {
		b.graph = graph.NewPostgresStore(b.db, b.outbox, registry.UUIDFromAbsoluteID)
	} else {
		b.graph = graph.NewInMemoryStore(registry.UUIDFromAbsoluteID)
	}

	lifecycle := instancesvc.New(b.instances, registry, b.graph,
		instancesvc.WithLogger(log),
		instancesvc.WithMetrics(instancesvc.NewMetrics(reg)),
	)
	gw := gateway.New(b.uow, b.spaces, b.journal, lifecycle, registry,
		gateway.WithLogger(log),
		gateway.WithMetrics(gateway.NewMetrics(reg)),
	)

	tokens := identity.NewTokenService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	auth := identity.NewSource(tokens, roles, identity.WithLogger(log))

	router := chi.NewRouter()
	router.Handle("/metrics", metrics.Handler(reg))
	router.Get("/healthz", b.health)
	handler.New(gw, auth, log).Register(router)

	var relay *outbox.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		var closeRelay func()
		relay, closeRelay, err = newRelay(ctx, cfg.Kafka, b.outbox, outbox.NewMetrics(reg), log)
		if err != nil {
			return err
		}
		defer closeRelay()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(ctx, "starting kgcore", "addr", cfg.Addr, "postgres", b.db != nil)
		return httpserver.Serve(ctx, httpserver.New(cfg.Addr, router), shutdownTimeout)
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

func roleMapping(path string) (*permission.RoleMapping, error) {
	if path == "" {
		return permission.DefaultRoleMapping(), nil
	}
	roles, err := permission.LoadRoleMappingFile(path)
	if err != nil {
		return nil, fmt.Errorf("load role mapping: %w", err)
	}
	return roles, nil
}

// validateBackends rejects a persistent graph paired with an in-memory
// registry, which would lose every identifier on restart.
func validateBackends(cfg config.Server) error {
	if cfg.Postgres.DSN != "" && cfg.Redis.URL == "" {
		return errors.New("a postgres backend needs KG_REDIS_URL for the identifier registry")
	}
	return nil
}

// openBackends keeps everything in memory unless Postgres or Redis are configured.
func openBackends(ctx context.Context, cfg config.Server, log *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.Postgres.DSN == "" {
		ob := outbox.NewInMemoryStore()
		b.outbox = ob
		b.uow = gateway.NewMemoryUnitOfWork(cfg.TxTimeout)
		b.spaces = space.NewInMemoryStore()
		b.journal = events.NewInMemoryJournal(ob)
		b.instances = instancestore.NewInMemory()
	} else {
		db, err := database.Open(ctx, database.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := database.Migrate(ctx, db); err != nil {
			b.close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		ob := outbox.NewPostgresStore(db)
		b.db = db
		b.outbox = ob
		b.uow = gateway.NewPostgresUnitOfWork(db, cfg.TxTimeout)
		b.spaces = space.NewPostgresStore(db)
		b.journal = events.NewPostgresJournal(db, ob)
		b.instances = instancestore.NewPostgres(db)
		log.InfoContext(ctx, "postgres backend ready")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		b.registry = registrystore.NewInMemory()
		return b, nil
	}
	b.closers = append(b.closers, client.Close)
	b.redis = client
	b.registry = registrystore.NewRedis(client.Client, registrystore.WithLogger(log))
	log.InfoContext(ctx, "redis identifier registry ready")
	return b, nil
}

func newRelay(ctx context.Context, cfg config.KafkaConfig, source outbox.Source, m *outbox.Metrics, log *slog.Logger) (*outbox.Relay, func(), error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := outbox.EnsureTopic(ctx, client, cfg.Topic, cfg.Partitions, 1); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ensure topic %s: %w", cfg.Topic, err)
	}
	relay := outbox.NewRelay(source, client, cfg.Topic,
		outbox.WithLogger(log),
		outbox.WithInterval(cfg.PollInterval),
		outbox.WithBatchSize(cfg.RelayBatchSize),
		outbox.WithMetrics(m),
	)
	return relay, client.Close, nil
}
