package cli

import (
	"context"
	"fmt"
	"time"

	"gamification-service/internal/badge"
	"gamification-service/internal/config"
	"gamification-service/internal/criteria"
	"gamification-service/internal/database"
	"gamification-service/internal/events"
	"gamification-service/internal/leaderboard"
	"gamification-service/internal/ledger"
	"gamification-service/internal/logger"
	"gamification-service/internal/processor"
	"gamification-service/internal/profile"
	"gamification-service/internal/repository"
	cacheSync "gamification-service/internal/sync"
	"gamification-service/internal/tracing"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// app holds the components shared by every command.
type app struct {
	cfg *config.Config
	log *logrus.Logger

	shutdownTracing tracing.ShutdownFunc

	db    *database.Database
	redis *redis.Client

	users    *repository.UserRepository
	rankings *repository.RankingRepository

	cache        *leaderboard.RedisCache
	snapshot     *leaderboard.Snapshot
	leaderboard  *leaderboard.Service
	synchronizer *cacheSync.Synchronizer

	publisher events.Publisher
	badges    *badge.Service
	profiles  *profile.Service
}

// newApp connects to PostgreSQL and Redis and builds the services. The
// publisher decides where derived events go; commands without a broker pass
// events.NopPublisher.
func newApp(ctx context.Context, publisher events.Publisher) (*app, error) {
	return newAppWith(ctx, func(*config.Config, *logrus.Logger) events.Publisher { return publisher })
}

// newAppWith lets the caller build the publisher from the loaded configuration.
func newAppWith(ctx context.Context, publisherFor func(*config.Config, *logrus.Logger) events.Publisher) (*app, error) {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	shutdownTracing, err := tracing.Setup(cfg.Tracing, cfg.ServiceName, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	db, err := database.New(cfg.Database, log)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Reads fall back to the snapshot and the database until Redis is back.
		log.WithError(err).Warn("redis unavailable, leaderboard cache degraded")
	}

	a := &app{cfg: cfg, log: log, shutdownTracing: shutdownTracing, db: db, redis: rdb}
	a.wire(publisherFor(cfg, log))
	return a, nil
}

func (a *app) wire(publisher events.Publisher) {
	gdb, log := a.db.DB, a.log
	a.publisher = publisher

	a.users = repository.NewUserRepository(gdb, log)
	a.rankings = repository.NewRankingRepository(gdb, log)
	badgeRepo := repository.NewBadgeRepository(gdb, log)
	ledgerRepo := repository.NewLedgerRepository(gdb, log)

	a.cache = leaderboard.NewRedisCache(a.redis, a.cfg.Redis.LeaderboardKey, log)
	a.snapshot = leaderboard.NewSnapshot()
	a.leaderboard = leaderboard.NewService(a.cache, a.snapshot, a.rankings, log)
	a.synchronizer = cacheSync.New(
		a.rankings,
		a.cache,
		a.snapshot,
		redislock.New(a.redis),
		a.cfg.Sync.BatchSize,
		a.cfg.Sync.LockTTL,
		log,
	)

	evaluator := criteria.NewEvaluator(repository.NewFactsRepository(gdb, log), log)
	awarder := badge.NewAwarder(badgeRepo, publisher, a.cfg.ServiceName, log)
	a.badges = badge.NewService(badgeRepo, a.users, evaluator, awarder, log)
	a.profiles = profile.NewService(a.users, badgeRepo, ledgerRepo, log)
}

// processor builds the event handler. The ledger pushes scores to the
// leaderboard cache and publishes xp.adjusted events.
func (a *app) processor() *processor.Processor {
	gdb, log := a.db.DB, a.log

	xp := ledger.New(repository.NewLedgerRepository(gdb, log), a.cache, a.publisher, a.cfg.ServiceName, log)
	return processor.New(repository.NewEventRepository(gdb, log), xp, a.badges, log)
}

func (a *app) close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close redis client")
	}
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.log.WithError(err).Warn("failed to flush traces")
	}
}
