// Package sync rebuilds the leaderboard cache from the system of record.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamification-service/internal/leaderboard"
	"gamification-service/internal/metrics"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const (
	syncTimeout     = 30 * time.Second
	defaultInterval = 24 * time.Hour
	lockKey         = "lock:leaderboard-sync"
)

// Cache is the write side of the leaderboard cache.
type Cache interface {
	Replace(ctx context.Context, standings []leaderboard.Standing) error
}

// Source pages the system-of-record standings.
type Source = leaderboard.StandingsSource

// Locker obtains a cluster-wide lock. *redislock.Client satisfies it.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

type Synchronizer struct {
	source    Source
	cache     Cache
	snapshot  *leaderboard.Snapshot
	locker    Locker
	batchSize int
	lockTTL   time.Duration
	log       *logrus.Logger
}

// New builds a Synchronizer. locker may be nil, in which case runs are not
// coordinated across replicas.
func New(
	source Source,
	cache Cache,
	snapshot *leaderboard.Snapshot,
	locker Locker,
	batchSize int,
	lockTTL time.Duration,
	log *logrus.Logger,
) *Synchronizer {
	return &Synchronizer{
		source:    source,
		cache:     cache,
		snapshot:  snapshot,
		locker:    locker,
		batchSize: batchSize,
		lockTTL:   lockTTL,
		log:       log,
	}
}

// Run synchronizes immediately and then every interval until ctx is done.
// A failed cycle is logged and leaves the previous cache contents in place.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping leaderboard synchronizer")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Synchronizer) runLogged(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.log.WithError(err).Error("leaderboard synchronization failed")
	}
}

// RunOnce reads every standing with positive XP and replaces the cache
// contents wholesale. When another replica holds the sync lock the run is
// skipped.
func (s *Synchronizer) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, lockKey, s.lockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			metrics.SyncRuns.WithLabelValues("skipped").Inc()
			s.log.Debug("leaderboard sync already running elsewhere, skipping")
			return nil
		}
		if err != nil {
			metrics.SyncRuns.WithLabelValues("failed").Inc()
			s.refreshSnapshot(ctx)
			return fmt.Errorf("failed to obtain sync lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				s.log.WithError(err).Warn("failed to release sync lock")
			}
		}()
	}

	start := time.Now()

	standings, err := leaderboard.LoadStandings(ctx, s.source, s.batchSize)
	if err != nil {
		metrics.SyncRuns.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to read standings: %w", err)
	}

	if err := s.cache.Replace(ctx, standings); err != nil {
		metrics.SyncRuns.WithLabelValues("failed").Inc()
		return err
	}
	s.snapshot.Store(standings)

	elapsed := time.Since(start)
	metrics.SyncRuns.WithLabelValues("succeeded").Inc()
	metrics.SyncDuration.Observe(elapsed.Seconds())

	s.log.WithFields(logrus.Fields{
		"synced":   len(standings),
		"duration": elapsed,
	}).Info("leaderboard synchronization completed")

	return nil
}

// refreshSnapshot reloads the in-process standings when Redis cannot be
// reached, so fallback reads keep following the system of record.
func (s *Synchronizer) refreshSnapshot(ctx context.Context) {
	standings, err := leaderboard.LoadStandings(ctx, s.source, s.batchSize)
	if err != nil {
		s.log.WithError(err).Warn("failed to refresh leaderboard snapshot")
		return
	}
	s.snapshot.Store(standings)
	s.log.WithField("standings", len(standings)).Info("redis unavailable, leaderboard snapshot refreshed from database")
}
