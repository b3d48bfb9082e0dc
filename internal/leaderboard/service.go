package leaderboard

import (
	"context"
	"fmt"

	"gamification-service/internal/metrics"
	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
)

// Source names where a read was served from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceSnapshot Source = "snapshot"
	SourceDatabase Source = "database"
)

const recomputeBatch = 1000

// Cache is the read side of the leaderboard cache.
type Cache interface {
	Top(ctx context.Context, n int) ([]Standing, error)
	Rank(ctx context.Context, userID string) (Standing, bool, error)
}

// StandingsSource pages the system-of-record standings with positive XP in
// leaderboard order.
type StandingsSource interface {
	PositiveStandings(ctx context.Context, limit, offset int) ([]model.RankingEntry, error)
}

type Service struct {
	cache    Cache
	snapshot *Snapshot
	source   StandingsSource
	log      *logrus.Logger
}

func NewService(cache Cache, snapshot *Snapshot, source StandingsSource, log *logrus.Logger) *Service {
	return &Service{
		cache:    cache,
		snapshot: snapshot,
		source:   source,
		log:      log,
	}
}

// Top returns the n best standings. A cache failure degrades to the last
// synchronized snapshot, and without one to a recomputation from the
// system of record.
func (s *Service) Top(ctx context.Context, n int) ([]Standing, Source, error) {
	if s.cache != nil {
		top, err := s.cache.Top(ctx, n)
		if err == nil {
			metrics.LeaderboardSource.WithLabelValues(string(SourceCache)).Inc()
			return top, SourceCache, nil
		}
		s.log.WithError(err).Warn("leaderboard cache unavailable, falling back")
	}

	if s.snapshot.Loaded() {
		metrics.LeaderboardSource.WithLabelValues(string(SourceSnapshot)).Inc()
		return s.snapshot.Top(n), SourceSnapshot, nil
	}

	all, err := s.recompute(ctx)
	if err != nil {
		return nil, "", err
	}
	metrics.LeaderboardSource.WithLabelValues(string(SourceDatabase)).Inc()
	if n > len(all) {
		n = len(all)
	}
	if n < 0 {
		n = 0
	}
	return all[:n], SourceDatabase, nil
}

// Rank returns a user's position using the same fallback chain as Top.
func (s *Service) Rank(ctx context.Context, userID string) (Standing, bool, Source, error) {
	if s.cache != nil {
		st, ok, err := s.cache.Rank(ctx, userID)
		if err == nil {
			metrics.LeaderboardSource.WithLabelValues(string(SourceCache)).Inc()
			return st, ok, SourceCache, nil
		}
		s.log.WithError(err).WithField("user_id", userID).Warn("leaderboard cache unavailable, falling back")
	}

	if s.snapshot.Loaded() {
		metrics.LeaderboardSource.WithLabelValues(string(SourceSnapshot)).Inc()
		st, ok := s.snapshot.Rank(userID)
		return st, ok, SourceSnapshot, nil
	}

	all, err := s.recompute(ctx)
	if err != nil {
		return Standing{}, false, "", err
	}
	metrics.LeaderboardSource.WithLabelValues(string(SourceDatabase)).Inc()
	for _, st := range all {
		if st.UserID == userID {
			return st, true, SourceDatabase, nil
		}
	}
	return Standing{}, false, SourceDatabase, nil
}

// recompute rebuilds the standings from the system of record and keeps them
// as the snapshot so later reads do not repeat the work.
func (s *Service) recompute(ctx context.Context) ([]Standing, error) {
	standings, err := LoadStandings(ctx, s.source, recomputeBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute leaderboard: %w", err)
	}
	s.snapshot.Store(standings)
	return s.snapshot.Top(len(standings)), nil
}

// LoadStandings reads every positive standing in batches of batchSize, in
// leaderboard order, and ranks them from 1.
func LoadStandings(ctx context.Context, source StandingsSource, batchSize int) ([]Standing, error) {
	if batchSize <= 0 {
		batchSize = recomputeBatch
	}

	var out []Standing
	offset := 0
	for {
		rows, err := source.PositiveStandings(ctx, batchSize, offset)
		if err != nil {
			return nil, err
		}

		for _, r := range rows {
			out = append(out, Standing{
				Rank:   int64(len(out) + 1),
				UserID: r.UserID,
				Score:  r.XpTotal,
			})
		}

		offset += len(rows)
		if len(rows) < batchSize {
			break
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if out == nil {
		out = []Standing{}
	}
	return out, nil
}
