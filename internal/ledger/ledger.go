// Package ledger applies XP adjustments exactly once per idempotency key.
package ledger

import (
	"context"
	"errors"
	"time"

	"gamification-service/internal/events"
	"gamification-service/internal/level"
	"gamification-service/internal/metrics"
	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrEmptyKey is returned when an adjustment carries no idempotency key.
var ErrEmptyKey = errors.New("idempotency key is required")

const sideEffectTimeout = 5 * time.Second

// Store persists ledger entries and user totals.
type Store interface {
	Apply(ctx context.Context, entry *model.XpLedgerEntry, labelFor func(total int64) string) (model.User, bool, error)
}

// ScoreCache receives best-effort score pushes after each applied adjustment.
type ScoreCache interface {
	Upsert(ctx context.Context, userID string, score int64) error
}

// Adjustment is one requested change to a user's XP.
type Adjustment struct {
	UserID         string
	Delta          int64
	IdempotencyKey string
	Reason         string
	// SourceEventID is carried into the ledger entry and the published event.
	SourceEventID string
	OccurredAt    time.Time
}

// Result reports the outcome of Adjust. When Applied is false the call was a
// no-op and NewTotal and Level are unset.
type Result struct {
	Applied  bool
	NewTotal int64
	Level    string
}

type Ledger struct {
	store     Store
	cache     ScoreCache
	publisher events.Publisher
	source    string
	log       *logrus.Logger
}

func New(store Store, cache ScoreCache, publisher events.Publisher, source string, log *logrus.Logger) *Ledger {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &Ledger{
		store:     store,
		cache:     cache,
		publisher: publisher,
		source:    source,
		log:       log,
	}
}

// Adjust applies adj.Delta to the user's total unless an entry already exists
// for adj.IdempotencyKey. A zero delta returns immediately without touching
// storage. After an applied adjustment the leaderboard cache is updated and
// an xp.adjusted event is published; failures of either are logged and do
// not fail the call.
func (l *Ledger) Adjust(ctx context.Context, adj Adjustment) (Result, error) {
	if adj.Delta == 0 {
		metrics.XpAdjustments.WithLabelValues("zero").Inc()
		return Result{}, nil
	}
	if adj.IdempotencyKey == "" {
		return Result{}, ErrEmptyKey
	}

	occurredAt := adj.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	entry := &model.XpLedgerEntry{
		UserID:         adj.UserID,
		Delta:          adj.Delta,
		Reason:         adj.Reason,
		IdempotencyKey: adj.IdempotencyKey,
		SourceEventID:  adj.SourceEventID,
		OccurredAt:     occurredAt.UTC(),
	}

	user, applied, err := l.store.Apply(ctx, entry, func(total int64) string {
		return level.Of(total).Label
	})
	if err != nil {
		metrics.XpAdjustments.WithLabelValues("failed").Inc()
		return Result{}, err
	}

	fields := logrus.Fields{
		"user_id":         adj.UserID,
		"idempotency_key": adj.IdempotencyKey,
		"delta":           adj.Delta,
	}

	if !applied {
		metrics.XpAdjustments.WithLabelValues("duplicate").Inc()
		l.log.WithFields(fields).Debug("adjustment already applied, skipping")
		return Result{}, nil
	}

	metrics.XpAdjustments.WithLabelValues("applied").Inc()
	l.log.WithFields(fields).WithFields(logrus.Fields{
		"xp_total": user.XpTotal,
		"level":    user.Level,
	}).Info("xp adjusted")

	l.pushScore(ctx, user)
	l.publish(ctx, adj, user)

	return Result{Applied: true, NewTotal: user.XpTotal, Level: user.Level}, nil
}

func (l *Ledger) pushScore(ctx context.Context, user model.User) {
	if l.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	if err := l.cache.Upsert(ctx, user.ID, user.XpTotal); err != nil {
		metrics.SideEffectFailures.WithLabelValues("cache").Inc()
		l.log.WithError(err).WithField("user_id", user.ID).Warn("failed to push score to leaderboard cache")
	}
}

func (l *Ledger) publish(ctx context.Context, adj Adjustment, user model.User) {
	ev, err := events.New(events.TypeXpAdjusted, l.source, events.XpAdjusted{
		UserID:        user.ID,
		Delta:         adj.Delta,
		NewTotalXp:    user.XpTotal,
		Level:         user.Level,
		SourceEventID: adj.SourceEventID,
	})
	if err != nil {
		metrics.SideEffectFailures.WithLabelValues("publish").Inc()
		l.log.WithError(err).Warn("failed to build xp adjusted event")
		return
	}
	ev.CausationID = adj.SourceEventID

	ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	if err := l.publisher.Publish(ctx, ev); err != nil {
		metrics.SideEffectFailures.WithLabelValues("publish").Inc()
		l.log.WithError(err).WithFields(logrus.Fields{
			"user_id":    user.ID,
			"event_type": ev.Type,
		}).Warn("failed to publish xp adjusted event")
	}
}
