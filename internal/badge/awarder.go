// Package badge grants badges whose criteria a user satisfies and manages the
// badge catalog.
package badge

import (
	"context"
	"time"

	"gamification-service/internal/events"
	"gamification-service/internal/metrics"
	"github.com/sirupsen/logrus"
)

// GrantStore records grants. Grant reports false when the user already
// holds the badge.
type GrantStore interface {
	Grant(ctx context.Context, userID, code, sourceEventID string, at time.Time) (bool, error)
}

type Awarder struct {
	store     GrantStore
	publisher events.Publisher
	source    string
	log       *logrus.Logger
	now       func() time.Time
}

func NewAwarder(store GrantStore, publisher events.Publisher, source string, log *logrus.Logger) *Awarder {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &Awarder{
		store:     store,
		publisher: publisher,
		source:    source,
		log:       log,
		now:       time.Now,
	}
}

// Grant awards code to userID. Granting a badge the user already holds is a
// no-op that returns false. A first-time grant publishes a badge awarded
// event on a best-effort basis.
func (a *Awarder) Grant(ctx context.Context, userID, code, sourceEventID string) (bool, error) {
	granted, err := a.store.Grant(ctx, userID, code, sourceEventID, a.now().UTC())
	if err != nil {
		return false, err
	}
	if !granted {
		return false, nil
	}

	metrics.BadgesAwarded.WithLabelValues(code).Inc()
	a.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"badge_code": code,
		"event_id":   sourceEventID,
	}).Info("badge granted")

	ev, err := events.New(events.TypeBadgeAwarded, a.source, events.BadgeAwarded{
		UserID:        userID,
		BadgeCode:     code,
		SourceEventID: sourceEventID,
	})
	if err == nil {
		ev.CausationID = sourceEventID

		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = a.publisher.Publish(pubCtx, ev)
		cancel()
	}
	if err != nil {
		metrics.SideEffectFailures.WithLabelValues("publish").Inc()
		a.log.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"badge_code": code,
		}).Warn("failed to publish badge awarded event")
	}

	return true, nil
}
