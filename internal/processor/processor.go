// Package processor turns decoded domain events into ledger adjustments and
// badge grants.
package processor

import (
	"context"
	"fmt"
	"time"

	"gamification-service/internal/badge"
	"gamification-service/internal/events"
	"gamification-service/internal/ledger"
	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
)

const (
	// Legacy module completions without xpEarned are worth moduleXP, plus
	// courseBonusXP when the module closed its course.
	moduleXP      int64 = 50
	courseBonusXP int64 = 100
)

// Archive keeps the raw events this service has consumed.
type Archive interface {
	SaveEvent(ctx context.Context, event *model.StoredEvent) (bool, error)
}

type XpLedger interface {
	Adjust(ctx context.Context, adj ledger.Adjustment) (ledger.Result, error)
}

type Awarder interface {
	EvaluateAndAward(ctx context.Context, userID, sourceEventID string) ([]badge.Outcome, error)
}

type Processor struct {
	archive Archive
	ledger  XpLedger
	badges  Awarder
	log     *logrus.Logger
}

func New(archive Archive, xp XpLedger, badges Awarder, log *logrus.Logger) *Processor {
	return &Processor{
		archive: archive,
		ledger:  xp,
		badges:  badges,
		log:     log,
	}
}

// Handle applies one event. Every mutation is keyed by the event id, so
// handling the same event again changes nothing. An error means the event
// could not be applied and should be rejected.
func (p *Processor) Handle(ctx context.Context, ev events.Event) error {
	env := ev.Envelope

	occurredAt, err := env.ParseOccurredAt()
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"event_id":    env.EventID,
			"occurred_at": env.OccurredAt,
		}).Warn("failed to parse occurredAt, using current time")
	}

	switch body := ev.Body.(type) {
	case events.ModuleCompleted:
		p.store(ctx, env, occurredAt)
		return p.award(ctx, env, occurredAt, body.UserID, moduleDelta(body), "module:"+body.ModuleID)

	case events.CourseCompleted:
		p.store(ctx, env, occurredAt)
		return p.award(ctx, env, occurredAt, body.UserID, earned(body.XpEarned), "course:"+body.CourseID)

	case events.AssessmentPassed:
		p.store(ctx, env, occurredAt)
		return p.award(ctx, env, occurredAt, body.UserID, earned(body.XpEarned), "assessment:"+body.AssessmentID)

	default:
		p.log.WithFields(logrus.Fields{
			"event_id":   env.EventID,
			"event_type": env.Type,
		}).Debug("no handler for event type, ignoring")
		return nil
	}
}

func moduleDelta(m events.ModuleCompleted) int64 {
	if m.XpEarned != nil {
		return *m.XpEarned
	}

	delta := moduleXP
	if m.CompletedCourse {
		delta += courseBonusXP
	}
	return delta
}

func earned(xp *int64) int64 {
	if xp == nil {
		return 0
	}
	return *xp
}

// store archives the raw event. The archive is informational; a failure is
// logged and processing continues.
func (p *Processor) store(ctx context.Context, env events.DomainEvent, occurredAt time.Time) {
	inserted, err := p.archive.SaveEvent(ctx, &model.StoredEvent{
		EventID:    env.EventID,
		Type:       env.Type,
		Version:    env.Version,
		Source:     env.Source,
		OccurredAt: occurredAt,
		Payload:    []byte(env.Payload),
	})
	if err != nil {
		p.log.WithError(err).WithField("event_id", env.EventID).Warn("failed to archive event, will process anyway")
		return
	}
	if !inserted {
		p.log.WithField("event_id", env.EventID).Debug("event already archived, redelivery")
	}
}

// award credits delta to the user under the event id and then re-evaluates
// the user's badges. Evaluation runs on redelivery too, so a crash between
// the two steps heals on the next attempt.
func (p *Processor) award(ctx context.Context, env events.DomainEvent, occurredAt time.Time, userID string, delta int64, reason string) error {
	if _, err := p.ledger.Adjust(ctx, ledger.Adjustment{
		UserID:         userID,
		Delta:          delta,
		IdempotencyKey: env.EventID,
		Reason:         reason,
		SourceEventID:  env.EventID,
		OccurredAt:     occurredAt,
	}); err != nil {
		return fmt.Errorf("failed to adjust xp for %s: %w", userID, err)
	}

	if _, err := p.badges.EvaluateAndAward(ctx, userID, env.EventID); err != nil {
		return fmt.Errorf("failed to award badges for %s: %w", userID, err)
	}

	return nil
}
