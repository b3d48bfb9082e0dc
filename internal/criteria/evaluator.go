package criteria

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Facts is the read-only view of the system of record the evaluator needs.
type Facts interface {
	HeldBadges(ctx context.Context, userID string) (map[string]bool, error)
	CompletedCourses(ctx context.Context, userID string) (int64, error)
	CompletedCoursesSince(ctx context.Context, userID string, since time.Time) (int64, error)
	DistinctDepartments(ctx context.Context, userID string) (int64, error)
	MaxCoursesInCategory(ctx context.Context, userID string) (int64, error)
	XpTotal(ctx context.Context, userID string) (int64, error)
	ActivityTimes(ctx context.Context, userID string) ([]time.Time, error)
}

type Status int

const (
	NotSatisfied Status = iota
	Satisfied
	AlreadyHeld
)

func (s Status) String() string {
	switch s {
	case Satisfied:
		return "satisfied"
	case AlreadyHeld:
		return "already_held"
	default:
		return "not_satisfied"
	}
}

// MarshalText renders the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Verdict struct {
	BadgeCode string `json:"badge_code"`
	Status    Status `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type Evaluator struct {
	facts Facts
	log   *logrus.Logger
	now   func() time.Time
}

func NewEvaluator(facts Facts, log *logrus.Logger) *Evaluator {
	return &Evaluator{
		facts: facts,
		log:   log,
		now:   time.Now,
	}
}

// Evaluate returns one verdict per catalog entry, in catalog order. Badges
// already held short-circuit before any fact is read. Each fact is read at
// most once per call. Only a failure to read the held badges aborts the run;
// any other fact failure marks the affected badge not satisfied.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, catalog Catalog) ([]Verdict, error) {
	held, err := e.facts.HeldBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load held badges: %w", err)
	}

	measured := make(map[Kind]int64)
	verdicts := make([]Verdict, 0, len(catalog))

	for _, entry := range catalog {
		code := entry.Badge.Code

		if held[code] {
			verdicts = append(verdicts, Verdict{BadgeCode: code, Status: AlreadyHeld})
			continue
		}

		if entry.Err != nil {
			if errors.Is(entry.Err, ErrUnknownKind) {
				e.log.WithFields(logrus.Fields{
					"badge_code": code,
					"user_id":    userID,
				}).Warn("skipping badge with unknown criterion kind")
			}
			verdicts = append(verdicts, Verdict{BadgeCode: code, Status: NotSatisfied, Reason: entry.Err.Error()})
			continue
		}

		value, ok := measured[entry.Criterion.Kind]
		if !ok {
			value, err = e.measure(ctx, userID, entry.Criterion.Kind)
			if err != nil {
				e.log.WithFields(logrus.Fields{
					"badge_code": code,
					"user_id":    userID,
					"criterion":  entry.Criterion.String(),
				}).WithError(err).Error("failed to evaluate badge criterion")
				verdicts = append(verdicts, Verdict{BadgeCode: code, Status: NotSatisfied, Reason: "facts unavailable: " + err.Error()})
				continue
			}
			measured[entry.Criterion.Kind] = value
		}

		if value >= entry.Criterion.Threshold {
			verdicts = append(verdicts, Verdict{BadgeCode: code, Status: Satisfied})
			continue
		}
		verdicts = append(verdicts, Verdict{
			BadgeCode: code,
			Status:    NotSatisfied,
			Reason:    fmt.Sprintf("%s is %d, needs %d", entry.Criterion.Kind, value, entry.Criterion.Threshold),
		})
	}

	return verdicts, nil
}

func (e *Evaluator) measure(ctx context.Context, userID string, kind Kind) (int64, error) {
	switch kind {
	case KindCompletedCourses:
		return e.facts.CompletedCourses(ctx, userID)
	case KindCoursesThisMonth:
		now := e.now().UTC()
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return e.facts.CompletedCoursesSince(ctx, userID, monthStart)
	case KindDistinctDepartments:
		return e.facts.DistinctDepartments(ctx, userID)
	case KindSameCategory:
		return e.facts.MaxCoursesInCategory(ctx, userID)
	case KindXpTotal:
		return e.facts.XpTotal(ctx, userID)
	case KindStreakDays:
		activity, err := e.facts.ActivityTimes(ctx, userID)
		if err != nil {
			return 0, err
		}
		return int64(LongestStreak(activity)), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
