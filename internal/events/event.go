// Package events defines the domain event envelope exchanged on the
// domain.events topic exchange and the typed payloads this service knows.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeModuleCompleted  = "progress.module.completed.v1"
	TypeCourseCompleted  = "progress.course.completed.v1"
	TypeAssessmentPassed = "assessment.passed.v1"

	TypeXpAdjusted   = "xp.adjusted.v1"
	TypeBadgeAwarded = "gamification.badge.awarded.v1"
)

// InboundTypes are the routing keys the consumer queue is bound to.
func InboundTypes() []string {
	return []string{TypeModuleCompleted, TypeCourseCompleted, TypeAssessmentPassed}
}

// DomainEvent is the wire envelope. Payload stays raw until the type is known.
type DomainEvent struct {
	EventID       string          `json:"eventId"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    string          `json:"occurredAt"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CausationID   string          `json:"causationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ParseOccurredAt parses the timestamp string to time.Time
func (e *DomainEvent) ParseOccurredAt() (time.Time, error) {
	if e.OccurredAt == "" {
		return time.Now().UTC(), nil
	}

	t, err := time.Parse(time.RFC3339Nano, e.OccurredAt)
	if err != nil {
		formats := []string{
			"2006-01-02T15:04:05Z07:00",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
		}
		for _, format := range formats {
			if t, err := time.Parse(format, e.OccurredAt); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Now().UTC(), err
	}
	return t.UTC(), nil
}

// New wraps payload in a fresh envelope stamped now.
func New(eventType, source string, payload any) (DomainEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return DomainEvent{}, err
	}

	return DomainEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		Version:    1,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Source:     source,
		Payload:    raw,
	}, nil
}

// XpAdjusted is published after every applied ledger adjustment.
type XpAdjusted struct {
	UserID        string `json:"userId"`
	Delta         int64  `json:"delta"`
	NewTotalXp    int64  `json:"newTotalXp"`
	Level         string `json:"level"`
	SourceEventID string `json:"sourceEventId"`
}

// BadgeAwarded is published after a first-time grant.
type BadgeAwarded struct {
	UserID        string `json:"userId"`
	BadgeCode     string `json:"badgeCode"`
	SourceEventID string `json:"sourceEventId"`
}
