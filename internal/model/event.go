package model

import (
	"time"

	"gorm.io/datatypes"
)

// StoredEvent archives every consumed domain event, keyed by its event id.
type StoredEvent struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	EventID    string         `gorm:"uniqueIndex:idx_event_id;size:255;not null" json:"event_id"`
	Type       string         `gorm:"index:idx_event_type;size:255;not null" json:"type"`
	Version    int            `gorm:"not null;default:1" json:"version"`
	Source     string         `gorm:"size:255" json:"source"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    datatypes.JSON `json:"payload"`
}

// TableName specifies the table name
func (StoredEvent) TableName() string {
	return "events_store"
}

// All lists every model migrated by this service.
func All() []any {
	return []any{
		&User{},
		&XpLedgerEntry{},
		&Badge{},
		&UserBadge{},
		&RankingEntry{},
		&Course{},
		&Enrollment{},
		&ModuleProgress{},
		&StoredEvent{},
	}
}
