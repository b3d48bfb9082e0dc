package model

import (
	"time"
)

// XpLedgerEntry is one immutable XP delta. IdempotencyKey is unique across the table.
type XpLedgerEntry struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string    `gorm:"index:idx_ledger_user;size:64;not null" json:"user_id"`
	Delta          int64     `gorm:"not null" json:"delta"`
	Reason         string    `gorm:"size:255;not null" json:"reason"`
	IdempotencyKey string    `gorm:"uniqueIndex:idx_ledger_idempotency_key;size:255;not null" json:"idempotency_key"`
	SourceEventID  string    `gorm:"size:255" json:"source_event_id,omitempty"`
	OccurredAt     time.Time `gorm:"not null" json:"occurred_at"`
}

// TableName specifies the table name
func (XpLedgerEntry) TableName() string {
	return "xp_ledger"
}
