package model

import (
	"time"
)

// Badge is a catalog entry. A nil Criterion means the badge is never awarded automatically.
type Badge struct {
	Code           string    `gorm:"primaryKey;size:64" json:"code"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	Criterion      *string   `gorm:"size:255" json:"criterion,omitempty"`
	IconURL        *string   `gorm:"size:512" json:"icon_url,omitempty"`
	PointsRequired *int64    `json:"points_required,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (Badge) TableName() string {
	return "badges"
}

// UserBadge records a grant. The composite primary key makes a second grant a conflict.
type UserBadge struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	BadgeCode string    `gorm:"primaryKey;size:64" json:"badge_code"`
	GrantedAt time.Time `gorm:"not null" json:"granted_at"`
}

// TableName specifies the table name
func (UserBadge) TableName() string {
	return "user_badges"
}
