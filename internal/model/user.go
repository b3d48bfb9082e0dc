package model

import (
	"time"
)

// User is the slice of the externally owned user record this service reads and writes.
type User struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Name         string    `gorm:"size:255" json:"name"`
	DepartmentID *string   `gorm:"size:64" json:"department_id,omitempty"`
	XpTotal      int64     `gorm:"not null;default:0" json:"xp_total"`
	Level        string    `gorm:"size:32;not null;default:Beginner" json:"level"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}
