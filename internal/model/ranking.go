package model

import (
	"time"
)

// RankingEntry is a row of the recomputed standings table.
type RankingEntry struct {
	ID           uint      `gorm:"primarykey" json:"-"`
	UserID       string    `gorm:"uniqueIndex:idx_ranking_user;size:64;not null" json:"user_id"`
	Name         string    `gorm:"size:255" json:"name"`
	XpTotal      int64     `gorm:"index:idx_ranking_xp;not null;default:0" json:"xp_total"`
	XpThisMonth  int64     `gorm:"not null;default:0" json:"xp_this_month"`
	GlobalRank   *int64    `json:"global_rank,omitempty"`
	MonthlyRank  *int64    `json:"monthly_rank,omitempty"`
	DepartmentID *string   `gorm:"index:idx_ranking_department;size:64" json:"department_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (RankingEntry) TableName() string {
	return "rankings"
}
