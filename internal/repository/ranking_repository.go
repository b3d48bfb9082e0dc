package repository

import (
	"context"

	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type RankingRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewRankingRepository(db *gorm.DB, log *logrus.Logger) *RankingRepository {
	return &RankingRepository{
		db:  db,
		log: log,
	}
}

// PositiveStandings pages the standings with positive XP, highest first.
// Equal totals order by user id descending, matching the cache's tie order.
func (r *RankingRepository) PositiveStandings(ctx context.Context, limit, offset int) ([]model.RankingEntry, error) {
	var entries []model.RankingEntry
	err := r.db.WithContext(ctx).
		Select("user_id", "name", "xp_total").
		Where("xp_total > 0").
		Order("xp_total DESC").
		Order("user_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error

	return entries, err
}

// Global returns the top of the overall ranking as computed by the aggregation job.
func (r *RankingRepository) Global(ctx context.Context, limit int) ([]model.RankingEntry, error) {
	var entries []model.RankingEntry
	err := r.db.WithContext(ctx).
		Where("global_rank IS NOT NULL").
		Order("global_rank ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Monthly returns the monthly ranking, optionally restricted to one department.
func (r *RankingRepository) Monthly(ctx context.Context, departmentID string, limit int) ([]model.RankingEntry, error) {
	var entries []model.RankingEntry

	q := r.db.WithContext(ctx).Where("monthly_rank IS NOT NULL")
	if departmentID != "" {
		q = q.Where("department_id = ?", departmentID)
	}
	err := q.Order("monthly_rank ASC").Limit(limit).Find(&entries).Error

	return entries, err
}
