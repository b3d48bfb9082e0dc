package repository

import (
	"context"
	"errors"
	"time"

	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FactsRepository answers the read-only questions asked by badge criteria.
type FactsRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewFactsRepository(db *gorm.DB, log *logrus.Logger) *FactsRepository {
	return &FactsRepository{
		db:  db,
		log: log,
	}
}

func (r *FactsRepository) HeldBadges(ctx context.Context, userID string) (map[string]bool, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&model.UserBadge{}).
		Where("user_id = ?", userID).
		Pluck("badge_code", &codes).Error; err != nil {
		return nil, err
	}

	held := make(map[string]bool, len(codes))
	for _, c := range codes {
		held[c] = true
	}
	return held, nil
}

func (r *FactsRepository) completed(ctx context.Context, userID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Enrollment{}).
		Where("enrollments.user_id = ? AND enrollments.status = ?", userID, model.EnrollmentCompleted)
}

func (r *FactsRepository) CompletedCourses(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.completed(ctx, userID).Count(&count).Error
	return count, err
}

func (r *FactsRepository) CompletedCoursesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.completed(ctx, userID).
		Where("enrollments.completed_at >= ?", since).
		Count(&count).Error
	return count, err
}

func (r *FactsRepository) DistinctDepartments(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.completed(ctx, userID).
		Joins("JOIN courses ON courses.id = enrollments.course_id").
		Where("courses.department_id IS NOT NULL").
		Select("COUNT(DISTINCT courses.department_id)").
		Scan(&count).Error
	return count, err
}

// MaxCoursesInCategory returns the completed-course count of the user's
// strongest category.
func (r *FactsRepository) MaxCoursesInCategory(ctx context.Context, userID string) (int64, error) {
	var counts []int64
	err := r.completed(ctx, userID).
		Joins("JOIN courses ON courses.id = enrollments.course_id").
		Where("courses.category_id IS NOT NULL").
		Group("courses.category_id").
		Order("total DESC").
		Limit(1).
		Pluck("COUNT(*) AS total", &counts).Error
	if err != nil || len(counts) == 0 {
		return 0, err
	}
	return counts[0], nil
}

func (r *FactsRepository) XpTotal(ctx context.Context, userID string) (int64, error) {
	var user model.User
	err := r.db.WithContext(ctx).Select("xp_total").Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	return user.XpTotal, err
}

// ActivityTimes returns the start time of every module the user has begun.
func (r *FactsRepository) ActivityTimes(ctx context.Context, userID string) ([]time.Time, error) {
	var progress []model.ModuleProgress
	err := r.db.WithContext(ctx).
		Select("module_progress.started_at").
		Joins("JOIN enrollments ON enrollments.id = module_progress.enrollment_id").
		Where("enrollments.user_id = ? AND module_progress.started_at IS NOT NULL", userID).
		Find(&progress).Error
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, 0, len(progress))
	for _, p := range progress {
		if p.StartedAt != nil {
			times = append(times, *p.StartedAt)
		}
	}
	return times, nil
}
