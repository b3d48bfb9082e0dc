package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewBadgeRepository(db *gorm.DB, log *logrus.Logger) *BadgeRepository {
	return &BadgeRepository{
		db:  db,
		log: log,
	}
}

// List returns the whole catalog ordered by code.
func (r *BadgeRepository) List(ctx context.Context) ([]model.Badge, error) {
	var badges []model.Badge
	err := r.db.WithContext(ctx).Order("code ASC").Find(&badges).Error
	return badges, err
}

func (r *BadgeRepository) Find(ctx context.Context, code string) (*model.Badge, error) {
	var badge model.Badge
	err := r.db.WithContext(ctx).Where("code = ?", code).Take(&badge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBadgeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &badge, nil
}

func (r *BadgeRepository) Create(ctx context.Context, badge *model.Badge) error {
	err := r.db.WithContext(ctx).Create(badge).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateBadge
	}
	return err
}

// Update writes the given columns of an existing badge.
func (r *BadgeRepository) Update(ctx context.Context, code string, fields map[string]interface{}) (*model.Badge, error) {
	res := r.db.WithContext(ctx).Model(&model.Badge{}).Where("code = ?", code).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrBadgeNotFound
	}
	return r.Find(ctx, code)
}

func (r *BadgeRepository) Delete(ctx context.Context, code string) error {
	res := r.db.WithContext(ctx).Where("code = ?", code).Delete(&model.Badge{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBadgeNotFound
	}
	return nil
}

// UserBadges returns the badges a user holds, oldest grant first.
func (r *BadgeRepository) UserBadges(ctx context.Context, userID string) ([]model.Badge, error) {
	var badges []model.Badge
	err := r.db.WithContext(ctx).
		Joins("JOIN user_badges ON user_badges.badge_code = badges.code").
		Where("user_badges.user_id = ?", userID).
		Order("user_badges.granted_at ASC").
		Find(&badges).Error
	return badges, err
}

// Grant records that userID holds code. A second grant for the same pair is
// a no-op that returns false. A first grant also appends a zero-delta ledger
// entry so the award shows up in the XP history; its idempotency key is
// derived from the pair, so it is written at most once.
func (r *BadgeRepository) Grant(ctx context.Context, userID, code, sourceEventID string, at time.Time) (bool, error) {
	granted := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Badge{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrBadgeNotFound
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UserBadge{
			UserID:    userID,
			BadgeCode: code,
			GrantedAt: at,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		audit := &model.XpLedgerEntry{
			UserID:         userID,
			Delta:          0,
			Reason:         "badge:" + code,
			IdempotencyKey: fmt.Sprintf("badge:%s:%s", userID, code),
			SourceEventID:  sourceEventID,
			OccurredAt:     at,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(audit).Error; err != nil {
			return err
		}

		granted = true
		return nil
	})

	return granted, err
}
