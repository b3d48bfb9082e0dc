package repository

import (
	"context"

	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewLedgerRepository(db *gorm.DB, log *logrus.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:  db,
		log: log,
	}
}

// Apply appends entry and adds its delta to the user's total in one
// transaction. The unique idempotency key arbitrates concurrent deliveries:
// when the key already exists nothing changes and applied is false. labelFor
// derives the level for the new total; the stored label is rewritten only
// when it differs.
func (r *LedgerRepository) Apply(
	ctx context.Context,
	entry *model.XpLedgerEntry,
	labelFor func(total int64) string,
) (user model.User, applied bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		upd := tx.Model(&model.User{}).
			Where("id = ?", entry.UserID).
			UpdateColumn("xp_total", gorm.Expr("xp_total + ?", entry.Delta))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrUserNotFound
		}

		// The row lock taken by the increment is held until commit, so this
		// read sees exactly our total.
		if err := tx.Select("id", "name", "xp_total", "level").
			Where("id = ?", entry.UserID).
			Take(&user).Error; err != nil {
			return err
		}

		if label := labelFor(user.XpTotal); label != user.Level {
			if err := tx.Model(&model.User{}).
				Where("id = ?", entry.UserID).
				UpdateColumn("level", label).Error; err != nil {
				return err
			}
			user.Level = label
		}

		applied = true
		return nil
	})
	if err != nil {
		return model.User{}, false, err
	}
	return user, applied, nil
}

// History pages a user's entries newest first. A zero cursor starts at the
// newest entry; otherwise only entries with an id below cursor are returned.
func (r *LedgerRepository) History(ctx context.Context, userID string, cursor uint64, limit int) ([]model.XpLedgerEntry, error) {
	var entries []model.XpLedgerEntry

	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}
	err := q.Order("id DESC").Limit(limit).Find(&entries).Error

	return entries, err
}
