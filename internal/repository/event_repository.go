package repository

import (
	"context"

	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewEventRepository(db *gorm.DB, log *logrus.Logger) *EventRepository {
	return &EventRepository{
		db:  db,
		log: log,
	}
}

// SaveEvent archives a consumed event. A redelivered event id is ignored and
// reported as not inserted.
func (r *EventRepository) SaveEvent(ctx context.Context, event *model.StoredEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)

	return res.RowsAffected > 0, res.Error
}
