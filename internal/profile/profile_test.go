package profile

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"gamification-service/internal/dbtest"
	"gamification-service/internal/level"
	"gamification-service/internal/model"
	"gamification-service/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newService(db *gorm.DB) *Service {
	log := quietLogger()
	return NewService(
		repository.NewUserRepository(db, log),
		repository.NewBadgeRepository(db, log),
		repository.NewLedgerRepository(db, log),
		log,
	)
}

func TestGetProfile(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedUser(t, db, "U1", 1500)
	require.NoError(t, db.Create(&model.Badge{Code: "B1", Name: "First"}).Error)
	require.NoError(t, db.Create(&model.UserBadge{UserID: "U1", BadgeCode: "B1", GrantedAt: time.Now().UTC()}).Error)

	p, err := newService(db).Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), p.XpTotal)
	assert.Equal(t, level.Intermediate, p.Level)
	assert.Equal(t, int64(3000), p.NextThreshold)
	require.Len(t, p.Badges, 1)
	assert.Equal(t, "B1", p.Badges[0].Code)

	_, err = newService(db).Get(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestHistoryPagination(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedUser(t, db, "U1", 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&model.XpLedgerEntry{
			UserID:         "U1",
			Delta:          10,
			Reason:         "module",
			IdempotencyKey: fmt.Sprintf("K%d", i),
			OccurredAt:     time.Now().UTC(),
		}).Error)
	}
	svc := newService(db)

	page, err := svc.History(ctx, "U1", 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "K4", page.Entries[0].IdempotencyKey)
	require.NotZero(t, page.NextCursor)

	page, err = svc.History(ctx, "U1", page.NextCursor, 2)
	require.NoError(t, err)
	assert.Equal(t, "K2", page.Entries[0].IdempotencyKey)

	page, err = svc.History(ctx, "U1", page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Zero(t, page.NextCursor)

	page, err = svc.History(ctx, "U1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 5)

	_, err = svc.History(ctx, "ghost", 0, 10)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}
