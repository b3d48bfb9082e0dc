package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"gamification-service/internal/dbtest"
	"gamification-service/internal/level"
	"gamification-service/internal/model"
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

func labelFor(total int64) string { return level.Of(total).Label }

func entry(userID, key string, delta int64) *model.XpLedgerEntry {
	return &model.XpLedgerEntry{
		UserID:         userID,
		Delta:          delta,
		Reason:         "test",
		IdempotencyKey: key,
		OccurredAt:     time.Now().UTC(),
	}
}

func TestLedgerApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedUser(t, db, "U1", 950)
	repo := NewLedgerRepository(db, quietLogger())

	user, applied, err := repo.Apply(ctx, entry("U1", "E1", 100), labelFor)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(1050), user.XpTotal)
	assert.Equal(t, level.Intermediate, user.Level)

	_, applied, err = repo.Apply(ctx, entry("U1", "E1", 100), labelFor)
	require.NoError(t, err)
	assert.False(t, applied)

	var stored model.User
	require.NoError(t, db.Where("id = ?", "U1").Take(&stored).Error)
	assert.Equal(t, int64(1050), stored.XpTotal)
	assert.Equal(t, level.Intermediate, stored.Level)

	var count int64
	require.NoError(t, db.Model(&model.XpLedgerEntry{}).Where("user_id = ?", "U1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLedgerApplyUnknownUserRollsBack(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	repo := NewLedgerRepository(db, quietLogger())

	_, _, err := repo.Apply(ctx, entry("ghost", "E1", 10), labelFor)
	require.ErrorIs(t, err, ErrUserNotFound)

	var count int64
	require.NoError(t, db.Model(&model.XpLedgerEntry{}).Where("idempotency_key = ?", "E1").Count(&count).Error)
	assert.Zero(t, count, "the ledger insert must roll back with the failed increment")
}

func TestLedgerApplyAllowsNegativeTotals(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedUser(t, db, "U1", 20)
	repo := NewLedgerRepository(db, quietLogger())

	user, applied, err := repo.Apply(ctx, entry("U1", "P1", -50), labelFor)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(-30), user.XpTotal)
	assert.Equal(t, level.Beginner, user.Level)
}

func TestLedgerHistoryCursor(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedUser(t, db, "U1", 0)
	repo := NewLedgerRepository(db, quietLogger())

	for _, key := range []string{"A", "B", "C", "D", "E"} {
		_, _, err := repo.Apply(ctx, entry("U1", key, 10), labelFor)
		require.NoError(t, err)
	}

	page1, err := repo.History(ctx, "U1", 0, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "E", page1[0].IdempotencyKey)
	assert.Equal(t, "D", page1[1].IdempotencyKey)

	page2, err := repo.History(ctx, "U1", page1[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "C", page2[0].IdempotencyKey)
	assert.Equal(t, "B", page2[1].IdempotencyKey)

	page3, err := repo.History(ctx, "U1", page2[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "A", page3[0].IdempotencyKey)
}

func TestBadgeGrantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedUser(t, db, "U1", 0)
	repo := NewBadgeRepository(db, quietLogger())
	require.NoError(t, repo.Create(ctx, &model.Badge{Code: "B1", Name: "First"}))

	granted, err := repo.Grant(ctx, "U1", "B1", "E1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = repo.Grant(ctx, "U1", "B1", "E2", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, granted)

	var grants int64
	require.NoError(t, db.Model(&model.UserBadge{}).Where("user_id = ?", "U1").Count(&grants).Error)
	assert.Equal(t, int64(1), grants)

	var audits []model.XpLedgerEntry
	require.NoError(t, db.Where("user_id = ? AND reason = ?", "U1", "badge:B1").Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Zero(t, audits[0].Delta)
	assert.Equal(t, "E1", audits[0].SourceEventID)

	var user model.User
	require.NoError(t, db.Where("id = ?", "U1").Take(&user).Error)
	assert.Zero(t, user.XpTotal)
}

func TestBadgeGrantUnknownCode(t *testing.T) {
	db := dbtest.New(t)
	repo := NewBadgeRepository(db, quietLogger())

	_, err := repo.Grant(context.Background(), "U1", "NOPE", "E1", time.Now())
	assert.ErrorIs(t, err, ErrBadgeNotFound)
}

func TestBadgeCatalogCRUD(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	repo := NewBadgeRepository(db, quietLogger())

	require.NoError(t, repo.Create(ctx, &model.Badge{Code: "B1", Name: "First"}))
	assert.ErrorIs(t, repo.Create(ctx, &model.Badge{Code: "B1", Name: "Again"}), ErrDuplicateBadge)

	updated, err := repo.Update(ctx, "B1", map[string]interface{}{"name": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	_, err = repo.Update(ctx, "NOPE", map[string]interface{}{"name": "x"})
	assert.ErrorIs(t, err, ErrBadgeNotFound)

	require.NoError(t, repo.Delete(ctx, "B1"))
	assert.ErrorIs(t, repo.Delete(ctx, "B1"), ErrBadgeNotFound)
	_, err = repo.Find(ctx, "B1")
	assert.ErrorIs(t, err, ErrBadgeNotFound)
}

func seedCourses(t *testing.T, db *gorm.DB) {
	t.Helper()
	str := func(s string) *string { return &s }

	courses := []model.Course{
		{ID: "C1", DepartmentID: str("D1"), CategoryID: str("CAT1")},
		{ID: "C2", DepartmentID: str("D1"), CategoryID: str("CAT1")},
		{ID: "C3", DepartmentID: str("D2"), CategoryID: str("CAT2")},
		{ID: "C4", DepartmentID: nil, CategoryID: nil},
	}
	require.NoError(t, db.Create(&courses).Error)
}

func TestFactsQueries(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedUser(t, db, "U1", 120)
	seedCourses(t, db)

	now := time.Now().UTC()
	lastYear := now.AddDate(-1, 0, 0)
	enrollments := []model.Enrollment{
		{ID: "EN1", UserID: "U1", CourseID: "C1", Status: model.EnrollmentCompleted, CompletedAt: &lastYear},
		{ID: "EN2", UserID: "U1", CourseID: "C2", Status: model.EnrollmentCompleted, CompletedAt: &now},
		{ID: "EN3", UserID: "U1", CourseID: "C3", Status: model.EnrollmentCompleted, CompletedAt: &now},
		{ID: "EN4", UserID: "U1", CourseID: "C4", Status: "IN_PROGRESS"},
		{ID: "EN5", UserID: "U2", CourseID: "C1", Status: model.EnrollmentCompleted, CompletedAt: &now},
	}
	require.NoError(t, db.Create(&enrollments).Error)

	d1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	progress := []model.ModuleProgress{
		{EnrollmentID: "EN1", ModuleID: "M1", StartedAt: &d1},
		{EnrollmentID: "EN2", ModuleID: "M2", StartedAt: &d2},
		{EnrollmentID: "EN4", ModuleID: "M3"},
	}
	require.NoError(t, db.Create(&progress).Error)

	require.NoError(t, NewBadgeRepository(db, quietLogger()).Create(ctx, &model.Badge{Code: "B1", Name: "B1"}))
	require.NoError(t, db.Create(&model.UserBadge{UserID: "U1", BadgeCode: "B1", GrantedAt: now}).Error)

	facts := NewFactsRepository(db, quietLogger())

	held, err := facts.HeldBadges(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"B1": true}, held)

	n, err := facts.CompletedCourses(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = facts.CompletedCoursesSince(ctx, "U1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = facts.DistinctDepartments(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = facts.MaxCoursesInCategory(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = facts.XpTotal(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), n)

	_, err = facts.XpTotal(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	times, err := facts.ActivityTimes(ctx, "U1")
	require.NoError(t, err)
	assert.Len(t, times, 2)

	n, err = facts.MaxCoursesInCategory(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRankingPositiveStandingsOrder(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	rows := []model.RankingEntry{
		{UserID: "a", XpTotal: 100},
		{UserID: "b", XpTotal: 300},
		{UserID: "c", XpTotal: 100},
		{UserID: "d", XpTotal: 0},
	}
	require.NoError(t, db.Create(&rows).Error)

	repo := NewRankingRepository(db, quietLogger())
	standings, err := repo.PositiveStandings(ctx, 10, 0)
	require.NoError(t, err)

	ids := make([]string, 0, len(standings))
	for _, s := range standings {
		ids = append(ids, s.UserID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)

	page, err := repo.PositiveStandings(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].UserID)
}

func TestEventSaveIgnoresRedelivery(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	repo := NewEventRepository(db, quietLogger())

	inserted, err := repo.SaveEvent(ctx, &model.StoredEvent{EventID: "E1", Type: "t", Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.SaveEvent(ctx, &model.StoredEvent{EventID: "E1", Type: "t", Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.False(t, inserted)

	var count int64
	require.NoError(t, db.Model(&model.StoredEvent{}).Where("event_id = ?", "E1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
