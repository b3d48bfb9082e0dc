package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"gamification-service/internal/dbtest"
	"gamification-service/internal/events"
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

type fakeCache struct {
	mu     sync.Mutex
	scores map[string]int64
	err    error
}

func (c *fakeCache) Upsert(_ context.Context, userID string, score int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.scores == nil {
		c.scores = map[string]int64{}
	}
	c.scores[userID] = score
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []events.DomainEvent
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, ev events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, ev)
	return nil
}

func setup(t *testing.T, startXP int64) (*Ledger, *gorm.DB, *fakeCache, *fakePublisher) {
	t.Helper()

	db := dbtest.New(t)
	dbtest.SeedUser(t, db, "U1", startXP)

	cache := &fakeCache{}
	pub := &fakePublisher{}
	store := repository.NewLedgerRepository(db, quietLogger())

	return New(store, cache, pub, "gamification-service", quietLogger()), db, cache, pub
}

func userTotal(t *testing.T, db *gorm.DB, id string) model.User {
	t.Helper()
	var u model.User
	require.NoError(t, db.Where("id = ?", id).Take(&u).Error)
	return u
}

func TestAdjustAppliesOnce(t *testing.T) {
	ctx := context.Background()
	l, db, cache, pub := setup(t, 0)

	adj := Adjustment{UserID: "U1", Delta: 50, IdempotencyKey: "E1", Reason: "module:M1", SourceEventID: "E1"}

	res, err := l.Adjust(ctx, adj)
	require.NoError(t, err)
	assert.Equal(t, Result{Applied: true, NewTotal: 50, Level: level.Beginner}, res)

	res, err = l.Adjust(ctx, adj)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	assert.Equal(t, int64(50), userTotal(t, db, "U1").XpTotal)
	assert.Equal(t, int64(50), cache.scores["U1"])

	require.Len(t, pub.published, 1, "duplicates publish nothing")
	var payload events.XpAdjusted
	require.NoError(t, json.Unmarshal(pub.published[0].Payload, &payload))
	assert.Equal(t, events.XpAdjusted{UserID: "U1", Delta: 50, NewTotalXp: 50, Level: level.Beginner, SourceEventID: "E1"}, payload)
	assert.Equal(t, events.TypeXpAdjusted, pub.published[0].Type)
}

func TestAdjustZeroDeltaIsNoop(t *testing.T) {
	ctx := context.Background()
	l, db, cache, pub := setup(t, 10)

	res, err := l.Adjust(ctx, Adjustment{UserID: "U1", Delta: 0, IdempotencyKey: "Z1"})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	var count int64
	require.NoError(t, db.Model(&model.XpLedgerEntry{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, int64(10), userTotal(t, db, "U1").XpTotal)
	assert.Empty(t, cache.scores)
	assert.Empty(t, pub.published)
}

func TestAdjustRelabelsLevel(t *testing.T) {
	ctx := context.Background()
	l, db, _, _ := setup(t, 2990)

	res, err := l.Adjust(ctx, Adjustment{UserID: "U1", Delta: 10, IdempotencyKey: "E1"})
	require.NoError(t, err)
	assert.Equal(t, level.Advanced, res.Level)
	assert.Equal(t, level.Advanced, userTotal(t, db, "U1").Level)
}

func TestAdjustSwallowsSideEffectFailures(t *testing.T) {
	ctx := context.Background()
	l, db, cache, pub := setup(t, 0)
	cache.err = errors.New("redis down")
	pub.err = errors.New("broker down")

	res, err := l.Adjust(ctx, Adjustment{UserID: "U1", Delta: 25, IdempotencyKey: "E1"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(25), userTotal(t, db, "U1").XpTotal)
}

func TestAdjustUnknownUser(t *testing.T) {
	l, _, _, pub := setup(t, 0)

	_, err := l.Adjust(context.Background(), Adjustment{UserID: "ghost", Delta: 5, IdempotencyKey: "E1"})
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.Empty(t, pub.published)
}

func TestAdjustRequiresKey(t *testing.T) {
	l, _, _, _ := setup(t, 0)

	_, err := l.Adjust(context.Background(), Adjustment{UserID: "U1", Delta: 5})
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestConcurrentDeliveriesApplyOnce(t *testing.T) {
	ctx := context.Background()
	l, db, _, pub := setup(t, 0)

	const deliveries = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Adjust(ctx, Adjustment{UserID: "U1", Delta: 40, IdempotencyKey: "E-same"})
			if err != nil {
				t.Errorf("adjust: %v", err)
				return
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, int64(40), userTotal(t, db, "U1").XpTotal)
	assert.Len(t, pub.published, 1)
}
