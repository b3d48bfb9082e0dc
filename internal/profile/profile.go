// Package profile assembles the read model of a user's progress.
package profile

import (
	"context"

	"gamification-service/internal/level"
	"gamification-service/internal/model"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

type Users interface {
	Find(ctx context.Context, id string) (*model.User, error)
}

type Badges interface {
	UserBadges(ctx context.Context, userID string) ([]model.Badge, error)
}

type History interface {
	History(ctx context.Context, userID string, cursor uint64, limit int) ([]model.XpLedgerEntry, error)
}

type Profile struct {
	UserID        string        `json:"user_id"`
	Name          string        `json:"name"`
	XpTotal       int64         `json:"xp_total"`
	Level         string        `json:"level"`
	NextThreshold int64         `json:"next_threshold"`
	Badges        []model.Badge `json:"badges"`
}

// HistoryPage is one page of ledger entries, newest first. NextCursor is
// zero on the last page.
type HistoryPage struct {
	Entries    []model.XpLedgerEntry `json:"entries"`
	NextCursor uint64                `json:"next_cursor,omitempty"`
}

type Service struct {
	users   Users
	badges  Badges
	history History
	log     *logrus.Logger
}

func NewService(users Users, badges Badges, history History, log *logrus.Logger) *Service {
	return &Service{
		users:   users,
		badges:  badges,
		history: history,
		log:     log,
	}
}

func (s *Service) Get(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}

	badges, err := s.badges.UserBadges(ctx, userID)
	if err != nil {
		return nil, err
	}

	lvl := level.Of(user.XpTotal)
	return &Profile{
		UserID:        user.ID,
		Name:          user.Name,
		XpTotal:       user.XpTotal,
		Level:         lvl.Label,
		NextThreshold: lvl.NextThreshold,
		Badges:        badges,
	}, nil
}

// History returns entries with an id below cursor (all when cursor is zero).
// limit is clamped to [1, MaxHistoryLimit] and defaults to DefaultHistoryLimit.
func (s *Service) History(ctx context.Context, userID string, cursor uint64, limit int) (*HistoryPage, error) {
	if _, err := s.users.Find(ctx, userID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	entries, err := s.history.History(ctx, userID, cursor, limit)
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{Entries: entries}
	if len(entries) == limit {
		page.NextCursor = entries[len(entries)-1].ID
	}
	return page, nil
}
