// Package leaderboard serves XP standings from a Redis sorted set, falling
// back to the last synchronized snapshot and then to the system of record.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	memberPrefix = "user:"
	// replaceChunk bounds the members sent per ZADD while rebuilding.
	replaceChunk = 500
)

// Standing is one leaderboard position. Rank is 1-based.
type Standing struct {
	Rank   int64  `json:"rank"`
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}

func member(userID string) string {
	return memberPrefix + userID
}

func userFromMember(m string) string {
	return strings.TrimPrefix(m, memberPrefix)
}

type RedisCache struct {
	client redis.UniversalClient
	key    string
	log    *logrus.Logger
}

func NewRedisCache(client redis.UniversalClient, key string, log *logrus.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		key:    key,
		log:    log,
	}
}

// Upsert sets a user's score. Users without positive XP are removed so the
// set matches what a full rebuild would produce.
func (c *RedisCache) Upsert(ctx context.Context, userID string, score int64) error {
	if score <= 0 {
		return c.client.ZRem(ctx, c.key, member(userID)).Err()
	}
	return c.client.ZAdd(ctx, c.key, redis.Z{Score: float64(score), Member: member(userID)}).Err()
}

// Replace clears the set and repopulates it with standings inside one
// MULTI/EXEC block, so readers see either the old or the new contents.
func (c *RedisCache) Replace(ctx context.Context, standings []Standing) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key)

		for start := 0; start < len(standings); start += replaceChunk {
			end := start + replaceChunk
			if end > len(standings) {
				end = len(standings)
			}

			members := make([]redis.Z, 0, end-start)
			for _, s := range standings[start:end] {
				members = append(members, redis.Z{Score: float64(s.Score), Member: member(s.UserID)})
			}
			pipe.ZAdd(ctx, c.key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild leaderboard %s: %w", c.key, err)
	}
	return nil
}

// Top returns the n highest scores. Equal scores order by member descending.
func (c *RedisCache) Top(ctx context.Context, n int) ([]Standing, error) {
	if n <= 0 {
		return []Standing{}, nil
	}

	zs, err := c.client.ZRevRangeWithScores(ctx, c.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Standing, 0, len(zs))
	for i, z := range zs {
		m, _ := z.Member.(string)
		out = append(out, Standing{
			Rank:   int64(i + 1),
			UserID: userFromMember(m),
			Score:  int64(z.Score),
		})
	}
	return out, nil
}

// Rank returns the user's position. ok is false when the user has no score.
func (c *RedisCache) Rank(ctx context.Context, userID string) (s Standing, ok bool, err error) {
	m := member(userID)

	rank, err := c.client.ZRevRank(ctx, c.key, m).Result()
	if errors.Is(err, redis.Nil) {
		return Standing{}, false, nil
	}
	if err != nil {
		return Standing{}, false, err
	}

	score, err := c.client.ZScore(ctx, c.key, m).Result()
	if errors.Is(err, redis.Nil) {
		// removed between the two reads
		return Standing{}, false, nil
	}
	if err != nil {
		return Standing{}, false, err
	}

	return Standing{Rank: rank + 1, UserID: userID, Score: int64(score)}, true, nil
}
