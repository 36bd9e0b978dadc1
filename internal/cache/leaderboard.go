// Package cache keeps the leaderboard in a Redis sorted set.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/quizhall/internal/model"
)

// DefaultKey is the sorted set holding the global leaderboard.
const DefaultKey = "quizhall:leaderboard"

// tieBase exceeds any unix timestamp in seconds, so earlier attempts rank
// higher among equal scores.
const tieBase = 1e10

// Leaderboard ranks attempts by score.
type Leaderboard interface {
	Record(ctx context.Context, a model.Attempt) error
	Top(ctx context.Context, limit int) ([]string, error)
	// Rank returns the 1-based position of an attempt, or -1 if it is not ranked.
	Rank(ctx context.Context, attemptID string) (int64, error)
	Reset(ctx context.Context) error
}

type leaderboard struct {
	client *redis.Client
	key    string
}

// NewLeaderboard creates a leaderboard stored under key, or DefaultKey when empty.
func NewLeaderboard(client *redis.Client, key string) Leaderboard {
	if key == "" {
		key = DefaultKey
	}
	return &leaderboard{client: client, key: key}
}

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func rankScore(a model.Attempt) float64 {
	return float64(a.Score)*tieBase + (tieBase - float64(a.Timestamp.Unix()))
}

func (l *leaderboard) Record(ctx context.Context, a model.Attempt) error {
	return l.client.ZAdd(ctx, l.key, redis.Z{
		Score:  rankScore(a),
		Member: a.ID,
	}).Err()
}

func (l *leaderboard) Top(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	return l.client.ZRevRange(ctx, l.key, 0, int64(limit-1)).Result()
}

func (l *leaderboard) Rank(ctx context.Context, attemptID string) (int64, error) {
	rank, err := l.client.ZRevRank(ctx, l.key, attemptID).Result()
	if errors.Is(err, redis.Nil) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return rank + 1, nil
}

func (l *leaderboard) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}
