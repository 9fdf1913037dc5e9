package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"score_service/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, addr, pass string, db int, ttl time.Duration) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
		ttl:    ttl,
	}, nil
}

func leaderboardKey(size int) string {
	return fmt.Sprintf("leaderboard:top:%d", size)
}

// * Leaderboard returns the cached top-N; ok is false on a cache miss.
func (r *RedisRepo) Leaderboard(ctx context.Context, size int) (board []models.LeaderboardEntry, ok bool, err error) {
	const op = "storage.redis.Leaderboard"

	raw, err := r.client.Get(ctx, leaderboardKey(size)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(raw, &board); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return board, true, nil
}

func (r *RedisRepo) SetLeaderboard(ctx context.Context, size int, board []models.LeaderboardEntry) error {
	const op = "storage.redis.SetLeaderboard"

	raw, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.client.Set(ctx, leaderboardKey(size), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * InvalidateLeaderboard drops the cached ranking after a score change.
func (r *RedisRepo) InvalidateLeaderboard(ctx context.Context, size int) error {
	const op = "storage.redis.InvalidateLeaderboard"

	if err := r.client.Del(ctx, leaderboardKey(size)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * Close closes the client connection pool.
func (r *RedisRepo) Close() {
	r.client.Close()
}
