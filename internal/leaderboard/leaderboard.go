// Package leaderboard computes the top-N ranking from the credential store,
// optionally fronted by a cache.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	sl "score_service/internal/lib/logger/sl"
	"score_service/internal/models"
)

const DefaultSize = 10

type Provider interface {
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

type Cache interface {
	Leaderboard(ctx context.Context, size int) ([]models.LeaderboardEntry, bool, error)
	SetLeaderboard(ctx context.Context, size int, board []models.LeaderboardEntry) error
	InvalidateLeaderboard(ctx context.Context, size int) error
}

type Ranker struct {
	log      *slog.Logger
	provider Provider
	cache    Cache
	size     int

	// gen is bumped by every Recompute. A cache write is only made while gen
	// still equals the value observed before the store was read.
	mu  sync.Mutex
	gen uint64
}

// New builds a Ranker. cache may be nil.
func New(log *slog.Logger, provider Provider, cache Cache, size int) *Ranker {
	if size <= 0 {
		size = DefaultSize
	}

	return &Ranker{
		log:      log,
		provider: provider,
		cache:    cache,
		size:     size,
	}
}

// Top returns the current ranking, served from cache when possible. Cache
// errors are logged and the store is queried instead.
func (r *Ranker) Top(ctx context.Context) ([]models.LeaderboardEntry, error) {
	const op = "leaderboard.Top"

	if r.cache != nil {
		board, ok, err := r.cache.Leaderboard(ctx, r.size)
		if err != nil {
			r.log.Warn("leaderboard cache read failed", slog.String("op", op), sl.Err(err))
		} else if ok {
			return board, nil
		}
	}

	gen := r.generation()

	board, err := r.query(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.store(ctx, op, gen, board)

	return board, nil
}

// Recompute is called after a score change. It drops the cached ranking,
// reads a fresh one from the store and writes it through to the cache.
func (r *Ranker) Recompute(ctx context.Context) ([]models.LeaderboardEntry, error) {
	const op = "leaderboard.Recompute"

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	if r.cache != nil {
		if err := r.cache.InvalidateLeaderboard(ctx, r.size); err != nil {
			r.log.Warn("leaderboard cache invalidation failed", slog.String("op", op), sl.Err(err))
		}
	}

	board, err := r.query(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.store(ctx, op, gen, board)

	return board, nil
}

func (r *Ranker) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.gen
}

// store caches board unless a Recompute started after it was read.
func (r *Ranker) store(ctx context.Context, op string, gen uint64, board []models.LeaderboardEntry) {
	if r.cache == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		r.log.Debug("skipping cache write of superseded leaderboard", slog.String("op", op))
		return
	}

	if err := r.cache.SetLeaderboard(ctx, r.size, board); err != nil {
		r.log.Warn("leaderboard cache write failed", slog.String("op", op), sl.Err(err))
	}
}

func (r *Ranker) query(ctx context.Context) ([]models.LeaderboardEntry, error) {
	board, err := r.provider.Leaderboard(ctx, r.size)
	if err != nil {
		return nil, err
	}

	if board == nil {
		board = []models.LeaderboardEntry{}
	}

	return board, nil
}
