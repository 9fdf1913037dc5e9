// Package score applies score changes and propagates the resulting ranking.
package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"score_service/internal/lib/apperr"
	sl "score_service/internal/lib/logger/sl"
	"score_service/internal/models"
	"score_service/internal/storage"
)

type Result struct {
	NewScore    int64
	Leaderboard []models.LeaderboardEntry
}

type ScoreStore interface {
	AddScore(ctx context.Context, userID int64, delta int64) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
}

type Ranker interface {
	Top(ctx context.Context) ([]models.LeaderboardEntry, error)
	Recompute(ctx context.Context) ([]models.LeaderboardEntry, error)
}

type Publisher interface {
	Publish(board []models.LeaderboardEntry)
}

// EventSender forwards score events to the message broker.
type EventSender interface {
	SendScoreEvent(ctx context.Context, ev models.ScoreEvent) error
}

type Recorder interface {
	ScoreUpdated(delta int64, err error)
}

type Coordinator struct {
	log    *slog.Logger
	store  ScoreStore
	ranker Ranker
	hub    Publisher
	events EventSender
	rec    Recorder
	now    func() time.Time

	// publishMu orders recompute-and-publish so the last board handed to the
	// hub is read after every score change that preceded it.
	publishMu sync.Mutex
}

// New creates a coordinator. events and rec may be nil.
func New(log *slog.Logger, store ScoreStore, ranker Ranker, hub Publisher, events EventSender, rec Recorder) *Coordinator {
	if rec == nil {
		rec = nopRecorder{}
	}

	return &Coordinator{
		log:    log,
		store:  store,
		ranker: ranker,
		hub:    hub,
		events: events,
		rec:    rec,
		now:    time.Now,
	}
}

// ApplyDelta adds a positive delta to the user's score, then recomputes and
// broadcasts the leaderboard. The stored score is never decreased.
func (c *Coordinator) ApplyDelta(ctx context.Context, userID int64, delta int64) (res Result, err error) {
	const op = "score.ApplyDelta"

	defer func() { c.rec.ScoreUpdated(delta, err) }()

	log := c.log.With(slog.String("op", op), slog.Int64("uid", userID))

	if delta <= 0 {
		return Result{}, fmt.Errorf("%s: %w", op, apperr.ErrInvalidDelta)
	}

	user, err := c.store.AddScore(ctx, userID, delta)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return Result{}, fmt.Errorf("%s: %w", op, apperr.ErrUserNotFound)
		}
		if errors.Is(err, storage.ErrScoreOverflow) {
			log.Warn("score change out of range", slog.Int64("delta", delta))
			return Result{}, fmt.Errorf("%s: %w", op, apperr.Wrap(err, apperr.KindValidation, apperr.CodeInvalidDelta, apperr.ErrInvalidDelta.Message))
		}

		log.Error("failed to update score", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	board, err := c.recompute(ctx)
	if err != nil {
		log.Error("failed to recompute leaderboard", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	c.sendEvent(ctx, log, user, delta)

	log.Info("score updated", slog.Int64("delta", delta), slog.Int64("score", user.Score))

	return Result{NewScore: user.Score, Leaderboard: board}, nil
}

// Leaderboard returns the current top-N ranking.
func (c *Coordinator) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	const op = "score.Leaderboard"

	board, err := c.ranker.Top(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return board, nil
}

func (c *Coordinator) UserScore(ctx context.Context, userID int64) (models.UserScore, error) {
	const op = "score.UserScore"

	user, err := c.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.UserScore{}, fmt.Errorf("%s: %w", op, apperr.ErrUserNotFound)
		}
		return models.UserScore{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.UserScore{Username: user.Username, Score: user.Score}, nil
}

func (c *Coordinator) recompute(ctx context.Context) ([]models.LeaderboardEntry, error) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	board, err := c.ranker.Recompute(ctx)
	if err != nil {
		return nil, err
	}

	c.hub.Publish(board)

	return board, nil
}

func (c *Coordinator) sendEvent(ctx context.Context, log *slog.Logger, user models.User, delta int64) {
	if c.events == nil {
		return
	}

	ev := models.ScoreEvent{
		UserID:     user.ID,
		Username:   user.Username,
		Delta:      delta,
		NewScore:   user.Score,
		OccurredAt: c.now().UTC(),
	}

	if err := c.events.SendScoreEvent(ctx, ev); err != nil {
		log.Warn("failed to send score event", sl.Err(err))
	}
}

type nopRecorder struct{}

func (nopRecorder) ScoreUpdated(int64, error) {}
