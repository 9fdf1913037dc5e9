package leaderboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"score_service/internal/models"
	"score_service/internal/storage/memory"
	"score_service/internal/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	board       []models.LeaderboardEntry
	has         bool
	readErr     error
	sets        int
	invalidated int
}

func (c *fakeCache) Leaderboard(context.Context, int) ([]models.LeaderboardEntry, bool, error) {
	return c.board, c.has, c.readErr
}

func (c *fakeCache) SetLeaderboard(_ context.Context, _ int, board []models.LeaderboardEntry) error {
	c.sets++
	c.board, c.has = board, true
	return nil
}

func (c *fakeCache) InvalidateLeaderboard(context.Context, int) error {
	c.invalidated++
	c.board, c.has = nil, false
	return nil
}

type failingProvider struct{}

func (failingProvider) Leaderboard(context.Context, int) ([]models.LeaderboardEntry, error) {
	return nil, errors.New("db down")
}

var discard = slog.New(slog.DiscardHandler)

func seed(t *testing.T, scores map[string]int64) *memory.Repo {
	t.Helper()

	ctx := context.Background()
	repo := memory.New()

	for name, s := range scores {
		u, err := repo.SaveUser(ctx, name, name+"@x.com", nil)
		require.NoError(t, err)
		_, err = repo.AddScore(ctx, u.ID, s)
		require.NoError(t, err)
	}

	return repo
}

func TestRanker_TopWithoutCache(t *testing.T) {
	r := New(discard, seed(t, map[string]int64{"a": 1, "b": 3, "c": 2}), nil, 2)

	board, err := r.Top(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.LeaderboardEntry{{Username: "b", Score: 3}, {Username: "c", Score: 2}}, board)
}

func TestRanker_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultSize, New(discard, memory.New(), nil, 0).size)
}

func TestRanker_EmptyIsNotNil(t *testing.T) {
	board, err := New(discard, memory.New(), nil, 10).Top(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, board)
	assert.Empty(t, board)
}

func TestRanker_CacheHitAndFill(t *testing.T) {
	ctx := context.Background()
	cache := &fakeCache{}
	r := New(discard, seed(t, map[string]int64{"a": 5}), cache, 10)

	board, err := r.Top(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, board, cache.board)

	cache.board = []models.LeaderboardEntry{{Username: "cached", Score: 1}}
	board, err = r.Top(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cached", board[0].Username)
	assert.Equal(t, 1, cache.sets)
}

func TestRanker_CacheReadErrorFallsBack(t *testing.T) {
	cache := &fakeCache{readErr: errors.New("redis down")}
	r := New(discard, seed(t, map[string]int64{"a": 5}), cache, 10)

	board, err := r.Top(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.LeaderboardEntry{{Username: "a", Score: 5}}, board)
}

func TestRanker_RecomputeWritesThrough(t *testing.T) {
	cache := &fakeCache{has: true, board: []models.LeaderboardEntry{{Username: "stale", Score: 1}}}
	r := New(discard, seed(t, map[string]int64{"a": 5}), cache, 10)

	board, err := r.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", board[0].Username)
	assert.Equal(t, 1, cache.invalidated)
	assert.True(t, cache.has)
	assert.Equal(t, board, cache.board)
}

// gatedProvider parks the first Leaderboard call after it has read the
// store, until release is closed.
type gatedProvider struct {
	Provider

	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *gatedProvider) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	board, err := p.Provider.Leaderboard(ctx, limit)

	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.read)
		<-p.release
	}

	return board, err
}

func TestRanker_StaleReadDoesNotOverwriteCache(t *testing.T) {
	ctx := context.Background()

	srv := miniredis.RunT(t)
	cache, err := redis.New(ctx, srv.Addr(), "", 0, time.Minute)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	repo := memory.New()
	alice, err := repo.SaveUser(ctx, "alice", "alice@x.com", nil)
	require.NoError(t, err)
	bob, err := repo.SaveUser(ctx, "bob", "bob@x.com", nil)
	require.NoError(t, err)
	_, err = repo.AddScore(ctx, alice.ID, 10)
	require.NoError(t, err)

	provider := &gatedProvider{Provider: repo, read: make(chan struct{}), release: make(chan struct{})}
	r := New(discard, provider, cache, 10)

	done := make(chan []models.LeaderboardEntry)
	go func() {
		board, err := r.Top(ctx)
		assert.NoError(t, err)
		done <- board
	}()

	<-provider.read

	_, err = repo.AddScore(ctx, bob.ID, 20)
	require.NoError(t, err)
	fresh, err := r.Recompute(ctx)
	require.NoError(t, err)

	close(provider.release)
	stale := <-done
	assert.Equal(t, "alice", stale[0].Username)

	cached, ok, err := cache.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fresh, cached)
	assert.Equal(t, []models.LeaderboardEntry{{Username: "bob", Score: 20}, {Username: "alice", Score: 10}}, cached)

	board, err := r.Top(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, board)
}

func TestRanker_ProviderError(t *testing.T) {
	_, err := New(discard, failingProvider{}, nil, 10).Top(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
