package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"score_service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discard = slog.New(slog.DiscardHandler)

type staticSource struct {
	board []models.LeaderboardEntry
	err   error
}

func (s staticSource) Top(context.Context) ([]models.LeaderboardEntry, error) {
	return s.board, s.err
}

type recordingObserver struct {
	got chan []models.LeaderboardEntry
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{got: make(chan []models.LeaderboardEntry, 16)}
}

func (o *recordingObserver) Send(_ context.Context, board []models.LeaderboardEntry) error {
	o.got <- board
	return nil
}

type failingObserver struct {
	mu    sync.Mutex
	calls int
}

func (o *failingObserver) Send(context.Context, []models.LeaderboardEntry) error {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	return errors.New("connection reset")
}

// gatedObserver blocks every send until release is closed.
type gatedObserver struct {
	got     chan []models.LeaderboardEntry
	release chan struct{}
}

func (o *gatedObserver) Send(ctx context.Context, board []models.LeaderboardEntry) error {
	o.got <- board
	select {
	case <-o.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func board(name string, score int64) []models.LeaderboardEntry {
	return []models.LeaderboardEntry{{Username: name, Score: score}}
}

func receive(t *testing.T, ch <-chan []models.LeaderboardEntry) []models.LeaderboardEntry {
	t.Helper()

	select {
	case b := <-ch:
		return b
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for leaderboard push")
		return nil
	}
}

func assertSilent(t *testing.T, ch <-chan []models.LeaderboardEntry) {
	t.Helper()

	select {
	case b := <-ch:
		t.Fatalf("unexpected push: %v", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SubscribePushesSnapshot(t *testing.T) {
	hub := New(discard, staticSource{board: board("alice", 50)}, nil, time.Second)
	defer hub.Close()

	obs := newRecordingObserver()
	_, err := hub.Subscribe(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, board("alice", 50), receive(t, obs.got))
	assertSilent(t, obs.got)
}

func TestHub_SnapshotOnlyGoesToNewObserver(t *testing.T) {
	hub := New(discard, staticSource{board: board("alice", 50)}, nil, time.Second)
	defer hub.Close()

	first := newRecordingObserver()
	_, err := hub.Subscribe(context.Background(), first)
	require.NoError(t, err)
	receive(t, first.got)

	second := newRecordingObserver()
	_, err = hub.Subscribe(context.Background(), second)
	require.NoError(t, err)
	receive(t, second.got)

	assertSilent(t, first.got)
}

func TestHub_PublishReachesAllObservers(t *testing.T) {
	hub := New(discard, staticSource{board: []models.LeaderboardEntry{}}, nil, time.Second)
	defer hub.Close()

	observers := []*recordingObserver{newRecordingObserver(), newRecordingObserver(), newRecordingObserver()}
	for _, o := range observers {
		_, err := hub.Subscribe(context.Background(), o)
		require.NoError(t, err)
		receive(t, o.got)
	}

	hub.Publish(board("bob", 10))

	for _, o := range observers {
		assert.Equal(t, board("bob", 10), receive(t, o.got))
	}
}

func TestHub_PublishWithoutObservers(t *testing.T) {
	hub := New(discard, staticSource{}, nil, time.Second)
	defer hub.Close()

	assert.NotPanics(t, func() { hub.Publish(board("x", 1)) })
	assert.Zero(t, hub.Len())
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := New(discard, staticSource{board: board("a", 1)}, nil, time.Second)
	defer hub.Close()

	obs := newRecordingObserver()
	_, err := hub.Subscribe(context.Background(), obs)
	require.NoError(t, err)
	receive(t, obs.got)

	hub.Unsubscribe(obs)
	hub.Unsubscribe(obs)
	hub.Unsubscribe(newRecordingObserver())

	assert.Zero(t, hub.Len())

	hub.Publish(board("b", 2))
	assertSilent(t, obs.got)
}

func TestHub_SubscribeTwiceKeepsOneRegistration(t *testing.T) {
	hub := New(discard, staticSource{board: board("a", 1)}, nil, time.Second)
	defer hub.Close()

	obs := newRecordingObserver()
	id1, err := hub.Subscribe(context.Background(), obs)
	require.NoError(t, err)
	id2, err := hub.Subscribe(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, hub.Len())
}

func TestHub_FailingObserverIsIsolated(t *testing.T) {
	hub := New(discard, staticSource{board: board("a", 1)}, nil, time.Second)
	defer hub.Close()

	bad := &failingObserver{}
	good := newRecordingObserver()

	_, err := hub.Subscribe(context.Background(), bad)
	require.NoError(t, err)
	_, err = hub.Subscribe(context.Background(), good)
	require.NoError(t, err)
	receive(t, good.got)

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond,
		"failing observer must be dropped")

	hub.Publish(board("b", 2))
	assert.Equal(t, board("b", 2), receive(t, good.got))
}

func TestHub_SlowObserverDoesNotBlockPublish(t *testing.T) {
	hub := New(discard, staticSource{board: board("snap", 0)}, nil, 5*time.Second)
	defer hub.Close()

	slow := &gatedObserver{got: make(chan []models.LeaderboardEntry, 16), release: make(chan struct{})}
	fast := newRecordingObserver()

	_, err := hub.Subscribe(context.Background(), slow)
	require.NoError(t, err)
	_, err = hub.Subscribe(context.Background(), fast)
	require.NoError(t, err)

	// The slow observer is now stuck sending the snapshot.
	assert.Equal(t, board("snap", 0), receive(t, slow.got))
	receive(t, fast.got)

	start := time.Now()
	hub.Publish(board("one", 1))
	hub.Publish(board("two", 2))
	hub.Publish(board("three", 3))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	for {
		if b := receive(t, fast.got); b[0].Username == "three" {
			break
		}
	}

	close(slow.release)

	// Intermediate rankings are skipped; only the latest is delivered.
	assert.Equal(t, board("three", 3), receive(t, slow.got))
	assertSilent(t, slow.got)
}

func TestHub_PublishedRankingWinsOverOlderSnapshot(t *testing.T) {
	hub := New(discard, staticSource{board: board("snap", 0)}, nil, time.Second)
	defer hub.Close()

	obs := newRecordingObserver()
	_, err := hub.Subscribe(context.Background(), obs)
	require.NoError(t, err)

	sub := func() *subscriber {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.subs[obs]
	}()

	// A stale snapshot offered after a newer publish must be ignored.
	hub.Publish(board("new", 9))
	sub.offer(board("stale", 1), 0)

	var last []models.LeaderboardEntry
	for {
		select {
		case b := <-obs.got:
			last = b
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}

	assert.Equal(t, board("new", 9), last)
}

func TestHub_SubscribeSourceError(t *testing.T) {
	hub := New(discard, staticSource{err: errors.New("db down")}, nil, time.Second)
	defer hub.Close()

	_, err := hub.Subscribe(context.Background(), newRecordingObserver())
	require.Error(t, err)
	assert.Zero(t, hub.Len())
}

func TestHub_Close(t *testing.T) {
	hub := New(discard, staticSource{board: board("a", 1)}, nil, time.Second)

	obs := newRecordingObserver()
	_, err := hub.Subscribe(context.Background(), obs)
	require.NoError(t, err)

	hub.Close()
	hub.Close()

	assert.Zero(t, hub.Len())

	_, err = hub.Subscribe(context.Background(), newRecordingObserver())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	hub := New(discard, staticSource{board: board("a", 1)}, nil, time.Second)
	defer hub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			obs := newRecordingObserver()
			if _, err := hub.Subscribe(context.Background(), obs); err == nil {
				hub.Unsubscribe(obs)
			}
		}()
		go func() {
			defer wg.Done()
			hub.Publish(board("p", 1))
		}()
	}
	wg.Wait()

	assert.Zero(t, hub.Len())
}

type closingObserver struct {
	*recordingObserver
	closed chan struct{}
}

func (o *closingObserver) Close() error {
	close(o.closed)
	return nil
}

func TestHub_CloseClosesObservers(t *testing.T) {
	hub := New(discard, staticSource{board: board("a", 1)}, nil, time.Second)

	obs := &closingObserver{recordingObserver: newRecordingObserver(), closed: make(chan struct{})}
	_, err := hub.Subscribe(context.Background(), obs)
	require.NoError(t, err)
	receive(t, obs.got)

	hub.Close()

	select {
	case <-obs.closed:
	default:
		t.Fatal("observer was not closed")
	}
}
