// Package broadcast pushes leaderboard rankings to connected observers.
//
// Every observer gets its own delivery goroutine and a single-slot mailbox
// that keeps only the newest ranking, so Publish never waits on a slow
// connection and a lagging observer skips intermediate rankings instead of
// queueing them.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sl "score_service/internal/lib/logger/sl"
	"score_service/internal/models"

	"github.com/oklog/ulid/v2"
)

var ErrClosed = errors.New("broadcast hub closed")

// Observer is one connected client. Send must honour ctx cancellation.
type Observer interface {
	Send(ctx context.Context, board []models.LeaderboardEntry) error
}

// Source provides the ranking pushed to newly subscribed observers.
type Source interface {
	Top(ctx context.Context) ([]models.LeaderboardEntry, error)
}

type Recorder interface {
	ObserverAdded()
	ObserverRemoved()
	Published()
	DeliveryFailed()
}

type Hub struct {
	log          *slog.Logger
	source       Source
	rec          Recorder
	writeTimeout time.Duration

	version atomic.Uint64

	mu     sync.RWMutex
	subs   map[Observer]*subscriber
	closed bool
	wg     sync.WaitGroup
}

type subscriber struct {
	id  ulid.ULID
	obs Observer

	mu      sync.Mutex
	board   []models.LeaderboardEntry
	version uint64
	filled  bool
	pending bool

	wake chan struct{}
	done chan struct{}
	stop sync.Once
}

// New creates a hub. rec may be nil.
func New(log *slog.Logger, source Source, rec Recorder, writeTimeout time.Duration) *Hub {
	if rec == nil {
		rec = nopRecorder{}
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	return &Hub{
		log:          log,
		source:       source,
		rec:          rec,
		writeTimeout: writeTimeout,
		subs:         make(map[Observer]*subscriber),
	}
}

// Subscribe registers obs and queues the current ranking for it alone.
// Subscribing an already registered observer is a no-op.
func (h *Hub) Subscribe(ctx context.Context, obs Observer) (ulid.ULID, error) {
	const op = "broadcast.Subscribe"

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ulid.ULID{}, ErrClosed
	}
	if existing, ok := h.subs[obs]; ok {
		h.mu.Unlock()
		return existing.id, nil
	}

	sub := &subscriber{
		id:   ulid.Make(),
		obs:  obs,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	h.subs[obs] = sub
	h.wg.Add(1)
	h.mu.Unlock()

	h.rec.ObserverAdded()
	go h.deliver(sub)

	// Anything published from here on carries a higher version and wins
	// over this snapshot.
	v := h.version.Load()

	board, err := h.source.Top(ctx)
	if err != nil {
		h.remove(sub)
		return ulid.ULID{}, fmt.Errorf("%s: %w", op, err)
	}

	sub.offer(board, v)

	h.log.Debug("observer subscribed", slog.String("op", op), slog.String("observer_id", sub.id.String()))

	return sub.id, nil
}

// Unsubscribe removes obs. Unknown or already removed observers are ignored.
func (h *Hub) Unsubscribe(obs Observer) {
	h.mu.Lock()
	sub, ok := h.subs[obs]
	if ok {
		delete(h.subs, obs)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
		h.rec.ObserverRemoved()
	}
}

// remove drops sub only if it is still the registration for its observer.
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	current, ok := h.subs[sub.obs]
	if ok && current == sub {
		delete(h.subs, sub.obs)
	} else {
		ok = false
	}
	h.mu.Unlock()

	sub.close()
	if ok {
		h.rec.ObserverRemoved()
	}
}

// Publish hands board to every subscribed observer without waiting for
// delivery.
func (h *Hub) Publish(board []models.LeaderboardEntry) {
	v := h.version.Add(1)

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.offer(board, v)
	}

	h.rec.Published()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Close removes every observer and waits for delivery goroutines to exit.
// Observers implementing io.Closer are closed afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[Observer]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
		h.rec.ObserverRemoved()
	}

	h.wg.Wait()

	for _, sub := range subs {
		if c, ok := sub.obs.(io.Closer); ok {
			if err := c.Close(); err != nil {
				h.log.Debug("failed to close observer", slog.String("observer_id", sub.id.String()), sl.Err(err))
			}
		}
	}
}

func (h *Hub) deliver(sub *subscriber) {
	const op = "broadcast.deliver"

	defer h.wg.Done()

	log := h.log.With(slog.String("op", op), slog.String("observer_id", sub.id.String()))

	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}

		board, ok := sub.take()
		if !ok {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
		err := sub.obs.Send(ctx, board)
		cancel()

		if err != nil {
			h.rec.DeliveryFailed()
			log.Warn("failed to push leaderboard, dropping observer", sl.Err(err))
			h.remove(sub)
			return
		}
	}
}

// offer stores board unless the subscriber already holds a newer one.
func (s *subscriber) offer(board []models.LeaderboardEntry, version uint64) {
	s.mu.Lock()
	if s.filled && version <= s.version {
		s.mu.Unlock()
		return
	}
	s.board = board
	s.version = version
	s.filled = true
	s.pending = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) take() ([]models.LeaderboardEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return nil, false
	}
	s.pending = false

	return s.board, true
}

func (s *subscriber) close() {
	s.stop.Do(func() { close(s.done) })
}

type nopRecorder struct{}

func (nopRecorder) ObserverAdded()   {}
func (nopRecorder) ObserverRemoved() {}
func (nopRecorder) Published()       {}
func (nopRecorder) DeliveryFailed()  {}
