// Package memory is an in-process credential store used for local runs and
// tests. Index maps are guarded by one RWMutex that is only held for lookups;
// mutations of a user record take that record's own lock so writes to
// different users never wait on each other.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"score_service/internal/models"
	"score_service/internal/storage"
)

type record struct {
	mu   sync.Mutex
	user models.User
}

type Repo struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*record
	byEmail    map[string]*record
	byUsername map[string]*record
	byRefresh  map[string]*record

	now func() time.Time
}

func New() *Repo {
	return &Repo{
		byID:       make(map[int64]*record),
		byEmail:    make(map[string]*record),
		byUsername: make(map[string]*record),
		byRefresh:  make(map[string]*record),
		now:        time.Now,
	}
}

func (r *Repo) SaveUser(_ context.Context, username, email string, passHash []byte) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	emailKey, usernameKey := strings.ToLower(email), strings.ToLower(username)

	if _, ok := r.byEmail[emailKey]; ok {
		return models.User{}, storage.ErrUserExists
	}
	if _, ok := r.byUsername[usernameKey]; ok {
		return models.User{}, storage.ErrUserExists
	}

	r.nextID++
	now := r.now()

	rec := &record{user: models.User{
		ID:           r.nextID,
		Username:     username,
		Email:        email,
		PassHash:     append([]byte(nil), passHash...),
		LastActivity: now,
		CreatedAt:    now,
	}}

	r.byID[rec.user.ID] = rec
	r.byEmail[emailKey] = rec
	r.byUsername[usernameKey] = rec

	// rec is unreachable to other goroutines until r.mu is released.
	return rec.copyLocked(), nil
}

func (r *Repo) User(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	rec, ok := r.byEmail[strings.ToLower(email)]
	r.mu.RUnlock()

	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return rec.snapshot(), nil
}

func (r *Repo) UserByID(_ context.Context, id int64) (models.User, error) {
	rec, ok := r.record(id)
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return rec.snapshot(), nil
}

func (r *Repo) SetRefreshToken(_ context.Context, userID int64, token string) error {
	rec, ok := r.record(userID)
	if !ok {
		return storage.ErrUserNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	r.swapRefreshIndex(rec, token)
	rec.user.LastActivity = r.now()

	return nil
}

func (r *Repo) UserByRefreshToken(_ context.Context, userID int64, token string) (models.User, error) {
	rec, ok := r.record(userID)
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.user.RefreshToken == nil || *rec.user.RefreshToken != token {
		return models.User{}, storage.ErrUserNotFound
	}

	return rec.copyLocked(), nil
}

func (r *Repo) RotateRefreshToken(_ context.Context, userID int64, oldToken, newToken string) error {
	rec, ok := r.record(userID)
	if !ok {
		return storage.ErrUserNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.user.RefreshToken == nil || *rec.user.RefreshToken != oldToken {
		return storage.ErrRefreshTokenMismatch
	}

	r.swapRefreshIndex(rec, newToken)
	rec.user.LastActivity = r.now()

	return nil
}

func (r *Repo) ClearRefreshToken(_ context.Context, token string) error {
	r.mu.RLock()
	rec, ok := r.byRefresh[token]
	r.mu.RUnlock()

	if !ok {
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// The token may have been replaced between the lookup and the lock.
	if rec.user.RefreshToken == nil || *rec.user.RefreshToken != token {
		return nil
	}

	r.swapRefreshIndex(rec, "")

	return nil
}

func (r *Repo) AddScore(_ context.Context, userID int64, delta int64) (models.User, error) {
	rec, ok := r.record(userID)
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if delta > 0 && rec.user.Score > math.MaxInt64-delta {
		return models.User{}, storage.ErrScoreOverflow
	}

	rec.user.Score += delta
	rec.user.LastActivity = r.now()

	return rec.copyLocked(), nil
}

func (r *Repo) Leaderboard(_ context.Context, limit int) ([]models.LeaderboardEntry, error) {
	type row struct {
		id    int64
		entry models.LeaderboardEntry
	}

	r.mu.RLock()
	recs := make([]*record, 0, len(r.byID))
	for _, rec := range r.byID {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	rows := make([]row, 0, len(recs))
	for _, rec := range recs {
		u := rec.snapshot()
		rows = append(rows, row{id: u.ID, entry: models.LeaderboardEntry{Username: u.Username, Score: u.Score}})
	}

	// IDs are assigned in creation order, so they break score ties the same
	// way created_at does in PostgreSQL.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].entry.Score != rows[j].entry.Score {
			return rows[i].entry.Score > rows[j].entry.Score
		}
		return rows[i].id < rows[j].id
	})

	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]models.LeaderboardEntry, len(rows))
	for i, rw := range rows {
		out[i] = rw.entry
	}

	return out, nil
}

func (r *Repo) Close() {}

func (r *Repo) record(id int64) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	return rec, ok
}

// swapRefreshIndex must be called with rec.mu held. An empty token clears it.
func (r *Repo) swapRefreshIndex(rec *record, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.user.RefreshToken != nil {
		delete(r.byRefresh, *rec.user.RefreshToken)
	}

	if token == "" {
		rec.user.RefreshToken = nil
		return
	}

	rec.user.RefreshToken = &token
	r.byRefresh[token] = rec
}

func (rec *record) snapshot() models.User {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	return rec.copyLocked()
}

func (rec *record) copyLocked() models.User {
	u := rec.user
	if u.RefreshToken != nil {
		tok := *u.RefreshToken
		u.RefreshToken = &tok
	}
	u.PassHash = append([]byte(nil), u.PassHash...)

	return u
}
