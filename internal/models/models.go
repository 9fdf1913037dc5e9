package models

import "time"

type User struct {
	ID           int64
	Username     string
	Email        string
	PassHash     []byte
	Score        int64
	RefreshToken *string
	LastActivity time.Time
	CreatedAt    time.Time
}

// PublicUser is the projection returned to clients; it never carries the
// password hash or the stored refresh token.
type PublicUser struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Score     int64      `json:"score"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Score:    u.Score,
	}
}

type LeaderboardEntry struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

type UserScore struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// ScoreEvent is published to the message broker after every applied delta.
type ScoreEvent struct {
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Delta      int64     `json:"delta"`
	NewScore   int64     `json:"new_score"`
	OccurredAt time.Time `json:"occurred_at"`
}
