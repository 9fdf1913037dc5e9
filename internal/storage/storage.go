package storage

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrRefreshTokenMismatch = errors.New("refresh token does not match")
	ErrScoreOverflow        = errors.New("score out of range")
)
