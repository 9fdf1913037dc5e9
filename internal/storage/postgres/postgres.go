package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"score_service/internal/models"
	"score_service/internal/storage"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pool is the subset of *pgxpool.Pool the repository uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type PostgresRepo struct {
	pool pool
}

const userColumns = `id, username, email, password_hash, score, refresh_token, last_activity, created_at`

func New(ctx context.Context, dsn string) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	p, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: p}, nil
}

func newWithPool(p pool) *PostgresRepo {
	return &PostgresRepo{pool: p}
}

func (r *PostgresRepo) SaveUser(ctx context.Context, username, email string, passHash []byte) (models.User, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns + `;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, username, email, passHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return models.User{}, storage.ErrUserExists
		}

		return models.User{}, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) User(ctx context.Context, email string) (models.User, error) {
	const op = "storage.postgres.User"

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1);
	`

	return r.queryUser(ctx, op, query, email)
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1;
	`

	return r.queryUser(ctx, op, query, id)
}

// SetRefreshToken overwrites whatever session the user had before.
func (r *PostgresRepo) SetRefreshToken(ctx context.Context, userID int64, token string) error {
	const op = "storage.postgres.SetRefreshToken"

	const query = `
		UPDATE users
		SET refresh_token = $2, last_activity = NOW()
		WHERE id = $1;
	`

	tag, err := r.pool.Exec(ctx, query, userID, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) UserByRefreshToken(ctx context.Context, userID int64, token string) (models.User, error) {
	const op = "storage.postgres.UserByRefreshToken"

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND refresh_token = $2;
	`

	return r.queryUser(ctx, op, query, userID, token)
}

// RotateRefreshToken replaces oldToken with newToken only if oldToken is still
// the stored value.
func (r *PostgresRepo) RotateRefreshToken(ctx context.Context, userID int64, oldToken, newToken string) error {
	const op = "storage.postgres.RotateRefreshToken"

	const query = `
		UPDATE users
		SET refresh_token = $3, last_activity = NOW()
		WHERE id = $1 AND refresh_token = $2;
	`

	tag, err := r.pool.Exec(ctx, query, userID, oldToken, newToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrRefreshTokenMismatch
	}

	return nil
}

func (r *PostgresRepo) ClearRefreshToken(ctx context.Context, token string) error {
	const op = "storage.postgres.ClearRefreshToken"

	const query = `UPDATE users SET refresh_token = NULL WHERE refresh_token = $1`

	if _, err := r.pool.Exec(ctx, query, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AddScore applies delta in a single statement, so concurrent updates to the
// same row are serialized by the row lock.
func (r *PostgresRepo) AddScore(ctx context.Context, userID int64, delta int64) (models.User, error) {
	const op = "storage.postgres.AddScore"

	query := `
		UPDATE users
		SET score = score + $2, last_activity = NOW()
		WHERE id = $1
		RETURNING ` + userColumns + `;
	`

	u, err := r.queryUser(ctx, op, query, userID, delta)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.NumericValueOutOfRange {
			return models.User{}, storage.ErrScoreOverflow
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	const op = "storage.postgres.Leaderboard"

	const query = `
		SELECT username, score
		FROM users
		ORDER BY score DESC, created_at ASC, id ASC
		LIMIT $1;
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	board := make([]models.LeaderboardEntry, 0, limit)

	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Score); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		board = append(board, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return board, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func (r *PostgresRepo) queryUser(ctx context.Context, op, query string, args ...any) (models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PassHash,
		&u.Score,
		&u.RefreshToken,
		&u.LastActivity,
		&u.CreatedAt,
	)

	return u, err
}
