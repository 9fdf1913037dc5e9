package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"score_service/internal/lib/apperr"
	"score_service/internal/lib/jwt"
	sl "score_service/internal/lib/logger/sl"
	"score_service/internal/models"
	"score_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// Session is the result of a successful login, registration or refresh.
// RefreshToken is empty when a refresh kept the stored token.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         models.PublicUser
}

type Auth struct {
	log           *slog.Logger
	usrSaver      UserSaver
	usrProvider   UserProvider
	tokens        TokenIssuer
	rec           Recorder
	rotateRefresh bool

	cost      int
	dummyOnce sync.Once
	dummyHash []byte
}

type UserSaver interface {
	SaveUser(ctx context.Context, username, email string, passHash []byte) (models.User, error)
	SetRefreshToken(ctx context.Context, userID int64, token string) error
	RotateRefreshToken(ctx context.Context, userID int64, oldToken, newToken string) error
	ClearRefreshToken(ctx context.Context, token string) error
}

type UserProvider interface {
	User(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	UserByRefreshToken(ctx context.Context, userID int64, token string) (models.User, error)
}

type TokenIssuer interface {
	IssueAccess(userID int64) (string, error)
	IssueRefresh(userID int64) (string, error)
	VerifyAccess(token string) (int64, error)
	VerifyRefresh(token string) (int64, error)
}

type Recorder interface {
	AuthAttempt(operation string, err error)
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokens TokenIssuer,
	rotateRefresh bool,
	rec Recorder,
) *Auth {
	if rec == nil {
		rec = nopRecorder{}
	}

	return &Auth{
		log:           log,
		usrSaver:      userSaver,
		usrProvider:   userProvider,
		tokens:        tokens,
		rec:           rec,
		rotateRefresh: rotateRefresh,
		cost:          bcrypt.DefaultCost,
	}
}

// * RegisterNewUser creates the user and opens a session for it right away
func (a *Auth) RegisterNewUser(ctx context.Context, username, email, pass string) (s Session, err error) {
	const op = "auth.RegisterNewUser"

	defer func() { a.rec.AuthAttempt("register", err) }()

	log := a.log.With(slog.String("op", op))

	log.Info("registering new user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(pass), a.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return Session{}, fmt.Errorf("%s: %w", op,
				apperr.Wrap(err, apperr.KindValidation, apperr.CodeValidation, "Password is too long"))
		}

		log.Error("failed to generate password hash", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.usrSaver.SaveUser(ctx, username, email, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return Session{}, fmt.Errorf("%s: %w", op, apperr.ErrUserExists)
		}

		log.Error("failed to save user", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	s, err = a.openSession(ctx, user)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("uid", user.ID))

	return s, nil
}

// * Login checks credentials and issues an access/refresh token pair
func (a *Auth) Login(ctx context.Context, email, password string) (s Session, err error) {
	const op = "auth.Login"

	defer func() { a.rec.AuthAttempt("login", err) }()

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.User(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			log.Error("failed to get user", sl.Err(err))
			return Session{}, fmt.Errorf("%s: %w", op, err)
		}

		// Unknown users still pay for one bcrypt comparison.
		_ = bcrypt.CompareHashAndPassword(a.dummy(), []byte(password))

		log.Info("invalid credentials")
		return Session{}, fmt.Errorf("%s: %w", op, apperr.ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", slog.Int64("uid", user.ID))
		return Session{}, fmt.Errorf("%s: %w", op, apperr.ErrInvalidCredentials)
	}

	s, err = a.openSession(ctx, user)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in successfully", slog.Int64("uid", user.ID))

	return s, nil
}

// * Refresh issues a new access token for a refresh token matching the stored one
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (s Session, err error) {
	const op = "auth.Refresh"

	defer func() { a.rec.AuthAttempt("refresh", err) }()

	log := a.log.With(slog.String("op", op))

	if refreshToken == "" {
		return Session{}, fmt.Errorf("%s: %w", op, apperr.ErrNoRefreshToken)
	}

	uid, err := a.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		log.Info("refresh token rejected", sl.Err(err))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, fmt.Errorf("%s: %w", op, apperr.ErrRefreshExpired)
		}
		return Session{}, fmt.Errorf("%s: %w", op, apperr.ErrRefreshInvalid)
	}

	user, err := a.usrProvider.UserByRefreshToken(ctx, uid, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh token does not match stored session", slog.Int64("uid", uid))
			return Session{}, fmt.Errorf("%s: %w", op, apperr.ErrRefreshInvalid)
		}

		log.Error("failed to load user", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := a.tokens.IssueAccess(user.ID)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	s = Session{AccessToken: accessToken, User: user.Public()}

	if a.rotateRefresh {
		newRefresh, err := a.tokens.IssueRefresh(user.ID)
		if err != nil {
			log.Error("failed to generate refresh token", sl.Err(err))
			return Session{}, fmt.Errorf("%s: %w", op, err)
		}

		err = a.usrSaver.RotateRefreshToken(ctx, user.ID, refreshToken, newRefresh)
		if err != nil {
			if errors.Is(err, storage.ErrRefreshTokenMismatch) || errors.Is(err, storage.ErrUserNotFound) {
				log.Warn("refresh token replaced concurrently", slog.Int64("uid", user.ID))
				return Session{}, fmt.Errorf("%s: %w", op, apperr.ErrRefreshInvalid)
			}

			log.Error("failed to rotate refresh token", sl.Err(err))
			return Session{}, fmt.Errorf("%s: %w", op, err)
		}

		s.RefreshToken = newRefresh
	}

	log.Info("refresh successful", slog.Int64("uid", user.ID))

	return s, nil
}

// * Logout clears the stored refresh token. Repeated calls change nothing
func (a *Auth) Logout(ctx context.Context, refreshToken string) (err error) {
	const op = "auth.Logout"

	defer func() { a.rec.AuthAttempt("logout", err) }()

	log := a.log.With(slog.String("op", op))

	if refreshToken == "" {
		return nil
	}

	if err := a.usrSaver.ClearRefreshToken(ctx, refreshToken); err != nil {
		log.Error("failed to clear refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logout successful")

	return nil
}

// Identify resolves an access token to a user id.
func (a *Auth) Identify(accessToken string) (int64, error) {
	const op = "auth.Identify"

	if accessToken == "" {
		return 0, fmt.Errorf("%s: %w", op, apperr.ErrNoToken)
	}

	uid, err := a.tokens.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, fmt.Errorf("%s: %w", op, apperr.ErrTokenExpired)
		}
		return 0, fmt.Errorf("%s: %w", op, apperr.ErrTokenInvalid)
	}

	return uid, nil
}

// Me returns the public profile of uid including its creation time.
func (a *Auth) Me(ctx context.Context, uid int64) (models.PublicUser, error) {
	const op = "auth.Me"

	user, err := a.usrProvider.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.PublicUser{}, fmt.Errorf("%s: %w", op, apperr.ErrUserNotFound)
		}

		a.log.Error("failed to get user", slog.String("op", op), sl.Err(err))
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}

	pub := user.Public()
	createdAt := user.CreatedAt
	pub.CreatedAt = &createdAt

	return pub, nil
}

// openSession issues a token pair and overwrites the stored refresh token,
// ending any earlier session of the user.
func (a *Auth) openSession(ctx context.Context, user models.User) (Session, error) {
	const op = "auth.openSession"

	log := a.log.With(slog.String("op", op), slog.Int64("uid", user.ID))

	accessToken, err := a.tokens.IssueAccess(user.ID)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := a.tokens.IssueRefresh(user.ID)
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.SetRefreshToken(ctx, user.ID, refreshToken); err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	return Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Public(),
	}, nil
}

func (a *Auth) dummy() []byte {
	a.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("score-service-dummy-password"), a.cost)
		if err != nil {
			a.log.Error("failed to generate dummy hash", sl.Err(err))
			return
		}
		a.dummyHash = h
	})

	return a.dummyHash
}

type nopRecorder struct{}

func (nopRecorder) AuthAttempt(string, error) {}
