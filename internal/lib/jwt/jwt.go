package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type Claims struct {
	gojwt.RegisteredClaims
	UserID int64 `json:"userId"`
}

// Issuer signs access and refresh tokens with independent secrets so a leaked
// access token can never be used to mint refresh tokens.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) IssueAccess(userID int64) (string, error) {
	return i.issue(userID, i.accessSecret, i.accessTTL)
}

func (i *Issuer) IssueRefresh(userID int64) (string, error) {
	return i.issue(userID, i.refreshSecret, i.refreshTTL)
}

func (i *Issuer) VerifyAccess(token string) (int64, error) {
	return i.verify(token, i.accessSecret)
}

func (i *Issuer) VerifyRefresh(token string) (int64, error) {
	return i.verify(token, i.refreshSecret)
}

func (i *Issuer) issue(userID int64, secret []byte, ttl time.Duration) (string, error) {
	const op = "jwt.issue"

	now := i.now()

	claims := Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

func (i *Issuer) verify(tokenStr string, secret []byte) (int64, error) {
	const op = "jwt.verify"

	claims := &Claims{}

	token, err := gojwt.ParseWithClaims(tokenStr, claims, func(t *gojwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method %v", op, t.Header["alg"])
		}
		return secret, nil
	},
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return 0, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return 0, fmt.Errorf("%s: %w: %v", op, ErrTokenInvalid, err)
	}

	if !token.Valid || claims.UserID <= 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrTokenInvalid)
	}

	return claims.UserID, nil
}
