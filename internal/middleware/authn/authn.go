// Package authn resolves the caller's access token to a user id.
package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"score_service/internal/http_server/cookies"
	resp "score_service/internal/lib/api/response"
	"score_service/internal/lib/apperr"

	"github.com/go-chi/chi/middleware"
)

type Identifier interface {
	Identify(accessToken string) (int64, error)
}

type ctxKey struct{}

// Required rejects requests without a valid access token. The access_token
// cookie is read first; the Bearer header is consulted only when allowBearer
// is set.
func Required(log *slog.Logger, id Identifier, allowBearer bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn.Required"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			uid, err := id.Identify(token(r, allowBearer))
			if err != nil {
				log.Info("request not authenticated", slog.String("code", string(apperr.As(err).Code)))
				resp.Fail(w, r, log, err, "Authentication failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}

func WithUserID(ctx context.Context, uid int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, uid)
}

// UserID returns the id stored by Required.
func UserID(ctx context.Context) (int64, bool) {
	uid, ok := ctx.Value(ctxKey{}).(int64)
	return uid, ok
}

func token(r *http.Request, allowBearer bool) string {
	if t := cookies.Value(r, cookies.AccessToken); t != "" {
		return t
	}

	if !allowBearer {
		return ""
	}

	h := r.Header.Get("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}

	return ""
}
