package logout

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"score_service/internal/http_server/cookies"
	resp "score_service/internal/lib/api/response"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type SessionCloser interface {
	Logout(ctx context.Context, refreshToken string) error
}

func New(log *slog.Logger, closer SessionCloser, jar cookies.Jar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		err := closer.Logout(ctx, cookies.Value(r, cookies.RefreshToken))

		jar.Clear(w)

		if err != nil {
			resp.Fail(w, r, log, err, "Server error during logout")
			return
		}

		log.Info("user logged out successfully")

		render.JSON(w, r, resp.OK("Logged out successfully"))
	}
}
