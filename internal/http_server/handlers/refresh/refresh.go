package refresh

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"score_service/internal/auth"
	"score_service/internal/http_server/cookies"
	resp "score_service/internal/lib/api/response"
	"score_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	User models.PublicUser `json:"user"`
}

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (auth.Session, error)
}

func New(log *slog.Logger, refresher Refresher, jar cookies.Jar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		s, err := refresher.Refresh(ctx, cookies.Value(r, cookies.RefreshToken))
		if err != nil {
			resp.Fail(w, r, log, err, "Server error refreshing token")
			return
		}

		jar.SetAccess(w, s.AccessToken)
		if s.RefreshToken != "" {
			jar.SetRefresh(w, s.RefreshToken)
		}

		render.JSON(w, r, Response{
			Response: resp.OK("Token refreshed successfully"),
			User:     s.User,
		})
	}
}
