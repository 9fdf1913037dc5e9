package leaderboard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "score_service/internal/lib/api/response"
	"score_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

type Provider interface {
	Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
}

func New(log *slog.Logger, provider Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.leaderboard.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		board, err := provider.Leaderboard(ctx)
		if err != nil {
			resp.Fail(w, r, log, err, "Server error fetching leaderboard")
			return
		}

		render.JSON(w, r, Response{
			Response:    resp.OK(""),
			Leaderboard: board,
		})
	}
}
