package userscore

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	resp "score_service/internal/lib/api/response"
	"score_service/internal/models"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	User models.UserScore `json:"user"`
}

type Provider interface {
	UserScore(ctx context.Context, userID int64) (models.UserScore, error)
}

func New(log *slog.Logger, provider Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.userscore.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		uid, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
		if err != nil || uid <= 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid user id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		us, err := provider.UserScore(ctx, uid)
		if err != nil {
			resp.Fail(w, r, log, err, "Server error fetching user score")
			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(""),
			User:     us,
		})
	}
}
