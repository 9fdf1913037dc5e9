package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "score_service/internal/lib/api/response"
	"score_service/internal/middleware/authn"
	"score_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	User models.PublicUser `json:"user"`
}

type ProfileProvider interface {
	Me(ctx context.Context, uid int64) (models.PublicUser, error)
}

func New(log *slog.Logger, provider ProfileProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		uid, ok := authn.UserID(r.Context())
		if !ok {
			resp.Fail(w, r, log, errors.New("user id missing from request context"), "Server error retrieving user data")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, err := provider.Me(ctx, uid)
		if err != nil {
			resp.Fail(w, r, log, err, "Server error retrieving user data")
			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(""),
			User:     user,
		})
	}
}
