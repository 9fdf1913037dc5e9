package login

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"score_service/internal/auth"
	"score_service/internal/http_server/cookies"
	resp "score_service/internal/lib/api/response"
	sl "score_service/internal/lib/logger/sl"
	"score_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required"`
	Pass  string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	User models.PublicUser `json:"user"`
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authenticator Authenticator,
	jar cookies.Jar,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			log.Info("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Please provide email and password"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		s, err := authenticator.Login(ctx, req.Email, req.Pass)
		if err != nil {
			resp.Fail(w, r, log, err, "Server error during login")
			return
		}

		jar.SetPair(w, s.AccessToken, s.RefreshToken)

		log.Info("User logged in successfully", slog.Int64("uid", s.User.ID))

		render.JSON(w, r, Response{
			Response: resp.OK("Authentication successful"),
			User:     s.User,
		})
	}
}
