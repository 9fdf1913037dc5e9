package register

import (
	"context"
	"errors"
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
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Pass     string `json:"password" validate:"required,min=6,max=72"`
}

type Response struct {
	resp.Response
	User models.PublicUser `json:"user"`
}

type Registrar interface {
	RegisterNewUser(ctx context.Context, username, email, pass string) (auth.Session, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	registrar Registrar,
	jar cookies.Jar,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

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

		if req.Username == "" || req.Email == "" || req.Pass == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Please provide username, email and password"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if !errors.As(err, &validateErr) {
				resp.Fail(w, r, log, err, "Server error during registration")
				return
			}

			log.Info("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		s, err := registrar.RegisterNewUser(ctx, req.Username, req.Email, req.Pass)
		if err != nil {
			resp.Fail(w, r, log, err, "Server error during registration")
			return
		}

		jar.SetPair(w, s.AccessToken, s.RefreshToken)

		log.Info("user registered", slog.Int64("uid", s.User.ID))

		render.JSON(w, r, Response{
			Response: resp.OK("Authentication successful"),
			User:     s.User,
		})
	}
}
