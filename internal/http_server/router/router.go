// Package router assembles the HTTP routing table.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"score_service/internal/auth"
	"score_service/internal/broadcast"
	"score_service/internal/http_server/cookies"
	"score_service/internal/http_server/handlers/home"
	"score_service/internal/http_server/handlers/leaderboard"
	"score_service/internal/http_server/handlers/login"
	"score_service/internal/http_server/handlers/logout"
	"score_service/internal/http_server/handlers/me"
	"score_service/internal/http_server/handlers/refresh"
	"score_service/internal/http_server/handlers/register"
	"score_service/internal/http_server/handlers/updatescore"
	"score_service/internal/http_server/handlers/userscore"
	"score_service/internal/http_server/handlers/ws"
	"score_service/internal/middleware/authn"
	"score_service/internal/middleware/ratelimit"
	"score_service/internal/score"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
)

type Deps struct {
	Log    *slog.Logger
	Auth   *auth.Auth
	Scores *score.Coordinator
	Hub    *broadcast.Hub
	Jar    cookies.Jar

	AllowedOrigin   string
	AllowBearer     bool
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func New(d Deps) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.AllowedOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", home.New())
	r.Get("/healthz", home.Health())
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	r.Get("/ws", ws.New(d.Log, d.Hub, d.AllowedOrigin))

	requireAuth := authn.Required(d.Log, d.Auth, d.AllowBearer)

	r.Route("/api", func(r chi.Router) {
		r.Use(ratelimit.ByIP(d.RateLimitMax, d.RateLimitWindow))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", register.New(d.Log, validate, d.Auth, d.Jar))
			r.Post("/login", login.New(d.Log, validate, d.Auth, d.Jar))
			r.Post("/refresh-token", refresh.New(d.Log, d.Auth, d.Jar))
			r.Post("/logout", logout.New(d.Log, d.Auth, d.Jar))
			r.With(requireAuth).Get("/me", me.New(d.Log, d.Auth))
		})

		r.Route("/scores", func(r chi.Router) {
			r.Get("/leaderboard", leaderboard.New(d.Log, d.Scores))
			r.Get("/user/{userId}", userscore.New(d.Log, d.Scores))
			r.With(requireAuth).Post("/update", updatescore.New(d.Log, d.Scores))
		})
	})

	return r
}
