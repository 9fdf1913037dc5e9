package ratelimit

import (
	"net/http"
	"time"

	resp "score_service/internal/lib/api/response"

	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
)

const limitMessage = "Too many requests from this IP, please try again later"

// ByIP limits every client IP to limit requests per window and answers with
// the JSON error envelope once the budget is spent.
func ByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, resp.Error(limitMessage))
		}),
	)
}
