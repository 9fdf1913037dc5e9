package updatescore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "score_service/internal/lib/api/response"
	"score_service/internal/lib/apperr"
	sl "score_service/internal/lib/logger/sl"
	"score_service/internal/middleware/authn"
	"score_service/internal/models"
	"score_service/internal/score"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// Request keeps scoreChange raw so that strings, booleans and fractions are
// rejected with the same message as non-positive numbers.
type Request struct {
	ScoreChange json.RawMessage `json:"scoreChange"`
}

type Response struct {
	resp.Response
	NewScore    int64                     `json:"newScore"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

type ScoreUpdater interface {
	ApplyDelta(ctx context.Context, userID int64, delta int64) (score.Result, error)
}

func New(log *slog.Logger, updater ScoreUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.updatescore.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		uid, ok := authn.UserID(r.Context())
		if !ok {
			resp.Fail(w, r, log, errors.New("user id missing from request context"), "Server error updating score")
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Info("Failed to decode request body", sl.Err(err))
			resp.Fail(w, r, log, apperr.ErrInvalidDelta, "Server error updating score")
			return
		}

		delta, ok := parseDelta(req.ScoreChange)
		if !ok {
			resp.Fail(w, r, log, apperr.ErrInvalidDelta, "Server error updating score")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		res, err := updater.ApplyDelta(ctx, uid, delta)
		if err != nil {
			resp.Fail(w, r, log, err, "Server error updating score")
			return
		}

		render.JSON(w, r, Response{
			Response:    resp.OK("Score updated successfully"),
			NewScore:    res.NewScore,
			Leaderboard: res.Leaderboard,
		})
	}
}

// maxExactFloat is the largest integer a float64 holds exactly.
const maxExactFloat = 1 << 53

// parseDelta accepts positive whole JSON numbers that fit in an int64.
// Plain integer literals are read exactly; forms like 1e3 or 5.0 are only
// accepted while a float64 represents them without rounding.
func parseDelta(raw json.RawMessage) (int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}

	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}

	if i, err := n.Int64(); err == nil {
		return i, i > 0
	}

	f, err := n.Float64()
	if err != nil || f <= 0 || f > maxExactFloat || f != float64(int64(f)) {
		return 0, false
	}

	return int64(f), true
}
