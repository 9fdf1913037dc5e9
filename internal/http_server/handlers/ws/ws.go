// Package ws serves the leaderboard push channel over WebSocket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"score_service/internal/broadcast"
	sl "score_service/internal/lib/logger/sl"
	"score_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

const (
	EventLeaderboard = "leaderboard"

	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	controlWait  = 5 * time.Second
	maxReadBytes = 512
)

type Message struct {
	Event string                    `json:"event"`
	Data  []models.LeaderboardEntry `json:"data"`
}

type Hub interface {
	Subscribe(ctx context.Context, obs broadcast.Observer) (ulid.ULID, error)
	Unsubscribe(obs broadcast.Observer)
}

type conn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
}

func (c *conn) Send(ctx context.Context, board []models.LeaderboardEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}

	return c.ws.WriteJSON(Message{Event: EventLeaderboard, Data: board})
}

// Close sends a going-away frame and drops the connection.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWait))
		err = c.ws.Close()
	})

	return err
}

// New upgrades the request and keeps the connection subscribed until the
// client goes away. Requests from origins other than allowedOrigin are
// refused; an empty allowedOrigin accepts any origin.
func New(log *slog.Logger, hub Hub, allowedOrigin string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "" || origin == "" || origin == allowedOrigin
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ws.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Info("websocket upgrade failed", sl.Err(err))
			return
		}

		c := &conn{ws: ws}
		defer c.Close()

		id, err := hub.Subscribe(r.Context(), c)
		if err != nil {
			log.Error("failed to subscribe observer", sl.Err(err))
			return
		}
		defer hub.Unsubscribe(c)

		log = log.With(slog.String("observer_id", id.String()))
		log.Info("client connected")

		done := make(chan struct{})
		defer close(done)
		go ping(ws, done)

		readUntilClosed(ws)

		log.Info("client disconnected")
	}
}

// readUntilClosed drains client frames so control messages are processed and
// returns once the connection fails or is closed.
func readUntilClosed(ws *websocket.Conn) {
	ws.SetReadLimit(maxReadBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func ping(ws *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWait)); err != nil {
				return
			}
		}
	}
}
