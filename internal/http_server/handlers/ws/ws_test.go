package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"score_service/internal/broadcast"
	"score_service/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

type staticSource []models.LeaderboardEntry

func (s staticSource) Top(context.Context) ([]models.LeaderboardEntry, error) {
	return s, nil
}

func startServer(t *testing.T, origin string) (*broadcast.Hub, string) {
	t.Helper()

	hub := broadcast.New(discard, staticSource{{Username: "alice", Score: 50}}, nil, time.Second)
	srv := httptest.NewServer(New(discard, hub, origin))

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func readMessage(t *testing.T, c *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg Message
	require.NoError(t, c.ReadJSON(&msg))

	return msg
}

func TestWS_SnapshotOnConnect(t *testing.T) {
	_, url := startServer(t, "")

	c := dial(t, url)

	msg := readMessage(t, c)
	assert.Equal(t, EventLeaderboard, msg.Event)
	assert.Equal(t, []models.LeaderboardEntry{{Username: "alice", Score: 50}}, msg.Data)
}

func TestWS_PublishReachesEveryClient(t *testing.T) {
	hub, url := startServer(t, "")

	a := dial(t, url)
	b := dial(t, url)
	readMessage(t, a)
	readMessage(t, b)

	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 5*time.Millisecond)

	board := []models.LeaderboardEntry{{Username: "bob", Score: 70}, {Username: "alice", Score: 50}}
	hub.Publish(board)

	assert.Equal(t, board, readMessage(t, a).Data)
	assert.Equal(t, board, readMessage(t, b).Data)
}

func TestWS_DisconnectUnsubscribes(t *testing.T) {
	hub, url := startServer(t, "")

	c := dial(t, url)
	readMessage(t, c)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())

	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	// Publishing after the disconnect must not disturb anyone.
	hub.Publish([]models.LeaderboardEntry{{Username: "x", Score: 1}})
}

func TestWS_HubCloseDisconnectsClient(t *testing.T) {
	hub, url := startServer(t, "")

	c := dial(t, url)
	readMessage(t, c)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestWS_RejectsForeignOrigin(t *testing.T) {
	_, url := startServer(t, "http://allowed.example")

	h := http.Header{}
	h.Set("Origin", "http://evil.example")

	_, resp, err := websocket.DefaultDialer.Dial(url, h)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	h.Set("Origin", "http://allowed.example")
	c, _, err := websocket.DefaultDialer.Dial(url, h)
	require.NoError(t, err)
	_ = c.Close()
}
