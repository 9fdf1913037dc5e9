package authn

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"score_service/internal/http_server/cookies"
	resp "score_service/internal/lib/api/response"
	"score_service/internal/lib/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIdentifier map[string]int64

func (s stubIdentifier) Identify(tok string) (int64, error) {
	switch tok {
	case "":
		return 0, apperr.ErrNoToken
	case "expired":
		return 0, apperr.ErrTokenExpired
	}
	if uid, ok := s[tok]; ok {
		return uid, nil
	}
	return 0, apperr.ErrTokenInvalid
}

func newHandler(allowBearer bool) http.Handler {
	ids := stubIdentifier{"cookie-tok": 1, "header-tok": 2}

	return Required(slog.New(slog.DiscardHandler), ids, allowBearer)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := UserID(r.Context())
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]int64{"uid": uid})
		}),
	)
}

func TestRequired(t *testing.T) {
	tests := []struct {
		name        string
		cookie      string
		header      string
		allowBearer bool
		wantStatus  int
		wantUID     int64
		wantMessage string
	}{
		{name: "cookie", cookie: "cookie-tok", wantStatus: http.StatusOK, wantUID: 1},
		{name: "cookie wins over header", cookie: "cookie-tok", header: "Bearer header-tok", allowBearer: true, wantStatus: http.StatusOK, wantUID: 1},
		{name: "bearer header", header: "Bearer header-tok", allowBearer: true, wantStatus: http.StatusOK, wantUID: 2},
		{name: "bearer disabled", header: "Bearer header-tok", wantStatus: http.StatusUnauthorized, wantMessage: "No authentication token provided"},
		{name: "malformed header", header: "Token header-tok", allowBearer: true, wantStatus: http.StatusUnauthorized, wantMessage: "No authentication token provided"},
		{name: "no token", wantStatus: http.StatusUnauthorized, wantMessage: "No authentication token provided"},
		{name: "expired", cookie: "expired", wantStatus: http.StatusUnauthorized, wantMessage: "Token expired, please login again"},
		{name: "invalid", cookie: "forged", wantStatus: http.StatusUnauthorized, wantMessage: "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: cookies.AccessToken, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			newHandler(tt.allowBearer).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var body map[string]int64
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantUID, body["uid"])
				return
			}

			var body resp.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMessage, body.Message)
		})
	}
}
