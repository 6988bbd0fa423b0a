package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/websocket"
	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens struct {
	memberID int32
	err      error
}

func (s stubTokens) ValidateToken(ctx context.Context, token string) (int32, error) {
	return s.memberID, s.err
}

type stubUnread struct {
	count int
	err   error
}

func (s stubUnread) UnreadCount(ctx context.Context, memberID int32) (int, error) {
	return s.count, s.err
}

var testAllowedOrigins = []string{"http://localhost:3000", "https://cooplend.app"}

func TestWebSocketHandler_HandleWS_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		tokens stubTokens
	}{
		{"missing token", "", stubTokens{memberID: 1}},
		{"invalid token", "?token=expired", stubTokens{err: errors.New("token is expired")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWebSocketHandler(websocket.NewHub(), tt.tokens, nil, testAllowedOrigins)
			req := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			c := echo.New().NewContext(req, httptest.NewRecorder())

			err := h.HandleWS(c)

			var httpErr *echo.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
		})
	}
}

func TestWebSocketHandler_HandleWS_NotAnUpgrade(t *testing.T) {
	hub := websocket.NewHub()
	h := NewWebSocketHandler(hub, stubTokens{memberID: 42}, nil, testAllowedOrigins)
	req := httptest.NewRequest(http.MethodGet, "/ws?token=valid", nil)
	c := echo.New().NewContext(req, httptest.NewRecorder())

	err := h.HandleWS(c)

	assert.Error(t, err)
	var httpErr *echo.HTTPError
	assert.False(t, errors.As(err, &httpErr), "auth passed, failure must come from the upgrade")
	assert.Equal(t, 0, hub.ClientCount(42))
}

func TestWebSocketHandler_SummaryThenEvents(t *testing.T) {
	hub := websocket.NewHub()
	h := NewWebSocketHandler(hub, stubTokens{memberID: 42}, stubUnread{count: 2}, testAllowedOrigins)

	e := echo.New()
	e.GET("/ws", h.HandleWS)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=valid"
	conn, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	readEvent := func() websocket.Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var evt websocket.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	}

	summary := readEvent()
	assert.Equal(t, "notification.summary", summary.Type)
	assert.Equal(t, map[string]interface{}{"unread": float64(2)}, summary.Payload)

	// Registration happens before the summary is queued
	assert.Equal(t, 1, hub.ClientCount(42))
	hub.Publish(42, websocket.LoanUpdated(map[string]interface{}{"id": float64(9)}))

	update := readEvent()
	assert.Equal(t, "loan.updated", update.Type)
}

func TestWebSocketHandler_CheckOrigin(t *testing.T) {
	h := NewWebSocketHandler(websocket.NewHub(), stubTokens{memberID: 1}, nil, testAllowedOrigins)

	tests := []struct {
		name     string
		origin   string
		expected bool
	}{
		{"local frontend", "http://localhost:3000", true},
		{"production frontend", "https://cooplend.app", true},
		{"foreign site", "https://evil.com", false},
		{"no origin header", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.expected, h.checkOrigin(req))
		})
	}
}
