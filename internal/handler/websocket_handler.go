package handler

import (
	"context"
	"net/http"

	"github.com/dafibh/cooplend/cooplend-backend/internal/websocket"
	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// JWTValidator resolves a bearer token to the member it was issued for
type JWTValidator interface {
	ValidateToken(ctx context.Context, token string) (memberID int32, err error)
}

// UnreadCounter reports a member's unread notification count
type UnreadCounter interface {
	UnreadCount(ctx context.Context, memberID int32) (int, error)
}

// WebSocketHandler upgrades authenticated members to a push channel
type WebSocketHandler struct {
	hub      *websocket.Hub
	tokens   JWTValidator
	unread   UnreadCounter
	origins  map[string]struct{}
	upgrader ws.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. unread may be nil, in
// which case no summary is sent on connect.
func NewWebSocketHandler(hub *websocket.Hub, tokens JWTValidator, unread UnreadCounter, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:     hub,
		tokens:  tokens,
		unread:  unread,
		origins: make(map[string]struct{}, len(allowedOrigins)),
	}
	for _, origin := range allowedOrigins {
		h.origins[origin] = struct{}{}
	}
	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts configured browser origins and clients that send none
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.origins[origin]; ok {
		return true
	}
	log.Warn().Str("origin", origin).Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// HandleWS handles GET /ws?token=. Browsers cannot set headers on the
// upgrade request, so the access token travels in the query string.
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}

	ctx := c.Request().Context()
	memberID, err := h.tokens.ValidateToken(ctx, token)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket connection rejected: invalid token")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Int32("member_id", memberID).Msg("WebSocket upgrade failed")
		return err
	}

	client := websocket.NewClient(conn, memberID, h.hub)
	h.hub.Register(client)
	h.sendSummary(ctx, client)

	log.Info().
		Int32("member_id", memberID).
		Str("client_id", client.ID()).
		Int("member_connections", h.hub.ClientCount(memberID)).
		Msg("WebSocket client connected")

	go client.WritePump()
	go client.ReadPump()

	return nil
}

// sendSummary queues the unread count so a freshly opened tab can render its
// badge without an extra request
func (h *WebSocketHandler) sendSummary(ctx context.Context, client *websocket.Client) {
	if h.unread == nil {
		return
	}
	count, err := h.unread.UnreadCount(ctx, client.MemberID())
	if err != nil {
		log.Warn().Err(err).Int32("member_id", client.MemberID()).Msg("Failed to count unread notifications")
		return
	}
	data, err := websocket.NotificationSummary(count).ToJSON()
	if err != nil {
		return
	}
	if err := client.Send(data); err != nil {
		log.Warn().Err(err).Int32("member_id", client.MemberID()).Msg("Failed to queue notification summary")
	}
}
