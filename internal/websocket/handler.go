package websocket

import (
	"context"
	"net/http"
	"time"

	"upforit/internal/events"
	"upforit/internal/services"
	"upforit/internal/transport/httpdto"
	"upforit/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Presence marks a conversation as being viewed for as long as a socket is open.
type Presence interface {
	OpenConversation(ctx context.Context, userID, conversationID string) (int, error)
	CloseConversation(ctx context.Context, userID, conversationID string) error
}

type Handler struct {
	auth     *services.AuthService
	hub      *Hub
	presence Presence
	log      *logger.Logger
}

func NewHandler(auth *services.AuthService, hub *Hub, presence Presence, l *logger.Logger) *Handler {
	if l == nil {
		l = logger.NewNop()
	}
	return &Handler{auth: auth, hub: hub, presence: presence, log: l}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Connect serves GET /v1/ws?token=...&conversation=...
func (h *Handler) Connect(c *gin.Context) {
	claims, err := h.auth.ParseAccessToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	userID := claims.Subject
	ctx := services.WithUserID(c.Request.Context(), userID)

	convID := c.Query("conversation")
	if convID != "" && h.presence != nil {
		if _, err := h.presence.OpenConversation(ctx, userID, convID); err != nil {
			status, code := httpdto.StatusFor(err)
			c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WarnCtx(ctx, "websocket upgrade failed", zap.Error(err))
		h.closeConversation(ctx, userID, convID)
		return
	}

	client := NewClient(conn, userID)
	h.hub.Register(client)
	h.hub.Subscribe(client, events.UserChannel(userID))

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	go client.WriteLoop(loopCtx)

	h.log.InfoCtx(ctx, "websocket connected", zap.String("client_id", client.ID), zap.String("conversation_id", convID))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}

	h.hub.Unregister(client)
	h.closeConversation(ctx, userID, convID)
	h.log.InfoCtx(ctx, "websocket disconnected", zap.String("client_id", client.ID))
}

func (h *Handler) closeConversation(ctx context.Context, userID, convID string) {
	if convID == "" || h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.presence.CloseConversation(ctx, userID, convID); err != nil {
		h.log.WarnCtx(ctx, "failed to close conversation", zap.String("conversation_id", convID), zap.Error(err))
	}
}
