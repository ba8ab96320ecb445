package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"upforit/config"
	"upforit/internal/events"
	"upforit/internal/services"
	upforit_errors "upforit/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresence struct {
	mu     sync.Mutex
	open   map[string]bool
	denied string
}

func (p *fakePresence) OpenConversation(ctx context.Context, userID, conversationID string) (int, error) {
	if conversationID == p.denied {
		return 0, upforit_errors.ErrPermissionDenied
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open[userID+"/"+conversationID] = true
	return 0, nil
}

func (p *fakePresence) CloseConversation(ctx context.Context, userID, conversationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.open, userID+"/"+conversationID)
	return nil
}

func (p *fakePresence) isOpen(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open[key]
}

func newSocketServer(t *testing.T) (*httptest.Server, *Hub, *fakePresence, *services.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth := services.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiryMin: 5})
	hub := runHub(t)
	presence := &fakePresence{open: make(map[string]bool), denied: "secret-chat"}

	engine := gin.New()
	engine.GET("/v1/ws", NewHandler(auth, hub, presence, nil).Connect)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, hub, presence, auth
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?" + query
}

func TestConnect_RelaysNoticesAndTracksPresence(t *testing.T) {
	srv, hub, presence, auth := newSocketServer(t)
	token, err := auth.IssueToken("ann", "Ann")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+token+"&conversation=ann_bob"), nil)
	require.NoError(t, err)
	assert.True(t, presence.isOpen("ann/ann_bob"))

	channel := events.UserChannel("ann")
	require.Eventually(t, func() bool { return hub.SubscriberCount(channel) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, hub.PublishJSON(context.Background(), channel, services.BadgeNotice{Type: services.NoticeBadgeUpdated, UserID: "ann", Badge: 3}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"badge.updated","user_id":"ann","badge":3}`, string(msg))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !presence.isOpen("ann/ann_bob") }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestConnect_RejectsBadTokens(t *testing.T) {
	srv, _, _, _ := newSocketServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "token=nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnect_RejectsForeignConversation(t *testing.T) {
	srv, hub, _, auth := newSocketServer(t)
	token, err := auth.IssueToken("ann", "Ann")
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+token+"&conversation=secret-chat"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.ClientCount())
}
