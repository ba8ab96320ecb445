package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	upforit_errors "upforit/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("ExponentPushToken[abc123]"))
	assert.True(t, ValidToken("ExpoPushToken[xyz]"))
	assert.False(t, ValidToken("ExponentPushToken[]"))
	assert.False(t, ValidToken("ExponentPushToken[abc"))
	assert.False(t, ValidToken("fcm-token"))
	assert.False(t, ValidToken(""))
}

func okServer(t *testing.T, requests *int32, sizes *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var msgs []Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msgs))
		*sizes = append(*sizes, len(msgs))

		data := make([]map[string]any, 0, len(msgs))
		for i, m := range msgs {
			if m.To == "ExponentPushToken[dead]" {
				data = append(data, map[string]any{"status": "error", "message": "gone", "details": map[string]string{"error": ErrorDeviceNotRegistered}})
				continue
			}
			data = append(data, map[string]any{"status": "ok", "id": fmt.Sprintf("ticket-%d", i)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestExpoClient_SendChunksAndParsesTickets(t *testing.T) {
	var requests int32
	var sizes []int
	srv := okServer(t, &requests, &sizes)
	defer srv.Close()

	client := NewExpoClient(Config{URL: srv.URL, AccessToken: "secret"}, nil)

	msgs := make([]Message, 0, 150)
	for i := 0; i < 149; i++ {
		msgs = append(msgs, Message{To: fmt.Sprintf("ExponentPushToken[%d]", i), Title: "hi"})
	}
	msgs = append(msgs, Message{To: "ExponentPushToken[dead]"})

	tickets, err := client.Send(context.Background(), msgs)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
	assert.Equal(t, []int{100, 50}, sizes)
	require.Len(t, tickets, 150)
	assert.Equal(t, TicketOK, tickets[0].Status)
	assert.Equal(t, TicketError, tickets[149].Status)
	assert.Equal(t, ErrorDeviceNotRegistered, tickets[149].Error)
	assert.Equal(t, "ExponentPushToken[dead]", tickets[149].To)
}

func TestExpoClient_ClientErrorIsDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":"VALIDATION_ERROR","message":"bad"}]}`))
	}))
	defer srv.Close()

	client := NewExpoClient(Config{URL: srv.URL}, nil)
	_, err := client.Send(context.Background(), []Message{{To: "ExponentPushToken[a]"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, upforit_errors.ErrDeliveryFailed)
}

func TestExpoClient_BreakerOpensAfterServerErrors(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewExpoClient(Config{URL: srv.URL, MaxFailures: 2, OpenTimeout: time.Minute}, nil)
	msg := []Message{{To: "ExponentPushToken[a]"}}

	for i := 0; i < 2; i++ {
		_, err := client.Send(context.Background(), msg)
		assert.ErrorIs(t, err, upforit_errors.ErrDeliveryFailed)
	}

	_, err := client.Send(context.Background(), msg)
	assert.ErrorIs(t, err, upforit_errors.ErrServiceUnavailable)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	tickets, err := r.Send(context.Background(), []Message{{To: "a"}, {To: "b"}})
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Len(t, r.Sent(), 2)

	r.Reset()
	assert.Empty(t, r.Sent())
}
