package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KOMKZ/opsfeed/auth"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// echoServer echoes every frame; "garbage" is answered with an invalid frame.
func echoServer(t *testing.T, token string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			typ, b, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(b), `"type":"garbage"`) {
				b = []byte("{not json")
			}
			if err := ws.WriteMessage(typ, b); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketDialer_RoundTrip(t *testing.T) {
	url := echoServer(t, "")
	ctx := context.Background()
	conn, err := NewWebsocketDialer().Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close()

	sent := mustMessage(t, "vehicle.status", map[string]string{"vehicle": "v-1"})
	require.NoError(t, conn.Write(ctx, sent))
	got, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, sent.ID, got.ID)

	require.NoError(t, conn.Write(ctx, Message{Type: "garbage"}))
	_, err = conn.Read()
	assert.ErrorIs(t, err, ErrInvalidMessage)

	require.NoError(t, conn.Write(ctx, sent))
	_, err = conn.Read()
	assert.NoError(t, err)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	_, err = conn.Read()
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestWebsocketDialer_Unauthorized(t *testing.T) {
	url := echoServer(t, "good")
	header := http.Header{}
	header.Set("Authorization", "Bearer bad")

	_, err := NewWebsocketDialer().Dial(context.Background(), url, header)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestWebsocketDialer_Unreachable(t *testing.T) {
	_, err := NewWebsocketDialer().Dial(context.Background(), "ws://127.0.0.1:1/feed", nil)
	assert.ErrorIs(t, err, ErrDialFailed)
}

func TestMultiplexer_OverWebsocket(t *testing.T) {
	url := echoServer(t, "tok")
	cfg := testConfig()
	mux, err := New(cfg, WithLogger(logger.NewNop()), WithTokenSource(auth.StaticToken("tok")))
	require.NoError(t, err)
	defer mux.Close()

	got := make(chan Message, 4)
	hd, err := mux.Acquire(context.Background(), url, "dashboard",
		WithTypes("vehicle.status"), OnMessage(func(m Message) { got <- m }))
	require.NoError(t, err)
	defer hd.Release()

	require.Eventually(t, func() bool { return hd.Status() == StatusConnected },
		5*time.Second, 10*time.Millisecond)

	msg := mustMessage(t, "vehicle.status", map[string]string{"vehicle": "v-9"})
	require.NoError(t, hd.Send(context.Background(), msg, PriorityNormal))

	select {
	case m := <-got:
		assert.Equal(t, msg.ID, m.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("echo not delivered")
	}
}
