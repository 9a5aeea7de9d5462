package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// newFakeLongConnServer serves the connection-endpoint lookup and accepts the
// socket the SDK client dials, keeping it open until the client goes away.
func newFakeLongConnServer(t *testing.T, connected chan<- struct{}) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/callback/ws/endpoint", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?device_id=dev_1&service_id=1"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"msg":  "ok",
			"data": map[string]any{
				"URL": wsURL,
				"ClientConfig": map[string]any{
					"ReconnectCount":    -1,
					"ReconnectInterval": 120,
					"ReconnectNonce":    30,
					"PingInterval":      120,
				},
			},
		})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		select {
		case connected <- struct{}{}:
		default:
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWSServerRunReturnsOnCancelWhileConnected(t *testing.T) {
	connected := make(chan struct{}, 1)
	fake := newFakeLongConnServer(t, connected)

	d := NewEventDispatcher(&fakeSink{}, "", "", nil)
	s := NewWSServer(WSOptions{AppID: "cli_test", AppSecret: "secret", BaseURL: fake.URL}, d)
	s.reconnectDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected to the fake endpoint")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWSServerRunReturnsOnCancelWhileRetrying(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	d := NewEventDispatcher(&fakeSink{}, "", "", nil)
	s := NewWSServer(WSOptions{AppID: "cli_test", AppSecret: "secret", BaseURL: down.URL}, d)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the deadline")
	}
}
