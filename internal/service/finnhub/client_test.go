package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrades(t *testing.T) {
	trades := parseTrades([]byte(`{"type":"trade","data":[{"s":"BINANCE:BTCUSDT","p":64123.5,"v":0.01,"t":1714557660123}]}`))
	require.Len(t, trades, 1)
	assert.Equal(t, "BINANCE:BTCUSDT", trades[0].Symbol)
	assert.Equal(t, int64(1714557660), trades[0].Timestamp)
	assert.Equal(t, 64123.5, trades[0].Price)

	assert.Nil(t, parseTrades([]byte(`{"type":"ping"}`)))
	assert.Nil(t, parseTrades([]byte(`not json`)))
}

func TestClient_SubscribeAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subscribed <- msg["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","data":[{"s":"BINANCE:BTCUSDT","p":100.5,"v":1,"t":1714557600000}]}`))
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := New("secret", "ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BINANCE:BTCUSDT"})
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.True(t, c.IsConnected())
	assert.Equal(t, "BINANCE:BTCUSDT", <-subscribed)

	trades, _ := c.Read(ctx)
	select {
	case tr := <-trades:
		require.NotNil(t, tr)
		assert.Equal(t, 100.5, tr.Price)
		assert.Equal(t, int64(1714557600), tr.Timestamp)
	case <-ctx.Done():
		t.Fatal("no trade received")
	}

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}
