package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/pkg/config"
)

// streamServer runs a websocket endpoint whose conversation is scripted
// by handler. The handler owns the connection until it returns.
func streamServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	var upgrader websocket.Upgrader
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func send(t *testing.T, conn *websocket.Conn, envelope string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(envelope)); err != nil {
		t.Errorf("server write: %v", err)
	}
}

func testStream(store BarWriter, symbols []string, url string) *Stream {
	cfg := config.AlpacaConfig{APIKey: "key-id", APISecret: "key-secret", StreamURL: url}
	return NewStream(cfg, store, symbols, metrics.NewWith(prometheus.NewRegistry()), testLogger())
}

func TestStreamHandshakeAndIngestsBars(t *testing.T) {
	store := newFakeStore()
	frames := make(chan map[string]interface{}, 2)
	hold := make(chan struct{})

	srv := streamServer(t, func(conn *websocket.Conn) {
		send(t, conn, `[{"T":"success","msg":"connected"}]`)

		var auth map[string]interface{}
		if err := conn.ReadJSON(&auth); err != nil {
			t.Errorf("read auth: %v", err)
			return
		}
		frames <- auth
		send(t, conn, `[{"T":"success","msg":"authenticated"}]`)

		var sub map[string]interface{}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		frames <- sub
		send(t, conn, `[{"T":"subscription","bars":["SPY","QQQ"]}]`)
		send(t, conn, `[{"T":"b","S":"SPY","o":512.1,"h":513.4,"l":511.9,"c":513.1,"v":48213,"t":"2025-06-03T14:31:00Z"}]`)

		<-hold
	})
	defer srv.Close()
	defer close(hold)

	stream := testStream(store, []string{"SPY", "QQQ"}, wsURL(srv))
	require.NoError(t, stream.Start(context.Background()))
	defer stream.Stop()

	auth := <-frames
	assert.Equal(t, "auth", auth["action"])
	assert.Equal(t, "key-id", auth["key"])
	assert.Equal(t, "key-secret", auth["secret"])

	sub := <-frames
	assert.Equal(t, "subscribe", sub["action"])
	assert.Equal(t, []interface{}{"SPY", "QQQ"}, sub["bars"])

	require.Eventually(t, func() bool {
		return len(store.barsFor("SPY", contracts.Timeframe1m)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bars := store.barsFor("SPY", contracts.Timeframe1m)
	assert.Equal(t, 512.1, bars[0].Open)
	assert.Equal(t, 513.1, bars[0].Close)
	assert.Equal(t, int64(48213), bars[0].Volume)
	assert.Equal(t, time.Date(2025, 6, 3, 14, 31, 0, 0, time.UTC), bars[0].Time)
}

func TestStreamAuthRejected(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn) {
		send(t, conn, `[{"T":"success","msg":"connected"}]`)
		var auth map[string]interface{}
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		send(t, conn, `[{"T":"error","code":402,"msg":"auth failed"}]`)
	})
	defer srv.Close()

	err := testStream(newFakeStore(), []string{"SPY"}, wsURL(srv)).Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth failed")
	assert.Contains(t, err.Error(), "402")
}

func TestStreamRejectsBadGreeting(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn) {
		send(t, conn, `[{"T":"success","msg":"hello"}]`)
	})
	defer srv.Close()

	err := testStream(newFakeStore(), []string{"SPY"}, wsURL(srv)).Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "greeting")
}

func TestStreamKeepsReadingPastBadEvents(t *testing.T) {
	store := newFakeStore()
	store.fail["ZBAD"] = errors.New("pool exhausted")
	hold := make(chan struct{})

	srv := streamServer(t, func(conn *websocket.Conn) {
		send(t, conn, `[{"T":"success","msg":"connected"}]`)
		var frame map[string]interface{}
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		send(t, conn, `[{"T":"success","msg":"authenticated"}]`)
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		send(t, conn, `[{"T":"subscription","bars":["ZBAD","QQQ"]}]`)

		// One envelope mixing an error event, an unknown type, a bar the
		// store rejects, and a good bar. Only the last should land.
		send(t, conn, `[{"T":"error","code":405,"msg":"subscription limit"},{"T":"x"},{"T":"b","S":"ZBAD","o":10,"h":10,"l":10,"c":10,"v":1,"t":"2025-06-03T14:31:00Z"},{"T":"b","S":"QQQ","o":451.0,"h":451.2,"l":450.8,"c":451.1,"v":9000,"t":"2025-06-03T14:31:00Z"}]`)

		<-hold
	})
	defer srv.Close()
	defer close(hold)

	stream := testStream(store, []string{"ZBAD", "QQQ"}, wsURL(srv))
	require.NoError(t, stream.Start(context.Background()))
	defer stream.Stop()

	require.Eventually(t, func() bool {
		return len(store.barsFor("QQQ", contracts.Timeframe1m)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, store.barsFor("ZBAD", contracts.Timeframe1m), "failed writes drop the bar, not the stream")
	assert.Equal(t, 451.1, store.barsFor("QQQ", contracts.Timeframe1m)[0].Close)
}
