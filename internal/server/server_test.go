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
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestHandleConfig(t *testing.T) {
	srv := New(Options{
		Port: 8080,
		Config: func() map[string]any {
			return map[string]any{"destination": "127.0.0.1:9000", "width": 640}
		},
		Log: quietLogger(),
	})

	rec := httptest.NewRecorder()
	srv.handleConfig(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "config", payload["type"])
	assert.Equal(t, "127.0.0.1:9000", payload["destination"])
	assert.Equal(t, float64(640), payload["width"])
	assert.Equal(t, float64(8080), payload["ui_port"])
}

func TestHandleStatusAddsClientCount(t *testing.T) {
	srv := New(Options{
		Status: func() map[string]any {
			return map[string]any{"sidecar": "ready", "metrics": map[string]any{"frames_read_total": 3}}
		},
		Log: quietLogger(),
	})

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ready", payload["sidecar"])
	metrics := payload["metrics"].(map[string]any)
	assert.Equal(t, float64(0), metrics["ws_clients"])
	assert.Equal(t, float64(3), metrics["frames_read_total"])
}

func TestIndexAndHealth(t *testing.T) {
	handler, err := New(Options{Log: quietLogger()}).Handler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestWebsocketBroadcast(t *testing.T) {
	latest := &Latest{}
	srv := New(Options{
		Snapshot: latest.Get,
		Config:   func() map[string]any { return map[string]any{"destination": "127.0.0.1:9000"} },
		Log:      quietLogger(),
	})
	handler, err := srv.Handler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages := make(chan any, 1)
	go srv.broadcast(ctx, messages)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "config", hello["type"])

	latest.Publish(types.UISnapshot{Type: "frame", Seq: 5, Detected: true, Params: map[string]float64{"MouthOpen": 0.5}})
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "snapshot_request"}))
	var requested types.UISnapshot
	require.NoError(t, conn.ReadJSON(&requested))
	assert.Equal(t, uint64(5), requested.Seq)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "config_request"}))
	var again map[string]any
	require.NoError(t, conn.ReadJSON(&again))
	assert.Equal(t, "config", again["type"])
	assert.Equal(t, "127.0.0.1:9000", again["destination"])

	require.Eventually(t, func() bool { return srv.clientCount() == 1 }, time.Second, 10*time.Millisecond)
	messages <- types.UISnapshot{Type: "frame", Seq: 6, Params: map[string]float64{}}
	var pushed types.UISnapshot
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, uint64(6), pushed.Seq)
	assert.False(t, pushed.Detected)
}

func TestLatestPump(t *testing.T) {
	latest := &Latest{}
	assert.Nil(t, latest.Get())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan any, 4)
	latest.Publish(types.UISnapshot{Seq: 1})
	latest.Publish(types.UISnapshot{Seq: 2})
	go latest.Pump(ctx, 5*time.Millisecond, out)
	select {
	case msg := <-out:
		assert.Equal(t, uint64(2), msg.(types.UISnapshot).Seq)
	case <-time.After(time.Second):
		t.Fatal("no snapshot pumped")
	}

	cancel()
	for range out {
	}
	assert.Equal(t, uint64(2), latest.Get().(types.UISnapshot).Seq)
}
