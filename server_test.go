package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocupoint/salogger/pkg/acquire"
)

func newTestHTTPServer(t *testing.T) (*testEnv, *httptest.Server) {
	t.Helper()
	env := newTestEnv(t)
	handler, _ := env.srv.routes()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return env, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebsocketStreamsRun(t *testing.T) {
	env, ts := newTestHTTPServer(t)
	require.NoError(t, env.ctrl.Connect(context.Background(), env.cfg.Address))

	conn := dialWS(t, ts)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	// first frame is always the state snapshot
	var first acquire.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, acquire.EventState, first.Type)

	_, err := env.ctrl.Start(context.Background(), acquire.Request{
		Site: "ws", StartFreq: "9.9995e9", StopFreq: "10.0005e9",
		Points: "401", Samples: "2", Interval: "0",
	})
	require.NoError(t, err)

	var (
		pngs   int
		traces []acquire.TraceFrame
		done   *acquire.RunSummary
	)
	for done == nil {
		typ, data, err := conn.ReadMessage()
		require.NoError(t, err)

		if typ == websocket.BinaryMessage {
			img, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Greater(t, img.Bounds().Dx(), 0)
			pngs++
			continue
		}

		var ev acquire.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		switch ev.Type {
		case acquire.EventTrace:
			traces = append(traces, *ev.Trace)
		case acquire.EventRunDone:
			done = ev.Run
		}
	}

	assert.Len(t, traces, 2)
	assert.Equal(t, "Freq [GHz]", traces[0].XLabel)
	assert.Equal(t, 2, pngs)
	assert.Equal(t, 2, done.Rows)
	assert.Empty(t, done.Error)

	resp, err := http.Get(ts.URL + "/api/plot.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestWebsocketLateJoinGetsScrollback(t *testing.T) {
	env, ts := newTestHTTPServer(t)
	require.NoError(t, env.ctrl.Connect(context.Background(), env.cfg.Address))

	require.Eventually(t, func() bool {
		return len(env.srv.ui.Log()) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	conn := dialWS(t, ts)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var lines []string
	for len(lines) < 3 {
		var ev acquire.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == acquire.EventLog {
			lines = append(lines, ev.Log.Text)
		}
	}
	assert.Contains(t, lines[0], "Trying to connect")
	assert.Contains(t, lines[1], "Successfully connected")
	assert.Contains(t, lines[2], "Device: ")
}

func TestScrollbackIsBounded(t *testing.T) {
	ui := &uiState{}
	for i := 0; i < scrollbackLines+10; i++ {
		ui.apply(acquire.Event{Type: acquire.EventLog, Log: &acquire.LogLine{Level: acquire.LevelInfo, Text: "line"}})
	}
	assert.Len(t, ui.Log(), scrollbackLines)
}

func TestIndexPage(t *testing.T) {
	env, ts := newTestHTTPServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "FieldFox SA Measurement Program")
	assert.Contains(t, string(body), `value="9.9995e9"`)
	assert.Contains(t, string(body), env.cfg.Address)
}

func TestPlotMissingBeforeFirstTrace(t *testing.T) {
	_, ts := newTestHTTPServer(t)
	resp, err := http.Get(ts.URL + "/api/plot.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDocsAndMetrics(t *testing.T) {
	_, ts := newTestHTTPServer(t)

	resp, err := http.Get(ts.URL + "/api/docs")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/api/measurements")

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
