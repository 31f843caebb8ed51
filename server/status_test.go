package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab1702/ground-control/protocol"
)

type wingmenResponse struct {
	Total      int               `json:"total"`
	Cap        int               `json:"cap"`
	Requesters []RequesterStatus `json:"requesters"`
	Sessions   []SessionStatus   `json:"sessions"`
}

func TestHandleWingmen(t *testing.T) {
	registry := NewRegistry(5)
	registry.Request(Requester{Session: "ws://a", Player: 7}, 3)
	registry.Request(Requester{Session: "ws://b", Player: 2}, 9)
	sched := NewScheduler(registry, DefaultSchedulerConfig(), zerolog.Nop())

	rec := httptest.NewRecorder()
	sched.StatusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wingmen", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp wingmenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 8, resp.Total)
	assert.Equal(t, 5, resp.Cap)
	assert.Equal(t, []RequesterStatus{
		{Session: "ws://a", Player: 7, Wingmen: 3},
		{Session: "ws://b", Player: 2, Wingmen: 5},
	}, resp.Requesters)
	assert.Empty(t, resp.Sessions)
}

func TestHandleWingmenNamesRequesters(t *testing.T) {
	fs := NewFakeGameServer(t)
	registry := NewRegistry(5)
	sched := NewScheduler(registry, fastSchedulerConfig(), zerolog.Nop())
	startScheduler(t, sched, fs.WSURL())

	c := fs.Accept(selfID, xplay)
	c.Send(protocol.ChatMessage{ID: playerID, Text: "--gc-wings 2"})
	ExpectChat(c, "OK xplay, 2 wings are coming!")

	rec := httptest.NewRecorder()
	sched.HandleWingmen(rec, httptest.NewRequest(http.MethodGet, "/api/wingmen", nil))

	var resp wingmenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Requesters, 1)
	assert.Equal(t, "xplay", resp.Requesters[0].Name)
	require.Len(t, resp.Sessions, 1)
	assert.True(t, resp.Sessions[0].Connected)
	assert.Equal(t, 2, resp.Sessions[0].Wingmen)
	assert.Equal(t, 1, resp.Sessions[0].Players)
}

func TestHealthEndpoint(t *testing.T) {
	sched := NewScheduler(NewRegistry(5), DefaultSchedulerConfig(), zerolog.Nop())

	rec := httptest.NewRecorder()
	sched.StatusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	sched.StatusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeStatus(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	sched := NewScheduler(NewRegistry(5), DefaultSchedulerConfig(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeStatus(ctx, addr, sched.StatusHandler(), zerolog.Nop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, expectTimeout, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(expectTimeout):
		t.Fatal("status endpoint did not shut down")
	}
}

func TestServeStatusBadAddress(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	err = ServeStatus(context.Background(), l.Addr().String(), http.NotFoundHandler(), zerolog.Nop())
	assert.Error(t, err, "address already in use")
}
