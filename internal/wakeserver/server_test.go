package wakeserver_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waymark-app/waymark/internal/events"
	"github.com/waymark-app/waymark/internal/wakeserver"
)

func TestPostWake_PublishesBeforeResponding(t *testing.T) {
	bus := events.NewDispatcher()
	var wakes int
	bus.Subscribe(func(events.Event) { wakes++ }, events.KindWake)

	srv := httptest.NewServer(wakeserver.New(bus, nil).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/wake", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, wakes)
}

func TestPostWake_RepeatedSignalsAreHarmless(t *testing.T) {
	bus := events.NewDispatcher()
	var wakes int
	bus.Subscribe(func(events.Event) { wakes++ }, events.KindWake)

	srv := httptest.NewServer(wakeserver.New(bus, nil).Router())
	defer srv.Close()

	for i := 0; i < 3; i++ {
		resp, err := http.Post(srv.URL+"/wake", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	assert.Equal(t, 3, wakes)
}

func TestPostWake_OversizedBodyRejected(t *testing.T) {
	bus := events.NewDispatcher()
	srv := httptest.NewServer(wakeserver.New(bus, nil).Router())
	defer srv.Close()

	body := strings.NewReader(strings.Repeat("x", 4<<10))
	resp, err := http.Post(srv.URL+"/wake", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestGetHealth(t *testing.T) {
	srv := httptest.NewServer(wakeserver.New(events.NewDispatcher(), nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
