package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/stream"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// fleetServer answers a subscribe to the fleet channel with a snapshot and
// two updates for v-1, the second one older than the first. It returns the
// ws URL and a count of accepted connections.
func fleetServer(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var accepted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted.Add(1)
		defer ws.Close()
		for {
			var m stream.Message
			if err := ws.ReadJSON(&m); err != nil {
				return
			}
			if m.Type != stream.TypeSubscribe || !strings.Contains(string(m.Payload), "fleet.status") {
				continue
			}
			frames := []stream.Message{
				frame(t, TypeVehicleStatus, []VehicleStatus{
					{VehicleID: "v-1", Status: "idle", UpdatedAt: t0},
					{VehicleID: "v-2", Status: "collecting", Latitude: 52.37, Longitude: 4.89, UpdatedAt: t0},
				}),
				frame(t, "route.assigned", map[string]string{"vehicleId": "v-1"}),
				frame(t, TypeVehicleStatus, VehicleStatus{VehicleID: "v-1", Status: "en_route", UpdatedAt: t0.Add(time.Minute)}),
				frame(t, TypeVehicleStatus, VehicleStatus{VehicleID: "v-1", Status: "idle", UpdatedAt: t0.Add(-time.Minute)}),
			}
			for _, f := range frames {
				if err := ws.WriteJSON(f); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &accepted
}

func frame(t *testing.T, typ string, payload any) stream.Message {
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return stream.Message{Type: typ, Payload: raw, Timestamp: t0}
}

func newMux(t *testing.T) *stream.Multiplexer {
	t.Helper()
	cfg := stream.DefaultConfig()
	cfg.BatchInterval = 10 * time.Millisecond
	cfg.MetricsEnabled = false
	mux, err := stream.New(cfg, stream.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(mux.Close)
	return mux
}

func TestFleetStatusFeed_KeepsLatestPerVehicle(t *testing.T) {
	mux := newMux(t)
	cfg := DefaultConfig()
	cfg.FleetEndpoint, _ = fleetServer(t)
	feed := NewFleetStatusFeed(mux, cfg, WithFeedLogger(logger.NewNop()))
	t.Cleanup(feed.Close)

	var notified atomic.Int32
	stop := feed.Watch(func(r Result[map[string]VehicleStatus]) {
		notified.Add(1)
	})
	defer stop()

	before := feed.Result()
	assert.True(t, before.IsStale)
	assert.Empty(t, before.Data)

	require.NoError(t, feed.Start(context.Background()))
	require.NoError(t, feed.Start(context.Background()))

	require.Eventually(t, func() bool {
		v, ok := feed.Vehicle("v-1")
		return ok && v.Status == "en_route" && len(feed.Result().Data) == 2
	}, 2*time.Second, 5*time.Millisecond)

	r := feed.Result()
	assert.False(t, r.IsLoading)
	assert.False(t, r.IsStale)
	assert.NoError(t, r.Err)
	assert.False(t, r.LastUpdated.IsZero())
	assert.Equal(t, "collecting", r.Data["v-2"].Status)
	assert.InDelta(t, 52.37, r.Data["v-2"].Latitude, 1e-9)
	assert.Equal(t, t0.Add(time.Minute), r.Data["v-1"].UpdatedAt)
	assert.Positive(t, notified.Load())

	// the returned map is a copy
	r.Data["v-3"] = VehicleStatus{VehicleID: "v-3"}
	_, ok := feed.Vehicle("v-3")
	assert.False(t, ok)

	assert.Equal(t, 1, mux.Stats().Connections)
}

func TestFleetStatusFeed_CloseReleasesConnection(t *testing.T) {
	mux := newMux(t)
	cfg := DefaultConfig()
	cfg.FleetEndpoint, _ = fleetServer(t)
	feed := NewFleetStatusFeed(mux, cfg, WithFeedLogger(logger.NewNop()))

	require.NoError(t, feed.Start(context.Background()))
	require.Eventually(t, func() bool {
		s, _ := mux.Status(cfg.FleetEndpoint)
		return s == stream.StatusConnected
	}, 2*time.Second, 5*time.Millisecond)

	feed.Close()
	assert.Equal(t, 0, mux.Stats().Connections)
	assert.ErrorIs(t, feed.Start(context.Background()), ErrFeedClosed)
}

func TestFleetStatusFeed_NoEndpoint(t *testing.T) {
	feed := NewFleetStatusFeed(newMux(t), DefaultConfig())
	assert.ErrorIs(t, feed.Start(context.Background()), ErrNoEndpoint)
}

func TestDecodeStatuses(t *testing.T) {
	single := frame(t, TypeVehicleStatus, VehicleStatus{VehicleID: "v-9"})
	assert.Len(t, decodeStatuses(single), 1)

	list := frame(t, TypeVehicleStatus, []VehicleStatus{{VehicleID: "a"}, {VehicleID: "b"}})
	assert.Len(t, decodeStatuses(list), 2)

	assert.Empty(t, decodeStatuses(stream.Message{Type: TypeVehicleStatus}))
	assert.Empty(t, decodeStatuses(stream.Message{Type: TypeVehicleStatus, Payload: json.RawMessage(`"nope"`)}))
}

func TestFleetStatusFeed_RefreshReconnects(t *testing.T) {
	mux := newMux(t)
	cfg := DefaultConfig()
	var accepted *atomic.Int32
	cfg.FleetEndpoint, accepted = fleetServer(t)
	feed := NewFleetStatusFeed(mux, cfg, WithFeedLogger(logger.NewNop()))
	t.Cleanup(feed.Close)

	// Refresh on a feed that was never started starts it
	require.NoError(t, feed.Refresh(context.Background()))
	require.Eventually(t, func() bool {
		v, ok := feed.Vehicle("v-1")
		return ok && v.Status == "en_route"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), accepted.Load())

	require.NoError(t, feed.Refresh(context.Background()))
	require.Eventually(t, func() bool {
		s, _ := mux.Status(cfg.FleetEndpoint)
		return accepted.Load() == 2 && s == stream.StatusConnected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, mux.Stats().Connections)
	assert.Len(t, feed.Result().Data, 2)
}

func TestFleetStatusFeed_CloseFromWatch(t *testing.T) {
	mux := newMux(t)
	cfg := DefaultConfig()
	cfg.FleetEndpoint, _ = fleetServer(t)
	feed := NewFleetStatusFeed(mux, cfg, WithFeedLogger(logger.NewNop()))

	closed := make(chan struct{})
	var once sync.Once
	feed.Watch(func(Result[map[string]VehicleStatus]) {
		once.Do(func() {
			feed.Close()
			close(closed)
		})
	})
	require.NoError(t, feed.Start(context.Background()))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("closing the feed from a watcher did not return")
	}
	require.Eventually(t, func() bool { return mux.Stats().Connections == 0 },
		2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, feed.Start(context.Background()), ErrFeedClosed)
}
