package vehicles

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeFeed(t *testing.T) {
	payload := `{"vehicles": [
		{"id": "bus-1", "lon": 18.0, "lat": 59.0, "bearing": 90, "speed": 12.5, "routeId": "4", "tripId": "t-1"},
		{"id": 77, "lon": 18.1, "lat": 59.1, "routeId": 4},
		{"lon": 18.25, "lat": 59.5},
		{"id": "", "lon": 18.5, "lat": 59.75, "bearing": "north"},
		{"id": null, "lon": 19, "lat": 60},
		{"id": "no-position", "lon": "18", "lat": 59},
		{"id": "missing-lat", "lon": 18},
		"garbage"
	]}`

	s, err := DecodeFeed([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, 5, s.Len())
	require.Equal(t, 3, s.Discarded())
	require.Equal(t, []string{"18.25,59.5", "18.5,59.75", "19,60", "77", "bus-1"}, s.IDs())

	bus, ok := s.Get("bus-1")
	require.True(t, ok)
	require.Equal(t, 18.0, bus.Lon)
	require.NotNil(t, bus.Bearing)
	require.Equal(t, 90.0, *bus.Bearing)
	require.Equal(t, 12.5, *bus.Speed)
	require.Equal(t, "4", bus.RouteID)
	require.Equal(t, "t-1", bus.TripID)

	numeric, ok := s.Get("77")
	require.True(t, ok)
	require.Equal(t, "4", numeric.RouteID)

	unnamed, ok := s.Get("18.5,59.75")
	require.True(t, ok)
	require.Nil(t, unnamed.Bearing)
}

func TestDecodeFeedErrors(t *testing.T) {
	_, err := DecodeFeed([]byte(`{"status": "ok"}`))
	require.ErrorIs(t, err, ErrMissingVehicles)

	_, err = DecodeFeed([]byte(`{"vehicles": null}`))
	require.ErrorIs(t, err, ErrMissingVehicles)

	_, err = DecodeFeed([]byte(`not json`))
	require.Error(t, err)

	s, err := DecodeFeed([]byte(`{"vehicles": []}`))
	require.NoError(t, err)
	require.Equal(t, 0, s.Len())
}

func TestSnapshotDuplicateIDsKeepLast(t *testing.T) {
	s := NewSnapshot([]Vehicle{
		{ID: "a", Lon: 1, Lat: 1},
		{ID: "a", Lon: 2, Lat: 2},
	})
	require.Equal(t, 1, s.Len())
	v, _ := s.Get("a")
	require.Equal(t, 2.0, v.Lon)
}

func TestNilSnapshot(t *testing.T) {
	var s *Snapshot
	require.Equal(t, 0, s.Len())
	require.Nil(t, s.IDs())
	_, ok := s.Get("x")
	require.False(t, ok)
}

func TestHTTPFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/vehicles":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"vehicles":[{"id":"bus-1","lon":18,"lat":59}]}`))
		case "/broken":
			http.Error(w, "upstream down", http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}
	}))
	defer srv.Close()

	s, err := NewHTTPFeed(srv.URL+"/api/vehicles", srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"bus-1"}, s.IDs())

	_, err = NewHTTPFeed(srv.URL+"/broken", srv.Client()).Fetch(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 502")

	_, err = NewHTTPFeed(srv.URL+"/other", srv.Client()).Fetch(context.Background())
	require.True(t, errors.Is(err, ErrMissingVehicles))
}
