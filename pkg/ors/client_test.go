package ors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const berlinJSON = `{"features":[{"geometry":{"coordinates":[13.4,52.5]}}]}`

func newServer(t *testing.T, geocodeHits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/geocode/search", func(w http.ResponseWriter, r *http.Request) {
		if geocodeHits != nil {
			atomic.AddInt32(geocodeHits, 1)
		}
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "1", r.URL.Query().Get("size"))
		if r.URL.Query().Get("text") == "Nowhere" {
			_, _ = w.Write([]byte(`{"features":[]}`))
			return
		}
		_, _ = w.Write([]byte(berlinJSON))
	})
	mux.HandleFunc("/v2/directions/driving-car", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "13.000000,52.000000", r.URL.Query().Get("start"))
		assert.Equal(t, "13.400000,52.500000", r.URL.Query().Get("end"))
		_, _ = w.Write([]byte(`{"features":[{"properties":{"summary":{"distance":12500,"duration":900}}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCallsRefusedBeforeValidation(t *testing.T) {
	srv := newServer(t, nil)
	c := NewClient(srv.URL, "key", logger.NewNopLogger())

	_, err := c.Geocode(context.Background(), "Berlin")
	assert.ErrorIs(t, err, ErrNotValidated)
	_, err = c.Route(context.Background(), model.Coordinate{}, model.Coordinate{})
	assert.ErrorIs(t, err, ErrNotValidated)
}

func TestRoute(t *testing.T) {
	srv := newServer(t, nil)
	c := NewClient(srv.URL, "key", logger.NewNopLogger())
	require.NoError(t, c.Validate(context.Background()))

	route, err := c.Route(context.Background(),
		model.Coordinate{Longitude: 13, Latitude: 52},
		model.Coordinate{Longitude: 13.4, Latitude: 52.5})
	require.NoError(t, err)
	assert.InDelta(t, 12.5, route.DistanceKm, 1e-9)
	assert.InDelta(t, 15.0, route.EtaMinutes, 1e-9)
}

func TestGeocodeIsCached(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(srv.URL, "key", logger.NewNopLogger())
	require.NoError(t, c.Validate(context.Background()))
	before := atomic.LoadInt32(&hits)

	for i := 0; i < 3; i++ {
		coord, err := c.Geocode(context.Background(), "Alexanderplatz, Berlin")
		require.NoError(t, err)
		assert.Equal(t, model.Coordinate{Longitude: 13.4, Latitude: 52.5}, coord)
	}
	assert.Equal(t, before+1, atomic.LoadInt32(&hits))
}

func TestGeocodeNoResult(t *testing.T) {
	srv := newServer(t, nil)
	c := NewClient(srv.URL, "key", logger.NewNopLogger())
	require.NoError(t, c.Validate(context.Background()))

	_, err := c.Geocode(context.Background(), "Nowhere")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestValidateFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad", logger.NewNopLogger())
	assert.Error(t, c.Validate(context.Background()))
	assert.False(t, c.Validated())
}
