package aprs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"aprs-friend-alert/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("key", "DL1ABC-9", logger.NewNopLogger(), WithEndpoint(srv.URL))
}

func TestQueryParsesFirstEntry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DL1ABC-9", r.URL.Query().Get("name"))
		assert.Equal(t, "loc", r.URL.Query().Get("what"))
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(`{"result":"ok","entries":[{"lat":"52.50000","lng":"13.40000","time":"1700000000"}]}`))
	})

	sample, err := c.Query(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 52.5, sample.Coordinate.Latitude, 1e-9)
	assert.InDelta(t, 13.4, sample.Coordinate.Longitude, 1e-9)
	assert.Equal(t, int64(1700000000), sample.ObservedAt)
	assert.True(t, c.Validated())
}

func TestQueryFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: ``},
		{name: "result fail", status: http.StatusOK, body: `{"result":"fail","description":"bad key"}`, wantErr: ErrBadResult},
		{name: "no entries", status: http.StatusOK, body: `{"result":"ok","entries":[]}`, wantErr: ErrNoEntries},
		{name: "garbage", status: http.StatusOK, body: `<html>`, wantErr: ErrBadPayload},
		{name: "bad latitude", status: http.StatusOK, body: `{"result":"ok","entries":[{"lat":"x","lng":"1","time":"1"}]}`, wantErr: ErrBadPayload},
		{name: "out of range", status: http.StatusOK, body: `{"result":"ok","entries":[{"lat":"95","lng":"1","time":"1"}]}`, wantErr: ErrBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Query(context.Background())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.False(t, c.Validated())
		})
	}
}

func TestInvalidate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"ok","entries":[{"lat":"1","lng":"2","time":"3"}]}`))
	})
	require.NoError(t, c.Validate(context.Background()))
	c.Invalidate()
	assert.False(t, c.Validated())
}

func TestReplaySourceTimestampsIncrease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.json")
	require.NoError(t, os.WriteFile(path, []byte(`[[13.0,52.0],[13.1,52.1]]`), 0o600))

	src, err := LoadReplaySource(path)
	require.NoError(t, err)

	var last int64
	for i := 0; i < 5; i++ {
		s, err := src.Query(context.Background())
		require.NoError(t, err)
		assert.Greater(t, s.ObservedAt, last)
		last = s.ObservedAt
		if i%2 == 0 {
			assert.Equal(t, 13.0, s.Coordinate.Longitude)
		} else {
			assert.Equal(t, 13.1, s.Coordinate.Longitude)
		}
	}
}

func TestLoadReplaySourceRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))
	_, err := LoadReplaySource(path)
	assert.Error(t, err)
}
