// Package ors talks to OpenRouteService for geocoding and driving routes.
package ors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultBaseURL = "https://api.openrouteservice.org"
	moduleName     = "ORS"

	// Geocoding the same free text twice gives the same answer for a long time.
	geocodeTTL = 24 * time.Hour

	validationQuery = "Berlin, Germany"
)

var (
	ErrNotValidated = errors.New("ors: service failed validation")
	ErrNoResult     = errors.New("ors: no result")
	ErrBadPayload   = errors.New("ors: malformed response")
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.ILogger
	geocodes   *cache.Cache
	validated  atomic.Bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(baseURL, apiKey string, log logger.ILogger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  log,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				ResponseHeaderTimeout: 15 * time.Second,
			},
		},
		geocodes: cache.New(geocodeTTL, time.Hour),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate geocodes a well-known place. Until it succeeds every other call
// is refused with ErrNotValidated.
func (c *Client) Validate(ctx context.Context) error {
	coord, err := c.geocode(ctx, validationQuery)
	if err != nil {
		c.validated.Store(false)
		c.logger.Error(moduleName, "Unable to validate OpenRouteService API", map[string]interface{}{"error": err.Error()})
		return err
	}
	c.validated.Store(true)
	c.logger.Info(moduleName, "OpenRouteService validated", map[string]interface{}{"probe": coord.String()})
	return nil
}

func (c *Client) Validated() bool {
	return c.validated.Load()
}

// Geocode resolves free text to the best matching coordinate.
func (c *Client) Geocode(ctx context.Context, text string) (model.Coordinate, error) {
	if !c.Validated() {
		return model.Coordinate{}, ErrNotValidated
	}
	key := strings.ToLower(strings.TrimSpace(text))
	if v, ok := c.geocodes.Get(key); ok {
		return v.(model.Coordinate), nil
	}
	coord, err := c.geocode(ctx, text)
	if err != nil {
		return model.Coordinate{}, err
	}
	c.geocodes.SetDefault(key, coord)
	return coord, nil
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (c *Client) geocode(ctx context.Context, text string) (model.Coordinate, error) {
	params := url.Values{}
	params.Add("api_key", c.apiKey)
	params.Add("text", text)
	params.Add("size", "1")

	var res geocodeResponse
	if err := c.get(ctx, "/geocode/search", params, &res); err != nil {
		return model.Coordinate{}, err
	}
	if len(res.Features) == 0 {
		return model.Coordinate{}, fmt.Errorf("%w: nothing found for %q", ErrNoResult, text)
	}
	pt := res.Features[0].Geometry.Coordinates
	if len(pt) < 2 {
		return model.Coordinate{}, fmt.Errorf("%w: geometry has %d values", ErrBadPayload, len(pt))
	}
	coord := model.Coordinate{Longitude: pt[0], Latitude: pt[1]}
	if err := coord.Validate(); err != nil {
		return model.Coordinate{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return coord, nil
}

type directionsResponse struct {
	Features []struct {
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

// Route returns driving distance in kilometres and travel time in minutes.
func (c *Client) Route(ctx context.Context, origin, dest model.Coordinate) (model.Route, error) {
	if !c.Validated() {
		return model.Route{}, ErrNotValidated
	}
	params := url.Values{}
	params.Add("api_key", c.apiKey)
	params.Add("start", lngLat(origin))
	params.Add("end", lngLat(dest))

	var res directionsResponse
	if err := c.get(ctx, "/v2/directions/driving-car", params, &res); err != nil {
		return model.Route{}, err
	}
	if len(res.Features) == 0 {
		return model.Route{}, fmt.Errorf("%w: no route between %s and %s", ErrNoResult, origin, dest)
	}
	summary := res.Features[0].Properties.Summary
	route := model.Route{
		DistanceKm: summary.Distance / 1000,
		EtaMinutes: summary.Duration / 60,
	}
	c.logger.Debug(moduleName, "Route computed", map[string]interface{}{
		"distance_km": route.DistanceKm,
		"eta_minutes": route.EtaMinutes,
	})
	return route, nil
}

func lngLat(c model.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Longitude, c.Latitude)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json, application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ors request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ors read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ors %s: status %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
