// Package aprs queries aprs.fi for the last known position of a callsign.
package aprs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/pkg/logger"
)

const (
	DefaultEndpoint = "https://api.aprs.fi/api/get"
	moduleName      = "APRS"
)

var (
	ErrNoEntries  = errors.New("aprs: no position entries in response")
	ErrBadResult  = errors.New("aprs: api did not answer ok")
	ErrBadPayload = errors.New("aprs: malformed position payload")
)

type Client struct {
	endpoint   string
	apiKey     string
	call       string
	httpClient *http.Client
	logger     logger.ILogger
	validated  atomic.Bool
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(apiKey, call string, log logger.ILogger, opts ...Option) *Client {
	c := &Client{
		endpoint: DefaultEndpoint,
		apiKey:   apiKey,
		call:     call,
		logger:   log,
		// 3s to connect, 5s to answer.
		httpClient: &http.Client{
			Timeout: 8 * time.Second,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
				ResponseHeaderTimeout: 5 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate performs one query to check key and callsign.
func (c *Client) Validate(ctx context.Context) error {
	sample, err := c.Query(ctx)
	if err != nil {
		c.logger.Error(moduleName, "Unable to validate APRS API", map[string]interface{}{"error": err.Error()})
		return err
	}
	c.logger.Info(moduleName, "APRS validated", map[string]interface{}{
		"call":        c.call,
		"coordinate":  sample.Coordinate.String(),
		"observed_at": sample.ObservedAt,
	})
	return nil
}

func (c *Client) Validated() bool {
	return c.validated.Load()
}

// Invalidate marks the source unhealthy after the poller gave up on it.
// The next successful query re-validates it.
func (c *Client) Invalidate() {
	c.validated.Store(false)
}

type apiResponse struct {
	Result      string `json:"result"`
	Description string `json:"description"`
	Entries     []struct {
		Lat  string `json:"lat"`
		Lng  string `json:"lng"`
		Time string `json:"time"`
	} `json:"entries"`
}

// Query fetches the most recent position of the configured callsign.
func (c *Client) Query(ctx context.Context) (model.PositionSample, error) {
	params := url.Values{}
	params.Add("name", c.call)
	params.Add("what", "loc")
	params.Add("apikey", c.apiKey)
	params.Add("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return model.PositionSample{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.PositionSample{}, fmt.Errorf("aprs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.PositionSample{}, fmt.Errorf("aprs: server status code %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.PositionSample{}, fmt.Errorf("aprs read body: %w", err)
	}

	sample, err := parseResponse(body)
	if err != nil {
		return model.PositionSample{}, err
	}
	c.validated.Store(true)
	c.logger.Debug(moduleName, "Data received", map[string]interface{}{
		"coordinate":  sample.Coordinate.String(),
		"observed_at": sample.ObservedAt,
	})
	return sample, nil
}

func parseResponse(body []byte) (model.PositionSample, error) {
	var res apiResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return model.PositionSample{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if res.Result != "ok" {
		return model.PositionSample{}, fmt.Errorf("%w: %s", ErrBadResult, res.Description)
	}
	if len(res.Entries) == 0 {
		return model.PositionSample{}, ErrNoEntries
	}
	e := res.Entries[0]
	lat, err := strconv.ParseFloat(e.Lat, 64)
	if err != nil {
		return model.PositionSample{}, fmt.Errorf("%w: lat %q", ErrBadPayload, e.Lat)
	}
	lng, err := strconv.ParseFloat(e.Lng, 64)
	if err != nil {
		return model.PositionSample{}, fmt.Errorf("%w: lng %q", ErrBadPayload, e.Lng)
	}
	ts, err := strconv.ParseInt(e.Time, 10, 64)
	if err != nil {
		return model.PositionSample{}, fmt.Errorf("%w: time %q", ErrBadPayload, e.Time)
	}
	coord := model.Coordinate{Longitude: lng, Latitude: lat}
	if err := coord.Validate(); err != nil {
		return model.PositionSample{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return model.PositionSample{Coordinate: coord, ObservedAt: ts}, nil
}
