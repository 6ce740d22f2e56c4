package aprs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"aprs-friend-alert/internal/model"
)

// ReplaySource plays back a recorded route instead of asking aprs.fi.
// Each query returns the next coordinate (wrapping around) stamped with a
// strictly increasing timestamp just after "now".
type ReplaySource struct {
	mu     sync.Mutex
	coords []model.Coordinate
	ix     int
	last   int64
	now    func() time.Time
}

func NewReplaySource(coords []model.Coordinate) *ReplaySource {
	return &ReplaySource{coords: coords, now: time.Now}
}

// LoadReplaySource reads a JSON list of [longitude, latitude] pairs.
func LoadReplaySource(path string) (*ReplaySource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay route: %w", err)
	}
	var pairs [][2]float64
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("parse replay route: %w", err)
	}
	if len(pairs) == 0 {
		return nil, errors.New("replay route is empty")
	}
	coords := make([]model.Coordinate, 0, len(pairs))
	for _, p := range pairs {
		coords = append(coords, model.Coordinate{Longitude: p[0], Latitude: p[1]})
	}
	return NewReplaySource(coords), nil
}

func (r *ReplaySource) Query(ctx context.Context) (model.PositionSample, error) {
	if err := ctx.Err(); err != nil {
		return model.PositionSample{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	coord := r.coords[r.ix]
	r.ix = (r.ix + 1) % len(r.coords)

	ts := r.now().Unix() + 1
	if ts <= r.last {
		ts = r.last + 1
	}
	r.last = ts
	return model.PositionSample{Coordinate: coord, ObservedAt: ts}, nil
}

func (r *ReplaySource) Validated() bool { return true }
