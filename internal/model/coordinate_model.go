package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Coordinate is a WGS84 position. Longitude first, matching the order used by
// both the routing and the position APIs.
type Coordinate struct {
	Longitude float64 `json:"longitude" validate:"longitude"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
}

func (c Coordinate) Validate() error {
	return validate.Struct(c)
}

// String renders the coordinate as "lat, lon", the order people type into map apps.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f, %.5f", c.Latitude, c.Longitude)
}

// MapURL links the coordinate on OpenStreetMap.
func (c Coordinate) MapURL() string {
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.5f&mlon=%.5f#map=17/%.5f/%.5f",
		c.Latitude, c.Longitude, c.Latitude, c.Longitude)
}

// PositionSample is one accepted report from the position source.
type PositionSample struct {
	Coordinate Coordinate `json:"coordinate"`
	ObservedAt int64      `json:"observed_at"` // unix seconds
}

// Route is the travel summary between two coordinates.
type Route struct {
	DistanceKm float64 `json:"distance_km"`
	EtaMinutes float64 `json:"eta_minutes"`
}
