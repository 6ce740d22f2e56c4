package main

import (
	"context"
	"math"

	"aprs-friend-alert/internal/model"
)

const earthRadiusKm = 6371.0

// straightLine estimates routes from great-circle distance at a fixed speed.
// It lets the simulator run without an OpenRouteService key.
type straightLine struct {
	speedKmh float64
}

func (s straightLine) Route(ctx context.Context, origin, dest model.Coordinate) (model.Route, error) {
	km := haversineKm(origin, dest)
	return model.Route{DistanceKm: km, EtaMinutes: km / s.speedKmh * 60}, nil
}

func haversineKm(a, b model.Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
