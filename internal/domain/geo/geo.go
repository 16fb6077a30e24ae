// Package geo holds coordinate types and the great-circle distance used by the location gate.
package geo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// EarthRadiusMeters is the mean Earth radius of the spherical approximation.
const EarthRadiusMeters = 6_371_000.0

// ErrInvalidPoint is returned by Validate for out-of-range coordinates.
var ErrInvalidPoint = errors.New("invalid geo point")

// Point is a target coordinate in degrees with an acceptance radius in meters.
type Point struct {
	Latitude     float64 `json:"latitude" koanf:"latitude"`
	Longitude    float64 `json:"longitude" koanf:"longitude"`
	RadiusMeters float64 `json:"radius_m" koanf:"radius_m"`
}

// Validate checks coordinate ranges and the radius sign.
func (p Point) Validate() error {
	switch {
	case math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90:
		return fmt.Errorf("%w: latitude %v", ErrInvalidPoint, p.Latitude)
	case math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180:
		return fmt.Errorf("%w: longitude %v", ErrInvalidPoint, p.Longitude)
	case math.IsNaN(p.RadiusMeters) || p.RadiusMeters < 0:
		return fmt.Errorf("%w: radius %v", ErrInvalidPoint, p.RadiusMeters)
	}
	return nil
}

// Contains reports whether q lies within the point's radius.
func (p Point) Contains(q Point) (bool, float64) {
	d := DistanceMeters(p, q)
	return d <= p.RadiusMeters, d
}

// Sample is one device fix.
type Sample struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	Timestamp          time.Time `json:"timestamp"`
}

// Point projects the sample onto a Point with a zero radius.
func (s Sample) Point() Point {
	return Point{Latitude: s.Latitude, Longitude: s.Longitude}
}

// DistanceMeters returns the haversine distance between a and b. Radii are ignored.
func DistanceMeters(a, b Point) float64 {
	if a.Latitude == b.Latitude && a.Longitude == b.Longitude {
		return 0
	}

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	// Rounding can push h marginally outside [0,1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
