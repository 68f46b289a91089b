package geo

import (
	"errors"
	"fmt"
	"math"
)

// DefaultRadiusMeters is how far a reported location may be from the session
// anchor and still count as present. Fixed server-side, not client-tunable.
const DefaultRadiusMeters = 50.0

// earthRadiusMeters is Earth's mean radius.
const earthRadiusMeters = 6371000.0

// ErrInvalidCoordinates is returned when a latitude/longitude pair is not a
// finite number in range. Callers surface it as "location unavailable".
var ErrInvalidCoordinates = errors.New("location unavailable")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point is finite and within coordinate range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance returns the great-circle distance between two points in meters
// using the haversine formula.
func Distance(a, b Point) float64 {
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h a hair past 1 near antipodal pairs, which would
	// make Sqrt(1-h) NaN.
	if h > 1 {
		h = 1
	}
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// RejectedError reports a location outside the allowed radius. The computed
// distance is carried so handlers can show it to the student.
type RejectedError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("location rejected: %.0f m from session anchor (allowed %.0f m)", e.DistanceMeters, e.RadiusMeters)
}

// Verify validates both points and accepts the reported location iff its
// distance from the anchor does not exceed radiusMeters. A distance exactly
// equal to the radius is accepted. On rejection the returned error is a
// *RejectedError carrying the distance.
func Verify(anchor, reported Point, radiusMeters float64) error {
	if !anchor.Valid() || !reported.Valid() {
		return ErrInvalidCoordinates
	}
	d := Distance(anchor, reported)
	if d > radiusMeters {
		return &RejectedError{DistanceMeters: d, RadiusMeters: radiusMeters}
	}
	return nil
}
