// Package checkin validates event check-in requests before they reach
// the ledger. All checks are pure.
package checkin

import (
	"math"
	"time"

	"github.com/civium/rewards-core/internal/serviceerrs"
)

const earthRadiusMeters = 6371000.0

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

type Window struct {
	OpenBefore time.Duration
	CloseAfter time.Duration
}

// ValidateWindow checks that now falls inside
// [eventTime - OpenBefore, eventTime + CloseAfter].
func ValidateWindow(now, eventTime time.Time, w Window) error {
	if now.Before(eventTime.Add(-w.OpenBefore)) {
		return serviceerrs.ErrCheckInWindowClosed
	}
	if now.After(eventTime.Add(w.CloseAfter)) {
		return serviceerrs.ErrCheckInWindowExpired
	}
	return nil
}

// ValidateLocation requires the requester within radiusMeters of the
// event. When either side cannot supply coordinates the check is
// skipped; members without location data are not blocked.
func ValidateLocation(event, requester *Coordinates, radiusMeters float64) error {
	if event == nil || requester == nil {
		return nil
	}
	if Haversine(*event, *requester) > radiusMeters {
		return serviceerrs.ErrLocationMismatch
	}
	return nil
}

// Haversine returns the great-circle distance between two points in
// meters, on a 6371 km sphere.
func Haversine(a, b Coordinates) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
