package geo

import (
	"math"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/models"
)

const earthRadiusKm = 6371.0

// minElapsedHours guards the speed division against zero or negative
// clock skew between two attempts.
const minElapsedHours = 1.0 / 3600.0

// TravelDetector flags login pairs that imply physically implausible
// travel speed.
type TravelDetector struct {
	// MaxSpeedKmh is the plausible-travel ceiling, approximating
	// commercial flight.
	MaxSpeedKmh float64
	// Window is the minimum corroboration window: pairs further apart
	// in time are never flagged, whatever the implied speed.
	Window time.Duration
}

// NewTravelDetector creates a detector with the given policy
func NewTravelDetector(maxSpeedKmh float64, window time.Duration) *TravelDetector {
	return &TravelDetector{MaxSpeedKmh: maxSpeedKmh, Window: window}
}

// Check compares the previous successful login against the current one.
// Missing coordinates on either side short-circuit to "not suspicious":
// the distance cannot be computed and is never guessed.
func (d *TravelDetector) Check(prev *models.LoginContext, prevAt time.Time, curr *models.LoginContext, currAt time.Time) *models.TravelCheck {
	if !prev.HasCoordinates() || !curr.HasCoordinates() {
		return &models.TravelCheck{Suspicious: false, Reason: "location data unavailable"}
	}

	distanceKm := haversineKm(*prev.Latitude, *prev.Longitude, *curr.Latitude, *curr.Longitude)

	elapsedHours := currAt.Sub(prevAt).Hours()
	if elapsedHours < minElapsedHours {
		elapsedHours = minElapsedHours
	}

	requiredSpeed := distanceKm / elapsedHours

	details := &models.TravelDetails{
		DistanceKm:       distanceKm,
		TimeHours:        elapsedHours,
		RequiredSpeedKmh: requiredSpeed,
		LastLocation:     prev.Location(),
		CurrentLocation:  curr.Location(),
		LastLoginAt:      prevAt,
	}

	if requiredSpeed > d.MaxSpeedKmh && currAt.Sub(prevAt) < d.Window {
		return &models.TravelCheck{
			Suspicious: true,
			Reason:     "travel speed between logins exceeds plausible maximum",
			Details:    details,
		}
	}

	return &models.TravelCheck{
		Suspicious: false,
		Reason:     "travel speed within plausible bounds",
		Details:    details,
	}
}

// haversineKm computes the great-circle distance between two points
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
