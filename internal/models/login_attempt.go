package models

import "time"

// LoginContext carries the resolved client signals for a single attempt.
// Every field besides IPAddress is optional; missing geo data disables
// travel analysis for that attempt rather than guessing.
type LoginContext struct {
	IPAddress         string
	Latitude          *float64
	Longitude         *float64
	City              *string
	Country           *string
	UserAgent         string
	DeviceFingerprint string
}

// HasCoordinates reports whether both latitude and longitude are present.
func (c *LoginContext) HasCoordinates() bool {
	return c != nil && c.Latitude != nil && c.Longitude != nil
}

// Location renders a human-readable "City, Country" label, falling back
// to the IP address when no geo data is available.
func (c *LoginContext) Location() string {
	if c == nil {
		return "unknown"
	}
	switch {
	case c.City != nil && c.Country != nil:
		return *c.City + ", " + *c.Country
	case c.Country != nil:
		return *c.Country
	case c.City != nil:
		return *c.City
	case c.IPAddress != "":
		return c.IPAddress
	}
	return "unknown"
}

// LoginAttempt represents a single authentication attempt. Rows are
// immutable once inserted; they are retained for history and travel
// comparison until ExpiresAt.
type LoginAttempt struct {
	ID                string    `db:"id"`
	Email             string    `db:"email"`
	Success           bool      `db:"success"`
	IPAddress         string    `db:"ip_address"`
	Latitude          *float64  `db:"latitude"`
	Longitude         *float64  `db:"longitude"`
	City              *string   `db:"city"`
	Country           *string   `db:"country"`
	UserAgent         string    `db:"user_agent"`
	DeviceFingerprint string    `db:"device_fingerprint"`
	AttemptTime       time.Time `db:"attempt_time"`
	ExpiresAt         time.Time `db:"expires_at"`
}

// AttemptResult is returned to the caller after recording an attempt.
type AttemptResult struct {
	Locked            bool          `json:"locked"`
	LockedUntil       *time.Time    `json:"locked_until,omitempty"`
	AttemptsRemaining *int          `json:"attempts_remaining,omitempty"`
	Message           string        `json:"message"`
	Alert             *AlertSummary `json:"alert,omitempty"`
	ImpossibleTravel  *TravelCheck  `json:"impossible_travel,omitempty"`
}

// AlertSummary reports an alert emitted while recording an attempt.
type AlertSummary struct {
	Type    AlertType      `json:"alert_type"`
	Details map[string]any `json:"details,omitempty"`
}

// TravelCheck is the impossible-travel detector output.
type TravelCheck struct {
	Suspicious bool           `json:"suspicious"`
	Reason     string         `json:"reason"`
	Details    *TravelDetails `json:"details,omitempty"`
}

// TravelDetails carries the computed evidence for a travel verdict.
type TravelDetails struct {
	DistanceKm       float64   `json:"distance_km"`
	TimeHours        float64   `json:"time_hours"`
	RequiredSpeedKmh float64   `json:"required_speed_kmh"`
	LastLocation     string    `json:"last_location"`
	CurrentLocation  string    `json:"current_location"`
	LastLoginAt      time.Time `json:"last_login_at"`
}
