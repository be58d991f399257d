package models

import "time"

// Rate limited actions. Each action maps to a fixed-window policy; the
// same algorithm backs all of them with different keys and windows.
const (
	RateLimitActionPasswordReset = "password_reset"
	RateLimitActionAICoachDaily  = "ai_coach_daily"
	RateLimitActionAdminWrite    = "admin_write"
)

// RateLimitPolicy is the limit and window for one action.
type RateLimitPolicy struct {
	Action string
	Limit  int
	Window time.Duration
}

// RateLimitWindow is the per (subject, action) counter row. Count is
// monotonically non-decreasing within a window and resets when the
// window elapses; both are enforced by a single atomic statement at
// the data layer.
type RateLimitWindow struct {
	Subject     string    `db:"subject"`
	Action      string    `db:"action"`
	Count       int       `db:"count"`
	WindowStart time.Time `db:"window_start"`
}

// RateLimitResult is the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed           bool   `json:"allowed"`
	Remaining         int    `json:"remaining"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
	Message           string `json:"message"`
}
