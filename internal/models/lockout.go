package models

import "time"

// LockoutPolicy is the operator-supplied lockout policy. The backoff
// fields are optional: a multiplier of 1 disables progressive locks.
type LockoutPolicy struct {
	Threshold         int
	BaseDuration      time.Duration
	BackoffMultiplier float64
	BackoffCooldown   time.Duration
	MaxDuration       time.Duration
}

// LockDuration computes the lock length for the given completed lock
// cycle count, applying exponential backoff capped at MaxDuration.
func (p LockoutPolicy) LockDuration(cycles int) time.Duration {
	d := p.BaseDuration
	if p.BackoffMultiplier > 1 {
		for i := 0; i < cycles; i++ {
			d = time.Duration(float64(d) * p.BackoffMultiplier)
			if p.MaxDuration > 0 && d >= p.MaxDuration {
				return p.MaxDuration
			}
		}
	}
	if p.MaxDuration > 0 && d > p.MaxDuration {
		d = p.MaxDuration
	}
	return d
}

// LockoutState is the per-email lockout record. It is exclusively owned
// by the data store; callers mutate it only through atomic repository
// operations and never cache it across calls.
type LockoutState struct {
	Email        string     `db:"email"`
	FailureCount int        `db:"failure_count"`
	LockedUntil  *time.Time `db:"locked_until"`
	// LockCycles counts locks within the backoff cooldown window and
	// drives exponential lock duration growth.
	LockCycles int        `db:"lock_cycles"`
	LastLockAt *time.Time `db:"last_lock_at"`

	// Last known good login context, used for travel comparison.
	// Populated on successful attempts only.
	LastLoginAt        *time.Time `db:"last_login_at"`
	LastLoginIP        *string    `db:"last_login_ip"`
	LastLoginLatitude  *float64   `db:"last_login_latitude"`
	LastLoginLongitude *float64   `db:"last_login_longitude"`
	LastLoginCity      *string    `db:"last_login_city"`
	LastLoginCountry   *string    `db:"last_login_country"`

	UpdatedAt time.Time `db:"updated_at"`
}

// IsLocked evaluates lock status lazily at read time.
func (s *LockoutState) IsLocked(now time.Time) bool {
	return s != nil && s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// LastGoodContext reconstructs the last successful login's context, or
// nil when no successful login has been recorded.
func (s *LockoutState) LastGoodContext() *LoginContext {
	if s == nil || s.LastLoginAt == nil {
		return nil
	}
	ctx := &LoginContext{
		Latitude:  s.LastLoginLatitude,
		Longitude: s.LastLoginLongitude,
		City:      s.LastLoginCity,
		Country:   s.LastLoginCountry,
	}
	if s.LastLoginIP != nil {
		ctx.IPAddress = *s.LastLoginIP
	}
	return ctx
}

// ApplyFailure advances the state machine for one failed attempt.
// Expired locks are cleared lazily first, so a failure arriving after
// expiry starts a fresh cycle instead of extending the old lock. The
// caller must hold exclusive access to the row; under the repository's
// row lock exactly one concurrent caller observes Locked=true for a
// given threshold crossing.
func (s *LockoutState) ApplyFailure(now time.Time, policy LockoutPolicy) *LockoutTransition {
	if s.LockedUntil != nil && !now.Before(*s.LockedUntil) {
		s.FailureCount = 0
		s.LockedUntil = nil
	}

	transition := &LockoutTransition{State: s}
	s.FailureCount++

	if s.LockedUntil == nil && s.FailureCount >= policy.Threshold {
		// Backoff cycles reset after a cooldown window without locks.
		cycles := s.LockCycles
		if s.LastLockAt == nil || now.Sub(*s.LastLockAt) > policy.BackoffCooldown {
			cycles = 0
		}
		until := now.Add(policy.LockDuration(cycles))
		s.LockedUntil = &until
		s.LockCycles = cycles + 1
		lockAt := now
		s.LastLockAt = &lockAt
		transition.Locked = true
	}

	s.UpdatedAt = now
	return transition
}

// ApplySuccess advances the state machine for one successful attempt:
// reset the failure count, clear any expired lock and record loginCtx
// as the new last known good context. The previous good context rides
// on the transition so travel analysis can run before it is
// overwritten. A success while the lock is still active is rejected
// with ErrAccountLocked; the state machine gates, it never authorizes.
func (s *LockoutState) ApplySuccess(loginCtx *LoginContext, now time.Time) (*LockoutTransition, error) {
	if s.IsLocked(now) {
		return nil, ErrAccountLocked
	}

	transition := &LockoutTransition{
		State:           s,
		PreviousGood:    s.LastGoodContext(),
		PreviousLoginAt: s.LastLoginAt,
	}
	if s.LockedUntil != nil {
		transition.Unlocked = true
	}

	s.FailureCount = 0
	s.LockedUntil = nil
	loginAt := now
	s.LastLoginAt = &loginAt
	if loginCtx.IPAddress != "" {
		ip := loginCtx.IPAddress
		s.LastLoginIP = &ip
	} else {
		s.LastLoginIP = nil
	}
	s.LastLoginLatitude = loginCtx.Latitude
	s.LastLoginLongitude = loginCtx.Longitude
	s.LastLoginCity = loginCtx.City
	s.LastLoginCountry = loginCtx.Country
	s.UpdatedAt = now

	return transition, nil
}

// LockoutTransition reports what an atomic lockout mutation did. The
// repository derives it from the single committed statement, so exactly
// one concurrent caller observes Locked=true for a given transition.
type LockoutTransition struct {
	State *LockoutState
	// Locked is true only for the call whose increment crossed the
	// failure threshold.
	Locked bool
	// Unlocked is true when a success cleared an expired lock.
	Unlocked bool
	// PreviousGood is the last known good context before this call
	// overwrote it (successful attempts only).
	PreviousGood    *LoginContext
	PreviousLoginAt *time.Time
}
