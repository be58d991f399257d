package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/geo"
	"github.com/ehgzao/Shipper-sub001/internal/models"
	pkglogger "github.com/ehgzao/Shipper-sub001/pkg/logger"
)

// Messages returned to callers. The locked message is identical
// whatever the block source, so a probing attacker cannot tell a
// failure-threshold lock from an active rate limit.
const (
	msgLocked     = "Too many failed attempts. Please try again later."
	msgAccepted   = "Login recorded."
	msgRejected   = "Login failure recorded."
	msgSuspicious = "Login recorded with anomaly."
)

// LoginAttemptStore persists immutable attempt rows
type LoginAttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// LockoutStore provides the atomic per-email lockout operations
type LockoutStore interface {
	Get(ctx context.Context, email string) (*models.LockoutState, error)
	RecordFailure(ctx context.Context, email string, now time.Time, policy models.LockoutPolicy) (*models.LockoutTransition, error)
	RecordSuccess(ctx context.Context, email string, loginCtx *models.LoginContext, now time.Time) (*models.LockoutTransition, error)
}

// ContextResolver normalizes raw client signals into a LoginContext
type ContextResolver interface {
	Resolve(ctx context.Context, raw geo.RawSignals) *models.LoginContext
}

// Dispatcher accepts alerts for background fan-out
type Dispatcher interface {
	Dispatch(alert *models.SecurityAlert)
}

// SecurityService is the login attempt recorder: it ingests one
// attempt, advances the lockout state machine, runs the travel
// detector, writes exactly one audit entry and emits alerts only on
// authoritative state transitions.
type SecurityService struct {
	attempts  LoginAttemptStore
	lockouts  LockoutStore
	resolver  ContextResolver
	detector  *geo.TravelDetector
	dispatch  Dispatcher
	audit     *AuditService
	policy    models.LockoutPolicy
	retention time.Duration
	logger    *slog.Logger
}

// NewSecurityService creates a new SecurityService
func NewSecurityService(
	attempts LoginAttemptStore,
	lockouts LockoutStore,
	resolver ContextResolver,
	detector *geo.TravelDetector,
	dispatch Dispatcher,
	audit *AuditService,
	policy models.LockoutPolicy,
	retention time.Duration,
	logger *slog.Logger,
) *SecurityService {
	return &SecurityService{
		attempts:  attempts,
		lockouts:  lockouts,
		resolver:  resolver,
		detector:  detector,
		dispatch:  dispatch,
		audit:     audit,
		policy:    policy,
		retention: retention,
		logger:    logger,
	}
}

// RecordLoginAttempt records one authentication attempt. Storage
// failures fail open for the lockout gate and fail safe for the audit
// entry; alert delivery never blocks the call.
func (s *SecurityService) RecordLoginAttempt(ctx context.Context, email string, success bool, raw geo.RawSignals) (*models.AttemptResult, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	loginCtx := s.resolver.Resolve(ctx, raw)

	s.recordAttemptRow(ctx, email, success, loginCtx, now)

	var result *models.AttemptResult
	if success {
		result = s.recordSuccess(ctx, email, loginCtx, now)
	} else {
		result = s.recordFailure(ctx, email, loginCtx, now)
	}

	s.writeAuditEntry(ctx, email, success, loginCtx, result)
	return result, nil
}

// recordAttemptRow inserts the immutable attempt fact. An insert
// failure is logged and swallowed: losing one history row must not
// block the gating decision.
func (s *SecurityService) recordAttemptRow(ctx context.Context, email string, success bool, loginCtx *models.LoginContext, now time.Time) {
	attempt := &models.LoginAttempt{
		Email:             email,
		Success:           success,
		IPAddress:         loginCtx.IPAddress,
		Latitude:          loginCtx.Latitude,
		Longitude:         loginCtx.Longitude,
		City:              loginCtx.City,
		Country:           loginCtx.Country,
		UserAgent:         loginCtx.UserAgent,
		DeviceFingerprint: loginCtx.DeviceFingerprint,
		AttemptTime:       now,
		ExpiresAt:         now.Add(s.retention),
	}

	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt row",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}
}

func (s *SecurityService) recordSuccess(ctx context.Context, email string, loginCtx *models.LoginContext, now time.Time) *models.AttemptResult {
	transition, err := s.lockouts.RecordSuccess(ctx, email, loginCtx, now)
	if err != nil {
		if errors.Is(err, models.ErrAccountLocked) {
			return s.lockedResult(ctx, email)
		}
		// Fail open: the storage outage must not reject legitimate traffic.
		s.logger.Error("lockout update failed on success, failing open",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return &models.AttemptResult{Message: msgAccepted}
	}

	result := &models.AttemptResult{Message: msgAccepted}

	// Run travel analysis against the previous good context before the
	// transition overwrote it.
	if transition.PreviousGood != nil && transition.PreviousLoginAt != nil {
		check := s.detector.Check(transition.PreviousGood, *transition.PreviousLoginAt, loginCtx, now)
		result.ImpossibleTravel = check

		if check.Suspicious {
			result.Message = msgSuspicious
			alert := &models.SecurityAlert{
				Type:  models.AlertTypeImpossibleTravel,
				Email: email,
				Details: map[string]any{
					"distance_km":        check.Details.DistanceKm,
					"time_hours":         check.Details.TimeHours,
					"required_speed_kmh": check.Details.RequiredSpeedKmh,
					"last_location":      check.Details.LastLocation,
					"current_location":   check.Details.CurrentLocation,
					"last_login_at":      check.Details.LastLoginAt.Format(time.RFC3339),
				},
			}
			result.Alert = &models.AlertSummary{Type: alert.Type, Details: alert.Details}
			s.dispatch.Dispatch(alert)
		}
	}

	return result
}

func (s *SecurityService) recordFailure(ctx context.Context, email string, loginCtx *models.LoginContext, now time.Time) *models.AttemptResult {
	transition, err := s.lockouts.RecordFailure(ctx, email, now, s.policy)
	if err != nil {
		// Fail open: never lock out legitimate traffic on a storage outage.
		s.logger.Error("lockout update failed on failure, failing open",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return &models.AttemptResult{Message: msgRejected}
	}

	state := transition.State

	if transition.Locked {
		alert := &models.SecurityAlert{
			Type:  models.AlertTypeAccountLocked,
			Email: email,
			Details: map[string]any{
				"failure_count": state.FailureCount,
				"locked_until":  state.LockedUntil.Format(time.RFC3339),
				"ip_address":    loginCtx.IPAddress,
				"location":      loginCtx.Location(),
			},
		}
		s.dispatch.Dispatch(alert)

		return &models.AttemptResult{
			Locked:      true,
			LockedUntil: state.LockedUntil,
			Message:     msgLocked,
			Alert:       &models.AlertSummary{Type: alert.Type, Details: alert.Details},
		}
	}

	if state.IsLocked(now) {
		// Attempt against an already-locked account: counted, no new
		// transition, no new alert.
		return &models.AttemptResult{
			Locked:      true,
			LockedUntil: state.LockedUntil,
			Message:     msgLocked,
		}
	}

	remaining := s.policy.Threshold - state.FailureCount
	if remaining < 0 {
		remaining = 0
	}
	return &models.AttemptResult{
		AttemptsRemaining: &remaining,
		Message:           msgRejected,
	}
}

// lockedResult builds the response for a success rejected by an active
// lock, re-reading the state best-effort for the expiry timestamp.
func (s *SecurityService) lockedResult(ctx context.Context, email string) *models.AttemptResult {
	result := &models.AttemptResult{Locked: true, Message: msgLocked}
	if state, err := s.lockouts.Get(ctx, email); err == nil {
		result.LockedUntil = state.LockedUntil
	}
	return result
}

// writeAuditEntry writes the single audit entry for this call. The
// action reflects the most significant outcome.
func (s *SecurityService) writeAuditEntry(ctx context.Context, email string, success bool, loginCtx *models.LoginContext, result *models.AttemptResult) {
	action := models.AuditActionLoginFailed
	switch {
	case result.Alert != nil && result.Alert.Type == models.AlertTypeAccountLocked:
		action = models.AuditActionAccountLocked
	case result.Alert != nil && result.Alert.Type == models.AlertTypeImpossibleTravel:
		action = models.AuditActionImpossibleTravel
	case success && !result.Locked:
		action = models.AuditActionLoginSuccess
	}

	details := models.AuditDetails{
		"email":    email,
		"success":  success,
		"locked":   result.Locked,
		"location": loginCtx.Location(),
	}
	if result.ImpossibleTravel != nil {
		details["travel_suspicious"] = result.ImpossibleTravel.Suspicious
	}

	var ip, ua *string
	if loginCtx.IPAddress != "" {
		ip = &loginCtx.IPAddress
	}
	if loginCtx.UserAgent != "" {
		ua = &loginCtx.UserAgent
	}

	if err := s.audit.Append(ctx, nil, action, details, ip, ua); err != nil {
		s.logger.Error("failed to append audit entry",
			slog.String("action", action),
			slog.Any("error", err))
	}
}

// IsAccountLocked is a side-effect-free probe. Lock expiry is
// evaluated lazily here; storage errors fail open.
func (s *SecurityService) IsAccountLocked(ctx context.Context, email string) (bool, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return false, err
	}

	state, err := s.lockouts.Get(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		s.logger.Error("lockout probe failed, failing open",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return false, nil
	}

	return state.IsLocked(time.Now().UTC()), nil
}

// NormalizeEmail case-folds and validates the account key. Every
// lookup and mutation uses the normalized form.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", models.ErrBadRequest)
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", fmt.Errorf("%w: malformed email", models.ErrBadRequest)
	}
	return email, nil
}
