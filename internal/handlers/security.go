package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/geo"
	"github.com/ehgzao/Shipper-sub001/internal/models"
	pkghttp "github.com/ehgzao/Shipper-sub001/pkg/http"
	"github.com/go-chi/chi/v5"
)

// SecurityServiceInterface defines the recorder operations the handler needs
type SecurityServiceInterface interface {
	RecordLoginAttempt(ctx context.Context, email string, success bool, raw geo.RawSignals) (*models.AttemptResult, error)
	IsAccountLocked(ctx context.Context, email string) (bool, error)
}

// RateLimitServiceInterface defines the limiter operations the handler needs
type RateLimitServiceInterface interface {
	Check(ctx context.Context, subject, action string) (*models.RateLimitResult, error)
}

// CaptchaVerifierInterface performs one-shot CAPTCHA token verification
type CaptchaVerifierInterface interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// SecurityHandler handles attempt recording, lockout probes, rate
// limit checks and the CAPTCHA gate
type SecurityHandler struct {
	security  SecurityServiceInterface
	rateLimit RateLimitServiceInterface
	captcha   CaptchaVerifierInterface
	ipConfig  *pkghttp.IPConfig
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(security SecurityServiceInterface, rateLimit RateLimitServiceInterface, captcha CaptchaVerifierInterface, ipConfig *pkghttp.IPConfig) *SecurityHandler {
	return &SecurityHandler{
		security:  security,
		rateLimit: rateLimit,
		captcha:   captcha,
		ipConfig:  ipConfig,
	}
}

// Request DTOs

// RecordAttemptRequest represents the request body for recording a login attempt
type RecordAttemptRequest struct {
	Email             string   `json:"email" validate:"required,email"`
	Success           *bool    `json:"success" validate:"required"`
	IP                string   `json:"ip" validate:"omitempty,ip"`
	Latitude          *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Longitude         *float64 `json:"lon" validate:"omitempty,gte=-180,lte=180"`
	City              *string  `json:"city"`
	Country           *string  `json:"country"`
	UserAgent         string   `json:"user_agent"`
	DeviceFingerprint string   `json:"device_fingerprint"`
}

// RecordAttemptResponse represents the attempt-recording result
type RecordAttemptResponse struct {
	Locked            bool                `json:"locked"`
	LockedUntil       *time.Time          `json:"locked_until,omitempty"`
	AttemptsRemaining *int                `json:"attempts_remaining,omitempty"`
	Message           string              `json:"message"`
	ShouldAlert       bool                `json:"should_alert"`
	AlertType         string              `json:"alert_type,omitempty"`
	AlertDetails      map[string]any      `json:"alert_details,omitempty"`
	ImpossibleTravel  *models.TravelCheck `json:"impossible_travel,omitempty"`
}

// CheckRateLimitRequest represents the request body for a rate limit check
type CheckRateLimitRequest struct {
	Subject string `json:"subject" validate:"required,min=1,max=255"`
	Action  string `json:"action" validate:"required,oneof=password_reset ai_coach_daily admin_write"`
}

// VerifyCaptchaRequest represents the request body for CAPTCHA verification
type VerifyCaptchaRequest struct {
	Token string `json:"token" validate:"required"`
}

// VerifyCaptchaResponse reports the opaque verification outcome
type VerifyCaptchaResponse struct {
	Success bool `json:"success"`
}

// LockoutStatusResponse reports whether an account is currently locked
type LockoutStatusResponse struct {
	Email  string `json:"email"`
	Locked bool   `json:"locked"`
}

// RecordAttempt handles POST /v1/login-attempts
func (h *SecurityHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req RecordAttemptRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	// The caller-supplied IP is the end client's address as seen by the
	// identity provider; fall back to the direct peer when absent.
	ip := req.IP
	if ip == "" {
		ip = pkghttp.ExtractClientIP(r, h.ipConfig)
	}

	raw := geo.RawSignals{
		IPAddress:         ip,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		City:              req.City,
		Country:           req.Country,
		UserAgent:         req.UserAgent,
		DeviceFingerprint: req.DeviceFingerprint,
	}

	result, err := h.security.RecordLoginAttempt(r.Context(), req.Email, *req.Success, raw)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid email")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := RecordAttemptResponse{
		Locked:            result.Locked,
		LockedUntil:       result.LockedUntil,
		AttemptsRemaining: result.AttemptsRemaining,
		Message:           result.Message,
		ImpossibleTravel:  result.ImpossibleTravel,
	}
	if result.Alert != nil {
		resp.ShouldAlert = true
		resp.AlertType = string(result.Alert.Type)
		resp.AlertDetails = result.Alert.Details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// LockoutStatus handles GET /v1/lockouts/{email}
func (h *SecurityHandler) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	locked, err := h.security.IsAccountLocked(r.Context(), email)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid email")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LockoutStatusResponse{Email: email, Locked: locked})
}

// CheckRateLimit handles POST /v1/rate-limits/check
func (h *SecurityHandler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	var req CheckRateLimitRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.rateLimit.Check(r.Context(), req.Subject, req.Action)
	if err != nil {
		if errors.Is(err, models.ErrUnknownAction) {
			pkghttp.WriteBadRequest(w, "Unknown action")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	// Policy outcomes are structured results, not HTTP errors.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// VerifyCaptcha handles POST /v1/captcha/verify
func (h *SecurityHandler) VerifyCaptcha(w http.ResponseWriter, r *http.Request) {
	var req VerifyCaptchaRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	remoteIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	ok, err := h.captcha.Verify(r.Context(), req.Token, remoteIP)
	if err != nil {
		// The gate is an opaque boolean precondition; verification
		// infrastructure errors read as "not verified".
		ok = false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(VerifyCaptchaResponse{Success: ok})
}
