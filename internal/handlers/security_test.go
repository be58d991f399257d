package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/geo"
	"github.com/ehgzao/Shipper-sub001/internal/handlers"
	"github.com/ehgzao/Shipper-sub001/internal/models"
	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestRecordAttempt_Success(t *testing.T) {
	remaining := 4
	mockSecurity := &handlers.MockSecurityService{
		RecordLoginAttemptFunc: func(ctx context.Context, email string, success bool, raw geo.RawSignals) (*models.AttemptResult, error) {
			assert.Equal(t, "user@example.com", email)
			assert.False(t, success)
			assert.Equal(t, "203.0.113.10", raw.IPAddress)
			return &models.AttemptResult{
				AttemptsRemaining: &remaining,
				Message:           "Login failure recorded.",
			}, nil
		},
	}

	handler := handlers.NewSecurityHandler(mockSecurity, &handlers.MockRateLimitService{}, &handlers.MockCaptchaVerifier{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/login-attempts", handlers.RecordAttemptRequest{
		Email:   "user@example.com",
		Success: boolPtr(false),
		IP:      "203.0.113.10",
	})

	w := httptest.NewRecorder()
	handler.RecordAttempt(w, req)

	var resp handlers.RecordAttemptResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.Locked)
	assert.Equal(t, 4, *resp.AttemptsRemaining)
	assert.False(t, resp.ShouldAlert)
}

func TestRecordAttempt_LockedResponse(t *testing.T) {
	lockedUntil := time.Now().UTC().Add(15 * time.Minute)
	mockSecurity := &handlers.MockSecurityService{
		RecordLoginAttemptFunc: func(ctx context.Context, email string, success bool, raw geo.RawSignals) (*models.AttemptResult, error) {
			return &models.AttemptResult{
				Locked:      true,
				LockedUntil: &lockedUntil,
				Message:     "Too many failed attempts. Please try again later.",
				Alert: &models.AlertSummary{
					Type:    models.AlertTypeAccountLocked,
					Details: map[string]any{"failure_count": 5},
				},
			}, nil
		},
	}

	handler := handlers.NewSecurityHandler(mockSecurity, &handlers.MockRateLimitService{}, &handlers.MockCaptchaVerifier{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/login-attempts", handlers.RecordAttemptRequest{
		Email:   "user@example.com",
		Success: boolPtr(false),
	})

	w := httptest.NewRecorder()
	handler.RecordAttempt(w, req)

	var resp handlers.RecordAttemptResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Locked)
	assert.NotNil(t, resp.LockedUntil)
	assert.True(t, resp.ShouldAlert)
	assert.Equal(t, "account_locked", resp.AlertType)
}

func TestRecordAttempt_ValidationFailures(t *testing.T) {
	handler := handlers.NewSecurityHandler(&handlers.MockSecurityService{}, &handlers.MockRateLimitService{}, &handlers.MockCaptchaVerifier{}, nil)

	cases := []handlers.RecordAttemptRequest{
		{Success: boolPtr(true)},                                    // missing email
		{Email: "not-an-email", Success: boolPtr(true)},             // malformed email
		{Email: "user@example.com"},                                 // missing success
		{Email: "user@example.com", Success: boolPtr(true), IP: "999.999.1.1"}, // bad IP
	}

	for _, body := range cases {
		req := handlers.NewTestRequest(t, "POST", "/v1/login-attempts", body)
		w := httptest.NewRecorder()
		handler.RecordAttempt(w, req)
		handlers.AssertErrorResponse(t, w, 400, "bad_request")
	}
}

func TestRecordAttempt_InvalidCoordinatesRejected(t *testing.T) {
	handler := handlers.NewSecurityHandler(&handlers.MockSecurityService{}, &handlers.MockRateLimitService{}, &handlers.MockCaptchaVerifier{}, nil)

	badLat := 91.0
	req := handlers.NewTestRequest(t, "POST", "/v1/login-attempts", handlers.RecordAttemptRequest{
		Email:    "user@example.com",
		Success:  boolPtr(true),
		Latitude: &badLat,
	})

	w := httptest.NewRecorder()
	handler.RecordAttempt(w, req)
	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestRecordAttempt_ServiceError(t *testing.T) {
	mockSecurity := &handlers.MockSecurityService{
		RecordLoginAttemptFunc: func(ctx context.Context, email string, success bool, raw geo.RawSignals) (*models.AttemptResult, error) {
			return nil, errors.New("storage exploded")
		},
	}

	handler := handlers.NewSecurityHandler(mockSecurity, &handlers.MockRateLimitService{}, &handlers.MockCaptchaVerifier{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/login-attempts", handlers.RecordAttemptRequest{
		Email:   "user@example.com",
		Success: boolPtr(true),
	})

	w := httptest.NewRecorder()
	handler.RecordAttempt(w, req)
	handlers.AssertErrorResponse(t, w, 500, "internal_error")
}

func TestLockoutStatus(t *testing.T) {
	mockSecurity := &handlers.MockSecurityService{
		IsAccountLockedFunc: func(ctx context.Context, email string) (bool, error) {
			return email == "locked@example.com", nil
		},
	}

	handler := handlers.NewSecurityHandler(mockSecurity, &handlers.MockRateLimitService{}, &handlers.MockCaptchaVerifier{}, nil)

	for _, tc := range []struct {
		email  string
		locked bool
	}{
		{"locked@example.com", true},
		{"free@example.com", false},
	} {
		req := httptest.NewRequest("GET", fmt.Sprintf("/v1/lockouts/%s", tc.email), nil)
		req = handlers.WithChiRouteContext(req, map[string]string{"email": tc.email})

		w := httptest.NewRecorder()
		handler.LockoutStatus(w, req)

		var resp handlers.LockoutStatusResponse
		handlers.AssertJSONResponse(t, w, 200, &resp)
		assert.Equal(t, tc.locked, resp.Locked)
		assert.Equal(t, tc.email, resp.Email)
	}
}

func TestLockoutStatus_InvalidEmail(t *testing.T) {
	mockSecurity := &handlers.MockSecurityService{
		IsAccountLockedFunc: func(ctx context.Context, email string) (bool, error) {
			return false, fmt.Errorf("%w: malformed email", models.ErrBadRequest)
		},
	}

	handler := handlers.NewSecurityHandler(mockSecurity, &handlers.MockRateLimitService{}, &handlers.MockCaptchaVerifier{}, nil)
	req := httptest.NewRequest("GET", "/v1/lockouts/bogus", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"email": "bogus"})

	w := httptest.NewRecorder()
	handler.LockoutStatus(w, req)
	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestCheckRateLimit_Allowed(t *testing.T) {
	mockRateLimit := &handlers.MockRateLimitService{
		CheckFunc: func(ctx context.Context, subject, action string) (*models.RateLimitResult, error) {
			assert.Equal(t, "user@example.com", subject)
			assert.Equal(t, "password_reset", action)
			return &models.RateLimitResult{Allowed: true, Remaining: 2, Message: "OK"}, nil
		},
	}

	handler := handlers.NewSecurityHandler(&handlers.MockSecurityService{}, mockRateLimit, &handlers.MockCaptchaVerifier{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/rate-limits/check", handlers.CheckRateLimitRequest{
		Subject: "user@example.com",
		Action:  "password_reset",
	})

	w := httptest.NewRecorder()
	handler.CheckRateLimit(w, req)

	var resp models.RateLimitResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Allowed)
	assert.Equal(t, 2, resp.Remaining)
}

func TestCheckRateLimit_ExceededIsStillHTTP200(t *testing.T) {
	mockRateLimit := &handlers.MockRateLimitService{
		CheckFunc: func(ctx context.Context, subject, action string) (*models.RateLimitResult, error) {
			return &models.RateLimitResult{
				Allowed:           false,
				RetryAfterSeconds: 600,
				Message:           "Too many requests. Please try again later.",
			}, nil
		},
	}

	handler := handlers.NewSecurityHandler(&handlers.MockSecurityService{}, mockRateLimit, &handlers.MockCaptchaVerifier{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/rate-limits/check", handlers.CheckRateLimitRequest{
		Subject: "user@example.com",
		Action:  "ai_coach_daily",
	})

	w := httptest.NewRecorder()
	handler.CheckRateLimit(w, req)

	var resp models.RateLimitResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.Allowed)
	assert.Equal(t, 600, resp.RetryAfterSeconds)
}

func TestCheckRateLimit_UnknownActionRejected(t *testing.T) {
	handler := handlers.NewSecurityHandler(&handlers.MockSecurityService{}, &handlers.MockRateLimitService{}, &handlers.MockCaptchaVerifier{}, nil)

	// The validator's oneof rejects unknown actions before the service
	// is consulted.
	req := handlers.NewTestRequest(t, "POST", "/v1/rate-limits/check", handlers.CheckRateLimitRequest{
		Subject: "user@example.com",
		Action:  "made_up",
	})

	w := httptest.NewRecorder()
	handler.CheckRateLimit(w, req)
	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestVerifyCaptcha(t *testing.T) {
	mockCaptcha := &handlers.MockCaptchaVerifier{
		VerifyFunc: func(ctx context.Context, token, remoteIP string) (bool, error) {
			return token == "valid-token", nil
		},
	}

	handler := handlers.NewSecurityHandler(&handlers.MockSecurityService{}, &handlers.MockRateLimitService{}, mockCaptcha, nil)

	req := handlers.NewTestRequest(t, "POST", "/v1/captcha/verify", handlers.VerifyCaptchaRequest{Token: "valid-token"})
	w := httptest.NewRecorder()
	handler.VerifyCaptcha(w, req)

	var resp handlers.VerifyCaptchaResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Success)

	req = handlers.NewTestRequest(t, "POST", "/v1/captcha/verify", handlers.VerifyCaptchaRequest{Token: "wrong"})
	w = httptest.NewRecorder()
	handler.VerifyCaptcha(w, req)

	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.Success)
}

func TestVerifyCaptcha_VerifierErrorReadsAsNotVerified(t *testing.T) {
	mockCaptcha := &handlers.MockCaptchaVerifier{
		VerifyFunc: func(ctx context.Context, token, remoteIP string) (bool, error) {
			return false, errors.New("provider unreachable")
		},
	}

	handler := handlers.NewSecurityHandler(&handlers.MockSecurityService{}, &handlers.MockRateLimitService{}, mockCaptcha, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/captcha/verify", handlers.VerifyCaptchaRequest{Token: "any"})

	w := httptest.NewRecorder()
	handler.VerifyCaptcha(w, req)

	var resp handlers.VerifyCaptchaResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.Success)
}
