package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ehgzao/Shipper-sub001/internal/geo"
	"github.com/ehgzao/Shipper-sub001/internal/models"
	pkghttp "github.com/ehgzao/Shipper-sub001/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// MockSecurityService implements SecurityServiceInterface for testing
type MockSecurityService struct {
	RecordLoginAttemptFunc func(ctx context.Context, email string, success bool, raw geo.RawSignals) (*models.AttemptResult, error)
	IsAccountLockedFunc    func(ctx context.Context, email string) (bool, error)
}

func (m *MockSecurityService) RecordLoginAttempt(ctx context.Context, email string, success bool, raw geo.RawSignals) (*models.AttemptResult, error) {
	if m.RecordLoginAttemptFunc == nil {
		return &models.AttemptResult{Message: "Login recorded."}, nil
	}
	return m.RecordLoginAttemptFunc(ctx, email, success, raw)
}

func (m *MockSecurityService) IsAccountLocked(ctx context.Context, email string) (bool, error) {
	if m.IsAccountLockedFunc == nil {
		return false, nil
	}
	return m.IsAccountLockedFunc(ctx, email)
}

// MockRateLimitService implements RateLimitServiceInterface for testing
type MockRateLimitService struct {
	CheckFunc func(ctx context.Context, subject, action string) (*models.RateLimitResult, error)
}

func (m *MockRateLimitService) Check(ctx context.Context, subject, action string) (*models.RateLimitResult, error) {
	if m.CheckFunc == nil {
		return &models.RateLimitResult{Allowed: true, Message: "OK"}, nil
	}
	return m.CheckFunc(ctx, subject, action)
}

// MockCaptchaVerifier implements CaptchaVerifierInterface for testing
type MockCaptchaVerifier struct {
	VerifyFunc func(ctx context.Context, token, remoteIP string) (bool, error)
}

func (m *MockCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if m.VerifyFunc == nil {
		return false, nil
	}
	return m.VerifyFunc(ctx, token, remoteIP)
}

// MockAuditService implements AuditServiceInterface for testing
type MockAuditService struct {
	AppendFunc func(ctx context.Context, userID *uuid.UUID, action string, details models.AuditDetails, ipAddress, userAgent *string) error
	ListFunc   func(ctx context.Context, userID *uuid.UUID, action string, limit, offset int) ([]*models.AuditLog, error)
}

func (m *MockAuditService) Append(ctx context.Context, userID *uuid.UUID, action string, details models.AuditDetails, ipAddress, userAgent *string) error {
	if m.AppendFunc == nil {
		return nil
	}
	return m.AppendFunc(ctx, userID, action, details, ipAddress, userAgent)
}

func (m *MockAuditService) List(ctx context.Context, userID *uuid.UUID, action string, limit, offset int) ([]*models.AuditLog, error) {
	if m.ListFunc == nil {
		return []*models.AuditLog{}, nil
	}
	return m.ListFunc(ctx, userID, action, limit, offset)
}
