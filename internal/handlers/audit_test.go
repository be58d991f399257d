package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/handlers"
	"github.com/ehgzao/Shipper-sub001/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestCreateAuditLog_Success(t *testing.T) {
	var captured struct {
		userID *uuid.UUID
		action string
		ip     *string
	}
	mockAudit := &handlers.MockAuditService{
		AppendFunc: func(ctx context.Context, userID *uuid.UUID, action string, details models.AuditDetails, ipAddress, userAgent *string) error {
			captured.userID = userID
			captured.action = action
			captured.ip = ipAddress
			return nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit, nil)
	userID := uuid.New()
	req := handlers.NewTestRequest(t, "POST", "/v1/audit-logs", handlers.CreateAuditLogRequest{
		UserID: strPtr(userID.String()),
		Action: models.AuditActionPasswordChanged,
		Details: map[string]any{
			"method": "self_service",
		},
		IP: strPtr("203.0.113.10"),
	})

	w := httptest.NewRecorder()
	handler.CreateAuditLog(w, req)

	assert.Equal(t, 201, w.Code)
	assert.Equal(t, userID, *captured.userID)
	assert.Equal(t, models.AuditActionPasswordChanged, captured.action)
	assert.Equal(t, "203.0.113.10", *captured.ip)
}

func TestCreateAuditLog_UnknownActionRejected(t *testing.T) {
	called := false
	mockAudit := &handlers.MockAuditService{
		AppendFunc: func(ctx context.Context, userID *uuid.UUID, action string, details models.AuditDetails, ipAddress, userAgent *string) error {
			called = true
			return nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/audit-logs", handlers.CreateAuditLogRequest{
		Action: "account_deleted",
	})

	w := httptest.NewRecorder()
	handler.CreateAuditLog(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
	assert.False(t, called, "unknown actions must never reach the service")
}

func TestCreateAuditLog_InvalidUserID(t *testing.T) {
	handler := handlers.NewAuditHandler(&handlers.MockAuditService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/audit-logs", handlers.CreateAuditLogRequest{
		UserID: strPtr("not-a-uuid"),
		Action: models.AuditActionLoginFailed,
	})

	w := httptest.NewRecorder()
	handler.CreateAuditLog(w, req)
	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestCreateAuditLog_FallsBackToClientIP(t *testing.T) {
	var captured *string
	mockAudit := &handlers.MockAuditService{
		AppendFunc: func(ctx context.Context, userID *uuid.UUID, action string, details models.AuditDetails, ipAddress, userAgent *string) error {
			captured = ipAddress
			return nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/audit-logs", handlers.CreateAuditLogRequest{
		Action: models.AuditActionLoginFailed,
	})
	req.RemoteAddr = "198.51.100.7:44123"

	w := httptest.NewRecorder()
	handler.CreateAuditLog(w, req)

	assert.Equal(t, 201, w.Code)
	assert.NotNil(t, captured)
	assert.Equal(t, "198.51.100.7", *captured)
}

func TestListAuditLogs(t *testing.T) {
	userID := uuid.New()
	ip := "203.0.113.10"
	mockAudit := &handlers.MockAuditService{
		ListFunc: func(ctx context.Context, filterID *uuid.UUID, action string, limit, offset int) ([]*models.AuditLog, error) {
			assert.Equal(t, userID, *filterID)
			assert.Equal(t, models.AuditActionAccountLocked, action)
			assert.Equal(t, 10, limit)
			assert.Equal(t, 20, offset)
			return []*models.AuditLog{
				{
					ID:        uuid.New(),
					UserID:    &userID,
					Action:    models.AuditActionAccountLocked,
					Details:   models.AuditDetails{"failure_count": float64(5)},
					IPAddress: &ip,
					CreatedAt: time.Now().UTC(),
				},
			}, nil
		},
	}

	handler := handlers.NewAuditHandler(mockAudit, nil)
	url := "/v1/audit-logs?user_id=" + userID.String() + "&action=account_locked&limit=10&offset=20"
	req := httptest.NewRequest("GET", url, nil)

	w := httptest.NewRecorder()
	handler.ListAuditLogs(w, req)

	var resp []handlers.AuditLogResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp, 1)
	assert.Equal(t, "account_locked", resp[0].Action)
	assert.Equal(t, userID.String(), *resp[0].UserID)
	assert.Equal(t, ip, *resp[0].IPAddress)
}

func TestListAuditLogs_InvalidUserID(t *testing.T) {
	handler := handlers.NewAuditHandler(&handlers.MockAuditService{}, nil)
	req := httptest.NewRequest("GET", "/v1/audit-logs?user_id=nope", nil)

	w := httptest.NewRecorder()
	handler.ListAuditLogs(w, req)
	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestListAuditLogs_EmptyResult(t *testing.T) {
	handler := handlers.NewAuditHandler(&handlers.MockAuditService{}, nil)
	req := httptest.NewRequest("GET", "/v1/audit-logs", nil)

	w := httptest.NewRecorder()
	handler.ListAuditLogs(w, req)

	var resp []handlers.AuditLogResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Empty(t, resp)
}
