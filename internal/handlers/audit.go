package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ehgzao/Shipper-sub001/internal/models"
	pkghttp "github.com/ehgzao/Shipper-sub001/pkg/http"
	"github.com/google/uuid"
)

// AuditServiceInterface defines the audit operations the handler needs
type AuditServiceInterface interface {
	Append(ctx context.Context, userID *uuid.UUID, action string, details models.AuditDetails, ipAddress, userAgent *string) error
	List(ctx context.Context, userID *uuid.UUID, action string, limit, offset int) ([]*models.AuditLog, error)
}

// AuditHandler handles audit log creation and forensic listing
type AuditHandler struct {
	service  AuditServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditServiceInterface, ipConfig *pkghttp.IPConfig) *AuditHandler {
	return &AuditHandler{service: service, ipConfig: ipConfig}
}

// CreateAuditLogRequest represents the request body for an audit append
type CreateAuditLogRequest struct {
	UserID    *string        `json:"user_id" validate:"omitempty,uuid"`
	Action    string         `json:"action" validate:"required"`
	Details   map[string]any `json:"details"`
	IP        *string        `json:"ip" validate:"omitempty,ip"`
	UserAgent *string        `json:"user_agent"`
}

// AuditLogResponse represents one audit entry in listings
type AuditLogResponse struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress *string        `json:"ip_address,omitempty"`
	UserAgent *string        `json:"user_agent,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// CreateAuditLog handles POST /v1/audit-logs
func (h *AuditHandler) CreateAuditLog(w http.ResponseWriter, r *http.Request) {
	var req CreateAuditLogRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if !models.IsValidAuditAction(req.Action) {
		pkghttp.WriteBadRequest(w, "Unknown audit action")
		return
	}

	var userID *uuid.UUID
	if req.UserID != nil {
		parsed, err := uuid.Parse(*req.UserID)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid user_id")
			return
		}
		userID = &parsed
	}

	ip := req.IP
	if ip == nil {
		clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)
		ip = &clientIP
	}

	if err := h.service.Append(r.Context(), userID, req.Action, req.Details, ip, req.UserAgent); err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Unknown audit action")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// ListAuditLogs handles GET /v1/audit-logs
func (h *AuditHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid user_id")
			return
		}
		userID = &parsed
	}

	action := r.URL.Query().Get("action")
	limit := parseQueryInt(r, "limit", 50)
	offset := parseQueryInt(r, "offset", 0)

	logs, err := h.service.List(r.Context(), userID, action, limit, offset)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Unknown audit action")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]AuditLogResponse, 0, len(logs))
	for _, log := range logs {
		entry := AuditLogResponse{
			ID:        log.ID.String(),
			Action:    log.Action,
			Details:   log.Details,
			IPAddress: log.IPAddress,
			UserAgent: log.UserAgent,
			CreatedAt: log.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if log.UserID != nil {
			id := log.UserID.String()
			entry.UserID = &id
		}
		resp = append(resp, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func parseQueryInt(r *http.Request, key string, defaultVal int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			return val
		}
	}
	return defaultVal
}
