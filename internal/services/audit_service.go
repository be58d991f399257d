package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ehgzao/Shipper-sub001/internal/models"
	pkglogger "github.com/ehgzao/Shipper-sub001/pkg/logger"
	"github.com/google/uuid"
)

// AuditLogRepository defines the data access the audit writer needs
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	List(ctx context.Context, userID *uuid.UUID, action string, limit, offset int) ([]*models.AuditLog, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

// AuditService is the append-only audit writer with a dual-write
// pattern: the process log line goes out first, then the database
// insert. A failed insert is surfaced to the fallback channel and
// never aborts the security decision that produced the entry.
type AuditService struct {
	repo        AuditLogRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuditService {
	return &AuditService{
		repo:        repo,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Append writes exactly one audit entry for a security-relevant action.
// The action must belong to the closed taxonomy.
func (s *AuditService) Append(ctx context.Context, userID *uuid.UUID, action string, details models.AuditDetails, ipAddress, userAgent *string) error {
	if !models.IsValidAuditAction(action) {
		return fmt.Errorf("%w: audit action %q", models.ErrBadRequest, action)
	}

	event := pkglogger.AuditEvent{
		Action:  action,
		Success: true,
	}
	if userID != nil {
		event.UserID = userID.String()
	}
	if ipAddress != nil {
		event.IPAddress = *ipAddress
	}
	if userAgent != nil {
		event.UserAgent = *userAgent
	}
	s.auditLogger.LogSecurityEvent(event)

	entry := &models.AuditLog{
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	if _, err := s.repo.Create(ctx, entry); err != nil {
		// Fail safe: the process-log line above is the durable record.
		s.auditLogger.LogPersistFailure(action, err)
		return nil
	}

	return nil
}

// List retrieves audit entries for forensic review
func (s *AuditService) List(ctx context.Context, userID *uuid.UUID, action string, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if action != "" && !models.IsValidAuditAction(action) {
		return nil, fmt.Errorf("%w: audit action %q", models.ErrBadRequest, action)
	}

	logs, err := s.repo.List(ctx, userID, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	return logs, nil
}

// CountForUser returns the number of audit entries for a user
func (s *AuditService) CountForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.CountByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return count, nil
}
