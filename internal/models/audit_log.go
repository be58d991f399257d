package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Closed taxonomy of security-relevant audit actions. The audit API
// rejects anything outside this set.
const (
	AuditActionLoginSuccess           = "login_success"
	AuditActionLoginFailed            = "login_failed"
	AuditActionAccountLocked          = "account_locked"
	AuditActionAccountUnlocked        = "account_unlocked"
	AuditActionSuspiciousLogin        = "suspicious_login"
	AuditActionImpossibleTravel       = "impossible_travel"
	AuditActionPasswordResetRequested = "password_reset_requested"
	AuditActionPasswordChanged        = "password_changed"
	AuditActionTwoFactorEnabled       = "two_factor_enabled"
	AuditActionTwoFactorDisabled      = "two_factor_disabled"
	AuditActionSessionRevoked         = "session_revoked"
	AuditActionAdminRoleChanged       = "admin_role_changed"
	AuditActionAdminDataViewed        = "admin_data_viewed"
	AuditActionRateLimitAdjusted      = "rate_limit_adjusted"
	AuditActionRecoveryMethodChanged  = "recovery_method_changed"
)

var auditActions = map[string]struct{}{
	AuditActionLoginSuccess:           {},
	AuditActionLoginFailed:            {},
	AuditActionAccountLocked:          {},
	AuditActionAccountUnlocked:        {},
	AuditActionSuspiciousLogin:        {},
	AuditActionImpossibleTravel:       {},
	AuditActionPasswordResetRequested: {},
	AuditActionPasswordChanged:        {},
	AuditActionTwoFactorEnabled:       {},
	AuditActionTwoFactorDisabled:      {},
	AuditActionSessionRevoked:         {},
	AuditActionAdminRoleChanged:       {},
	AuditActionAdminDataViewed:        {},
	AuditActionRateLimitAdjusted:      {},
	AuditActionRecoveryMethodChanged:  {},
}

// IsValidAuditAction reports whether action belongs to the taxonomy.
func IsValidAuditAction(action string) bool {
	_, ok := auditActions[action]
	return ok
}

// AuditLog is an append-only record of a security-relevant action.
// Entries are never updated or deleted by this core.
type AuditLog struct {
	ID        uuid.UUID    `db:"id"`
	UserID    *uuid.UUID   `db:"user_id"`
	Action    string       `db:"action"`
	Details   AuditDetails `db:"details"`
	IPAddress *string      `db:"ip_address"`
	UserAgent *string      `db:"user_agent"`
	CreatedAt time.Time    `db:"created_at"`
}

// AuditDetails holds the structured detail payload for an audit entry
type AuditDetails map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (ad *AuditDetails) Scan(value interface{}) error {
	if value == nil {
		*ad = make(AuditDetails)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*ad = AuditDetails(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (ad AuditDetails) Value() (driver.Value, error) {
	if ad == nil {
		return nil, nil
	}
	return json.Marshal(ad)
}

// MarshalJSON implements json.Marshaler
func (ad AuditDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(ad))
}

// UnmarshalJSON implements json.Unmarshaler
func (ad *AuditDetails) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*ad = AuditDetails(m)
	return nil
}
