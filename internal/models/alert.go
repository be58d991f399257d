package models

// AlertType identifies a class of security alert.
type AlertType string

const (
	AlertTypeAccountLocked    AlertType = "account_locked"
	AlertTypeImpossibleTravel AlertType = "impossible_travel"
	AlertTypeSuspiciousLogin  AlertType = "suspicious_login"
)

// SecurityAlert is a derived event produced by an authoritative state
// transition (lock, anomaly detection). It is consumed immediately by
// the dispatcher and persisted only through the audit log.
type SecurityAlert struct {
	Type  AlertType
	Email string
	// UserName is optional display context for user-facing channels.
	UserName string
	// UserFacing forces delivery to the user channel for alert types
	// that are admin-only by default.
	UserFacing bool
	Details    map[string]any
}

// NotifiesUser reports whether the alert goes to the affected user's
// channel in addition to the admin channel.
func (a *SecurityAlert) NotifiesUser() bool {
	switch a.Type {
	case AlertTypeAccountLocked, AlertTypeImpossibleTravel:
		return true
	default:
		return a.UserFacing
	}
}
