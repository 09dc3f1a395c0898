package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction classifies a mutating API call.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionLogin  AuditAction = "login"
	AuditActionLogout AuditAction = "logout"
	AuditActionExport AuditAction = "export"
)

// AuditResult records whether the audited call succeeded.
type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditLog is one entry in the audit trail.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       *uuid.UUID  `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Result       AuditResult `json:"result"`
	Details      string      `json:"details,omitempty"`
	IPAddress    string      `json:"ip_address,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewAuditLog creates an audit entry for a resource action.
func NewAuditLog(action AuditAction, resourceType string, result AuditResult) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		Result:       result,
		CreatedAt:    time.Now(),
	}
}

// WithUser attaches the acting user.
func (l *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	l.UserID = &userID
	return l
}

// WithResource attaches the affected resource ID.
func (l *AuditLog) WithResource(id string) *AuditLog {
	l.ResourceID = id
	return l
}

// WithDetails attaches free-form detail text.
func (l *AuditLog) WithDetails(details string) *AuditLog {
	l.Details = details
	return l
}

// WithIP attaches the client address.
func (l *AuditLog) WithIP(ip string) *AuditLog {
	l.IPAddress = ip
	return l
}
