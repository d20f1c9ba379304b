package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionIssueToken     AuditAction = "ISSUE_TOKEN"
	AuditActionRegisterTarget AuditAction = "REGISTER_TARGET"
	AuditActionUpdateTarget   AuditAction = "UPDATE_TARGET"
	AuditActionDeleteTarget   AuditAction = "DELETE_TARGET"
	AuditActionRotateSecret   AuditAction = "ROTATE_SECRET"
)

// AuditLog records a single administrative action.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Actor        string      `json:"actor,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
