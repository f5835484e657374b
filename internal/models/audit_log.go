package models

import (
	"errors"
	"time"

	"lims/internal/uuid"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLogEntity is the entity name of the audit log itself. Writes to it
// are never audited.
const AuditLogEntity = "AuditLog"

// ErrAuditLogImmutable is returned when anything tries to modify or remove
// an audit entry.
var ErrAuditLogImmutable = errors.New("audit log entries are immutable")

// AuditLog is one append-only entry of the change history. Entity and
// EntityID reference the affected record by key only; the record may be
// deleted later without touching its history.
type AuditLog struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	Action    string         `gorm:"not null;index" json:"action"`
	Entity    string         `gorm:"not null;index:idx_audit_logs_entity" json:"entity"`
	EntityID  *string        `gorm:"index:idx_audit_logs_entity" json:"entity_id"`
	Details   string         `json:"details"`
	Changes   datatypes.JSON `json:"changes"`
	UserID    *string        `gorm:"index" json:"user_id"`
	Role      *string        `json:"role"`
	IPAddress *string        `json:"ip_address"`
	Reason    *string        `json:"reason,omitempty"`
	RequestID *string        `json:"request_id,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns a UUIDv7 to new entries.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate rejects any update to an existing entry.
func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditLogImmutable
}

// BeforeDelete rejects deletion of entries.
func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditLogImmutable
}
