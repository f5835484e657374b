package models

import (
	"time"

	"lims/internal/uuid"

	"gorm.io/gorm"
)

// Base contains the common columns of every tracked record.
type Base struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// GetID returns the record's primary key.
func (b *Base) GetID() string { return b.ID }

// BeforeCreate assigns a UUIDv7 to records created without an explicit id.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
	}
	return nil
}
