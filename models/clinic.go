package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Clinic is the tenant. Every other record is scoped to one clinic.
type Clinic struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name string `gorm:"not null" json:"name"`

	// Settings holds the validated JSON settings document (see services/settings.go)
	Settings string `gorm:"type:text;not null;default:'{}'" json:"-"`

	// LiffAccessToken replaces the clinic id in patient-facing URLs to
	// prevent enumeration. Unique across all clinics.
	LiffAccessToken *string `gorm:"size:64;uniqueIndex" json:"-"`

	IsActive bool `gorm:"not null;default:true" json:"is_active"`
}

// BeforeCreate hook to generate UUID
func (c *Clinic) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for Clinic model
func (Clinic) TableName() string {
	return "clinics"
}
