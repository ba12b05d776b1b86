package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Patient is a clinic-scoped person record, optionally linked to a
// messaging-platform identity.
type Patient struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ClinicID string     `gorm:"type:uuid;not null;index" json:"clinic_id"`
	Name     string     `gorm:"size:200;not null" json:"name"`
	Phone    *string    `gorm:"size:20" json:"phone,omitempty"`
	Birthday *time.Time `gorm:"type:date" json:"birthday,omitempty"`
	Gender   *string    `gorm:"size:10" json:"gender,omitempty"`

	LineUserID *string   `gorm:"type:uuid;index" json:"line_user_id,omitempty"`
	LineUser   *LineUser `gorm:"foreignKey:LineUserID" json:"line_user,omitempty"`

	// Relationships
	Clinic Clinic `gorm:"foreignKey:ClinicID" json:"-"`
}

// BeforeCreate hook to generate UUID
func (p *Patient) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for Patient model
func (Patient) TableName() string {
	return "patients"
}

// LineUser is a messaging-platform identity, one row per
// (external user id, clinic).
type LineUser struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ClinicID string `gorm:"type:uuid;not null;index:idx_line_user_clinic,unique" json:"clinic_id"`
	LineID   string `gorm:"size:64;not null;index:idx_line_user_clinic,unique" json:"line_id"`

	DisplayName       string  `gorm:"size:200" json:"display_name"`
	ClinicDisplayName *string `gorm:"size:200" json:"clinic_display_name,omitempty"`

	// AI chat opt-out with audit fields
	AIDisabled     bool       `gorm:"not null;default:false" json:"ai_disabled"`
	AIDisabledAt   *time.Time `json:"ai_disabled_at,omitempty"`
	AIDisabledByID *string    `gorm:"type:uuid" json:"ai_disabled_by_id,omitempty"`

	// Relationships
	Clinic Clinic `gorm:"foreignKey:ClinicID" json:"-"`
}

// BeforeCreate hook to generate UUID
func (l *LineUser) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for LineUser model
func (LineUser) TableName() string {
	return "line_users"
}

// EffectiveDisplayName prefers the clinic-overridden name
func (l *LineUser) EffectiveDisplayName() string {
	if l.ClinicDisplayName != nil && *l.ClinicDisplayName != "" {
		return *l.ClinicDisplayName
	}
	return l.DisplayName
}
