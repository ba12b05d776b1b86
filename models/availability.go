package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PractitionerAvailability is one interval of the weekly working-hours
// template: (practitioner, clinic, day-of-week, start, end). A day may
// carry multiple non-overlapping intervals.
type PractitionerAvailability struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID    string `gorm:"type:uuid;not null;index" json:"user_id"`
	ClinicID  string `gorm:"type:uuid;not null;index" json:"clinic_id"`
	DayOfWeek int    `gorm:"not null" json:"day_of_week"`        // 0=Sunday...6=Saturday
	StartTime string `gorm:"size:5;not null" json:"start_time"` // "09:00"
	EndTime   string `gorm:"size:5;not null" json:"end_time"`   // "17:00"

	// Relationships
	User   User   `gorm:"foreignKey:UserID" json:"-"`
	Clinic Clinic `gorm:"foreignKey:ClinicID" json:"-"`
}

// BeforeCreate hook to generate UUID
func (a *PractitionerAvailability) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (PractitionerAvailability) TableName() string {
	return "practitioner_availabilities"
}
