package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Receipt statuses
const (
	ReceiptStatusIssued = "issued"
	ReceiptStatusVoided = "voided"
)

// Receipt records the billing document issued for an appointment.
// Rendering happens on the frontend; the backend tracks issuance so
// the calendar can show which visits are settled.
type Receipt struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ClinicID      string `gorm:"type:uuid;not null;index" json:"clinic_id"`
	AppointmentID string `gorm:"type:uuid;not null;uniqueIndex" json:"appointment_id"`
	Status        string `gorm:"size:30;not null;default:'issued'" json:"status"`
	Amount        int    `gorm:"not null;default:0" json:"amount"`

	// Relationships
	Appointment Appointment `gorm:"foreignKey:AppointmentID" json:"-"`
}

// BeforeCreate hook to generate UUID
func (r *Receipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for Receipt model
func (Receipt) TableName() string {
	return "receipts"
}
