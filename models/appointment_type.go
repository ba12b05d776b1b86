package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Default message templates (Traditional Chinese). Placeholders are
// substituted by the notification renderer.
const (
	DefaultPatientConfirmationMessage = "{patient_name} 您好，您已成功預約 {appointment_type_name}，時間為 {appointment_datetime}，治療師：{practitioner_name}。如需更改請聯繫 {clinic_name}（{clinic_phone}）。"
	DefaultClinicConfirmationMessage  = "{practitioner_name} 您好，{patient_name} 已預約 {appointment_type_name}，時間為 {appointment_datetime}。備註：{notes}"
	DefaultReminderMessage            = "{patient_name} 您好，提醒您於 {appointment_datetime} 在 {clinic_name} 有 {appointment_type_name} 的預約。地址：{clinic_address}"
	DefaultRecurrentClinicMessage     = "{practitioner_name} 您好，{patient_name} 的 {appointment_type_name} 預約已更新為 {appointment_datetime}。"
)

// AppointmentType is a clinic-scoped bookable service item.
type AppointmentType struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ClinicID        string `gorm:"type:uuid;not null;index" json:"clinic_id"`
	Name            string `gorm:"size:100;not null" json:"name"` // unique among active rows per clinic
	Description     string `gorm:"type:text" json:"description,omitempty"`
	DurationMinutes int    `gorm:"not null" json:"duration_minutes"`

	// Booking visibility flags
	AllowNewPatientBooking            bool `gorm:"not null;default:true" json:"allow_new_patient_booking"`
	AllowExistingPatientBooking       bool `gorm:"not null;default:true" json:"allow_existing_patient_booking"`
	AllowPatientPractitionerSelection bool `gorm:"not null;default:true" json:"allow_patient_practitioner_selection"`
	AllowMultipleSlotSelection        bool `gorm:"not null;default:false" json:"allow_multiple_slot_selection"`

	SchedulingBufferMinutes int     `gorm:"not null;default:0" json:"scheduling_buffer_minutes"`
	ServiceTypeGroupID      *string `gorm:"type:uuid;index" json:"service_type_group_id,omitempty"`
	DisplayOrder            int     `gorm:"not null;default:0" json:"display_order"`

	// Per-service message templates, each with an enable flag.
	// Never persisted empty; blanks are defaulted on input.
	PatientConfirmationMessage     string `gorm:"type:text;not null" json:"patient_confirmation_message"`
	SendPatientConfirmation        bool   `gorm:"not null;default:true" json:"send_patient_confirmation"`
	ClinicConfirmationMessage      string `gorm:"type:text;not null" json:"clinic_confirmation_message"`
	SendClinicConfirmation         bool   `gorm:"not null;default:true" json:"send_clinic_confirmation"`
	ReminderMessage                string `gorm:"type:text;not null" json:"reminder_message"`
	SendReminder                   bool   `gorm:"not null;default:true" json:"send_reminder"`
	RecurrentClinicMessage         string `gorm:"type:text;not null" json:"recurrent_clinic_confirmation_message"`
	SendRecurrentClinicConfirmation bool   `gorm:"not null;default:false" json:"send_recurrent_clinic_confirmation"`

	NotesRequired     bool   `gorm:"not null;default:false" json:"notes_required"`
	NotesInstructions string `gorm:"type:text" json:"notes_instructions,omitempty"`

	// Relationships
	Clinic Clinic `gorm:"foreignKey:ClinicID" json:"-"`
}

// BeforeCreate hook to generate UUID and default blank templates
func (at *AppointmentType) BeforeCreate(tx *gorm.DB) error {
	if at.ID == "" {
		at.ID = uuid.New().String()
	}
	at.ApplyMessageDefaults()
	return nil
}

// ApplyMessageDefaults replaces empty or whitespace-only templates with
// the system defaults.
func (at *AppointmentType) ApplyMessageDefaults() {
	if strings.TrimSpace(at.PatientConfirmationMessage) == "" {
		at.PatientConfirmationMessage = DefaultPatientConfirmationMessage
	}
	if strings.TrimSpace(at.ClinicConfirmationMessage) == "" {
		at.ClinicConfirmationMessage = DefaultClinicConfirmationMessage
	}
	if strings.TrimSpace(at.ReminderMessage) == "" {
		at.ReminderMessage = DefaultReminderMessage
	}
	if strings.TrimSpace(at.RecurrentClinicMessage) == "" {
		at.RecurrentClinicMessage = DefaultRecurrentClinicMessage
	}
}

// TableName specifies the table name
func (AppointmentType) TableName() string {
	return "appointment_types"
}

// PractitionerAppointmentType links practitioners to the services they offer
type PractitionerAppointmentType struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID            string `gorm:"type:uuid;not null;index" json:"user_id"`
	AppointmentTypeID string `gorm:"type:uuid;not null;index" json:"appointment_type_id"`

	// Relationships
	User            User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	AppointmentType AppointmentType `gorm:"foreignKey:AppointmentTypeID" json:"-"`
}

// BeforeCreate hook to generate UUID
func (p *PractitionerAppointmentType) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (PractitionerAppointmentType) TableName() string {
	return "practitioner_appointment_types"
}

// BillingScenario is a per (service, practitioner) billing option
type BillingScenario struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AppointmentTypeID string `gorm:"type:uuid;not null;index" json:"appointment_type_id"`
	UserID            string `gorm:"type:uuid;not null;index" json:"user_id"`
	Name              string `gorm:"size:100;not null" json:"name"`
	Amount            int    `gorm:"not null" json:"amount"`
	RevenueShare      int    `gorm:"not null" json:"revenue_share"` // <= Amount
	IsDefault         bool   `gorm:"not null;default:false" json:"is_default"`
}

// BeforeCreate hook to generate UUID
func (b *BillingScenario) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (BillingScenario) TableName() string {
	return "billing_scenarios"
}

// Follow-up message timing modes
const (
	FollowUpTimingHoursAfter   = "hours_after"
	FollowUpTimingSpecificTime = "specific_time"
)

// FollowUpMessage is sent to the patient some time after an appointment
type FollowUpMessage struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AppointmentTypeID string  `gorm:"type:uuid;not null;index" json:"appointment_type_id"`
	TimingMode        string  `gorm:"size:20;not null" json:"timing_mode"` // hours_after | specific_time
	OffsetHours       int     `gorm:"not null;default:0" json:"offset_hours"`
	TimeOfDay         *string `gorm:"size:5" json:"time_of_day,omitempty"` // "HH:MM", for specific_time
	Template          string  `gorm:"type:text;not null" json:"template"`
	Enabled           bool    `gorm:"not null;default:true" json:"enabled"`
	DisplayOrder      int     `gorm:"not null;default:0" json:"display_order"`
}

// BeforeCreate hook to generate UUID
func (f *FollowUpMessage) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (FollowUpMessage) TableName() string {
	return "follow_up_messages"
}
