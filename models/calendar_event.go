package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Calendar event types
const (
	EventTypeAppointment           = "appointment"
	EventTypeAvailabilityException = "availability_exception"
)

// Appointment status constants
const (
	AppointmentStatusConfirmed         = "confirmed"
	AppointmentStatusCanceledByPatient = "canceled_by_patient"
	AppointmentStatusCanceledByClinic  = "canceled_by_clinic"
)

// MinutesPerDay is the upper bound of a day's minute range
const MinutesPerDay = 24 * 60

// CalendarEvent is the unified temporal record. It exclusively owns at
// most one Appointment or one AvailabilityException.
type CalendarEvent struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	ClinicID  string    `gorm:"type:uuid;not null;index" json:"clinic_id"`
	EventType string    `gorm:"size:30;not null;index" json:"event_type"`
	Date      time.Time `gorm:"type:date;not null;index" json:"date"`

	// Nullable for all-day availability exceptions
	StartTime *string `gorm:"size:5" json:"start_time,omitempty"` // "HH:MM"
	EndTime   *string `gorm:"size:5" json:"end_time,omitempty"`   // "HH:MM"

	DisplayName *string `gorm:"size:200" json:"display_name,omitempty"`

	// Relationships (deletion cascades to the owned record)
	User                  User                   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Appointment           *Appointment           `gorm:"foreignKey:CalendarEventID;constraint:OnDelete:CASCADE" json:"appointment,omitempty"`
	AvailabilityException *AvailabilityException `gorm:"foreignKey:CalendarEventID;constraint:OnDelete:CASCADE" json:"availability_exception,omitempty"`
}

// BeforeCreate hook to generate UUID
func (e *CalendarEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (CalendarEvent) TableName() string {
	return "calendar_events"
}

// MinuteRange returns the event's [start, end) interval in minutes
// since midnight. A nil start or end (all-day) maps to [0, 1440).
func (e *CalendarEvent) MinuteRange() (int, int) {
	if e.StartTime == nil || e.EndTime == nil {
		return 0, MinutesPerDay
	}
	return clockToMinutes(*e.StartTime), clockToMinutes(*e.EndTime)
}

// Overlaps reports whether the event overlaps [startMin, endMin) on the
// same date.
func (e *CalendarEvent) Overlaps(startMin, endMin int) bool {
	s, en := e.MinuteRange()
	return s < endMin && en > startMin
}

// clockToMinutes parses "HH:MM" into minutes since midnight.
// Malformed values collapse to 0; persisted values are validated on ingress.
func clockToMinutes(v string) int {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0
	}
	return t.Hour()*60 + t.Minute()
}

// Appointment is the scheduling record owned by a CalendarEvent.
type Appointment struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CalendarEventID   string `gorm:"type:uuid;uniqueIndex;not null" json:"calendar_event_id"`
	PatientID         string `gorm:"type:uuid;not null;index" json:"patient_id"`
	AppointmentTypeID string `gorm:"type:uuid;not null;index" json:"appointment_type_id"`

	Status      string  `gorm:"size:30;not null;default:'confirmed';index" json:"status"`
	Notes       *string `gorm:"type:text" json:"notes,omitempty"`        // patient-visible
	ClinicNotes *string `gorm:"type:text" json:"clinic_notes,omitempty"` // internal

	// Auto-assignment lifecycle. IsAutoAssigned only ever transitions
	// true -> false; OriginallyAutoAssigned never changes after create.
	IsAutoAssigned         bool    `gorm:"not null;default:false;index" json:"is_auto_assigned"`
	OriginallyAutoAssigned bool    `gorm:"not null;default:false" json:"originally_auto_assigned"`
	ReassignedByUserID     *string `gorm:"type:uuid" json:"reassigned_by_user_id,omitempty"`

	CanceledAt *time.Time `json:"canceled_at,omitempty"`

	// Multi-slot selection: true while the clinic has not confirmed one
	// of >= 2 patient-submitted candidate slots.
	PendingTimeConfirmation bool   `gorm:"not null;default:false" json:"pending_time_confirmation"`
	AlternativeTimeSlots    string `gorm:"type:text;not null;default:'[]'" json:"-"` // JSON array of "HH:MM"

	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`

	// Relationships
	CalendarEvent   CalendarEvent   `gorm:"foreignKey:CalendarEventID" json:"calendar_event,omitempty"`
	Patient         Patient         `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	AppointmentType AppointmentType `gorm:"foreignKey:AppointmentTypeID" json:"appointment_type,omitempty"`
}

// BeforeCreate hook to generate UUID
func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AlternativeTimeSlots == "" {
		a.AlternativeTimeSlots = "[]"
	}
	return nil
}

// TableName specifies the table name
func (Appointment) TableName() string {
	return "appointments"
}

// IsCancelled reports whether the appointment was cancelled by anyone
func (a *Appointment) IsCancelled() bool {
	return a.Status == AppointmentStatusCanceledByPatient || a.Status == AppointmentStatusCanceledByClinic
}

// AlternativeSlots decodes the stored candidate start times
func (a *Appointment) AlternativeSlots() []string {
	var slots []string
	if err := json.Unmarshal([]byte(a.AlternativeTimeSlots), &slots); err != nil {
		return nil
	}
	return slots
}

// SetAlternativeSlots encodes candidate start times for persistence
func (a *Appointment) SetAlternativeSlots(slots []string) {
	if len(slots) == 0 {
		a.AlternativeTimeSlots = "[]"
		return
	}
	raw, _ := json.Marshal(slots)
	a.AlternativeTimeSlots = string(raw)
}

// AvailabilityException blocks a practitioner's schedule in a window.
// Overlapping appointments stay valid but show as outside hours.
type AvailabilityException struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CalendarEventID string `gorm:"type:uuid;uniqueIndex;not null" json:"calendar_event_id"`
	Reason          string `gorm:"size:200" json:"reason,omitempty"`

	// Relationships
	CalendarEvent CalendarEvent `gorm:"foreignKey:CalendarEventID" json:"calendar_event,omitempty"`
}

// BeforeCreate hook to generate UUID
func (x *AvailabilityException) BeforeCreate(tx *gorm.DB) error {
	if x.ID == "" {
		x.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (AvailabilityException) TableName() string {
	return "availability_exceptions"
}
