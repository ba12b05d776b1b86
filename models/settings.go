package models

// Booking restriction modes
const (
	BookingRestrictionMinimumHours      = "minimum_hours_required"
	BookingRestrictionDeadlineDayBefore = "deadline_time_day_before"
	// Legacy value, migrated to minimum_hours_required on read and write
	BookingRestrictionSameDayDisallowed = "same_day_disallowed"
)

// Reminder timing modes
const (
	ReminderTimingHoursBefore     = "hours_before"
	ReminderTimingPreviousDayTime = "previous_day_time"
)

// NotificationSettings controls the patient reminder job
type NotificationSettings struct {
	ReminderHoursBefore     int    `json:"reminder_hours_before" validate:"min=1,max=168"`
	ReminderTimingMode      string `json:"reminder_timing_mode" validate:"oneof=hours_before previous_day_time"`
	ReminderPreviousDayTime string `json:"reminder_previous_day_time" validate:"datetime=15:04"`
}

// BookingRestrictionSettings gates patient-initiated mutations
type BookingRestrictionSettings struct {
	BookingRestrictionType         string `json:"booking_restriction_type" validate:"oneof=minimum_hours_required deadline_time_day_before"`
	MinimumBookingHoursAhead       int    `json:"minimum_booking_hours_ahead" validate:"min=1,max=168"`
	DeadlineTimeDayBefore          string `json:"deadline_time_day_before" validate:"datetime=15:04"`
	DeadlineOnSameDay              bool   `json:"deadline_on_same_day"`
	StepSizeMinutes                int    `json:"step_size_minutes" validate:"min=5,max=60"`
	MaxFutureAppointments          int    `json:"max_future_appointments" validate:"min=1,max=100"`
	MaxBookingWindowDays           int    `json:"max_booking_window_days" validate:"min=1,max=365"`
	MinimumCancellationHoursBefore int    `json:"minimum_cancellation_hours_before" validate:"min=1,max=168"`
	AllowPatientDeletion           bool   `json:"allow_patient_deletion"`
}

// ClinicInfoSettings holds patient-facing clinic information
type ClinicInfoSettings struct {
	DisplayName                     string `json:"display_name"`
	Address                         string `json:"address"`
	PhoneNumber                     string `json:"phone_number"`
	AppointmentTypeInstructions     string `json:"appointment_type_instructions"`
	AppointmentNotesInstructions    string `json:"appointment_notes_instructions"`
	RequireBirthday                 bool   `json:"require_birthday"`
	RequireGender                   bool   `json:"require_gender"`
	RestrictToAssignedPractitioners bool   `json:"restrict_to_assigned_practitioners"`
	QueryPageInstructions           string `json:"query_page_instructions"`
	SettingsPageInstructions        string `json:"settings_page_instructions"`
	NotificationsPageInstructions   string `json:"notifications_page_instructions"`
}

// ChatSettings controls the AI chat agent surface
type ChatSettings struct {
	ChatEnabled     bool   `json:"chat_enabled"`
	LabelAIReplies  bool   `json:"label_ai_replies"`
	GreetingMessage string `json:"greeting_message"`
	SystemPrompt    string `json:"system_prompt"`
}

// ReceiptSettings controls receipt rendering
type ReceiptSettings struct {
	CustomNotes string `json:"custom_notes"`
	ShowStamp   bool   `json:"show_stamp"`
}

// ClinicSettings is the full per-clinic settings document persisted as
// JSON on the clinics row.
type ClinicSettings struct {
	NotificationSettings       NotificationSettings       `json:"notification_settings"`
	BookingRestrictionSettings BookingRestrictionSettings `json:"booking_restriction_settings"`
	ClinicInfoSettings         ClinicInfoSettings         `json:"clinic_info_settings"`
	ChatSettings               ChatSettings               `json:"chat_settings"`
	ReceiptSettings            ReceiptSettings            `json:"receipt_settings"`
}

// DefaultClinicSettings returns the settings applied to new clinics
func DefaultClinicSettings() ClinicSettings {
	return ClinicSettings{
		NotificationSettings: NotificationSettings{
			ReminderHoursBefore:     24,
			ReminderTimingMode:      ReminderTimingHoursBefore,
			ReminderPreviousDayTime: "20:00",
		},
		BookingRestrictionSettings: BookingRestrictionSettings{
			BookingRestrictionType:         BookingRestrictionMinimumHours,
			MinimumBookingHoursAhead:       24,
			DeadlineTimeDayBefore:          "21:00",
			DeadlineOnSameDay:              false,
			StepSizeMinutes:                30,
			MaxFutureAppointments:          3,
			MaxBookingWindowDays:           60,
			MinimumCancellationHoursBefore: 24,
			AllowPatientDeletion:           true,
		},
		ClinicInfoSettings: ClinicInfoSettings{},
		ChatSettings: ChatSettings{
			ChatEnabled:    false,
			LabelAIReplies: true,
		},
		ReceiptSettings: ReceiptSettings{
			ShowStamp: true,
		},
	}
}

// MigrateLegacyBookingRestriction rewrites the deprecated
// same_day_disallowed mode in place. Applied on both read and write.
func (s *ClinicSettings) MigrateLegacyBookingRestriction() {
	if s.BookingRestrictionSettings.BookingRestrictionType == BookingRestrictionSameDayDisallowed {
		s.BookingRestrictionSettings.BookingRestrictionType = BookingRestrictionMinimumHours
		if s.BookingRestrictionSettings.MinimumBookingHoursAhead == 0 {
			s.BookingRestrictionSettings.MinimumBookingHoursAhead = 24
		}
	}
}
