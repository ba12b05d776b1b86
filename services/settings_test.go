package services

import (
	"testing"

	"clinic_flow_app_go/models"

	"github.com/stretchr/testify/assert"
)

func TestGetClinicSettings(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)

	t.Run("empty document reads as defaults", func(t *testing.T) {
		settings, err := GetClinicSettings(db, clinic.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.DefaultClinicSettings(), *settings)
	})

	t.Run("stored values overlay the defaults", func(t *testing.T) {
		stored := `{"booking_restriction_settings":{"minimum_booking_hours_ahead":48}}`
		assert.NoError(t, db.Model(clinic).Update("settings", stored).Error)

		settings, err := GetClinicSettings(db, clinic.ID)
		assert.NoError(t, err)
		assert.Equal(t, 48, settings.BookingRestrictionSettings.MinimumBookingHoursAhead)
		// Untouched siblings keep their defaults
		assert.Equal(t, 30, settings.BookingRestrictionSettings.StepSizeMinutes)
		assert.Equal(t, 24, settings.NotificationSettings.ReminderHoursBefore)
	})

	t.Run("legacy restriction mode migrates on read", func(t *testing.T) {
		stored := `{"booking_restriction_settings":{"booking_restriction_type":"same_day_disallowed"}}`
		assert.NoError(t, db.Model(clinic).Update("settings", stored).Error)

		settings, err := GetClinicSettings(db, clinic.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.BookingRestrictionMinimumHours, settings.BookingRestrictionSettings.BookingRestrictionType)
		assert.Equal(t, 24, settings.BookingRestrictionSettings.MinimumBookingHoursAhead)
	})

	t.Run("missing clinic", func(t *testing.T) {
		_, err := GetClinicSettings(db, "no-such-clinic")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateClinicSettings(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)

	t.Run("partial update preserves siblings", func(t *testing.T) {
		payload := `{"booking_restriction_settings":{"max_future_appointments":5}}`
		updated, err := UpdateClinicSettings(db, clinic.ID, []byte(payload))
		assert.NoError(t, err)
		assert.Equal(t, 5, updated.BookingRestrictionSettings.MaxFutureAppointments)
		assert.Equal(t, 30, updated.BookingRestrictionSettings.StepSizeMinutes)

		payload = `{"notification_settings":{"reminder_hours_before":48}}`
		updated, err = UpdateClinicSettings(db, clinic.ID, []byte(payload))
		assert.NoError(t, err)
		assert.Equal(t, 48, updated.NotificationSettings.ReminderHoursBefore)
		// The earlier write survives the second merge
		assert.Equal(t, 5, updated.BookingRestrictionSettings.MaxFutureAppointments)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		payload := `{"booking_restriction_settings":{"no_such_field":1}}`
		_, err := UpdateClinicSettings(db, clinic.ID, []byte(payload))
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)

		payload = `{"mystery_section":{}}`
		_, err = UpdateClinicSettings(db, clinic.ID, []byte(payload))
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("out-of-range values fail validation", func(t *testing.T) {
		payload := `{"booking_restriction_settings":{"step_size_minutes":240}}`
		_, err := UpdateClinicSettings(db, clinic.ID, []byte(payload))
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)

		// The rejected write left nothing behind
		settings, err := GetClinicSettings(db, clinic.ID)
		assert.NoError(t, err)
		assert.Equal(t, 30, settings.BookingRestrictionSettings.StepSizeMinutes)
	})

	t.Run("instruction markup is stripped", func(t *testing.T) {
		payload := `{"clinic_info_settings":{"query_page_instructions":"<script>alert(1)</script>請提前十分鐘報到"}}`
		updated, err := UpdateClinicSettings(db, clinic.ID, []byte(payload))
		assert.NoError(t, err)
		assert.Equal(t, "請提前十分鐘報到", updated.ClinicInfoSettings.QueryPageInstructions)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := UpdateClinicSettings(db, clinic.ID, []byte(`{"broken`))
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestLiffTokens(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)

	t.Run("regeneration rotates the token", func(t *testing.T) {
		first, err := RegenerateLiffToken(db, clinic.ID)
		assert.NoError(t, err)
		assert.NotEmpty(t, first)

		second, err := RegenerateLiffToken(db, clinic.ID)
		assert.NoError(t, err)
		assert.NotEqual(t, first, second)

		var reloaded models.Clinic
		assert.NoError(t, db.First(&reloaded, "id = ?", clinic.ID).Error)
		assert.Equal(t, second, *reloaded.LiffAccessToken)
	})

	t.Run("deep links carry the token", func(t *testing.T) {
		var reloaded models.Clinic
		assert.NoError(t, db.First(&reloaded, "id = ?", clinic.ID).Error)

		urls := BuildLiffURLs("https://app.example.com", &reloaded)
		assert.Len(t, urls, len(LiffModes))
		assert.Equal(t, "https://app.example.com/liff/book?token="+*reloaded.LiffAccessToken, urls["book"])

		reschedule := BuildRescheduleLiffURL("https://app.example.com", &reloaded, "apt-1")
		assert.Contains(t, reschedule, "appointmentId=apt-1")
	})

	t.Run("no token means no links", func(t *testing.T) {
		bare := &models.Clinic{}
		assert.Empty(t, BuildLiffURLs("https://app.example.com", bare))
		assert.Empty(t, BuildRescheduleLiffURL("https://app.example.com", bare, "apt-1"))
	})
}
