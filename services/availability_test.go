package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplaceWeeklyAvailability(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)
	alice := makePractitioner(t, db, clinic.ID, "Alice")

	t.Run("replaces the whole template", func(t *testing.T) {
		slots, err := ReplaceWeeklyAvailability(db, clinic.ID, alice, []WeeklySlotInput{
			{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"},
			{DayOfWeek: 1, StartTime: "14:00", EndTime: "18:00"},
			{DayOfWeek: 3, StartTime: "09:00", EndTime: "17:00"},
		})
		assert.NoError(t, err)
		assert.Len(t, slots, 3)

		// A second replace drops the old rows entirely
		slots, err = ReplaceWeeklyAvailability(db, clinic.ID, alice, []WeeklySlotInput{
			{DayOfWeek: 2, StartTime: "10:00", EndTime: "16:00"},
		})
		assert.NoError(t, err)
		assert.Len(t, slots, 1)
		assert.Equal(t, 2, slots[0].DayOfWeek)
	})

	t.Run("overlapping windows on one day are refused", func(t *testing.T) {
		_, err := ReplaceWeeklyAvailability(db, clinic.ID, alice, []WeeklySlotInput{
			{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"},
			{DayOfWeek: 1, StartTime: "11:00", EndTime: "14:00"},
		})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("same windows on different days may overlap", func(t *testing.T) {
		_, err := ReplaceWeeklyAvailability(db, clinic.ID, alice, []WeeklySlotInput{
			{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"},
			{DayOfWeek: 2, StartTime: "09:00", EndTime: "12:00"},
		})
		assert.NoError(t, err)
	})

	t.Run("malformed windows are refused", func(t *testing.T) {
		var validationErr *ValidationError

		_, err := ReplaceWeeklyAvailability(db, clinic.ID, alice, []WeeklySlotInput{
			{DayOfWeek: 7, StartTime: "09:00", EndTime: "12:00"},
		})
		assert.ErrorAs(t, err, &validationErr)

		_, err = ReplaceWeeklyAvailability(db, clinic.ID, alice, []WeeklySlotInput{
			{DayOfWeek: 1, StartTime: "12:00", EndTime: "09:00"},
		})
		assert.ErrorAs(t, err, &validationErr)

		_, err = ReplaceWeeklyAvailability(db, clinic.ID, alice, []WeeklySlotInput{
			{DayOfWeek: 1, StartTime: "late", EndTime: "12:00"},
		})
		assert.ErrorAs(t, err, &validationErr)

		// A failed replace leaves the stored template untouched
		slots, err := GetWeeklyAvailability(db, clinic.ID, alice)
		assert.NoError(t, err)
		assert.Len(t, slots, 2)
	})
}

func TestCreateAvailabilityException(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)
	alice := makePractitioner(t, db, clinic.ID, "Alice")
	service := makeService(t, db, clinic.ID, 60, alice)
	patient := makePatient(t, db, clinic.ID, "王小明")
	setWeekly(t, db, clinic.ID, alice, 1, "09:00", "17:00")

	mustCreateAppointment(t, db, CreateAppointmentInput{
		ClinicID:          clinic.ID,
		PatientID:         patient.ID,
		AppointmentTypeID: service.ID,
		Date:              testDate,
		StartTime:         "10:00",
		Practitioner:      PractitionerChoice{ID: alice},
		Actor:             ActorClinicStaff,
		ActorUserID:       alice,
		Now:               testNow,
	})

	t.Run("overlap reports the blocking appointments", func(t *testing.T) {
		start, end := "09:00", "12:00"
		_, err := CreateAvailabilityException(db, ExceptionInput{
			ClinicID:  clinic.ID,
			UserID:    alice,
			Date:      testDate,
			StartTime: &start,
			EndTime:   &end,
			Reason:    "進修",
		})
		var overlapErr *OverlapError
		assert.ErrorAs(t, err, &overlapErr)
		assert.Len(t, overlapErr.Appointments, 1)
		assert.Equal(t, patient.ID, overlapErr.Appointments[0].PatientID)
	})

	t.Run("force overrides and keeps the appointment", func(t *testing.T) {
		start, end := "09:00", "12:00"
		event, err := CreateAvailabilityException(db, ExceptionInput{
			ClinicID:  clinic.ID,
			UserID:    alice,
			Date:      testDate,
			StartTime: &start,
			EndTime:   &end,
			Reason:    "進修",
			Force:     true,
		})
		assert.NoError(t, err)
		assert.NotNil(t, event.AvailabilityException)
		assert.Equal(t, "進修", event.AvailabilityException.Reason)

		var confirmed int64
		assert.NoError(t, db.Table("appointments").
			Where("status = ?", "confirmed").Count(&confirmed).Error)
		assert.Equal(t, int64(1), confirmed)
	})

	t.Run("clear window needs no force", func(t *testing.T) {
		start, end := "14:00", "15:00"
		event, err := CreateAvailabilityException(db, ExceptionInput{
			ClinicID:  clinic.ID,
			UserID:    alice,
			Date:      testDate,
			StartTime: &start,
			EndTime:   &end,
			Reason:    "會議",
		})
		assert.NoError(t, err)
		assert.Equal(t, "14:00", *event.StartTime)
	})

	t.Run("all-day exception has no window", func(t *testing.T) {
		nextWeek := testDate.AddDate(0, 0, 7)
		event, err := CreateAvailabilityException(db, ExceptionInput{
			ClinicID: clinic.ID,
			UserID:   alice,
			Date:     nextWeek,
			Reason:   "休假",
		})
		assert.NoError(t, err)
		assert.Nil(t, event.StartTime)
		assert.Nil(t, event.EndTime)

		s, e := event.MinuteRange()
		assert.Equal(t, 0, s)
		assert.Equal(t, 24*60, e)
	})

	t.Run("half-open window is refused", func(t *testing.T) {
		start := "09:00"
		_, err := CreateAvailabilityException(db, ExceptionInput{
			ClinicID:  clinic.ID,
			UserID:    alice,
			Date:      testDate,
			StartTime: &start,
			Reason:    "x",
		})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("list and delete", func(t *testing.T) {
		from := testDate.AddDate(0, 0, -1)
		to := testDate.AddDate(0, 0, 10)
		events, err := ListAvailabilityExceptions(db, clinic.ID, alice, from, to)
		assert.NoError(t, err)
		assert.Len(t, events, 3)

		assert.NoError(t, DeleteAvailabilityException(db, clinic.ID, events[0].ID))
		events, err = ListAvailabilityExceptions(db, clinic.ID, alice, from, to)
		assert.NoError(t, err)
		assert.Len(t, events, 2)

		assert.ErrorIs(t, DeleteAvailabilityException(db, clinic.ID, "no-such-event"), ErrNotFound)
	})
}
