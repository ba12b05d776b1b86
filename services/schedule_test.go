package services

import (
	"testing"
	"time"

	"clinic_flow_app_go/models"

	"github.com/stretchr/testify/assert"
)

func slotStarts(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.StartTime)
	}
	return out
}

func TestGetFreeSlots(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)
	alice := makePractitioner(t, db, clinic.ID, "Alice")
	service := makeService(t, db, clinic.ID, 60, alice)
	patient := makePatient(t, db, clinic.ID, "王小明")

	// Mondays 09:00-12:00; testDate is a Monday
	setWeekly(t, db, clinic.ID, alice, 1, "09:00", "12:00")

	query := SlotQuery{
		ClinicID:          clinic.ID,
		UserID:            alice,
		AppointmentTypeID: service.ID,
		Dates:             []time.Time{testDate},
		Now:               testNow,
	}

	t.Run("full step grid when the day is empty", func(t *testing.T) {
		results, err := GetFreeSlots(db, query)
		assert.NoError(t, err)
		assert.Len(t, results, 1)
		assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00"}, slotStarts(results[0].Slots))
	})

	t.Run("buffer shrinks the fit", func(t *testing.T) {
		assert.NoError(t, db.Model(service).Update("scheduling_buffer_minutes", 30).Error)
		defer db.Model(service).Update("scheduling_buffer_minutes", 0)

		results, err := GetFreeSlots(db, query)
		assert.NoError(t, err)
		// 11:00 no longer fits: 11:00+60+30 > 12:00
		assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, slotStarts(results[0].Slots))
	})

	t.Run("booked interval is subtracted", func(t *testing.T) {
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

		results, err := GetFreeSlots(db, query)
		assert.NoError(t, err)
		assert.Equal(t, []string{"09:00", "11:00"}, slotStarts(results[0].Slots))
	})

	t.Run("exception blocks its window", func(t *testing.T) {
		start, end := "09:00", "10:00"
		_, err := CreateAvailabilityException(db, ExceptionInput{
			ClinicID:  clinic.ID,
			UserID:    alice,
			Date:      testDate,
			StartTime: &start,
			EndTime:   &end,
			Reason:    "進修",
		})
		assert.NoError(t, err)

		results, err := GetFreeSlots(db, query)
		assert.NoError(t, err)
		assert.Equal(t, []string{"11:00"}, slotStarts(results[0].Slots))
	})

	t.Run("patient queries drop slots inside the lead time", func(t *testing.T) {
		// 24h lead from testNow kills nothing a week out; move now closer
		closeNow := time.Date(2026, 3, 8, 20, 0, 0, 0, ClinicLocation)
		patientQuery := query
		patientQuery.ForPatient = true
		patientQuery.Now = closeNow

		results, err := GetFreeSlots(db, patientQuery)
		assert.NoError(t, err)
		// Only starts at least 24h after closeNow survive (>= 20:00 next
		// day); the whole morning is gone.
		assert.Empty(t, results[0].Slots)
	})
}

func TestCheckConflicts(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)
	alice := makePractitioner(t, db, clinic.ID, "Alice")
	bob := makePractitioner(t, db, clinic.ID, "Bob")
	service := makeService(t, db, clinic.ID, 60, alice, bob)
	patient := makePatient(t, db, clinic.ID, "王小明")

	setWeekly(t, db, clinic.ID, alice, 1, "09:00", "17:00")
	setWeekly(t, db, clinic.ID, bob, 1, "09:00", "12:00")

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

	t.Run("per practitioner verdicts", func(t *testing.T) {
		results, err := CheckConflicts(db, ConflictQuery{
			ClinicID:          clinic.ID,
			UserIDs:           []string{alice, bob},
			Date:              testDate,
			StartTime:         "10:30",
			AppointmentTypeID: service.ID,
		})
		assert.NoError(t, err)
		assert.Len(t, results, 2)

		assert.NotNil(t, results[0].Conflict)
		assert.Equal(t, ConflictAppointment, *results[0].Conflict)
		assert.Nil(t, results[1].Conflict)
	})

	t.Run("outside working hours", func(t *testing.T) {
		results, err := CheckConflicts(db, ConflictQuery{
			ClinicID:          clinic.ID,
			UserIDs:           []string{bob},
			Date:              testDate,
			StartTime:         "14:00",
			AppointmentTypeID: service.ID,
		})
		assert.NoError(t, err)
		assert.NotNil(t, results[0].Conflict)
		assert.Equal(t, ConflictOutsideHours, *results[0].Conflict)
	})

	t.Run("appointment outranks exception", func(t *testing.T) {
		start, end := "09:00", "12:00"
		_, err := CreateAvailabilityException(db, ExceptionInput{
			ClinicID:  clinic.ID,
			UserID:    alice,
			Date:      testDate,
			StartTime: &start,
			EndTime:   &end,
			Reason:    "休診",
			Force:     true,
		})
		assert.NoError(t, err)

		results, err := CheckConflicts(db, ConflictQuery{
			ClinicID:          clinic.ID,
			UserIDs:           []string{alice},
			Date:              testDate,
			StartTime:         "10:00",
			AppointmentTypeID: service.ID,
		})
		assert.NoError(t, err)
		assert.Equal(t, ConflictAppointment, *results[0].Conflict)
	})

	t.Run("batch size is bounded", func(t *testing.T) {
		ids := make([]string, MaxConflictBatch+1)
		for i := range ids {
			ids[i] = alice
		}
		_, err := CheckConflicts(db, ConflictQuery{
			ClinicID:          clinic.ID,
			UserIDs:           ids,
			Date:              testDate,
			StartTime:         "10:00",
			AppointmentTypeID: service.ID,
		})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestResourceContentionCheckConflicts(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)
	alice := makePractitioner(t, db, clinic.ID, "Alice")
	bob := makePractitioner(t, db, clinic.ID, "Bob")
	service := makeService(t, db, clinic.ID, 60, alice, bob)
	patient := makePatient(t, db, clinic.ID, "王小明")

	setWeekly(t, db, clinic.ID, alice, 1, "09:00", "17:00")
	setWeekly(t, db, clinic.ID, bob, 1, "09:00", "17:00")

	// One treatment room shared by everyone
	room := &models.ResourceType{ClinicID: clinic.ID, Name: "治療室"}
	assert.NoError(t, db.Create(room).Error)
	assert.NoError(t, db.Create(&models.Resource{ClinicID: clinic.ID, ResourceTypeID: room.ID, Name: "治療室A", IsActive: true}).Error)
	assert.NoError(t, db.Create(&models.AppointmentResourceRequirement{
		AppointmentTypeID: service.ID, ResourceTypeID: room.ID, Quantity: 1,
	}).Error)

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

	t.Run("resource conflict crosses practitioners", func(t *testing.T) {
		results, err := CheckConflicts(db, ConflictQuery{
			ClinicID:          clinic.ID,
			UserIDs:           []string{bob},
			Date:              testDate,
			StartTime:         "10:30",
			AppointmentTypeID: service.ID,
		})
		assert.NoError(t, err)
		assert.NotNil(t, results[0].Conflict)
		assert.Equal(t, ConflictResource, *results[0].Conflict)
	})

	t.Run("free once the interval clears", func(t *testing.T) {
		results, err := CheckConflicts(db, ConflictQuery{
			ClinicID:          clinic.ID,
			UserIDs:           []string{bob},
			Date:              testDate,
			StartTime:         "11:00",
			AppointmentTypeID: service.ID,
		})
		assert.NoError(t, err)
		assert.Nil(t, results[0].Conflict)
	})
}

func TestAutoAssignPractitioner(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)
	alice := makePractitioner(t, db, clinic.ID, "Alice")
	bob := makePractitioner(t, db, clinic.ID, "Bob")
	service := makeService(t, db, clinic.ID, 60, alice, bob)
	patient := makePatient(t, db, clinic.ID, "王小明")

	setWeekly(t, db, clinic.ID, alice, 1, "09:00", "17:00")
	setWeekly(t, db, clinic.ID, bob, 1, "09:00", "17:00")

	t.Run("fewest appointments wins", func(t *testing.T) {
		mustCreateAppointment(t, db, CreateAppointmentInput{
			ClinicID:          clinic.ID,
			PatientID:         patient.ID,
			AppointmentTypeID: service.ID,
			Date:              testDate,
			StartTime:         "09:00",
			Practitioner:      PractitionerChoice{ID: alice},
			Actor:             ActorClinicStaff,
			ActorUserID:       alice,
			Now:               testNow,
		})

		picked, err := AutoAssignPractitioner(db, clinic.ID, service, testDate, 14*60, "", "")
		assert.NoError(t, err)
		assert.Equal(t, bob, picked)
	})

	t.Run("ties break on user id", func(t *testing.T) {
		mustCreateAppointment(t, db, CreateAppointmentInput{
			ClinicID:          clinic.ID,
			PatientID:         patient.ID,
			AppointmentTypeID: service.ID,
			Date:              testDate,
			StartTime:         "09:00",
			Practitioner:      PractitionerChoice{ID: bob},
			Actor:             ActorClinicStaff,
			ActorUserID:       bob,
			Now:               testNow,
		})

		picked, err := AutoAssignPractitioner(db, clinic.ID, service, testDate, 14*60, "", "")
		assert.NoError(t, err)
		if alice < bob {
			assert.Equal(t, alice, picked)
		} else {
			assert.Equal(t, bob, picked)
		}
	})

	t.Run("preferred practitioner sticks when feasible", func(t *testing.T) {
		picked, err := AutoAssignPractitioner(db, clinic.ID, service, testDate, 15*60, "", bob)
		assert.NoError(t, err)
		assert.Equal(t, bob, picked)
	})

	t.Run("no candidate free", func(t *testing.T) {
		charlie := makePractitioner(t, db, clinic.ID, "Charlie")
		soloService := makeService(t, db, clinic.ID, 60, charlie)
		// Charlie has no weekly template at all
		_, err := AutoAssignPractitioner(db, clinic.ID, soloService, testDate, 10*60, "", "")
		var conflictErr *ConflictError
		assert.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, ConflictNoAvailability, conflictErr.Kind)
	})
}
