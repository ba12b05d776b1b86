package services

import (
	"testing"

	"clinic_flow_app_go/models"

	"github.com/stretchr/testify/assert"
)

func TestResourceCatalog(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)

	t.Run("create type and instances", func(t *testing.T) {
		rt, err := CreateResourceType(db, clinic.ID, ResourceTypeInput{Name: "治療室"})
		assert.NoError(t, err)

		_, err = CreateResource(db, clinic.ID, ResourceInput{ResourceTypeID: rt.ID, Name: "治療室 A"})
		assert.NoError(t, err)
		_, err = CreateResource(db, clinic.ID, ResourceInput{ResourceTypeID: rt.ID, Name: "治療室 B"})
		assert.NoError(t, err)

		types, err := ListResourceTypes(db, clinic.ID)
		assert.NoError(t, err)
		assert.Len(t, types, 1)
		assert.Len(t, types[0].Resources, 2)
	})

	t.Run("empty name is refused", func(t *testing.T) {
		_, err := CreateResourceType(db, clinic.ID, ResourceTypeInput{})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("instance under a foreign clinic's type is refused", func(t *testing.T) {
		other := makeClinic(t, db)
		types, err := ListResourceTypes(db, clinic.ID)
		assert.NoError(t, err)

		_, err = CreateResource(db, other.ID, ResourceInput{ResourceTypeID: types[0].ID, Name: "治療室 X"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("deactivated instances drop out of the listing", func(t *testing.T) {
		types, err := ListResourceTypes(db, clinic.ID)
		assert.NoError(t, err)
		target := types[0].Resources[0]

		inactive := false
		updated, err := UpdateResource(db, clinic.ID, target.ID, ResourceInput{IsActive: &inactive})
		assert.NoError(t, err)
		assert.Equal(t, target.ID, updated.ID)

		types, err = ListResourceTypes(db, clinic.ID)
		assert.NoError(t, err)
		assert.Len(t, types[0].Resources, 1)
	})

	t.Run("delete is blocked by future allocations", func(t *testing.T) {
		types, err := ListResourceTypes(db, clinic.ID)
		assert.NoError(t, err)
		resource := types[0].Resources[0]

		userID := makePractitioner(t, db, clinic.ID, "Alice")
		service := makeService(t, db, clinic.ID, 60, userID)
		patient := makePatient(t, db, clinic.ID, "王小明")
		setWeekly(t, db, clinic.ID, userID, 1, "09:00", "12:00")

		result := mustCreateAppointment(t, db, CreateAppointmentInput{
			ClinicID:          clinic.ID,
			PatientID:         patient.ID,
			AppointmentTypeID: service.ID,
			Date:              testDate,
			StartTime:         "10:00",
			Practitioner:      PractitionerChoice{ID: userID},
			Actor:             ActorClinicStaff,
			ActorUserID:       userID,
			Now:               testNow,
		})
		assert.NoError(t, db.Create(&models.AppointmentResourceAllocation{
			AppointmentID: result.Appointment.ID,
			ResourceID:    resource.ID,
		}).Error)

		err = DeleteResource(db, clinic.ID, resource.ID, testNow)
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)

		// Cancelling the appointment clears the blocker
		_, err = CancelAppointment(db, CancelAppointmentInput{
			ClinicID:      clinic.ID,
			AppointmentID: result.Appointment.ID,
			Actor:         ActorClinicStaff,
			ActorUserID:   userID,
			Now:           testNow,
		})
		assert.NoError(t, err)
		assert.NoError(t, DeleteResource(db, clinic.ID, resource.ID, testNow))
	})

	t.Run("type deletion requires an empty type", func(t *testing.T) {
		types, err := ListResourceTypes(db, clinic.ID)
		assert.NoError(t, err)
		rt := types[0]

		err = DeleteResourceType(db, clinic.ID, rt.ID)
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}
