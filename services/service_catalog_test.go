package services

import (
	"testing"

	"clinic_flow_app_go/models"

	"github.com/stretchr/testify/assert"
)

func TestCreateServiceItem(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)
	alice := makePractitioner(t, db, clinic.ID, "Alice")
	bob := makePractitioner(t, db, clinic.ID, "Bob")

	room := &models.ResourceType{ClinicID: clinic.ID, Name: "治療室"}
	assert.NoError(t, db.Create(room).Error)

	t.Run("full bundle round trip", func(t *testing.T) {
		timeOfDay := "18:00"
		bundle, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{
				Name:            "徒手治療",
				DurationMinutes: 50,
			},
			PractitionerIDs: []string{alice, bob, alice}, // duplicate collapses
			BillingScenarios: []models.BillingScenario{
				{UserID: alice, Name: "自費", Amount: 2000, RevenueShare: 1200, IsDefault: true},
			},
			ResourceRequirements: []models.AppointmentResourceRequirement{
				{ResourceTypeID: room.ID, Quantity: 1},
			},
			FollowUpMessages: []models.FollowUpMessage{
				{TimingMode: models.FollowUpTimingSpecificTime, TimeOfDay: &timeOfDay, Template: "回診提醒"},
			},
		})
		assert.NoError(t, err)

		assert.NotEmpty(t, bundle.ID)
		assert.Equal(t, clinic.ID, bundle.ClinicID)
		assert.ElementsMatch(t, []string{alice, bob}, bundle.PractitionerIDs)
		assert.Len(t, bundle.BillingScenarios, 1)
		assert.Len(t, bundle.ResourceRequirements, 1)
		assert.Len(t, bundle.FollowUpMessages, 1)
		// Blank templates were defaulted on create
		assert.Equal(t, models.DefaultClinicConfirmationMessage, bundle.ClinicConfirmationMessage)
	})

	t.Run("duplicate name is refused", func(t *testing.T) {
		_, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "徒手治療", DurationMinutes: 30},
		})
		assert.ErrorIs(t, err, ErrNameConflict)
	})

	t.Run("zero duration is refused", func(t *testing.T) {
		_, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "閃電治療"},
		})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("revenue share above the amount is refused", func(t *testing.T) {
		_, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "震波治療", DurationMinutes: 20},
			BillingScenarios: []models.BillingScenario{
				{UserID: alice, Name: "自費", Amount: 1000, RevenueShare: 1500},
			},
		})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("follow-up timing is validated", func(t *testing.T) {
		_, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "運動治療", DurationMinutes: 40},
			FollowUpMessages: []models.FollowUpMessage{
				{TimingMode: models.FollowUpTimingHoursAfter, OffsetHours: 0, Template: "x"},
			},
		})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)

		_, err = CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "運動治療", DurationMinutes: 40},
			FollowUpMessages: []models.FollowUpMessage{
				{TimingMode: models.FollowUpTimingSpecificTime, Template: "x"},
			},
		})
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestUpdateServiceItem(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)
	alice := makePractitioner(t, db, clinic.ID, "Alice")
	bob := makePractitioner(t, db, clinic.ID, "Bob")

	created, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
		AppointmentType: models.AppointmentType{Name: "徒手治療", DurationMinutes: 50},
		PractitionerIDs: []string{alice},
		BillingScenarios: []models.BillingScenario{
			{UserID: alice, Name: "自費", Amount: 2000, RevenueShare: 1200},
			{UserID: alice, Name: "健保", Amount: 400, RevenueShare: 200},
		},
	})
	assert.NoError(t, err)

	t.Run("scalars, links and diff-sync in one write", func(t *testing.T) {
		var keep models.BillingScenario
		for _, b := range created.BillingScenarios {
			if b.Name == "自費" {
				keep = b
			}
		}
		keep.Amount = 2500

		updated, err := UpdateServiceItem(db, clinic.ID, created.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "徒手治療", DurationMinutes: 60},
			PractitionerIDs: []string{bob},
			BillingScenarios: []models.BillingScenario{
				keep, // update by id
				{UserID: bob, Name: "方案B", Amount: 800, RevenueShare: 400}, // insert
				// the second original scenario is absent: delete
			},
		})
		assert.NoError(t, err)

		assert.Equal(t, 60, updated.DurationMinutes)
		assert.Equal(t, []string{bob}, updated.PractitionerIDs)
		assert.Len(t, updated.BillingScenarios, 2)

		amounts := map[string]int{}
		for _, b := range updated.BillingScenarios {
			amounts[b.Name] = b.Amount
		}
		assert.Equal(t, 2500, amounts["自費"])
		assert.Equal(t, 800, amounts["方案B"])
	})

	t.Run("unknown scenario id is refused", func(t *testing.T) {
		_, err := UpdateServiceItem(db, clinic.ID, created.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "徒手治療", DurationMinutes: 60},
			BillingScenarios: []models.BillingScenario{
				{ID: "no-such-scenario", UserID: alice, Name: "x", Amount: 1, RevenueShare: 0},
			},
		})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("rename onto a taken name is refused", func(t *testing.T) {
		_, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "震波治療", DurationMinutes: 20},
		})
		assert.NoError(t, err)

		_, err = UpdateServiceItem(db, clinic.ID, created.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "震波治療", DurationMinutes: 60},
		})
		assert.ErrorIs(t, err, ErrNameConflict)
	})

	t.Run("missing service", func(t *testing.T) {
		_, err := UpdateServiceItem(db, clinic.ID, "no-such-service", &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "x", DurationMinutes: 10},
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteServiceItem(t *testing.T) {
	db := setupTestDB(t)
	clinic := makeClinic(t, db)
	alice := makePractitioner(t, db, clinic.ID, "Alice")
	patient := makePatient(t, db, clinic.ID, "王小明")
	setWeekly(t, db, clinic.ID, alice, 1, "09:00", "17:00")

	created, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
		AppointmentType: models.AppointmentType{Name: "徒手治療", DurationMinutes: 60},
		PractitionerIDs: []string{alice},
	})
	assert.NoError(t, err)

	t.Run("future appointments block deletion", func(t *testing.T) {
		apt := mustCreateAppointment(t, db, CreateAppointmentInput{
			ClinicID:          clinic.ID,
			PatientID:         patient.ID,
			AppointmentTypeID: created.ID,
			Date:              testDate,
			StartTime:         "10:00",
			Practitioner:      PractitionerChoice{ID: alice},
			Actor:             ActorClinicStaff,
			ActorUserID:       alice,
			Now:               testNow,
		})

		blockers, err := ValidateServiceItemDeletion(db, clinic.ID, created.ID, testNow)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), blockers.PractitionerCount)
		assert.Equal(t, int64(1), blockers.FutureAppointmentCount)
		assert.False(t, blockers.CanDelete())

		var validationErr *ValidationError
		assert.ErrorAs(t, DeleteServiceItem(db, clinic.ID, created.ID, testNow), &validationErr)

		// Cancelling the appointment unblocks
		_, err = CancelAppointment(db, CancelAppointmentInput{
			ClinicID:      clinic.ID,
			AppointmentID: apt.Appointment.ID,
			Actor:         ActorClinicStaff,
			ActorUserID:   alice,
			Now:           testNow,
		})
		assert.NoError(t, err)
		assert.NoError(t, DeleteServiceItem(db, clinic.ID, created.ID, testNow))

		_, err = GetAppointmentType(db, clinic.ID, created.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("a deleted name can be reused", func(t *testing.T) {
		reused, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "徒手治療", DurationMinutes: 30},
		})
		assert.NoError(t, err)
		assert.Equal(t, "徒手治療", reused.Name)
		assert.NotEqual(t, created.ID, reused.ID)
	})

	t.Run("eviction only hits the matching duration", func(t *testing.T) {
		// The soft-deleted 60-minute row kept its name: eviction is
		// scoped to the (name, duration) tuple.
		var ghost models.AppointmentType
		assert.NoError(t, db.Unscoped().First(&ghost, "id = ?", created.ID).Error)
		assert.Equal(t, "徒手治療", ghost.Name)

		var active models.AppointmentType
		assert.NoError(t, db.First(&active, "clinic_id = ? AND name = ?", clinic.ID, "徒手治療").Error)
		assert.NoError(t, DeleteServiceItem(db, clinic.ID, active.ID, testNow))

		again, err := CreateServiceItem(db, clinic.ID, &ServiceItemBundle{
			AppointmentType: models.AppointmentType{Name: "徒手治療", DurationMinutes: 30},
		})
		assert.NoError(t, err)
		assert.Equal(t, "徒手治療", again.Name)

		var evictedGhost models.AppointmentType
		assert.NoError(t, db.Unscoped().First(&evictedGhost, "id = ?", active.ID).Error)
		assert.Contains(t, evictedGhost.Name, "deleted")
		var keptGhost models.AppointmentType
		assert.NoError(t, db.Unscoped().First(&keptGhost, "id = ?", created.ID).Error)
		assert.Equal(t, "徒手治療", keptGhost.Name)
	})
}
