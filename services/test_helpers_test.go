package services

import (
	"testing"
	"time"

	"clinic_flow_app_go/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&models.Clinic{},
		&models.User{},
		&models.UserClinicAssociation{},
		&models.SignupToken{},
		&models.LineUser{},
		&models.Patient{},
		&models.AppointmentType{},
		&models.PractitionerAppointmentType{},
		&models.BillingScenario{},
		&models.FollowUpMessage{},
		&models.PractitionerAvailability{},
		&models.CalendarEvent{},
		&models.Appointment{},
		&models.AvailabilityException{},
		&models.ResourceType{},
		&models.Resource{},
		&models.AppointmentResourceRequirement{},
		&models.AppointmentResourceAllocation{},
		&models.Receipt{},
	)
	assert.NoError(t, err)
	return db
}

// testNow is a Monday morning in the clinic timezone
var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, ClinicLocation)

// testDate is the following Monday, far outside every lead-time window
var testDate = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func makeClinic(t *testing.T, db *gorm.DB) *models.Clinic {
	clinic := &models.Clinic{Name: "測試診所", Settings: "{}", IsActive: true}
	assert.NoError(t, db.Create(clinic).Error)
	return clinic
}

func makePractitioner(t *testing.T, db *gorm.DB, clinicID, name string) string {
	user := &models.User{Name: name, Email: name + "@test.local"}
	assert.NoError(t, db.Create(user).Error)
	assoc := &models.UserClinicAssociation{
		UserID:      user.ID,
		ClinicID:    clinicID,
		Roles:       models.RolePractitioner,
		DisplayName: name,
		IsActive:    true,
	}
	assert.NoError(t, db.Create(assoc).Error)
	return user.ID
}

func makeService(t *testing.T, db *gorm.DB, clinicID string, duration int, userIDs ...string) *models.AppointmentType {
	service := &models.AppointmentType{
		ClinicID:        clinicID,
		Name:            "一般治療",
		DurationMinutes: duration,
	}
	assert.NoError(t, db.Create(service).Error)
	for _, userID := range userIDs {
		link := &models.PractitionerAppointmentType{UserID: userID, AppointmentTypeID: service.ID}
		assert.NoError(t, db.Create(link).Error)
	}
	return service
}

func makePatient(t *testing.T, db *gorm.DB, clinicID, name string) *models.Patient {
	patient := &models.Patient{ClinicID: clinicID, Name: name}
	assert.NoError(t, db.Create(patient).Error)
	return patient
}

func setWeekly(t *testing.T, db *gorm.DB, clinicID, userID string, day int, start, end string) {
	slot := &models.PractitionerAvailability{
		UserID:    userID,
		ClinicID:  clinicID,
		DayOfWeek: day,
		StartTime: start,
		EndTime:   end,
	}
	assert.NoError(t, db.Create(slot).Error)
}

func mustCreateAppointment(t *testing.T, db *gorm.DB, in CreateAppointmentInput) *AppointmentResult {
	result, err := CreateAppointment(db, in)
	assert.NoError(t, err)
	return result
}
