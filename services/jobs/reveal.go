package jobs

import (
	"clinic_flow_app_go/models"
	"clinic_flow_app_go/services"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RevealDueAssignments scans hidden auto-assigned appointments and
// reveals those past their clinic's reveal boundary. Runs every minute;
// the flip is gated so a tick overlapping a manual reassignment never
// double-notifies.
func RevealDueAssignments(database *gorm.DB, notifier *services.Notifier) {
	now := services.Now()

	var candidates []models.Appointment
	err := database.Preload("CalendarEvent").
		Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
		Where("appointments.status = ? AND appointments.is_auto_assigned = ?", models.AppointmentStatusConfirmed, true).
		Where("ce.deleted_at IS NULL").
		Find(&candidates).Error
	if err != nil {
		log.Error().Err(err).Msg("reveal job: fetching candidates")
		return
	}

	settingsByClinic := make(map[string]*models.ClinicSettings)
	revealed := 0
	for _, apt := range candidates {
		clinicID := apt.CalendarEvent.ClinicID
		settings, ok := settingsByClinic[clinicID]
		if !ok {
			settings, err = services.GetClinicSettings(database, clinicID)
			if err != nil {
				log.Error().Err(err).Str("clinic_id", clinicID).Msg("reveal job: loading settings")
				continue
			}
			settingsByClinic[clinicID] = settings
		}

		startMin, _ := apt.CalendarEvent.MinuteRange()
		if !services.RevealDue(settings.BookingRestrictionSettings, now, apt.CalendarEvent.Date, startMin) {
			continue
		}

		result, err := services.RevealAutoAssignment(database, clinicID, apt.ID)
		if err != nil {
			log.Error().Err(err).Str("appointment_id", apt.ID).Msg("reveal job: revealing")
			continue
		}
		if len(result.Intents) > 0 {
			notifier.Enqueue(result.Intents...)
			revealed++
		}
	}

	if revealed > 0 {
		log.Info().Int("revealed", revealed).Msg("reveal job completed")
	}
}
