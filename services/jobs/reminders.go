package jobs

import (
	"time"

	"clinic_flow_app_go/models"
	"clinic_flow_app_go/services"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SendAppointmentReminders delivers patient reminders per each clinic's
// timing settings. The reminder_sent_at gate makes the job idempotent
// across overlapping ticks.
func SendAppointmentReminders(database *gorm.DB, notifier *services.Notifier) {
	now := services.Now()

	var clinics []models.Clinic
	if err := database.Where("is_active = ?", true).Find(&clinics).Error; err != nil {
		log.Error().Err(err).Msg("reminder job: fetching clinics")
		return
	}

	for _, clinic := range clinics {
		settings, err := services.GetClinicSettings(database, clinic.ID)
		if err != nil {
			log.Error().Err(err).Str("clinic_id", clinic.ID).Msg("reminder job: loading settings")
			continue
		}
		if err := remindClinic(database, notifier, &clinic, settings, now); err != nil {
			log.Error().Err(err).Str("clinic_id", clinic.ID).Msg("reminder job: processing clinic")
		}
	}
}

func remindClinic(database *gorm.DB, notifier *services.Notifier, clinic *models.Clinic, settings *models.ClinicSettings, now time.Time) error {
	ns := settings.NotificationSettings

	var fromDate, toDate time.Time
	var minStart, maxStart string
	switch ns.ReminderTimingMode {
	case models.ReminderTimingPreviousDayTime:
		// Fire once the clinic's chosen send time has passed; the
		// sent-at gate keeps later ticks from resending.
		sendAt, err := services.ParseClock(ns.ReminderPreviousDayTime)
		if err != nil {
			return err
		}
		if services.MinutesOfDay(now) < sendAt {
			return nil
		}
		tomorrow := services.DateOf(now).AddDate(0, 0, 1)
		fromDate, toDate = tomorrow, tomorrow
		minStart, maxStart = "00:00", "24:00"
	default: // hours_before
		horizon := now.Add(time.Duration(ns.ReminderHoursBefore) * time.Hour)
		fromDate, toDate = services.DateOf(now), services.DateOf(horizon)
		minStart = services.FormatClock(services.MinutesOfDay(now))
		maxStart = services.FormatClock(services.MinutesOfDay(horizon))
	}

	var appts []models.Appointment
	query := database.Preload("CalendarEvent").Preload("Patient").Preload("AppointmentType").
		Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
		Where("ce.clinic_id = ? AND ce.deleted_at IS NULL", clinic.ID).
		Where("appointments.status = ?", models.AppointmentStatusConfirmed).
		Where("appointments.reminder_sent_at IS NULL").
		Where("ce.date >= ? AND ce.date <= ?", fromDate, toDate)
	if ns.ReminderTimingMode != models.ReminderTimingPreviousDayTime {
		// Same-date bounds: keep starts inside (now, horizon]
		query = query.Where("NOT (ce.date = ? AND ce.start_time < ?)", fromDate, minStart).
			Where("NOT (ce.date = ? AND ce.start_time > ?)", toDate, maxStart)
	}
	if err := query.Find(&appts).Error; err != nil {
		return err
	}

	for _, apt := range appts {
		if !apt.AppointmentType.SendReminder {
			continue
		}
		res := database.Model(&models.Appointment{}).
			Where("id = ? AND reminder_sent_at IS NULL", apt.ID).
			Update("reminder_sent_at", now)
		if res.Error != nil {
			log.Error().Err(res.Error).Str("appointment_id", apt.ID).Msg("reminder job: marking sent")
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}

		names, err := services.PractitionerDisplayNames(database, clinic.ID, []string{apt.CalendarEvent.UserID})
		if err != nil {
			log.Error().Err(err).Str("appointment_id", apt.ID).Msg("reminder job: resolving names")
			continue
		}
		practitionerName := names[apt.CalendarEvent.UserID]
		if apt.IsAutoAssigned || practitionerName == "" {
			practitionerName = "不指定"
		}

		startMin, _ := apt.CalendarEvent.MinuteRange()
		notes := ""
		if apt.Notes != nil {
			notes = *apt.Notes
		}
		message := services.RenderMessageTemplate(apt.AppointmentType.ReminderMessage, services.MessageContext{
			PatientName:         apt.Patient.Name,
			PractitionerName:    practitionerName,
			AppointmentTypeName: apt.AppointmentType.Name,
			AppointmentDatetime: services.FormatDateTimeZh(apt.CalendarEvent.Date, startMin),
			ClinicName:          settings.ClinicInfoSettings.DisplayName,
			ClinicPhone:         settings.ClinicInfoSettings.PhoneNumber,
			ClinicAddress:       settings.ClinicInfoSettings.Address,
			Notes:               notes,
		})
		notifier.Enqueue(services.NotificationIntent{
			Recipient:     services.RecipientPatient,
			PatientID:     apt.PatientID,
			ClinicID:      clinic.ID,
			AppointmentID: apt.ID,
			Kind:          services.NotifyReminder,
			Message:       message,
		})
	}
	return nil
}
