package services

import (
	"time"

	"clinic_flow_app_go/models"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// AppointmentView is the appointment payload inside a calendar event
type AppointmentView struct {
	ID                      string   `json:"id"`
	PatientID               string   `json:"patient_id"`
	PatientName             string   `json:"patient_name"`
	PatientPhone            *string  `json:"patient_phone,omitempty"`
	PatientBirthday         *string  `json:"patient_birthday,omitempty"`
	LineDisplayName         string   `json:"line_display_name,omitempty"`
	AppointmentTypeID       string   `json:"appointment_type_id"`
	AppointmentTypeName     string   `json:"appointment_type_name"`
	PractitionerName        string   `json:"practitioner_name"`
	ResourceNames           []string `json:"resource_names,omitempty"`
	ReceiptStatus           *string  `json:"receipt_status,omitempty"`
	Status                  string   `json:"status"`
	Notes                   *string  `json:"notes,omitempty"`
	ClinicNotes             *string  `json:"clinic_notes,omitempty"`
	IsAutoAssigned          bool     `json:"is_auto_assigned"`
	PendingTimeConfirmation bool     `json:"pending_time_confirmation"`
}

// ExceptionView is the time-off payload inside a calendar event
type ExceptionView struct {
	Reason string `json:"reason"`
}

// CalendarEventView is one rendered calendar entry
type CalendarEventView struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	EventType   string           `json:"event_type"`
	Date        string           `json:"date"`
	StartTime   *string          `json:"start_time"`
	EndTime     *string          `json:"end_time"`
	Appointment *AppointmentView `json:"appointment,omitempty"`
	Exception   *ExceptionView   `json:"exception,omitempty"`
}

// CalendarQuery selects events for a set of practitioners over a date
// range. Practitioner-facing views hide unrevealed auto-assignments.
// A non-empty ResourceIDs narrows to appointments holding an allocation
// on one of those resources; such appointments are shown even while
// auto-assigned, since the room is committed either way.
type CalendarQuery struct {
	ClinicID                  string
	UserIDs                   []string
	ResourceIDs               []string
	From                      time.Time
	To                        time.Time
	IncludeHiddenAutoAssigned bool
	IncludeCancelled          bool
}

// allocationView pairs an allocation with its resource name
type allocationView struct {
	AppointmentID string
	ResourceID    string
	ResourceName  string
}

// GetCalendarEvents assembles calendar entries for the query. Patients,
// services and exceptions are loaded in bulk, one query each.
func GetCalendarEvents(db *gorm.DB, q CalendarQuery) ([]CalendarEventView, error) {
	var events []models.CalendarEvent
	query := db.Preload("Appointment").
		Where("clinic_id = ? AND date >= ? AND date <= ?", q.ClinicID, q.From, q.To)
	if len(q.UserIDs) > 0 {
		query = query.Where("user_id IN (?)", q.UserIDs)
	}
	if err := query.Order("date, start_time").Find(&events).Error; err != nil {
		return nil, err
	}

	patientIDs := make([]string, 0, len(events))
	serviceIDs := make([]string, 0, len(events))
	eventIDs := make([]string, 0, len(events))
	appointmentIDs := make([]string, 0, len(events))
	practitionerIDs := make([]string, 0, len(events))
	for _, e := range events {
		if e.Appointment != nil {
			patientIDs = append(patientIDs, e.Appointment.PatientID)
			serviceIDs = append(serviceIDs, e.Appointment.AppointmentTypeID)
			appointmentIDs = append(appointmentIDs, e.Appointment.ID)
			practitionerIDs = append(practitionerIDs, e.UserID)
		}
		if e.EventType == models.EventTypeAvailabilityException {
			eventIDs = append(eventIDs, e.ID)
		}
	}

	patientsByID := make(map[string]models.Patient)
	lineUsersByID := make(map[string]models.LineUser)
	if len(patientIDs) > 0 {
		var patients []models.Patient
		if err := db.Where("id IN (?)", lo.Uniq(patientIDs)).Find(&patients).Error; err != nil {
			return nil, err
		}
		patientsByID = lo.KeyBy(patients, func(p models.Patient) string { return p.ID })

		lineUserIDs := make([]string, 0, len(patients))
		for _, p := range patients {
			if p.LineUserID != nil {
				lineUserIDs = append(lineUserIDs, *p.LineUserID)
			}
		}
		if len(lineUserIDs) > 0 {
			var lineUsers []models.LineUser
			if err := db.Where("id IN (?)", lo.Uniq(lineUserIDs)).Find(&lineUsers).Error; err != nil {
				return nil, err
			}
			lineUsersByID = lo.KeyBy(lineUsers, func(l models.LineUser) string { return l.ID })
		}
	}

	practitionerNames := map[string]string{}
	if len(practitionerIDs) > 0 {
		var err error
		practitionerNames, err = PractitionerDisplayNames(db, q.ClinicID, lo.Uniq(practitionerIDs))
		if err != nil {
			return nil, err
		}
	}

	allocsByAppointment := make(map[string][]allocationView)
	receiptsByAppointment := make(map[string]models.Receipt)
	if len(appointmentIDs) > 0 {
		var allocs []allocationView
		err := db.Model(&models.AppointmentResourceAllocation{}).
			Select("appointment_resource_allocations.appointment_id, appointment_resource_allocations.resource_id, resources.name AS resource_name").
			Joins("JOIN resources ON resources.id = appointment_resource_allocations.resource_id").
			Where("appointment_resource_allocations.appointment_id IN (?)", lo.Uniq(appointmentIDs)).
			Scan(&allocs).Error
		if err != nil {
			return nil, err
		}
		allocsByAppointment = lo.GroupBy(allocs, func(a allocationView) string { return a.AppointmentID })

		var receipts []models.Receipt
		if err := db.Where("appointment_id IN (?)", lo.Uniq(appointmentIDs)).Find(&receipts).Error; err != nil {
			return nil, err
		}
		receiptsByAppointment = lo.KeyBy(receipts, func(r models.Receipt) string { return r.AppointmentID })
	}

	servicesByID := make(map[string]models.AppointmentType)
	if len(serviceIDs) > 0 {
		var services []models.AppointmentType
		if err := db.Unscoped().Where("id IN (?)", lo.Uniq(serviceIDs)).Find(&services).Error; err != nil {
			return nil, err
		}
		servicesByID = lo.KeyBy(services, func(s models.AppointmentType) string { return s.ID })
	}

	exceptionsByEvent := make(map[string]models.AvailabilityException)
	if len(eventIDs) > 0 {
		var exceptions []models.AvailabilityException
		if err := db.Where("calendar_event_id IN (?)", eventIDs).Find(&exceptions).Error; err != nil {
			return nil, err
		}
		exceptionsByEvent = lo.KeyBy(exceptions, func(x models.AvailabilityException) string { return x.CalendarEventID })
	}

	views := make([]CalendarEventView, 0, len(events))
	for _, e := range events {
		// Resource views only carry occupancy, not time-off
		if len(q.ResourceIDs) > 0 && e.EventType != models.EventTypeAppointment {
			continue
		}
		view := CalendarEventView{
			ID:        e.ID,
			UserID:    e.UserID,
			EventType: e.EventType,
			Date:      e.Date.Format("2006-01-02"),
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
		}
		switch e.EventType {
		case models.EventTypeAppointment:
			apt := e.Appointment
			if apt == nil {
				continue
			}
			if apt.IsCancelled() && !q.IncludeCancelled {
				continue
			}
			allocs := allocsByAppointment[apt.ID]
			if len(q.ResourceIDs) > 0 && !holdsAnyResource(allocs, q.ResourceIDs) {
				continue
			}
			// Unrevealed auto-assignments stay off the practitioner's
			// calendar until the reveal boundary. On a resource view the
			// room is committed regardless, so they show.
			if apt.IsAutoAssigned && !apt.IsCancelled() && !q.IncludeHiddenAutoAssigned && len(q.ResourceIDs) == 0 {
				continue
			}
			patient := patientsByID[apt.PatientID]
			service := servicesByID[apt.AppointmentTypeID]
			aptView := &AppointmentView{
				ID:                      apt.ID,
				PatientID:               apt.PatientID,
				PatientName:             patient.Name,
				PatientPhone:            patient.Phone,
				AppointmentTypeID:       apt.AppointmentTypeID,
				AppointmentTypeName:     service.Name,
				PractitionerName:        practitionerNames[e.UserID],
				Status:                  apt.Status,
				Notes:                   apt.Notes,
				ClinicNotes:             apt.ClinicNotes,
				IsAutoAssigned:          apt.IsAutoAssigned,
				PendingTimeConfirmation: apt.PendingTimeConfirmation,
			}
			if patient.Birthday != nil {
				birthday := patient.Birthday.Format("2006-01-02")
				aptView.PatientBirthday = &birthday
			}
			if patient.LineUserID != nil {
				if lineUser, ok := lineUsersByID[*patient.LineUserID]; ok {
					aptView.LineDisplayName = lineUser.EffectiveDisplayName()
				}
			}
			for _, a := range allocs {
				aptView.ResourceNames = append(aptView.ResourceNames, a.ResourceName)
			}
			if receipt, ok := receiptsByAppointment[apt.ID]; ok {
				aptView.ReceiptStatus = &receipt.Status
			}
			view.Appointment = aptView
		case models.EventTypeAvailabilityException:
			if x, ok := exceptionsByEvent[e.ID]; ok {
				view.Exception = &ExceptionView{Reason: x.Reason}
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// holdsAnyResource reports whether the allocations touch any of the
// requested resources
func holdsAnyResource(allocs []allocationView, resourceIDs []string) bool {
	for _, a := range allocs {
		for _, id := range resourceIDs {
			if a.ResourceID == id {
				return true
			}
		}
	}
	return false
}

// GetMonthlyAppointmentCounts returns confirmed-appointment counts per
// date for one month, computed in a single grouped query.
func GetMonthlyAppointmentCounts(db *gorm.DB, clinicID string, userIDs []string, year int, month time.Month) (map[string]int, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	type row struct {
		Date  time.Time
		Count int
	}
	var rows []row
	query := db.Model(&models.CalendarEvent{}).
		Select("calendar_events.date AS date, COUNT(*) AS count").
		Joins("JOIN appointments a ON a.calendar_event_id = calendar_events.id").
		Where("calendar_events.clinic_id = ?", clinicID).
		Where("calendar_events.date >= ? AND calendar_events.date <= ?", from, to).
		Where("a.status = ?", models.AppointmentStatusConfirmed)
	if len(userIDs) > 0 {
		query = query.Where("calendar_events.user_id IN (?)", userIDs)
	}
	if err := query.Group("calendar_events.date").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Date.Format("2006-01-02")] = r.Count
	}
	return counts, nil
}
