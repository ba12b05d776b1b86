package services

import (
	"errors"
	"time"

	"clinic_flow_app_go/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PractitionerAutoSentinel is the API value for "no preference"
const PractitionerAutoSentinel = "auto"

// PractitionerChoice is the tagged form of the practitioner_id
// sentinels: keep the current one, auto-assign, or a specific user.
type PractitionerChoice struct {
	Keep bool
	Auto bool
	ID   string
}

// ParsePractitionerChoice converts the API value on ingress
func ParsePractitionerChoice(raw *string) PractitionerChoice {
	if raw == nil || *raw == "" {
		return PractitionerChoice{Keep: true}
	}
	if *raw == PractitionerAutoSentinel {
		return PractitionerChoice{Auto: true}
	}
	return PractitionerChoice{ID: *raw}
}

// AppointmentResult carries the committed appointment plus the
// notification intents the caller enqueues after commit.
type AppointmentResult struct {
	Appointment      *models.Appointment
	Intents          []NotificationIntent
	AlreadyCancelled bool
}

// CreateAppointmentInput are the ingress parameters for a booking
type CreateAppointmentInput struct {
	ClinicID          string
	PatientID         string
	AppointmentTypeID string
	Date              time.Time
	StartTime         string
	Practitioner      PractitionerChoice
	Notes             *string
	ClinicNotes       *string
	Actor             string
	ActorUserID       string
	// Multi-slot selection: candidate "HH:MM" starts, first one wins
	AlternativeSlots []string
	Now              time.Time
}

// CreateAppointment books an appointment. Patient actors pass through
// the booking policy evaluator; all actors pass the conflict engine,
// re-checked under row locks before commit.
func CreateAppointment(db *gorm.DB, in CreateAppointmentInput) (*AppointmentResult, error) {
	service, err := GetAppointmentType(db, in.ClinicID, in.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	if service.DurationMinutes <= 0 {
		return nil, NewValidationError("服務項目時長必須大於零")
	}

	settings, err := GetClinicSettings(db, in.ClinicID)
	if err != nil {
		return nil, err
	}

	var patient models.Patient
	if err := db.First(&patient, "id = ? AND clinic_id = ?", in.PatientID, in.ClinicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	startTime := in.StartTime
	alternatives := in.AlternativeSlots
	pendingConfirmation := false
	if len(alternatives) > 0 {
		if !service.AllowMultipleSlotSelection {
			return nil, NewValidationError("此服務項目不開放多時段選擇")
		}
		// A single candidate behaves like a normal booking.
		startTime = alternatives[0]
		if len(alternatives) >= 2 && in.Actor == ActorPatient {
			pendingConfirmation = true
		} else {
			alternatives = nil
		}
	}

	startMin, err := ParseClock(startTime)
	if err != nil {
		return nil, NewValidationError(err.Error())
	}

	// Resolve the practitioner
	isAuto := false
	var userID string
	switch {
	case in.Practitioner.Auto, in.Practitioner.Keep && in.Actor == ActorPatient && !service.AllowPatientPractitionerSelection:
		if in.Actor != ActorPatient {
			return nil, NewValidationError("診所人員須指定治療師")
		}
		userID, err = AutoAssignPractitioner(db, in.ClinicID, service, in.Date, startMin, "", "")
		if err != nil {
			return nil, err
		}
		isAuto = true
	case in.Practitioner.Keep:
		return nil, NewValidationError("缺少治療師")
	default:
		if in.Actor == ActorPatient && !service.AllowPatientPractitionerSelection {
			return nil, NewPolicyError(PolicyPractitionerSelectionNotAllowed)
		}
		userID = in.Practitioner.ID
		if err := verifyPractitionerFeasible(db, in.ClinicID, service, userID, in.Date, startMin, "", in.Actor); err != nil {
			return nil, err
		}
	}

	// Patient booking restrictions
	if in.Actor == ActorPatient {
		activeCount, err := CountActiveAppointments(db, in.ClinicID, in.PatientID, in.Now, "")
		if err != nil {
			return nil, err
		}
		hadConfirmed, err := HasConfirmedAppointment(db, in.ClinicID, in.PatientID)
		if err != nil {
			return nil, err
		}
		err = CheckBookingAllowed(BookingPolicyInput{
			Settings:             settings.BookingRestrictionSettings,
			Service:              service,
			Now:                  in.Now,
			Date:                 in.Date,
			StartMin:             startMin,
			IsNewPatient:         !hadConfirmed,
			ActiveCount:          activeCount,
			ExplicitPractitioner: !isAuto,
		})
		if err != nil {
			return nil, err
		}
	}

	endMin := startMin + service.DurationMinutes
	start := FormatClock(startMin)
	end := FormatClock(endMin)

	var apt *models.Appointment
	err = db.Transaction(func(tx *gorm.DB) error {
		// Lock the practitioner's day and re-check under the lock to
		// close the race between the first check and commit.
		if err := lockDayEvents(tx, in.ClinicID, userID, in.Date); err != nil {
			return err
		}
		reqs, err := GetResourceRequirements(tx, service.ID)
		if err != nil {
			return err
		}
		if err := lockResourceRows(tx, in.ClinicID, reqs); err != nil {
			return err
		}
		data, err := loadScheduleData(tx, in.ClinicID, []string{userID}, []time.Time{in.Date})
		if err != nil {
			return err
		}
		if err := checkBlockingConflict(data, service, reqs, userID, in.Date, startMin, "", in.Actor, isAuto); err != nil {
			return err
		}
		resourceIDs, err := data.pickFreeResources(reqs, in.Date, startMin, endMin, "")
		if err != nil {
			return err
		}

		event := &models.CalendarEvent{
			UserID:    userID,
			ClinicID:  in.ClinicID,
			EventType: models.EventTypeAppointment,
			Date:      in.Date,
			StartTime: &start,
			EndTime:   &end,
		}
		if err := tx.Create(event).Error; err != nil {
			return err
		}

		apt = &models.Appointment{
			CalendarEventID:         event.ID,
			PatientID:               in.PatientID,
			AppointmentTypeID:       service.ID,
			Status:                  models.AppointmentStatusConfirmed,
			Notes:                   in.Notes,
			ClinicNotes:             in.ClinicNotes,
			IsAutoAssigned:          isAuto,
			OriginallyAutoAssigned:  isAuto,
			PendingTimeConfirmation: pendingConfirmation,
		}
		if pendingConfirmation {
			apt.SetAlternativeSlots(alternatives)
		}
		if err := tx.Create(apt).Error; err != nil {
			return err
		}
		apt.CalendarEvent = *event

		for _, rid := range resourceIDs {
			alloc := &models.AppointmentResourceAllocation{AppointmentID: apt.ID, ResourceID: rid}
			if err := tx.Create(alloc).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A booking placed inside the reveal window is revealed inline
	// rather than waiting for the next cron tick.
	revealedInline := false
	if isAuto && RevealDue(settings.BookingRestrictionSettings, in.Now, in.Date, startMin) {
		res := db.Model(&models.Appointment{}).
			Where("id = ? AND is_auto_assigned = ?", apt.ID, true).
			Update("is_auto_assigned", false)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			apt.IsAutoAssigned = false
			revealedInline = true
		}
	}

	notes := ""
	if in.Notes != nil {
		notes = *in.Notes
	}
	data, err := loadNotificationData(db, in.ClinicID, &patient, service, apt.ID, in.Date, startMin, notes, []string{userID})
	if err != nil {
		return nil, err
	}
	intents := DecideNotifications(Transition{
		Kind:              TransitionCreate,
		Actor:             in.Actor,
		VisibleAfter:      !isAuto,
		NewPractitionerID: userID,
	}, data)
	if revealedInline {
		intents = append(intents, DecideNotifications(Transition{
			Kind:              TransitionReveal,
			Actor:             in.Actor,
			VisibleBefore:     false,
			VisibleAfter:      true,
			NewPractitionerID: userID,
		}, data)...)
	}

	return &AppointmentResult{Appointment: apt, Intents: intents}, nil
}

// EditAppointmentInput are the ingress parameters for a modification
type EditAppointmentInput struct {
	ClinicID       string
	AppointmentID  string
	Practitioner   PractitionerChoice
	NewDate        *time.Time
	NewStartTime   *string
	NewNotes       *string
	NewClinicNotes *string
	Actor          string
	ActorUserID    string
	// True iff the actor is a patient
	ApplyBookingConstraints bool
	// Staff must pick a specific practitioner; only patients may ask
	// for auto-resolution.
	AllowAutoAssignment bool
	Now                 time.Time
}

// EditAppointment modifies a confirmed appointment. Visibility follows
// the source of the final practitioner: auto-resolution hides, a
// specific choice reveals, keeping leaves it unchanged.
func EditAppointment(db *gorm.DB, in EditAppointmentInput) (*AppointmentResult, error) {
	apt, err := GetAppointmentByID(db, in.ClinicID, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if apt.IsCancelled() {
		return nil, ErrAlreadyCancelled
	}

	service, err := GetAppointmentType(db, in.ClinicID, apt.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	settings, err := GetClinicSettings(db, in.ClinicID)
	if err != nil {
		return nil, err
	}

	curUserID := apt.CalendarEvent.UserID
	curDate := apt.CalendarEvent.Date
	curStartMin, _ := apt.CalendarEvent.MinuteRange()

	targetDate := curDate
	if in.NewDate != nil {
		targetDate = *in.NewDate
	}
	targetStartMin := curStartMin
	if in.NewStartTime != nil {
		targetStartMin, err = ParseClock(*in.NewStartTime)
		if err != nil {
			return nil, NewValidationError(err.Error())
		}
	}

	// Resolve the effective practitioner and its source
	const (
		sourceKeep = iota
		sourceAuto
		sourceSpecific
	)
	source := sourceKeep
	targetUserID := curUserID
	switch {
	case in.Practitioner.Auto && in.AllowAutoAssignment:
		// Prefer the current practitioner when still feasible (stability)
		targetUserID, err = AutoAssignPractitioner(db, in.ClinicID, service, targetDate, targetStartMin, apt.CalendarEventID, curUserID)
		if err != nil {
			return nil, err
		}
		source = sourceAuto
	case in.Practitioner.Auto:
		// Staff cannot request auto-resolution; keep the current one.
	case in.Practitioner.Keep:
	default:
		targetUserID = in.Practitioner.ID
		source = sourceSpecific
	}

	timeChanged := !SameDate(targetDate, curDate) || targetStartMin != curStartMin
	practitionerChanged := targetUserID != curUserID

	if in.ApplyBookingConstraints {
		// The lead-time rule gates modifications of the existing
		// appointment too, not only the new slot.
		if err := checkLeadTime(settings.BookingRestrictionSettings, in.Now, curDate, CombineDateMinutes(curDate, curStartMin)); err != nil {
			return nil, err
		}
		hadConfirmed, err := HasConfirmedAppointment(db, in.ClinicID, apt.PatientID)
		if err != nil {
			return nil, err
		}
		activeCount, err := CountActiveAppointments(db, in.ClinicID, apt.PatientID, in.Now, apt.ID)
		if err != nil {
			return nil, err
		}
		err = CheckBookingAllowed(BookingPolicyInput{
			Settings:             settings.BookingRestrictionSettings,
			Service:              service,
			Now:                  in.Now,
			Date:                 targetDate,
			StartMin:             targetStartMin,
			IsNewPatient:         !hadConfirmed,
			ActiveCount:          activeCount,
			ExplicitPractitioner: source == sourceSpecific,
		})
		if err != nil {
			return nil, err
		}
	}

	if source == sourceSpecific || timeChanged || practitionerChanged {
		if err := verifyPractitionerFeasible(db, in.ClinicID, service, targetUserID, targetDate, targetStartMin, apt.CalendarEventID, in.Actor); err != nil {
			return nil, err
		}
	}

	wasAuto := apt.IsAutoAssigned
	isAutoAfter := wasAuto
	switch source {
	case sourceAuto:
		isAutoAfter = true
	case sourceSpecific:
		isAutoAfter = false
	}
	// The patient still sees 不指定 until a human picked a name
	patientViewWasAuto := apt.OriginallyAutoAssigned && apt.ReassignedByUserID == nil

	endMin := targetStartMin + service.DurationMinutes
	start := FormatClock(targetStartMin)
	end := FormatClock(endMin)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := lockDayEvents(tx, in.ClinicID, targetUserID, targetDate); err != nil {
			return err
		}
		reqs, err := GetResourceRequirements(tx, service.ID)
		if err != nil {
			return err
		}
		if err := lockResourceRows(tx, in.ClinicID, reqs); err != nil {
			return err
		}
		data, err := loadScheduleData(tx, in.ClinicID, []string{targetUserID}, []time.Time{targetDate})
		if err != nil {
			return err
		}
		if timeChanged || practitionerChanged {
			if err := checkBlockingConflict(data, service, reqs, targetUserID, targetDate, targetStartMin, apt.CalendarEventID, in.Actor, source == sourceAuto); err != nil {
				return err
			}
		}

		eventUpdates := map[string]interface{}{
			"user_id":    targetUserID,
			"date":       targetDate,
			"start_time": start,
			"end_time":   end,
		}
		if err := tx.Model(&models.CalendarEvent{}).
			Where("id = ?", apt.CalendarEventID).
			Updates(eventUpdates).Error; err != nil {
			return err
		}

		aptUpdates := map[string]interface{}{
			"is_auto_assigned": isAutoAfter,
		}
		if in.NewNotes != nil {
			aptUpdates["notes"] = *in.NewNotes
		}
		if in.NewClinicNotes != nil {
			aptUpdates["clinic_notes"] = *in.NewClinicNotes
		}
		// Confirming or moving a pending multi-slot booking settles it
		if apt.PendingTimeConfirmation && (timeChanged || in.Actor != ActorPatient) {
			aptUpdates["pending_time_confirmation"] = false
			aptUpdates["alternative_time_slots"] = "[]"
		}
		// The reveal audit field is reserved for a human admin
		if in.Actor == ActorClinicStaff && wasAuto && !isAutoAfter {
			aptUpdates["reassigned_by_user_id"] = in.ActorUserID
		}
		if err := tx.Model(&models.Appointment{}).
			Where("id = ?", apt.ID).
			Updates(aptUpdates).Error; err != nil {
			return err
		}

		// Reallocate resources when the interval moved
		if timeChanged || practitionerChanged {
			if err := tx.Where("appointment_id = ?", apt.ID).
				Delete(&models.AppointmentResourceAllocation{}).Error; err != nil {
				return err
			}
			resourceIDs, err := data.pickFreeResources(reqs, targetDate, targetStartMin, endMin, apt.CalendarEventID)
			if err != nil {
				return err
			}
			for _, rid := range resourceIDs {
				alloc := &models.AppointmentResourceAllocation{AppointmentID: apt.ID, ResourceID: rid}
				if err := tx.Create(alloc).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := GetAppointmentByID(db, in.ClinicID, in.AppointmentID)
	if err != nil {
		return nil, err
	}

	notes := ""
	if updated.Notes != nil {
		notes = *updated.Notes
	}
	data, err := loadNotificationData(db, in.ClinicID, &updated.Patient, service, updated.ID, targetDate, targetStartMin, notes, []string{curUserID, targetUserID})
	if err != nil {
		return nil, err
	}
	intents := DecideNotifications(Transition{
		Kind:                TransitionEdit,
		Actor:               in.Actor,
		VisibleBefore:       !wasAuto,
		VisibleAfter:        !isAutoAfter,
		PractitionerChanged: practitionerChanged,
		TimeChanged:         timeChanged,
		AutoToSpecific:      patientViewWasAuto && source == sourceSpecific,
		OldPractitionerID:   curUserID,
		NewPractitionerID:   targetUserID,
	}, data)

	return &AppointmentResult{Appointment: updated, Intents: intents}, nil
}

// CancelAppointmentInput are the ingress parameters for a cancellation
type CancelAppointmentInput struct {
	ClinicID      string
	AppointmentID string
	Actor         string
	ActorUserID   string
	Note          *string
	Now           time.Time
}

// CancelAppointment cancels an appointment. Cancelling an already
// cancelled appointment is an idempotent no-op without notifications.
func CancelAppointment(db *gorm.DB, in CancelAppointmentInput) (*AppointmentResult, error) {
	apt, err := GetAppointmentByID(db, in.ClinicID, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if apt.IsCancelled() {
		return &AppointmentResult{Appointment: apt, AlreadyCancelled: true}, nil
	}

	date := apt.CalendarEvent.Date
	startMin, _ := apt.CalendarEvent.MinuteRange()

	status := models.AppointmentStatusCanceledByClinic
	if in.Actor == ActorPatient {
		settings, err := GetClinicSettings(db, in.ClinicID)
		if err != nil {
			return nil, err
		}
		if err := CheckCancellationAllowed(settings.BookingRestrictionSettings, in.Now, date, startMin); err != nil {
			return nil, err
		}
		status = models.AppointmentStatusCanceledByPatient
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":      status,
			"canceled_at": in.Now,
		}
		if in.Note != nil {
			updates["clinic_notes"] = *in.Note
		}
		if err := tx.Model(&models.Appointment{}).
			Where("id = ?", apt.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		// Release the physical resources
		return tx.Where("appointment_id = ?", apt.ID).
			Delete(&models.AppointmentResourceAllocation{}).Error
	})
	if err != nil {
		return nil, err
	}
	apt.Status = status
	apt.CanceledAt = &in.Now

	service, err := GetAppointmentType(db, in.ClinicID, apt.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	notes := ""
	if apt.Notes != nil {
		notes = *apt.Notes
	}
	data, err := loadNotificationData(db, in.ClinicID, &apt.Patient, service, apt.ID, date, startMin, notes, []string{apt.CalendarEvent.UserID})
	if err != nil {
		return nil, err
	}
	intents := DecideNotifications(Transition{
		Kind:              TransitionCancel,
		Actor:             in.Actor,
		VisibleBefore:     !apt.IsAutoAssigned,
		OldPractitionerID: apt.CalendarEvent.UserID,
	}, data)

	return &AppointmentResult{Appointment: apt, Intents: intents}, nil
}

// EditPreview reports the conflicts and notifications an edit would
// produce without committing anything.
type EditPreview struct {
	Conflict *string              `json:"conflict,omitempty"`
	Detail   string               `json:"detail,omitempty"`
	Intents  []NotificationIntent `json:"notifications"`
}

// PreviewEdit dry-runs an edit for the staff UI
func PreviewEdit(db *gorm.DB, in EditAppointmentInput) (*EditPreview, error) {
	apt, err := GetAppointmentByID(db, in.ClinicID, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if apt.IsCancelled() {
		return nil, ErrAlreadyCancelled
	}
	service, err := GetAppointmentType(db, in.ClinicID, apt.AppointmentTypeID)
	if err != nil {
		return nil, err
	}

	curUserID := apt.CalendarEvent.UserID
	curDate := apt.CalendarEvent.Date
	curStartMin, _ := apt.CalendarEvent.MinuteRange()

	targetDate := curDate
	if in.NewDate != nil {
		targetDate = *in.NewDate
	}
	targetStartMin := curStartMin
	if in.NewStartTime != nil {
		targetStartMin, err = ParseClock(*in.NewStartTime)
		if err != nil {
			return nil, NewValidationError(err.Error())
		}
	}
	targetUserID := curUserID
	source := 0
	if !in.Practitioner.Keep && !in.Practitioner.Auto {
		targetUserID = in.Practitioner.ID
		source = 2
	}

	reqs, err := GetResourceRequirements(db, service.ID)
	if err != nil {
		return nil, err
	}
	data, err := loadScheduleData(db, in.ClinicID, []string{targetUserID}, []time.Time{targetDate})
	if err != nil {
		return nil, err
	}
	kind, detail := conflictFor(data, service, reqs, targetUserID, targetDate, targetStartMin, nil, apt.CalendarEventID)

	timeChanged := !SameDate(targetDate, curDate) || targetStartMin != curStartMin
	practitionerChanged := targetUserID != curUserID
	wasAuto := apt.IsAutoAssigned
	isAutoAfter := wasAuto
	if source == 2 {
		isAutoAfter = false
	}
	patientViewWasAuto := apt.OriginallyAutoAssigned && apt.ReassignedByUserID == nil

	notes := ""
	if apt.Notes != nil {
		notes = *apt.Notes
	}
	ndata, err := loadNotificationData(db, in.ClinicID, &apt.Patient, service, apt.ID, targetDate, targetStartMin, notes, []string{curUserID, targetUserID})
	if err != nil {
		return nil, err
	}
	intents := DecideNotifications(Transition{
		Kind:                TransitionEdit,
		Actor:               in.Actor,
		VisibleBefore:       !wasAuto,
		VisibleAfter:        !isAutoAfter,
		PractitionerChanged: practitionerChanged,
		TimeChanged:         timeChanged,
		AutoToSpecific:      patientViewWasAuto && source == 2,
		OldPractitionerID:   curUserID,
		NewPractitionerID:   targetUserID,
	}, ndata)

	preview := &EditPreview{Detail: detail, Intents: intents}
	if kind != "" {
		k := kind
		preview.Conflict = &k
	}
	return preview, nil
}

// RevealAutoAssignment flips one hidden assignment to visible and
// returns the reveal intents. The update is gated on is_auto_assigned
// so concurrent reveals produce at most one notification.
func RevealAutoAssignment(db *gorm.DB, clinicID, appointmentID string) (*AppointmentResult, error) {
	apt, err := GetAppointmentByID(db, clinicID, appointmentID)
	if err != nil {
		return nil, err
	}
	if apt.IsCancelled() || !apt.IsAutoAssigned {
		return &AppointmentResult{Appointment: apt}, nil
	}

	res := db.Model(&models.Appointment{}).
		Where("id = ? AND is_auto_assigned = ?", apt.ID, true).
		Update("is_auto_assigned", false)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return &AppointmentResult{Appointment: apt}, nil
	}
	apt.IsAutoAssigned = false

	service, err := GetAppointmentType(db, clinicID, apt.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	startMin, _ := apt.CalendarEvent.MinuteRange()
	notes := ""
	if apt.Notes != nil {
		notes = *apt.Notes
	}
	data, err := loadNotificationData(db, clinicID, &apt.Patient, service, apt.ID, apt.CalendarEvent.Date, startMin, notes, []string{apt.CalendarEvent.UserID})
	if err != nil {
		return nil, err
	}
	intents := DecideNotifications(Transition{
		Kind:              TransitionReveal,
		Actor:             ActorCron,
		VisibleAfter:      true,
		NewPractitionerID: apt.CalendarEvent.UserID,
	}, data)
	return &AppointmentResult{Appointment: apt, Intents: intents}, nil
}

// GetAppointmentByID fetches an appointment scoped to a clinic with
// its calendar event, patient and service loaded.
func GetAppointmentByID(db *gorm.DB, clinicID, id string) (*models.Appointment, error) {
	var apt models.Appointment
	err := db.Preload("CalendarEvent").Preload("Patient").Preload("AppointmentType").
		Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
		Where("appointments.id = ? AND ce.clinic_id = ?", id, clinicID).
		First(&apt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &apt, nil
}

// GetPendingReviewAppointments lists future confirmed auto-assigned
// appointments ordered by (date, start_time) for the admin review view.
func GetPendingReviewAppointments(db *gorm.DB, clinicID string, now time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := db.Preload("CalendarEvent").Preload("CalendarEvent.User").Preload("Patient").Preload("AppointmentType").
		Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
		Where("ce.clinic_id = ? AND ce.deleted_at IS NULL", clinicID).
		Where("appointments.status = ? AND appointments.is_auto_assigned = ?", models.AppointmentStatusConfirmed, true).
		Where("ce.date > ? OR (ce.date = ? AND ce.start_time >= ?)", DateOf(now), DateOf(now), FormatClock(MinutesOfDay(now))).
		Order("ce.date, ce.start_time").
		Find(&appts).Error
	return appts, err
}

// CountActiveAppointments counts a patient's future non-cancelled
// appointments, optionally excluding one (edit flows).
func CountActiveAppointments(db *gorm.DB, clinicID, patientID string, now time.Time, excludeAppointmentID string) (int64, error) {
	query := db.Model(&models.Appointment{}).
		Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
		Where("ce.clinic_id = ? AND ce.deleted_at IS NULL", clinicID).
		Where("appointments.patient_id = ?", patientID).
		Where("appointments.status = ?", models.AppointmentStatusConfirmed).
		Where("ce.date > ? OR (ce.date = ? AND ce.start_time >= ?)", DateOf(now), DateOf(now), FormatClock(MinutesOfDay(now)))
	if excludeAppointmentID != "" {
		query = query.Where("appointments.id != ?", excludeAppointmentID)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// HasConfirmedAppointment reports whether the patient ever held a
// confirmed appointment in this clinic (new-patient detection).
func HasConfirmedAppointment(db *gorm.DB, clinicID, patientID string) (bool, error) {
	var count int64
	err := db.Model(&models.Appointment{}).
		Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
		Where("ce.clinic_id = ?", clinicID).
		Where("appointments.patient_id = ?", patientID).
		Where("appointments.status = ?", models.AppointmentStatusConfirmed).
		Count(&count).Error
	return count > 0, err
}

// lockDayEvents takes FOR UPDATE on the practitioner's calendar events
// of the target date before the conflict re-check.
func lockDayEvents(tx *gorm.DB, clinicID, userID string, date time.Time) error {
	var events []models.CalendarEvent
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("clinic_id = ? AND user_id = ? AND date = ?", clinicID, userID, date).
		Find(&events).Error
}

// lockResourceRows takes FOR UPDATE on the clinic's resource instances
// of the required types. Bookings by different practitioners contending
// for the last free instance serialize here before the re-check.
func lockResourceRows(tx *gorm.DB, clinicID string, reqs []models.AppointmentResourceRequirement) error {
	if len(reqs) == 0 {
		return nil
	}
	typeIDs := make([]string, 0, len(reqs))
	for _, r := range reqs {
		typeIDs = append(typeIDs, r.ResourceTypeID)
	}
	var resources []models.Resource
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("clinic_id = ? AND resource_type_id IN (?)", clinicID, typeIDs).
		Find(&resources).Error
}

// verifyPractitionerFeasible validates eligibility plus the conflict
// classes that block the given actor.
func verifyPractitionerFeasible(db *gorm.DB, clinicID string, service *models.AppointmentType, userID string, date time.Time, startMin int, excludeEventID, actor string) error {
	eligible, err := EligiblePractitionerIDs(db, clinicID, service.ID)
	if err != nil {
		return err
	}
	found := false
	for _, id := range eligible {
		if id == userID {
			found = true
			break
		}
	}
	if !found {
		return NewConflictError(ConflictNoAvailability, userID)
	}

	reqs, err := GetResourceRequirements(db, service.ID)
	if err != nil {
		return err
	}
	data, err := loadScheduleData(db, clinicID, []string{userID}, []time.Time{date})
	if err != nil {
		return err
	}
	return checkBlockingConflict(data, service, reqs, userID, date, startMin, excludeEventID, actor, false)
}

// checkBlockingConflict maps a conflict class to an error when it
// blocks the actor. Exceptions and outside-hours block patients (and
// auto-resolution) but only warn staff.
func checkBlockingConflict(data *scheduleData, service *models.AppointmentType, reqs []models.AppointmentResourceRequirement, userID string, date time.Time, startMin int, excludeEventID, actor string, strict bool) error {
	kind, detail := conflictFor(data, service, reqs, userID, date, startMin, nil, excludeEventID)
	if kind == "" {
		return nil
	}
	if actor != ActorPatient && !strict {
		if kind == ConflictException || kind == ConflictOutsideHours {
			return nil
		}
	}
	return NewConflictError(kind, detail)
}

// loadNotificationData assembles the rendering context for the
// decision matrix.
func loadNotificationData(db *gorm.DB, clinicID string, patient *models.Patient, service *models.AppointmentType, appointmentID string, date time.Time, startMin int, notes string, userIDs []string) (NotificationData, error) {
	var clinic models.Clinic
	if err := db.First(&clinic, "id = ?", clinicID).Error; err != nil {
		return NotificationData{}, err
	}
	settings, err := decodeSettings(clinic.Settings)
	if err != nil {
		return NotificationData{}, err
	}
	names, err := PractitionerDisplayNames(db, clinicID, userIDs)
	if err != nil {
		return NotificationData{}, err
	}
	return NotificationData{
		Clinic:            &clinic,
		Info:              settings.ClinicInfoSettings,
		Patient:           patient,
		Service:           service,
		AppointmentID:     appointmentID,
		Date:              date,
		StartMin:          startMin,
		Notes:             notes,
		PractitionerNames: names,
	}, nil
}

// PractitionerDisplayNames resolves clinic display names, falling back
// to the account name.
func PractitionerDisplayNames(db *gorm.DB, clinicID string, userIDs []string) (map[string]string, error) {
	var assocs []models.UserClinicAssociation
	if err := db.Preload("User").
		Where("clinic_id = ? AND user_id IN (?)", clinicID, userIDs).
		Find(&assocs).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(assocs))
	for _, a := range assocs {
		name := a.DisplayName
		if name == "" {
			name = a.User.Name
		}
		names[a.UserID] = name
	}
	return names, nil
}
