package handlers

import (
	"net/http"
	"time"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/models"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
)

// LineUserIDHeader carries the LINE identity verified by the LIFF front end
const LineUserIDHeader = "X-Line-User-Id"

// liffPatient resolves the acting patient and verifies it belongs to
// the token's clinic and the caller's LINE identity.
func liffPatient(c echo.Context, clinic *models.Clinic, patientID string) (*models.Patient, error) {
	lineID := c.Request().Header.Get(LineUserIDHeader)
	if lineID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "缺少 LINE 使用者識別碼")
	}
	var patient models.Patient
	err := db.DB.Preload("LineUser").
		First(&patient, "id = ? AND clinic_id = ?", patientID, clinic.ID).Error
	if err != nil {
		return nil, services.ErrNotFound
	}
	if patient.LineUser == nil || patient.LineUser.LineID != lineID {
		return nil, services.ErrForbidden
	}
	return &patient, nil
}

// LiffServicesHandler lists the services a patient may book
func LiffServicesHandler(c echo.Context) error {
	clinic := middleware.GetLiffClinic(c)
	items, err := services.ListServiceItems(db.DB, clinic.ID)
	if err != nil {
		return respondServiceError(c, err)
	}
	visible := make([]models.AppointmentType, 0, len(items))
	for _, item := range items {
		if item.AllowNewPatientBooking || item.AllowExistingPatientBooking {
			visible = append(visible, item)
		}
	}
	return c.JSON(http.StatusOK, visible)
}

// LiffFreeSlotsHandler returns patient-bookable start times, filtered
// by the clinic's temporal booking restrictions.
func LiffFreeSlotsHandler(c echo.Context) error {
	clinic := middleware.GetLiffClinic(c)

	var req struct {
		UserID            string   `json:"user_id"`
		AppointmentTypeID string   `json:"appointment_type_id"`
		Dates             []string `json:"dates"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}
	dates := make([]time.Time, 0, len(req.Dates))
	for _, d := range req.Dates {
		date, err := services.ParseDate(d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		dates = append(dates, date)
	}

	results, err := services.GetFreeSlots(db.DB, services.SlotQuery{
		ClinicID:          clinic.ID,
		UserID:            req.UserID,
		AppointmentTypeID: req.AppointmentTypeID,
		Dates:             dates,
		ForPatient:        true,
		Now:               services.Now(),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

// LiffCreateAppointmentHandler books an appointment as the patient
func LiffCreateAppointmentHandler(c echo.Context) error {
	clinic := middleware.GetLiffClinic(c)

	var req struct {
		PatientID         string   `json:"patient_id"`
		AppointmentTypeID string   `json:"appointment_type_id"`
		Date              string   `json:"date"`
		StartTime         string   `json:"start_time"`
		PractitionerID    *string  `json:"practitioner_id"`
		Notes             *string  `json:"notes"`
		AlternativeSlots  []string `json:"alternative_slots"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}
	patient, err := liffPatient(c, clinic, req.PatientID)
	if err != nil {
		return respondServiceError(c, err)
	}
	date, err := services.ParseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	choice := services.ParsePractitionerChoice(req.PractitionerID)
	if choice.Keep {
		// Absent practitioner on a patient booking means no preference
		choice = services.PractitionerChoice{Auto: true}
	}

	result, err := services.CreateAppointment(db.DB, services.CreateAppointmentInput{
		ClinicID:          clinic.ID,
		PatientID:         patient.ID,
		AppointmentTypeID: req.AppointmentTypeID,
		Date:              date,
		StartTime:         req.StartTime,
		Practitioner:      choice,
		Notes:             req.Notes,
		Actor:             services.ActorPatient,
		AlternativeSlots:  req.AlternativeSlots,
		Now:               services.Now(),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	notifier.Enqueue(result.Intents...)
	return c.JSON(http.StatusCreated, result.Appointment)
}

// LiffUpdateAppointmentHandler reschedules the patient's appointment
func LiffUpdateAppointmentHandler(c echo.Context) error {
	clinic := middleware.GetLiffClinic(c)

	var req struct {
		PatientID      string  `json:"patient_id"`
		PractitionerID *string `json:"practitioner_id"`
		Date           *string `json:"date"`
		StartTime      *string `json:"start_time"`
		Notes          *string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}
	patient, err := liffPatient(c, clinic, req.PatientID)
	if err != nil {
		return respondServiceError(c, err)
	}
	apt, err := services.GetAppointmentByID(db.DB, clinic.ID, c.Param("id"))
	if err != nil {
		return respondServiceError(c, err)
	}
	if apt.PatientID != patient.ID {
		return respondServiceError(c, services.ErrForbidden)
	}

	in := services.EditAppointmentInput{
		ClinicID:                clinic.ID,
		AppointmentID:           apt.ID,
		Practitioner:            services.ParsePractitionerChoice(req.PractitionerID),
		NewStartTime:            req.StartTime,
		NewNotes:                req.Notes,
		Actor:                   services.ActorPatient,
		ApplyBookingConstraints: true,
		AllowAutoAssignment:     true,
		Now:                     services.Now(),
	}
	if req.Date != nil {
		date, err := services.ParseDate(*req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		in.NewDate = &date
	}

	result, err := services.EditAppointment(db.DB, in)
	if err != nil {
		return respondServiceError(c, err)
	}
	notifier.Enqueue(result.Intents...)
	return c.JSON(http.StatusOK, result.Appointment)
}

// LiffCancelAppointmentHandler cancels the patient's appointment,
// subject to the clinic's cancellation window.
func LiffCancelAppointmentHandler(c echo.Context) error {
	clinic := middleware.GetLiffClinic(c)

	patient, err := liffPatient(c, clinic, c.QueryParam("patient_id"))
	if err != nil {
		return respondServiceError(c, err)
	}
	apt, err := services.GetAppointmentByID(db.DB, clinic.ID, c.Param("id"))
	if err != nil {
		return respondServiceError(c, err)
	}
	if apt.PatientID != patient.ID {
		return respondServiceError(c, services.ErrForbidden)
	}

	result, err := services.CancelAppointment(db.DB, services.CancelAppointmentInput{
		ClinicID:      clinic.ID,
		AppointmentID: apt.ID,
		Actor:         services.ActorPatient,
		Now:           services.Now(),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	if result.AlreadyCancelled {
		return c.JSON(http.StatusOK, map[string]string{"detail": "此預約已取消"})
	}
	notifier.Enqueue(result.Intents...)
	return c.JSON(http.StatusOK, result.Appointment)
}

// LiffAppointmentsHandler lists the patient's appointments. Hidden
// auto-assignments render as 不指定 instead of a practitioner name.
func LiffAppointmentsHandler(c echo.Context) error {
	clinic := middleware.GetLiffClinic(c)

	patient, err := liffPatient(c, clinic, c.QueryParam("patient_id"))
	if err != nil {
		return respondServiceError(c, err)
	}

	var appts []models.Appointment
	err = db.DB.Preload("CalendarEvent").Preload("AppointmentType").
		Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
		Where("ce.clinic_id = ? AND ce.deleted_at IS NULL", clinic.ID).
		Where("appointments.patient_id = ?", patient.ID).
		Order("ce.date DESC, ce.start_time DESC").
		Find(&appts).Error
	if err != nil {
		return respondServiceError(c, err)
	}

	userIDs := make([]string, 0, len(appts))
	for _, a := range appts {
		userIDs = append(userIDs, a.CalendarEvent.UserID)
	}
	names, err := services.PractitionerDisplayNames(db.DB, clinic.ID, userIDs)
	if err != nil {
		return respondServiceError(c, err)
	}

	type patientAppointment struct {
		ID                      string  `json:"id"`
		Date                    string  `json:"date"`
		StartTime               *string `json:"start_time"`
		EndTime                 *string `json:"end_time"`
		AppointmentTypeName     string  `json:"appointment_type_name"`
		PractitionerName        string  `json:"practitioner_name"`
		Status                  string  `json:"status"`
		Notes                   *string `json:"notes,omitempty"`
		PendingTimeConfirmation bool    `json:"pending_time_confirmation"`
	}
	out := make([]patientAppointment, 0, len(appts))
	for _, a := range appts {
		// The patient never learns a practitioner name the clinic has
		// not stood behind: originally-auto bookings show 不指定 until a
		// human reassignment.
		name := names[a.CalendarEvent.UserID]
		if a.OriginallyAutoAssigned && a.ReassignedByUserID == nil {
			name = "不指定"
		}
		out = append(out, patientAppointment{
			ID:                      a.ID,
			Date:                    a.CalendarEvent.Date.Format("2006-01-02"),
			StartTime:               a.CalendarEvent.StartTime,
			EndTime:                 a.CalendarEvent.EndTime,
			AppointmentTypeName:     a.AppointmentType.Name,
			PractitionerName:        name,
			Status:                  a.Status,
			Notes:                   a.Notes,
			PendingTimeConfirmation: a.PendingTimeConfirmation,
		})
	}
	return c.JSON(http.StatusOK, out)
}
