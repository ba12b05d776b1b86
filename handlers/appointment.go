package handlers

import (
	"net/http"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/models"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
)

// requireOwnAppointment limits non-admin staff to their own schedule:
// the appointment's practitioner must be the caller.
func requireOwnAppointment(caller *middleware.Caller, appointmentID string) error {
	if caller.HasRole(models.RoleAdmin) {
		return nil
	}
	apt, err := services.GetAppointmentByID(db.DB, caller.ClinicID, appointmentID)
	if err != nil {
		return err
	}
	if apt.CalendarEvent.UserID != caller.UserID {
		return echo.NewHTTPError(http.StatusForbidden, "只能管理自己的預約")
	}
	return nil
}

// CreateAppointmentHandler books an appointment on behalf of the clinic
func CreateAppointmentHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	var req struct {
		PatientID         string  `json:"patient_id"`
		AppointmentTypeID string  `json:"appointment_type_id"`
		Date              string  `json:"date"`
		StartTime         string  `json:"start_time"`
		PractitionerID    *string `json:"practitioner_id"`
		Notes             *string `json:"notes"`
		ClinicNotes       *string `json:"clinic_notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}
	if !caller.HasRole(models.RoleAdmin) {
		if req.PractitionerID == nil || *req.PractitionerID != caller.UserID {
			return echo.NewHTTPError(http.StatusForbidden, "只能為自己安排預約")
		}
	}
	date, err := services.ParseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := services.CreateAppointment(db.DB, services.CreateAppointmentInput{
		ClinicID:          caller.ClinicID,
		PatientID:         req.PatientID,
		AppointmentTypeID: req.AppointmentTypeID,
		Date:              date,
		StartTime:         req.StartTime,
		Practitioner:      services.ParsePractitionerChoice(req.PractitionerID),
		Notes:             req.Notes,
		ClinicNotes:       req.ClinicNotes,
		Actor:             services.ActorClinicStaff,
		ActorUserID:       caller.UserID,
		Now:               services.Now(),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	notifier.Enqueue(result.Intents...)
	return c.JSON(http.StatusCreated, result.Appointment)
}

// UpdateAppointmentHandler edits or reassigns an appointment
func UpdateAppointmentHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	var req struct {
		PractitionerID *string `json:"practitioner_id"`
		Date           *string `json:"date"`
		StartTime      *string `json:"start_time"`
		Notes          *string `json:"notes"`
		ClinicNotes    *string `json:"clinic_notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}
	if !caller.HasRole(models.RoleAdmin) && req.PractitionerID != nil && *req.PractitionerID != caller.UserID {
		return echo.NewHTTPError(http.StatusForbidden, "只能將預約指派給自己")
	}
	if err := requireOwnAppointment(caller, c.Param("id")); err != nil {
		return err
	}

	in := services.EditAppointmentInput{
		ClinicID:       caller.ClinicID,
		AppointmentID:  c.Param("id"),
		Practitioner:   services.ParsePractitionerChoice(req.PractitionerID),
		NewStartTime:   req.StartTime,
		NewNotes:       req.Notes,
		NewClinicNotes: req.ClinicNotes,
		Actor:          services.ActorClinicStaff,
		ActorUserID:    caller.UserID,
		Now:            services.Now(),
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

// PreviewAppointmentEditHandler dry-runs an edit: conflicts plus the
// notifications it would produce, nothing persisted.
func PreviewAppointmentEditHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	var req struct {
		PractitionerID *string `json:"practitioner_id"`
		Date           *string `json:"date"`
		StartTime      *string `json:"start_time"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	in := services.EditAppointmentInput{
		ClinicID:      caller.ClinicID,
		AppointmentID: c.Param("id"),
		Practitioner:  services.ParsePractitionerChoice(req.PractitionerID),
		NewStartTime:  req.StartTime,
		Actor:         services.ActorClinicStaff,
		ActorUserID:   caller.UserID,
		Now:           services.Now(),
	}
	if req.Date != nil {
		date, err := services.ParseDate(*req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		in.NewDate = &date
	}

	preview, err := services.PreviewEdit(db.DB, in)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

// CancelAppointmentHandler cancels an appointment. Cancelling twice is
// a 200 no-op so retried requests stay safe.
func CancelAppointmentHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	var req struct {
		Note *string `json:"note"`
	}
	_ = c.Bind(&req)

	if err := requireOwnAppointment(caller, c.Param("id")); err != nil {
		return err
	}

	result, err := services.CancelAppointment(db.DB, services.CancelAppointmentInput{
		ClinicID:      caller.ClinicID,
		AppointmentID: c.Param("id"),
		Actor:         services.ActorClinicStaff,
		ActorUserID:   caller.UserID,
		Note:          req.Note,
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

// GetAppointmentHandler returns one appointment with its relations
func GetAppointmentHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	apt, err := services.GetAppointmentByID(db.DB, caller.ClinicID, c.Param("id"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, apt)
}

// PendingReviewHandler lists future auto-assigned appointments awaiting
// an admin's confirmation or reassignment.
func PendingReviewHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	appts, err := services.GetPendingReviewAppointments(db.DB, caller.ClinicID, services.Now())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, appts)
}
