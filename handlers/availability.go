package handlers

import (
	"net/http"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/models"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
)

// GetWeeklyAvailabilityHandler returns a practitioner's weekly template
func GetWeeklyAvailabilityHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	slots, err := services.GetWeeklyAvailability(db.DB, caller.ClinicID, c.Param("user_id"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, slots)
}

// ReplaceWeeklyAvailabilityHandler swaps the full weekly template.
// Practitioners may edit their own; admins may edit anyone's.
func ReplaceWeeklyAvailabilityHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	userID := c.Param("user_id")
	if userID != caller.UserID && !caller.HasRole(models.RoleAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "只能編輯自己的看診時間")
	}

	var req struct {
		Slots []services.WeeklySlotInput `json:"slots"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	slots, err := services.ReplaceWeeklyAvailability(db.DB, caller.ClinicID, userID, req.Slots)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, slots)
}

// CreateExceptionHandler blocks out time for a practitioner. Overlapping
// appointments return 409 with the list unless force is set.
func CreateExceptionHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	userID := c.Param("user_id")
	if userID != caller.UserID && !caller.HasRole(models.RoleAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "只能編輯自己的休診時間")
	}

	var req struct {
		Date      string  `json:"date"`
		StartTime *string `json:"start_time"`
		EndTime   *string `json:"end_time"`
		Reason    string  `json:"reason"`
		Force     bool    `json:"force"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}
	date, err := services.ParseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	event, err := services.CreateAvailabilityException(db.DB, services.ExceptionInput{
		ClinicID:  caller.ClinicID,
		UserID:    userID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
		Force:     req.Force,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, event)
}

// DeleteExceptionHandler removes a time-off block
func DeleteExceptionHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	if err := services.DeleteAvailabilityException(db.DB, caller.ClinicID, c.Param("id")); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListExceptionsHandler lists time-off blocks in a date range
func ListExceptionsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	from, err := services.ParseDate(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	to, err := services.ParseDate(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	events, err := services.ListAvailabilityExceptions(db.DB, caller.ClinicID, c.Param("user_id"), from, to)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}
