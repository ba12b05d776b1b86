package handlers

import (
	"net/http"
	"time"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
)

// FreeSlotsHandler returns bookable start times for one practitioner
// and service over a batch of dates.
func FreeSlotsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	var req struct {
		UserID                 string   `json:"user_id"`
		AppointmentTypeID      string   `json:"appointment_type_id"`
		Dates                  []string `json:"dates"`
		ExcludeCalendarEventID string   `json:"exclude_calendar_event_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}
	if len(req.Dates) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "缺少查詢日期")
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
		ClinicID:               caller.ClinicID,
		UserID:                 req.UserID,
		AppointmentTypeID:      req.AppointmentTypeID,
		Dates:                  dates,
		ExcludeCalendarEventID: req.ExcludeCalendarEventID,
		Now:                    services.Now(),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

// CheckConflictsHandler evaluates a proposed interval against up to ten
// practitioners at once.
func CheckConflictsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	var req struct {
		UserIDs                []string `json:"user_ids"`
		Date                   string   `json:"date"`
		StartTime              string   `json:"start_time"`
		AppointmentTypeID      string   `json:"appointment_type_id"`
		ResourceIDs            []string `json:"resource_ids"`
		ExcludeCalendarEventID string   `json:"exclude_calendar_event_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}
	date, err := services.ParseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results, err := services.CheckConflicts(db.DB, services.ConflictQuery{
		ClinicID:               caller.ClinicID,
		UserIDs:                req.UserIDs,
		Date:                   date,
		StartTime:              req.StartTime,
		AppointmentTypeID:      req.AppointmentTypeID,
		ResourceIDs:            req.ResourceIDs,
		ExcludeCalendarEventID: req.ExcludeCalendarEventID,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}
