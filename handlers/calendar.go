package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/models"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
)

// CalendarEventsHandler returns calendar entries for a date range and
// an optional practitioner filter. Admins see hidden auto-assignments
// flagged; practitioners only see revealed ones.
func CalendarEventsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	from, err := services.ParseDate(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	to, err := services.ParseDate(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var userIDs []string
	if raw := c.QueryParam("user_ids"); raw != "" {
		userIDs = strings.Split(raw, ",")
	}
	var resourceIDs []string
	if raw := c.QueryParam("resource_ids"); raw != "" {
		resourceIDs = strings.Split(raw, ",")
	}

	views, err := services.GetCalendarEvents(db.DB, services.CalendarQuery{
		ClinicID:                  caller.ClinicID,
		UserIDs:                   userIDs,
		ResourceIDs:               resourceIDs,
		From:                      from,
		To:                        to,
		IncludeHiddenAutoAssigned: caller.HasRole(models.RoleAdmin),
		IncludeCancelled:          c.QueryParam("include_cancelled") == "true",
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

// MonthlyCountsHandler returns per-day confirmed appointment counts
func MonthlyCountsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "年份不合法")
	}
	month, err := strconv.Atoi(c.QueryParam("month"))
	if err != nil || month < 1 || month > 12 {
		return echo.NewHTTPError(http.StatusBadRequest, "月份不合法")
	}

	var userIDs []string
	if raw := c.QueryParam("user_ids"); raw != "" {
		userIDs = strings.Split(raw, ",")
	}

	counts, err := services.GetMonthlyAppointmentCounts(db.DB, caller.ClinicID, userIDs, year, time.Month(month))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, counts)
}
