package handlers

import (
	"fmt"
	"net/http"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
)

// ExportAppointmentsHandler streams the clinic's appointments of a date
// range as an xlsx download.
func ExportAppointmentsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	from, err := services.ParseDate(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	to, err := services.ParseDate(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if to.Before(from) {
		return echo.NewHTTPError(http.StatusBadRequest, "結束日期不可早於開始日期")
	}

	buf, err := services.ExportAppointmentsXLSX(db.DB, caller.ClinicID, from, to)
	if err != nil {
		return respondServiceError(c, err)
	}

	filename := fmt.Sprintf("appointments_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
