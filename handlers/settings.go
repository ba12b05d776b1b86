package handlers

import (
	"errors"
	"io"
	"net/http"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/models"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// GetSettingsHandler returns the clinic's normalized settings document
func GetSettingsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	settings, err := services.GetClinicSettings(db.DB, caller.ClinicID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

// UpdateSettingsHandler deep-merges a partial settings payload
func UpdateSettingsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法讀取請求內容")
	}

	settings, err := services.UpdateClinicSettings(db.DB, caller.ClinicID, payload)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

// LiffURLsHandler returns the tokenized patient-facing deep links
func LiffURLsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	var clinic models.Clinic
	if err := db.DB.First(&clinic, "id = ?", caller.ClinicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondServiceError(c, services.ErrNotFound)
		}
		return err
	}
	return c.JSON(http.StatusOK, services.BuildLiffURLs(appConfig.FrontendURL, &clinic))
}

// RegenerateLiffTokenHandler rotates the LIFF access token, invalidating
// every previously issued deep link.
func RegenerateLiffTokenHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	token, err := services.RegenerateLiffToken(db.DB, caller.ClinicID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"liff_access_token": token})
}
