package handlers

import (
	"net/http"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
)

// ListResourceTypesHandler lists resource types with their instances
func ListResourceTypesHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	types, err := services.ListResourceTypes(db.DB, caller.ClinicID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, types)
}

// CreateResourceTypeHandler adds a resource type
func CreateResourceTypeHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	var req services.ResourceTypeInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	rt, err := services.CreateResourceType(db.DB, caller.ClinicID, req)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, rt)
}

// DeleteResourceTypeHandler removes an empty resource type
func DeleteResourceTypeHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	if err := services.DeleteResourceType(db.DB, caller.ClinicID, c.Param("id")); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateResourceHandler adds a resource instance
func CreateResourceHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	var req services.ResourceInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	resource, err := services.CreateResource(db.DB, caller.ClinicID, req)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, resource)
}

// UpdateResourceHandler renames or toggles a resource
func UpdateResourceHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	var req services.ResourceInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	resource, err := services.UpdateResource(db.DB, caller.ClinicID, c.Param("id"), req)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, resource)
}

// DeleteResourceHandler removes a resource instance
func DeleteResourceHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	if err := services.DeleteResource(db.DB, caller.ClinicID, c.Param("id"), services.Now()); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
