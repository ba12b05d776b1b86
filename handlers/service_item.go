package handlers

import (
	"net/http"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
)

// ListServiceItemsHandler lists the clinic's active services
func ListServiceItemsHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	items, err := services.ListServiceItems(db.DB, caller.ClinicID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// GetServiceItemHandler returns one service with its dependent
// collections.
func GetServiceItemHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	bundle, err := services.GetServiceItemBundle(db.DB, caller.ClinicID, c.Param("id"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, bundle)
}

// CreateServiceItemHandler creates a service bundle in one transaction
func CreateServiceItemHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	var req services.ServiceItemBundle
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	bundle, err := services.CreateServiceItem(db.DB, caller.ClinicID, &req)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, bundle)
}

// UpdateServiceItemHandler applies a bundle update
func UpdateServiceItemHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	var req services.ServiceItemBundle
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	bundle, err := services.UpdateServiceItem(db.DB, caller.ClinicID, c.Param("id"), &req)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, bundle)
}

// ValidateServiceItemDeletionHandler reports what blocks a deletion
func ValidateServiceItemDeletionHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	blockers, err := services.ValidateServiceItemDeletion(db.DB, caller.ClinicID, c.Param("id"), services.Now())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, blockers)
}

// DeleteServiceItemHandler soft-deletes a service item
func DeleteServiceItemHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	if err := services.DeleteServiceItem(db.DB, caller.ClinicID, c.Param("id"), services.Now()); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
