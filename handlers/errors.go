package handlers

import (
	"errors"
	"net/http"

	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// errorBody is the uniform error envelope of the API
type errorBody struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
}

// overlapBody carries the blocking appointments of a rejected exception
type overlapBody struct {
	Detail       string      `json:"detail"`
	Appointments interface{} `json:"appointments"`
}

// respondServiceError maps service-layer errors onto HTTP statuses.
// Policy and validation failures are 400, conflicts 409, the sentinels
// keep their conventional codes.
func respondServiceError(c echo.Context, err error) error {
	var policyErr *services.PolicyError
	if errors.As(err, &policyErr) {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: policyErr.Error(), Kind: policyErr.Kind})
	}
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: validationErr.Error()})
	}
	var conflictErr *services.ConflictError
	if errors.As(err, &conflictErr) {
		return c.JSON(http.StatusConflict, errorBody{Detail: conflictErr.Error(), Kind: conflictErr.Kind})
	}
	var overlapErr *services.OverlapError
	if errors.As(err, &overlapErr) {
		return c.JSON(http.StatusConflict, overlapBody{Detail: overlapErr.Error(), Appointments: overlapErr.Appointments})
	}
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Detail: err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorBody{Detail: err.Error()})
	case errors.Is(err, services.ErrNameConflict):
		return c.JSON(http.StatusConflict, errorBody{Detail: err.Error()})
	case errors.Is(err, services.ErrAlreadyCancelled):
		return c.JSON(http.StatusBadRequest, errorBody{Detail: err.Error()})
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled service error")
	return c.JSON(http.StatusInternalServerError, errorBody{Detail: "系統發生錯誤，請稍後再試"})
}

// HTTPErrorHandler renders echo errors in the same envelope
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		detail, ok := httpErr.Message.(string)
		if !ok {
			detail = http.StatusText(httpErr.Code)
		}
		_ = c.JSON(httpErr.Code, errorBody{Detail: detail})
		return
	}
	_ = respondServiceError(c, err)
}
