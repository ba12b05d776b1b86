package middleware

import (
	"errors"
	"net/http"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const (
	// UserIDHeader carries the identity asserted by the auth proxy
	UserIDHeader = "X-User-Id"
	// ContextKeyCaller is the context key for the staff caller
	ContextKeyCaller = "caller"
	// ContextKeyClinic is the context key for the resolved clinic
	ContextKeyClinic = "clinic"
)

// Caller is the authenticated staff identity scoped to the clinic in
// the route.
type Caller struct {
	UserID   string
	ClinicID string
	Roles    []string
}

// HasRole checks whether the caller carries the given role
func (c *Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RequireClinicMember resolves the caller's membership in the clinic
// from the :clinic_id route param. Identity arrives from the upstream
// auth proxy in the X-User-Id header.
func RequireClinicMember() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get(UserIDHeader)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "未登入")
			}
			clinicID := c.Param("clinic_id")
			if clinicID == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "缺少診所識別碼")
			}

			var assoc models.UserClinicAssociation
			err := db.DB.First(&assoc, "user_id = ? AND clinic_id = ? AND is_active = ?", userID, clinicID, true).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return echo.NewHTTPError(http.StatusForbidden, "沒有權限存取此診所")
				}
				return err
			}

			c.Set(ContextKeyCaller, &Caller{
				UserID:   userID,
				ClinicID: clinicID,
				Roles:    assoc.RoleList(),
			})
			return next(c)
		}
	}
}

// RequireRole gates a route on any of the given clinic roles
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller := GetCaller(c)
			if caller == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "未登入")
			}
			for _, role := range roles {
				if caller.HasRole(role) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "沒有權限執行此操作")
		}
	}
}

// GetCaller retrieves the staff caller from context
func GetCaller(c echo.Context) *Caller {
	caller, ok := c.Get(ContextKeyCaller).(*Caller)
	if !ok {
		return nil
	}
	return caller
}

// ResolveLiffClinic authenticates patient-facing routes by the LIFF
// access token in the query string and stores the clinic in context.
func ResolveLiffClinic() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.QueryParam("token")
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "缺少存取權杖")
			}
			var clinic models.Clinic
			err := db.DB.First(&clinic, "liff_access_token = ? AND is_active = ?", token, true).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "存取權杖無效")
				}
				return err
			}
			c.Set(ContextKeyClinic, &clinic)
			return next(c)
		}
	}
}

// GetLiffClinic retrieves the LIFF-resolved clinic from context
func GetLiffClinic(c echo.Context) *models.Clinic {
	clinic, ok := c.Get(ContextKeyClinic).(*models.Clinic)
	if !ok {
		return nil
	}
	return clinic
}
