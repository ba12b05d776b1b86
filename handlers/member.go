package handlers

import (
	"net/http"

	"clinic_flow_app_go/db"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/services"

	"github.com/labstack/echo/v4"
)

// ListMembersHandler lists the clinic's staff members
func ListMembersHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	members, err := services.ListClinicMembers(db.DB, caller.ClinicID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, members)
}

// UpdateMemberHandler changes a member's roles, display name or active
// flag.
func UpdateMemberHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	var req struct {
		Roles       []string `json:"roles"`
		DisplayName *string  `json:"display_name"`
		IsActive    *bool    `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	assoc, err := services.UpdateClinicMember(db.DB, caller.ClinicID, c.Param("user_id"), services.MemberUpdateInput{
		Roles:       req.Roles,
		DisplayName: req.DisplayName,
		IsActive:    req.IsActive,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, assoc)
}

// RemoveMemberHandler removes a member from the clinic
func RemoveMemberHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)
	if err := services.RemoveClinicMember(db.DB, caller.ClinicID, c.Param("user_id"), services.Now()); err != nil {
		return respondServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateInvitationHandler emails a signup link to a prospective member
func CreateInvitationHandler(c echo.Context) error {
	caller := middleware.GetCaller(c)

	var req struct {
		Email string   `json:"email"`
		Roles []string `json:"roles"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	token, err := services.CreateInvitation(db.DB, appConfig, services.InvitationInput{
		ClinicID: caller.ClinicID,
		Email:    req.Email,
		Roles:    req.Roles,
		Now:      services.Now(),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, token)
}

// ValidateSignupTokenHandler resolves an invitation token for the
// signup page. Public: the token itself is the credential.
func ValidateSignupTokenHandler(c echo.Context) error {
	token, err := services.ValidateSignupToken(db.DB, c.QueryParam("token"), services.Now())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"clinic_name":   token.Clinic.Name,
		"default_roles": token.DefaultRoles,
		"expires_at":    token.ExpiresAt,
	})
}

// AcceptSignupHandler completes a signup, burning the token
func AcceptSignupHandler(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無法解析請求內容")
	}

	assoc, err := services.AcceptSignup(db.DB, services.AcceptSignupInput{
		Token: req.Token,
		Name:  req.Name,
		Email: req.Email,
		Now:   services.Now(),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, assoc)
}
