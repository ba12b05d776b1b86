package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic_flow_app_go/config"
	"clinic_flow_app_go/models"

	"gorm.io/gorm"
)

// signupTokenTTL is how long an invitation link stays valid
const signupTokenTTL = 7 * 24 * time.Hour

// InvitationInput creates a signup link for a prospective member
type InvitationInput struct {
	ClinicID string
	Email    string
	Roles    []string
	Now      time.Time
}

// CreateInvitation mints a signup token and emails the signup link
func CreateInvitation(db *gorm.DB, cfg *config.Config, in InvitationInput) (*models.SignupToken, error) {
	if in.Email == "" {
		return nil, NewValidationError("缺少電子郵件")
	}
	if len(in.Roles) == 0 {
		return nil, NewValidationError("缺少角色")
	}
	for _, role := range in.Roles {
		if !models.IsValidRole(role) {
			return nil, NewValidationError("角色不合法: " + role)
		}
	}

	var clinic models.Clinic
	if err := db.First(&clinic, "id = ?", in.ClinicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	raw, err := NewLiffToken()
	if err != nil {
		return nil, err
	}
	token := &models.SignupToken{
		ClinicID:     in.ClinicID,
		Token:        raw,
		DefaultRoles: strings.Join(in.Roles, ","),
		ExpiresAt:    in.Now.Add(signupTokenTTL),
	}
	if err := db.Create(token).Error; err != nil {
		return nil, err
	}

	link := fmt.Sprintf("%s/signup?token=%s", cfg.FrontendURL, raw)
	email := BuildInvitationEmail(in.Email, clinic.Name, link,
		token.ExpiresAt.In(ClinicLocation).Format("2006-01-02 15:04"), in.Roles)
	SendEmailAsync(cfg, email)

	return token, nil
}

// ValidateSignupToken resolves a raw token to its clinic, rejecting
// expired or unknown tokens.
func ValidateSignupToken(db *gorm.DB, raw string, now time.Time) (*models.SignupToken, error) {
	var token models.SignupToken
	err := db.Preload("Clinic").First(&token, "token = ?", raw).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if token.IsExpired(now) {
		return nil, NewValidationError("註冊連結已失效")
	}
	return &token, nil
}

// AcceptSignupInput completes a signup with the invited person's details
type AcceptSignupInput struct {
	Token string
	Name  string
	Email string
	Now   time.Time
}

// AcceptSignup consumes a signup token: the user account is created or
// reused by email, the clinic association is created with the token's
// default roles, and the token is burned.
func AcceptSignup(db *gorm.DB, in AcceptSignupInput) (*models.UserClinicAssociation, error) {
	if in.Name == "" || in.Email == "" {
		return nil, NewValidationError("缺少姓名或電子郵件")
	}

	var assoc *models.UserClinicAssociation
	err := db.Transaction(func(tx *gorm.DB) error {
		token, err := ValidateSignupToken(tx, in.Token, in.Now)
		if err != nil {
			return err
		}

		var user models.User
		err = tx.First(&user, "email = ?", in.Email).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{Name: in.Name, Email: in.Email}
			err = tx.Create(&user).Error
		}
		if err != nil {
			return err
		}

		var existing models.UserClinicAssociation
		err = tx.First(&existing, "clinic_id = ? AND user_id = ?", token.ClinicID, user.ID).Error
		if err == nil {
			return NewValidationError("此帳號已是診所成員")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		assoc = &models.UserClinicAssociation{
			UserID:      user.ID,
			ClinicID:    token.ClinicID,
			Roles:       token.DefaultRoles,
			DisplayName: in.Name,
			IsActive:    true,
		}
		if err := tx.Create(assoc).Error; err != nil {
			return err
		}
		assoc.User = user

		return tx.Delete(token).Error
	})
	if err != nil {
		return nil, err
	}
	return assoc, nil
}
