package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Clinic-scoped roles
const (
	RoleAdmin        = "admin"
	RolePractitioner = "practitioner"
	RoleReadOnly     = "read_only"
)

// User is a staff account. Identity comes from an external provider;
// clinic membership lives in UserClinicAssociation.
type User struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
}

// BeforeCreate hook to generate UUID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// UserClinicAssociation links a user to a clinic with clinic-specific
// roles and display name. Roles are stored comma-separated.
type UserClinicAssociation struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID   string `gorm:"type:uuid;not null;index:idx_user_clinic,unique" json:"user_id"`
	ClinicID string `gorm:"type:uuid;not null;index:idx_user_clinic,unique" json:"clinic_id"`

	Roles       string `gorm:"not null;default:''" json:"roles"` // e.g. "admin,practitioner"
	DisplayName string `json:"display_name"`
	IsActive    bool   `gorm:"not null;default:true" json:"is_active"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Clinic Clinic `gorm:"foreignKey:ClinicID" json:"-"`
}

// BeforeCreate hook to generate UUID
func (a *UserClinicAssociation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for UserClinicAssociation model
func (UserClinicAssociation) TableName() string {
	return "user_clinic_associations"
}

// RoleList returns the association's roles as a slice
func (a *UserClinicAssociation) RoleList() []string {
	if a.Roles == "" {
		return nil
	}
	parts := strings.Split(a.Roles, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if r := strings.TrimSpace(p); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// HasRole checks whether the association carries the given role
func (a *UserClinicAssociation) HasRole(role string) bool {
	for _, r := range a.RoleList() {
		if r == role {
			return true
		}
	}
	return false
}

// SetRoles replaces the association's roles
func (a *UserClinicAssociation) SetRoles(roles []string) {
	a.Roles = strings.Join(roles, ",")
}

// IsValidRole checks if the role name is known
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RolePractitioner || role == RoleReadOnly
}

// SignupToken invites a new member into a clinic
type SignupToken struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ClinicID     string    `gorm:"type:uuid;not null;index" json:"clinic_id"`
	Token        string    `gorm:"size:64;uniqueIndex;not null" json:"token"`
	DefaultRoles string    `gorm:"not null;default:''" json:"default_roles"`
	ExpiresAt    time.Time `gorm:"not null" json:"expires_at"`

	// Relationships
	Clinic Clinic `gorm:"foreignKey:ClinicID" json:"-"`
}

// BeforeCreate hook to generate UUID
func (t *SignupToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for SignupToken model
func (SignupToken) TableName() string {
	return "signup_tokens"
}

// IsExpired checks whether the token has passed its expiry
func (t *SignupToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
