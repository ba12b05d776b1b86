package services

import (
	"errors"
	"time"

	"clinic_flow_app_go/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListClinicMembers lists a clinic's member associations with accounts
func ListClinicMembers(db *gorm.DB, clinicID string) ([]models.UserClinicAssociation, error) {
	var members []models.UserClinicAssociation
	err := db.Preload("User").
		Where("clinic_id = ?", clinicID).
		Order("created_at").
		Find(&members).Error
	return members, err
}

// GetClinicMember fetches one member association
func GetClinicMember(db *gorm.DB, clinicID, userID string) (*models.UserClinicAssociation, error) {
	var assoc models.UserClinicAssociation
	err := db.Preload("User").
		First(&assoc, "clinic_id = ? AND user_id = ?", clinicID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &assoc, nil
}

// MemberUpdateInput mutates a member's clinic-scoped attributes
type MemberUpdateInput struct {
	Roles       []string
	DisplayName *string
	IsActive    *bool
}

// UpdateClinicMember changes a member's roles, display name or active
// flag. A clinic always keeps at least one active admin.
func UpdateClinicMember(db *gorm.DB, clinicID, userID string, in MemberUpdateInput) (*models.UserClinicAssociation, error) {
	for _, role := range in.Roles {
		if !models.IsValidRole(role) {
			return nil, NewValidationError("角色不合法: " + role)
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var assoc models.UserClinicAssociation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&assoc, "clinic_id = ? AND user_id = ?", clinicID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		wasActiveAdmin := assoc.IsActive && assoc.HasRole(models.RoleAdmin)
		if in.Roles != nil {
			assoc.SetRoles(in.Roles)
		}
		if in.DisplayName != nil {
			assoc.DisplayName = *in.DisplayName
		}
		if in.IsActive != nil {
			assoc.IsActive = *in.IsActive
		}

		if wasActiveAdmin && !(assoc.IsActive && assoc.HasRole(models.RoleAdmin)) {
			others, err := countOtherActiveAdmins(tx, clinicID, userID)
			if err != nil {
				return err
			}
			if others == 0 {
				return NewValidationError("診所至少需要一位啟用中的管理員")
			}
		}

		return tx.Model(&assoc).
			Select("roles", "display_name", "is_active").
			Updates(map[string]interface{}{
				"roles":        assoc.Roles,
				"display_name": assoc.DisplayName,
				"is_active":    assoc.IsActive,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetClinicMember(db, clinicID, userID)
}

// RemoveClinicMember soft-deletes the association. The last active
// admin cannot be removed. Future confirmed appointments of the member
// keep standing; the admin reassigns them from the calendar.
func RemoveClinicMember(db *gorm.DB, clinicID, userID string, now time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var assoc models.UserClinicAssociation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&assoc, "clinic_id = ? AND user_id = ?", clinicID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if assoc.IsActive && assoc.HasRole(models.RoleAdmin) {
			others, err := countOtherActiveAdmins(tx, clinicID, userID)
			if err != nil {
				return err
			}
			if others == 0 {
				return NewValidationError("診所至少需要一位啟用中的管理員")
			}
		}
		return tx.Delete(&assoc).Error
	})
}

func countOtherActiveAdmins(tx *gorm.DB, clinicID, excludeUserID string) (int64, error) {
	var count int64
	err := tx.Model(&models.UserClinicAssociation{}).
		Where("clinic_id = ? AND user_id != ? AND is_active = ?", clinicID, excludeUserID, true).
		Where("roles LIKE ?", "%"+models.RoleAdmin+"%").
		Count(&count).Error
	return count, err
}
