package services

import (
	"errors"
	"fmt"
	"time"

	"clinic_flow_app_go/models"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetAppointmentType fetches an active service item scoped to a clinic
func GetAppointmentType(db *gorm.DB, clinicID, id string) (*models.AppointmentType, error) {
	var service models.AppointmentType
	err := db.First(&service, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &service, nil
}

// ListServiceItems lists a clinic's active services in display order
func ListServiceItems(db *gorm.DB, clinicID string) ([]models.AppointmentType, error) {
	var items []models.AppointmentType
	err := db.Where("clinic_id = ?", clinicID).
		Order("display_order, name").
		Find(&items).Error
	return items, err
}

// ServiceItemBundle is a service item with its dependent collections,
// read and written as one unit.
type ServiceItemBundle struct {
	models.AppointmentType
	PractitionerIDs      []string                                `json:"practitioner_ids"`
	BillingScenarios     []models.BillingScenario                `json:"billing_scenarios"`
	ResourceRequirements []models.AppointmentResourceRequirement `json:"resource_requirements"`
	FollowUpMessages     []models.FollowUpMessage                `json:"follow_up_messages"`
}

// GetServiceItemBundle reads a service with all dependent collections
func GetServiceItemBundle(db *gorm.DB, clinicID, id string) (*ServiceItemBundle, error) {
	service, err := GetAppointmentType(db, clinicID, id)
	if err != nil {
		return nil, err
	}
	bundle := &ServiceItemBundle{AppointmentType: *service}

	var links []models.PractitionerAppointmentType
	if err := db.Where("appointment_type_id = ?", id).Find(&links).Error; err != nil {
		return nil, err
	}
	bundle.PractitionerIDs = lo.Map(links, func(l models.PractitionerAppointmentType, _ int) string {
		return l.UserID
	})

	if err := db.Where("appointment_type_id = ?", id).
		Order("user_id, name").
		Find(&bundle.BillingScenarios).Error; err != nil {
		return nil, err
	}
	if bundle.ResourceRequirements, err = GetResourceRequirements(db, id); err != nil {
		return nil, err
	}
	if err := db.Where("appointment_type_id = ?", id).
		Order("display_order").
		Find(&bundle.FollowUpMessages).Error; err != nil {
		return nil, err
	}
	return bundle, nil
}

// CreateServiceItem creates a service item together with its
// practitioner links, billing scenarios, resource requirements and
// follow-up messages.
func CreateServiceItem(db *gorm.DB, clinicID string, in *ServiceItemBundle) (*ServiceItemBundle, error) {
	if err := validateServiceFields(in); err != nil {
		return nil, err
	}

	var created string
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := reserveServiceName(tx, clinicID, in.Name, in.DurationMinutes, ""); err != nil {
			return err
		}

		service := in.AppointmentType
		service.ID = ""
		service.ClinicID = clinicID
		if err := tx.Create(&service).Error; err != nil {
			return err
		}
		created = service.ID

		if err := replacePractitionerLinks(tx, service.ID, in.PractitionerIDs); err != nil {
			return err
		}
		if err := replaceResourceRequirements(tx, service.ID, in.ResourceRequirements); err != nil {
			return err
		}
		if err := syncBillingScenarios(tx, service.ID, in.BillingScenarios); err != nil {
			return err
		}
		return syncFollowUpMessages(tx, service.ID, in.FollowUpMessages)
	})
	if err != nil {
		return nil, err
	}
	return GetServiceItemBundle(db, clinicID, created)
}

// UpdateServiceItem applies a bundle update: scalar fields overwrite,
// practitioner links and resource requirements are replaced wholesale,
// billing scenarios and follow-ups diff-sync by id.
func UpdateServiceItem(db *gorm.DB, clinicID, id string, in *ServiceItemBundle) (*ServiceItemBundle, error) {
	if err := validateServiceFields(in); err != nil {
		return nil, err
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var service models.AppointmentType
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&service, "id = ? AND clinic_id = ?", id, clinicID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if in.Name != service.Name {
			if err := reserveServiceName(tx, clinicID, in.Name, in.DurationMinutes, id); err != nil {
				return err
			}
		}

		next := in.AppointmentType
		next.ID = id
		next.ClinicID = clinicID
		next.CreatedAt = service.CreatedAt
		next.ApplyMessageDefaults()
		if err := tx.Model(&service).Select("*").
			Omit("id", "clinic_id", "created_at", "deleted_at").
			Updates(&next).Error; err != nil {
			return err
		}

		if err := replacePractitionerLinks(tx, id, in.PractitionerIDs); err != nil {
			return err
		}
		if err := replaceResourceRequirements(tx, id, in.ResourceRequirements); err != nil {
			return err
		}
		if err := syncBillingScenarios(tx, id, in.BillingScenarios); err != nil {
			return err
		}
		return syncFollowUpMessages(tx, id, in.FollowUpMessages)
	})
	if err != nil {
		return nil, err
	}
	return GetServiceItemBundle(db, clinicID, id)
}

// DeletionBlockers lists what prevents removing a service item
type DeletionBlockers struct {
	PractitionerCount      int64 `json:"practitioner_count"`
	FutureAppointmentCount int64 `json:"future_appointment_count"`
}

// CanDelete reports whether nothing blocks the deletion
func (b DeletionBlockers) CanDelete() bool {
	return b.FutureAppointmentCount == 0
}

// ValidateServiceItemDeletion reports blockers without deleting
func ValidateServiceItemDeletion(db *gorm.DB, clinicID, id string, now time.Time) (*DeletionBlockers, error) {
	if _, err := GetAppointmentType(db, clinicID, id); err != nil {
		return nil, err
	}
	blockers := &DeletionBlockers{}
	if err := db.Model(&models.PractitionerAppointmentType{}).
		Where("appointment_type_id = ?", id).
		Count(&blockers.PractitionerCount).Error; err != nil {
		return nil, err
	}
	err := db.Model(&models.Appointment{}).
		Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
		Where("appointments.appointment_type_id = ?", id).
		Where("appointments.status = ?", models.AppointmentStatusConfirmed).
		Where("ce.deleted_at IS NULL").
		Where("ce.date > ? OR (ce.date = ? AND ce.start_time >= ?)", DateOf(now), DateOf(now), FormatClock(MinutesOfDay(now))).
		Count(&blockers.FutureAppointmentCount).Error
	if err != nil {
		return nil, err
	}
	return blockers, nil
}

// DeleteServiceItem soft-deletes a service and its practitioner links.
// A service with future confirmed appointments cannot be deleted.
func DeleteServiceItem(db *gorm.DB, clinicID, id string, now time.Time) error {
	blockers, err := ValidateServiceItemDeletion(db, clinicID, id, now)
	if err != nil {
		return err
	}
	if !blockers.CanDelete() {
		return NewValidationError(fmt.Sprintf("尚有 %d 筆未完成的預約，無法刪除此服務項目", blockers.FutureAppointmentCount))
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("appointment_type_id = ?", id).
			Delete(&models.PractitionerAppointmentType{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND clinic_id = ?", id, clinicID).
			Delete(&models.AppointmentType{}).Error
	})
}

func validateServiceFields(in *ServiceItemBundle) error {
	if in.DurationMinutes <= 0 {
		return NewValidationError("服務項目時長必須大於零")
	}
	if in.Name == "" {
		return NewValidationError("服務項目名稱不可為空")
	}
	for _, b := range in.BillingScenarios {
		if b.RevenueShare > b.Amount {
			return NewValidationError("分潤金額不可超過收費金額")
		}
	}
	for _, f := range in.FollowUpMessages {
		switch f.TimingMode {
		case models.FollowUpTimingHoursAfter:
			if f.OffsetHours <= 0 {
				return NewValidationError("追蹤訊息的延後時數必須大於零")
			}
		case models.FollowUpTimingSpecificTime:
			if f.TimeOfDay == nil {
				return NewValidationError("追蹤訊息缺少發送時間")
			}
			if _, err := ParseClock(*f.TimeOfDay); err != nil {
				return NewValidationError(err.Error())
			}
		default:
			return NewValidationError("追蹤訊息的時間模式不合法")
		}
	}
	return nil
}

// reserveServiceName enforces name uniqueness among a clinic's active
// services. Soft-deleted rows holding the same (name, duration) are
// renamed with a timestamp suffix so the name can be reused.
func reserveServiceName(tx *gorm.DB, clinicID, name string, duration int, excludeID string) error {
	query := tx.Model(&models.AppointmentType{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("clinic_id = ? AND name = ?", clinicID, name)
	if excludeID != "" {
		query = query.Where("id != ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrNameConflict
	}

	suffix := fmt.Sprintf("%s (deleted %s)", name, Now().Format("2006-01-02T15:04:05"))
	return tx.Unscoped().Model(&models.AppointmentType{}).
		Where("clinic_id = ? AND name = ? AND duration_minutes = ? AND deleted_at IS NOT NULL", clinicID, name, duration).
		Update("name", suffix).Error
}

func replacePractitionerLinks(tx *gorm.DB, appointmentTypeID string, userIDs []string) error {
	if err := tx.Where("appointment_type_id = ?", appointmentTypeID).
		Delete(&models.PractitionerAppointmentType{}).Error; err != nil {
		return err
	}
	for _, userID := range lo.Uniq(userIDs) {
		link := &models.PractitionerAppointmentType{UserID: userID, AppointmentTypeID: appointmentTypeID}
		if err := tx.Create(link).Error; err != nil {
			return err
		}
	}
	return nil
}

func replaceResourceRequirements(tx *gorm.DB, appointmentTypeID string, reqs []models.AppointmentResourceRequirement) error {
	if err := tx.Where("appointment_type_id = ?", appointmentTypeID).
		Delete(&models.AppointmentResourceRequirement{}).Error; err != nil {
		return err
	}
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return NewValidationError("設備需求數量必須大於零")
		}
		row := &models.AppointmentResourceRequirement{
			AppointmentTypeID: appointmentTypeID,
			ResourceTypeID:    req.ResourceTypeID,
			Quantity:          req.Quantity,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
	}
	return nil
}

// syncBillingScenarios diff-syncs by id: rows with a known id update,
// rows without an id insert, absent existing rows soft-delete.
func syncBillingScenarios(tx *gorm.DB, appointmentTypeID string, incoming []models.BillingScenario) error {
	var existing []models.BillingScenario
	if err := tx.Where("appointment_type_id = ?", appointmentTypeID).Find(&existing).Error; err != nil {
		return err
	}
	existingByID := lo.KeyBy(existing, func(b models.BillingScenario) string { return b.ID })

	seen := make(map[string]bool)
	for _, row := range incoming {
		row.AppointmentTypeID = appointmentTypeID
		if row.ID != "" {
			if _, ok := existingByID[row.ID]; !ok {
				return NewValidationError("收費方案不存在")
			}
			seen[row.ID] = true
			if err := tx.Model(&models.BillingScenario{}).
				Where("id = ?", row.ID).
				Select("user_id", "name", "amount", "revenue_share", "is_default").
				Updates(&row).Error; err != nil {
				return err
			}
			continue
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	for _, old := range existing {
		if !seen[old.ID] {
			if err := tx.Delete(&models.BillingScenario{}, "id = ?", old.ID).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// syncFollowUpMessages diff-syncs by id, same contract as billing
func syncFollowUpMessages(tx *gorm.DB, appointmentTypeID string, incoming []models.FollowUpMessage) error {
	var existing []models.FollowUpMessage
	if err := tx.Where("appointment_type_id = ?", appointmentTypeID).Find(&existing).Error; err != nil {
		return err
	}
	existingByID := lo.KeyBy(existing, func(f models.FollowUpMessage) string { return f.ID })

	seen := make(map[string]bool)
	for _, row := range incoming {
		row.AppointmentTypeID = appointmentTypeID
		if row.ID != "" {
			if _, ok := existingByID[row.ID]; !ok {
				return NewValidationError("追蹤訊息不存在")
			}
			seen[row.ID] = true
			if err := tx.Model(&models.FollowUpMessage{}).
				Where("id = ?", row.ID).
				Select("timing_mode", "offset_hours", "time_of_day", "template", "enabled", "display_order").
				Updates(&row).Error; err != nil {
				return err
			}
			continue
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	for _, old := range existing {
		if !seen[old.ID] {
			if err := tx.Delete(&models.FollowUpMessage{}, "id = ?", old.ID).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
