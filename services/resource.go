package services

import (
	"errors"
	"time"

	"clinic_flow_app_go/models"

	"gorm.io/gorm"
)

// ListResourceTypes returns the clinic's resource types with their
// instances preloaded.
func ListResourceTypes(db *gorm.DB, clinicID string) ([]models.ResourceType, error) {
	var types []models.ResourceType
	err := db.Preload("Resources", "is_active = ?", true).
		Where("clinic_id = ?", clinicID).
		Order("name").
		Find(&types).Error
	return types, err
}

// ResourceTypeInput creates or renames a resource type
type ResourceTypeInput struct {
	Name string `json:"name"`
}

// CreateResourceType adds a resource type to the clinic
func CreateResourceType(db *gorm.DB, clinicID string, in ResourceTypeInput) (*models.ResourceType, error) {
	if in.Name == "" {
		return nil, NewValidationError("資源類型名稱不可為空")
	}
	rt := &models.ResourceType{ClinicID: clinicID, Name: in.Name}
	if err := db.Create(rt).Error; err != nil {
		return nil, err
	}
	return rt, nil
}

// ResourceInput creates or updates a resource instance
type ResourceInput struct {
	ResourceTypeID string `json:"resource_type_id"`
	Name           string `json:"name"`
	IsActive       *bool  `json:"is_active"`
}

// CreateResource adds a physical resource instance under a type
func CreateResource(db *gorm.DB, clinicID string, in ResourceInput) (*models.Resource, error) {
	if in.Name == "" {
		return nil, NewValidationError("資源名稱不可為空")
	}
	var rt models.ResourceType
	err := db.First(&rt, "id = ? AND clinic_id = ?", in.ResourceTypeID, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	resource := &models.Resource{
		ClinicID:       clinicID,
		ResourceTypeID: rt.ID,
		Name:           in.Name,
		IsActive:       true,
	}
	if err := db.Create(resource).Error; err != nil {
		return nil, err
	}
	return resource, nil
}

// UpdateResource renames or toggles a resource. Deactivating keeps
// existing allocations intact; the resource just stops being allocated
// to new appointments.
func UpdateResource(db *gorm.DB, clinicID, id string, in ResourceInput) (*models.Resource, error) {
	var resource models.Resource
	err := db.First(&resource, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != "" {
		updates["name"] = in.Name
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) > 0 {
		if err := db.Model(&resource).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &resource, nil
}

// DeleteResource soft-deletes a resource instance. Refused while
// future confirmed appointments still hold an allocation on it.
func DeleteResource(db *gorm.DB, clinicID, id string, now time.Time) error {
	var resource models.Resource
	err := db.First(&resource, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	var count int64
	err = db.Model(&models.AppointmentResourceAllocation{}).
		Joins("JOIN appointments a ON a.id = appointment_resource_allocations.appointment_id").
		Joins("JOIN calendar_events ce ON ce.id = a.calendar_event_id").
		Where("appointment_resource_allocations.resource_id = ?", id).
		Where("appointment_resource_allocations.deleted_at IS NULL").
		Where("a.status = ?", models.AppointmentStatusConfirmed).
		Where("ce.date >= ?", DateOf(now)).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return NewValidationError("仍有未來的預約使用此資源，無法刪除")
	}

	return db.Delete(&resource).Error
}

// DeleteResourceType soft-deletes a type after all its instances are
// gone.
func DeleteResourceType(db *gorm.DB, clinicID, id string) error {
	var rt models.ResourceType
	err := db.First(&rt, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	var count int64
	if err := db.Model(&models.Resource{}).
		Where("resource_type_id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return NewValidationError("請先刪除此類型下的所有資源")
	}

	return db.Delete(&rt).Error
}
