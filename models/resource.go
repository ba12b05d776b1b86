package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResourceType groups interchangeable physical resources (rooms,
// treatment beds, equipment) within a clinic.
type ResourceType struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ClinicID string `gorm:"type:uuid;not null;index" json:"clinic_id"`
	Name     string `gorm:"size:100;not null" json:"name"`

	// Relationships
	Clinic    Clinic     `gorm:"foreignKey:ClinicID" json:"-"`
	Resources []Resource `gorm:"foreignKey:ResourceTypeID" json:"resources,omitempty"`
}

// BeforeCreate hook to generate UUID
func (r *ResourceType) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (ResourceType) TableName() string {
	return "resource_types"
}

// Resource is one physical instance of a resource type.
type Resource struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ClinicID       string `gorm:"type:uuid;not null;index" json:"clinic_id"`
	ResourceTypeID string `gorm:"type:uuid;not null;index" json:"resource_type_id"`
	Name           string `gorm:"size:100;not null" json:"name"`
	IsActive       bool   `gorm:"not null;default:true" json:"is_active"`

	// Relationships
	ResourceType ResourceType `gorm:"foreignKey:ResourceTypeID" json:"-"`
}

// BeforeCreate hook to generate UUID
func (r *Resource) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Resource) TableName() string {
	return "resources"
}

// AppointmentResourceRequirement declares how many instances of a
// resource type a service consumes.
type AppointmentResourceRequirement struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AppointmentTypeID string `gorm:"type:uuid;not null;index" json:"appointment_type_id"`
	ResourceTypeID    string `gorm:"type:uuid;not null;index" json:"resource_type_id"`
	Quantity          int    `gorm:"not null;default:1" json:"quantity"`

	// Relationships
	ResourceType ResourceType `gorm:"foreignKey:ResourceTypeID" json:"resource_type,omitempty"`
}

// BeforeCreate hook to generate UUID
func (r *AppointmentResourceRequirement) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (AppointmentResourceRequirement) TableName() string {
	return "appointment_resource_requirements"
}

// AppointmentResourceAllocation links an appointment to a concrete
// resource instance for its interval.
type AppointmentResourceAllocation struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AppointmentID string `gorm:"type:uuid;not null;index" json:"appointment_id"`
	ResourceID    string `gorm:"type:uuid;not null;index" json:"resource_id"`

	// Relationships
	Appointment Appointment `gorm:"foreignKey:AppointmentID" json:"-"`
	Resource    Resource    `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
}

// BeforeCreate hook to generate UUID
func (a *AppointmentResourceAllocation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (AppointmentResourceAllocation) TableName() string {
	return "appointment_resource_allocations"
}
