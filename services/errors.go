package services

import "errors"

// Policy violation kinds (patient-only booking restrictions)
const (
	PolicyLeadTime                        = "lead_time"
	PolicyCancelWindow                    = "cancel_window"
	PolicyBookingWindow                   = "booking_window"
	PolicyActiveCap                       = "active_cap"
	PolicyStepGranularity                 = "step_granularity"
	PolicyServiceUnavailable              = "service_unavailable"
	PolicyPractitionerSelectionNotAllowed = "practitioner_selection_not_allowed"
)

// Conflict kinds, in decreasing priority order
const (
	ConflictAppointment    = "appointment_conflict"
	ConflictException      = "exception_conflict"
	ConflictOutsideHours   = "outside_default_hours"
	ConflictResource       = "resource_conflict"
	ConflictNoAvailability = "no_availability"
)

// User-visible messages are Traditional Chinese; kinds stay stable for
// UI i18n.
var policyMessages = map[string]string{
	PolicyLeadTime:                        "已超過可預約的時間，請選擇較晚的時段",
	PolicyCancelWindow:                    "已超過可取消預約的時間，請聯繫診所",
	PolicyBookingWindow:                   "超出可預約的日期範圍",
	PolicyActiveCap:                       "您的有效預約數已達上限",
	PolicyStepGranularity:                 "預約時間不符合診所的時段間隔",
	PolicyServiceUnavailable:              "此服務項目目前不開放預約",
	PolicyPractitionerSelectionNotAllowed: "此服務項目不開放指定治療師",
}

var conflictMessages = map[string]string{
	ConflictAppointment:    "該時段已有其他預約",
	ConflictException:      "該時段治療師已設定休診",
	ConflictOutsideHours:   "該時段不在治療師的看診時間內",
	ConflictResource:       "該時段設備或診間已被使用",
	ConflictNoAvailability: "該時段沒有可安排的治療師",
}

// PolicyError is a booking-restriction failure surfaced as 400
type PolicyError struct {
	Kind string
}

func (e *PolicyError) Error() string {
	if msg, ok := policyMessages[e.Kind]; ok {
		return msg
	}
	return e.Kind
}

// NewPolicyError builds a policy violation of the given kind
func NewPolicyError(kind string) *PolicyError {
	return &PolicyError{Kind: kind}
}

// ConflictError is a scheduling conflict surfaced as 409. Detail
// carries identifying information for UI messaging.
type ConflictError struct {
	Kind   string
	Detail string
}

func (e *ConflictError) Error() string {
	if msg, ok := conflictMessages[e.Kind]; ok {
		return msg
	}
	return e.Kind
}

// NewConflictError builds a conflict of the given kind
func NewConflictError(kind, detail string) *ConflictError {
	return &ConflictError{Kind: kind, Detail: detail}
}

// ValidationError is a malformed payload surfaced as 400
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a validation failure with a message
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// Sentinel errors shared across services
var (
	ErrNotFound         = errors.New("找不到資料")
	ErrForbidden        = errors.New("沒有權限執行此操作")
	ErrAlreadyCancelled = errors.New("此預約已取消")
	ErrNameConflict     = errors.New("名稱與現有的服務項目重複")
)
