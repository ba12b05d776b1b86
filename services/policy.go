package services

import (
	"time"

	"clinic_flow_app_go/models"
)

// Booking restrictions apply only to patient-initiated mutations; staff
// actions bypass the evaluator entirely.

// BookingPolicyInput carries everything the evaluator needs to gate a
// patient create or edit.
type BookingPolicyInput struct {
	Settings models.BookingRestrictionSettings
	Service  *models.AppointmentType
	Now      time.Time
	Date     time.Time // appointment date (date-only)
	StartMin int       // minutes since midnight

	IsNewPatient bool
	// Future non-cancelled appointments of this patient in this clinic,
	// excluding the appointment being edited.
	ActiveCount int64
	// True when the patient asked for a specific practitioner rather
	// than the auto-assign sentinel.
	ExplicitPractitioner bool
}

// CheckBookingAllowed evaluates the patient booking restrictions in
// order and returns the first violation.
func CheckBookingAllowed(in BookingPolicyInput) error {
	start := CombineDateMinutes(in.Date, in.StartMin)

	// 1. Lead time
	if err := checkLeadTime(in.Settings, in.Now, in.Date, start); err != nil {
		return err
	}

	// 3. Booking window
	days := int(DateOf(in.Date).Sub(DateOf(in.Now)).Hours() / 24)
	if days > in.Settings.MaxBookingWindowDays {
		return NewPolicyError(PolicyBookingWindow)
	}

	// 4. Active cap. On edits the caller excludes the appointment being
	// moved from the count, so a reschedule never trips over itself.
	if in.ActiveCount >= int64(in.Settings.MaxFutureAppointments) {
		return NewPolicyError(PolicyActiveCap)
	}

	// 5. Step granularity
	if in.Settings.StepSizeMinutes > 0 && in.StartMin%in.Settings.StepSizeMinutes != 0 {
		return NewPolicyError(PolicyStepGranularity)
	}

	// 7. Service visibility
	if in.Service != nil {
		if in.IsNewPatient && !in.Service.AllowNewPatientBooking {
			return NewPolicyError(PolicyServiceUnavailable)
		}
		if !in.IsNewPatient && !in.Service.AllowExistingPatientBooking {
			return NewPolicyError(PolicyServiceUnavailable)
		}

		// 8. Practitioner-selection visibility
		if in.ExplicitPractitioner && !in.Service.AllowPatientPractitionerSelection {
			return NewPolicyError(PolicyPractitionerSelectionNotAllowed)
		}
	}

	return nil
}

// CheckCancellationAllowed evaluates the patient cancellation rules
func CheckCancellationAllowed(settings models.BookingRestrictionSettings, now, date time.Time, startMin int) error {
	if !settings.AllowPatientDeletion {
		return NewPolicyError(PolicyCancelWindow)
	}
	start := CombineDateMinutes(date, startMin)
	if start.Sub(now) < time.Duration(settings.MinimumCancellationHoursBefore)*time.Hour {
		return NewPolicyError(PolicyCancelWindow)
	}
	return nil
}

// checkLeadTime applies the configured lead-time mode
func checkLeadTime(settings models.BookingRestrictionSettings, now time.Time, date, start time.Time) error {
	switch settings.BookingRestrictionType {
	case models.BookingRestrictionDeadlineDayBefore:
		deadline, err := BookingDeadlineFor(settings, date)
		if err != nil {
			return NewValidationError(err.Error())
		}
		if now.After(deadline) {
			return NewPolicyError(PolicyLeadTime)
		}
	default:
		// minimum_hours_required (legacy same_day_disallowed migrates here)
		if start.Sub(now) < time.Duration(settings.MinimumBookingHoursAhead)*time.Hour {
			return NewPolicyError(PolicyLeadTime)
		}
	}
	return nil
}

// BookingDeadlineFor computes the booking/modification deadline for an
// appointment date under deadline_time_day_before mode. The deadline
// falls on the appointment date itself when deadline_on_same_day is
// set, otherwise on the previous day.
func BookingDeadlineFor(settings models.BookingRestrictionSettings, date time.Time) (time.Time, error) {
	minutes, err := ParseClock(settings.DeadlineTimeDayBefore)
	if err != nil {
		return time.Time{}, err
	}
	deadlineDate := date
	if !settings.DeadlineOnSameDay {
		deadlineDate = date.AddDate(0, 0, -1)
	}
	return CombineDateMinutes(deadlineDate, minutes), nil
}

// RevealDue reports whether a hidden auto-assigned appointment has
// crossed the clinic's reveal boundary: the lead-time threshold applied
// in reverse.
func RevealDue(settings models.BookingRestrictionSettings, now, date time.Time, startMin int) bool {
	switch settings.BookingRestrictionType {
	case models.BookingRestrictionDeadlineDayBefore:
		deadline, err := BookingDeadlineFor(settings, date)
		if err != nil {
			return false
		}
		return !now.Before(deadline)
	default:
		start := CombineDateMinutes(date, startMin)
		return start.Sub(now) <= time.Duration(settings.MinimumBookingHoursAhead)*time.Hour
	}
}
