package services

import (
	"fmt"
	"sort"
	"time"

	"clinic_flow_app_go/models"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// MaxConflictBatch bounds the batch conflict-check endpoint
const MaxConflictBatch = 10

// Slot is a bookable (start, end) pair on one date
type Slot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// DaySlots is the per-date result of a batch slot query
type DaySlots struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

type interval struct {
	start int
	end   int
}

// scheduleData holds everything needed to answer availability and
// conflict questions for a set of dates. Loaded with one scan per
// entity kind so batch queries stay O(1) in round-trips.
type scheduleData struct {
	weekly      map[string][]models.PractitionerAvailability
	events      []models.CalendarEvent
	resources   map[string][]models.Resource // resource type id -> active instances
	allocations map[string][]string          // appointment id -> resource ids
}

// loadScheduleData fetches weekly templates for the given practitioners
// plus clinic-wide events, resources and allocations for the dates.
// Events are clinic-wide because resource contention crosses
// practitioners.
func loadScheduleData(db *gorm.DB, clinicID string, userIDs []string, dates []time.Time) (*scheduleData, error) {
	data := &scheduleData{
		weekly:      make(map[string][]models.PractitionerAvailability),
		resources:   make(map[string][]models.Resource),
		allocations: make(map[string][]string),
	}

	var templates []models.PractitionerAvailability
	if err := db.Where("clinic_id = ? AND user_id IN (?)", clinicID, userIDs).
		Order("day_of_week, start_time").
		Find(&templates).Error; err != nil {
		return nil, err
	}
	for _, t := range templates {
		data.weekly[t.UserID] = append(data.weekly[t.UserID], t)
	}

	if err := db.Preload("Appointment").
		Where("clinic_id = ? AND date IN (?)", clinicID, dates).
		Find(&data.events).Error; err != nil {
		return nil, err
	}

	var resources []models.Resource
	if err := db.Where("clinic_id = ? AND is_active = ?", clinicID, true).
		Find(&resources).Error; err != nil {
		return nil, err
	}
	for _, r := range resources {
		data.resources[r.ResourceTypeID] = append(data.resources[r.ResourceTypeID], r)
	}

	appointmentIDs := lo.FilterMap(data.events, func(e models.CalendarEvent, _ int) (string, bool) {
		if e.Appointment != nil && !e.Appointment.IsCancelled() {
			return e.Appointment.ID, true
		}
		return "", false
	})
	if len(appointmentIDs) > 0 {
		var allocations []models.AppointmentResourceAllocation
		if err := db.Where("appointment_id IN (?)", appointmentIDs).
			Find(&allocations).Error; err != nil {
			return nil, err
		}
		for _, a := range allocations {
			data.allocations[a.AppointmentID] = append(data.allocations[a.AppointmentID], a.ResourceID)
		}
	}

	return data, nil
}

// windows returns the working intervals of one weekday, ascending
func (d *scheduleData) windows(userID string, dayOfWeek int) []interval {
	var out []interval
	for _, t := range d.weekly[userID] {
		if t.DayOfWeek != dayOfWeek {
			continue
		}
		s, err1 := ParseClock(t.StartTime)
		e, err2 := ParseClock(t.EndTime)
		if err1 != nil || err2 != nil || s >= e {
			continue
		}
		out = append(out, interval{s, e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// busyIntervals returns the confirmed-appointment intervals of one
// practitioner on one date, excluding the given calendar event.
func (d *scheduleData) busyIntervals(userID string, date time.Time, excludeEventID string) []interval {
	var out []interval
	for _, e := range d.events {
		if e.UserID != userID || !SameDate(e.Date, date) || e.ID == excludeEventID {
			continue
		}
		if e.EventType != models.EventTypeAppointment || e.Appointment == nil || e.Appointment.IsCancelled() {
			continue
		}
		s, en := e.MinuteRange()
		out = append(out, interval{s, en})
	}
	return out
}

// exceptionIntervals returns the availability-exception intervals of
// one practitioner on one date. All-day exceptions cover [0, 1440).
func (d *scheduleData) exceptionIntervals(userID string, date time.Time) []interval {
	var out []interval
	for _, e := range d.events {
		if e.UserID != userID || !SameDate(e.Date, date) || e.EventType != models.EventTypeAvailabilityException {
			continue
		}
		s, en := e.MinuteRange()
		out = append(out, interval{s, en})
	}
	return out
}

// appointmentCount counts confirmed appointments of a practitioner on
// one date; used by the auto-assignment tie-break.
func (d *scheduleData) appointmentCount(userID string, date time.Time) int {
	count := 0
	for _, e := range d.events {
		if e.UserID == userID && SameDate(e.Date, date) &&
			e.EventType == models.EventTypeAppointment &&
			e.Appointment != nil && !e.Appointment.IsCancelled() {
			count++
		}
	}
	return count
}

// resourceBusy reports whether a resource instance is allocated to a
// confirmed appointment overlapping [startMin, endMin) on the date.
func (d *scheduleData) resourceBusy(resourceID string, date time.Time, startMin, endMin int, excludeEventID string) bool {
	for _, e := range d.events {
		if !SameDate(e.Date, date) || e.ID == excludeEventID {
			continue
		}
		if e.Appointment == nil || e.Appointment.IsCancelled() || !e.Overlaps(startMin, endMin) {
			continue
		}
		for _, rid := range d.allocations[e.Appointment.ID] {
			if rid == resourceID {
				return true
			}
		}
	}
	return false
}

// freeResources lists the instances of a resource type not allocated
// during [startMin, endMin) on the date.
func (d *scheduleData) freeResources(resourceTypeID string, date time.Time, startMin, endMin int, excludeEventID string) []models.Resource {
	var out []models.Resource
	for _, r := range d.resources[resourceTypeID] {
		if !d.resourceBusy(r.ID, date, startMin, endMin, excludeEventID) {
			out = append(out, r)
		}
	}
	return out
}

// pickFreeResources selects concrete instances satisfying every
// requirement, or a resource conflict if any type is short.
func (d *scheduleData) pickFreeResources(reqs []models.AppointmentResourceRequirement, date time.Time, startMin, endMin int, excludeEventID string) ([]string, error) {
	var picked []string
	for _, req := range reqs {
		free := d.freeResources(req.ResourceTypeID, date, startMin, endMin, excludeEventID)
		if len(free) < req.Quantity {
			return nil, NewConflictError(ConflictResource, req.ResourceType.Name)
		}
		for i := 0; i < req.Quantity; i++ {
			picked = append(picked, free[i].ID)
		}
	}
	return picked, nil
}

// subtractIntervals removes blocks from windows, keeping order
func subtractIntervals(windows, blocks []interval) []interval {
	out := windows
	for _, b := range blocks {
		var next []interval
		for _, w := range out {
			if b.end <= w.start || b.start >= w.end {
				next = append(next, w)
				continue
			}
			if b.start > w.start {
				next = append(next, interval{w.start, b.start})
			}
			if b.end < w.end {
				next = append(next, interval{b.end, w.end})
			}
		}
		out = next
	}
	return out
}

// insideAny reports whether [start, end) fits fully inside one window.
// An interval straddling two windows does not qualify.
func insideAny(windows []interval, start, end int) bool {
	for _, w := range windows {
		if start >= w.start && end <= w.end {
			return true
		}
	}
	return false
}

// SlotQuery asks for bookable start times of one practitioner and
// service over one or more dates.
type SlotQuery struct {
	ClinicID          string
	UserID            string
	AppointmentTypeID string
	Dates             []time.Time
	// Edit flows exclude the appointment being moved
	ExcludeCalendarEventID string
	// Patient-facing queries additionally filter by booking restrictions
	ForPatient bool
	Now        time.Time
}

// GetFreeSlots computes candidate start times per date. All underlying
// rows are fetched in one scan per entity kind regardless of the number
// of dates.
func GetFreeSlots(db *gorm.DB, q SlotQuery) ([]DaySlots, error) {
	service, err := GetAppointmentType(db, q.ClinicID, q.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	settings, err := GetClinicSettings(db, q.ClinicID)
	if err != nil {
		return nil, err
	}
	reqs, err := GetResourceRequirements(db, q.AppointmentTypeID)
	if err != nil {
		return nil, err
	}

	data, err := loadScheduleData(db, q.ClinicID, []string{q.UserID}, q.Dates)
	if err != nil {
		return nil, err
	}

	results := make([]DaySlots, 0, len(q.Dates))
	for _, date := range q.Dates {
		slots := slotsForDate(data, settings.BookingRestrictionSettings, service, reqs, q, date)
		results = append(results, DaySlots{Date: date.Format("2006-01-02"), Slots: slots})
	}
	return results, nil
}

func slotsForDate(data *scheduleData, restrictions models.BookingRestrictionSettings, service *models.AppointmentType, reqs []models.AppointmentResourceRequirement, q SlotQuery, date time.Time) []Slot {
	duration := service.DurationMinutes
	buffer := service.SchedulingBufferMinutes
	step := restrictions.StepSizeMinutes
	if step <= 0 {
		step = 30
	}

	windows := data.windows(q.UserID, DayOfWeek(date))
	windows = subtractIntervals(windows, data.exceptionIntervals(q.UserID, date))
	windows = subtractIntervals(windows, data.busyIntervals(q.UserID, date, q.ExcludeCalendarEventID))

	slots := []Slot{}
	for _, w := range windows {
		first := ((w.start + step - 1) / step) * step
		for start := first; start+duration+buffer <= w.end; start += step {
			end := start + duration
			if len(reqs) > 0 {
				if _, err := data.pickFreeResources(reqs, date, start, end, q.ExcludeCalendarEventID); err != nil {
					continue
				}
			}
			if q.ForPatient {
				// Slot-level filtering only applies the temporal rules;
				// visibility and the active cap gate the booking itself.
				err := CheckBookingAllowed(BookingPolicyInput{
					Settings: restrictions,
					Now:      q.Now,
					Date:     date,
					StartMin: start,
				})
				if err != nil {
					continue
				}
			}
			slots = append(slots, Slot{StartTime: FormatClock(start), EndTime: FormatClock(end)})
		}
	}
	return slots
}

// ConflictQuery asks which conflict class, if any, applies to a
// proposed interval for up to MaxConflictBatch practitioners.
type ConflictQuery struct {
	ClinicID          string
	UserIDs           []string
	Date              time.Time
	StartTime         string
	AppointmentTypeID string
	// Optional explicitly selected resource instances
	ResourceIDs            []string
	ExcludeCalendarEventID string
}

// PractitionerConflict is the per-practitioner verdict: the
// highest-priority conflict kind or nil when the interval is clear.
type PractitionerConflict struct {
	UserID   string  `json:"user_id"`
	Conflict *string `json:"conflict,omitempty"`
	Detail   string  `json:"detail,omitempty"`
}

// CheckConflicts evaluates appointment, exception, outside-hours and
// resource conflicts in priority order for each practitioner.
func CheckConflicts(db *gorm.DB, q ConflictQuery) ([]PractitionerConflict, error) {
	if len(q.UserIDs) == 0 || len(q.UserIDs) > MaxConflictBatch {
		return nil, NewValidationError(fmt.Sprintf("practitioner batch must contain 1 to %d entries", MaxConflictBatch))
	}

	service, err := GetAppointmentType(db, q.ClinicID, q.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	reqs, err := GetResourceRequirements(db, q.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	startMin, err := ParseClock(q.StartTime)
	if err != nil {
		return nil, NewValidationError(err.Error())
	}

	data, err := loadScheduleData(db, q.ClinicID, q.UserIDs, []time.Time{q.Date})
	if err != nil {
		return nil, err
	}

	results := make([]PractitionerConflict, 0, len(q.UserIDs))
	for _, userID := range q.UserIDs {
		kind, detail := conflictFor(data, service, reqs, userID, q.Date, startMin, q.ResourceIDs, q.ExcludeCalendarEventID)
		pc := PractitionerConflict{UserID: userID, Detail: detail}
		if kind != "" {
			k := kind
			pc.Conflict = &k
		}
		results = append(results, pc)
	}
	return results, nil
}

// conflictFor returns the highest-priority conflict class for one
// practitioner, or "" when the interval is clear.
func conflictFor(data *scheduleData, service *models.AppointmentType, reqs []models.AppointmentResourceRequirement, userID string, date time.Time, startMin int, resourceIDs []string, excludeEventID string) (string, string) {
	endMin := startMin + service.DurationMinutes
	fitEnd := endMin + service.SchedulingBufferMinutes

	for _, b := range data.busyIntervals(userID, date, excludeEventID) {
		if b.start < endMin && b.end > startMin {
			return ConflictAppointment, fmt.Sprintf("%s-%s", FormatClock(b.start), FormatClock(b.end))
		}
	}
	for _, x := range data.exceptionIntervals(userID, date) {
		if x.start < endMin && x.end > startMin {
			return ConflictException, fmt.Sprintf("%s-%s", FormatClock(x.start), FormatClock(x.end))
		}
	}
	if !insideAny(data.windows(userID, DayOfWeek(date)), startMin, fitEnd) {
		return ConflictOutsideHours, ""
	}
	if len(resourceIDs) > 0 {
		for _, rid := range resourceIDs {
			if data.resourceBusy(rid, date, startMin, endMin, excludeEventID) {
				return ConflictResource, rid
			}
		}
	} else if len(reqs) > 0 {
		if _, err := data.pickFreeResources(reqs, date, startMin, endMin, excludeEventID); err != nil {
			return ConflictResource, ""
		}
	}
	return "", ""
}

// EligiblePractitionerIDs lists active practitioners of a clinic who
// offer the given service.
func EligiblePractitionerIDs(db *gorm.DB, clinicID, appointmentTypeID string) ([]string, error) {
	var userIDs []string
	err := db.Model(&models.PractitionerAppointmentType{}).
		Joins("JOIN user_clinic_associations uca ON uca.user_id = practitioner_appointment_types.user_id").
		Where("practitioner_appointment_types.appointment_type_id = ?", appointmentTypeID).
		Where("practitioner_appointment_types.deleted_at IS NULL").
		Where("uca.clinic_id = ? AND uca.is_active = ? AND uca.deleted_at IS NULL", clinicID, true).
		Where("uca.roles LIKE ?", "%"+models.RolePractitioner+"%").
		Distinct().
		Pluck("practitioner_appointment_types.user_id", &userIDs).Error
	return userIDs, err
}

// AutoAssignPractitioner resolves a "no preference" booking. Candidates
// must offer the service, be active in the clinic, have the interval
// inside a weekly window and be free of every conflict class.
// preferUserID wins when still feasible (edit stability); otherwise the
// tie-break is fewest confirmed appointments that day, then user id.
func AutoAssignPractitioner(db *gorm.DB, clinicID string, service *models.AppointmentType, date time.Time, startMin int, excludeEventID, preferUserID string) (string, error) {
	candidates, err := EligiblePractitionerIDs(db, clinicID, service.ID)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", NewConflictError(ConflictNoAvailability, "")
	}

	reqs, err := GetResourceRequirements(db, service.ID)
	if err != nil {
		return "", err
	}
	data, err := loadScheduleData(db, clinicID, candidates, []time.Time{date})
	if err != nil {
		return "", err
	}

	feasible := lo.Filter(candidates, func(userID string, _ int) bool {
		kind, _ := conflictFor(data, service, reqs, userID, date, startMin, nil, excludeEventID)
		return kind == ""
	})
	if len(feasible) == 0 {
		return "", NewConflictError(ConflictNoAvailability, "")
	}
	if preferUserID != "" && lo.Contains(feasible, preferUserID) {
		return preferUserID, nil
	}

	sort.Slice(feasible, func(i, j int) bool {
		ci, cj := data.appointmentCount(feasible[i], date), data.appointmentCount(feasible[j], date)
		if ci != cj {
			return ci < cj
		}
		return feasible[i] < feasible[j]
	})
	return feasible[0], nil
}

// GetResourceRequirements fetches a service's resource requirements
func GetResourceRequirements(db *gorm.DB, appointmentTypeID string) ([]models.AppointmentResourceRequirement, error) {
	var reqs []models.AppointmentResourceRequirement
	err := db.Preload("ResourceType").
		Where("appointment_type_id = ?", appointmentTypeID).
		Find(&reqs).Error
	return reqs, err
}
