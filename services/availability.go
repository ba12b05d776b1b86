package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"clinic_flow_app_go/models"

	"gorm.io/gorm"
)

// WeeklySlotInput is one working window of the weekly template
type WeeklySlotInput struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// GetWeeklyAvailability lists a practitioner's weekly template ordered
// by (day, start).
func GetWeeklyAvailability(db *gorm.DB, clinicID, userID string) ([]models.PractitionerAvailability, error) {
	var slots []models.PractitionerAvailability
	err := db.Where("clinic_id = ? AND user_id = ?", clinicID, userID).
		Order("day_of_week, start_time").
		Find(&slots).Error
	return slots, err
}

// ReplaceWeeklyAvailability swaps the whole weekly template in one
// transaction. Windows must be well-formed and non-overlapping per day.
func ReplaceWeeklyAvailability(db *gorm.DB, clinicID, userID string, slots []WeeklySlotInput) ([]models.PractitionerAvailability, error) {
	type window struct {
		day        int
		start, end int
	}
	windows := make([]window, 0, len(slots))
	for _, s := range slots {
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			return nil, NewValidationError(fmt.Sprintf("星期數值不合法: %d", s.DayOfWeek))
		}
		start, err := ParseClock(s.StartTime)
		if err != nil {
			return nil, NewValidationError(err.Error())
		}
		end, err := ParseClock(s.EndTime)
		if err != nil {
			return nil, NewValidationError(err.Error())
		}
		if start >= end {
			return nil, NewValidationError("開始時間必須早於結束時間")
		}
		windows = append(windows, window{s.DayOfWeek, start, end})
	}
	sort.Slice(windows, func(i, j int) bool {
		if windows[i].day != windows[j].day {
			return windows[i].day < windows[j].day
		}
		return windows[i].start < windows[j].start
	})
	for i := 1; i < len(windows); i++ {
		if windows[i].day == windows[i-1].day && windows[i].start < windows[i-1].end {
			return nil, NewValidationError("同一天的時段不可重疊")
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("clinic_id = ? AND user_id = ?", clinicID, userID).
			Delete(&models.PractitionerAvailability{}).Error; err != nil {
			return err
		}
		for _, w := range windows {
			row := &models.PractitionerAvailability{
				UserID:    userID,
				ClinicID:  clinicID,
				DayOfWeek: w.day,
				StartTime: FormatClock(w.start),
				EndTime:   FormatClock(w.end),
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetWeeklyAvailability(db, clinicID, userID)
}

// OverlapError reports confirmed appointments inside a proposed
// availability exception. The caller decides whether to force through.
type OverlapError struct {
	Appointments []models.Appointment
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("時段內已有 %d 筆預約", len(e.Appointments))
}

// ExceptionInput describes a time-off block. Nil start and end mean the
// whole day.
type ExceptionInput struct {
	ClinicID  string
	UserID    string
	Date      time.Time
	StartTime *string
	EndTime   *string
	Reason    string
	// Force creates the exception even over existing appointments
	Force bool
}

// CreateAvailabilityException blocks out time for a practitioner.
// Overlapping confirmed appointments abort with an OverlapError unless
// Force is set; forced exceptions leave the appointments standing.
func CreateAvailabilityException(db *gorm.DB, in ExceptionInput) (*models.CalendarEvent, error) {
	startMin, endMin := 0, models.MinutesPerDay
	if in.StartTime != nil && in.EndTime != nil {
		var err error
		if startMin, err = ParseClock(*in.StartTime); err != nil {
			return nil, NewValidationError(err.Error())
		}
		if endMin, err = ParseClock(*in.EndTime); err != nil {
			return nil, NewValidationError(err.Error())
		}
		if startMin >= endMin {
			return nil, NewValidationError("開始時間必須早於結束時間")
		}
	} else if in.StartTime != nil || in.EndTime != nil {
		return nil, NewValidationError("開始與結束時間必須同時提供")
	}

	var event *models.CalendarEvent
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := lockDayEvents(tx, in.ClinicID, in.UserID, in.Date); err != nil {
			return err
		}

		var overlapping []models.Appointment
		err := tx.Preload("CalendarEvent").Preload("Patient").Preload("AppointmentType").
			Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
			Where("ce.clinic_id = ? AND ce.user_id = ? AND ce.date = ? AND ce.deleted_at IS NULL", in.ClinicID, in.UserID, in.Date).
			Where("appointments.status = ?", models.AppointmentStatusConfirmed).
			Where("ce.start_time < ? AND ce.end_time > ?", FormatClock(endMin), FormatClock(startMin)).
			Order("ce.start_time").
			Find(&overlapping).Error
		if err != nil {
			return err
		}
		if len(overlapping) > 0 && !in.Force {
			return &OverlapError{Appointments: overlapping}
		}

		event = &models.CalendarEvent{
			UserID:    in.UserID,
			ClinicID:  in.ClinicID,
			EventType: models.EventTypeAvailabilityException,
			Date:      in.Date,
		}
		if in.StartTime != nil {
			start := FormatClock(startMin)
			end := FormatClock(endMin)
			event.StartTime = &start
			event.EndTime = &end
		}
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		exception := &models.AvailabilityException{
			CalendarEventID: event.ID,
			Reason:          in.Reason,
		}
		if err := tx.Create(exception).Error; err != nil {
			return err
		}
		event.AvailabilityException = exception
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// DeleteAvailabilityException removes a time-off block
func DeleteAvailabilityException(db *gorm.DB, clinicID, calendarEventID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var event models.CalendarEvent
		err := tx.First(&event, "id = ? AND clinic_id = ? AND event_type = ?",
			calendarEventID, clinicID, models.EventTypeAvailabilityException).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("calendar_event_id = ?", event.ID).
			Delete(&models.AvailabilityException{}).Error; err != nil {
			return err
		}
		return tx.Delete(&event).Error
	})
}

// ListAvailabilityExceptions lists a practitioner's time-off blocks in
// a date range.
func ListAvailabilityExceptions(db *gorm.DB, clinicID, userID string, from, to time.Time) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	err := db.Preload("AvailabilityException").
		Where("clinic_id = ? AND user_id = ? AND event_type = ?", clinicID, userID, models.EventTypeAvailabilityException).
		Where("date >= ? AND date <= ?", from, to).
		Order("date, start_time").
		Find(&events).Error
	return events, err
}
