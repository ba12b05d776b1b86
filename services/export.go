package services

import (
	"bytes"
	"fmt"
	"time"

	"clinic_flow_app_go/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var exportHeaders = []string{"日期", "時間", "治療師", "病患", "服務項目", "狀態", "病患備註", "診所備註"}

var exportStatusLabels = map[string]string{
	models.AppointmentStatusConfirmed:         "已確認",
	models.AppointmentStatusCanceledByPatient: "病患取消",
	models.AppointmentStatusCanceledByClinic:  "診所取消",
}

// ExportAppointmentsXLSX renders a clinic's appointments in a date
// range as an xlsx workbook.
func ExportAppointmentsXLSX(db *gorm.DB, clinicID string, from, to time.Time) (*bytes.Buffer, error) {
	var appts []models.Appointment
	err := db.Preload("CalendarEvent").Preload("Patient").Preload("AppointmentType").
		Joins("JOIN calendar_events ce ON ce.id = appointments.calendar_event_id").
		Where("ce.clinic_id = ? AND ce.deleted_at IS NULL", clinicID).
		Where("ce.date >= ? AND ce.date <= ?", from, to).
		Order("ce.date, ce.start_time").
		Find(&appts).Error
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(appts))
	for _, a := range appts {
		userIDs = append(userIDs, a.CalendarEvent.UserID)
	}
	names, err := PractitionerDisplayNames(db, clinicID, userIDs)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "預約"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, err
		}
	}

	for row, apt := range appts {
		timeRange := ""
		if apt.CalendarEvent.StartTime != nil && apt.CalendarEvent.EndTime != nil {
			timeRange = fmt.Sprintf("%s-%s", *apt.CalendarEvent.StartTime, *apt.CalendarEvent.EndTime)
		}
		status := exportStatusLabels[apt.Status]
		if status == "" {
			status = apt.Status
		}
		notes := ""
		if apt.Notes != nil {
			notes = *apt.Notes
		}
		clinicNotes := ""
		if apt.ClinicNotes != nil {
			clinicNotes = *apt.ClinicNotes
		}
		values := []interface{}{
			apt.CalendarEvent.Date.Format("2006-01-02"),
			timeRange,
			names[apt.CalendarEvent.UserID],
			apt.Patient.Name,
			apt.AppointmentType.Name,
			status,
			notes,
			clinicNotes,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}
