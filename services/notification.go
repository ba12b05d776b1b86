package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"clinic_flow_app_go/models"

	"github.com/rs/zerolog/log"
)

// Actor kinds on appointment mutations
const (
	ActorPatient     = "patient"
	ActorClinicStaff = "clinic_staff"
	ActorCron        = "cron"
)

// Transition kinds
const (
	TransitionCreate = "create"
	TransitionEdit   = "edit"
	TransitionCancel = "cancel"
	TransitionReveal = "reveal"
)

// Recipient kinds
const (
	RecipientPractitioner = "practitioner"
	RecipientPatient      = "patient"
)

// Notification kinds
const (
	NotifyNewAppointment = "new_appointment"
	NotifyEdit           = "appointment_edited"
	NotifyCancel         = "appointment_cancelled"
	NotifyReminder       = "appointment_reminder"
)

// Fixed message bodies for transitions without a per-service template
const (
	practitionerCancelMessage = "{practitioner_name} 您好，{patient_name} 於 {appointment_datetime} 的 {appointment_type_name} 預約已取消。"
	patientEditMessage        = "{patient_name} 您好，您的 {appointment_type_name} 預約已更新：{appointment_datetime}，治療師：{practitioner_name}。"
	patientCancelMessage      = "{patient_name} 您好，您於 {appointment_datetime} 的 {appointment_type_name} 預約已由診所取消，如有疑問請聯繫 {clinic_name}（{clinic_phone}）。"
)

// NotificationIntent is a fully-rendered outbound message decided by
// the matrix. Intents are enqueued after the transaction commits; a
// send failure never rolls back the appointment change.
type NotificationIntent struct {
	Recipient     string `json:"recipient"`
	UserID        string `json:"user_id,omitempty"`    // practitioner recipient
	PatientID     string `json:"patient_id,omitempty"` // patient recipient
	ClinicID      string `json:"clinic_id"`
	AppointmentID string `json:"appointment_id"`
	Kind          string `json:"kind"`
	Message       string `json:"message"`
}

// Transition describes what changed, who changed it, and the
// visibility (not auto-assigned) on both sides of the change.
type Transition struct {
	Kind          string
	Actor         string
	VisibleBefore bool
	VisibleAfter  bool

	PractitionerChanged bool
	TimeChanged         bool
	// The patient's view changed from 不指定 to a concrete name
	AutoToSpecific bool

	OldPractitionerID string
	NewPractitionerID string
}

// NotificationData bundles the loaded rows needed to render messages
type NotificationData struct {
	Clinic            *models.Clinic
	Info              models.ClinicInfoSettings
	Patient           *models.Patient
	Service           *models.AppointmentType
	AppointmentID     string
	Date              time.Time
	StartMin          int
	Notes             string
	PractitionerNames map[string]string // user id -> clinic display name
}

// DecideNotifications implements the decision matrix: which parties
// receive which messages on each transition.
func DecideNotifications(t Transition, d NotificationData) []NotificationIntent {
	var intents []NotificationIntent

	practitioner := func(kind, userID, template string) {
		intents = append(intents, NotificationIntent{
			Recipient:     RecipientPractitioner,
			UserID:        userID,
			ClinicID:      d.Clinic.ID,
			AppointmentID: d.AppointmentID,
			Kind:          kind,
			Message:       d.render(template, userID),
		})
	}
	patient := func(kind, template string) {
		intents = append(intents, NotificationIntent{
			Recipient:     RecipientPatient,
			PatientID:     d.Patient.ID,
			ClinicID:      d.Clinic.ID,
			AppointmentID: d.AppointmentID,
			Kind:          kind,
			Message:       d.render(template, t.NewPractitionerID),
		})
	}

	switch t.Kind {
	case TransitionCreate:
		// Auto-assigned appointments stay silent until reveal.
		if t.VisibleAfter {
			practitioner(NotifyNewAppointment, t.NewPractitionerID, d.Service.ClinicConfirmationMessage)
		}
		// Patient-initiated bookings confirm in the UI; no message.
		if t.Actor != ActorPatient && t.VisibleAfter && d.Service.SendPatientConfirmation {
			patient(NotifyNewAppointment, d.Service.PatientConfirmationMessage)
		}

	case TransitionEdit:
		if t.PractitionerChanged {
			if t.VisibleAfter {
				practitioner(NotifyNewAppointment, t.NewPractitionerID, d.Service.ClinicConfirmationMessage)
			}
			if t.VisibleBefore {
				practitioner(NotifyCancel, t.OldPractitionerID, practitionerCancelMessage)
			}
		} else if !t.VisibleBefore && t.VisibleAfter {
			// Confirming an auto-assignment reveals it: the practitioner
			// sees the appointment for the first time, as if just booked.
			practitioner(NotifyNewAppointment, t.NewPractitionerID, d.Service.ClinicConfirmationMessage)
		} else if t.TimeChanged && t.VisibleBefore && t.VisibleAfter {
			practitioner(NotifyEdit, t.NewPractitionerID, d.Service.RecurrentClinicMessage)
		}
		if t.Actor == ActorClinicStaff && (t.TimeChanged || t.AutoToSpecific) {
			patient(NotifyEdit, patientEditMessage)
		}

	case TransitionCancel:
		if t.VisibleBefore {
			practitioner(NotifyCancel, t.OldPractitionerID, practitionerCancelMessage)
		}
		if t.Actor == ActorClinicStaff {
			patient(NotifyCancel, patientCancelMessage)
		}

	case TransitionReveal:
		// The practitioner learns about the appointment as if it were
		// just booked; the patient's view did not change.
		practitioner(NotifyNewAppointment, t.NewPractitionerID, d.Service.ClinicConfirmationMessage)
	}

	return intents
}

// render substitutes the documented placeholder set into a template
func (d NotificationData) render(template, practitionerID string) string {
	name := d.PractitionerNames[practitionerID]
	if name == "" {
		name = "不指定"
	}
	patientName := ""
	if d.Patient != nil {
		patientName = d.Patient.Name
	}
	serviceName := ""
	if d.Service != nil {
		serviceName = d.Service.Name
	}
	return RenderMessageTemplate(template, MessageContext{
		PatientName:         patientName,
		PractitionerName:    name,
		AppointmentTypeName: serviceName,
		AppointmentDatetime: FormatDateTimeZh(d.Date, d.StartMin),
		ClinicName:          d.Info.DisplayName,
		ClinicPhone:         d.Info.PhoneNumber,
		ClinicAddress:       d.Info.Address,
		Notes:               d.Notes,
	})
}

// MessageContext is the documented placeholder set for templates
type MessageContext struct {
	PatientName         string
	PractitionerName    string
	AppointmentTypeName string
	AppointmentDatetime string
	ClinicName          string
	ClinicPhone         string
	ClinicAddress       string
	Notes               string
}

// RenderMessageTemplate substitutes {placeholder} tokens
func RenderMessageTemplate(template string, ctx MessageContext) string {
	replacer := strings.NewReplacer(
		"{patient_name}", ctx.PatientName,
		"{practitioner_name}", ctx.PractitionerName,
		"{appointment_type_name}", ctx.AppointmentTypeName,
		"{appointment_datetime}", ctx.AppointmentDatetime,
		"{clinic_name}", ctx.ClinicName,
		"{clinic_phone}", ctx.ClinicPhone,
		"{clinic_address}", ctx.ClinicAddress,
		"{notes}", ctx.Notes,
	)
	return replacer.Replace(template)
}

var zhWeekdays = []string{"日", "一", "二", "三", "四", "五", "六"}

// FormatDateTimeZh renders a clinic-local moment for message bodies,
// e.g. "2025/11/03 (一) 09:00"
func FormatDateTimeZh(date time.Time, startMin int) string {
	return fmt.Sprintf("%04d/%02d/%02d (%s) %s",
		date.Year(), date.Month(), date.Day(),
		zhWeekdays[int(date.Weekday())], FormatClock(startMin))
}

// MessageSender delivers one rendered intent to the messaging platform.
// The LINE client is an external collaborator behind this interface.
type MessageSender interface {
	Send(intent NotificationIntent) error
}

// LogSender logs outbound messages instead of sending them; used in
// test mode and local development.
type LogSender struct{}

// Send logs the intent
func (LogSender) Send(intent NotificationIntent) error {
	log.Info().
		Str("recipient", intent.Recipient).
		Str("user_id", intent.UserID).
		Str("patient_id", intent.PatientID).
		Str("kind", intent.Kind).
		Str("message", intent.Message).
		Msg("outbound message (test mode)")
	return nil
}

// notifySendRetries bounds delivery attempts per intent
const notifySendRetries = 3

// Notifier drains notification intents on a background worker so sends
// never block the HTTP response.
type Notifier struct {
	sender MessageSender
	queue  chan NotificationIntent
	wg     sync.WaitGroup
	once   sync.Once
}

// NewNotifier builds a notifier with a buffered queue
func NewNotifier(sender MessageSender, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{
		sender: sender,
		queue:  make(chan NotificationIntent, buffer),
	}
}

// Start launches the worker goroutines
func (n *Notifier) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			for intent := range n.queue {
				n.deliver(intent)
			}
		}()
	}
}

// Enqueue queues intents for delivery after the caller's transaction
// has committed. A full queue drops with a log entry rather than block.
func (n *Notifier) Enqueue(intents ...NotificationIntent) {
	for _, intent := range intents {
		select {
		case n.queue <- intent:
		default:
			log.Error().
				Str("appointment_id", intent.AppointmentID).
				Str("kind", intent.Kind).
				Msg("notification queue full, dropping intent")
		}
	}
}

// Stop closes the queue and waits for in-flight sends
func (n *Notifier) Stop() {
	n.once.Do(func() {
		close(n.queue)
	})
	n.wg.Wait()
}

func (n *Notifier) deliver(intent NotificationIntent) {
	var err error
	for attempt := 1; attempt <= notifySendRetries; attempt++ {
		if err = n.sender.Send(intent); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	log.Error().
		Err(err).
		Str("appointment_id", intent.AppointmentID).
		Str("kind", intent.Kind).
		Msg("failed to deliver notification")
}
