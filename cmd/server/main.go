package main

import (
	"log"

	"clinic_flow_app_go/config"
	"clinic_flow_app_go/db"
	"clinic_flow_app_go/handlers"
	"clinic_flow_app_go/middleware"
	"clinic_flow_app_go/models"
	"clinic_flow_app_go/services"
	"clinic_flow_app_go/services/jobs"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	if err := db.Initialize(cfg.DBPath, cfg.Environment); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.AutoMigrate(
		&models.Clinic{},
		&models.User{},
		&models.UserClinicAssociation{},
		&models.SignupToken{},
		&models.LineUser{},
		&models.Patient{},
		&models.AppointmentType{},
		&models.PractitionerAppointmentType{},
		&models.BillingScenario{},
		&models.FollowUpMessage{},
		&models.PractitionerAvailability{},
		&models.CalendarEvent{},
		&models.Appointment{},
		&models.AvailabilityException{},
		&models.ResourceType{},
		&models.Resource{},
		&models.AppointmentResourceRequirement{},
		&models.AppointmentResourceAllocation{},
		&models.Receipt{},
	); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Outbound message worker. LINE delivery happens through this
	// queue; test mode logs instead of sending.
	var sender services.MessageSender = services.LogSender{}
	notifier := services.NewNotifier(sender, 256)
	notifier.Start(2)
	defer notifier.Stop()

	handlers.Init(cfg, notifier)

	// Create Echo instance
	e := echo.New()
	e.HTTPErrorHandler = handlers.HTTPErrorHandler

	// Middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
	}))

	// Public signup routes: the token is the credential
	e.GET("/api/signup", handlers.ValidateSignupTokenHandler)
	e.POST("/api/signup", handlers.AcceptSignupHandler)

	// Patient-facing routes, authenticated by the clinic LIFF token
	liff := e.Group("/api/liff")
	liff.Use(middleware.ResolveLiffClinic())
	{
		liff.GET("/services", handlers.LiffServicesHandler)
		liff.POST("/slots", handlers.LiffFreeSlotsHandler)
		liff.GET("/appointments", handlers.LiffAppointmentsHandler)
		liff.POST("/appointments", handlers.LiffCreateAppointmentHandler)
		liff.PUT("/appointments/:id", handlers.LiffUpdateAppointmentHandler)
		liff.DELETE("/appointments/:id", handlers.LiffCancelAppointmentHandler)
	}

	// Staff routes, scoped to a clinic membership
	clinic := e.Group("/api/clinics/:clinic_id")
	clinic.Use(middleware.RequireClinicMember())
	{
		clinic.POST("/slots", handlers.FreeSlotsHandler)
		clinic.POST("/conflicts", handlers.CheckConflictsHandler)
		clinic.GET("/calendar", handlers.CalendarEventsHandler)
		clinic.GET("/calendar/monthly-counts", handlers.MonthlyCountsHandler)

		clinic.GET("/appointments/:id", handlers.GetAppointmentHandler)
		clinic.GET("/availability/:user_id", handlers.GetWeeklyAvailabilityHandler)
		clinic.GET("/exceptions/:user_id", handlers.ListExceptionsHandler)
		clinic.GET("/appointment-types", handlers.ListServiceItemsHandler)
		clinic.GET("/appointment-types/:id", handlers.GetServiceItemHandler)
		clinic.GET("/settings", handlers.GetSettingsHandler)
		clinic.GET("/members", handlers.ListMembersHandler)
		clinic.GET("/resource-types", handlers.ListResourceTypesHandler)

		// Mutations require a writing role
		writer := clinic.Group("")
		writer.Use(middleware.RequireRole(models.RoleAdmin, models.RolePractitioner))
		{
			writer.POST("/appointments", handlers.CreateAppointmentHandler)
			writer.PUT("/appointments/:id", handlers.UpdateAppointmentHandler)
			writer.POST("/appointments/:id/preview", handlers.PreviewAppointmentEditHandler)
			writer.DELETE("/appointments/:id", handlers.CancelAppointmentHandler)
			writer.PUT("/availability/:user_id", handlers.ReplaceWeeklyAvailabilityHandler)
			writer.POST("/exceptions/:user_id", handlers.CreateExceptionHandler)
			writer.DELETE("/exceptions/:id", handlers.DeleteExceptionHandler)
		}

		// Admin-only routes
		admin := clinic.Group("")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/appointments/pending-review", handlers.PendingReviewHandler)
			admin.GET("/appointments/export", handlers.ExportAppointmentsHandler)
			admin.POST("/appointment-types", handlers.CreateServiceItemHandler)
			admin.PUT("/appointment-types/:id", handlers.UpdateServiceItemHandler)
			admin.POST("/appointment-types/:id/validate-deletion", handlers.ValidateServiceItemDeletionHandler)
			admin.DELETE("/appointment-types/:id", handlers.DeleteServiceItemHandler)
			admin.PUT("/settings", handlers.UpdateSettingsHandler)
			admin.GET("/liff-urls", handlers.LiffURLsHandler)
			admin.POST("/liff-urls/regenerate", handlers.RegenerateLiffTokenHandler)
			admin.PUT("/members/:user_id", handlers.UpdateMemberHandler)
			admin.DELETE("/members/:user_id", handlers.RemoveMemberHandler)
			admin.POST("/invitations", handlers.CreateInvitationHandler)
			admin.POST("/resource-types", handlers.CreateResourceTypeHandler)
			admin.DELETE("/resource-types/:id", handlers.DeleteResourceTypeHandler)
			admin.POST("/resources", handlers.CreateResourceHandler)
			admin.PUT("/resources/:id", handlers.UpdateResourceHandler)
			admin.DELETE("/resources/:id", handlers.DeleteResourceHandler)
		}
	}

	// Scheduled jobs: reveal ticks every minute, reminders every five
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("* * * * *", func() {
		jobs.RevealDueAssignments(db.DB, notifier)
	}); err != nil {
		log.Fatalf("Failed to schedule reveal job: %v", err)
	}
	if _, err := scheduler.AddFunc("*/5 * * * *", func() {
		jobs.SendAppointmentReminders(db.DB, notifier)
	}); err != nil {
		log.Fatalf("Failed to schedule reminder job: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
