package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aj9599/raas-platform/config"
	"github.com/aj9599/raas-platform/crypto"
	"github.com/aj9599/raas-platform/handlers"
	"github.com/aj9599/raas-platform/metrics"
	"github.com/aj9599/raas-platform/middleware"
	"github.com/aj9599/raas-platform/services"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// application holds the long-lived services and the HTTP handlers built on
// them.
type application struct {
	cfg    *config.Config
	db     *sql.DB
	logger *zap.Logger

	hub       *services.NotificationHub
	scheduler *services.Scheduler
	energy    *services.EnergyService

	auth          *handlers.AuthHandler
	users         *handlers.UserHandler
	invitations   *handlers.InvitationHandler
	customers     *handlers.CustomerHandler
	distributors  *handlers.DistributorHandler
	installations *handlers.InstallationHandler
	allocations   *handlers.AllocationHandler
	invoices      *handlers.InvoiceHandler
	tickets       *handlers.TicketHandler
	notifications *handlers.NotificationHandler
	settings      *handlers.SettingsHandler
	dashboard     *handlers.DashboardHandler
	webhook       *handlers.WebhookHandler
}

func newApplication(cfg *config.Config, db *sql.DB, logger *zap.Logger) (*application, error) {
	keySource := cfg.EncryptionKey
	if keySource == "" {
		logger.Warn("ENCRYPTION_KEY not set, deriving the messaging secrets key from the JWT secret")
		keySource = cfg.JWTSecret
	}
	key, err := crypto.KeyFromString(keySource)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	numbers, err := services.NewNumberGenerator(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("number generator: %w", err)
	}

	hub := services.NewNotificationHub(logger, cfg.CORSOrigins)
	notificationService := services.NewNotificationService(db, logger, hub)
	billingService := services.NewBillingService(db, logger, numbers, cfg.InvoiceDueDays)
	energyService := services.NewEnergyService(db, logger)
	allocationService := services.NewAllocationService(db, logger)
	invitationService := services.NewInvitationService(db, logger, cfg.InvitationTTL)
	ticketService := services.NewTicketService(db, logger, numbers, notificationService)
	settingsStore := services.NewSettingsStore(db, logger, key)
	mailer := services.NewMailer(logger)

	delivery := services.NewDeliveryService(services.DeliveryDeps{
		Billing:       billingService,
		Settings:      settingsStore,
		PDF:           services.NewPDFGenerator(cfg.InvoicesDir, cfg.InvoiceTemplateImage, logger),
		Preview:       services.NewPreviewRenderer(cfg.ChromePath, logger),
		Mailer:        mailer,
		WhatsApp:      services.NewWhatsAppClient(cfg.WhatsAppAPIURL, logger),
		Notifications: notificationService,
		Currency:      cfg.Currency,
	}, logger)

	return &application{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		hub:       hub,
		scheduler: services.NewScheduler(billingService, invitationService, cfg.SchedulerInterval, logger),
		energy:    energyService,

		auth:          handlers.NewAuthHandler(db, cfg.JWTSecret, cfg.TokenTTL, logger),
		users:         handlers.NewUserHandler(db, logger),
		invitations:   handlers.NewInvitationHandler(db, invitationService, notificationService, cfg.PublicURL, logger),
		customers:     handlers.NewCustomerHandler(db, logger),
		distributors:  handlers.NewDistributorHandler(db, logger),
		installations: handlers.NewInstallationHandler(db, energyService, billingService, logger),
		allocations:   handlers.NewAllocationHandler(db, allocationService, logger),
		invoices:      handlers.NewInvoiceHandler(db, billingService, delivery, logger),
		tickets:       handlers.NewTicketHandler(db, ticketService, logger),
		notifications: handlers.NewNotificationHandler(notificationService, hub, logger),
		settings:      handlers.NewSettingsHandler(db, settingsStore, delivery, logger),
		dashboard:     handlers.NewDashboardHandler(db, services.NewSystemMonitor(cfg.DatabasePath, cfg.InvoicesDir), logger),
		webhook:       handlers.NewWebhookHandler(energyService, cfg.WebhookSecret, logger),
	}, nil
}

func (app *application) routes() http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.Recover(app.logger))
	r.Use(middleware.Logging(app.logger))

	// Public routes
	r.HandleFunc("/api/auth/login", app.auth.Login).Methods("POST")
	r.HandleFunc("/api/health", app.healthCheck).Methods("GET")
	r.HandleFunc("/api/invitations/accept/{token}", app.invitations.Lookup).Methods("GET")
	r.HandleFunc("/api/invitations/accept", app.invitations.Accept).Methods("POST")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/webhook/energy/{tenant}", app.webhook.ReceiveEnergyRecord).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(app.cfg.JWTSecret, app.auth.LookupAccount))

	operator := func(fn http.HandlerFunc) http.Handler { return middleware.RequireRoleFunc(middleware.RoleOperator, fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return middleware.RequireRoleFunc(middleware.RoleAdmin, fn) }

	api.HandleFunc("/auth/me", app.auth.Me).Methods("GET")
	api.HandleFunc("/auth/change-password", app.auth.ChangePassword).Methods("POST")

	api.Handle("/users", admin(app.users.List)).Methods("GET")
	api.Handle("/users", admin(app.users.Create)).Methods("POST")
	api.Handle("/users/{id}", admin(app.users.Get)).Methods("GET")
	api.Handle("/users/{id}", admin(app.users.Update)).Methods("PUT")
	api.Handle("/users/{id}/role", admin(app.users.UpdateRole)).Methods("PUT")
	api.Handle("/users/{id}", admin(app.users.Delete)).Methods("DELETE")

	api.Handle("/invitations", admin(app.invitations.List)).Methods("GET")
	api.Handle("/invitations", admin(app.invitations.Create)).Methods("POST")
	api.Handle("/invitations/{id}/revoke", admin(app.invitations.Revoke)).Methods("POST")
	api.Handle("/invitations/{id}/resend", admin(app.invitations.Resend)).Methods("POST")
	api.Handle("/invitations/{id}", admin(app.invitations.Delete)).Methods("DELETE")

	api.HandleFunc("/customers", app.customers.List).Methods("GET")
	api.Handle("/customers", operator(app.customers.Create)).Methods("POST")
	api.HandleFunc("/customers/{id}", app.customers.Get).Methods("GET")
	api.Handle("/customers/{id}", operator(app.customers.Update)).Methods("PUT")
	api.Handle("/customers/{id}", admin(app.customers.Delete)).Methods("DELETE")

	api.Handle("/distributors", operator(app.distributors.List)).Methods("GET")
	api.Handle("/distributors", admin(app.distributors.Create)).Methods("POST")
	api.Handle("/distributors/{id}", operator(app.distributors.Get)).Methods("GET")
	api.Handle("/distributors/{id}", admin(app.distributors.Update)).Methods("PUT")
	api.Handle("/distributors/{id}", admin(app.distributors.Delete)).Methods("DELETE")

	api.HandleFunc("/installations", app.installations.List).Methods("GET")
	api.Handle("/installations", operator(app.installations.Create)).Methods("POST")
	api.HandleFunc("/installations/{id}", app.installations.Get).Methods("GET")
	api.Handle("/installations/{id}", operator(app.installations.Update)).Methods("PUT")
	api.Handle("/installations/{id}", admin(app.installations.Delete)).Methods("DELETE")
	api.HandleFunc("/installations/{id}/records", app.installations.Records).Methods("GET")
	api.Handle("/installations/{id}/records", operator(app.installations.AddRecord)).Methods("POST")
	api.HandleFunc("/installations/{id}/records/export", app.installations.ExportRecords).Methods("GET")
	api.Handle("/installations/{id}/records/import", operator(app.installations.ImportRecords)).Methods("POST")
	api.HandleFunc("/installations/{id}/summary", app.installations.Summary).Methods("GET")

	api.Handle("/allocations", operator(app.allocations.List)).Methods("GET")
	api.Handle("/allocations", operator(app.allocations.Create)).Methods("POST")
	api.Handle("/allocations/{id}", operator(app.allocations.Update)).Methods("PUT")
	api.Handle("/allocations/{id}", operator(app.allocations.Delete)).Methods("DELETE")

	api.Handle("/boletos/get-client-data", operator(app.invoices.ClientData)).Methods("POST")
	api.Handle("/invoices/preview", operator(app.invoices.Preview)).Methods("POST")
	api.Handle("/invoices/generate", operator(app.invoices.Generate)).Methods("POST")
	api.Handle("/invoices/export", operator(app.invoices.Export)).Methods("GET")
	api.HandleFunc("/invoices", app.invoices.List).Methods("GET")
	api.HandleFunc("/invoices/{id}", app.invoices.Get).Methods("GET")
	api.Handle("/invoices/{id}/status", operator(app.invoices.UpdateStatus)).Methods("PUT")
	api.Handle("/invoices/{id}", admin(app.invoices.Delete)).Methods("DELETE")
	api.HandleFunc("/invoices/{id}/generate-pdf", app.invoices.PDF).Methods("GET")
	api.HandleFunc("/invoices/{id}/preview-image", app.invoices.PreviewImage).Methods("GET")
	api.Handle("/invoices/{id}/send-email", operator(app.invoices.SendEmail)).Methods("POST")
	api.Handle("/invoices/{id}/send-whatsapp", operator(app.invoices.SendWhatsApp)).Methods("POST")

	api.HandleFunc("/tickets", app.tickets.List).Methods("GET")
	api.HandleFunc("/tickets", app.tickets.Create).Methods("POST")
	api.HandleFunc("/tickets/{id}", app.tickets.Get).Methods("GET")
	api.HandleFunc("/tickets/{id}/messages", app.tickets.AddMessage).Methods("POST")
	api.HandleFunc("/tickets/{id}/status", app.tickets.UpdateStatus).Methods("PUT")
	api.Handle("/tickets/{id}/assign", operator(app.tickets.Assign)).Methods("PUT")

	api.HandleFunc("/notifications", app.notifications.List).Methods("GET")
	api.HandleFunc("/notifications/read-all", app.notifications.MarkAllRead).Methods("POST")
	api.HandleFunc("/notifications/{id}/read", app.notifications.MarkRead).Methods("POST")
	api.HandleFunc("/notifications/stream", app.notifications.Stream).Methods("GET")

	api.Handle("/settings/messaging", admin(app.settings.Get)).Methods("GET")
	api.Handle("/settings/messaging", admin(app.settings.Update)).Methods("PUT")
	api.Handle("/settings/messaging/test-email", admin(app.settings.TestEmail)).Methods("POST")

	api.Handle("/dashboard/stats", operator(app.dashboard.GetStats)).Methods("GET")
	api.Handle("/dashboard/billing", operator(app.dashboard.GetBilling)).Methods("GET")
	api.Handle("/dashboard/logs", admin(app.dashboard.GetLogs)).Methods("GET")
	api.Handle("/dashboard/system", admin(app.dashboard.GetSystemHealth)).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   app.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Webhook-Secret"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		Debug:            false,
	})

	return c.Handler(r)
}

func (app *application) healthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := app.db.PingContext(r.Context()); err != nil {
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q,"time":%q}`, status, time.Now().Format(time.RFC3339))
}
