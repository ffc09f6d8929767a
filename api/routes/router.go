package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tradeledger/api/controllers"
	"github.com/angelmondragon/tradeledger/api/middleware"
	"github.com/angelmondragon/tradeledger/internal/app"
	"github.com/angelmondragon/tradeledger/pkg/config"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/redis"
)

// NewRouter wires middleware and routes. redisClient may be nil, in which
// case idempotent replay is disabled and readiness skips the Redis probe.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	svc *app.Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var cache controllers.Pinger
	if redisClient != nil {
		cache = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cache))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	authz := middleware.NewAuthorizer(cfg.Permissions)
	auditLimiter := middleware.NewRoleRateLimiter(cfg.App.AuditRatePerMinute/60, cfg.App.AuditRateBurst)
	can := func(p middleware.Permission) func(http.Handler) http.Handler {
		return middleware.RequirePermission(authz, p, logg)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ActorRole(authz, logg))
		if redisClient != nil {
			r.Use(middleware.Idempotency(redisClient, cfg.Redis.IdempotencyTTL, logg))
		}

		r.Route("/inventory", func(r chi.Router) {
			r.With(can(middleware.PermInventoryRead)).Get("/", controllers.InventoryList(svc.Inventory, logg))
			r.With(can(middleware.PermInventoryWrite)).Post("/", controllers.InventoryCreate(svc.Inventory, logg))
			r.With(can(middleware.PermInventoryRead)).Get("/{itemId}", controllers.InventoryGet(svc.Inventory, logg))
			r.With(can(middleware.PermInventoryWrite)).Patch("/{itemId}", controllers.InventoryUpdate(svc.Inventory, logg))
			r.With(can(middleware.PermInventoryWrite)).Delete("/{itemId}", controllers.InventoryDelete(svc.Inventory, logg))
		})

		r.Route("/customer-invoices", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(can(middleware.PermInvoicesRead))
				r.Get("/", controllers.CustomerInvoiceList(svc.CustomerInvoices, logg))
				r.Get("/{id}", controllers.CustomerInvoiceGet(svc.CustomerInvoices, logg))
			})
			r.Group(func(r chi.Router) {
				r.Use(can(middleware.PermInvoicesWrite))
				r.Post("/", controllers.CustomerInvoiceCreate(svc.CustomerInvoices, logg))
				r.Delete("/{id}", controllers.CustomerInvoiceDelete(svc.CustomerInvoices, logg))
				r.Post("/{id}/payments", controllers.CustomerInvoicePayment(svc.CustomerInvoices, logg))
				r.Put("/{id}/items", controllers.CustomerInvoiceEditItems(svc.CustomerInvoices, logg))
			})
			r.With(can(middleware.PermBrokersWrite)).Post("/{id}/broker-payments", controllers.CustomerInvoiceBrokerPayment(svc.BrokerLedger, logg))
		})

		r.Route("/vendor-invoices", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(can(middleware.PermInvoicesRead))
				r.Get("/", controllers.VendorInvoiceList(svc.VendorInvoices, logg))
				r.Get("/{id}", controllers.VendorInvoiceGet(svc.VendorInvoices, logg))
			})
			r.Group(func(r chi.Router) {
				r.Use(can(middleware.PermInvoicesWrite))
				r.Post("/", controllers.VendorInvoiceCreate(svc.VendorInvoices, logg))
				r.Delete("/{id}", controllers.VendorInvoiceDelete(svc.VendorInvoices, logg))
				r.Post("/{id}/payments", controllers.VendorInvoicePayment(svc.VendorInvoices, logg))
				r.Put("/{id}/items", controllers.VendorInvoiceEditItems(svc.VendorInvoices, logg))
			})
		})

		r.Route("/brokers", func(r chi.Router) {
			r.With(can(middleware.PermBrokersRead)).Get("/", controllers.BrokerList(svc.Brokers, logg))
			r.With(can(middleware.PermBrokersWrite)).Post("/", controllers.BrokerCreate(svc.Brokers, logg))
			r.With(can(middleware.PermBrokersRead)).Get("/{id}", controllers.BrokerGet(svc.Brokers, logg))
			r.With(can(middleware.PermBrokersRead)).Get("/{id}/summary", controllers.BrokerSummary(svc.BrokerLedger, logg))
		})

		r.Route("/commissioners", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(can(middleware.PermCommissionsRead))
				r.Get("/", controllers.CommissionerList(svc.Commissions, logg))
				r.Get("/{id}", controllers.CommissionerGet(svc.Commissions, logg))
				r.Get("/{id}/summary", controllers.CommissionerSummary(svc.Commissions, logg))
				r.Get("/{id}/payments", controllers.CommissionerPayments(svc.Commissions, logg))
			})
			r.Group(func(r chi.Router) {
				r.Use(can(middleware.PermCommissionsWrite))
				r.Post("/", controllers.CommissionerCreate(svc.Commissions, logg))
				r.Post("/{id}/payments", controllers.CommissionerRecordPayment(svc.Commissions, logg))
			})
		})

		r.Route("/commission-sheets", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(can(middleware.PermCommissionsRead))
				r.Get("/", controllers.CommissionSheetList(svc.Commissions, logg))
				r.Get("/{id}", controllers.CommissionSheetGet(svc.Commissions, logg))
				r.Post("/preview", controllers.CommissionSheetPreview(svc.Commissions, logg))
			})
			r.Group(func(r chi.Router) {
				r.Use(can(middleware.PermCommissionsWrite))
				r.Post("/", controllers.CommissionSheetCreate(svc.Commissions, logg))
				r.Patch("/{id}", controllers.CommissionSheetUpdate(svc.Commissions, logg))
				r.Delete("/{id}", controllers.CommissionSheetDelete(svc.Commissions, logg))
			})
		})

		r.Route("/audit", func(r chi.Router) {
			r.Use(middleware.RateLimit(auditLimiter, logg))
			r.With(can(middleware.PermAuditRead)).Get("/", controllers.AuditRun(svc.Audit, false, logg))
			r.With(can(middleware.PermAuditRepair)).Post("/repair", controllers.AuditRun(svc.Audit, true, logg))
		})

		r.With(can(middleware.PermAuditRead)).Get("/journal/{entityType}/{id}", controllers.JournalList(svc.Journal, logg))
	})

	return r
}
