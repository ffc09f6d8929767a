// Package app assembles the ledger services from their stores so the API
// binary and the operator CLI share one wiring.
package app

import (
	"fmt"
	"time"

	"github.com/angelmondragon/tradeledger/internal/audit"
	"github.com/angelmondragon/tradeledger/internal/brokers"
	"github.com/angelmondragon/tradeledger/internal/commissions"
	"github.com/angelmondragon/tradeledger/internal/customerinvoices"
	"github.com/angelmondragon/tradeledger/internal/inventory"
	"github.com/angelmondragon/tradeledger/internal/journal"
	"github.com/angelmondragon/tradeledger/internal/vendorinvoices"
	"github.com/angelmondragon/tradeledger/pkg/config"
	"github.com/angelmondragon/tradeledger/pkg/db"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/lock"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/metrics"
	"github.com/angelmondragon/tradeledger/pkg/redis"
)

type Deps struct {
	Client    *db.Client
	Locks     lock.Locker
	Logger    *logger.Logger
	Metrics   *metrics.ReconcileMetrics
	Numbering config.NumberingConfig
	Now       func() time.Time
}

type Services struct {
	Inventory        inventory.Service
	CustomerInvoices customerinvoices.Service
	VendorInvoices   vendorinvoices.Service
	Brokers          brokers.Registry
	BrokerLedger     brokers.Reconciler
	Commissions      commissions.Service
	Audit            audit.Service
	Journal          journal.Service
}

func NewServices(deps Deps) (*Services, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if deps.Locks == nil {
		return nil, fmt.Errorf("locker required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	conn := deps.Client.DB()

	items := docstore.New[models.InventoryItem](conn)
	customerStore := docstore.New[models.CustomerInvoice](conn)
	vendorStore := docstore.New[models.VendorInvoice](conn)
	brokerStore := docstore.New[models.Broker](conn)
	sheetStore := docstore.New[models.CommissionSheet](conn)
	paymentStore := docstore.New[models.CommissionerPayment](conn)

	journalSvc, err := journal.NewService(docstore.New[models.JournalEntry](conn))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	inventorySvc, err := inventory.NewService(items, docstore.New[models.InventoryFinancial](conn), deps.Locks, deps.Logger, deps.Metrics)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	ledger, err := inventory.NewLedger(deps.Client, deps.Locks, deps.Logger, deps.Metrics)
	if err != nil {
		return nil, fmt.Errorf("inventory ledger: %w", err)
	}

	registry, err := brokers.NewRegistry(brokerStore, deps.Locks, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("brokers: %w", err)
	}

	customerSvc, err := customerinvoices.NewService(customerinvoices.ServiceParams{
		Invoices: customerStore,
		Ledger:   ledger,
		Brokers:  registry,
		Locks:    deps.Locks,
		Journal:  journalSvc,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
		Prefix:   deps.Numbering.CustomerInvoicePrefix,
		Now:      deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("customer invoices: %w", err)
	}

	brokerLedger, err := brokers.NewReconciler(registry, customerSvc)
	if err != nil {
		return nil, fmt.Errorf("broker ledger: %w", err)
	}

	vendorSvc, err := vendorinvoices.NewService(vendorinvoices.ServiceParams{
		Invoices: vendorStore,
		Ledger:   ledger,
		IDs:      inventorySvc,
		Locks:    deps.Locks,
		Journal:  journalSvc,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
		Prefix:   deps.Numbering.VendorInvoicePrefix,
		Now:      deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("vendor invoices: %w", err)
	}

	commissionSvc, err := commissions.NewService(commissions.ServiceParams{
		Commissioners: docstore.New[models.Commissioner](conn),
		Sheets:        sheetStore,
		Payments:      paymentStore,
		Locks:         deps.Locks,
		Journal:       journalSvc,
		Logger:        deps.Logger,
		Metrics:       deps.Metrics,
		Prefix:        deps.Numbering.CommissionSheetPrefix,
		Now:           deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("commissions: %w", err)
	}

	auditSvc, err := audit.NewService(audit.ServiceParams{
		CustomerInvoices: customerStore,
		VendorInvoices:   vendorStore,
		Brokers:          brokerStore,
		Sheets:           sheetStore,
		Payments:         paymentStore,
		Locks:            deps.Locks,
		Journal:          journalSvc,
		Logger:           deps.Logger,
		Now:              deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	return &Services{
		Inventory:        inventorySvc,
		CustomerInvoices: customerSvc,
		VendorInvoices:   vendorSvc,
		Brokers:          registry,
		BrokerLedger:     brokerLedger,
		Commissions:      commissionSvc,
		Audit:            auditSvc,
		Journal:          journalSvc,
	}, nil
}

// NewLocker picks the configured lock backend. The Redis backend is only
// valid when a client was built.
func NewLocker(cfg config.LockConfig, redisClient *redis.Client) (lock.Locker, error) {
	if cfg.Backend != config.LockBackendRedis {
		return lock.NewLocal(), nil
	}
	if redisClient == nil {
		return nil, fmt.Errorf("redis lock backend requires a redis client")
	}
	return lock.NewRedis(redisClient, lock.RedisOptions{
		TTL:           cfg.TTL,
		RetryInterval: cfg.RetryInterval,
		WaitTimeout:   cfg.WaitTimeout,
	})
}
