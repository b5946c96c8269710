package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"booking-engine/internal/core"
)

// Deps are the shared collaborators every engine service is built from.
// Events and Locker may be nil; no-op implementations are used instead.
type Deps struct {
	Pool                *pgxpool.Pool
	SerializableRetries int
	Log                 *zap.Logger
	Events              core.EventPublisher
	Locker              core.Locker
}

// New builds the engine services and wraps them in an ApplicationService.
func New(d Deps) ApplicationService {
	runner := core.NewTxRunner(d.Pool, d.SerializableRetries, d.Log)
	ledger := core.NewBulkStockLedger(d.Pool, runner, d.Events, d.Log)
	bookings := core.NewBookingService(d.Pool, runner, core.NewAvailabilityChecker(), ledger, d.Events, d.Log)
	scans := core.NewScanService(d.Pool, runner, bookings, core.NewUserService(d.Pool), d.Locker, d.Events, d.Log)
	catalog := core.NewCatalogService(d.Pool, runner, ledger, core.NewStatusDeriver(d.Pool))
	return NewAppService(bookings, scans, catalog, ledger, core.NewAuditService(d.Pool), core.NewIntegrityScanner(d.Pool))
}
