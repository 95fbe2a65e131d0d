package repository

import (
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/domain/credit"
	"github.com/voxagent/billing/internal/domain/invoice"
	"github.com/voxagent/billing/internal/domain/provider"
	"github.com/voxagent/billing/internal/domain/settings"
	"github.com/voxagent/billing/internal/domain/usage"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
	postgresRepo "github.com/voxagent/billing/internal/repository/postgres"
)

func NewCreditRepository(db *postgres.DB, logger *logger.Logger) credit.Repository {
	return postgresRepo.NewCreditRepository(db, logger)
}

func NewAlertRepository(db *postgres.DB, logger *logger.Logger) credit.AlertRepository {
	return postgresRepo.NewAlertRepository(db, logger)
}

func NewMonitoringLogRepository(db *postgres.DB, logger *logger.Logger) credit.MonitoringLogRepository {
	return postgresRepo.NewMonitoringLogRepository(db, logger)
}

func NewBillableRepository(db *postgres.DB, logger *logger.Logger) billable.Repository {
	return postgresRepo.NewBillableRepository(db, logger)
}

func NewCostConfigRepository(db *postgres.DB, logger *logger.Logger) costconfig.Repository {
	return postgresRepo.NewCostConfigRepository(db, logger)
}

func NewSettingsRepository(db *postgres.DB, logger *logger.Logger) settings.Repository {
	return postgresRepo.NewSettingsRepository(db, logger)
}

func NewProviderRepository(db *postgres.DB, logger *logger.Logger) provider.Repository {
	return postgresRepo.NewProviderRepository(db, logger)
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return postgresRepo.NewUsageRepository(db, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}
