package service

import (
	"github.com/voxagent/billing/internal/cache"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/domain/credit"
	"github.com/voxagent/billing/internal/domain/invoice"
	"github.com/voxagent/billing/internal/domain/proration"
	"github.com/voxagent/billing/internal/domain/provider"
	"github.com/voxagent/billing/internal/domain/settings"
	"github.com/voxagent/billing/internal/domain/usage"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/payment"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/sentry"
	"github.com/voxagent/billing/internal/storage"
	webhookPublisher "github.com/voxagent/billing/internal/webhook/publisher"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Cache  cache.Cache
	Sentry *sentry.Service

	// Repositories
	CreditRepo        credit.Repository
	AlertRepo         credit.AlertRepository
	MonitoringLogRepo credit.MonitoringLogRepository
	BillableRepo      billable.Repository
	CostConfigRepo    costconfig.Repository
	SettingsRepo      settings.Repository
	ProviderRepo      provider.Repository
	UsageRepo         usage.Repository
	InvoiceRepo       invoice.Repository

	// Publishers
	WebhookPublisher webhookPublisher.WebhookPublisher

	// Collaborators
	PaymentGateway payment.Gateway
	StorageReader  storage.UsageReader
	Proration      proration.Calculator
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	cache cache.Cache,
	sentry *sentry.Service,
	creditRepo credit.Repository,
	alertRepo credit.AlertRepository,
	monitoringLogRepo credit.MonitoringLogRepository,
	billableRepo billable.Repository,
	costConfigRepo costconfig.Repository,
	settingsRepo settings.Repository,
	providerRepo provider.Repository,
	usageRepo usage.Repository,
	invoiceRepo invoice.Repository,
	webhookPublisher webhookPublisher.WebhookPublisher,
	paymentGateway payment.Gateway,
	storageReader storage.UsageReader,
	prorationCalculator proration.Calculator,
) ServiceParams {
	return ServiceParams{
		Logger:            logger,
		Config:            config,
		DB:                db,
		Cache:             cache,
		Sentry:            sentry,
		CreditRepo:        creditRepo,
		AlertRepo:         alertRepo,
		MonitoringLogRepo: monitoringLogRepo,
		BillableRepo:      billableRepo,
		CostConfigRepo:    costConfigRepo,
		SettingsRepo:      settingsRepo,
		ProviderRepo:      providerRepo,
		UsageRepo:         usageRepo,
		InvoiceRepo:       invoiceRepo,
		WebhookPublisher:  webhookPublisher,
		PaymentGateway:    paymentGateway,
		StorageReader:     storageReader,
		Proration:         prorationCalculator,
	}
}
