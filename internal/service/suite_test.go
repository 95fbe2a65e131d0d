package service

import (
	"github.com/voxagent/billing/internal/testutil"
)

// ServiceTestSuite wires every service against the in-memory stores
type ServiceTestSuite struct {
	testutil.BaseServiceTestSuite

	params   ServiceParams
	settings SettingsService
	provider ProviderService
	pricing  PricingService
	cost     CostService
	credit   CreditService
	alert    CreditAlertService
	monitor  CreditMonitorService
	billing  BillingReconciler
	usage    UsageService
	admin    CostAdminService
}

func (s *ServiceTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	s.params = ServiceParams{
		Logger:            s.GetLogger(),
		Config:            s.GetConfig(),
		DB:                s.GetDB(),
		Cache:             s.GetCache(),
		Sentry:            s.GetSentry(),
		CreditRepo:        stores.CreditRepo,
		AlertRepo:         stores.AlertRepo,
		MonitoringLogRepo: stores.MonitoringLogRepo,
		BillableRepo:      stores.BillableRepo,
		CostConfigRepo:    stores.CostConfigRepo,
		SettingsRepo:      stores.SettingsRepo,
		ProviderRepo:      stores.ProviderRepo,
		UsageRepo:         stores.UsageRepo,
		InvoiceRepo:       stores.InvoiceRepo,
		WebhookPublisher:  s.GetWebhookPublisher(),
		PaymentGateway:    s.GetGateway(),
		StorageReader:     s.GetStorageReader(),
		Proration:         s.GetProration(),
	}

	s.settings = NewSettingsService(s.params)
	s.provider = NewProviderService(s.params)
	s.pricing = NewPricingService(s.params, s.settings, s.provider)
	s.cost = NewCostService(s.params, s.pricing)
	s.credit = NewCreditService(s.params)
	s.alert = NewCreditAlertService(s.params)
	s.monitor = NewCreditMonitorService(s.params, s.credit, s.alert)
	s.billing = NewBillingReconciler(s.params, s.pricing)
	s.usage = NewUsageService(s.params, s.cost, s.credit)
	s.admin = NewCostAdminService(s.params)
}
