package testutil

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/voxagent/billing/internal/cache"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/credit"
	"github.com/voxagent/billing/internal/domain/proration"
	"github.com/voxagent/billing/internal/domain/settings"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/sentry"
	"github.com/voxagent/billing/internal/types"
	"github.com/voxagent/billing/internal/validator"
	webhookPublisher "github.com/voxagent/billing/internal/webhook/publisher"
)

// Stores holds the in-memory repositories shared by a suite
type Stores struct {
	CreditRepo        *InMemoryCreditStore
	AlertRepo         *InMemoryAlertStore
	MonitoringLogRepo *InMemoryMonitoringLogStore
	BillableRepo      *InMemoryBillableStore
	CostConfigRepo    *InMemoryCostConfigStore
	SettingsRepo      *InMemorySettingsStore
	ProviderRepo      *InMemoryProviderStore
	UsageRepo         *InMemoryUsageStore
	InvoiceRepo       *InMemoryInvoiceStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx              context.Context
	stores           Stores
	pubsub           *InMemoryPubSub
	webhookPublisher webhookPublisher.WebhookPublisher
	db               *MockPostgresClient
	cache            cache.Cache
	sentry           *sentry.Service
	gateway          *FakeGateway
	storageReader    *FakeStorageReader
	logger           *logger.Logger
	config           *config.Configuration
	now              time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = types.LogLevelError
	cfg.Billing.MonitorConcurrency = 4
	cfg.Webhook.Enabled = true
	// caching would hide settings written between assertions
	cfg.Cache.Enabled = false
	s.config = cfg

	var err error
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
	s.sentry = sentry.NewSentryService(cfg, s.logger)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Now().UTC()
	s.setupStores()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.pubsub.ClearMessages()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		CreditRepo:        NewInMemoryCreditStore(),
		AlertRepo:         NewInMemoryAlertStore(),
		MonitoringLogRepo: NewInMemoryMonitoringLogStore(),
		BillableRepo:      NewInMemoryBillableStore(),
		CostConfigRepo:    NewInMemoryCostConfigStore(),
		SettingsRepo:      NewInMemorySettingsStore(),
		ProviderRepo:      NewInMemoryProviderStore(),
		UsageRepo:         NewInMemoryUsageStore(),
		InvoiceRepo:       NewInMemoryInvoiceStore(),
	}

	s.db = NewMockPostgresClient()
	s.cache = cache.NewInMemoryCache(s.config)
	s.gateway = &FakeGateway{}
	s.storageReader = NewFakeStorageReader()
	s.pubsub = NewInMemoryPubSub()
	s.webhookPublisher = webhookPublisher.NewPublisher(s.pubsub, s.config, s.logger)
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetSentry() *sentry.Service {
	return s.sentry
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetWebhookPublisher() webhookPublisher.WebhookPublisher {
	return s.webhookPublisher
}

// GetPubSub returns the queue behind the webhook publisher
func (s *BaseServiceTestSuite) GetPubSub() *InMemoryPubSub {
	return s.pubsub
}

func (s *BaseServiceTestSuite) GetGateway() *FakeGateway {
	return s.gateway
}

func (s *BaseServiceTestSuite) GetStorageReader() *FakeStorageReader {
	return s.storageReader
}

func (s *BaseServiceTestSuite) GetProration() proration.Calculator {
	return proration.NewCalculator()
}

func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}

func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}

// WebhookEvents returns the published webhook events with the given name
func (s *BaseServiceTestSuite) WebhookEvents(eventName string) []*types.WebhookEvent {
	return s.pubsub.WebhookEvents(s.config.Webhook.Topic, eventName)
}

// CreateAccount stores an active account with the given balance
func (s *BaseServiceTestSuite) CreateAccount(workspaceID string, balance decimal.Decimal) *credit.Account {
	acc := credit.NewAccount(workspaceID, types.DefaultUserID, s.config.Billing.DefaultCurrency)
	acc.CurrentBalance = balance
	s.Require().NoError(s.stores.CreditRepo.CreateAccount(s.ctx, acc))
	return acc
}

// CreateService stores an active billable service created at the given time
func (s *BaseServiceTestSuite) CreateService(workspaceID string, serviceType types.ServiceType, mode types.PlatformMode, createdAt time.Time) *billable.Service {
	svc := &billable.Service{
		ID:           types.GenerateUUIDWithPrefix("svc"),
		WorkspaceID:  workspaceID,
		ServiceType:  serviceType,
		Name:         string(serviceType) + " " + workspaceID,
		PlatformMode: mode,
		IsActive:     true,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	s.Require().NoError(s.stores.BillableRepo.Create(s.ctx, svc))
	return svc
}

// SetSetting stores a settings_global row encoded from value
func (s *BaseServiceTestSuite) SetSetting(key string, value interface{}) {
	raw, err := json.Marshal(value)
	s.Require().NoError(err)
	s.Require().NoError(s.stores.SettingsRepo.Upsert(s.ctx, &settings.Setting{
		Key:       key,
		Value:     raw,
		UpdatedBy: types.DefaultUserID,
		UpdatedAt: s.now,
	}))
}
