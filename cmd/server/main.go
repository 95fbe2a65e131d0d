package main

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	lambdaEvents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api"
	"github.com/voxagent/billing/internal/api/cron"
	v1 "github.com/voxagent/billing/internal/api/v1"
	"github.com/voxagent/billing/internal/auth"
	"github.com/voxagent/billing/internal/cache"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/domain/proration"
	"github.com/voxagent/billing/internal/kafka"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/payment"
	"github.com/voxagent/billing/internal/postgres"
	pubsubRouter "github.com/voxagent/billing/internal/pubsub/router"
	"github.com/voxagent/billing/internal/pyroscope"
	"github.com/voxagent/billing/internal/rbac"
	"github.com/voxagent/billing/internal/repository"
	"github.com/voxagent/billing/internal/sentry"
	"github.com/voxagent/billing/internal/service"
	"github.com/voxagent/billing/internal/storage"
	"github.com/voxagent/billing/internal/types"
	"github.com/voxagent/billing/internal/validator"
	"github.com/voxagent/billing/internal/webhook"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			cache.Initialize,

			// Auth
			auth.NewProvider,
			rbac.NewRBACService,

			// Collaborators
			payment.NewGateway,
			storage.NewUsageReader,
			proration.NewCalculator,

			// Usage consumer
			provideUsageSubscriber,

			// Repositories
			repository.NewCreditRepository,
			repository.NewAlertRepository,
			repository.NewMonitoringLogRepository,
			repository.NewBillableRepository,
			repository.NewCostConfigRepository,
			repository.NewSettingsRepository,
			repository.NewProviderRepository,
			repository.NewUsageRepository,
			repository.NewInvoiceRepository,

			// PubSub
			pubsubRouter.NewRouter,
		),
		sentry.Module(),
		pyroscope.Module(),
		postgres.Module(),
	)

	// Webhook module (must be initialised before services)
	opts = append(opts, webhook.Module)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewSettingsService,
			service.NewProviderService,
			service.NewPricingService,
			service.NewCostService,
			service.NewCreditService,
			service.NewCreditAlertService,
			service.NewCreditMonitorService,
			service.NewUsageService,
			service.NewCostAdminService,
			service.NewBillingReconciler,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

// usageSubscriber is nil when Kafka ingestion is disabled or the run mode
// does not consume usage
type usageSubscriber struct {
	message.Subscriber
}

func provideUsageSubscriber(cfg *config.Configuration, log *logger.Logger) (usageSubscriber, error) {
	if !cfg.Kafka.Enabled || !cfg.Deployment.Mode.ConsumesUsage() {
		log.Infow("kafka usage ingestion disabled", "mode", cfg.Deployment.Mode)
		return usageSubscriber{}, nil
	}
	consumer, err := kafka.NewConsumer(cfg, log, cfg.Kafka.ConsumerGroup)
	if err != nil {
		return usageSubscriber{}, err
	}
	return usageSubscriber{Subscriber: consumer}, nil
}

func provideHandlers(
	logger *logger.Logger,
	db *postgres.DB,
	creditService service.CreditService,
	alertService service.CreditAlertService,
	monitorService service.CreditMonitorService,
	costService service.CostService,
	costAdminService service.CostAdminService,
	usageService service.UsageService,
	settingsService service.SettingsService,
	providerService service.ProviderService,
	billing service.BillingReconciler,
) api.Handlers {
	return api.Handlers{
		Health:     v1.NewHealthHandler(db, logger),
		Credit:     v1.NewCreditHandler(creditService, logger),
		Alert:      v1.NewAlertHandler(alertService, logger),
		Cost:       v1.NewCostHandler(costService, logger),
		CostAdmin:  v1.NewCostAdminHandler(costAdminService, logger),
		Usage:      v1.NewUsageHandler(usageService, logger),
		Settings:   v1.NewSettingsHandler(settingsService, providerService, logger),
		Billing:    v1.NewBillingHandler(billing, logger),
		Monitor:    v1.NewMonitorHandler(monitorService, logger),
		CronCredit: cron.NewCreditCronHandler(logger, monitorService, billing),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger, provider auth.Provider, rbacService *rbac.RBACService) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger, provider, rbacService)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	subscriber usageSubscriber,
	webhookService *webhook.WebhookService,
	usageService service.UsageService,
	router *pubsubRouter.Router,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startMessageRouter(lc, router, webhookService, usageService, subscriber, log)
	case types.ModeAPI:
		// usage arrives over HTTP only, webhooks are still delivered
		startAPIServer(lc, r, cfg, log)
		startMessageRouter(lc, router, webhookService, usageService, subscriber, log)
	case types.ModeConsumer:
		if subscriber.Subscriber == nil {
			log.Fatal("Kafka consumer required for consumer mode")
		}
		startMessageRouter(lc, router, webhookService, usageService, subscriber, log)
	case types.ModeAWSLambdaAPI:
		// lambda.Start blocks, webhooks are delivered by a consumer deployment
		// reading the kafka webhook topic
		startAWSLambdaAPI(r)
	case types.ModeAWSLambdaConsumer:
		startAWSLambdaConsumer(usageService, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting API server...")
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}

func startAWSLambdaAPI(r *gin.Engine) {
	ginLambda := ginadapter.New(r)
	lambda.Start(ginLambda.ProxyWithContext)
}

// startAWSLambdaConsumer records usage events delivered by a Kafka trigger.
// Failed records are logged and skipped so one bad event does not block the batch.
func startAWSLambdaConsumer(usageService service.UsageService, log *logger.Logger) {
	handler := func(ctx context.Context, kafkaEvent lambdaEvents.KafkaEvent) error {
		for _, records := range kafkaEvent.Records {
			for _, r := range records {
				log.Debugf("Processing record: topic=%s, partition=%d, offset=%d",
					r.Topic, r.Partition, r.Offset)

				payload, err := base64.StdEncoding.DecodeString(r.Value)
				if err != nil {
					log.Errorf("Failed to decode base64 payload: %v", err)
					continue
				}

				msg := message.NewMessage(watermill.NewUUID(), payload)
				msg.SetContext(ctx)
				if err := usageService.ProcessMessage(msg); err != nil {
					log.Errorw("failed to process usage event",
						"topic", r.Topic,
						"partition", r.Partition,
						"offset", r.Offset,
						"error", err,
					)
					continue
				}
			}
		}
		return nil
	}

	lambda.Start(handler)
}

func startMessageRouter(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	webhookService *webhook.WebhookService,
	usageService service.UsageService,
	subscriber usageSubscriber,
	logger *logger.Logger,
) {
	// Register handlers before starting the router
	webhookService.RegisterHandler(router)
	if subscriber.Subscriber != nil {
		usageService.RegisterHandler(router, subscriber.Subscriber)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting message router")
			go func() {
				if err := router.Run(); err != nil {
					logger.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping message router")
			if err := webhookService.Stop(); err != nil {
				logger.Errorw("failed to stop webhook service", "error", err)
			}
			return router.Close()
		},
	})
}
