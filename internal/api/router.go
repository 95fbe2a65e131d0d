package api

import (
	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api/cron"
	v1 "github.com/voxagent/billing/internal/api/v1"
	"github.com/voxagent/billing/internal/auth"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/metrics"
	"github.com/voxagent/billing/internal/rbac"
	"github.com/voxagent/billing/internal/rest/middleware"
	"github.com/voxagent/billing/internal/types"
)

type Handlers struct {
	Health     *v1.HealthHandler
	Credit     *v1.CreditHandler
	Alert      *v1.AlertHandler
	Cost       *v1.CostHandler
	CostAdmin  *v1.CostAdminHandler
	Usage      *v1.UsageHandler
	Settings   *v1.SettingsHandler
	Billing    *v1.BillingHandler
	Monitor    *v1.MonitorHandler
	CronCredit *cron.CreditCronHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger, provider auth.Provider, rbacService *rbac.RBACService) *gin.Engine {
	router := gin.Default()
	router.Use(
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware(cfg),
		middleware.SentryMiddleware(cfg),
		middleware.PyroscopeMiddleware(cfg),
		middleware.ErrorHandler(logger),
	)

	// Unauthenticated
	router.GET("/health", handlers.Health.Health)
	router.POST("/health", handlers.Health.Health)
	if cfg.Metrics.Enabled {
		router.GET("/metrics", metrics.Handler())
	}

	private := router.Group("/v1", middleware.AuthenticateMiddleware(cfg, provider, rbacService, logger))
	registerV1Routes(private, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	credits := router.Group("/credits")
	{
		credits.GET("/balance", handlers.Credit.GetBalance)
		credits.POST("/recharge", handlers.Credit.Recharge)
		credits.POST("/adjust", handlers.Credit.AdjustBalance)
		credits.POST("/refund", handlers.Credit.Refund)
		credits.POST("/suspend", handlers.Credit.Suspend)
		credits.POST("/unsuspend", handlers.Credit.Unsuspend)
		credits.DELETE("/accounts/:workspace_id", handlers.Credit.Deactivate)
		credits.GET("/transactions", handlers.Credit.ListTransactions)
		credits.GET("/verify", handlers.Credit.VerifyLedger)

		credits.GET("/alerts", handlers.Alert.ListAlerts)
		credits.PATCH("/alerts/:id", handlers.Alert.UpdateAlert)
	}

	router.POST("/credit/monitor", handlers.Monitor.RunMonitor)

	router.POST("/cost-calculation", handlers.Cost.CalculateCost)
	router.POST("/usage", handlers.Usage.RecordUsage)

	services := router.Group("/services/:type/:id")
	{
		services.GET("/cost-overrides", handlers.CostAdmin.GetCostOverrides)
		services.PUT("/cost-overrides", handlers.CostAdmin.SetCostOverrides)
		services.DELETE("/cost-overrides", handlers.CostAdmin.ResetCostOverrides)
	}

	configurations := router.Group("/cost-configurations")
	{
		configurations.POST("", handlers.CostAdmin.CreateCostConfiguration)
		configurations.GET("", handlers.CostAdmin.ListCostConfigurations)
		configurations.DELETE("/:id", handlers.CostAdmin.DeactivateCostConfiguration)
	}

	router.GET("/settings/:key", handlers.Settings.GetSetting)
	router.PUT("/settings/:key", handlers.Settings.UpdateSetting)
	router.GET("/providers", handlers.Settings.ListProviders)

	billing := router.Group("/billing")
	{
		billing.POST("/monthly", handlers.Billing.GenerateMonthlyBilling)
		billing.GET("/monthly", handlers.Billing.ListMonthlyBilling)
	}

	// Cron routes, reachable with an API key only
	cronGroup := router.Group("/cron", middleware.RequireRole(types.GlobalRoleService))
	{
		cronGroup.POST("/credit/monitor", handlers.CronCredit.MonitorCredits)
		cronGroup.POST("/billing/monthly", handlers.CronCredit.GeneratePreviousMonth)
	}
}
