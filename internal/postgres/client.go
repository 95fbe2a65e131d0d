package postgres

import (
	"context"

	gosentry "github.com/getsentry/sentry-go"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/sentry"
	"go.uber.org/fx"
)

// IClient is what services need from the database: a unit of work in which
// a balance update and its ledger row commit or roll back together
type IClient interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
}

var _ IClient = (*DB)(nil)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewDB,
			NewClient,
		),
		fx.Invoke(registerHooks),
	)
}

// NewClient returns db wrapped so every transaction shows up as a sentry span
func NewClient(db *DB, sentry *sentry.Service, logger *logger.Logger) IClient {
	return &tracedClient{client: db, sentry: sentry, logger: logger}
}

type tracedClient struct {
	client IClient
	sentry *sentry.Service
	logger *logger.Logger
}

func (c *tracedClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	span, spanCtx := c.sentry.StartDBSpan(ctx, "postgres.transaction", map[string]interface{}{
		"nested": InTx(ctx),
	})
	if span == nil {
		return c.client.WithTx(ctx, fn)
	}
	defer span.Finish()

	err := c.client.WithTx(spanCtx, fn)
	if err != nil {
		span.Status = gosentry.SpanStatusAborted
		return err
	}
	span.Status = gosentry.SpanStatusOK
	return nil
}

func registerHooks(lc fx.Lifecycle, db *DB, cfg *config.Configuration, logger *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				logger.Errorw("postgres is unreachable",
					"host", cfg.Postgres.Host,
					"error", err,
				)
				return err
			}
			logger.Infow("connected to postgres",
				"host", cfg.Postgres.Host,
				"dbname", cfg.Postgres.DBName,
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			db.Close()
			return nil
		},
	})
}
