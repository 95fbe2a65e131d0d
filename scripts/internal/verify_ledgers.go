package internal

import (
	"context"
	"fmt"

	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/domain/credit"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/repository"
	"github.com/voxagent/billing/internal/service"
	"github.com/voxagent/billing/internal/types"
)

// VerifyLedgers replays the ledger of every active account and fails when any drifted
func VerifyLedgers() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	creditRepo := repository.NewCreditRepository(db, log)
	credits := service.NewCreditService(service.ServiceParams{
		Logger:     log,
		Config:     cfg,
		DB:         db,
		CreditRepo: creditRepo,
	})

	ctx := context.Background()
	accounts, err := creditRepo.ListAccounts(ctx, &credit.AccountFilter{OnlyActive: true})
	if err != nil {
		return err
	}

	drifted := 0
	for _, acc := range accounts {
		result, err := credits.VerifyLedger(ctx, types.SystemCaller(), acc.WorkspaceID)
		if err != nil {
			log.Errorw("failed to verify ledger", "workspace_id", acc.WorkspaceID, "error", err)
			drifted++
			continue
		}
		if !result.Consistent {
			drifted++
			fmt.Printf("%-30s stored=%s computed=%s difference=%s\n",
				acc.WorkspaceID, result.StoredBalance, result.ComputedBalance, result.Difference)
		}
	}

	fmt.Printf("verified %d accounts, %d inconsistent\n", len(accounts), drifted)
	if drifted > 0 {
		return fmt.Errorf("%d ledgers are inconsistent", drifted)
	}
	return nil
}
