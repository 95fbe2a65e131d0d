package credit

import (
	"time"

	"github.com/voxagent/billing/internal/types"
)

// MonitoringLog records one sweep of the credit monitor
type MonitoringLog struct {
	ID                  string                 `db:"id" json:"id"`
	Status              types.MonitorRunStatus `db:"status" json:"status"`
	Forced              bool                   `db:"forced" json:"forced"`
	WorkspacesChecked   int                    `db:"workspaces_checked" json:"workspaces_checked"`
	LowBalanceAlerts    int                    `db:"low_balance_alerts" json:"low_balance_alerts"`
	CriticalAlerts      int                    `db:"critical_alerts" json:"critical_alerts"`
	Suspensions         int                    `db:"suspensions" json:"suspensions"`
	AutoRecharges       int                    `db:"auto_recharges" json:"auto_recharges"`
	AutoRechargeFailure int                    `db:"auto_recharge_failures" json:"auto_recharge_failures"`
	Errors              int                    `db:"errors" json:"errors"`
	StartedAt           time.Time              `db:"started_at" json:"started_at"`
	CompletedAt         time.Time              `db:"completed_at" json:"completed_at"`
	DurationMs          int64                  `db:"duration_ms" json:"duration_ms"`
}

func NewMonitoringLog(startedAt time.Time, forced bool) *MonitoringLog {
	return &MonitoringLog{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_MONITORING_LOG),
		Status:    types.MonitorRunStatusCompleted,
		Forced:    forced,
		StartedAt: startedAt,
	}
}

// Complete stamps the end of the run and derives its status from the error count
func (l *MonitoringLog) Complete(at time.Time) {
	l.CompletedAt = at
	l.DurationMs = at.Sub(l.StartedAt).Milliseconds()
	if l.Errors > 0 {
		l.Status = types.MonitorRunStatusPartial
	}
}
