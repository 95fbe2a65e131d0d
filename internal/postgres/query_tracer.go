package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/voxagent/billing/internal/logger"
)

// slowQuery is the duration above which a statement is logged at warn level.
// Ledger statements run under row locks, a slow one stalls every writer of
// the same workspace.
const slowQuery = 250 * time.Millisecond

// TracedQuerier logs every statement with its duration and the transaction it ran in
type TracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
}

func NewTracedQuerier(q Querier, logger *logger.Logger, txID string) *TracedQuerier {
	return &TracedQuerier{Querier: q, logger: logger, txID: txID}
}

// trace returns the func that logs the outcome of query
func (tq *TracedQuerier) trace(query string) func(error) {
	start := time.Now()
	return func(err error) {
		elapsed := time.Since(start)
		fields := []interface{}{
			"query", compact(query),
			"duration_ms", elapsed.Milliseconds(),
		}
		if tq.txID != "" {
			fields = append(fields, "tx_id", tq.txID)
		}

		switch {
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			tq.logger.Errorw("database query failed", append(fields, "error", err)...)
		case elapsed > slowQuery:
			tq.logger.Warnw("slow database query", fields...)
		default:
			tq.logger.Debugw("database query", fields...)
		}
	}
}

// compact folds the whitespace of multi-line statements onto one log line
func compact(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func (tq *TracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	done := tq.trace(query)
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	done(err)
	return result, err
}

func (tq *TracedQuerier) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	done := tq.trace(query)
	result, err := tq.Querier.NamedExecContext(ctx, query, arg)
	done(err)
	return result, err
}

func (tq *TracedQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	done := tq.trace(query)
	rows, err := tq.Querier.QueryContext(ctx, query, args...)
	done(err)
	return rows, err
}

func (tq *TracedQuerier) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	done := tq.trace(query)
	row := tq.Querier.QueryRowxContext(ctx, query, args...)
	done(row.Err())
	return row
}

func (tq *TracedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	done := tq.trace(query)
	err := tq.Querier.GetContext(ctx, dest, query, args...)
	done(err)
	return err
}

func (tq *TracedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	done := tq.trace(query)
	err := tq.Querier.SelectContext(ctx, dest, query, args...)
	done(err)
	return err
}
