package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

type txKey struct{}

// Tx is an open transaction. Nested WithTx calls reuse it through savepoints,
// depth counts how many are open.
type Tx struct {
	*sqlx.Tx
	ID    string
	depth int
}

// WithTxContext returns a copy of ctx carrying tx
func WithTxContext(ctx context.Context, tx *Tx) context.Context {
	ctx = context.WithValue(ctx, txKey{}, tx)
	return context.WithValue(ctx, types.CtxDBTransaction, tx.ID)
}

func GetTx(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

// InTx reports whether ctx carries an open transaction.
// Row locks taken with FOR UPDATE are only held when this is true.
func InTx(ctx context.Context) bool {
	_, ok := GetTx(ctx)
	return ok
}

func (tx *Tx) savepoint() string {
	return fmt.Sprintf("sp_%d", tx.depth)
}

// BeginTx opens a read committed transaction, or a savepoint inside the one
// already on ctx
func (db *DB) BeginTx(ctx context.Context) (context.Context, *Tx, error) {
	if tx, ok := GetTx(ctx); ok {
		tx.depth++
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+tx.savepoint()); err != nil {
			tx.depth--
			return ctx, nil, dbError(err, "failed to create savepoint")
		}
		return ctx, tx, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return ctx, nil, dbError(err, "failed to begin transaction")
	}

	tx := &Tx{Tx: sqlxTx, ID: types.GenerateUUIDWithPrefix("tx")}
	db.logger.Debugw("transaction started", "tx_id", tx.ID)

	ctx = WithTxContext(ctx, tx)
	return ctx, tx, nil
}

// CommitTx releases the innermost savepoint, or commits when none is open
func (db *DB) CommitTx(ctx context.Context) error {
	tx, ok := GetTx(ctx)
	if !ok {
		return ierr.NewError("commit outside of a transaction").Mark(ierr.ErrDatabase)
	}

	if tx.depth > 0 {
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+tx.savepoint()); err != nil {
			return dbError(err, "failed to release savepoint")
		}
		tx.depth--
		return nil
	}

	if err := tx.Commit(); err != nil {
		return dbError(err, "failed to commit transaction")
	}
	db.logger.Debugw("transaction committed", "tx_id", tx.ID)
	return nil
}

// RollbackTx undoes the innermost savepoint, or the whole transaction
func (db *DB) RollbackTx(ctx context.Context) error {
	tx, ok := GetTx(ctx)
	if !ok {
		return ierr.NewError("rollback outside of a transaction").Mark(ierr.ErrDatabase)
	}

	if tx.depth > 0 {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+tx.savepoint()); err != nil {
			return dbError(err, "failed to roll back to savepoint")
		}
		tx.depth--
		return nil
	}

	if err := tx.Rollback(); err != nil {
		return dbError(err, "failed to roll back transaction")
	}
	db.logger.Debugw("transaction rolled back", "tx_id", tx.ID)
	return nil
}

// WithTx runs fn in a transaction. An error or a panic in fn undoes every
// write fn made, so a balance never moves without its ledger row.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			db.logger.Errorw("panic inside transaction", "tx_id", tx.ID, "panic", r)
			_ = db.RollbackTx(txCtx)
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := db.RollbackTx(txCtx); rbErr != nil {
			db.logger.Errorw("rollback failed", "tx_id", tx.ID, "error", rbErr, "cause", err)
		}
		return err
	}

	return db.CommitTx(txCtx)
}

func dbError(err error, msg string) error {
	return ierr.WithError(err).
		WithMessage(msg).
		WithHint("A database error occurred, please retry").
		Mark(ierr.ErrDatabase)
}
