package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/qurban-engine/pkg/apperror"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// TxManager implements tx.Manager on top of sqlx.
type TxManager struct {
	db         *sqlx.DB
	maxRetries int
	backoff    time.Duration
}

func NewTxManager(db *sqlx.DB, maxRetries int) *TxManager {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &TxManager{db: db, maxRetries: maxRetries, backoff: 10 * time.Millisecond}
}

func (m *TxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	return m.run(ctx, nil, fn)
}

func (m *TxManager) DoSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	return Retry(ctx, m.maxRetries, m.backoff, func() error {
		return m.run(ctx, opts, fn)
	})
}

func (m *TxManager) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	sqlTx, err := m.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	st := &tx.State{Tx: sqlTx}
	if err := fn(tx.WithState(ctx, st)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	st.RunHooks()
	return nil
}

// Retry calls attempt until it succeeds, returns a non-retryable error, or
// maxAttempts is reached. Exhaustion is reported as a conflict.
func Retry(ctx context.Context, maxAttempts int, backoff time.Duration, attempt func() error) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		err = attempt()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if i == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return apperror.Conflict(err, "transaction aborted after %d attempts", maxAttempts)
}

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return false
}
