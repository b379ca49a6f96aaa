// Package tx carries a transaction through context so repositories called by
// nested usecases join the caller's transaction instead of opening their own.
package tx

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Manager runs fn inside a transaction. If ctx already carries one, fn joins
// it and commit/rollback is left to the outermost caller.
type Manager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	// DoSerializable runs fn at serializable isolation and retries it on
	// serialization failures. Every attempt starts from a rolled back state.
	DoSerializable(ctx context.Context, fn func(ctx context.Context) error) error
}

type ctxKey struct{}

// State is the per-transaction bookkeeping stored in context.
type State struct {
	Tx *sqlx.Tx

	mu    sync.Mutex
	hooks []func()
}

// WithState stores a transaction state in ctx.
func WithState(ctx context.Context, st *State) context.Context {
	if st == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, st)
}

// From extracts the transaction state from ctx if present.
func From(ctx context.Context) (*State, bool) {
	st, ok := ctx.Value(ctxKey{}).(*State)
	return st, ok
}

// SQLTx returns the *sqlx.Tx in ctx, if any.
func SQLTx(ctx context.Context) (*sqlx.Tx, bool) {
	st, ok := From(ctx)
	if !ok || st.Tx == nil {
		return nil, false
	}
	return st.Tx, true
}

// Ext returns the transaction in ctx, falling back to db.
func Ext(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if t, ok := SQLTx(ctx); ok {
		return t
	}
	return db
}

// AfterCommit registers fn to run once the outermost transaction in ctx
// commits. Hooks of rolled back attempts are discarded. Without a
// transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	st, ok := From(ctx)
	if !ok {
		fn()
		return
	}
	st.mu.Lock()
	st.hooks = append(st.hooks, fn)
	st.mu.Unlock()
}

// RunHooks executes registered hooks in registration order.
func (s *State) RunHooks() {
	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}
