package tx

import (
	"context"
	"sync"
)

// LocalManager serializes every transaction behind one mutex. It backs the
// in-memory repositories, which have no rollback: callers validate before
// they mutate.
type LocalManager struct {
	mu sync.Mutex
}

func NewLocalManager() *LocalManager {
	return &LocalManager{}
}

func (m *LocalManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	m.mu.Lock()
	st := &State{}
	err := fn(WithState(ctx, st))
	m.mu.Unlock()

	if err != nil {
		return err
	}
	st.RunHooks()
	return nil
}

func (m *LocalManager) DoSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.Do(ctx, fn)
}
