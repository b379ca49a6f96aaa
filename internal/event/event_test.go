package event

import (
	"context"
	"errors"
	"testing"

	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PublishesOnlyAfterCommit(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, logger.NewNop())
	txm := tx.NewLocalManager()

	err := txm.Do(context.Background(), func(ctx context.Context) error {
		d.Emit(ctx, TypeAnimalAllocated, map[string]int{"shares": 3})
		assert.Empty(t, rec.Events(), "event must not leak before commit")
		return nil
	})
	require.NoError(t, err)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, TypeAnimalAllocated, rec.Events()[0].Type)
}

func TestDispatcher_DropsEventsOnRollback(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, logger.NewNop())
	txm := tx.NewLocalManager()

	err := txm.Do(context.Background(), func(ctx context.Context) error {
		d.Emit(ctx, TypeErrorLogAppended, nil)
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Empty(t, rec.Events())
}

func TestDispatcher_WithoutTransactionPublishesImmediately(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, logger.NewNop())

	d.Emit(context.Background(), TypeProductCountersChanged, nil)
	assert.Len(t, rec.OfType(TypeProductCountersChanged), 1)
}

func TestDispatcher_NestedTransactionsFlushOnce(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, logger.NewNop())
	txm := tx.NewLocalManager()

	err := txm.Do(context.Background(), func(ctx context.Context) error {
		d.Emit(ctx, TypeAnimalStatusChanged, nil)
		return txm.Do(ctx, func(ctx context.Context) error {
			d.Emit(ctx, TypeProductCountersChanged, nil)
			assert.Empty(t, rec.Events())
			return nil
		})
	})
	require.NoError(t, err)
	assert.Len(t, rec.Events(), 2)
}
