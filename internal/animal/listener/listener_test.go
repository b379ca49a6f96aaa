package listener

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/qurban-engine/internal/animal/dto"
	"github.com/fekuna/qurban-engine/internal/animal/repository"
	"github.com/fekuna/qurban-engine/internal/animal/usecase"
	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/pkg/broker"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
)

// scriptedReader replays queued results, then cancels the listener.
type scriptedReader struct {
	queue  []result
	cancel context.CancelFunc
}

type result struct {
	msg broker.Message
	err error
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (broker.Message, error) {
	if len(r.queue) == 0 {
		r.cancel()
		<-ctx.Done()
		return broker.Message{}, ctx.Err()
	}
	next := r.queue[0]
	r.queue = r.queue[1:]
	return next.msg, next.err
}

func encode(t *testing.T, evt RegistrationRequested) broker.Message {
	t.Helper()
	b, err := json.Marshal(evt)
	require.NoError(t, err)
	return broker.Message{Value: b}
}

func TestRegistrationListener_ImportsValidMessages(t *testing.T) {
	log := logger.NewNop()
	repo := repository.NewMemoryRepository()
	uc := usecase.NewAnimalUseCase(repo, tx.NewLocalManager(), event.NewDispatcher(nil, log), nil, 50, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cow, err := uc.CreateType(ctx, &dto.CreateTypeInput{Name: "cow", Category: model.CategoryLarge, Target: 10})
	require.NoError(t, err)

	reader := &scriptedReader{cancel: cancel, queue: []result{
		{msg: encode(t, RegistrationRequested{EventID: "1", EventType: EventTypeRegistrationRequested,
			Payload: dto.RegisterInput{AnimalTypeID: cow.ID, Quantity: 5, IsCollective: true}})},
		{msg: broker.Message{Value: []byte("{not json")}},
		{err: errors.New("broker unavailable")},
		{msg: encode(t, RegistrationRequested{EventID: "2", EventType: "SomethingElse",
			Payload: dto.RegisterInput{AnimalTypeID: cow.ID, Quantity: 1}})},
		{msg: encode(t, RegistrationRequested{EventID: "3", EventType: EventTypeRegistrationRequested,
			Payload: dto.RegisterInput{AnimalTypeID: cow.ID, Quantity: 4, IsCollective: true}})},
		{msg: encode(t, RegistrationRequested{EventID: "4", EventType: EventTypeRegistrationRequested,
			Payload: dto.RegisterInput{AnimalTypeID: "missing", Quantity: 1}})},
	}}

	l := NewRegistrationListener(reader, uc, log)
	l.backoff = time.Millisecond

	done := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}

	animals, total, err := uc.ListAnimals(context.Background(), &dto.AnimalFilters{TypeID: cow.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, *animals[0].RemainingShares)
	assert.Equal(t, 5, *animals[1].RemainingShares)
}
