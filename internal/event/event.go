package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fekuna/qurban-engine/pkg/cache"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"go.uber.org/zap"
)

const (
	TypeAnimalAllocated        = "animal.allocated"
	TypeAnimalStatusChanged    = "animal.status_changed"
	TypeProductCountersChanged = "product.counters_changed"
	TypeErrorLogAppended       = "error_log.appended"
	TypeDistributionRecorded   = "distribution.recorded"
)

type Event struct {
	Type       string    `json:"type"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Dispatcher defers publishing until the surrounding transaction commits.
type Dispatcher struct {
	pub    Publisher
	logger logger.ZapLogger
}

func NewDispatcher(pub Publisher, log logger.ZapLogger) *Dispatcher {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Dispatcher{pub: pub, logger: log}
}

// Emit queues evt on the transaction in ctx. Publish failures are logged,
// never returned: the state change has already committed.
func (d *Dispatcher) Emit(ctx context.Context, eventType string, payload any) {
	evt := Event{Type: eventType, Payload: payload, OccurredAt: time.Now().UTC()}
	pubCtx := context.WithoutCancel(ctx)
	tx.AfterCommit(ctx, func() {
		if err := d.pub.Publish(pubCtx, evt); err != nil {
			d.logger.Error("failed to publish event", zap.String("type", evt.Type), zap.Error(err))
		}
	})
}

type RedisPublisher struct {
	client  *cache.RedisClient
	channel string
}

func NewRedisPublisher(client *cache.RedisClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, b)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
