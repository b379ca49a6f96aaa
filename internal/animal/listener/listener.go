package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/qurban-engine/internal/animal"
	"github.com/fekuna/qurban-engine/internal/animal/dto"
	"github.com/fekuna/qurban-engine/pkg/broker"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"go.uber.org/zap"
)

const EventTypeRegistrationRequested = "RegistrationRequested"

// MessageReader is satisfied by *broker.KafkaConsumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (broker.Message, error)
}

type RegistrationListener struct {
	consumer MessageReader
	uc       animal.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewRegistrationListener(consumer MessageReader, uc animal.UseCase, log logger.ZapLogger) *RegistrationListener {
	return &RegistrationListener{
		consumer: consumer,
		uc:       uc,
		logger:   log.Named("registration-listener"),
		backoff:  time.Second,
	}
}

// RegistrationRequested is the JSON message published on the registrations
// topic, one purchase per message.
type RegistrationRequested struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Payload   dto.RegisterInput `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
}

// Start consumes until ctx is cancelled.
func (l *RegistrationListener) Start(ctx context.Context) {
	l.logger.Info("starting registration listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("stopping registration listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("failed to read kafka message", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.backoff):
				}
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

func (l *RegistrationListener) processMessage(ctx context.Context, value []byte) {
	var evt RegistrationRequested
	if err := json.Unmarshal(value, &evt); err != nil {
		l.logger.Error("failed to unmarshal registration event", zap.Error(err))
		return
	}
	if evt.EventType != EventTypeRegistrationRequested {
		return
	}

	res, err := l.uc.Register(ctx, &evt.Payload)
	if err != nil {
		// The offset is already committed; a rejected message is logged and dropped.
		l.logger.Error("registration rejected",
			zap.String("event_id", evt.EventID),
			zap.String("animal_type_id", evt.Payload.AnimalTypeID),
			zap.Int("quantity", evt.Payload.Quantity),
			zap.Error(err),
		)
		return
	}
	l.logger.Info("registration imported",
		zap.String("event_id", evt.EventID),
		zap.Strings("identifiers", res.Identifiers()),
	)
}
