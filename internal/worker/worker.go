// Package worker runs the background consumers of the market event stream.
package worker

import (
	"context"
	"time"

	"market-service/internal/broker"
	"market-service/internal/models"
	"market-service/internal/realtime"
	"market-service/internal/util"

	"go.uber.org/zap"
)

const processedEventTTL = time.Hour

// Pusher delivers a message to connected users
type Pusher interface {
	Broadcast(userIDs []string, message realtime.Message) int
}

// Deduplicator remembers processed event ids
type Deduplicator interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// NotificationWorker forwards market events to the users they concern
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	pusher       Pusher
	dedup        Deduplicator
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker. consumer may be nil
// when events arrive through a broker.LocalProducer instead of Kafka; dedup
// may be nil to deliver redelivered events again.
func NewNotificationWorker(consumer *broker.Consumer, pusher Pusher, dedup Deduplicator) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		pusher:       pusher,
		dedup:        dedup,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnTransaction(func(ctx context.Context, e *models.TransactionEvent) error {
		return w.deliver(ctx, e.BaseEvent, e.Recipients(), e)
	})
	w.eventHandler.OnMessageSent(func(ctx context.Context, e *models.MessageSentEvent) error {
		return w.deliver(ctx, e.BaseEvent, e.Recipients(), e)
	})
	w.eventHandler.OnTypingChanged(func(ctx context.Context, e *models.TypingChangedEvent) error {
		return w.deliver(ctx, e.BaseEvent, e.Recipients(), e)
	})
	w.eventHandler.OnReviewSubmitted(func(ctx context.Context, e *models.ReviewSubmittedEvent) error {
		return w.deliver(ctx, e.BaseEvent, e.Recipients(), e)
	})

	return w
}

// Handler returns the message handler, for wiring into a LocalProducer
func (w *NotificationWorker) Handler() broker.MessageHandler {
	return w.eventHandler.HandleMessage
}

// Start consumes the topic until ctx is done
func (w *NotificationWorker) Start(ctx context.Context) error {
	if w.consumer == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	if w.consumer == nil {
		return nil
	}
	return w.consumer.Close()
}

func (w *NotificationWorker) deliver(ctx context.Context, base models.BaseEvent, recipients []string, payload interface{}) error {
	if w.dedup != nil && base.EventID != "" {
		fresh, err := w.dedup.SetIdempotencyKey(ctx, "event:"+base.EventID, base.EventType, processedEventTTL)
		if err != nil {
			w.logger.Warn("Failed to check processed event", zap.String("event_id", base.EventID), zap.Error(err))
		} else if !fresh {
			w.logger.Info("Event already processed", zap.String("event_id", base.EventID))
			return nil
		}
	}

	sent := w.pusher.Broadcast(recipients, realtime.Message{
		Type:      base.EventType,
		Timestamp: base.Timestamp.UnixMilli(),
		Data:      payload,
	})
	w.logger.Debug("Event pushed",
		zap.String("type", base.EventType),
		zap.String("event_id", base.EventID),
		zap.Int("delivered", sent))
	return nil
}
