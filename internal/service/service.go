package service

import (
	"context"
	"errors"
	"time"

	"market-service/internal/errs"
	"market-service/internal/models"
	"market-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes market domain events. Publishing is best effort:
// a failure is logged and never fails the operation that produced it.
type EventPublisher interface {
	PublishTransactionReserved(ctx context.Context, event *models.TransactionEvent) error
	PublishTransactionSold(ctx context.Context, event *models.TransactionEvent) error
	PublishMessageSent(ctx context.Context, event *models.MessageSentEvent) error
	PublishTypingChanged(ctx context.Context, event *models.TypingChangedEvent) error
	PublishReviewSubmitted(ctx context.Context, event *models.ReviewSubmittedEvent) error
}

// Deduplicator remembers idempotency keys for a while. SetIdempotencyKey
// returns false when the key was seen before; ForgetIdempotencyKey releases a
// key whose request did not go through.
type Deduplicator interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	ForgetIdempotencyKey(ctx context.Context, key string) error
}

// Locker hands out short lived named locks. Only the token returned by
// AcquireLock releases the lock it took.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// publish runs fn and swallows its error after logging it
func publish(logger *zap.Logger, eventType string, fn func() error) {
	if err := fn(); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(eventType).Inc()
		logger.Error("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// storeErr wraps a store failure and logs it unless it is a domain outcome
func storeErr(logger *zap.Logger, op string, err error) error {
	wrapped := errs.Store(op, err)
	if errors.Is(wrapped, errs.ErrStoreFailure) {
		logger.Error("Store call failed", zap.String("op", op), zap.Error(err))
	}
	return wrapped
}

func requireCaller(callerID string) error {
	if callerID == "" {
		return errs.ErrUnauthorized
	}
	return nil
}
