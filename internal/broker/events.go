package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"market-service/internal/models"
	"market-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sink is anything events can be written to
type Sink interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	sink Sink
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(sink Sink) *EventPublisher {
	return &EventPublisher{sink: sink}
}

func itemKey(itemName string) string { return fmt.Sprintf("item-%s", itemName) }

// PublishTransactionReserved publishes TransactionReserved event
func (ep *EventPublisher) PublishTransactionReserved(ctx context.Context, event *models.TransactionEvent) error {
	return ep.sink.PublishEvent(ctx, itemKey(event.ItemName), event)
}

// PublishTransactionSold publishes TransactionSold event
func (ep *EventPublisher) PublishTransactionSold(ctx context.Context, event *models.TransactionEvent) error {
	return ep.sink.PublishEvent(ctx, itemKey(event.ItemName), event)
}

// PublishMessageSent publishes MessageSent event keyed by conversation
func (ep *EventPublisher) PublishMessageSent(ctx context.Context, event *models.MessageSentEvent) error {
	return ep.sink.PublishEvent(ctx, event.ConversationID, event)
}

// PublishTypingChanged publishes TypingChanged event keyed by conversation
func (ep *EventPublisher) PublishTypingChanged(ctx context.Context, event *models.TypingChangedEvent) error {
	return ep.sink.PublishEvent(ctx, event.ConversationID, event)
}

// PublishReviewSubmitted publishes ReviewSubmitted event
func (ep *EventPublisher) PublishReviewSubmitted(ctx context.Context, event *models.ReviewSubmittedEvent) error {
	return ep.sink.PublishEvent(ctx, itemKey(event.ItemName), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onTransaction     func(context.Context, *models.TransactionEvent) error
	onMessageSent     func(context.Context, *models.MessageSentEvent) error
	onTypingChanged   func(context.Context, *models.TypingChangedEvent) error
	onReviewSubmitted func(context.Context, *models.ReviewSubmittedEvent) error
	logger            *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnTransaction registers a handler for both transaction events
func (eh *EventHandler) OnTransaction(handler func(context.Context, *models.TransactionEvent) error) {
	eh.onTransaction = handler
}

// OnMessageSent registers a handler for MessageSent events
func (eh *EventHandler) OnMessageSent(handler func(context.Context, *models.MessageSentEvent) error) {
	eh.onMessageSent = handler
}

// OnTypingChanged registers a handler for TypingChanged events
func (eh *EventHandler) OnTypingChanged(handler func(context.Context, *models.TypingChangedEvent) error) {
	eh.onTypingChanged = handler
}

// OnReviewSubmitted registers a handler for ReviewSubmitted events
func (eh *EventHandler) OnReviewSubmitted(handler func(context.Context, *models.ReviewSubmittedEvent) error) {
	eh.onReviewSubmitted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeTransactionReserved, models.EventTypeTransactionSold:
		if eh.onTransaction != nil {
			var event models.TransactionEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal transaction event: %w", err)
			}
			return eh.onTransaction(ctx, &event)
		}

	case models.EventTypeMessageSent:
		if eh.onMessageSent != nil {
			var event models.MessageSentEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal MessageSent event: %w", err)
			}
			return eh.onMessageSent(ctx, &event)
		}

	case models.EventTypeTypingChanged:
		if eh.onTypingChanged != nil {
			var event models.TypingChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal TypingChanged event: %w", err)
			}
			return eh.onTypingChanged(ctx, &event)
		}

	case models.EventTypeReviewSubmitted:
		if eh.onReviewSubmitted != nil {
			var event models.ReviewSubmittedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReviewSubmitted event: %w", err)
			}
			return eh.onReviewSubmitted(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
