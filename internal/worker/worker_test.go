package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"market-service/internal/broker"
	"market-service/internal/models"
	"market-service/internal/realtime"
	"market-service/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushed struct {
	users   []string
	message realtime.Message
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes []pushed
}

func (p *recordingPusher) Broadcast(userIDs []string, message realtime.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushed{users: userIDs, message: message})
	return len(userIDs)
}

func TestNotificationWorker_RoutesToRecipients(t *testing.T) {
	pusher := &recordingPusher{}
	w := NewNotificationWorker(nil, pusher, memory.New())
	producer := broker.NewLocalProducer(w.Handler())
	publisher := broker.NewEventPublisher(producer)
	ctx := context.Background()

	require.NoError(t, publisher.PublishTransactionReserved(ctx, &models.TransactionEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeTransactionReserved, Timestamp: time.Now()},
		ItemName:  "lamp",
		SellerID:  "alice",
		BuyerID:   "bob",
	}))
	require.NoError(t, publisher.PublishMessageSent(ctx, &models.MessageSentEvent{
		BaseEvent:   models.BaseEvent{EventID: "e2", EventType: models.EventTypeMessageSent, Timestamp: time.Now()},
		RecipientID: "alice",
		Message:     models.Message{SenderID: "bob", Text: "hi"},
	}))
	require.NoError(t, publisher.PublishTypingChanged(ctx, &models.TypingChangedEvent{
		BaseEvent:   models.BaseEvent{EventID: "e3", EventType: models.EventTypeTypingChanged, Timestamp: time.Now()},
		UserID:      "bob",
		RecipientID: "alice",
		IsTyping:    true,
	}))
	require.NoError(t, publisher.PublishReviewSubmitted(ctx, &models.ReviewSubmittedEvent{
		BaseEvent: models.BaseEvent{EventID: "e4", EventType: models.EventTypeReviewSubmitted, Timestamp: time.Now()},
		SellerID:  "alice",
	}))

	require.NoError(t, producer.Close())
	require.Len(t, pusher.pushes, 4)
	assert.Equal(t, []string{"alice", "bob"}, pusher.pushes[0].users)
	assert.Equal(t, models.EventTypeTransactionReserved, pusher.pushes[0].message.Type)
	assert.Equal(t, []string{"bob", "alice"}, pusher.pushes[1].users)
	assert.Equal(t, []string{"alice"}, pusher.pushes[2].users)
	assert.Equal(t, []string{"alice"}, pusher.pushes[3].users)
}

func TestNotificationWorker_SkipsRedelivery(t *testing.T) {
	pusher := &recordingPusher{}
	w := NewNotificationWorker(nil, pusher, memory.New())
	producer := broker.NewLocalProducer(w.Handler())
	publisher := broker.NewEventPublisher(producer)

	event := &models.TransactionEvent{
		BaseEvent: models.BaseEvent{EventID: "same", EventType: models.EventTypeTransactionSold, Timestamp: time.Now()},
		SellerID:  "alice",
		BuyerID:   "bob",
	}
	require.NoError(t, publisher.PublishTransactionSold(context.Background(), event))
	require.NoError(t, publisher.PublishTransactionSold(context.Background(), event))

	require.NoError(t, producer.Close())
	assert.Len(t, pusher.pushes, 1)
}

func TestNotificationWorker_StartWithoutConsumer(t *testing.T) {
	w := NewNotificationWorker(nil, &recordingPusher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Start(ctx), context.Canceled)
	assert.NoError(t, w.Stop())
}
