package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"market-service/internal/errs"
	"market-service/internal/models"
	"market-service/internal/repository"
	"market-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultTypingTTL      = 5 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour

	// ImagePreview is the inbox preview of a message carrying only an image.
	ImagePreview = "[image]"
)

// ChatConfig tunes the chat service
type ChatConfig struct {
	TypingTTL      time.Duration
	IdempotencyTTL time.Duration
}

// ChatService handles conversations, messages, inbox links and typing state
type ChatService struct {
	items        repository.ItemStore
	transactions repository.TransactionStore
	messages     repository.MessageStore
	inbox        repository.InboxStore
	typing       repository.TypingStore
	dedup        Deduplicator
	events       EventPublisher
	cfg          ChatConfig
	now          func() time.Time
	logger       *zap.Logger
}

// NewChatService creates a new chat service. dedup may be nil, which turns
// idempotency keys into no-ops.
func NewChatService(
	items repository.ItemStore,
	transactions repository.TransactionStore,
	messages repository.MessageStore,
	inbox repository.InboxStore,
	typing repository.TypingStore,
	dedup Deduplicator,
	events EventPublisher,
	cfg ChatConfig,
) *ChatService {
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = defaultTypingTTL
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	return &ChatService{
		items:        items,
		transactions: transactions,
		messages:     messages,
		inbox:        inbox,
		typing:       typing,
		dedup:        dedup,
		events:       events,
		cfg:          cfg,
		now:          time.Now,
		logger:       util.GetLogger(),
	}
}

// ResolveConversation finds the conversation callerID is having about an
// item. A buyer always talks to the seller; the seller has to name the buyer
// through otherUserID.
func (s *ChatService) ResolveConversation(ctx context.Context, callerID, itemName, otherUserID string) (models.Conversation, *models.Item, error) {
	if err := requireCaller(callerID); err != nil {
		return models.Conversation{}, nil, err
	}
	if itemName == "" {
		return models.Conversation{}, nil, fmt.Errorf("%w: item name is required", errs.ErrInvalidInput)
	}

	start := time.Now()
	item, err := s.items.GetItem(ctx, itemName)
	util.ObserveStore("get_item", start)
	if err != nil {
		return models.Conversation{}, nil, storeErr(s.logger, "get item", err)
	}

	counterpart := item.Seller
	if callerID == item.Seller {
		switch otherUserID {
		case "":
			return models.Conversation{}, nil, fmt.Errorf("%w: seller must name the other user", errs.ErrInvalidInput)
		case callerID:
			return models.Conversation{}, nil, fmt.Errorf("%w: cannot chat with yourself", errs.ErrInvalidInput)
		}
		counterpart = otherUserID
	}

	return models.NewConversation(callerID, counterpart, item.Name), item, nil
}

// ChatAllowed applies the transaction gate to a sender. Sold items accept no
// messages; reserved items only accept messages from the seller and the
// reserved buyer.
func ChatAllowed(tx models.Transaction, sellerID, senderID string) error {
	switch {
	case tx.IsSold():
		return fmt.Errorf("%w: chat is closed for sold items", errs.ErrConflict)
	case tx.IsReserved() && senderID != sellerID && senderID != tx.BuyerID:
		return fmt.Errorf("%w: item is reserved for another buyer", errs.ErrConflict)
	}
	return nil
}

// SendMessageRequest represents a chat message sent by the caller
type SendMessageRequest struct {
	ItemName       string `json:"item_name"`
	OtherUserID    string `json:"other_user_id,omitempty"`
	Text           string `json:"text"`
	ImageURL       string `json:"image_url,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SendMessage appends a message to the conversation and links both
// participants to it. A retry carrying an idempotency key that was already
// used returns a nil message and no error.
func (s *ChatService) SendMessage(ctx context.Context, callerID string, req *SendMessageRequest) (*models.Message, error) {
	ctx, span := util.StartSpan(ctx, "ChatService.SendMessage", attribute.String("item", req.ItemName))
	defer span.End()

	msg, reason, err := s.sendMessage(ctx, callerID, req)
	if err != nil {
		util.RecordError(span, err)
		util.MessagesRejectedTotal.WithLabelValues(reason).Inc()
	}
	return msg, err
}

func (s *ChatService) sendMessage(ctx context.Context, callerID string, req *SendMessageRequest) (*models.Message, string, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, "unauthorized", err
	}
	text := strings.TrimSpace(req.Text)
	image := strings.TrimSpace(req.ImageURL)
	if text == "" && image == "" {
		return nil, "empty", fmt.Errorf("%w: message needs text or an image", errs.ErrInvalidInput)
	}

	conv, item, err := s.ResolveConversation(ctx, callerID, req.ItemName, req.OtherUserID)
	if err != nil {
		return nil, rejectReason(err), err
	}

	start := time.Now()
	tx, err := s.transactions.GetTransaction(ctx, item.Name)
	util.ObserveStore("get_transaction", start)
	if err != nil {
		return nil, "store_failure", storeErr(s.logger, "get transaction", err)
	}
	if err := ChatAllowed(tx, item.Seller, callerID); err != nil {
		s.logger.Info("Message rejected by transaction gate",
			zap.String("conversation_id", conv.ID),
			zap.String("sender", callerID),
			zap.String("status", string(tx.Status)))
		return nil, "gated", err
	}

	var dedupKey string
	if req.IdempotencyKey != "" && s.dedup != nil {
		dedupKey = "chat:" + conv.ID + ":" + req.IdempotencyKey
		fresh, err := s.dedup.SetIdempotencyKey(ctx, dedupKey, callerID, s.cfg.IdempotencyTTL)
		if err != nil {
			return nil, "store_failure", storeErr(s.logger, "set idempotency key", err)
		}
		if !fresh {
			s.logger.Info("Duplicate message request detected",
				zap.String("conversation_id", conv.ID),
				zap.String("idempotency_key", req.IdempotencyKey))
			return nil, "", nil
		}
	}

	now := s.now()
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       callerID,
		Text:           text,
		ImageURL:       image,
		Timestamp:      now.UTC().Format(time.RFC3339),
	}

	start = time.Now()
	err = s.messages.AppendMessage(ctx, msg)
	util.ObserveStore("append_message", start)
	if err != nil {
		// Nothing was stored, so a retry with the same key must go through.
		s.forgetKey(ctx, dedupKey)
		return nil, "store_failure", storeErr(s.logger, "append message", err)
	}

	recipientID := conv.Counterpart(callerID)
	preview := text
	if preview == "" {
		preview = ImagePreview
	}

	if _, err := s.LinkUserToConversation(ctx, callerID, models.InboxLink{
		ConversationID: conv.ID,
		ItemName:       item.Name,
		OtherUserID:    recipientID,
		LastMessage:    preview,
		UpdatedAt:      now.Unix(),
	}, false); err != nil {
		return nil, "store_failure", err
	}
	if _, err := s.LinkUserToConversation(ctx, recipientID, models.InboxLink{
		ConversationID: conv.ID,
		ItemName:       item.Name,
		OtherUserID:    callerID,
		LastMessage:    preview,
		UpdatedAt:      now.Unix(),
	}, true); err != nil {
		return nil, "store_failure", err
	}

	kind := "text"
	if image != "" {
		kind = "image"
	}
	util.MessagesSentTotal.WithLabelValues(kind).Inc()
	s.logger.Debug("Message sent",
		zap.String("conversation_id", conv.ID),
		zap.String("key", msg.Key))

	publish(s.logger, models.EventTypeMessageSent, func() error {
		return s.events.PublishMessageSent(ctx, &models.MessageSentEvent{
			BaseEvent:      newBaseEvent(models.EventTypeMessageSent),
			ConversationID: conv.ID,
			ItemName:       item.Name,
			RecipientID:    recipientID,
			Message:        *msg,
		})
	})
	return msg, "", nil
}

func (s *ChatService) forgetKey(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.dedup.ForgetIdempotencyKey(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

// LinkUserToConversation creates or refreshes userID's inbox link. A new link
// starts with one unread message for a recipient and none otherwise; an
// existing link only gets its unread count bumped for a recipient and its
// preview refreshed.
func (s *ChatService) LinkUserToConversation(ctx context.Context, userID string, link models.InboxLink, isRecipient bool) (models.InboxLink, error) {
	if userID == "" || link.ConversationID == "" {
		return models.InboxLink{}, fmt.Errorf("%w: user and conversation are required", errs.ErrInvalidInput)
	}

	start := time.Now()
	stored, err := s.inbox.UpsertLink(ctx, userID, link, isRecipient)
	util.ObserveStore("upsert_link", start)
	if err != nil {
		return models.InboxLink{}, storeErr(s.logger, "upsert inbox link", err)
	}
	return stored, nil
}

// History returns the caller's conversation about an item in send order
func (s *ChatService) History(ctx context.Context, callerID, itemName, otherUserID string) (models.Conversation, []models.Message, error) {
	ctx, span := util.StartSpan(ctx, "ChatService.History", attribute.String("item", itemName))
	defer span.End()

	conv, _, err := s.ResolveConversation(ctx, callerID, itemName, otherUserID)
	if err != nil {
		util.RecordError(span, err)
		return models.Conversation{}, nil, err
	}

	start := time.Now()
	msgs, err := s.messages.ListMessages(ctx, conv.ID)
	util.ObserveStore("list_messages", start)
	if err != nil {
		return models.Conversation{}, nil, storeErr(s.logger, "list messages", err)
	}
	return conv, msgs, nil
}

// SetTyping records whether the caller is typing in a conversation and
// notifies the counterpart.
func (s *ChatService) SetTyping(ctx context.Context, callerID, itemName, otherUserID string, isTyping bool) (models.Conversation, error) {
	conv, _, err := s.ResolveConversation(ctx, callerID, itemName, otherUserID)
	if err != nil {
		return models.Conversation{}, err
	}

	if isTyping {
		err = s.typing.SetTyping(ctx, conv.ID, callerID, s.cfg.TypingTTL)
	} else {
		err = s.typing.ClearTyping(ctx, conv.ID, callerID)
	}
	if err != nil {
		return models.Conversation{}, storeErr(s.logger, "set typing", err)
	}

	publish(s.logger, models.EventTypeTypingChanged, func() error {
		return s.events.PublishTypingChanged(ctx, &models.TypingChangedEvent{
			BaseEvent:      newBaseEvent(models.EventTypeTypingChanged),
			ConversationID: conv.ID,
			UserID:         callerID,
			RecipientID:    conv.Counterpart(callerID),
			IsTyping:       isTyping,
		})
	})
	return conv, nil
}

// TypingUsers lists the other participants currently typing
func (s *ChatService) TypingUsers(ctx context.Context, callerID, itemName, otherUserID string) ([]string, error) {
	conv, _, err := s.ResolveConversation(ctx, callerID, itemName, otherUserID)
	if err != nil {
		return nil, err
	}

	users, err := s.typing.TypingUsers(ctx, conv.ID)
	if err != nil {
		return nil, storeErr(s.logger, "typing users", err)
	}

	out := make([]string, 0, len(users))
	for _, u := range users {
		if u != callerID {
			out = append(out, u)
		}
	}
	return out, nil
}

// Inbox lists the caller's conversations, most recent first
func (s *ChatService) Inbox(ctx context.Context, callerID string) ([]models.InboxLink, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}

	start := time.Now()
	links, err := s.inbox.ListLinks(ctx, callerID)
	util.ObserveStore("list_links", start)
	if err != nil {
		return nil, storeErr(s.logger, "list inbox", err)
	}
	return links, nil
}

// ClearUnread marks a conversation as read for the caller
func (s *ChatService) ClearUnread(ctx context.Context, callerID, conversationID string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}
	if conversationID == "" {
		return fmt.Errorf("%w: conversation id is required", errs.ErrInvalidInput)
	}

	if err := s.inbox.ClearUnread(ctx, callerID, conversationID); err != nil {
		return storeErr(s.logger, "clear unread", err)
	}
	return nil
}

// DeleteChatLink removes a conversation from the caller's inbox only. The
// message log and the counterpart's link are left alone.
func (s *ChatService) DeleteChatLink(ctx context.Context, callerID, conversationID string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}
	if conversationID == "" {
		return fmt.Errorf("%w: conversation id is required", errs.ErrInvalidInput)
	}

	if err := s.inbox.DeleteLink(ctx, callerID, conversationID); err != nil {
		return storeErr(s.logger, "delete inbox link", err)
	}
	s.logger.Info("Chat link deleted",
		zap.String("user", callerID),
		zap.String("conversation_id", conversationID))
	return nil
}
