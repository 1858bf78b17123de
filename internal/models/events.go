package models

import "time"

// Event types
const (
	EventTypeTransactionReserved = "TRANSACTION_RESERVED"
	EventTypeTransactionSold     = "TRANSACTION_SOLD"
	EventTypeMessageSent         = "MESSAGE_SENT"
	EventTypeTypingChanged       = "TYPING_CHANGED"
	EventTypeReviewSubmitted     = "REVIEW_SUBMITTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionEvent is published when an item is reserved or sold
type TransactionEvent struct {
	BaseEvent
	ItemName string            `json:"item_name"`
	SellerID string            `json:"seller_id"`
	BuyerID  string            `json:"buyer_id"`
	Status   TransactionStatus `json:"status"`
}

// MessageSentEvent is published after a message is appended
type MessageSentEvent struct {
	BaseEvent
	ConversationID string  `json:"conversation_id"`
	ItemName       string  `json:"item_name"`
	RecipientID    string  `json:"recipient_id"`
	Message        Message `json:"message"`
}

// TypingChangedEvent is published when a user starts or stops typing
type TypingChangedEvent struct {
	BaseEvent
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	RecipientID    string `json:"recipient_id"`
	IsTyping       bool   `json:"is_typing"`
}

// ReviewSubmittedEvent is published when a buyer reviews a purchase
type ReviewSubmittedEvent struct {
	BaseEvent
	ItemName string `json:"item_name"`
	SellerID string `json:"seller_id"`
	Review   Review `json:"review"`
}

// Recipients lists the users an event should be delivered to.
func (e *TransactionEvent) Recipients() []string { return []string{e.SellerID, e.BuyerID} }

func (e *MessageSentEvent) Recipients() []string {
	return []string{e.Message.SenderID, e.RecipientID}
}

func (e *TypingChangedEvent) Recipients() []string { return []string{e.RecipientID} }

func (e *ReviewSubmittedEvent) Recipients() []string { return []string{e.SellerID} }
