// Package repository declares the narrow per-entity stores the services
// depend on.
package repository

import (
	"context"
	"time"

	"market-service/internal/models"
)

// ItemStore persists listings keyed by item name.
type ItemStore interface {
	// CreateItem stores a new item; an existing name yields errs.ErrConflict.
	CreateItem(ctx context.Context, item *models.Item) error
	// GetItem returns errs.ErrNotFound when no item has that name.
	GetItem(ctx context.Context, name string) (*models.Item, error)
	// ListItems returns every item, newest first.
	ListItems(ctx context.Context) ([]models.Item, error)
	ListItemsBySeller(ctx context.Context, seller string) ([]models.Item, error)
	// UpdateItemCondition replaces the condition label of an item. It yields
	// errs.ErrNotFound when no item has that name.
	UpdateItemCondition(ctx context.Context, name, condition string) error
	// DeleteItem removes the item node entirely.
	DeleteItem(ctx context.Context, name string) error
}

// TransactionStore persists reserved and sold states. Active is never stored:
// GetTransaction returns models.ActiveTransaction for an item without a record.
type TransactionStore interface {
	GetTransaction(ctx context.Context, itemName string) (models.Transaction, error)
	// ReserveTransaction creates the reserved record. It yields
	// errs.ErrConflict if a record already exists.
	ReserveTransaction(ctx context.Context, itemName, buyerID string) error
	// MarkSold moves a reservation held by buyerID to sold. It yields
	// errs.ErrConflict if the item is not reserved for buyerID.
	MarkSold(ctx context.Context, itemName, buyerID string) error
	ListTransactionsByBuyer(ctx context.Context, buyerID string) ([]models.Transaction, error)
	ListTransactionsByItems(ctx context.Context, itemNames []string) ([]models.Transaction, error)
}

// MessageStore is the append-only message log of every conversation.
type MessageStore interface {
	// AppendMessage assigns msg.Key, a push key ordered after every key
	// previously generated for the conversation.
	AppendMessage(ctx context.Context, msg *models.Message) error
	// ListMessages returns the log in push order.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// InboxStore keeps one link per (user, conversation).
type InboxStore interface {
	// UpsertLink creates the link with an unread count of 1 for a recipient
	// and 0 otherwise. On an existing link only the unread count (incremented
	// for a recipient) and the preview fields change. It returns the link as
	// stored.
	// last_message and updated_at are rewritten on every call so the inbox
	// shows the latest message; every other field keeps its first value.
	UpsertLink(ctx context.Context, userID string, link models.InboxLink, isRecipient bool) (models.InboxLink, error)
	// GetLink returns errs.ErrNotFound when the user has no such link.
	GetLink(ctx context.Context, userID, conversationID string) (models.InboxLink, error)
	ListLinks(ctx context.Context, userID string) ([]models.InboxLink, error)
	ClearUnread(ctx context.Context, userID, conversationID string) error
	DeleteLink(ctx context.Context, userID, conversationID string) error
}

// TypingStore keeps the sparse set of users typing in a conversation.
type TypingStore interface {
	SetTyping(ctx context.Context, conversationID, userID string, ttl time.Duration) error
	ClearTyping(ctx context.Context, conversationID, userID string) error
	TypingUsers(ctx context.Context, conversationID string) ([]string, error)
}

// PresenceStore records when users were last active.
type PresenceStore interface {
	TouchActivity(ctx context.Context, userID string, at time.Time) error
	// LastActive returns the zero time for users never seen.
	LastActive(ctx context.Context, userID string) (time.Time, error)
}

// ReviewStore persists at most one review per item name.
type ReviewStore interface {
	// CreateReview yields errs.ErrConflict when the item already has a review.
	CreateReview(ctx context.Context, review *models.Review) error
	// GetReview returns errs.ErrNotFound when the item has no review.
	GetReview(ctx context.Context, itemName string) (*models.Review, error)
	ListReviews(ctx context.Context) ([]models.Review, error)
	ReviewsForItems(ctx context.Context, itemNames []string) ([]models.Review, error)
}

// WishlistStore keeps the items each user is interested in.
type WishlistStore interface {
	SetInterest(ctx context.Context, userID, itemName string, interested bool) error
	IsInterested(ctx context.Context, userID, itemName string) (bool, error)
	ListInterests(ctx context.Context, userID string) ([]string, error)
}
