package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TransactionStatus is the sale state of an item.
type TransactionStatus string

// Transaction statuses
const (
	TransactionStatusActive   TransactionStatus = "active"
	TransactionStatusReserved TransactionStatus = "reserved"
	TransactionStatusSold     TransactionStatus = "sold"
)

// Item condition labels set by the seller. Any other label is accepted too.
const (
	ItemConditionUsed = "used"
	ItemConditionSold = "sold"
)

// Transaction is the reservation/sale state attached to an item. Active
// transactions carry no buyer and are never persisted.
type Transaction struct {
	ItemName string            `db:"item_name" json:"item_name"`
	Status   TransactionStatus `db:"status" json:"status"`
	BuyerID  string            `db:"buyer_id" json:"buyer_id,omitempty"`
}

// ActiveTransaction is the state of an item nobody has reserved yet.
func ActiveTransaction(itemName string) Transaction {
	return Transaction{ItemName: itemName, Status: TransactionStatusActive}
}

// ReservedTransaction is the state of an item promised to buyerID.
func ReservedTransaction(itemName, buyerID string) Transaction {
	return Transaction{ItemName: itemName, Status: TransactionStatusReserved, BuyerID: buyerID}
}

// SoldTransaction is the terminal state of an item bought by buyerID.
func SoldTransaction(itemName, buyerID string) Transaction {
	return Transaction{ItemName: itemName, Status: TransactionStatusSold, BuyerID: buyerID}
}

func (t Transaction) IsActive() bool   { return t.Status == TransactionStatusActive }
func (t Transaction) IsReserved() bool { return t.Status == TransactionStatusReserved }
func (t Transaction) IsSold() bool     { return t.Status == TransactionStatusSold }

// Item is a single marketplace listing, keyed by its unique name.
type Item struct {
	Name        string   `json:"name"`
	Seller      string   `json:"seller"`
	Address     string   `json:"addr"`
	Price       string   `json:"price"`
	Condition   string   `json:"status"`
	Negotiable  bool     `json:"negotiable"`
	Description string   `json:"description"`
	ImgPath     string   `json:"img_path"`
	ImgPaths    []string `json:"img_paths"`
	CreatedAt   float64  `json:"created_at"`
}

// NormalizePrice keeps only the digits of a user supplied price.
func NormalizePrice(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PriceValue parses the stored price, falling back to zero.
func (i *Item) PriceValue() int64 {
	v, err := strconv.ParseInt(i.Price, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Validate normalizes the item and checks its invariants: a name and a
// seller, a digits-only price and at least one image, with ImgPath always
// mirroring the first image.
func (i *Item) Validate() error {
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		return fmt.Errorf("item name is required")
	}
	if i.Seller == "" {
		return fmt.Errorf("seller is required")
	}
	i.Price = NormalizePrice(i.Price)
	if i.Price == "" {
		return fmt.Errorf("price must contain digits")
	}

	paths := make([]string, 0, len(i.ImgPaths))
	for _, p := range i.ImgPaths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("at least one image is required")
	}
	i.ImgPaths = paths
	i.ImgPath = paths[0]

	if i.Condition == "" {
		i.Condition = ItemConditionUsed
	}
	if i.CreatedAt == 0 {
		i.CreatedAt = float64(time.Now().UnixNano()) / float64(time.Second)
	}
	return nil
}

// Message is one entry of a conversation's append-only log. Key is the
// store generated push key; its order is the message order.
type Message struct {
	Key            string `db:"msg_key" json:"key"`
	ConversationID string `db:"conversation_id" json:"conversation_id"`
	SenderID       string `db:"sender_id" json:"sender"`
	Text           string `db:"body" json:"text"`
	ImageURL       string `db:"image_url" json:"image_url,omitempty"`
	Timestamp      string `db:"sent_at" json:"timestamp"`
}

// InboxLink is a user's pointer to a conversation.
type InboxLink struct {
	ConversationID string `json:"conversation_id"`
	ItemName       string `json:"item_name"`
	OtherUserID    string `json:"other_user_id"`
	UnreadCount    int    `json:"unread_count"`
	LastMessage    string `json:"last_message"`
	UpdatedAt      int64  `json:"updated_at"`
}

// Review is the single review left by the buyer of an item.
type Review struct {
	ItemName  string `db:"item_name" json:"item_name"`
	UserID    string `db:"user_id" json:"user"`
	Title     string `db:"title" json:"title"`
	Body      string `db:"body" json:"review"`
	Rate      string `db:"rate" json:"rate"`
	Pros      string `db:"pros" json:"pros"`
	ImagePath string `db:"img_path" json:"img_path"`
	Date      string `db:"review_date" json:"date"`
}

// RatingValue parses the string encoded rating. Malformed and non-finite
// ratings read as 0.
func (r *Review) RatingValue() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Rate), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// ReviewDateLayouts are the accepted review date formats.
var ReviewDateLayouts = []string{"2006-01-02", "2006.01.02"}

// ParsedDate returns the review date, or the zero time if it is malformed.
func (r *Review) ParsedDate() time.Time {
	for _, layout := range ReviewDateLayouts {
		if t, err := time.Parse(layout, r.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SellerStats aggregates the ratings of a seller's reviewed items.
type SellerStats struct {
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
}

// ItemStatus is the public transaction view of an item.
type ItemStatus struct {
	Status  TransactionStatus `json:"status"`
	BuyerID *string           `json:"buyer_id"`
	Seller  string            `json:"seller"`
}

// ItemDetail is an item together with everything the detail page needs.
type ItemDetail struct {
	Item        *Item       `json:"item"`
	Transaction Transaction `json:"transaction"`
	SellerStats SellerStats `json:"review_stats"`
	CanReview   bool        `json:"can_review"`
	Interested  bool        `json:"interested"`
}

// ItemSummary pairs an item with its transaction state.
type ItemSummary struct {
	Name        string      `json:"name"`
	Item        *Item       `json:"item,omitempty"`
	Transaction Transaction `json:"transaction"`
}

// MyPage buckets a user's listings and purchases.
type MyPage struct {
	Active []ItemSummary `json:"active"`
	Sold   []ItemSummary `json:"sold"`
	Bought []ItemSummary `json:"bought"`
}
