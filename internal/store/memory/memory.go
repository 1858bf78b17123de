// Package memory implements every repository interface in process memory.
// It backs the service tests and STORE_DRIVER=memory for local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"market-service/internal/errs"
	"market-service/internal/models"
	"market-service/internal/pushkey"
	"market-service/internal/repository"
)

var (
	_ repository.ItemStore        = (*Store)(nil)
	_ repository.TransactionStore = (*Store)(nil)
	_ repository.MessageStore     = (*Store)(nil)
	_ repository.InboxStore       = (*Store)(nil)
	_ repository.TypingStore      = (*Store)(nil)
	_ repository.PresenceStore    = (*Store)(nil)
	_ repository.ReviewStore      = (*Store)(nil)
	_ repository.WishlistStore    = (*Store)(nil)
)

type typingMark struct {
	expires time.Time
}

// Store is a mutex guarded in-memory document store.
type Store struct {
	mu sync.Mutex

	items        map[string]models.Item
	transactions map[string]models.Transaction
	messages     map[string][]models.Message
	inbox        map[string]map[string]models.InboxLink
	typing       map[string]map[string]typingMark
	presence     map[string]time.Time
	reviews      map[string]models.Review
	wishlist     map[string]map[string]struct{}
	idempotency  map[string]time.Time
	locks        map[string]heldLock
	lockSeq      uint64

	keys *pushkey.Generator
	now  func() time.Time
}

// New creates an empty store.
func New() *Store {
	s := &Store{
		items:        make(map[string]models.Item),
		transactions: make(map[string]models.Transaction),
		messages:     make(map[string][]models.Message),
		inbox:        make(map[string]map[string]models.InboxLink),
		typing:       make(map[string]map[string]typingMark),
		presence:     make(map[string]time.Time),
		reviews:      make(map[string]models.Review),
		wishlist:     make(map[string]map[string]struct{}),
		idempotency:  make(map[string]time.Time),
		locks:        make(map[string]heldLock),
		now:          time.Now,
	}
	s.keys = pushkey.NewGenerator(func() time.Time { return s.now() })
	return s
}

func cloneItem(item models.Item) *models.Item {
	item.ImgPaths = append([]string(nil), item.ImgPaths...)
	return &item
}

// CreateItem stores a new item
func (s *Store) CreateItem(_ context.Context, item *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.Name]; ok {
		return fmt.Errorf("item %q already exists: %w", item.Name, errs.ErrConflict)
	}
	s.items[item.Name] = *cloneItem(*item)
	return nil
}

// GetItem retrieves an item by name
func (s *Store) GetItem(_ context.Context, name string) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[name]
	if !ok {
		return nil, fmt.Errorf("item %q: %w", name, errs.ErrNotFound)
	}
	return cloneItem(item), nil
}

// ListItems retrieves every item, newest first
func (s *Store) ListItems(_ context.Context) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *cloneItem(item))
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(items []models.Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return items[i].Name < items[j].Name
	})
}

// UpdateItemCondition replaces the condition label of an item
func (s *Store) UpdateItemCondition(_ context.Context, name, condition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[name]
	if !ok {
		return fmt.Errorf("item %q: %w", name, errs.ErrNotFound)
	}
	item.Condition = condition
	s.items[name] = item
	return nil
}

// ListItemsBySeller retrieves a seller's items, newest first
func (s *Store) ListItemsBySeller(_ context.Context, seller string) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Item
	for _, item := range s.items {
		if item.Seller == seller {
			out = append(out, *cloneItem(item))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// DeleteItem removes an item
func (s *Store) DeleteItem(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[name]; !ok {
		return fmt.Errorf("item %q: %w", name, errs.ErrNotFound)
	}
	delete(s.items, name)
	return nil
}

// GetTransaction retrieves the transaction state of an item
func (s *Store) GetTransaction(_ context.Context, itemName string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[itemName]
	if !ok {
		return models.ActiveTransaction(itemName), nil
	}
	return tx, nil
}

// ReserveTransaction creates a reservation
func (s *Store) ReserveTransaction(_ context.Context, itemName, buyerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx, ok := s.transactions[itemName]; ok {
		return fmt.Errorf("item %q is %s: %w", itemName, tx.Status, errs.ErrConflict)
	}
	s.transactions[itemName] = models.ReservedTransaction(itemName, buyerID)
	return nil
}

// MarkSold moves a reservation to sold
func (s *Store) MarkSold(_ context.Context, itemName, buyerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[itemName]
	if !ok || tx.BuyerID != buyerID {
		return fmt.Errorf("item %q is not reserved for %q: %w", itemName, buyerID, errs.ErrConflict)
	}
	s.transactions[itemName] = models.SoldTransaction(itemName, buyerID)
	return nil
}

// ListTransactionsByBuyer retrieves every transaction naming buyerID
func (s *Store) ListTransactionsByBuyer(_ context.Context, buyerID string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for _, tx := range s.transactions {
		if tx.BuyerID == buyerID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })
	return out, nil
}

// ListTransactionsByItems retrieves the stored transactions of the given items
func (s *Store) ListTransactionsByItems(_ context.Context, itemNames []string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for _, name := range itemNames {
		if tx, ok := s.transactions[name]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

// AppendMessage appends a message under a fresh push key
func (s *Store) AppendMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.keys.Next()
	if err != nil {
		return fmt.Errorf("failed to generate push key: %w", err)
	}
	msg.Key = key
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

// ListMessages retrieves a conversation's messages in push order
func (s *Store) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Message{}, s.messages[conversationID]...), nil
}

// UpsertLink creates or bumps a user's inbox link
func (s *Store) UpsertLink(_ context.Context, userID string, link models.InboxLink, isRecipient bool) (models.InboxLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	links, ok := s.inbox[userID]
	if !ok {
		links = make(map[string]models.InboxLink)
		s.inbox[userID] = links
	}

	existing, ok := links[link.ConversationID]
	if !ok {
		link.UnreadCount = 0
		if isRecipient {
			link.UnreadCount = 1
		}
		links[link.ConversationID] = link
		return link, nil
	}

	if isRecipient {
		existing.UnreadCount++
	}
	existing.LastMessage = link.LastMessage
	existing.UpdatedAt = link.UpdatedAt
	links[link.ConversationID] = existing
	return existing, nil
}

// GetLink retrieves a single inbox link
func (s *Store) GetLink(_ context.Context, userID, conversationID string) (models.InboxLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.inbox[userID][conversationID]
	if !ok {
		return models.InboxLink{}, fmt.Errorf("conversation %q: %w", conversationID, errs.ErrNotFound)
	}
	return link, nil
}

// ListLinks retrieves a user's inbox, most recently updated first
func (s *Store) ListLinks(_ context.Context, userID string) ([]models.InboxLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.InboxLink, 0, len(s.inbox[userID]))
	for _, link := range s.inbox[userID] {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out, nil
}

// ClearUnread resets a link's unread count
func (s *Store) ClearUnread(_ context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.inbox[userID][conversationID]
	if !ok {
		return nil
	}
	link.UnreadCount = 0
	s.inbox[userID][conversationID] = link
	return nil
}

// DeleteLink removes a user's inbox link
func (s *Store) DeleteLink(_ context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inbox[userID], conversationID)
	return nil
}

// SetTyping marks a user as typing until ttl elapses
func (s *Store) SetTyping(_ context.Context, conversationID, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marks, ok := s.typing[conversationID]
	if !ok {
		marks = make(map[string]typingMark)
		s.typing[conversationID] = marks
	}
	marks[userID] = typingMark{expires: s.now().Add(ttl)}
	return nil
}

// ClearTyping removes a user's typing marker
func (s *Store) ClearTyping(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.typing[conversationID], userID)
	if len(s.typing[conversationID]) == 0 {
		delete(s.typing, conversationID)
	}
	return nil
}

// TypingUsers lists users with a live typing marker
func (s *Store) TypingUsers(_ context.Context, conversationID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []string
	for user, mark := range s.typing[conversationID] {
		if now.Before(mark.expires) {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	return out, nil
}

// TouchActivity records a user's last activity
func (s *Store) TouchActivity(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.presence[userID] = at
	return nil
}

// LastActive returns a user's last activity
func (s *Store) LastActive(_ context.Context, userID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.presence[userID], nil
}

// CreateReview stores an item's review
func (s *Store) CreateReview(_ context.Context, review *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reviews[review.ItemName]; ok {
		return fmt.Errorf("item %q already reviewed: %w", review.ItemName, errs.ErrConflict)
	}
	s.reviews[review.ItemName] = *review
	return nil
}

// GetReview retrieves an item's review
func (s *Store) GetReview(_ context.Context, itemName string) (*models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	review, ok := s.reviews[itemName]
	if !ok {
		return nil, fmt.Errorf("review for %q: %w", itemName, errs.ErrNotFound)
	}
	return &review, nil
}

// ListReviews retrieves every review
func (s *Store) ListReviews(_ context.Context) ([]models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Review, 0, len(s.reviews))
	for _, review := range s.reviews {
		out = append(out, review)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })
	return out, nil
}

// ReviewsForItems retrieves the reviews of the given items
func (s *Store) ReviewsForItems(_ context.Context, itemNames []string) ([]models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Review
	for _, name := range itemNames {
		if review, ok := s.reviews[name]; ok {
			out = append(out, review)
		}
	}
	return out, nil
}

// SetInterest adds or removes an item from a user's wishlist
func (s *Store) SetInterest(_ context.Context, userID, itemName string, interested bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.wishlist[userID]
	if !ok {
		set = make(map[string]struct{})
		s.wishlist[userID] = set
	}
	if interested {
		set[itemName] = struct{}{}
	} else {
		delete(set, itemName)
	}
	return nil
}

// IsInterested reports whether an item is on a user's wishlist
func (s *Store) IsInterested(_ context.Context, userID, itemName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.wishlist[userID][itemName]
	return ok, nil
}

// ListInterests lists a user's wishlist
func (s *Store) ListInterests(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.wishlist[userID]))
	for name := range s.wishlist[userID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// SetIdempotencyKey records key unless it is already present and unexpired
func (s *Store) SetIdempotencyKey(_ context.Context, key string, _ interface{}, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.idempotency[key]; ok && now.Before(expires) {
		return false, nil
	}
	s.idempotency[key] = now.Add(ttl)
	return true, nil
}

// ForgetIdempotencyKey drops key
func (s *Store) ForgetIdempotencyKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.idempotency, key)
	return nil
}

type heldLock struct {
	token   string
	expires time.Time
}

// AcquireLock takes a named lock for ttl
func (s *Store) AcquireLock(_ context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if held, ok := s.locks[lockKey]; ok && now.Before(held.expires) {
		return "", false, nil
	}
	s.lockSeq++
	token := fmt.Sprintf("lock-%d", s.lockSeq)
	s.locks[lockKey] = heldLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// ReleaseLock drops a named lock if it is still held with token
func (s *Store) ReleaseLock(_ context.Context, lockKey, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.locks[lockKey]; ok && held.token == token {
		delete(s.locks, lockKey)
	}
	return nil
}
