package service

import (
	"context"
	"errors"
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

// ItemService handles listings, the personal page, wishlists and presence
type ItemService struct {
	items        repository.ItemStore
	transactions repository.TransactionStore
	wishlist     repository.WishlistStore
	presence     repository.PresenceStore
	reviews      *ReviewService
	now          func() time.Time
	logger       *zap.Logger
}

// NewItemService creates a new item service
func NewItemService(
	items repository.ItemStore,
	transactions repository.TransactionStore,
	wishlist repository.WishlistStore,
	presence repository.PresenceStore,
	reviews *ReviewService,
) *ItemService {
	return &ItemService{
		items:        items,
		transactions: transactions,
		wishlist:     wishlist,
		presence:     presence,
		reviews:      reviews,
		now:          time.Now,
		logger:       util.GetLogger(),
	}
}

// CreateItemRequest represents a new listing
type CreateItemRequest struct {
	Name        string   `json:"name"`
	Address     string   `json:"addr"`
	Price       string   `json:"price"`
	Condition   string   `json:"status"`
	Negotiable  bool     `json:"negotiable"`
	Description string   `json:"description"`
	ImagePaths  []string `json:"img_paths"`
}

// CreateItem lists a new item with the caller as its seller
func (s *ItemService) CreateItem(ctx context.Context, callerID string, req *CreateItemRequest) (*models.Item, error) {
	ctx, span := util.StartSpan(ctx, "ItemService.CreateItem", attribute.String("item", req.Name))
	defer span.End()

	if err := requireCaller(callerID); err != nil {
		return nil, err
	}

	item := &models.Item{
		Name:        req.Name,
		Seller:      callerID,
		Address:     req.Address,
		Price:       req.Price,
		Condition:   req.Condition,
		Negotiable:  req.Negotiable,
		Description: req.Description,
		ImgPaths:    req.ImagePaths,
		CreatedAt:   float64(s.now().UnixNano()) / float64(time.Second),
	}
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}

	start := time.Now()
	err := s.items.CreateItem(ctx, item)
	util.ObserveStore("create_item", start)
	if err != nil {
		util.RecordError(span, err)
		return nil, storeErr(s.logger, "create item", err)
	}

	s.logger.Info("Item listed", zap.String("item", item.Name), zap.String("seller", callerID))
	return item, nil
}

// GetItem returns a single item
func (s *ItemService) GetItem(ctx context.Context, name string) (*models.Item, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", errs.ErrInvalidInput)
	}
	item, err := s.items.GetItem(ctx, name)
	if err != nil {
		return nil, storeErr(s.logger, "get item", err)
	}
	return item, nil
}

// GetItemDetail gathers the item page. viewerID may be empty for anonymous
// viewers, who can never review and have no wishlist.
func (s *ItemService) GetItemDetail(ctx context.Context, name, viewerID string) (*models.ItemDetail, error) {
	ctx, span := util.StartSpan(ctx, "ItemService.GetItemDetail", attribute.String("item", name))
	defer span.End()

	item, err := s.GetItem(ctx, name)
	if err != nil {
		return nil, err
	}

	tx, err := s.transactions.GetTransaction(ctx, name)
	if err != nil {
		return nil, storeErr(s.logger, "get transaction", err)
	}

	stats, err := s.reviews.SellerStats(ctx, item.Seller)
	if err != nil {
		return nil, err
	}

	detail := &models.ItemDetail{
		Item:        item,
		Transaction: tx,
		SellerStats: stats,
		CanReview:   viewerID != "" && tx.IsSold() && tx.BuyerID == viewerID,
	}
	if viewerID != "" {
		detail.Interested, err = s.wishlist.IsInterested(ctx, viewerID, name)
		if err != nil {
			return nil, storeErr(s.logger, "is interested", err)
		}
	}
	return detail, nil
}

// DeleteItem removes one of the caller's listings
func (s *ItemService) DeleteItem(ctx context.Context, callerID, name string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}

	item, err := s.GetItem(ctx, name)
	if err != nil {
		return err
	}
	if item.Seller != callerID {
		return fmt.Errorf("%w: only the seller can delete an item", errs.ErrForbidden)
	}

	if err := s.items.DeleteItem(ctx, name); err != nil {
		return storeErr(s.logger, "delete item", err)
	}
	s.logger.Info("Item deleted", zap.String("item", name), zap.String("seller", callerID))
	return nil
}

// ListItems returns every listing, newest first
func (s *ItemService) ListItems(ctx context.Context) ([]models.Item, error) {
	ctx, span := util.StartSpan(ctx, "ItemService.ListItems")
	defer span.End()

	start := time.Now()
	items, err := s.items.ListItems(ctx)
	util.ObserveStore("list_items", start)
	if err != nil {
		util.RecordError(span, err)
		return nil, storeErr(s.logger, "list items", err)
	}
	return items, nil
}

// UpdateItemStatus changes the condition label of one of the caller's
// listings. It does not touch the item's transaction.
func (s *ItemService) UpdateItemStatus(ctx context.Context, callerID, name, status string) (*models.Item, error) {
	ctx, span := util.StartSpan(ctx, "ItemService.UpdateItemStatus", attribute.String("item", name))
	defer span.End()

	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", errs.ErrInvalidInput)
	}

	item, err := s.GetItem(ctx, name)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	if item.Seller != callerID {
		s.logger.Warn("Item status edit by non-seller",
			zap.String("item", name), zap.String("caller", callerID))
		return nil, fmt.Errorf("%w: only the seller can change an item", errs.ErrForbidden)
	}

	if err := s.items.UpdateItemCondition(ctx, name, status); err != nil {
		util.RecordError(span, err)
		return nil, storeErr(s.logger, "update item condition", err)
	}
	item.Condition = status
	s.logger.Info("Item status changed", zap.String("item", name), zap.String("status", status))
	return item, nil
}

// MyPage sorts the caller's listings into active and sold and lists what
// they bought or have reserved.
func (s *ItemService) MyPage(ctx context.Context, callerID string) (*models.MyPage, error) {
	ctx, span := util.StartSpan(ctx, "ItemService.MyPage")
	defer span.End()

	if err := requireCaller(callerID); err != nil {
		return nil, err
	}

	mine, err := s.items.ListItemsBySeller(ctx, callerID)
	if err != nil {
		return nil, storeErr(s.logger, "list items by seller", err)
	}

	names := make([]string, len(mine))
	for i := range mine {
		names[i] = mine[i].Name
	}
	states := make(map[string]models.Transaction, len(names))
	if len(names) > 0 {
		txs, err := s.transactions.ListTransactionsByItems(ctx, names)
		if err != nil {
			return nil, storeErr(s.logger, "list transactions by items", err)
		}
		for _, tx := range txs {
			states[tx.ItemName] = tx
		}
	}

	page := &models.MyPage{
		Active: []models.ItemSummary{},
		Sold:   []models.ItemSummary{},
		Bought: []models.ItemSummary{},
	}
	for i := range mine {
		item := mine[i]
		tx, ok := states[item.Name]
		if !ok {
			tx = models.ActiveTransaction(item.Name)
		}
		summary := models.ItemSummary{Name: item.Name, Item: &item, Transaction: tx}
		if tx.IsSold() {
			page.Sold = append(page.Sold, summary)
		} else {
			page.Active = append(page.Active, summary)
		}
	}

	bought, err := s.transactions.ListTransactionsByBuyer(ctx, callerID)
	if err != nil {
		return nil, storeErr(s.logger, "list transactions by buyer", err)
	}
	for _, tx := range bought {
		summary := models.ItemSummary{Name: tx.ItemName, Transaction: tx}
		item, err := s.items.GetItem(ctx, tx.ItemName)
		switch {
		case err == nil:
			summary.Item = item
		case !errors.Is(err, errs.ErrNotFound):
			return nil, storeErr(s.logger, "get item", err)
		}
		page.Bought = append(page.Bought, summary)
	}
	return page, nil
}

// Like adds an item to the caller's wishlist
func (s *ItemService) Like(ctx context.Context, callerID, name string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}
	if _, err := s.GetItem(ctx, name); err != nil {
		return err
	}
	if err := s.wishlist.SetInterest(ctx, callerID, name, true); err != nil {
		return storeErr(s.logger, "set interest", err)
	}
	return nil
}

// Unlike removes an item from the caller's wishlist
func (s *ItemService) Unlike(ctx context.Context, callerID, name string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: item name is required", errs.ErrInvalidInput)
	}
	if err := s.wishlist.SetInterest(ctx, callerID, name, false); err != nil {
		return storeErr(s.logger, "clear interest", err)
	}
	return nil
}

// Liked reports whether the item is on the caller's wishlist
func (s *ItemService) Liked(ctx context.Context, callerID, name string) (bool, error) {
	if err := requireCaller(callerID); err != nil {
		return false, err
	}
	liked, err := s.wishlist.IsInterested(ctx, callerID, name)
	if err != nil {
		return false, storeErr(s.logger, "is interested", err)
	}
	return liked, nil
}

// Wishlist returns the items on the caller's wishlist that still exist
func (s *ItemService) Wishlist(ctx context.Context, callerID string) ([]models.Item, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}

	names, err := s.wishlist.ListInterests(ctx, callerID)
	if err != nil {
		return nil, storeErr(s.logger, "list interests", err)
	}

	out := make([]models.Item, 0, len(names))
	for _, name := range names {
		item, err := s.items.GetItem(ctx, name)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeErr(s.logger, "get item", err)
		}
		out = append(out, *item)
	}
	return out, nil
}

// TouchActivity records that the caller is active now
func (s *ItemService) TouchActivity(ctx context.Context, callerID string) (time.Time, error) {
	if err := requireCaller(callerID); err != nil {
		return time.Time{}, err
	}

	at := s.now()
	if err := s.presence.TouchActivity(ctx, callerID, at); err != nil {
		return time.Time{}, storeErr(s.logger, "touch activity", err)
	}
	return at, nil
}
