package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"market-service/internal/errs"
	"market-service/internal/models"
	"market-service/internal/repository"
	"market-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ReviewDateLayout is the layout new reviews are stamped with
const ReviewDateLayout = "2006-01-02"

// ReviewService decides who may review what and aggregates seller ratings
type ReviewService struct {
	items        repository.ItemStore
	transactions repository.TransactionStore
	reviews      repository.ReviewStore
	events       EventPublisher
	now          func() time.Time
	logger       *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(
	items repository.ItemStore,
	transactions repository.TransactionStore,
	reviews repository.ReviewStore,
	events EventPublisher,
) *ReviewService {
	return &ReviewService{
		items:        items,
		transactions: transactions,
		reviews:      reviews,
		events:       events,
		now:          time.Now,
		logger:       util.GetLogger(),
	}
}

// ReviewableItem is a purchase still waiting for its review
type ReviewableItem struct {
	ItemName string       `json:"item_name"`
	Item     *models.Item `json:"item"`
}

// ListReviewable returns the items buyerID bought and has not reviewed yet
func (s *ReviewService) ListReviewable(ctx context.Context, buyerID string) ([]ReviewableItem, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.ListReviewable")
	defer span.End()

	if err := requireCaller(buyerID); err != nil {
		return nil, err
	}

	start := time.Now()
	txs, err := s.transactions.ListTransactionsByBuyer(ctx, buyerID)
	util.ObserveStore("list_transactions_by_buyer", start)
	if err != nil {
		util.RecordError(span, err)
		return nil, storeErr(s.logger, "list transactions by buyer", err)
	}

	names := make([]string, 0, len(txs))
	for _, tx := range txs {
		if tx.IsSold() {
			names = append(names, tx.ItemName)
		}
	}
	if len(names) == 0 {
		return []ReviewableItem{}, nil
	}

	reviewed, err := s.reviewedItems(ctx, names)
	if err != nil {
		return nil, err
	}

	out := make([]ReviewableItem, 0, len(names))
	for _, name := range names {
		if reviewed[name] {
			continue
		}
		item, err := s.items.GetItem(ctx, name)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeErr(s.logger, "get item", err)
		}
		out = append(out, ReviewableItem{ItemName: name, Item: item})
	}
	return out, nil
}

func (s *ReviewService) reviewedItems(ctx context.Context, names []string) (map[string]bool, error) {
	start := time.Now()
	reviews, err := s.reviews.ReviewsForItems(ctx, names)
	util.ObserveStore("reviews_for_items", start)
	if err != nil {
		return nil, storeErr(s.logger, "reviews for items", err)
	}

	reviewed := make(map[string]bool, len(reviews))
	for _, r := range reviews {
		reviewed[r.ItemName] = true
	}
	return reviewed, nil
}

// CanReview reports whether userID bought the item
func (s *ReviewService) CanReview(ctx context.Context, userID, itemName string) (bool, error) {
	if userID == "" || itemName == "" {
		return false, nil
	}

	tx, err := s.transactions.GetTransaction(ctx, itemName)
	if err != nil {
		return false, storeErr(s.logger, "get transaction", err)
	}
	return tx.IsSold() && tx.BuyerID == userID, nil
}

// SubmitReviewRequest represents a buyer's review of a purchase
type SubmitReviewRequest struct {
	ItemName string   `json:"item_name"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Rating   string   `json:"rating"`
	Pros     string   `json:"pros"`
	Images   []string `json:"images"`
}

// SubmitReview stores the caller's review of an item they bought. Each item
// takes a single review.
func (s *ReviewService) SubmitReview(ctx context.Context, callerID string, req *SubmitReviewRequest) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.SubmitReview", attribute.String("item", req.ItemName))
	defer span.End()

	review, err := s.submitReview(ctx, callerID, req)
	if err != nil {
		util.RecordError(span, err)
	}
	return review, err
}

func (s *ReviewService) submitReview(ctx context.Context, callerID string, req *SubmitReviewRequest) (*models.Review, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	if req.ItemName == "" {
		return nil, fmt.Errorf("%w: item name is required", errs.ErrInvalidInput)
	}

	ok, err := s.CanReview(ctx, callerID, req.ItemName)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("Review by non-buyer rejected",
			zap.String("item", req.ItemName), zap.String("caller", callerID))
		return nil, fmt.Errorf("%w: only the buyer of a sold item can review it", errs.ErrForbidden)
	}

	rating, err := strconv.Atoi(strings.TrimSpace(req.Rating))
	if err != nil || rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be a whole number from 1 to 5", errs.ErrInvalidInput)
	}

	review := &models.Review{
		ItemName:  req.ItemName,
		UserID:    callerID,
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Content),
		Rate:      strconv.Itoa(rating),
		Pros:      strings.TrimSpace(req.Pros),
		ImagePath: firstImage(req.Images),
		Date:      s.now().Format(ReviewDateLayout),
	}

	start := time.Now()
	err = s.reviews.CreateReview(ctx, review)
	util.ObserveStore("create_review", start)
	if err != nil {
		return nil, storeErr(s.logger, "create review", err)
	}

	util.ReviewsSubmittedTotal.Inc()
	s.logger.Info("Review submitted", zap.String("item", review.ItemName), zap.Int("rating", rating))

	var sellerID string
	if item, err := s.items.GetItem(ctx, req.ItemName); err == nil {
		sellerID = item.Seller
	}
	publish(s.logger, models.EventTypeReviewSubmitted, func() error {
		return s.events.PublishReviewSubmitted(ctx, &models.ReviewSubmittedEvent{
			BaseEvent: newBaseEvent(models.EventTypeReviewSubmitted),
			ItemName:  review.ItemName,
			SellerID:  sellerID,
			Review:    *review,
		})
	})
	return review, nil
}

// firstImage picks the review's cover image
func firstImage(paths []string) string {
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			return p
		}
	}
	return ""
}

// SellerStats averages the ratings of the reviews on a seller's items.
// Unparseable or non-positive ratings are left out; the average is rounded
// to one decimal.
func (s *ReviewService) SellerStats(ctx context.Context, sellerID string) (models.SellerStats, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.SellerStats", attribute.String("seller", sellerID))
	defer span.End()

	if sellerID == "" {
		return models.SellerStats{}, fmt.Errorf("%w: seller is required", errs.ErrInvalidInput)
	}

	start := time.Now()
	items, err := s.items.ListItemsBySeller(ctx, sellerID)
	util.ObserveStore("list_items_by_seller", start)
	if err != nil {
		return models.SellerStats{}, storeErr(s.logger, "list items by seller", err)
	}
	if len(items) == 0 {
		return models.SellerStats{}, nil
	}

	names := make([]string, len(items))
	for i := range items {
		names[i] = items[i].Name
	}

	start = time.Now()
	reviews, err := s.reviews.ReviewsForItems(ctx, names)
	util.ObserveStore("reviews_for_items", start)
	if err != nil {
		return models.SellerStats{}, storeErr(s.logger, "reviews for items", err)
	}

	return aggregateRatings(reviews), nil
}

func aggregateRatings(reviews []models.Review) models.SellerStats {
	var (
		sum   float64
		count int
	)
	for i := range reviews {
		if r := reviews[i].RatingValue(); r > 0 {
			sum += r
			count++
		}
	}
	if count == 0 {
		return models.SellerStats{}
	}
	return models.SellerStats{
		AverageRating: math.Round(sum/float64(count)*10) / 10,
		TotalReviews:  count,
	}
}

// GetReview returns the review of an item
func (s *ReviewService) GetReview(ctx context.Context, itemName string) (*models.Review, error) {
	review, err := s.reviews.GetReview(ctx, itemName)
	if err != nil {
		return nil, storeErr(s.logger, "get review", err)
	}
	return review, nil
}

// ListReviews returns every review, newest first
func (s *ReviewService) ListReviews(ctx context.Context) ([]models.Review, error) {
	reviews, err := s.reviews.ListReviews(ctx)
	if err != nil {
		return nil, storeErr(s.logger, "list reviews", err)
	}

	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].ParsedDate().After(reviews[j].ParsedDate())
	})
	return reviews, nil
}
