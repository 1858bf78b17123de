package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"market-service/internal/errs"
	"market-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateReview inserts an item's review
func (s *Store) CreateReview(ctx context.Context, review *models.Review) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reviews (item_name, user_id, title, body, rate, pros, img_path, review_date)
		VALUES (:item_name, :user_id, :title, :body, :rate, :pros, :img_path, :review_date)`, review)
	if isUniqueViolation(err) {
		return fmt.Errorf("item %q already reviewed: %w", review.ItemName, errs.ErrConflict)
	}
	return err
}

// GetReview retrieves an item's review
func (s *Store) GetReview(ctx context.Context, itemName string) (*models.Review, error) {
	var review models.Review
	err := s.db.GetContext(ctx, &review, "SELECT * FROM reviews WHERE item_name = $1", itemName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review for %q: %w", itemName, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// ListReviews retrieves every review
func (s *Store) ListReviews(ctx context.Context) ([]models.Review, error) {
	reviews := []models.Review{}
	err := s.db.SelectContext(ctx, &reviews, "SELECT * FROM reviews ORDER BY item_name")
	return reviews, err
}

// ReviewsForItems retrieves the reviews of the given items
func (s *Store) ReviewsForItems(ctx context.Context, itemNames []string) ([]models.Review, error) {
	if len(itemNames) == 0 {
		return []models.Review{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM reviews WHERE item_name IN (?)", itemNames)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var reviews []models.Review
	err = s.db.SelectContext(ctx, &reviews, query, args...)
	return reviews, err
}
