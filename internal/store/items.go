package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"market-service/internal/errs"
	"market-service/internal/models"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type itemRow struct {
	Name        string         `db:"name"`
	Seller      string         `db:"seller"`
	Address     string         `db:"addr"`
	Price       string         `db:"price"`
	Condition   string         `db:"condition"`
	Negotiable  bool           `db:"negotiable"`
	Description string         `db:"description"`
	ImgPath     string         `db:"img_path"`
	ImgPaths    pq.StringArray `db:"img_paths"`
	CreatedAt   float64        `db:"created_at"`
}

func (r *itemRow) toModel() *models.Item {
	return &models.Item{
		Name:        r.Name,
		Seller:      r.Seller,
		Address:     r.Address,
		Price:       r.Price,
		Condition:   r.Condition,
		Negotiable:  r.Negotiable,
		Description: r.Description,
		ImgPath:     r.ImgPath,
		ImgPaths:    []string(r.ImgPaths),
		CreatedAt:   r.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreateItem inserts a new item
func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	query := `
		INSERT INTO items (name, seller, addr, price, condition, negotiable, description, img_path, img_paths, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		item.Name, item.Seller, item.Address, item.Price, item.Condition, item.Negotiable,
		item.Description, item.ImgPath, pq.StringArray(item.ImgPaths), item.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("item %q already exists: %w", item.Name, errs.ErrConflict)
	}
	return err
}

// GetItem retrieves an item by name
func (s *Store) GetItem(ctx context.Context, name string) (*models.Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM items WHERE name = $1", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %q: %w", name, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// ListItems retrieves every item, newest first
func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM items ORDER BY created_at DESC, name"); err != nil {
		return nil, err
	}

	items := make([]models.Item, 0, len(rows))
	for i := range rows {
		items = append(items, *rows[i].toModel())
	}
	return items, nil
}

// UpdateItemCondition replaces the condition label of an item
func (s *Store) UpdateItemCondition(ctx context.Context, name, condition string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE items SET condition = $2 WHERE name = $1", name, condition)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %q: %w", name, errs.ErrNotFound)
	}
	return nil
}

// ListItemsBySeller retrieves a seller's items, newest first
func (s *Store) ListItemsBySeller(ctx context.Context, seller string) ([]models.Item, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM items WHERE seller = $1 ORDER BY created_at DESC, name", seller)
	if err != nil {
		return nil, err
	}

	items := make([]models.Item, 0, len(rows))
	for i := range rows {
		items = append(items, *rows[i].toModel())
	}
	return items, nil
}

// DeleteItem removes an item
func (s *Store) DeleteItem(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE name = $1", name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %q: %w", name, errs.ErrNotFound)
	}
	return nil
}
