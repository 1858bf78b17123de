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

// GetTransaction retrieves the transaction state of an item. A missing row is
// reported as the active state.
func (s *Store) GetTransaction(ctx context.Context, itemName string) (models.Transaction, error) {
	var tx models.Transaction
	err := s.db.GetContext(ctx, &tx,
		"SELECT item_name, status, buyer_id FROM transactions WHERE item_name = $1", itemName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ActiveTransaction(itemName), nil
	}
	if err != nil {
		return models.Transaction{}, err
	}

	switch tx.Status {
	case models.TransactionStatusReserved, models.TransactionStatusSold:
		return tx, nil
	default:
		return models.Transaction{}, fmt.Errorf("item %q has unknown transaction status %q", itemName, tx.Status)
	}
}

// ReserveTransaction creates the reserved row, refusing to replace an
// existing one
func (s *Store) ReserveTransaction(ctx context.Context, itemName, buyerID string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (item_name, status, buyer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_name) DO NOTHING`,
		itemName, models.TransactionStatusReserved, buyerID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %q already has a transaction: %w", itemName, errs.ErrConflict)
	}
	return nil
}

// MarkSold updates a reservation held by buyerID to sold
func (s *Store) MarkSold(ctx context.Context, itemName, buyerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = $1, buyer_id = $2, updated_at = NOW()
		WHERE item_name = $3 AND buyer_id = $2`,
		models.TransactionStatusSold, buyerID, itemName)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %q is not reserved for %q: %w", itemName, buyerID, errs.ErrConflict)
	}
	return nil
}

// ListTransactionsByBuyer retrieves every transaction naming buyerID
func (s *Store) ListTransactionsByBuyer(ctx context.Context, buyerID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.SelectContext(ctx, &txs,
		"SELECT item_name, status, buyer_id FROM transactions WHERE buyer_id = $1 ORDER BY item_name", buyerID)
	return txs, err
}

// ListTransactionsByItems retrieves the stored transactions of the given items
func (s *Store) ListTransactionsByItems(ctx context.Context, itemNames []string) ([]models.Transaction, error) {
	if len(itemNames) == 0 {
		return []models.Transaction{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT item_name, status, buyer_id FROM transactions WHERE item_name IN (?)", itemNames)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var txs []models.Transaction
	err = s.db.SelectContext(ctx, &txs, query, args...)
	return txs, err
}
