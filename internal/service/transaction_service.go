package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-service/internal/errs"
	"market-service/internal/models"
	"market-service/internal/repository"
	"market-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultTransitionLockTTL = 5 * time.Second

// TransactionService drives the active -> reserved -> sold lifecycle of items
type TransactionService struct {
	items        repository.ItemStore
	transactions repository.TransactionStore
	locker       Locker
	events       EventPublisher
	lockTTL      time.Duration
	logger       *zap.Logger
}

// NewTransactionService creates a new transaction service. locker may be nil,
// in which case transitions rely on the store's conditional writes alone.
func NewTransactionService(
	items repository.ItemStore,
	transactions repository.TransactionStore,
	locker Locker,
	events EventPublisher,
	lockTTL time.Duration,
) *TransactionService {
	if lockTTL <= 0 {
		lockTTL = defaultTransitionLockTTL
	}
	return &TransactionService{
		items:        items,
		transactions: transactions,
		locker:       locker,
		events:       events,
		lockTTL:      lockTTL,
		logger:       util.GetLogger(),
	}
}

// GetTransaction returns the transaction of an item. Items nobody reserved
// read as active.
func (s *TransactionService) GetTransaction(ctx context.Context, itemName string) (models.Transaction, error) {
	start := time.Now()
	tx, err := s.transactions.GetTransaction(ctx, itemName)
	util.ObserveStore("get_transaction", start)
	if err != nil {
		return models.Transaction{}, storeErr(s.logger, "get transaction", err)
	}
	return tx, nil
}

// GetStatus returns the public transaction view of an item
func (s *TransactionService) GetStatus(ctx context.Context, itemName string) (*models.ItemStatus, error) {
	ctx, span := util.StartSpan(ctx, "TransactionService.GetStatus", attribute.String("item", itemName))
	defer span.End()

	if itemName == "" {
		return nil, fmt.Errorf("%w: item name is required", errs.ErrInvalidInput)
	}

	item, err := s.items.GetItem(ctx, itemName)
	if err != nil {
		return nil, storeErr(s.logger, "get item", err)
	}

	tx, err := s.GetTransaction(ctx, itemName)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	status := &models.ItemStatus{Status: tx.Status, Seller: item.Seller}
	if tx.BuyerID != "" {
		buyer := tx.BuyerID
		status.BuyerID = &buyer
	}
	return status, nil
}

// StartTransaction reserves an item for buyerID. Only the item's seller may
// call it. Repeating the call for the buyer already holding the reservation
// succeeds without a new transition.
func (s *TransactionService) StartTransaction(ctx context.Context, callerID, itemName, buyerID string) (models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "TransactionService.StartTransaction",
		attribute.String("item", itemName), attribute.String("buyer", buyerID))
	defer span.End()

	tx, err := s.startTransaction(ctx, callerID, itemName, buyerID)
	if err != nil {
		util.RecordError(span, err)
		util.TransactionsRejectedTotal.WithLabelValues("start", rejectReason(err)).Inc()
	}
	return tx, err
}

func (s *TransactionService) startTransaction(ctx context.Context, callerID, itemName, buyerID string) (models.Transaction, error) {
	if err := requireCaller(callerID); err != nil {
		return models.Transaction{}, err
	}
	if itemName == "" {
		return models.Transaction{}, fmt.Errorf("%w: item name is required", errs.ErrInvalidInput)
	}

	item, err := s.items.GetItem(ctx, itemName)
	if err != nil {
		return models.Transaction{}, storeErr(s.logger, "get item", err)
	}
	if item.Seller != callerID {
		s.logger.Warn("Start transaction by non-seller",
			zap.String("item", itemName), zap.String("caller", callerID))
		return models.Transaction{}, fmt.Errorf("%w: only the seller can start a transaction", errs.ErrForbidden)
	}
	if buyerID == "" {
		return models.Transaction{}, fmt.Errorf("%w: buyer is required", errs.ErrInvalidInput)
	}
	if buyerID == item.Seller {
		return models.Transaction{}, fmt.Errorf("%w: seller cannot buy their own item", errs.ErrInvalidInput)
	}

	release, err := s.lock(ctx, itemName)
	if err != nil {
		return models.Transaction{}, err
	}
	defer release()

	current, err := s.GetTransaction(ctx, itemName)
	if err != nil {
		return models.Transaction{}, err
	}
	switch {
	case current.IsSold():
		return models.Transaction{}, fmt.Errorf("%w: item is already sold", errs.ErrConflict)
	case current.IsReserved() && current.BuyerID == buyerID:
		return current, nil
	case current.IsReserved():
		return models.Transaction{}, fmt.Errorf("%w: item is reserved for another buyer", errs.ErrConflict)
	}

	start := time.Now()
	err = s.transactions.ReserveTransaction(ctx, itemName, buyerID)
	util.ObserveStore("reserve_transaction", start)
	if err != nil {
		return models.Transaction{}, storeErr(s.logger, "reserve transaction", err)
	}

	util.TransactionsReservedTotal.Inc()
	s.logger.Info("Item reserved", zap.String("item", itemName), zap.String("buyer", buyerID))

	reserved := models.ReservedTransaction(itemName, buyerID)
	publish(s.logger, models.EventTypeTransactionReserved, func() error {
		return s.events.PublishTransactionReserved(ctx, &models.TransactionEvent{
			BaseEvent: newBaseEvent(models.EventTypeTransactionReserved),
			ItemName:  itemName,
			SellerID:  item.Seller,
			BuyerID:   buyerID,
			Status:    reserved.Status,
		})
	})
	return reserved, nil
}

// ConfirmTransaction completes the purchase. Only the buyer named in the
// reservation may call it.
func (s *TransactionService) ConfirmTransaction(ctx context.Context, callerID, itemName string) (models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "TransactionService.ConfirmTransaction", attribute.String("item", itemName))
	defer span.End()

	tx, err := s.confirmTransaction(ctx, callerID, itemName)
	if err != nil {
		util.RecordError(span, err)
		util.TransactionsRejectedTotal.WithLabelValues("confirm", rejectReason(err)).Inc()
	}
	return tx, err
}

func (s *TransactionService) confirmTransaction(ctx context.Context, callerID, itemName string) (models.Transaction, error) {
	if err := requireCaller(callerID); err != nil {
		return models.Transaction{}, err
	}
	if itemName == "" {
		return models.Transaction{}, fmt.Errorf("%w: item name is required", errs.ErrInvalidInput)
	}

	release, err := s.lock(ctx, itemName)
	if err != nil {
		return models.Transaction{}, err
	}
	defer release()

	current, err := s.GetTransaction(ctx, itemName)
	if err != nil {
		return models.Transaction{}, err
	}
	if current.BuyerID != callerID {
		s.logger.Warn("Confirm transaction by non-buyer",
			zap.String("item", itemName), zap.String("caller", callerID))
		return models.Transaction{}, fmt.Errorf("%w: only the reserved buyer can confirm", errs.ErrForbidden)
	}
	if current.IsSold() {
		return current, nil
	}

	start := time.Now()
	err = s.transactions.MarkSold(ctx, itemName, callerID)
	util.ObserveStore("mark_sold", start)
	if err != nil {
		return models.Transaction{}, storeErr(s.logger, "mark sold", err)
	}

	util.TransactionsSoldTotal.Inc()
	s.logger.Info("Item sold", zap.String("item", itemName), zap.String("buyer", callerID))

	var sellerID string
	if item, err := s.items.GetItem(ctx, itemName); err == nil {
		sellerID = item.Seller
	}

	sold := models.SoldTransaction(itemName, callerID)
	publish(s.logger, models.EventTypeTransactionSold, func() error {
		return s.events.PublishTransactionSold(ctx, &models.TransactionEvent{
			BaseEvent: newBaseEvent(models.EventTypeTransactionSold),
			ItemName:  itemName,
			SellerID:  sellerID,
			BuyerID:   callerID,
			Status:    sold.Status,
		})
	})
	return sold, nil
}

// lock serializes transitions on one item across instances
func (s *TransactionService) lock(ctx context.Context, itemName string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := "transaction:" + itemName
	token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		return nil, storeErr(s.logger, "acquire lock", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: another transition on this item is in progress", errs.ErrConflict)
	}

	return func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, errs.ErrForbidden):
		return "forbidden"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, errs.ErrConflict):
		return "conflict"
	default:
		return "store_failure"
	}
}
