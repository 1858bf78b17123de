package service

import (
	"context"
	"testing"
	"time"

	"market-service/internal/errs"
	"market-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTransaction_SellerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	_, err := f.transactions.StartTransaction(ctx, "bob", "lamp", "bob")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	tx, err := f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.ReservedTransaction("lamp", "bob"), tx)

	// Non-sellers are refused whatever the item's state.
	_, err = f.transactions.StartTransaction(ctx, "carol", "lamp", "carol")
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestStartTransaction_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	_, err := f.transactions.StartTransaction(ctx, "", "lamp", "bob")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = f.transactions.StartTransaction(ctx, "alice", "missing", "bob")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.transactions.StartTransaction(ctx, "alice", "lamp", "")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = f.transactions.StartTransaction(ctx, "alice", "lamp", "alice")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestStartTransaction_GuardsExistingReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	_, err := f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)

	tx, err := f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", tx.BuyerID)

	_, err = f.transactions.StartTransaction(ctx, "alice", "lamp", "carol")
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = f.transactions.ConfirmTransaction(ctx, "bob", "lamp")
	require.NoError(t, err)
	_, err = f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	assert.ErrorIs(t, err, errs.ErrConflict)

	// Only the first reservation and the sale produce events.
	assert.Equal(t, []string{models.EventTypeTransactionReserved, models.EventTypeTransactionSold}, f.events.events)
}

func TestConfirmTransaction_BuyerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	_, err := f.transactions.ConfirmTransaction(ctx, "bob", "lamp")
	assert.ErrorIs(t, err, errs.ErrForbidden, "active items have no buyer")

	_, err = f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)

	_, err = f.transactions.ConfirmTransaction(ctx, "alice", "lamp")
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.transactions.ConfirmTransaction(ctx, "carol", "lamp")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	tx, err := f.transactions.ConfirmTransaction(ctx, "bob", "lamp")
	require.NoError(t, err)
	assert.Equal(t, models.SoldTransaction("lamp", "bob"), tx)

	// Sold is terminal: other callers stay forbidden, the buyer is a no-op.
	_, err = f.transactions.ConfirmTransaction(ctx, "carol", "lamp")
	assert.ErrorIs(t, err, errs.ErrForbidden)
	tx, err = f.transactions.ConfirmTransaction(ctx, "bob", "lamp")
	require.NoError(t, err)
	assert.True(t, tx.IsSold())

	require.Len(t, f.events.transactions, 2)
	sold := f.events.transactions[1]
	assert.Equal(t, "alice", sold.SellerID)
	assert.Equal(t, "bob", sold.BuyerID)
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	status, err := f.transactions.GetStatus(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusActive, status.Status)
	assert.Nil(t, status.BuyerID)
	assert.Equal(t, "alice", status.Seller)

	_, err = f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)

	status, err = f.transactions.GetStatus(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusReserved, status.Status)
	require.NotNil(t, status.BuyerID)
	assert.Equal(t, "bob", *status.BuyerID)

	_, err = f.transactions.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStartTransaction_HeldLockConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	token, ok, err := f.store.AcquireLock(ctx, "transaction:lamp", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	assert.ErrorIs(t, err, errs.ErrConflict)

	require.NoError(t, f.store.ReleaseLock(ctx, "transaction:lamp", token))
	_, err = f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	assert.NoError(t, err)
}

func TestStartTransaction_PublishFailureDoesNotFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")
	f.events.fail = true

	tx, err := f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)
	assert.True(t, tx.IsReserved())
}
