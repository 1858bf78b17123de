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

func TestCanReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	ok, err := f.reviews.CanReview(ctx, "bob", "lamp")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)
	ok, err = f.reviews.CanReview(ctx, "bob", "lamp")
	require.NoError(t, err)
	assert.False(t, ok, "reserved is not enough")

	_, err = f.transactions.ConfirmTransaction(ctx, "bob", "lamp")
	require.NoError(t, err)
	ok, err = f.reviews.CanReview(ctx, "bob", "lamp")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.reviews.CanReview(ctx, "carol", "lamp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmitReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")
	f.reviews.now = func() time.Time { return time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC) }

	req := &SubmitReviewRequest{ItemName: "lamp", Title: "Great", Content: "Works fine", Rating: "4", Pros: "#cheap"}

	_, err := f.reviews.SubmitReview(ctx, "bob", req)
	assert.ErrorIs(t, err, errs.ErrForbidden, "not sold yet")

	f.sell(t, "alice", "bob", "lamp")

	_, err = f.reviews.SubmitReview(ctx, "carol", req)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	for _, bad := range []string{"", "0", "6", "4.5", "five"} {
		_, err = f.reviews.SubmitReview(ctx, "bob", &SubmitReviewRequest{ItemName: "lamp", Rating: bad})
		assert.ErrorIs(t, err, errs.ErrInvalidInput, bad)
	}

	review, err := f.reviews.SubmitReview(ctx, "bob", req)
	require.NoError(t, err)
	assert.Equal(t, "bob", review.UserID)
	assert.Equal(t, "4", review.Rate)
	assert.Equal(t, "2024-03-09", review.Date)

	_, err = f.reviews.SubmitReview(ctx, "bob", req)
	assert.ErrorIs(t, err, errs.ErrConflict)

	stored, err := f.reviews.GetReview(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "Works fine", stored.Body)

	require.Len(t, f.events.reviews, 1)
	assert.Equal(t, "alice", f.events.reviews[0].SellerID)
}

func TestListReviewable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, name := range []string{"lamp", "desk", "chair"} {
		f.listItem(t, "alice", name)
	}

	f.sell(t, "alice", "bob", "lamp")
	f.sell(t, "alice", "bob", "desk")
	_, err := f.transactions.StartTransaction(ctx, "alice", "chair", "bob")
	require.NoError(t, err)

	reviewable, err := f.reviews.ListReviewable(ctx, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lamp", "desk"}, reviewableNames(reviewable))

	_, err = f.reviews.SubmitReview(ctx, "bob", &SubmitReviewRequest{ItemName: "lamp", Rating: "5"})
	require.NoError(t, err)

	reviewable, err = f.reviews.ListReviewable(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"desk"}, reviewableNames(reviewable))
	require.NotNil(t, reviewable[0].Item)
	assert.Equal(t, "alice", reviewable[0].Item.Seller)

	reviewable, err = f.reviews.ListReviewable(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, reviewable)
}

func reviewableNames(items []ReviewableItem) []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.ItemName
	}
	return names
}

func TestAggregateRatings(t *testing.T) {
	tests := []struct {
		name  string
		rates []string
		want  models.SellerStats
	}{
		{"none", nil, models.SellerStats{}},
		{"rounded to one decimal", []string{"5", "4", "4"}, models.SellerStats{AverageRating: 4.3, TotalReviews: 3}},
		{"skips malformed and zero", []string{"5", "abc", "0", "-2", "3"}, models.SellerStats{AverageRating: 4, TotalReviews: 2}},
		{"only malformed", []string{"", "x"}, models.SellerStats{}},
		{"skips non-finite", []string{"Inf", "4", "NaN", "-Inf"}, models.SellerStats{AverageRating: 4, TotalReviews: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reviews := make([]models.Review, len(tt.rates))
			for i, rate := range tt.rates {
				reviews[i] = models.Review{Rate: rate}
			}
			assert.Equal(t, tt.want, aggregateRatings(reviews))
		})
	}
}

func TestSellerStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")
	f.listItem(t, "alice", "desk")
	f.listItem(t, "dave", "bike")

	f.sell(t, "alice", "bob", "lamp")
	f.sell(t, "alice", "carol", "desk")
	f.sell(t, "dave", "bob", "bike")

	for _, r := range []struct{ buyer, item, rating string }{
		{"bob", "lamp", "5"},
		{"carol", "desk", "2"},
		{"bob", "bike", "1"},
	} {
		_, err := f.reviews.SubmitReview(ctx, r.buyer, &SubmitReviewRequest{ItemName: r.item, Rating: r.rating})
		require.NoError(t, err)
	}

	stats, err := f.reviews.SellerStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SellerStats{AverageRating: 3.5, TotalReviews: 2}, stats)

	stats, err = f.reviews.SellerStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, models.SellerStats{}, stats)
}

func TestListReviews_NewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")
	f.listItem(t, "alice", "desk")
	f.sell(t, "alice", "bob", "lamp")
	f.sell(t, "alice", "bob", "desk")

	f.reviews.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err := f.reviews.SubmitReview(ctx, "bob", &SubmitReviewRequest{ItemName: "lamp", Rating: "3"})
	require.NoError(t, err)
	f.reviews.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	_, err = f.reviews.SubmitReview(ctx, "bob", &SubmitReviewRequest{ItemName: "desk", Rating: "4"})
	require.NoError(t, err)

	reviews, err := f.reviews.ListReviews(ctx)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "desk", reviews[0].ItemName)
	assert.Equal(t, "lamp", reviews[1].ItemName)
}
