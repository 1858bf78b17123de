package api

import (
	"net/http"

	"market-service/internal/service"

	"github.com/gin-gonic/gin"
)

// listReviewable lists the caller's purchases awaiting a review
func (h *Handler) listReviewable(c *gin.Context) {
	items, err := h.reviews.ListReviewable(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, "Failed to list reviewable items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// submitReview stores the caller's review of a purchase
func (h *Handler) submitReview(c *gin.Context) {
	var req service.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	review, err := h.reviews.SubmitReview(c.Request.Context(), callerID(c), &req)
	if err != nil {
		h.respondError(c, "Failed to submit review", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"review": review,
	})
}

// listReviews returns every review, newest first
func (h *Handler) listReviews(c *gin.Context) {
	reviews, err := h.reviews.ListReviews(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list reviews", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

// getReview returns the review of one item
func (h *Handler) getReview(c *gin.Context) {
	review, err := h.reviews.GetReview(c.Request.Context(), c.Param("item"))
	if err != nil {
		h.respondError(c, "Review not found", err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// sellerStats returns a seller's rating summary
func (h *Handler) sellerStats(c *gin.Context) {
	stats, err := h.reviews.SellerStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get seller stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
