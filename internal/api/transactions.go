package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type startTransactionRequest struct {
	ItemName string `json:"item_name" binding:"required"`
	BuyerID  string `json:"buyer_id"`
}

type confirmTransactionRequest struct {
	ItemName string `json:"item_name" binding:"required"`
}

// startTransaction reserves an item for a buyer
func (h *Handler) startTransaction(c *gin.Context) {
	var req startTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tx, err := h.transactions.StartTransaction(c.Request.Context(), callerID(c), req.ItemName, req.BuyerID)
	if err != nil {
		h.respondError(c, "Failed to start transaction", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"new_state": tx.Status,
		"buyer_id":  tx.BuyerID,
	})
}

// confirmTransaction completes a purchase
func (h *Handler) confirmTransaction(c *gin.Context) {
	var req confirmTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tx, err := h.transactions.ConfirmTransaction(c.Request.Context(), callerID(c), req.ItemName)
	if err != nil {
		h.respondError(c, "Failed to confirm transaction", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"new_state": tx.Status,
	})
}

// getItemStatus returns the public transaction view of an item
func (h *Handler) getItemStatus(c *gin.Context) {
	status, err := h.transactions.GetStatus(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.respondError(c, "Failed to get item status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}
