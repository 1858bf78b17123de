package api

import (
	"net/http"

	"market-service/internal/models"
	"market-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createItem lists a new item for the caller
func (h *Handler) createItem(c *gin.Context) {
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.items.CreateItem(c.Request.Context(), callerID(c), &req)
	if err != nil {
		h.respondError(c, "Failed to create item", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// getItem returns the item page, personalised when the caller is known
func (h *Handler) getItem(c *gin.Context) {
	detail, err := h.items.GetItemDetail(c.Request.Context(), c.Param("name"), callerID(c))
	if err != nil {
		h.respondError(c, "Failed to get item", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type updateItemStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// listItems returns every listing, newest first
func (h *Handler) listItems(c *gin.Context) {
	items, err := h.items.ListItems(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// updateItemStatus relabels one of the caller's listings
func (h *Handler) updateItemStatus(c *gin.Context) {
	var req updateItemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.setItemStatus(c, req.Status)
}

// completeItem marks one of the caller's listings as sold
func (h *Handler) completeItem(c *gin.Context) {
	h.setItemStatus(c, models.ItemConditionSold)
}

func (h *Handler) setItemStatus(c *gin.Context, status string) {
	item, err := h.items.UpdateItemStatus(c.Request.Context(), callerID(c), c.Param("name"), status)
	if err != nil {
		h.respondError(c, "Failed to update item", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"item":   item,
	})
}

// deleteItem removes one of the caller's listings
func (h *Handler) deleteItem(c *gin.Context) {
	if err := h.items.DeleteItem(c.Request.Context(), callerID(c), c.Param("name")); err != nil {
		h.respondError(c, "Failed to delete item", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// myPage returns the caller's active, sold and bought items
func (h *Handler) myPage(c *gin.Context) {
	page, err := h.items.MyPage(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, "Failed to load my page", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) like(c *gin.Context) {
	if err := h.items.Like(c.Request.Context(), callerID(c), c.Param("item")); err != nil {
		h.respondError(c, "Failed to add to wishlist", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "liked": true})
}

func (h *Handler) unlike(c *gin.Context) {
	if err := h.items.Unlike(c.Request.Context(), callerID(c), c.Param("item")); err != nil {
		h.respondError(c, "Failed to remove from wishlist", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "liked": false})
}

func (h *Handler) wishlist(c *gin.Context) {
	items, err := h.items.Wishlist(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, "Failed to load wishlist", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// touchActivity records a presence heartbeat
func (h *Handler) touchActivity(c *gin.Context) {
	at, err := h.items.TouchActivity(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, "Failed to record activity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"last_active": at.UnixMilli(),
	})
}
