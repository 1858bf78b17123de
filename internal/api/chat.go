package api

import (
	"net/http"

	"market-service/internal/models"
	"market-service/internal/service"

	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	Text        string `json:"text"`
	ImageURL    string `json:"image_url"`
	OtherUserID string `json:"other_user_id"`
}

type setTypingRequest struct {
	IsTyping    bool   `json:"is_typing"`
	OtherUserID string `json:"other_user_id"`
}

// sendMessage appends a message to the caller's conversation about an item
func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), callerID(c), &service.SendMessageRequest{
		ItemName:       c.Param("item"),
		OtherUserID:    req.OtherUserID,
		Text:           req.Text,
		ImageURL:       req.ImageURL,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(c, "Failed to send message", err)
		return
	}

	resp := gin.H{"status": "success"}
	if msg != nil {
		resp["message"] = msg
	} else {
		resp["duplicate"] = true
	}
	c.JSON(http.StatusOK, resp)
}

// chatHistory lists the caller's conversation about an item
func (h *Handler) chatHistory(c *gin.Context) {
	conv, msgs, err := h.chat.History(c.Request.Context(), callerID(c), c.Param("item"), c.Query("other_user_id"))
	if err != nil {
		h.respondError(c, "Failed to load chat history", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conv.ID,
		"messages":        msgs,
	})
}

// setTyping flags the caller as typing or not
func (h *Handler) setTyping(c *gin.Context) {
	var req setTypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if _, err := h.chat.SetTyping(c.Request.Context(), callerID(c), c.Param("item"), req.OtherUserID, req.IsTyping); err != nil {
		h.respondError(c, "Failed to set typing", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"is_typing": req.IsTyping,
	})
}

// typingUsers lists who else is typing in the conversation
func (h *Handler) typingUsers(c *gin.Context) {
	users, err := h.chat.TypingUsers(c.Request.Context(), callerID(c), c.Param("item"), c.Query("other_user_id"))
	if err != nil {
		h.respondError(c, "Failed to get typing status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"typing": users})
}

// listConversations returns the caller's inbox
func (h *Handler) listConversations(c *gin.Context) {
	links, err := h.chat.Inbox(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, "Failed to list conversations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": links})
}

// clearUnread marks a conversation read
func (h *Handler) clearUnread(c *gin.Context) {
	if err := h.chat.ClearUnread(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		h.respondError(c, "Failed to clear unread", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// deleteChatLink drops a conversation from the caller's inbox
func (h *Handler) deleteChatLink(c *gin.Context) {
	if err := h.chat.DeleteChatLink(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		h.respondError(c, "Failed to delete conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
