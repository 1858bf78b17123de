package store

import (
	"context"
	"fmt"

	"market-service/internal/models"
)

// AppendMessage inserts a message under a fresh push key
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	key, err := s.keys.Next()
	if err != nil {
		return fmt.Errorf("failed to generate push key: %w", err)
	}
	msg.Key = key

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (msg_key, conversation_id, sender_id, body, image_url, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.Key, msg.ConversationID, msg.SenderID, msg.Text, msg.ImageURL, msg.Timestamp)
	return err
}

// ListMessages retrieves a conversation's messages in insertion order
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT msg_key, conversation_id, sender_id, body, image_url, sent_at
		FROM messages WHERE conversation_id = $1 ORDER BY seq`, conversationID)
	return msgs, err
}
