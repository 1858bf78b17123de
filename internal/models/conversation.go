package models

import "fmt"

// ConversationID derives the id of the conversation between two users about
// one item. The id is the same whichever participant comes first.
func ConversationID(userA, userB, itemName string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%s_%s_%s", userA, userB, itemName)
}

// Conversation is the address under which messages and inbox links between
// two users about one item are filed.
type Conversation struct {
	ID           string    `json:"conversation_id"`
	ItemName     string    `json:"item_name"`
	Participants [2]string `json:"participants"`
}

// NewConversation builds the conversation between userA and userB about
// itemName with participants in ascending order.
func NewConversation(userA, userB, itemName string) Conversation {
	if userB < userA {
		userA, userB = userB, userA
	}
	return Conversation{
		ID:           ConversationID(userA, userB, itemName),
		ItemName:     itemName,
		Participants: [2]string{userA, userB},
	}
}

// Includes reports whether user takes part in the conversation.
func (c Conversation) Includes(user string) bool {
	return c.Participants[0] == user || c.Participants[1] == user
}

// Counterpart returns the other participant.
func (c Conversation) Counterpart(user string) string {
	if c.Participants[0] == user {
		return c.Participants[1]
	}
	return c.Participants[0]
}
