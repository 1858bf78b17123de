package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"market-service/internal/errs"
	"market-service/internal/models"
	"market-service/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")
	f.listItem(t, "alice", "desk")

	fromBuyer, _, err := f.chat.ResolveConversation(ctx, "bob", "lamp", "")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob_lamp", fromBuyer.ID)

	// A buyer cannot redirect the chat away from the seller.
	redirected, _, err := f.chat.ResolveConversation(ctx, "bob", "lamp", "carol")
	require.NoError(t, err)
	assert.Equal(t, fromBuyer.ID, redirected.ID)

	fromSeller, _, err := f.chat.ResolveConversation(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)
	assert.Equal(t, fromBuyer.ID, fromSeller.ID)

	other, _, err := f.chat.ResolveConversation(ctx, "bob", "desk", "")
	require.NoError(t, err)
	assert.NotEqual(t, fromBuyer.ID, other.ID)

	_, _, err = f.chat.ResolveConversation(ctx, "alice", "lamp", "")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	_, _, err = f.chat.ResolveConversation(ctx, "alice", "lamp", "alice")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	_, _, err = f.chat.ResolveConversation(ctx, "bob", "missing", "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, _, err = f.chat.ResolveConversation(ctx, "", "lamp", "")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestChatAllowed(t *testing.T) {
	tests := []struct {
		name    string
		tx      models.Transaction
		sender  string
		wantErr bool
	}{
		{"active third party", models.ActiveTransaction("lamp"), "carol", false},
		{"reserved seller", models.ReservedTransaction("lamp", "bob"), "alice", false},
		{"reserved buyer", models.ReservedTransaction("lamp", "bob"), "bob", false},
		{"reserved third party", models.ReservedTransaction("lamp", "bob"), "carol", true},
		{"sold buyer", models.SoldTransaction("lamp", "bob"), "bob", true},
		{"sold seller", models.SoldTransaction("lamp", "bob"), "alice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ChatAllowed(tt.tx, "alice", tt.sender)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrConflict)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSendMessage_LinksBothParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	msg, err := f.chat.SendMessage(ctx, "bob", &SendMessageRequest{ItemName: "lamp", Text: " hi there "})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "hi there", msg.Text)
	assert.NotEmpty(t, msg.Key)

	sellerLink, err := f.store.GetLink(ctx, "alice", "alice_bob_lamp")
	require.NoError(t, err)
	assert.Equal(t, 1, sellerLink.UnreadCount)
	assert.Equal(t, "bob", sellerLink.OtherUserID)
	assert.Equal(t, "hi there", sellerLink.LastMessage)

	buyerLink, err := f.store.GetLink(ctx, "bob", "alice_bob_lamp")
	require.NoError(t, err)
	assert.Equal(t, 0, buyerLink.UnreadCount)
	assert.Equal(t, "alice", buyerLink.OtherUserID)

	_, err = f.chat.SendMessage(ctx, "bob", &SendMessageRequest{ItemName: "lamp", ImageURL: "img/1.jpg"})
	require.NoError(t, err)

	sellerLink, err = f.store.GetLink(ctx, "alice", "alice_bob_lamp")
	require.NoError(t, err)
	assert.Equal(t, 2, sellerLink.UnreadCount)
	assert.Equal(t, ImagePreview, sellerLink.LastMessage)

	buyerLink, err = f.store.GetLink(ctx, "bob", "alice_bob_lamp")
	require.NoError(t, err)
	assert.Equal(t, 0, buyerLink.UnreadCount, "sending never bumps the sender's own count")

	require.Len(t, f.events.messages, 2)
	assert.Equal(t, "alice", f.events.messages[0].RecipientID)
}

func TestSendMessage_RejectsEmptyPayload(t *testing.T) {
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	_, err := f.chat.SendMessage(context.Background(), "bob", &SendMessageRequest{ItemName: "lamp", Text: "   "})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestSendMessage_TransactionGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	_, err := f.transactions.StartTransaction(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)

	_, err = f.chat.SendMessage(ctx, "carol", &SendMessageRequest{ItemName: "lamp", Text: "still available?"})
	assert.ErrorIs(t, err, errs.ErrConflict)
	_, err = f.chat.SendMessage(ctx, "bob", &SendMessageRequest{ItemName: "lamp", Text: "see you at 5"})
	assert.NoError(t, err)
	_, err = f.chat.SendMessage(ctx, "alice", &SendMessageRequest{ItemName: "lamp", OtherUserID: "bob", Text: "ok"})
	assert.NoError(t, err)

	_, err = f.transactions.ConfirmTransaction(ctx, "bob", "lamp")
	require.NoError(t, err)

	for _, sender := range []string{"alice", "bob", "carol"} {
		_, err = f.chat.SendMessage(ctx, sender, &SendMessageRequest{ItemName: "lamp", OtherUserID: "bob", Text: "thanks"})
		assert.ErrorIs(t, err, errs.ErrConflict, sender)
	}

	_, msgs, err := f.chat.History(ctx, "bob", "lamp", "")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestSendMessage_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	req := &SendMessageRequest{ItemName: "lamp", Text: "hi", IdempotencyKey: "k1"}
	first, err := f.chat.SendMessage(ctx, "bob", req)
	require.NoError(t, err)
	require.NotNil(t, first)

	retry, err := f.chat.SendMessage(ctx, "bob", req)
	require.NoError(t, err)
	assert.Nil(t, retry)

	_, msgs, err := f.chat.History(ctx, "bob", "lamp", "")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	link, err := f.store.GetLink(ctx, "alice", "alice_bob_lamp")
	require.NoError(t, err)
	assert.Equal(t, 1, link.UnreadCount)
}

// failingMessages fails the next failures appends, then defers to the store
type failingMessages struct {
	repository.MessageStore
	failures int
}

func (m *failingMessages) AppendMessage(ctx context.Context, msg *models.Message) error {
	if m.failures > 0 {
		m.failures--
		return errors.New("connection reset")
	}
	return m.MessageStore.AppendMessage(ctx, msg)
}

func TestSendMessage_FailedAppendReleasesIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	messages := &failingMessages{MessageStore: f.store, failures: 1}
	chat := NewChatService(f.store, f.store, messages, f.store, f.store, f.store, f.events, ChatConfig{})

	req := &SendMessageRequest{ItemName: "lamp", Text: "hi", IdempotencyKey: "k1"}
	msg, err := chat.SendMessage(ctx, "bob", req)
	assert.ErrorIs(t, err, errs.ErrStoreFailure)
	assert.Nil(t, msg)

	msg, err = chat.SendMessage(ctx, "bob", req)
	require.NoError(t, err)
	require.NotNil(t, msg, "retry after a failed append must store the message")

	_, msgs, err := chat.History(ctx, "bob", "lamp", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)

	dup, err := chat.SendMessage(ctx, "bob", req)
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestHistory_InSendOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	texts := []string{"one", "two", "three", "four"}
	for i, text := range texts {
		sender, other := "bob", ""
		if i%2 == 1 {
			sender, other = "alice", "bob"
		}
		_, err := f.chat.SendMessage(ctx, sender, &SendMessageRequest{ItemName: "lamp", OtherUserID: other, Text: text})
		require.NoError(t, err)
	}

	conv, msgs, err := f.chat.History(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob_lamp", conv.ID)
	require.Len(t, msgs, len(texts))
	for i, msg := range msgs {
		assert.Equal(t, texts[i], msg.Text)
		if i > 0 {
			assert.Less(t, msgs[i-1].Key, msg.Key)
		}
	}

	_, _, err = f.chat.History(ctx, "alice", "lamp", "")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestLinkUserToConversation_RepeatSenderKeepsCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	link := models.InboxLink{ConversationID: "alice_bob_lamp", ItemName: "lamp", OtherUserID: "bob"}
	stored, err := f.chat.LinkUserToConversation(ctx, "alice", link, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnreadCount)

	stored, err = f.chat.LinkUserToConversation(ctx, "alice", link, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnreadCount)

	stored, err = f.chat.LinkUserToConversation(ctx, "alice", link, true)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.UnreadCount)
}

func TestInbox_ClearAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")
	f.listItem(t, "alice", "desk")

	for _, item := range []string{"lamp", "desk", "desk"} {
		_, err := f.chat.SendMessage(ctx, "bob", &SendMessageRequest{ItemName: item, Text: "interested"})
		require.NoError(t, err)
	}

	links, err := f.chat.Inbox(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, links, 2)

	require.NoError(t, f.chat.ClearUnread(ctx, "alice", "alice_bob_desk"))
	link, err := f.store.GetLink(ctx, "alice", "alice_bob_desk")
	require.NoError(t, err)
	assert.Equal(t, 0, link.UnreadCount)

	// Clearing twice, or clearing an unknown conversation, is harmless.
	require.NoError(t, f.chat.ClearUnread(ctx, "alice", "alice_bob_desk"))
	require.NoError(t, f.chat.ClearUnread(ctx, "alice", "nobody_here_x"))

	require.NoError(t, f.chat.DeleteChatLink(ctx, "alice", "alice_bob_lamp"))
	links, err = f.chat.Inbox(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, links, 1)

	// The counterpart keeps their link and the log survives.
	_, err = f.store.GetLink(ctx, "bob", "alice_bob_lamp")
	assert.NoError(t, err)
	_, msgs, err := f.chat.History(ctx, "bob", "lamp", "")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	assert.ErrorIs(t, f.chat.ClearUnread(ctx, "alice", ""), errs.ErrInvalidInput)
	assert.ErrorIs(t, f.chat.DeleteChatLink(ctx, "", "alice_bob_lamp"), errs.ErrUnauthorized)
}

func TestTyping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")

	conv, err := f.chat.SetTyping(ctx, "bob", "lamp", "", true)
	require.NoError(t, err)
	assert.Equal(t, "alice_bob_lamp", conv.ID)

	typing, err := f.chat.TypingUsers(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, typing)

	typing, err = f.chat.TypingUsers(ctx, "bob", "lamp", "")
	require.NoError(t, err)
	assert.Empty(t, typing, "callers never see themselves")

	_, err = f.chat.SetTyping(ctx, "bob", "lamp", "", false)
	require.NoError(t, err)
	typing, err = f.chat.TypingUsers(ctx, "alice", "lamp", "bob")
	require.NoError(t, err)
	assert.Empty(t, typing)

	require.Len(t, f.events.typing, 2)
	assert.Equal(t, "alice", f.events.typing[0].RecipientID)
	assert.True(t, f.events.typing[0].IsTyping)
	assert.False(t, f.events.typing[1].IsTyping)
}

func TestSendMessage_Timestamp(t *testing.T) {
	f := newFixture(t)
	f.listItem(t, "alice", "lamp")
	f.chat.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	msg, err := f.chat.SendMessage(context.Background(), "bob", &SendMessageRequest{ItemName: "lamp", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T09:30:00Z", msg.Timestamp)

	link, err := f.store.GetLink(context.Background(), "bob", "alice_bob_lamp")
	require.NoError(t, err)
	assert.Equal(t, int64(1714555800), link.UpdatedAt)
}
