package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatherly/chatkit/internal/models"
)

func seedMessage(t *testing.T, s *MemoryStore, convID, sender, receiver, ciphertext string) *models.Message {
	t.Helper()
	m, err := s.InsertMessage(context.Background(), &models.Message{
		ConversationID:   convID,
		SenderID:         sender,
		ReceiverID:       receiver,
		EncryptedContent: ciphertext,
		Type:             models.TypeText,
	})
	require.NoError(t, err)
	return m
}

func TestFindOrCreateConversationCanonicalOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c1, err := s.FindOrCreateConversation(ctx, "u2", "u1")
	require.NoError(t, err)
	c2, err := s.FindOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	require.Equal(t, c1.ID, c2.ID)
	require.Equal(t, models.MemberKey("u1", "u2"), c1.MemberKey)
}

func TestFindOrCreateConversationValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.FindOrCreateConversation(ctx, "u1", "u1")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.FindOrCreateConversation(ctx, "", "u2")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestInsertMessageAssignsIDAndDefaults(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	m, err := s.InsertMessage(ctx, &models.Message{
		ID:               models.PendingIDPrefix + "x",
		ConversationID:   conv.ID,
		SenderID:         "u1",
		ReceiverID:       "u2",
		EncryptedContent: "ct",
	})
	require.NoError(t, err)
	require.False(t, m.Pending(), "store must assign an authoritative id")
	require.Equal(t, models.StatusSending, m.DeliveryStatus)
	require.False(t, m.CreatedAt.IsZero())
}

func TestInsertMessageDropsPlaintext(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	m, err := s.InsertMessage(ctx, &models.Message{
		ConversationID:   conv.ID,
		SenderID:         "u1",
		ReceiverID:       "u2",
		Content:          "secret plaintext",
		EncryptedContent: "ct",
		Type:             models.TypeText,
	})
	require.NoError(t, err)
	require.Equal(t, "secret plaintext", m.Content, "returned row keeps the caller's plaintext")

	rows, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Empty(t, rows[0].Content, "stored row must carry ciphertext only")
	require.Equal(t, "ct", rows[0].EncryptedContent)

	withPlain := m.Clone()
	withPlain.Content = "secret plaintext"
	require.NoError(t, s.TouchConversation(ctx, conv.ID, withPlain))
	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	require.Empty(t, got.LastMessage.Content)
}

func TestListMessagesChronological(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	first := seedMessage(t, s, conv.ID, "u1", "u2", "a")
	time.Sleep(2 * time.Millisecond)
	second := seedMessage(t, s, conv.ID, "u2", "u1", "b")

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, first.ID, msgs[0].ID)
	require.Equal(t, second.ID, msgs[1].ID)
}

func TestUpdateMessageStatusRankGuard(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)
	m := seedMessage(t, s, conv.ID, "u1", "u2", "ct")

	advanced, err := s.UpdateMessageStatus(ctx, m.ID, models.StatusRead)
	require.NoError(t, err)
	require.True(t, advanced)

	// stale transition is a silent no-op
	advanced, err = s.UpdateMessageStatus(ctx, m.ID, models.StatusSent)
	require.NoError(t, err)
	require.False(t, advanced)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRead, msgs[0].DeliveryStatus)

	// unknown message: no error, no change
	advanced, err = s.UpdateMessageStatus(ctx, "ghost", models.StatusRead)
	require.NoError(t, err)
	require.False(t, advanced)
}

func TestUnreadBookkeeping(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)
	m1 := seedMessage(t, s, conv.ID, "u1", "u2", "a")
	seedMessage(t, s, conv.ID, "u2", "u1", "b")

	n, err := s.CountUnread(ctx, conv.ID, "u2")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	unread, err := s.ListUnreadMessages(ctx, conv.ID, "u2")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.Equal(t, m1.ID, unread[0].ID)

	_, err = s.UpdateMessageStatus(ctx, m1.ID, models.StatusRead)
	require.NoError(t, err)

	n, err = s.CountUnread(ctx, conv.ID, "u2")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestUpsertReadReceiptIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r := &models.ReadReceipt{MessageID: "m1", UserID: "u2", ReadAt: time.Now().UTC()}
	require.NoError(t, s.UpsertReadReceipt(ctx, r))
	require.NoError(t, s.UpsertReadReceipt(ctx, r))
	require.Equal(t, 1, s.ReceiptCount())
}

func TestListConversationsOrderedByActivity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c1, err := s.FindOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)
	c2, err := s.FindOrCreateConversation(ctx, "u1", "u3")
	require.NoError(t, err)

	require.NoError(t, s.TouchConversation(ctx, c1.ID, nil))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.TouchConversation(ctx, c2.ID, nil))

	convs, err := s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, c2.ID, convs[0].ID, "most recently active first")
}
