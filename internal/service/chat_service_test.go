package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatherly/chatkit/internal/crypto"
	"github.com/gatherly/chatkit/internal/events"
	"github.com/gatherly/chatkit/internal/models"
	"github.com/gatherly/chatkit/internal/repository"
)

func newService(t *testing.T) (*ChatService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	bus := events.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	return NewChatService(store, bus, crypto.NewCodec(nil), nil), store
}

func TestOpenConversationIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	c1, err := svc.OpenConversation(ctx, "u1", "u2")
	require.NoError(t, err)
	c2, err := svc.OpenConversation(ctx, "u2", "u1")
	require.NoError(t, err)
	require.Equal(t, c1.ID, c2.ID)
}

func TestOpenConversationConcurrent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "u1", "u2"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := svc.OpenConversation(ctx, a, b)
			require.NoError(t, err)
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id, "concurrent opens must converge on one conversation")
	}
}

func TestOpenConversationValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.OpenConversation(ctx, "u1", "u1")
	require.ErrorIs(t, err, ErrSameUser)
	_, err = svc.OpenConversation(ctx, "", "u2")
	require.ErrorIs(t, err, ErrEmptyParticipant)
}

func TestSendMessagePersistsCiphertext(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	conv, err := svc.OpenConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	sent, err := svc.SendMessage(ctx, SendInput{
		ConversationID: conv.ID,
		SenderID:       "u1",
		ReceiverID:     "u2",
		Content:        "secret",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusSent, sent.DeliveryStatus)
	require.NotEmpty(t, sent.ID)
	require.Equal(t, "secret", sent.Content)
	require.NotEqual(t, "secret", sent.EncryptedContent)

	// the stored row holds ciphertext only
	raw, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	require.Empty(t, raw[0].Content)
	require.NotEqual(t, "secret", raw[0].EncryptedContent)

	// history decrypts back to plaintext
	msgs, err := svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "secret", msgs[0].Content)
}

func TestSendMessageUpdatesConversationSummary(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	conv, err := svc.OpenConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, SendInput{
		ConversationID: conv.ID,
		SenderID:       "u1",
		ReceiverID:     "u2",
		Content:        "hello",
	})
	require.NoError(t, err)

	convs, err := svc.ListConversations(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.NotNil(t, convs[0].LastMessage)
	require.Equal(t, "hello", convs[0].LastMessage.Content)
	require.Equal(t, int64(1), convs[0].UnreadCount)
}

func TestSendMessageValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	conv, err := svc.OpenConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, SendInput{ConversationID: conv.ID, SenderID: "u1", ReceiverID: "u2"})
	require.ErrorIs(t, err, ErrEmptyContent)

	_, err = svc.SendMessage(ctx, SendInput{ConversationID: conv.ID, SenderID: "intruder", ReceiverID: "u2", Content: "hi"})
	require.ErrorIs(t, err, ErrNotMember)

	_, err = svc.SendMessage(ctx, SendInput{ConversationID: "missing", SenderID: "u1", ReceiverID: "u2", Content: "hi"})
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestSendMediaMessageWithoutText(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	conv, err := svc.OpenConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	sent, err := svc.SendMessage(ctx, SendInput{
		ConversationID: conv.ID,
		SenderID:       "u1",
		ReceiverID:     "u2",
		Type:           models.TypeImage,
		Media: &models.Media{
			FileURL:  "https://bucket.s3.us-east-1.amazonaws.com/pic.jpg",
			FileName: "pic.jpg",
			FileSize: 1024,
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.TypeImage, sent.Type)
	require.NotNil(t, sent.Media)
	require.Equal(t, "pic.jpg", sent.Media.FileName)
}

func TestMarkConversationReadIdempotent(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	conv, err := svc.OpenConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, SendInput{
		ConversationID: conv.ID,
		SenderID:       "u1",
		ReceiverID:     "u2",
		Content:        "hello",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkConversationRead(ctx, conv.ID, "u2"))
	require.Equal(t, 1, store.ReceiptCount())

	msgs, err := svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRead, msgs[0].DeliveryStatus)

	// second call: no new receipts, no error
	require.NoError(t, svc.MarkConversationRead(ctx, conv.ID, "u2"))
	require.Equal(t, 1, store.ReceiptCount())

	// unread count back to zero
	convs, err := svc.ListConversations(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, int64(0), convs[0].UnreadCount)
}

func TestMarkDeliveredMonotonic(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	conv, err := svc.OpenConversation(ctx, "u1", "u2")
	require.NoError(t, err)
	sent, err := svc.SendMessage(ctx, SendInput{
		ConversationID: conv.ID, SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkConversationRead(ctx, conv.ID, "u2"))
	// a late delivered ack must not regress read
	require.NoError(t, svc.MarkDelivered(ctx, conv.ID, sent.ID))

	msgs, err := svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRead, msgs[0].DeliveryStatus)
}

func TestFeedCarriesNoPlaintext(t *testing.T) {
	store := repository.NewMemoryStore()
	bus := events.NewBus()
	defer bus.Close()
	svc := NewChatService(store, bus, crypto.NewCodec(nil), nil)
	ctx := context.Background()

	conv, err := svc.OpenConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	var seen *models.Message
	sub, err := bus.Subscribe(conv.ID, func(ev events.Event) {
		if ev.Type == events.EventMessageInserted {
			seen = ev.Message
		}
	})
	require.NoError(t, err)
	defer sub.Release()

	_, err = svc.SendMessage(ctx, SendInput{
		ConversationID: conv.ID, SenderID: "u1", ReceiverID: "u2", Content: "secret",
	})
	require.NoError(t, err)

	require.NotNil(t, seen)
	require.Empty(t, seen.Content)

	// a member decodes it back with the conversation key
	decoded := seen.Clone()
	svc.DecodeMessage(conv, decoded)
	require.Equal(t, "secret", decoded.Content)
}

func TestPresenceWithoutCache(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetPresence(ctx, "u1", true))
	online, err := svc.Presence(ctx, "u1")
	require.NoError(t, err)
	require.False(t, online, "without a cache everyone reads as offline")
}
