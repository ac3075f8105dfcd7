package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gatherly/chatkit/internal/cache"
	"github.com/gatherly/chatkit/internal/crypto"
	"github.com/gatherly/chatkit/internal/events"
	"github.com/gatherly/chatkit/internal/kafka"
	"github.com/gatherly/chatkit/internal/metrics"
	"github.com/gatherly/chatkit/internal/models"
	"github.com/gatherly/chatkit/internal/repository"
)

var (
	// ErrPersistence wraps any store-layer failure. The send pipeline keys
	// its rollback on this condition.
	ErrPersistence = errors.New("persistence failed")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrSameUser             = errors.New("cannot open a conversation with yourself")
	ErrEmptyParticipant     = errors.New("participant id is required")
	ErrEmptyContent         = errors.New("text message requires content")
	ErrNotMember            = errors.New("user is not a conversation member")
)

// ChatService translates conversation and message operations into store
// rows, feed events and export records. It performs no retries; a failed
// write surfaces as ErrPersistence and the caller decides what to do.
type ChatService struct {
	store    repository.Store
	feed     events.Feed
	codec    *crypto.Codec
	cache    *cache.Cache    // optional
	exporter *kafka.Producer // optional
	log      *zap.SugaredLogger
}

func NewChatService(store repository.Store, feed events.Feed, codec *crypto.Codec, log *zap.SugaredLogger) *ChatService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ChatService{store: store, feed: feed, codec: codec, log: log}
}

// WithCache attaches the unread/presence cache.
func (s *ChatService) WithCache(c *cache.Cache) *ChatService {
	s.cache = c
	return s
}

// WithExporter attaches the Kafka lifecycle exporter.
func (s *ChatService) WithExporter(p *kafka.Producer) *ChatService {
	s.exporter = p
	return s
}

// OpenConversation looks up or creates the two-party conversation for the
// unordered pair. Idempotent: both orders and repeated calls return the
// same conversation.
func (s *ChatService) OpenConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, ErrEmptyParticipant
	}
	if userA == userB {
		return nil, ErrSameUser
	}
	conv, err := s.store.FindOrCreateConversation(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations ordered by last
// activity descending, with last messages decrypted and unread counts
// attached.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, c := range convs {
		if c.LastMessage != nil {
			s.decodeInto(c, c.LastMessage)
		}
		c.UnreadCount = s.unreadCount(ctx, c.ID, userID)
	}
	return convs, nil
}

// ListMessages returns the full decrypted history of a conversation in
// ascending timestamp order.
func (s *ChatService) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, m := range msgs {
		s.decodeInto(conv, m)
	}
	return msgs, nil
}

// SendInput describes one outgoing message.
type SendInput struct {
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	Type           models.MessageType
	Media          *models.Media
}

// SendMessage encrypts, persists and announces one message. The returned
// message carries the authoritative id, timestamp and status sent. The
// insert itself happens with status sending; the persistence ack is what
// advances it.
func (s *ChatService) SendMessage(ctx context.Context, in SendInput) (*models.Message, error) {
	conv, err := s.conversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(in.SenderID) {
		return nil, ErrNotMember
	}
	if in.Type == "" {
		in.Type = models.TypeText
	}
	if in.Content == "" && in.Type == models.TypeText {
		return nil, ErrEmptyContent
	}

	key := crypto.DeriveConversationKey(conv.Members...)
	m := &models.Message{
		ConversationID:   in.ConversationID,
		SenderID:         in.SenderID,
		ReceiverID:       in.ReceiverID,
		Content:          in.Content,
		EncryptedContent: s.codec.Encrypt(in.Content, key),
		Type:             in.Type,
		Media:            in.Media,
		DeliveryStatus:   models.StatusSending,
		CreatedAt:        time.Now().UTC(),
	}

	inserted, err := s.store.InsertMessage(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// the insert ack is the sending -> sent transition
	if _, err := s.store.UpdateMessageStatus(ctx, inserted.ID, models.StatusSent); err != nil {
		s.log.Warnw("advance to sent failed", "message_id", inserted.ID, "error", err)
	} else {
		inserted.DeliveryStatus = models.StatusSent
	}

	if err := s.store.TouchConversation(ctx, conv.ID, inserted); err != nil {
		s.log.Warnw("touch conversation failed", "conversation_id", conv.ID, "error", err)
	}
	if err := s.feed.PublishInserted(ctx, inserted); err != nil {
		s.log.Warnw("publish inserted failed", "message_id", inserted.ID, "error", err)
	}
	if s.cache != nil && inserted.ReceiverID != "" {
		if err := s.cache.IncrUnread(ctx, conv.ID, inserted.ReceiverID); err != nil {
			s.log.Warnw("incr unread failed", "conversation_id", conv.ID, "error", err)
		}
	}
	s.export(ctx, conv.ID, map[string]any{
		"event":           "message_sent",
		"message_id":      inserted.ID,
		"conversation_id": conv.ID,
		"sender_id":       inserted.SenderID,
		"receiver_id":     inserted.ReceiverID,
		"type":            inserted.Type,
		"created_at":      inserted.CreatedAt,
	})
	metrics.MessagesSent.Inc()
	return inserted, nil
}

// MarkDelivered advances one message to delivered and announces the
// transition. Stale calls (already delivered or read) are silent no-ops.
func (s *ChatService) MarkDelivered(ctx context.Context, conversationID, messageID string) error {
	advanced, err := s.store.UpdateMessageStatus(ctx, messageID, models.StatusDelivered)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if advanced {
		if err := s.feed.PublishStatus(ctx, conversationID, messageID, models.StatusDelivered); err != nil {
			s.log.Warnw("publish delivered failed", "message_id", messageID, "error", err)
		}
	}
	return nil
}

// MarkConversationRead records a read receipt for every message addressed
// to userID that is still below read, advances their status and resets the
// unread counter. Receipt write failures are logged and swallowed; a
// missing receipt only delays the visual status change.
func (s *ChatService) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasMember(userID) {
		return ErrNotMember
	}
	msgs, err := s.store.ListUnreadMessages(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	now := time.Now().UTC()
	for _, m := range msgs {
		receipt := &models.ReadReceipt{MessageID: m.ID, UserID: userID, ReadAt: now}
		if err := s.store.UpsertReadReceipt(ctx, receipt); err != nil {
			s.log.Warnw("receipt write failed", "message_id", m.ID, "error", err)
		}
		advanced, err := s.store.UpdateMessageStatus(ctx, m.ID, models.StatusRead)
		if err != nil {
			s.log.Warnw("advance to read failed", "message_id", m.ID, "error", err)
			continue
		}
		if advanced {
			if err := s.feed.PublishStatus(ctx, conversationID, m.ID, models.StatusRead); err != nil {
				s.log.Warnw("publish read failed", "message_id", m.ID, "error", err)
			}
		}
	}

	if s.cache != nil {
		if err := s.cache.ResetUnread(ctx, conversationID, userID); err != nil {
			s.log.Warnw("reset unread failed", "conversation_id", conversationID, "error", err)
		}
	}
	if len(msgs) > 0 {
		s.export(ctx, conversationID, map[string]any{
			"event":           "conversation_read",
			"conversation_id": conversationID,
			"user_id":         userID,
			"messages":        len(msgs),
			"read_at":         now,
		})
	}
	return nil
}

// SetPresence records whether the user has a live event stream attached.
// A no-op without a cache.
func (s *ChatService) SetPresence(ctx context.Context, userID string, online bool) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.SetPresence(ctx, userID, online)
}

// Presence reports whether the user currently has a live stream. Without a
// cache everyone reads as offline.
func (s *ChatService) Presence(ctx context.Context, userID string) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	return s.cache.GetPresence(ctx, userID)
}

// GetConversation loads one conversation by id.
func (s *ChatService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return s.conversation(ctx, id)
}

// DecodeMessage fills Content from EncryptedContent using the
// conversation's derived key. Used by live-feed consumers, which only ever
// see ciphertext.
func (s *ChatService) DecodeMessage(conv *models.Conversation, m *models.Message) {
	s.decodeInto(conv, m)
}

func (s *ChatService) decodeInto(conv *models.Conversation, m *models.Message) {
	if m.Content != "" || m.EncryptedContent == "" {
		return
	}
	key := crypto.DeriveConversationKey(conv.Members...)
	m.Content = s.codec.Decrypt(m.EncryptedContent, key)
}

func (s *ChatService) conversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return conv, nil
}

func (s *ChatService) unreadCount(ctx context.Context, conversationID, userID string) int64 {
	if s.cache != nil {
		if n, err := s.cache.GetUnread(ctx, conversationID, userID); err == nil {
			return n
		}
		s.log.Debugw("unread cache miss, recomputing", "conversation_id", conversationID)
	}
	n, err := s.store.CountUnread(ctx, conversationID, userID)
	if err != nil {
		s.log.Warnw("count unread failed", "conversation_id", conversationID, "error", err)
		return 0
	}
	return n
}

func (s *ChatService) export(ctx context.Context, conversationID string, payload map[string]any) {
	if s.exporter == nil {
		return
	}
	if err := s.exporter.PublishEvent(ctx, conversationID, payload); err != nil {
		s.log.Warnw("kafka export failed", "conversation_id", conversationID, "error", err)
	}
}
