package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/chatkit/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// single-process deployments; semantics mirror MongoStore, including the
// unique member-key guarantee and rank-guarded status updates.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	byMemberKey   map[string]string
	messages      map[string][]*models.Message
	receipts      map[string]models.ReadReceipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		byMemberKey:   make(map[string]string),
		messages:      make(map[string][]*models.Message),
		receipts:      make(map[string]models.ReadReceipt),
	}
}

func (s *MemoryStore) FindOrCreateConversation(_ context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == "" || userB == "" || userA == userB {
		return nil, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.MemberKey(userA, userB)
	if id, ok := s.byMemberKey[key]; ok {
		return cloneConversation(s.conversations[id]), nil
	}
	now := time.Now().UTC()
	c := &models.Conversation{
		ID:           uuid.NewString(),
		Members:      []string{userA, userB},
		MemberKey:    key,
		LastActivity: now,
		CreatedAt:    now,
	}
	s.conversations[c.ID] = c
	s.byMemberKey[key] = c.ID
	return cloneConversation(c), nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(c), nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Conversation
	for _, c := range s.conversations {
		if c.HasMember(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (s *MemoryStore) TouchConversation(_ context.Context, id string, last *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.LastActivity = time.Now().UTC()
	if last != nil {
		cp := last.Clone()
		cp.Content = ""
		c.LastMessage = cp
	}
	return nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, m *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := m.Clone()
	// only ciphertext is persisted, same as the document mapping
	stored.Content = ""
	stored.ID = uuid.NewString()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.DeliveryStatus == "" {
		stored.DeliveryStatus = models.StatusSending
	}
	s.messages[stored.ConversationID] = append(s.messages[stored.ConversationID], stored)

	// the returned row keeps the caller's plaintext for display, like the
	// document mapping does
	out := stored.Clone()
	out.Content = m.Content
	return out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListUnreadMessages(_ context.Context, conversationID, receiverID string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Message
	for _, m := range s.messages[conversationID] {
		if m.ReceiverID == receiverID && m.DeliveryStatus != models.StatusRead {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateMessageStatus(_ context.Context, messageID string, status models.DeliveryStatus) (bool, error) {
	if !status.Valid() {
		return false, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID != messageID {
				continue
			}
			if status.Rank() <= m.DeliveryStatus.Rank() {
				return false, nil
			}
			m.DeliveryStatus = status
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, conversationID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.messages[conversationID] {
		if m.ReceiverID == userID && m.DeliveryStatus != models.StatusRead {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpsertReadReceipt(_ context.Context, r *models.ReadReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.MessageID + ":" + r.UserID
	if _, ok := s.receipts[key]; ok {
		return nil
	}
	s.receipts[key] = *r
	return nil
}

// ReceiptCount reports the number of stored receipts, for tests.
func (s *MemoryStore) ReceiptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	cp := *c
	cp.Members = append([]string(nil), c.Members...)
	if c.LastMessage != nil {
		cp.LastMessage = c.LastMessage.Clone()
	}
	return &cp
}
