package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/chatkit/internal/models"
)

// Bus is an in-process Feed for tests and single-node runs. Delivery is
// synchronous in publish order, which makes arrival-order scenarios easy to
// script in tests.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*busSub
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*busSub)}
}

func (b *Bus) PublishInserted(_ context.Context, m *models.Message) error {
	b.deliver(Event{
		ID:             uuid.NewString(),
		Type:           EventMessageInserted,
		ConversationID: m.ConversationID,
		Message:        sanitize(m),
		At:             time.Now().UTC(),
	})
	return nil
}

func (b *Bus) PublishStatus(_ context.Context, conversationID, messageID string, status models.DeliveryStatus) error {
	b.deliver(Event{
		ID:             uuid.NewString(),
		Type:           EventMessageUpdated,
		ConversationID: conversationID,
		MessageID:      messageID,
		Status:         status,
		At:             time.Now().UTC(),
	})
	return nil
}

func (b *Bus) deliver(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	targets := make([]*busSub, 0, len(b.subs))
	for _, s := range b.subs {
		if s.conversationID == "" || s.conversationID == ev.ConversationID {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	// handlers run outside the lock so they may re-enter the bus
	for _, s := range targets {
		s.h(ev)
	}
}

func (b *Bus) Subscribe(conversationID string, h Handler) (Subscription, error) {
	return b.add(conversationID, h), nil
}

func (b *Bus) SubscribeAll(h Handler) (Subscription, error) {
	return b.add("", h), nil
}

func (b *Bus) add(conversationID string, h Handler) *busSub {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &busSub{bus: b, id: b.nextID, conversationID: conversationID, h: h}
	b.subs[b.nextID] = s
	b.nextID++
	return s
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int]*busSub)
	return nil
}

type busSub struct {
	bus            *Bus
	id             int
	conversationID string
	h              Handler
	once           sync.Once
}

func (s *busSub) Release() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}
