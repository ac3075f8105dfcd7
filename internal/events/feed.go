package events

import (
	"context"
	"time"

	"github.com/gatherly/chatkit/internal/models"
)

type EventType string

const (
	EventMessageInserted EventType = "message.inserted"
	EventMessageUpdated  EventType = "message.updated"
)

// Event is the change-feed envelope. Inserted events carry the full row
// (ciphertext only, never plaintext); updated events carry the message id
// and its new delivery status.
type Event struct {
	ID             string                `json:"id"`
	Type           EventType             `json:"type"`
	ConversationID string                `json:"conversation_id"`
	Message        *models.Message       `json:"message,omitempty"`
	MessageID      string                `json:"message_id,omitempty"`
	Status         models.DeliveryStatus `json:"status,omitempty"`
	At             time.Time             `json:"at"`
}

type Handler func(ev Event)

// Subscription is a live-feed handle. Release stops delivery; it is safe to
// call any number of times.
type Subscription interface {
	Release()
}

// Feed is the change-subscription primitive over the message table. Events
// on one subscription arrive in emission order; distinct subscriptions give
// no cross-ordering guarantee, so consumers fold events idempotently.
type Feed interface {
	PublishInserted(ctx context.Context, m *models.Message) error
	PublishStatus(ctx context.Context, conversationID, messageID string, status models.DeliveryStatus) error
	// Subscribe delivers events for one conversation.
	Subscribe(conversationID string, h Handler) (Subscription, error)
	// SubscribeAll delivers events for every conversation.
	SubscribeAll(h Handler) (Subscription, error)
	Close() error
}

// sanitize strips the in-memory plaintext before an event leaves the
// process. Receivers decrypt from EncryptedContent with their own key.
func sanitize(m *models.Message) *models.Message {
	cp := m.Clone()
	cp.Content = ""
	return cp
}
