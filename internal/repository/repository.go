package repository

import (
	"context"
	"errors"

	"github.com/gatherly/chatkit/internal/models"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Store is the row-level adapter over the backing datastore. It performs no
// retries; callers decide how a failed write surfaces.
type Store interface {
	// FindOrCreateConversation returns the two-party conversation for the
	// unordered pair, creating it when absent. Idempotent: concurrent calls
	// for the same pair converge on one conversation.
	FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// ListConversations returns every conversation the user participates
	// in, ordered by last activity descending.
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	// TouchConversation bumps last activity and the last-message pointer.
	TouchConversation(ctx context.Context, id string, last *models.Message) error

	// InsertMessage persists the row and returns it with the
	// store-assigned id and timestamp.
	InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error)
	// ListMessages returns the full history ordered by timestamp ascending.
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	// ListUnreadMessages returns messages addressed to receiverID whose
	// status is still below read.
	ListUnreadMessages(ctx context.Context, conversationID, receiverID string) ([]*models.Message, error)
	// UpdateMessageStatus advances the status, forward-only. Returns true
	// when the row actually moved; a late lower-ranked status is a no-op.
	UpdateMessageStatus(ctx context.Context, messageID string, status models.DeliveryStatus) (bool, error)
	CountUnread(ctx context.Context, conversationID, userID string) (int64, error)

	// UpsertReadReceipt records the (message, user) receipt; a duplicate is
	// a no-op, not an error.
	UpsertReadReceipt(ctx context.Context, r *models.ReadReceipt) error
}
