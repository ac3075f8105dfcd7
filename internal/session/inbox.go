package session

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/gatherly/chatkit/internal/events"
	"github.com/gatherly/chatkit/internal/models"
)

// InboxBackend is the slice of ChatService the inbox consumes.
type InboxBackend interface {
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	DecodeMessage(conv *models.Conversation, m *models.Message)
}

// Inbox maintains the conversation-list view for one user: each conversation's
// last message and unread count, freshest first. It watches the global
// feed, so a message in any conversation bumps the summary without a
// round trip.
type Inbox struct {
	backend InboxBackend
	log     *zap.SugaredLogger
	userID  string

	mu            sync.Mutex
	conversations []*models.Conversation
	closed        bool
	sub           events.Subscription

	onChange func([]models.Conversation)
}

type InboxOptions struct {
	OnChange func(conversations []models.Conversation)
	Logger   *zap.SugaredLogger
}

// OpenInbox loads the user's conversation list and subscribes to the
// global message feed.
func OpenInbox(ctx context.Context, backend InboxBackend, feed events.Feed, userID string, opts InboxOptions) (*Inbox, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	convs, err := backend.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	in := &Inbox{
		backend:       backend,
		log:           log,
		userID:        userID,
		conversations: convs,
		onChange:      opts.OnChange,
	}
	sub, err := feed.SubscribeAll(in.handleEvent)
	if err != nil {
		return nil, err
	}
	in.sub = sub
	return in, nil
}

// Conversations returns a snapshot ordered by last activity descending.
func (in *Inbox) Conversations() []models.Conversation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.snapshotLocked()
}

func (in *Inbox) handleEvent(ev events.Event) {
	if ev.Type != events.EventMessageInserted || ev.Message == nil {
		// status transitions do not move conversations in the list
		return
	}
	msg := ev.Message

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	conv := in.findLocked(ev.ConversationID)
	known := conv != nil
	if known {
		// drop redundant redelivery of the same last message
		if conv.LastMessage == nil || conv.LastMessage.ID != msg.ID {
			decoded := msg.Clone()
			in.backend.DecodeMessage(conv, decoded)
			conv.LastMessage = decoded
			conv.LastActivity = msg.CreatedAt
			if msg.ReceiverID == in.userID {
				conv.UnreadCount++
			}
			sort.SliceStable(in.conversations, func(a, b int) bool {
				return in.conversations[a].LastActivity.After(in.conversations[b].LastActivity)
			})
		}
	}
	in.mu.Unlock()

	if known {
		in.notify()
		return
	}
	// first message of a conversation created elsewhere: refetch
	if err := in.Refresh(context.Background()); err != nil {
		in.log.Warnw("inbox refresh failed", "conversation_id", ev.ConversationID, "error", err)
	}
}

// Refresh re-fetches the conversation list from the store.
func (in *Inbox) Refresh(ctx context.Context) error {
	convs, err := in.backend.ListConversations(ctx, in.userID)
	if err != nil {
		return err
	}
	in.mu.Lock()
	if !in.closed {
		in.conversations = convs
	}
	in.mu.Unlock()
	in.notify()
	return nil
}

// MarkRead zeroes the local unread counter after the owning view has
// recorded receipts.
func (in *Inbox) MarkRead(conversationID string) {
	in.mu.Lock()
	if c := in.findLocked(conversationID); c != nil {
		c.UnreadCount = 0
	}
	in.mu.Unlock()
	in.notify()
}

// Close releases the global subscription; idempotent.
func (in *Inbox) Close() {
	in.mu.Lock()
	in.closed = true
	sub := in.sub
	in.mu.Unlock()
	if sub != nil {
		sub.Release()
	}
}

func (in *Inbox) findLocked(conversationID string) *models.Conversation {
	for _, c := range in.conversations {
		if c.ID == conversationID {
			return c
		}
	}
	return nil
}

func (in *Inbox) notify() {
	if in.onChange == nil {
		return
	}
	in.mu.Lock()
	snap := in.snapshotLocked()
	in.mu.Unlock()
	in.onChange(snap)
}

func (in *Inbox) snapshotLocked() []models.Conversation {
	out := make([]models.Conversation, len(in.conversations))
	for i, c := range in.conversations {
		out[i] = *c
	}
	return out
}
