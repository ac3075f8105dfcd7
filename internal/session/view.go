package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherly/chatkit/internal/events"
	"github.com/gatherly/chatkit/internal/metrics"
	"github.com/gatherly/chatkit/internal/models"
	"github.com/gatherly/chatkit/internal/service"
)

var ErrViewClosed = errors.New("conversation view is closed")

// Backend is the slice of ChatService a conversation view consumes.
type Backend interface {
	OpenConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	SendMessage(ctx context.Context, in service.SendInput) (*models.Message, error)
	MarkDelivered(ctx context.Context, conversationID, messageID string) error
	MarkConversationRead(ctx context.Context, conversationID, userID string) error
	DecodeMessage(conv *models.Conversation, m *models.Message)
}

// SendFailure reports a rolled-back optimistic send. Content carries the
// composed text so the caller can put it back into the input field.
type SendFailure struct {
	Content string
	Type    models.MessageType
	Err     error
}

// ViewOptions configure callbacks. OnChange receives a fresh snapshot of
// the visible list after every mutation; OnSendFailed fires once per
// rolled-back send.
type ViewOptions struct {
	OnChange     func(messages []models.Message)
	OnSendFailed func(f SendFailure)
	Logger       *zap.SugaredLogger
}

// ConversationView owns the visible message list of one open conversation.
// Exactly two writers mutate the list, the optimistic send pipeline and
// the live-feed reconciler, and both go through identity-based merge, so
// every logical message has at most one visible entry no matter which
// completion order the race takes.
type ConversationView struct {
	backend Backend
	feed    events.Feed
	log     *zap.SugaredLogger

	userID string
	peerID string
	conv   *models.Conversation

	mu       sync.Mutex
	messages []*models.Message
	closed   bool
	sub      events.Subscription

	onChange     func([]models.Message)
	onSendFailed func(SendFailure)
	background   sync.WaitGroup
}

// OpenConversationView opens (or creates) the conversation between userID
// and peerID, loads its history and subscribes to its live feed.
func OpenConversationView(ctx context.Context, backend Backend, feed events.Feed, userID, peerID string, opts ViewOptions) (*ConversationView, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	conv, err := backend.OpenConversation(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	history, err := backend.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	v := &ConversationView{
		backend:      backend,
		feed:         feed,
		log:          log,
		userID:       userID,
		peerID:       peerID,
		conv:         conv,
		messages:     history,
		onChange:     opts.OnChange,
		onSendFailed: opts.OnSendFailed,
	}

	sub, err := feed.Subscribe(conv.ID, v.handleEvent)
	if err != nil {
		return nil, err
	}
	v.sub = sub
	return v, nil
}

func (v *ConversationView) ConversationID() string {
	return v.conv.ID
}

// Messages returns a snapshot of the visible list in render order.
func (v *ConversationView) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Send runs the optimistic pipeline: a provisional entry appears in the
// visible list synchronously, persistence happens in the background, and
// the provisional entry is either replaced by the authoritative row or
// rolled back with the text handed back through OnSendFailed. Send never
// blocks on the store.
func (v *ConversationView) Send(ctx context.Context, content string, msgType models.MessageType, media *models.Media) (string, error) {
	if msgType == "" {
		msgType = models.TypeText
	}

	provisional := &models.Message{
		ID:             models.PendingIDPrefix + uuid.NewString(),
		ConversationID: v.conv.ID,
		SenderID:       v.userID,
		ReceiverID:     v.peerID,
		Content:        content,
		Type:           msgType,
		Media:          media,
		DeliveryStatus: models.StatusSending,
		CreatedAt:      time.Now().UTC(),
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return "", ErrViewClosed
	}
	v.messages = append(v.messages, provisional.Clone())
	v.mu.Unlock()
	v.notify()

	// persistence must survive the caller's context; a hung write shows as
	// a message stuck in "sending", not a cancellation
	persistCtx := context.WithoutCancel(ctx)
	v.background.Add(1)
	go func() {
		defer v.background.Done()
		v.persist(persistCtx, provisional)
	}()

	return provisional.ID, nil
}

func (v *ConversationView) persist(ctx context.Context, provisional *models.Message) {
	authoritative, err := v.backend.SendMessage(ctx, service.SendInput{
		ConversationID: provisional.ConversationID,
		SenderID:       provisional.SenderID,
		ReceiverID:     provisional.ReceiverID,
		Content:        provisional.Content,
		Type:           provisional.Type,
		Media:          provisional.Media,
	})
	if err != nil {
		v.rollback(provisional, err)
		return
	}
	v.resolve(provisional.ID, authoritative)
}

// rollback removes the provisional entry and returns the composed text to
// the caller for re-display.
func (v *ConversationView) rollback(provisional *models.Message, cause error) {
	v.mu.Lock()
	v.messages, _ = RemoveByID(v.messages, provisional.ID)
	v.mu.Unlock()

	metrics.SendRollbacks.Inc()
	v.log.Warnw("send rolled back", "conversation_id", v.conv.ID, "error", cause)
	v.notify()
	if v.onSendFailed != nil {
		v.onSendFailed(SendFailure{Content: provisional.Content, Type: provisional.Type, Err: cause})
	}
}

// resolve lands the persistence response. If the live feed already
// replaced the provisional entry this degrades to an in-place refresh.
func (v *ConversationView) resolve(provisionalID string, authoritative *models.Message) {
	v.mu.Lock()
	if i := indexByID(v.messages, provisionalID); i >= 0 {
		replacement := authoritative.Clone()
		replacement.DeliveryStatus = v.messages[i].DeliveryStatus.Advance(authoritative.DeliveryStatus)
		v.messages[i] = replacement
		metrics.ReconciledReplacements.Inc()
	} else {
		v.messages, _ = Merge(v.messages, authoritative)
	}
	v.mu.Unlock()
	v.notify()
}

func (v *ConversationView) handleEvent(ev events.Event) {
	switch ev.Type {
	case events.EventMessageInserted:
		if ev.Message == nil {
			return
		}
		incoming := ev.Message.Clone()
		v.backend.DecodeMessage(v.conv, incoming)

		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return
		}
		var outcome MergeOutcome
		v.messages, outcome = Merge(v.messages, incoming)
		v.mu.Unlock()

		if outcome == MergeReplaced {
			metrics.ReconciledReplacements.Inc()
		}
		v.notify()

		// receiving the row is the delivery ack for messages addressed to us
		if incoming.ReceiverID == v.userID && incoming.DeliveryStatus.Rank() < models.StatusDelivered.Rank() {
			v.background.Add(1)
			go func() {
				defer v.background.Done()
				if err := v.backend.MarkDelivered(context.Background(), v.conv.ID, incoming.ID); err != nil {
					v.log.Warnw("mark delivered failed", "message_id", incoming.ID, "error", err)
				}
			}()
		}

	case events.EventMessageUpdated:
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return
		}
		changed := ApplyStatus(v.messages, ev.MessageID, ev.Status)
		v.mu.Unlock()

		if changed {
			v.notify()
		} else {
			metrics.StaleStatusDropped.Inc()
		}
	}
}

// MarkRead records receipts for everything addressed to the viewer and
// advances local state immediately; the corresponding feed events are
// folded idempotently when they arrive.
func (v *ConversationView) MarkRead(ctx context.Context) error {
	if err := v.backend.MarkConversationRead(ctx, v.conv.ID, v.userID); err != nil {
		return err
	}
	v.mu.Lock()
	changed := false
	for _, m := range v.messages {
		if m.ReceiverID == v.userID {
			next := m.DeliveryStatus.Advance(models.StatusRead)
			if next != m.DeliveryStatus {
				m.DeliveryStatus = next
				changed = true
			}
		}
	}
	v.mu.Unlock()
	if changed {
		v.notify()
	}
	return nil
}

// Close releases the live subscription. Safe to call multiple times; no
// event callbacks mutate the view after Close returns the list frozen.
func (v *ConversationView) Close() {
	v.mu.Lock()
	v.closed = true
	sub := v.sub
	v.mu.Unlock()
	if sub != nil {
		sub.Release()
	}
}

// Wait blocks until in-flight background persistence settles. Test helper.
func (v *ConversationView) Wait() {
	v.background.Wait()
}

func (v *ConversationView) notify() {
	if v.onChange == nil {
		return
	}
	v.mu.Lock()
	snap := v.snapshotLocked()
	v.mu.Unlock()
	v.onChange(snap)
}

func (v *ConversationView) snapshotLocked() []models.Message {
	out := make([]models.Message, len(v.messages))
	for i, m := range v.messages {
		out[i] = *m
	}
	return out
}
