package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gatherly/chatkit/internal/models"
)

const subjectPrefix = "chat.messages."

// NatsFeed implements Feed over NATS subjects:
//
//	chat.messages.<conversation_id>.inserted
//	chat.messages.<conversation_id>.updated
//
// A per-conversation subscription listens on chat.messages.<id>.>, the
// global one on chat.messages.>.
type NatsFeed struct {
	nc  *nats.Conn
	log *zap.SugaredLogger
}

func NewNatsFeed(url string, log *zap.SugaredLogger) (*NatsFeed, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &NatsFeed{nc: nc, log: log}, nil
}

func (f *NatsFeed) PublishInserted(_ context.Context, m *models.Message) error {
	ev := Event{
		ID:             uuid.NewString(),
		Type:           EventMessageInserted,
		ConversationID: m.ConversationID,
		Message:        sanitize(m),
		At:             time.Now().UTC(),
	}
	return f.publish(m.ConversationID+".inserted", ev)
}

func (f *NatsFeed) PublishStatus(_ context.Context, conversationID, messageID string, status models.DeliveryStatus) error {
	ev := Event{
		ID:             uuid.NewString(),
		Type:           EventMessageUpdated,
		ConversationID: conversationID,
		MessageID:      messageID,
		Status:         status,
		At:             time.Now().UTC(),
	}
	return f.publish(conversationID+".updated", ev)
}

func (f *NatsFeed) publish(suffix string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.nc.Publish(subjectPrefix+suffix, data)
}

func (f *NatsFeed) Subscribe(conversationID string, h Handler) (Subscription, error) {
	return f.subscribe(subjectPrefix+conversationID+".>", h)
}

func (f *NatsFeed) SubscribeAll(h Handler) (Subscription, error) {
	return f.subscribe(subjectPrefix+">", h)
}

func (f *NatsFeed) subscribe(subject string, h Handler) (Subscription, error) {
	sub, err := f.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			f.log.Warnw("drop malformed feed event", "subject", msg.Subject, "error", err)
			return
		}
		h(ev)
	})
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

func (f *NatsFeed) Close() error {
	f.nc.Close()
	return nil
}

type natsSubscription struct {
	sub  *nats.Subscription
	once sync.Once
}

func (s *natsSubscription) Release() {
	s.once.Do(func() {
		_ = s.sub.Unsubscribe()
	})
}
