package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/gatherly/chatkit/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// streamEvents pushes live feed events to a connected client. With
// ?conversation_id=<id> the stream is scoped to that conversation;
// otherwise the client gets every event touching one of its
// conversations. Inserted payloads are decoded to plaintext only after the
// membership check.
func (s *Server) streamEvents(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	if userID == "" {
		_ = conn.Close()
		return
	}

	send := make(chan []byte, sendBuffer)
	handler := func(ev events.Event) {
		out, ok := s.filterEvent(userID, ev)
		if !ok {
			return
		}
		data, err := json.Marshal(out)
		if err != nil {
			return
		}
		select {
		case send <- data:
		default:
			// slow consumer: drop rather than stall the feed
		}
	}

	var sub events.Subscription
	var err error
	if convID := conn.Query("conversation_id"); convID != "" {
		sub, err = s.feed.Subscribe(convID, handler)
	} else {
		sub, err = s.feed.SubscribeAll(handler)
	}
	if err != nil {
		s.log.Errorw("ws subscribe failed", "user_id", userID, "error", err)
		_ = conn.Close()
		return
	}
	defer sub.Release()

	if err := s.svc.SetPresence(context.Background(), userID, true); err != nil {
		s.log.Warnw("set presence failed", "user_id", userID, "error", err)
	}
	defer func() {
		if err := s.svc.SetPresence(context.Background(), userID, false); err != nil {
			s.log.Warnw("clear presence failed", "user_id", userID, "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(64 * 1024)
		for {
			// clients send nothing meaningful; reads only detect close
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()
	for {
		select {
		case data := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// filterEvent drops events the user may not see and decodes the payload
// for the ones they may.
func (s *Server) filterEvent(userID string, ev events.Event) (events.Event, bool) {
	if ev.Type != events.EventMessageInserted {
		return ev, true
	}
	if ev.Message == nil {
		return ev, false
	}
	if ev.Message.SenderID != userID && ev.Message.ReceiverID != userID {
		return ev, false
	}
	conv, err := s.svc.GetConversation(context.Background(), ev.ConversationID)
	if err != nil || !conv.HasMember(userID) {
		return ev, false
	}
	decoded := ev.Message.Clone()
	s.svc.DecodeMessage(conv, decoded)
	ev.Message = decoded
	return ev, true
}
