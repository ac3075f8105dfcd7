package models

import (
	"strings"
	"time"
)

type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeAudio    MessageType = "audio"
	TypeVideo    MessageType = "video"
	TypeFile     MessageType = "file"
	TypeLocation MessageType = "location"
)

// PendingIDPrefix marks a client-generated provisional id. The prefix makes
// a not-yet-persisted message recognizable anywhere in the pipeline.
const PendingIDPrefix = "pending-"

// Media carries attachment fields for non-text messages.
type Media struct {
	FileURL      string `bson:"file_url,omitempty" json:"file_url,omitempty"`
	FileName     string `bson:"file_name,omitempty" json:"file_name,omitempty"`
	FileSize     int64  `bson:"file_size,omitempty" json:"file_size,omitempty"`
	ThumbnailURL string `bson:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
	DurationSecs int    `bson:"duration_secs,omitempty" json:"duration_secs,omitempty"`
}

// Message is a single communication unit within a conversation.
//
// Content is the plaintext held in memory for display; only
// EncryptedContent is persisted and transmitted.
type Message struct {
	ID               string         `bson:"_id,omitempty" json:"id"`
	ConversationID   string         `bson:"conversation_id" json:"conversation_id"`
	SenderID         string         `bson:"sender_id" json:"sender_id"`
	ReceiverID       string         `bson:"receiver_id" json:"receiver_id"`
	Content          string         `bson:"-" json:"content,omitempty"`
	EncryptedContent string         `bson:"content" json:"encrypted_content,omitempty"`
	Type             MessageType    `bson:"type" json:"type"`
	DeliveryStatus   DeliveryStatus `bson:"delivery_status" json:"delivery_status"`
	Media            *Media         `bson:"media,omitempty" json:"media,omitempty"`
	CreatedAt        time.Time      `bson:"created_at" json:"created_at"`
}

// Pending reports whether the message still carries a provisional id.
func (m *Message) Pending() bool {
	return strings.HasPrefix(m.ID, PendingIDPrefix)
}

// Clone returns a shallow copy with its own Media value.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Media != nil {
		media := *m.Media
		cp.Media = &media
	}
	return &cp
}

// ReadReceipt records that a user has read a message. The (MessageID,
// UserID) pair is unique; repeated upserts are no-ops.
type ReadReceipt struct {
	MessageID string    `bson:"message_id" json:"message_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	ReadAt    time.Time `bson:"read_at" json:"read_at"`
}
