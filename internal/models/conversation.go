package models

import (
	"sort"
	"strings"
	"time"
)

// Conversation is a persistent thread between a fixed set of participants.
// At most one non-group conversation exists per unordered pair of members;
// MemberKey is the canonical lookup key enforcing that.
type Conversation struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Members      []string  `bson:"members" json:"members"`
	MemberKey    string    `bson:"member_key" json:"-"`
	IsGroup      bool      `bson:"is_group" json:"is_group"`
	LastMessage  *Message  `bson:"last_message,omitempty" json:"last_message,omitempty"`
	LastActivity time.Time `bson:"last_activity" json:"last_activity"`
	UnreadCount  int64     `bson:"-" json:"unread_count"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// MemberKey canonicalizes a participant set: sorted ids joined by ":".
// Identical regardless of argument order.
func MemberKey(members ...string) string {
	ids := make([]string, len(members))
	copy(ids, members)
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// Peer returns the other participant of a two-party conversation.
func (c *Conversation) Peer(userID string) string {
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return ""
}

// HasMember reports whether userID participates in the conversation.
func (c *Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}
