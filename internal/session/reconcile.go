package session

import (
	"sort"

	"github.com/gatherly/chatkit/internal/models"
)

// MergeOutcome says what Merge did with the incoming message.
type MergeOutcome int

const (
	// MergeAppended: no local counterpart existed, the message was added.
	MergeAppended MergeOutcome = iota
	// MergeReplaced: a pending provisional entry was swapped for the
	// authoritative row, keeping its list position.
	MergeReplaced
	// MergeUpdated: the authoritative row was already present; fields were
	// refreshed in place.
	MergeUpdated
)

// Merge folds an authoritative message into an ordered message list,
// guaranteeing at most one visible entry per logical message. Two messages
// are the same logical entity if they share an authoritative id, or if the
// incoming row matches a still-pending provisional entry on sender,
// receiver, content and type. On a fresh append the list is re-sorted by
// timestamp so history stays chronological.
//
// Merge is idempotent: replaying the same event leaves the list unchanged
// apart from forward-only status refreshes.
func Merge(list []*models.Message, incoming *models.Message) ([]*models.Message, MergeOutcome) {
	if i := indexByID(list, incoming.ID); i >= 0 {
		current := list[i]
		updated := incoming.Clone()
		updated.DeliveryStatus = current.DeliveryStatus.Advance(incoming.DeliveryStatus)
		if updated.Content == "" {
			updated.Content = current.Content
		}
		list[i] = updated
		return list, MergeUpdated
	}

	if i := indexOfProvisional(list, incoming); i >= 0 {
		replacement := incoming.Clone()
		replacement.DeliveryStatus = list[i].DeliveryStatus.Advance(incoming.DeliveryStatus)
		list[i] = replacement
		return list, MergeReplaced
	}

	list = append(list, incoming.Clone())
	sort.SliceStable(list, func(a, b int) bool {
		return list[a].CreatedAt.Before(list[b].CreatedAt)
	})
	return list, MergeAppended
}

// ApplyStatus advances the status of the message with the given id,
// forward-only. Returns false when the message is absent or the update is
// stale; both are dropped silently by callers.
func ApplyStatus(list []*models.Message, messageID string, status models.DeliveryStatus) bool {
	i := indexByID(list, messageID)
	if i < 0 {
		return false
	}
	next := list[i].DeliveryStatus.Advance(status)
	if next == list[i].DeliveryStatus {
		return false
	}
	list[i].DeliveryStatus = next
	return true
}

// RemoveByID deletes the message with the given id, preserving order.
// Returns the removed message, or nil when absent.
func RemoveByID(list []*models.Message, messageID string) ([]*models.Message, *models.Message) {
	i := indexByID(list, messageID)
	if i < 0 {
		return list, nil
	}
	removed := list[i]
	return append(list[:i], list[i+1:]...), removed
}

func indexByID(list []*models.Message, id string) int {
	for i, m := range list {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func indexOfProvisional(list []*models.Message, incoming *models.Message) int {
	for i, m := range list {
		if m.Pending() &&
			m.SenderID == incoming.SenderID &&
			m.ReceiverID == incoming.ReceiverID &&
			m.Type == incoming.Type &&
			m.Content == incoming.Content {
			return i
		}
	}
	return -1
}
