package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatherly/chatkit/internal/models"
)

func msg(id, sender, receiver, content string, status models.DeliveryStatus, at time.Time) *models.Message {
	return &models.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       sender,
		ReceiverID:     receiver,
		Content:        content,
		Type:           models.TypeText,
		DeliveryStatus: status,
		CreatedAt:      at,
	}
}

func TestMergeReplacesProvisionalInPlace(t *testing.T) {
	base := time.Now().UTC()
	list := []*models.Message{
		msg("m0", "u2", "u1", "earlier", models.StatusRead, base.Add(-time.Minute)),
		msg(models.PendingIDPrefix+"x", "u1", "u2", "hello", models.StatusSending, base),
	}

	authoritative := msg("m1", "u1", "u2", "hello", models.StatusSent, base.Add(time.Second))
	list, outcome := Merge(list, authoritative)

	require.Equal(t, MergeReplaced, outcome)
	require.Len(t, list, 2)
	// position preserved
	require.Equal(t, "m1", list[1].ID)
	require.Equal(t, models.StatusSent, list[1].DeliveryStatus)
}

func TestMergeUpdatesExistingByID(t *testing.T) {
	base := time.Now().UTC()
	list := []*models.Message{msg("m1", "u1", "u2", "hello", models.StatusSent, base)}

	// redelivery through a second channel must not duplicate
	list, outcome := Merge(list, msg("m1", "u1", "u2", "hello", models.StatusSent, base))
	require.Equal(t, MergeUpdated, outcome)
	require.Len(t, list, 1)
}

func TestMergeUpdateNeverRegressesStatus(t *testing.T) {
	base := time.Now().UTC()
	list := []*models.Message{msg("m1", "u1", "u2", "hello", models.StatusRead, base)}

	list, outcome := Merge(list, msg("m1", "u1", "u2", "hello", models.StatusSent, base))
	require.Equal(t, MergeUpdated, outcome)
	require.Equal(t, models.StatusRead, list[0].DeliveryStatus)
}

func TestMergeAppendsAndKeepsChronologicalOrder(t *testing.T) {
	base := time.Now().UTC()
	list := []*models.Message{
		msg("m1", "u1", "u2", "first", models.StatusRead, base),
		msg("m3", "u1", "u2", "third", models.StatusSent, base.Add(2*time.Second)),
	}

	list, outcome := Merge(list, msg("m2", "u2", "u1", "second", models.StatusSent, base.Add(time.Second)))
	require.Equal(t, MergeAppended, outcome)
	require.Equal(t, []string{"m1", "m2", "m3"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestMergeDoesNotMatchConfirmedDuplicateContent(t *testing.T) {
	base := time.Now().UTC()
	// same text sent twice: the first is confirmed, so the second
	// authoritative row must append, not swallow the first
	list := []*models.Message{msg("m1", "u1", "u2", "hi", models.StatusSent, base)}

	list, outcome := Merge(list, msg("m2", "u1", "u2", "hi", models.StatusSent, base.Add(time.Second)))
	require.Equal(t, MergeAppended, outcome)
	require.Len(t, list, 2)
}

func TestMergeBothArrivalOrders(t *testing.T) {
	base := time.Now().UTC()
	provisional := msg(models.PendingIDPrefix+"p", "u1", "u2", "hello", models.StatusSending, base)
	authoritative := msg("m1", "u1", "u2", "hello", models.StatusSent, base.Add(time.Second))

	// order A: feed event first, then persistence response
	listA := []*models.Message{provisional.Clone()}
	listA, _ = Merge(listA, authoritative)
	listA, _ = Merge(listA, authoritative)
	require.Len(t, listA, 1)
	require.Equal(t, "m1", listA[0].ID)
	require.Equal(t, "hello", listA[0].Content)

	// order B: persistence response first, then feed event
	listB := []*models.Message{provisional.Clone()}
	listB, outcome := Merge(listB, authoritative)
	require.Equal(t, MergeReplaced, outcome)
	listB, outcome = Merge(listB, authoritative)
	require.Equal(t, MergeUpdated, outcome)
	require.Len(t, listB, 1)
	require.Equal(t, "m1", listB[0].ID)
}

func TestApplyStatusMonotonic(t *testing.T) {
	base := time.Now().UTC()
	list := []*models.Message{msg("m1", "u1", "u2", "hello", models.StatusSent, base)}

	require.True(t, ApplyStatus(list, "m1", models.StatusRead))
	// late-arriving lower status leaves the message at read
	require.False(t, ApplyStatus(list, "m1", models.StatusDelivered))
	require.Equal(t, models.StatusRead, list[0].DeliveryStatus)
}

func TestApplyStatusUnknownMessageDropped(t *testing.T) {
	list := []*models.Message{}
	require.False(t, ApplyStatus(list, "ghost", models.StatusRead))
}

func TestRemoveByID(t *testing.T) {
	base := time.Now().UTC()
	list := []*models.Message{
		msg("m1", "u1", "u2", "a", models.StatusSent, base),
		msg(models.PendingIDPrefix+"p", "u1", "u2", "b", models.StatusSending, base.Add(time.Second)),
	}
	list, removed := RemoveByID(list, models.PendingIDPrefix+"p")
	require.NotNil(t, removed)
	require.Equal(t, "b", removed.Content)
	require.Len(t, list, 1)

	list, removed = RemoveByID(list, "ghost")
	require.Nil(t, removed)
	require.Len(t, list, 1)
}
