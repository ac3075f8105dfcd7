package models

// DeliveryStatus tracks a message's transit: sending -> sent -> delivered -> read.
// Transitions are strictly forward; a later stage is never overwritten by an
// earlier one, no matter in which order notifications arrive.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

var statusRank = map[DeliveryStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Rank returns the position of the status in the delivery lifecycle.
// Unknown values rank lowest so they can never clobber a known status.
func (s DeliveryStatus) Rank() int {
	return statusRank[s]
}

func (s DeliveryStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Advance applies next on top of s, forward-only.
func (s DeliveryStatus) Advance(next DeliveryStatus) DeliveryStatus {
	if next.Valid() && next.Rank() > s.Rank() {
		return next
	}
	return s
}

// StatusesBelow lists every status ranked strictly below s. Store
// implementations use it to guard updates against regression.
func StatusesBelow(s DeliveryStatus) []DeliveryStatus {
	out := make([]DeliveryStatus, 0, len(statusRank))
	for st, r := range statusRank {
		if r < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}
