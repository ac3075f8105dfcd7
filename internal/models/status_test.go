package models

import "testing"

func TestStatusAdvanceForwardOnly(t *testing.T) {
	cases := []struct {
		current, next, want DeliveryStatus
	}{
		{StatusSending, StatusSent, StatusSent},
		{StatusSent, StatusDelivered, StatusDelivered},
		{StatusDelivered, StatusRead, StatusRead},
		{StatusRead, StatusSent, StatusRead},
		{StatusRead, StatusDelivered, StatusRead},
		{StatusSent, StatusSending, StatusSent},
		{StatusSending, StatusRead, StatusRead},
		{StatusSent, "bogus", StatusSent},
	}
	for _, c := range cases {
		if got := c.current.Advance(c.next); got != c.want {
			t.Errorf("Advance(%s, %s) = %s, want %s", c.current, c.next, got, c.want)
		}
	}
}

func TestStatusesBelow(t *testing.T) {
	below := StatusesBelow(StatusDelivered)
	if len(below) != 2 {
		t.Fatalf("expected 2 statuses below delivered, got %d", len(below))
	}
	seen := map[DeliveryStatus]bool{}
	for _, s := range below {
		seen[s] = true
	}
	if !seen[StatusSending] || !seen[StatusSent] {
		t.Fatalf("unexpected set below delivered: %v", below)
	}
}

func TestMemberKeyOrderIndependent(t *testing.T) {
	if MemberKey("u1", "u2") != MemberKey("u2", "u1") {
		t.Fatal("member key must be order independent")
	}
}

func TestPendingPrefix(t *testing.T) {
	m := &Message{ID: PendingIDPrefix + "abc"}
	if !m.Pending() {
		t.Fatal("expected pending")
	}
	m.ID = "64f0c0ffee"
	if m.Pending() {
		t.Fatal("authoritative id flagged pending")
	}
}
