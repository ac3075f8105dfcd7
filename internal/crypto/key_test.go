package crypto

import (
	"bytes"
	"testing"
)

func TestDeriveConversationKeySymmetry(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"alice", "bob"},
		{"zz", "aa"},
		{"9f3c", "0a1b"},
	}
	for _, p := range pairs {
		k1 := DeriveConversationKey(p[0], p[1])
		k2 := DeriveConversationKey(p[1], p[0])
		if !bytes.Equal(k1, k2) {
			t.Fatalf("key for (%s,%s) differs by argument order", p[0], p[1])
		}
		if len(k1) != 32 {
			t.Fatalf("expected 32-byte key, got %d", len(k1))
		}
	}
}

func TestDeriveConversationKeyDistinctPairs(t *testing.T) {
	k1 := DeriveConversationKey("u1", "u2")
	k2 := DeriveConversationKey("u1", "u3")
	if bytes.Equal(k1, k2) {
		t.Fatal("different participant pairs produced the same key")
	}
}
