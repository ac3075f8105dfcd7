package crypto

import (
	"crypto/sha256"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize      = 32
	keySeparator = ":"
)

var keyInfo = []byte("chatkit conversation key v1")

// DeriveConversationKey derives the AES-256 key for a conversation from its
// participant ids. The ids are sorted before combination, so every
// participant computes the same key regardless of argument order. The key is
// never stored or transmitted.
func DeriveConversationKey(participants ...string) []byte {
	ids := make([]string, len(participants))
	copy(ids, participants)
	sort.Strings(ids)

	secret := []byte(strings.Join(ids, keySeparator))
	key := make([]byte, keySize)
	// hkdf cannot fail for a single 32-byte read
	_, _ = io.ReadFull(hkdf.New(sha256.New, secret, nil, keyInfo), key)
	return key
}
