package crypto

import (
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(nil)
	key := DeriveConversationKey("u1", "u2")

	inputs := []string{
		"hello",
		"",
		"multi\nline\ncontent",
		`{"lat":12.97,"lng":77.59}`,
		"emoji 🎉 and unicode ß",
	}
	for _, in := range inputs {
		ct := codec.Encrypt(in, key)
		if in != "" && ct == in {
			t.Fatalf("ciphertext equals plaintext for %q", in)
		}
		got := codec.Decrypt(ct, key)
		if got != in {
			t.Fatalf("round trip mismatch: got %q want %q", got, in)
		}
	}
}

func TestCodecDecryptFailOpen(t *testing.T) {
	codec := NewCodec(nil)
	key := DeriveConversationKey("u1", "u2")

	// not base64, plain legacy content
	if got := codec.Decrypt("just some plaintext!", key); got != "just some plaintext!" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	// valid base64 but not a ciphertext
	if got := codec.Decrypt("aGVsbG8=", key); got != "aGVsbG8=" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestCodecWrongKeyFailOpen(t *testing.T) {
	codec := NewCodec(nil)
	k1 := DeriveConversationKey("u1", "u2")
	k2 := DeriveConversationKey("u1", "u3")

	ct := codec.Encrypt("secret", k1)
	if got := codec.Decrypt(ct, k2); got != ct {
		t.Fatalf("wrong key should pass ciphertext through, got %q", got)
	}
}

func TestCodecEncryptBadKeyFailOpen(t *testing.T) {
	codec := NewCodec(nil)
	if got := codec.Encrypt("hello", []byte("short")); got != "hello" {
		t.Fatalf("expected plaintext passthrough on bad key, got %q", got)
	}
}
