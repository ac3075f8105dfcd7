package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/gatherly/chatkit/internal/metrics"
)

// Codec encrypts and decrypts message bodies with AES-256-GCM. The wire
// form is base64(nonce || ciphertext).
//
// The codec fails open: any internal error returns the input unchanged so
// a broken encryption path never blocks messaging. Every fallback is logged
// and counted.
type Codec struct {
	log *zap.SugaredLogger
}

func NewCodec(log *zap.SugaredLogger) *Codec {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Codec{log: log}
}

// Encrypt returns the wire form of plaintext under key, or the plaintext
// unchanged if encryption fails.
func (c *Codec) Encrypt(plaintext string, key []byte) string {
	aead, err := newGCM(key)
	if err != nil {
		c.fallback("encrypt", err)
		return plaintext
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		c.fallback("encrypt", err)
		return plaintext
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

// Decrypt reverses Encrypt. Anything that does not decode as ciphertext
// under key is treated as already-plaintext and returned unchanged.
func (c *Codec) Decrypt(encoded string, key []byte) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.fallback("decrypt", err)
		return encoded
	}
	aead, err := newGCM(key)
	if err != nil {
		c.fallback("decrypt", err)
		return encoded
	}
	if len(raw) < aead.NonceSize() {
		c.fallback("decrypt", errors.New("ciphertext shorter than nonce"))
		return encoded
	}
	plaintext, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		c.fallback("decrypt", err)
		return encoded
	}
	return string(plaintext)
}

func (c *Codec) fallback(op string, err error) {
	metrics.CodecFallbacks.WithLabelValues(op).Inc()
	c.log.Warnw("codec fallback to passthrough", "op", op, "error", err)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, errors.New("AES-256 requires a 32 byte key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
